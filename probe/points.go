package probe

import (
	"fmt"
	"math"

	"github.com/mastercactapus/gprobe/coord"
)

// FinalizeFunc consumes the results of a point sweep. It receives the
// sensor offsets and one aggregated position per probed point, and may
// ask for the whole point list to be probed again by returning
// retry=true.
type FinalizeFunc func(offsets coord.Point, results []coord.Point) (retry bool, err error)

// PointsOptions configure a multi-point sweep.
type PointsOptions struct {
	// Points are the XY locations to probe, in order. Z is ignored.
	Points []coord.Point

	// TravelHeight is the machine-coord Z used for moves between points.
	TravelHeight float64

	// Speed is the XY travel speed between points (mm/s).
	Speed float64

	// UseOffsets shifts each point by the sensor XY offsets so the
	// sensor, not the tool, lands on it.
	UseOffsets bool

	// Override adjusts the probing parameters for this sweep.
	Override Override

	Finalize FinalizeFunc
}

// RunPoints probes downward at each configured point in one session and
// hands the collected results to Finalize, restarting from the first
// point for as long as Finalize requests a retry.
//
// The tool raises to TravelHeight before every point; the first raise
// runs at Speed, later ones at the lift speed.
func (p *Probe) RunPoints(opt PointsOptions) (err error) {
	if len(opt.Points) == 0 {
		return fmt.Errorf("%w: no probe points", ErrInvalidConfig)
	}
	if opt.Finalize == nil {
		return fmt.Errorf("%w: finalize callback is required", ErrInvalidConfig)
	}
	if math.IsNaN(opt.Speed) || math.IsInf(opt.Speed, 0) || opt.Speed <= 0 {
		return fmt.Errorf("%w: speed must be a positive number", ErrInvalidConfig)
	}
	params, err := p.Params(opt.Override)
	if err != nil {
		return err
	}
	if opt.TravelHeight < p.cfg.Offsets.Z {
		return fmt.Errorf("%w: travel height can't be less than the probe's z offset", ErrInvalidConfig)
	}

	s, err := p.StartSession(ZMinus)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			p.HandleCommandError()
		}
	}()

	var n int
	for {
		speed := params.LiftSpeed
		if n == 0 {
			speed = opt.Speed
		}
		cur := p.cfg.Motion.Position()
		if err = p.cfg.Motion.MoveTo(cur.WithAxis(coord.AxisZ, opt.TravelHeight), speed); err != nil {
			return err
		}

		if n >= len(opt.Points) {
			var retry bool
			retry, err = opt.Finalize(p.cfg.Offsets, s.PullResults())
			if err != nil {
				return err
			}
			if !retry {
				break
			}
			n = 0
		}

		next := opt.Points[n]
		if opt.UseOffsets {
			next.X -= p.cfg.Offsets.X
			next.Y -= p.cfg.Offsets.Y
		}
		cur = p.cfg.Motion.Position()
		if err = p.cfg.Motion.MoveTo(coord.Point{X: next.X, Y: next.Y, Z: cur.Z}, opt.Speed); err != nil {
			return err
		}
		if err = s.RunSample(ZMinus, params); err != nil {
			return err
		}
		n++
	}

	return s.End(ZMinus)
}
