package probe

import (
	"errors"
	"fmt"
	"math"

	"github.com/mastercactapus/gprobe/coord"
)

// bounceCount is how many contact-retract cycles refine one measurement.
const bounceCount = 3

// Session is the state of an in-progress probing command. Sessions come
// from Probe.StartSession and stay usable for new samples until End.
type Session struct {
	p *Probe

	pending bool
	axis    int // contact capability held while pending
	results []coord.Point
}

// RunSample probes one logical point: it takes p.Samples bounce-refined
// contact measurements, retaking the whole batch when its spread exceeds
// p.Tolerance, then appends the aggregated position to the session
// results.
func (s *Session) RunSample(dir Direction, p Params) error {
	axis, sign, err := dir.Resolve()
	if err != nil {
		return err
	}
	if !s.pending {
		return fmt.Errorf("%w: no session in progress", ErrSessionState)
	}

	start := s.p.cfg.Motion.Position()
	var positions []coord.Point
	var retries int
	for len(positions) < p.Samples {
		pos, err := s.bounce(dir, p)
		if err != nil {
			return err
		}
		positions = append(positions, pos)

		if spread := axisSpread(positions, axis); spread > p.Tolerance {
			if retries >= p.Retries {
				return fmt.Errorf("%w: spread %.6f over limit %.6f", ErrTolerance, spread, p.Tolerance)
			}
			retries++
			positions = positions[:0]
			continue
		}
		if len(positions) < p.Samples {
			lift := start.WithAxis(axis, pos.Axis(axis)-sign*p.SampleRetractDist)
			if err := s.p.cfg.Motion.MoveTo(lift, p.LiftSpeed); err != nil {
				return err
			}
		}
	}

	s.results = append(s.results, aggregate(positions, p.Result, axis))
	return nil
}

// PullResults returns the aggregated results buffered so far and empties
// the buffer.
func (s *Session) PullResults() []coord.Point {
	res := s.results
	s.results = nil
	return res
}

// End closes the session and releases the contact capability taken at
// StartSession. Unpulled results are dropped.
func (s *Session) End(dir Direction) error {
	if _, _, err := dir.Resolve(); err != nil {
		return err
	}
	if !s.pending {
		return fmt.Errorf("%w: no session in progress", ErrSessionState)
	}
	return s.endHeld()
}

func (s *Session) endHeld() error {
	err := s.p.cfg.Contacts[s.axis].EndUse()
	s.pending = false
	s.results = nil
	return err
}

// bounce refines one contact measurement: each cycle re-approaches the
// surface at a tenth of the prior speed from just above it, trading time
// for reduced overshoot. The final, slowest contact is the measurement.
func (s *Session) bounce(dir Direction, p Params) (coord.Point, error) {
	axis, sign, err := dir.Resolve()
	if err != nil {
		return coord.Point{}, err
	}

	start := s.p.cfg.Motion.Position()
	speed := p.Speed
	var pos coord.Point
	for i := 0; i < bounceCount; i++ {
		pos, err = s.contactMove(dir, p.MaxDistance, speed)
		if err != nil {
			return pos, err
		}
		lift := start.WithAxis(axis, pos.Axis(axis)-sign*speed*3.0)
		if err = s.p.cfg.Motion.MoveTo(lift, speed*2.0); err != nil {
			return pos, err
		}
		speed *= 0.1
	}

	if s.p.cfg.OnContact != nil {
		s.p.cfg.OnContact(pos)
	}
	return pos, nil
}

// contactMove runs a single contact-detect move of at most maxDist,
// clamped to the machine travel envelope.
func (s *Session) contactMove(dir Direction, maxDist, speed float64) (coord.Point, error) {
	axis, sign, err := dir.Resolve()
	if err != nil {
		return coord.Point{}, err
	}
	if !s.p.cfg.Motion.Homed() {
		return coord.Point{}, ErrNotHomed
	}

	min, max := s.p.cfg.Limits.AxisBounds()
	pos := s.p.cfg.Motion.Position()
	var target float64
	if sign > 0 {
		target = math.Min(pos.Axis(axis)+maxDist, max.Axis(axis))
	} else {
		target = math.Max(pos.Axis(axis)-maxDist, min.Axis(axis))
	}

	contact, err := s.p.cfg.Contacts[axis].ContactMove(pos.WithAxis(axis, target), speed)
	if err != nil {
		if errors.Is(err, ErrNoContact) && axis == coord.AxisZ {
			return contact, fmt.Errorf("%w; if the probe did not move far enough to trigger, consider reducing the z axis minimum position so it can travel further (the minimum position can be negative)", err)
		}
		return contact, err
	}
	return contact, nil
}

func axisSpread(pts []coord.Point, axis int) float64 {
	lo := pts[0].Axis(axis)
	hi := lo
	for _, p := range pts[1:] {
		v := p.Axis(axis)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

func aggregate(pts []coord.Point, mode ResultMode, axis int) coord.Point {
	if mode == ResultMedian {
		return Median(pts, axis)
	}
	return Mean(pts)
}
