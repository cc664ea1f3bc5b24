package probe

import (
	"math"

	"github.com/mastercactapus/gprobe/coord"
)

// DefaultAccuracyCount is how many measurements Accuracy takes when the
// caller does not say otherwise.
const DefaultAccuracyCount = 10

// AccuracyResult summarizes repeated single-sample probes along the
// probed axis.
type AccuracyResult struct {
	Max    float64
	Min    float64
	Range  float64
	Mean   float64
	Median float64

	// StdDev is the population standard deviation of the probed-axis
	// values.
	StdDev float64

	// Samples are the individual contact positions, in probe order.
	Samples []coord.Point
}

// Accuracy measures probe repeatability: count single-sample probes in
// the given direction from the current position, reduced to spread
// statistics over the probed axis.
func (p *Probe) Accuracy(dir Direction, ov Override, count int) (_ *AccuracyResult, err error) {
	axis, sign, err := dir.Resolve()
	if err != nil {
		return nil, err
	}
	params, err := p.Params(ov)
	if err != nil {
		return nil, err
	}
	// tolerance retry logic has no meaning for single samples
	params.Samples = 1
	if count < 1 {
		count = DefaultAccuracyCount
	}

	s, err := p.StartSession(dir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			p.HandleCommandError()
		}
	}()

	for i := 0; i < count; i++ {
		if err = s.RunSample(dir, params); err != nil {
			return nil, err
		}
		// retract between samples ourselves; the sampling loop skips it
		// for single-sample batches
		pos := p.cfg.Motion.Position()
		lift := pos.WithAxis(axis, pos.Axis(axis)-sign*params.SampleRetractDist)
		if err = p.cfg.Motion.MoveTo(lift, params.LiftSpeed); err != nil {
			return nil, err
		}
	}
	samples := s.PullResults()
	if err = s.End(dir); err != nil {
		return nil, err
	}

	res := &AccuracyResult{Samples: samples}
	res.Max = samples[0].Axis(axis)
	res.Min = res.Max
	for _, pt := range samples[1:] {
		v := pt.Axis(axis)
		res.Max = math.Max(res.Max, v)
		res.Min = math.Min(res.Min, v)
	}
	res.Range = res.Max - res.Min
	res.Mean = Mean(samples).Axis(axis)
	res.Median = Median(samples, axis).Axis(axis)

	var devSum float64
	for _, pt := range samples {
		d := pt.Axis(axis) - res.Mean
		devSum += d * d
	}
	res.StdDev = math.Sqrt(devSum / float64(len(samples)))

	return res, nil
}
