package probe

import (
	"fmt"
	"math"
)

// ResultMode selects how a batch of samples collapses into one result.
type ResultMode string

const (
	ResultMean   ResultMode = "mean"
	ResultMedian ResultMode = "median"
)

// Params is a complete, validated set of probing parameters for one
// command. Speeds are mm/s, distances mm.
type Params struct {
	// Speed is the initial contact-approach speed.
	Speed float64

	// LiftSpeed is the speed used for retracts between samples.
	LiftSpeed float64

	// MaxDistance is how far a contact move may travel before giving up.
	MaxDistance float64

	// Samples is how many refined contacts make up one result.
	Samples int

	// SampleRetractDist is how far to back off between samples.
	SampleRetractDist float64

	// Tolerance is the maximum allowed spread among a batch of samples.
	Tolerance float64

	// Retries is how many times an out-of-tolerance batch may be retaken.
	Retries int

	// Result selects the batch aggregation mode.
	Result ResultMode
}

// Override holds optional per-command parameter replacements. Nil fields
// inherit the defaults.
type Override struct {
	Speed             *float64
	LiftSpeed         *float64
	MaxDistance       *float64
	Samples           *int
	SampleRetractDist *float64
	Tolerance         *float64
	Retries           *int
	Result            *ResultMode
}

// DefaultParams returns the stock probing parameters.
func DefaultParams() Params {
	return Params{
		Speed:             5,
		LiftSpeed:         5,
		MaxDistance:       10,
		Samples:           1,
		SampleRetractDist: 2,
		Tolerance:         0.1,
		Retries:           0,
		Result:            ResultMean,
	}
}

func (p Params) merge(ov Override) Params {
	if ov.Speed != nil {
		p.Speed = *ov.Speed
	}
	if ov.LiftSpeed != nil {
		p.LiftSpeed = *ov.LiftSpeed
	}
	if ov.MaxDistance != nil {
		p.MaxDistance = *ov.MaxDistance
	}
	if ov.Samples != nil {
		p.Samples = *ov.Samples
	}
	if ov.SampleRetractDist != nil {
		p.SampleRetractDist = *ov.SampleRetractDist
	}
	if ov.Tolerance != nil {
		p.Tolerance = *ov.Tolerance
	}
	if ov.Retries != nil {
		p.Retries = *ov.Retries
	}
	if ov.Result != nil {
		p.Result = *ov.Result
	}
	return p
}

func (p Params) validate() error {
	above := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be a positive number", ErrInvalidConfig, name)
		}
		return nil
	}
	if err := above("speed", p.Speed); err != nil {
		return err
	}
	if err := above("lift_speed", p.LiftSpeed); err != nil {
		return err
	}
	if err := above("max_distance", p.MaxDistance); err != nil {
		return err
	}
	if err := above("sample_retract_dist", p.SampleRetractDist); err != nil {
		return err
	}
	if math.IsNaN(p.Tolerance) || math.IsInf(p.Tolerance, 0) || p.Tolerance < 0 {
		return fmt.Errorf("%w: samples_tolerance must be zero or greater", ErrInvalidConfig)
	}
	if p.Samples < 1 {
		return fmt.Errorf("%w: samples must be at least 1", ErrInvalidConfig)
	}
	if p.Retries < 0 {
		return fmt.Errorf("%w: samples_tolerance_retries must be zero or greater", ErrInvalidConfig)
	}
	switch p.Result {
	case ResultMean, ResultMedian:
	default:
		return fmt.Errorf("%w: unknown samples_result %q", ErrInvalidConfig, string(p.Result))
	}
	return nil
}
