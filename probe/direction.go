package probe

import (
	"fmt"

	"github.com/mastercactapus/gprobe/coord"
)

// Direction names a probing axis and travel sense, like "z-" for probing
// downward.
type Direction string

const (
	XPlus  Direction = "x+"
	XMinus Direction = "x-"
	YPlus  Direction = "y+"
	YMinus Direction = "y-"
	ZPlus  Direction = "z+"
	ZMinus Direction = "z-"
)

var directions = map[Direction]struct {
	axis int
	sign float64
}{
	XPlus:  {coord.AxisX, 1},
	XMinus: {coord.AxisX, -1},
	YPlus:  {coord.AxisY, 1},
	YMinus: {coord.AxisY, -1},
	ZPlus:  {coord.AxisZ, 1},
	ZMinus: {coord.AxisZ, -1},
}

// ParseDirection maps a direction token to its Direction. Tokens match
// exactly; there is no case or whitespace normalization.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if _, ok := directions[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

// Resolve returns the axis index and travel sign for d.
func (d Direction) Resolve() (axis int, sign float64, err error) {
	t, ok := directions[d]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidDirection, string(d))
	}
	return t.axis, t.sign, nil
}

// Vertical reports whether d probes along the z axis.
func (d Direction) Vertical() bool {
	axis, _, err := d.Resolve()
	return err == nil && axis == coord.AxisZ
}

func (d Direction) String() string { return string(d) }
