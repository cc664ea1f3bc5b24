package machine

import (
	"errors"
	"time"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/probe"
)

var (
	_ probe.Motion = (*Machine)(nil)
	_ probe.Limits = (*Machine)(nil)
)

// Position returns the commanded machine position, or the last
// reported one when nothing has been commanded since connect, reset,
// or an external program.
func (m *Machine) Position() coord.Point {
	m.mx.Lock()
	known, pos := m.posKnown, m.pos
	m.mx.Unlock()
	if known {
		return pos
	}
	return m.CurrentState().MPos
}

// MoveTo moves in a straight line to p (machine coordinates) at speed
// in mm/s, returning once the move has finished.
func (m *Machine) MoveTo(p coord.Point, speed float64) error {
	if speed <= 0 {
		return errors.New("speed must be positive")
	}
	err := m.runBlocks([]gcode.Block{
		{
			{W: 'G', Arg: 53},
			{W: 'G', Arg: 1},
			{W: 'X', Arg: p.X},
			{W: 'Y', Arg: p.Y},
			{W: 'Z', Arg: p.Z},
			{W: 'F', Arg: speed * 60},
		},
		// a zero dwell drains the planner, so the ack means motion
		// finished
		{
			{W: 'G', Arg: 4},
			{W: 'P', Arg: 0},
		},
	})
	if err != nil {
		return err
	}
	m.setPosition(p)
	return nil
}

// LastMoveTime returns when the last commanded motion finished.
func (m *Machine) LastMoveTime() time.Time {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.lastMove
}

// AxisBounds returns the machine travel envelope.
func (m *Machine) AxisBounds() (min, max coord.Point) {
	return m.cfg.Min, m.cfg.Max
}
