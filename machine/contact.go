package machine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/probe"
)

// ProbeResult is a single probe report from the controller, in machine
// coordinates.
type ProbeResult struct {
	coord.Point
	Valid bool
}

var axisWords = [3]byte{'X', 'Y', 'Z'}

// axisProbe exposes one axis of the machine's contact input as a
// probe.ContactProbe.
type axisProbe struct {
	m    *Machine
	axis int
}

var _ probe.ContactProbe = axisProbe{}

// BeginUse takes the axis for exclusive probing. The machine must be
// idle, or paused at an operator hold.
func (p axisProbe) BeginUse() error {
	stat := p.m.CurrentState()
	if stat.Status != "Idle" && stat.Status != "Hold:0" {
		return errors.New("machine not idle")
	}

	p.m.mx.Lock()
	defer p.m.mx.Unlock()
	if p.m.held[p.axis] {
		return fmt.Errorf("%c axis probe already in use", axisWords[p.axis])
	}
	p.m.held[p.axis] = true
	return nil
}

// EndUse releases the axis.
func (p axisProbe) EndUse() error {
	p.m.mx.Lock()
	defer p.m.mx.Unlock()
	if !p.m.held[p.axis] {
		return fmt.Errorf("%c axis probe not in use", axisWords[p.axis])
	}
	p.m.held[p.axis] = false
	return nil
}

// ContactMove probes toward target and returns the contact position.
//
// The move runs as a relative G38.3 so a miss finishes without an
// alarm; the report's valid flag tells the two apart.
func (p axisProbe) ContactMove(target coord.Point, speed float64) (coord.Point, error) {
	m := p.m
	delta := target.Axis(p.axis) - m.Position().Axis(p.axis)

	m.ResetProbes()
	err := m.runBlocks([]gcode.Block{
		{
			{W: 'G', Arg: 91},
			{W: 'G', Arg: 38.3},
			{W: axisWords[p.axis], Arg: delta},
			{W: 'F', Arg: speed * 60},
		},
		{
			{W: 'G', Arg: 90},
		},
	})
	if err != nil {
		return coord.Point{}, err
	}

	reports := m.Probes()
	if len(reports) == 0 {
		return coord.Point{}, errors.New("no probe data returned")
	}
	res := reports[len(reports)-1]
	if !res.Valid {
		m.setPosition(target)
		return target, probe.ErrNoContact
	}
	m.setPosition(res.Point)
	return res.Point, nil
}

// Triggered reports the probe input state from a status newer than
// since.
func (p axisProbe) Triggered(since time.Time) (bool, error) {
	return p.m.probeTriggered(since)
}
