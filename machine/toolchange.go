package machine

import (
	"errors"
	"log"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/probe"
)

// ToolChangeOptions configure a tool change operation.
type ToolChangeOptions struct {
	// ChangePos is where the machine parks for the swap.
	ChangePos coord.Point

	// ProbePos is where tool length is measured; probing starts from
	// its Z.
	ProbePos coord.Point

	// TravelHeight is the machine Z used between positions.
	TravelHeight float64

	Override probe.Override

	// LastToolPos is the measured position of the outgoing tool from a
	// previous change. When unset, the current tool is measured first.
	LastToolPos *coord.Point
}

// ToolChange measures the incoming tool against the outgoing one and
// compensates the length difference with a dynamic tool length offset.
// It returns the new tool's measured position for the next change.
func (m *Machine) ToolChange(opt ToolChangeOptions) (*coord.Point, error) {
	stat := m.CurrentState()
	if stat.Status != "Idle" {
		return nil, errors.New("machine not idle")
	}
	startPos := m.Position()

	if opt.LastToolPos == nil {
		// no record of the current tool, measure it first
		p, err := m.toolProbe(opt)
		if err != nil {
			return nil, err
		}
		opt.LastToolPos = &p
	}

	if err := m.goTo(opt.TravelHeight, opt.ChangePos); err != nil {
		return nil, err
	}
	if err := m.hold("Perform tool change."); err != nil {
		return nil, err
	}

	newPos, err := m.toolProbe(opt)
	if err != nil {
		return nil, err
	}

	diff := newPos.Z - opt.LastToolPos.Z
	if err := m.applyToolOffset(diff); err != nil {
		return nil, err
	}
	log.Println("Adjusting tool length offset by:", diff)

	// put the new tip back where the old one was
	ret := startPos
	ret.Z += diff
	if err := m.goTo(opt.TravelHeight, ret); err != nil {
		return nil, err
	}

	return &newPos, nil
}

// toolProbe measures the tool at the probe position, with the operator
// attaching and removing the probe around the measurement.
func (m *Machine) toolProbe(opt ToolChangeOptions) (coord.Point, error) {
	if err := m.goTo(opt.TravelHeight, opt.ProbePos); err != nil {
		return coord.Point{}, err
	}
	if err := m.hold("Attach Z-Probe to spindle."); err != nil {
		return coord.Point{}, err
	}
	pos, err := m.probe.Single(probe.ZMinus, opt.Override)
	if err != nil {
		return coord.Point{}, err
	}
	if err := m.hold("Probe complete, remove Z-Probe."); err != nil {
		return coord.Point{}, err
	}
	return pos, nil
}

// applyToolOffset adjusts the dynamic tool length offset by delta.
func (m *Machine) applyToolOffset(delta float64) error {
	m.mx.Lock()
	tlo := m.tlo + delta
	m.mx.Unlock()

	err := m.runBlocks([]gcode.Block{
		{
			{W: 'G', Arg: 43.1},
			{W: 'Z', Arg: tlo},
		},
	})
	if err != nil {
		return err
	}

	m.mx.Lock()
	m.tlo = tlo
	m.mx.Unlock()
	return nil
}
