package machine

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/probe"
)

// Config assembles a Machine from an Adapter and its probing setup.
type Config struct {
	Adapter Adapter

	// Min and Max bound machine travel, in machine coordinates.
	Min, Max coord.Point

	// ProbeDefaults are the persistent probing parameters.
	ProbeDefaults probe.Params

	// ProbeOffsets is the contact sensor position relative to the tool.
	ProbeOffsets coord.Point

	// OnContact, when set, receives the machine position of every
	// refined probe contact.
	OnContact func(coord.Point)
}

// Machine drives a CNC controller through an Adapter and carries the
// probing state built on top of it.
type Machine struct {
	Adapter

	cfg Config

	holdMessage chan string

	mx       sync.Mutex
	homed    bool
	posKnown bool
	pos      coord.Point
	lastMove time.Time
	tlo      float64
	held     [3]bool

	probe *probe.Probe
}

type State struct {
	Status string
	MPos   coord.Point
	WCO    coord.Point

	// Probe is whether the probe input is currently triggered.
	Probe bool

	// Time is when the report was received.
	Time time.Time
}

func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	for axis, w := range axisWords {
		if cfg.Min.Axis(axis) > cfg.Max.Axis(axis) {
			return nil, fmt.Errorf("%c axis bounds are reversed", w)
		}
	}

	m := &Machine{
		Adapter:     cfg.Adapter,
		cfg:         cfg,
		holdMessage: make(chan string),
	}

	var err error
	m.probe, err = probe.New(probe.Config{
		Motion: m,
		Limits: m,
		Contacts: [3]probe.ContactProbe{
			axisProbe{m: m, axis: coord.AxisX},
			axisProbe{m: m, axis: coord.AxisY},
			axisProbe{m: m, axis: coord.AxisZ},
		},
		Defaults:  cfg.ProbeDefaults,
		Offsets:   cfg.ProbeOffsets,
		OnContact: cfg.OnContact,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Probe returns the machine's probing interface.
func (m *Machine) Probe() *probe.Probe { return m.probe }

// HoldMessage returns the channel of operator hold prompts. A "-"
// message clears the prompt.
func (m *Machine) HoldMessage() chan string { return m.holdMessage }

// Homed reports whether the machine has a trustworthy position.
func (m *Machine) Homed() bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.homed
}

// Home runs the controller's homing cycle, blocking until it finishes.
func (m *Machine) Home() error {
	_, err := m.Adapter.Write([]byte("$H\n"))
	if errors.Is(err, ErrReset) {
		m.noteReset()
	}
	if err != nil {
		return err
	}
	m.mx.Lock()
	m.homed = true
	m.posKnown = false
	m.lastMove = time.Now()
	m.mx.Unlock()

	// prompt a position report from the homed location
	return m.WriteByte('?')
}

// Hold pauses motion immediately.
func (m *Machine) Hold() error { return m.WriteByte('!') }

// Resume continues from a feed hold or program pause.
func (m *Machine) Resume() error { return m.WriteByte('~') }

// Reset soft-resets the controller. Homing state, the commanded
// position, and the tool length offset are discarded.
func (m *Machine) Reset() error {
	if err := m.WriteByte(0x18); err != nil {
		return err
	}
	m.noteReset()
	return nil
}

// ReadFrom streams a gcode program to the controller, returning after
// it has run. The commanded position is forgotten since the program
// may move the machine.
func (m *Machine) ReadFrom(r io.Reader) (int64, error) {
	m.forgetPosition()
	n, err := m.Adapter.ReadFrom(r)
	if errors.Is(err, ErrReset) {
		m.noteReset()
	}
	m.mx.Lock()
	m.lastMove = time.Now()
	m.mx.Unlock()
	return n, err
}

// Write sends raw gcode lines, returning after they have run.
func (m *Machine) Write(p []byte) (int, error) {
	m.forgetPosition()
	n, err := m.Adapter.Write(p)
	if errors.Is(err, ErrReset) {
		m.noteReset()
	}
	m.mx.Lock()
	m.lastMove = time.Now()
	m.mx.Unlock()
	return n, err
}

func (m *Machine) runBlocks(b []gcode.Block) error {
	_, err := m.Adapter.ReadFrom(gcode.NewBuffer(&gcode.BlocksReader{Blocks: b}))
	if errors.Is(err, ErrReset) {
		m.noteReset()
	}
	return err
}

// goTo raises to travelZ, moves over pos, and lowers onto it, leaving
// the commanded position set.
func (m *Machine) goTo(travelZ float64, pos coord.Point) error {
	b := generateGoTo(travelZ, pos)
	// a zero dwell drains the planner, so the ack means motion finished
	b = append(b, gcode.Block{{W: 'G', Arg: 4}, {W: 'P', Arg: 0}})
	if err := m.runBlocks(b); err != nil {
		return err
	}
	m.setPosition(pos)
	return nil
}

// hold pauses the program with M0 and blocks until the operator
// resumes.
func (m *Machine) hold(message string) error {
	m.holdMessage <- message
	_, err := m.Adapter.Write([]byte("M0\n"))
	if err == nil {
		err = m.waitResume()
	}
	m.holdMessage <- "-"
	return err
}

// holdSettle is how long an M0 takes to show up in the status reports.
var holdSettle = time.Second

func (m *Machine) waitResume() error {
	// let the pause register before watching for it to clear; prior
	// motion is already drained by the time M0 is sent
	time.Sleep(holdSettle)
	for m.CurrentState().Status == "Hold:0" {
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// probeTriggered returns the probe input state from a status report
// taken after since, prompting the controller as needed.
func (m *Machine) probeTriggered(since time.Time) (bool, error) {
	deadline := time.Now().Add(2 * time.Second)
	for {
		stat := m.CurrentState()
		if stat.Time.After(since) {
			return stat.Probe, nil
		}
		if time.Now().After(deadline) {
			return false, errors.New("no status report from controller")
		}
		if err := m.WriteByte('?'); err != nil {
			return false, err
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (m *Machine) setPosition(p coord.Point) {
	m.mx.Lock()
	m.pos = p
	m.posKnown = true
	m.lastMove = time.Now()
	m.mx.Unlock()
}

func (m *Machine) forgetPosition() {
	m.mx.Lock()
	m.posKnown = false
	m.mx.Unlock()
}

// noteReset records that the controller restarted: position, homing,
// and tool offsets are no longer trustworthy.
func (m *Machine) noteReset() {
	m.mx.Lock()
	m.homed = false
	m.posKnown = false
	m.tlo = 0
	m.mx.Unlock()
}

func generateGoTo(travelZ float64, pos coord.Point) []gcode.Block {
	return []gcode.Block{
		{
			{W: 'G', Arg: 53},
			{W: 'G', Arg: 0},
			{W: 'Z', Arg: travelZ},
		},
		{
			{W: 'G', Arg: 53},
			{W: 'G', Arg: 0},
			{W: 'X', Arg: pos.X},
			{W: 'Y', Arg: pos.Y},
		},
		{
			{W: 'G', Arg: 53},
			{W: 'G', Arg: 0},
			{W: 'Z', Arg: pos.Z},
		},
	}
}
