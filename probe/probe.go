package probe

import (
	"fmt"
	"log"
	"time"

	"github.com/mastercactapus/gprobe/coord"
)

// Motion executes absolute machine-coordinate moves.
type Motion interface {
	// Position returns the current machine position.
	Position() coord.Point

	// MoveTo moves in a straight line to p at speed (mm/s), blocking until
	// the move has run.
	MoveTo(p coord.Point, speed float64) error

	// LastMoveTime returns the completion time of the most recent motion.
	LastMoveTime() time.Time

	// Homed reports whether all axes have a known machine position.
	Homed() bool
}

// Limits reports the machine travel envelope.
type Limits interface {
	AxisBounds() (min, max coord.Point)
}

// ContactProbe is a single-axis contact sensor that can stop motion when
// it triggers.
type ContactProbe interface {
	// BeginUse acquires the sensor for exclusive use.
	BeginUse() error

	// EndUse releases the sensor.
	EndUse() error

	// ContactMove moves toward target at speed (mm/s) until the sensor
	// triggers and returns the contact position. ErrNoContact is returned
	// when target is reached without a trigger.
	ContactMove(target coord.Point, speed float64) (coord.Point, error)

	// Triggered reports the sensor state from a reading no older than the
	// given time.
	Triggered(since time.Time) (bool, error)
}

// Config assembles a Probe from its hardware collaborators.
type Config struct {
	Motion Motion
	Limits Limits

	// Contacts hold one contact capability per coord axis.
	Contacts [3]ContactProbe

	// Defaults are the persistent probing parameters; per-command
	// overrides merge on top of them.
	Defaults Params

	// Offsets is the probe sensor location relative to the tool.
	Offsets coord.Point

	// OnContact, when set, is called after every refined contact with the
	// final contact position.
	OnContact func(coord.Point)
}

// Probe runs probing sessions over a machine's motion and contact
// sensing.
type Probe struct {
	cfg     Config
	session Session
}

// New validates cfg, defaults included, and returns a ready Probe.
func New(cfg Config) (*Probe, error) {
	if cfg.Motion == nil {
		return nil, fmt.Errorf("%w: motion is required", ErrInvalidConfig)
	}
	if cfg.Limits == nil {
		return nil, fmt.Errorf("%w: limits are required", ErrInvalidConfig)
	}
	for i, c := range cfg.Contacts {
		if c == nil {
			return nil, fmt.Errorf("%w: contact probe missing for axis %d", ErrInvalidConfig, i)
		}
	}
	if err := cfg.Defaults.validate(); err != nil {
		return nil, err
	}

	p := &Probe{cfg: cfg}
	p.session.p = p
	return p, nil
}

// Params merges per-command overrides onto the configured defaults and
// validates the merged set.
func (p *Probe) Params(ov Override) (Params, error) {
	merged := p.cfg.Defaults.merge(ov)
	if err := merged.validate(); err != nil {
		return Params{}, err
	}
	return merged, nil
}

// Offsets returns the sensor offsets from the tool position.
func (p *Probe) Offsets() coord.Point { return p.cfg.Offsets }

// StartSession begins a probing session in the given direction, taking
// exclusive use of that axis's contact capability until End.
func (p *Probe) StartSession(dir Direction) (*Session, error) {
	axis, _, err := dir.Resolve()
	if err != nil {
		return nil, err
	}
	if p.session.pending {
		return nil, fmt.Errorf("%w: session already started", ErrSessionState)
	}
	if err := p.cfg.Contacts[axis].BeginUse(); err != nil {
		return nil, err
	}
	p.session.pending = true
	p.session.axis = axis
	p.session.results = nil
	return &p.session, nil
}

// Single probes once in the given direction and returns the aggregated
// contact position.
func (p *Probe) Single(dir Direction, ov Override) (pos coord.Point, err error) {
	params, err := p.Params(ov)
	if err != nil {
		return pos, err
	}
	s, err := p.StartSession(dir)
	if err != nil {
		return pos, err
	}
	defer func() {
		if err != nil {
			p.HandleCommandError()
		}
	}()

	if err = s.RunSample(dir, params); err != nil {
		return pos, err
	}
	res := s.PullResults()
	if err = s.End(dir); err != nil {
		return pos, err
	}
	return res[0], nil
}

// QueryTriggered reports whether the probe sensor reads triggered as of
// the last completed move.
func (p *Probe) QueryTriggered() (bool, error) {
	return p.cfg.Contacts[coord.AxisZ].Triggered(p.cfg.Motion.LastMoveTime())
}

// HandleCommandError force-ends any pending session after a failed
// command. Cleanup errors are logged, not returned.
func (p *Probe) HandleCommandError() {
	if !p.session.pending {
		return
	}
	if err := p.session.endHeld(); err != nil {
		log.Printf("ERROR: probe session cleanup: %v", err)
	}
}
