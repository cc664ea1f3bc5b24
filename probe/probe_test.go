package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/stretchr/testify/assert"
)

type fakeMove struct {
	to    coord.Point
	speed float64
}

// fakeRig fakes the motion, limits, and contact collaborators. Contact
// moves pop axis values from the contacts script; an empty script acts
// like a probe that never triggers.
type fakeRig struct {
	pos      coord.Point
	homed    bool
	min, max coord.Point
	offsets  coord.Point

	lastMove  time.Time
	triggered bool
	since     time.Time

	contacts []float64
	endErr   error

	moves        []fakeMove
	contactMoves []fakeMove
	events       []coord.Point
	begun, ended [3]int
}

func newRig() *fakeRig {
	return &fakeRig{
		pos:   coord.Point{X: 10, Y: 20, Z: 30},
		homed: true,
		min:   coord.Point{X: -1000, Y: -1000, Z: -1000},
		max:   coord.Point{X: 1000, Y: 1000, Z: 1000},
	}
}

// script queues one refined sample per axis value: three identical
// contacts, since every sample bounces three times.
func (r *fakeRig) script(axisVals ...float64) {
	for _, v := range axisVals {
		r.contacts = append(r.contacts, v, v, v)
	}
}

func (r *fakeRig) newProbe(t *testing.T) *Probe {
	t.Helper()
	p, err := New(Config{
		Motion: r,
		Limits: r,
		Contacts: [3]ContactProbe{
			&fakeContact{r: r, axis: coord.AxisX},
			&fakeContact{r: r, axis: coord.AxisY},
			&fakeContact{r: r, axis: coord.AxisZ},
		},
		Defaults:  DefaultParams(),
		Offsets:   r.offsets,
		OnContact: func(pos coord.Point) { r.events = append(r.events, pos) },
	})
	if err != nil {
		t.Fatal("new probe:", err)
	}
	return p
}

func (r *fakeRig) Position() coord.Point { return r.pos }
func (r *fakeRig) MoveTo(p coord.Point, speed float64) error {
	r.moves = append(r.moves, fakeMove{to: p, speed: speed})
	r.pos = p
	return nil
}
func (r *fakeRig) LastMoveTime() time.Time            { return r.lastMove }
func (r *fakeRig) Homed() bool                        { return r.homed }
func (r *fakeRig) AxisBounds() (min, max coord.Point) { return r.min, r.max }

func movesAtSpeed(moves []fakeMove, speed float64) []fakeMove {
	var out []fakeMove
	for _, m := range moves {
		if m.speed == speed {
			out = append(out, m)
		}
	}
	return out
}

func movesToZ(moves []fakeMove, z float64) []fakeMove {
	var out []fakeMove
	for _, m := range moves {
		if m.to.Z == z {
			out = append(out, m)
		}
	}
	return out
}

type fakeContact struct {
	r    *fakeRig
	axis int
}

func (c *fakeContact) BeginUse() error {
	c.r.begun[c.axis]++
	return nil
}
func (c *fakeContact) EndUse() error {
	c.r.ended[c.axis]++
	err := c.r.endErr
	c.r.endErr = nil
	return err
}
func (c *fakeContact) ContactMove(target coord.Point, speed float64) (coord.Point, error) {
	c.r.contactMoves = append(c.r.contactMoves, fakeMove{to: target, speed: speed})
	if len(c.r.contacts) == 0 {
		return coord.Point{}, ErrNoContact
	}
	v := c.r.contacts[0]
	c.r.contacts = c.r.contacts[1:]
	c.r.pos = c.r.pos.WithAxis(c.axis, v)
	return c.r.pos, nil
}
func (c *fakeContact) Triggered(since time.Time) (bool, error) {
	c.r.since = since
	return c.r.triggered, nil
}

func TestNew_Validation(t *testing.T) {
	r := newRig()
	contacts := [3]ContactProbe{
		&fakeContact{r: r, axis: 0},
		&fakeContact{r: r, axis: 1},
		&fakeContact{r: r, axis: 2},
	}

	_, err := New(Config{Limits: r, Contacts: contacts, Defaults: DefaultParams()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Motion: r, Contacts: contacts, Defaults: DefaultParams()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Motion: r, Limits: r, Defaults: DefaultParams()})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	bad := DefaultParams()
	bad.Speed = 0
	_, err = New(Config{Motion: r, Limits: r, Contacts: contacts, Defaults: bad})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Motion: r, Limits: r, Contacts: contacts, Defaults: DefaultParams()})
	assert.NoError(t, err)
}

func TestProbe_Single(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(2.5)

	pos, err := p.Single(ZMinus, Override{})
	assert.NoError(t, err)
	assert.InDelta(t, 2.5, pos.Z, 1e-9)
	assert.Equal(t, 10.0, pos.X)
	assert.Equal(t, 20.0, pos.Y)
	assert.Equal(t, 1, r.begun[coord.AxisZ])
	assert.Equal(t, 1, r.ended[coord.AxisZ])
}

func TestProbe_Single_CleanupOnError(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.homed = false

	_, err := p.Single(ZMinus, Override{})
	assert.ErrorIs(t, err, ErrNotHomed)

	// the session was force-ended so a new one can start
	assert.Equal(t, 1, r.ended[coord.AxisZ])
	r.homed = true
	r.script(1.0)
	_, err = p.Single(ZMinus, Override{})
	assert.NoError(t, err)
}

func TestProbe_QueryTriggered(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.triggered = true
	r.lastMove = time.Unix(1234, 0)

	got, err := p.QueryTriggered()
	assert.NoError(t, err)
	assert.True(t, got)
	// the reading must be at least as fresh as the last move
	assert.Equal(t, time.Unix(1234, 0), r.since)
}

func TestProbe_HandleCommandError(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)

	// no-op while idle
	p.HandleCommandError()
	assert.Equal(t, 0, r.ended[coord.AxisZ])

	_, err := p.StartSession(ZMinus)
	assert.NoError(t, err)

	// the cleanup error is swallowed and the capability released
	r.endErr = errors.New("release failed")
	p.HandleCommandError()
	assert.Equal(t, 1, r.ended[coord.AxisZ])

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.End(ZMinus))
}

func TestProbe_Offsets(t *testing.T) {
	r := newRig()
	r.offsets = coord.Point{X: 1, Y: -2, Z: 3}
	p := r.newProbe(t)

	assert.Equal(t, coord.Point{X: 1, Y: -2, Z: 3}, p.Offsets())
}
