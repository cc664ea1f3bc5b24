package probe

import (
	"testing"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/stretchr/testify/assert"
)

func TestSession_StateMachine(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(1.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.begun[coord.AxisZ])

	// starting again while pending fails without touching the capability
	_, err = p.StartSession(ZMinus)
	assert.ErrorIs(t, err, ErrSessionState)
	assert.Equal(t, 1, r.begun[coord.AxisZ])

	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))
	assert.Len(t, s.PullResults(), 1)
	assert.NoError(t, s.End(ZMinus))
	assert.Equal(t, 1, r.ended[coord.AxisZ])

	// everything but PullResults fails once ended
	assert.ErrorIs(t, s.RunSample(ZMinus, DefaultParams()), ErrSessionState)
	assert.ErrorIs(t, s.End(ZMinus), ErrSessionState)
	assert.Empty(t, s.PullResults())
}

func TestSession_InvalidDirection(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)

	_, err := p.StartSession(Direction("q+"))
	assert.ErrorIs(t, err, ErrInvalidDirection)
	assert.Equal(t, [3]int{}, r.begun)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.ErrorIs(t, s.RunSample(Direction("zz"), DefaultParams()), ErrInvalidDirection)

	// a bad direction fails End before the session is torn down
	assert.ErrorIs(t, s.End(Direction("")), ErrInvalidDirection)
	assert.NoError(t, s.End(ZMinus))
}

func TestSession_EndReleasesBeginAxis(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)

	s, err := p.StartSession(XPlus)
	assert.NoError(t, err)
	assert.Equal(t, 1, r.begun[coord.AxisX])

	// the capability released is the one taken at start, whatever
	// direction End is called with
	assert.NoError(t, s.End(ZMinus))
	assert.Equal(t, 1, r.ended[coord.AxisX])
	assert.Equal(t, 0, r.ended[coord.AxisZ])
}

func TestSession_EndDropsResults(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(1.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))
	assert.NoError(t, s.End(ZMinus))

	// results not pulled before End are gone
	assert.Empty(t, s.PullResults())
}

func TestSession_PullResultsConsumes(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(2.0, 3.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))
	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))

	res := s.PullResults()
	assert.Len(t, res, 2)
	assert.InDelta(t, 2.0, res[0].Z, 1e-9)
	assert.InDelta(t, 3.0, res[1].Z, 1e-9)

	assert.Empty(t, s.PullResults())
	assert.NoError(t, s.End(ZMinus))
}

func TestSession_Bounce(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(5.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))
	assert.NoError(t, s.End(ZMinus))

	// three approaches, each a tenth the speed of the last
	assert.Len(t, r.contactMoves, 3)
	assert.Equal(t, 5.0, r.contactMoves[0].speed)
	assert.Equal(t, 0.5, r.contactMoves[1].speed)
	assert.Equal(t, 0.05, r.contactMoves[2].speed)

	// approach targets are limited by max distance from wherever the
	// prior retract left us
	assert.InDelta(t, 20.0, r.contactMoves[0].to.Z, 1e-9)
	assert.InDelta(t, 10.0, r.contactMoves[1].to.Z, 1e-9)
	assert.InDelta(t, -3.5, r.contactMoves[2].to.Z, 1e-9)

	// each retract backs off three times the approach speed, at twice
	// the approach speed, keeping the recorded XY
	assert.Len(t, r.moves, 3)
	assert.InDelta(t, 20.0, r.moves[0].to.Z, 1e-9)
	assert.InDelta(t, 6.5, r.moves[1].to.Z, 1e-9)
	assert.InDelta(t, 5.15, r.moves[2].to.Z, 1e-9)
	assert.Equal(t, 10.0, r.moves[0].speed)
	assert.Equal(t, 1.0, r.moves[1].speed)
	assert.Equal(t, 0.1, r.moves[2].speed)
	for _, m := range r.moves {
		assert.Equal(t, 10.0, m.to.X)
		assert.Equal(t, 20.0, m.to.Y)
	}

	// one event, carrying the final refined contact
	assert.Len(t, r.events, 1)
	assert.InDelta(t, 5.0, r.events[0].Z, 1e-9)
}

func TestSession_ToleranceRetry(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	// first batch spreads 0.25, the retake settles within tolerance
	r.script(1.00, 1.05, 1.25, 1.00, 1.02, 1.03)

	params := DefaultParams()
	params.Samples = 3
	params.Retries = 1

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(ZMinus, params))

	res := s.PullResults()
	assert.Len(t, res, 1)
	assert.InDelta(t, (1.00+1.02+1.03)/3, res[0].Z, 1e-9)
	assert.InDelta(t, 10.0, res[0].X, 1e-9)
	assert.InDelta(t, 20.0, res[0].Y, 1e-9)

	// retracts happen between samples only: not after the discarded
	// batch, not after the final sample
	assert.Len(t, movesAtSpeed(r.moves, params.LiftSpeed), 4)

	assert.NoError(t, s.End(ZMinus))
}

func TestSession_ToleranceExhausted(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(1.00, 1.25)

	params := DefaultParams()
	params.Samples = 2

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)

	err = s.RunSample(ZMinus, params)
	assert.ErrorIs(t, err, ErrTolerance)
	assert.Contains(t, err.Error(), "spread")

	// the failed batch contributes nothing
	assert.Empty(t, s.PullResults())
	assert.NoError(t, s.End(ZMinus))
}

func TestSession_NoContactHint(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	err = s.RunSample(ZMinus, DefaultParams())
	assert.ErrorIs(t, err, ErrNoContact)
	assert.Contains(t, err.Error(), "consider reducing the z axis minimum position")
	assert.NoError(t, s.End(ZMinus))

	// the travel hint is only useful when probing downward
	s, err = p.StartSession(XPlus)
	assert.NoError(t, err)
	err = s.RunSample(XPlus, DefaultParams())
	assert.ErrorIs(t, err, ErrNoContact)
	assert.NotContains(t, err.Error(), "minimum position")
	assert.NoError(t, s.End(XPlus))
}

func TestSession_NotHomed(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.homed = false
	r.script(1.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.ErrorIs(t, s.RunSample(ZMinus, DefaultParams()), ErrNotHomed)
	assert.Empty(t, r.contactMoves)
	assert.NoError(t, s.End(ZMinus))
}

func TestSession_ClampsToBounds(t *testing.T) {
	r := newRig()
	r.pos = coord.Point{X: 10, Y: 20, Z: -75}
	r.min.Z = -80
	p := r.newProbe(t)
	r.script(-79.0)

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(ZMinus, DefaultParams()))
	assert.InDelta(t, -80.0, r.contactMoves[0].to.Z, 1e-9)
	assert.NoError(t, s.End(ZMinus))
}

func TestSession_ClampsToBoundsPositive(t *testing.T) {
	r := newRig()
	r.max.X = 15
	p := r.newProbe(t)
	r.script(14.0)

	s, err := p.StartSession(XPlus)
	assert.NoError(t, err)
	assert.NoError(t, s.RunSample(XPlus, DefaultParams()))
	assert.InDelta(t, 15.0, r.contactMoves[0].to.X, 1e-9)
	assert.NoError(t, s.End(XPlus))
}

func TestSession_MedianResult(t *testing.T) {
	r := newRig()
	p := r.newProbe(t)
	r.script(1.0, 5.0, 2.0)

	params := DefaultParams()
	params.Samples = 3
	params.Tolerance = 10

	s, err := p.StartSession(ZMinus)
	assert.NoError(t, err)

	params.Result = ResultMedian
	assert.NoError(t, s.RunSample(ZMinus, params))
	res := s.PullResults()
	assert.Len(t, res, 1)
	assert.InDelta(t, 2.0, res[0].Z, 1e-9)
	assert.NoError(t, s.End(ZMinus))
}
