package machine

import (
	"math"
	"strings"
	"testing"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/probe"
	"github.com/stretchr/testify/assert"
)

func TestGridPoints(t *testing.T) {
	pts := gridPoints(coord.Point{X: 10, Y: 20}, 2, 1, math.Sqrt2)
	assert.Equal(t, []coord.Point{
		{X: 10, Y: 20},
		{X: 11, Y: 20},
		{X: 12, Y: 20},

		// odd rows run back the other way
		{X: 12, Y: 21},
		{X: 11, Y: 21},
		{X: 10, Y: 21},
	}, pts)
}

func TestGridPoints_Spacing(t *testing.T) {
	pts := gridPoints(coord.Point{}, 10, 10, math.Sqrt2)
	assert.Len(t, pts, 121)
	for i := 1; i < len(pts); i++ {
		d := pts[i].DistanceXY(pts[i-1].X, pts[i-1].Y)
		assert.LessOrEqual(t, d, math.Sqrt2+coord.Epsilon)
	}
}

func TestMachine_ProbeMesh(t *testing.T) {
	f := newFakeAdapter()
	var contacts []coord.Point
	m, err := NewMachine(Config{
		Adapter:       f,
		Min:           coord.Point{X: -100, Y: -100, Z: -100},
		Max:           coord.Point{X: 100, Y: 100, Z: 100},
		ProbeDefaults: probe.DefaultParams(),
		OnContact:     func(p coord.Point) { contacts = append(contacts, p) },
	})
	if err != nil {
		t.Fatal("new machine:", err)
	}
	m.mx.Lock()
	m.homed = true
	m.mx.Unlock()

	f.script(
		coord.Point{X: 0, Y: 0, Z: -1},
		coord.Point{X: 1, Y: 0, Z: -1.25},
		coord.Point{X: 1, Y: 1, Z: -1.5},
		coord.Point{X: 0, Y: 1, Z: -0.75},
	)

	pts, err := m.ProbeMesh(MeshOptions{
		DistanceX:    1,
		DistanceY:    1,
		Granularity:  math.Sqrt2,
		TravelHeight: 5,
		Speed:        10,
	})
	assert.NoError(t, err)

	// serpentine corners with Z relative to the first one
	assert.Equal(t, []coord.Point{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: -0.25},
		{X: 1, Y: 1, Z: -0.5},
		{X: 0, Y: 1, Z: 0.25},
	}, pts)

	assert.Equal(t, []coord.Point{
		{X: 0, Y: 0, Z: -1},
		{X: 1, Y: 0, Z: -1.25},
		{X: 1, Y: 1, Z: -1.5},
		{X: 0, Y: 1, Z: -0.75},
	}, contacts)

	assert.Equal(t, []string{
		// first corner
		"G53G1X0Y0Z5F600\nG4P0\n",
		"G53G1X0Y0Z5F600\nG4P0\n",
		"G91G38.3Z-10F300\nG90\n",
		"G53G1X0Y0Z14F600\nG4P0\n",
		"G91G38.3Z-10F30\nG90\n",
		"G53G1X0Y0Z0.5F60\nG4P0\n",
		"G91G38.3Z-10F3\nG90\n",
		"G53G1X0Y0Z-0.85F6\nG4P0\n",

		// second corner
		"G53G1X0Y0Z5F300\nG4P0\n",
		"G53G1X1Y0Z5F600\nG4P0\n",
		"G91G38.3Z-10F300\nG90\n",
		"G53G1X1Y0Z13.75F600\nG4P0\n",
		"G91G38.3Z-10F30\nG90\n",
		"G53G1X1Y0Z0.25F60\nG4P0\n",
		"G91G38.3Z-10F3\nG90\n",
		"G53G1X1Y0Z-1.1F6\nG4P0\n",

		// third corner
		"G53G1X1Y0Z5F300\nG4P0\n",
		"G53G1X1Y1Z5F600\nG4P0\n",
		"G91G38.3Z-10F300\nG90\n",
		"G53G1X1Y1Z13.5F600\nG4P0\n",
		"G91G38.3Z-10F30\nG90\n",
		"G53G1X1Y1Z0F60\nG4P0\n",
		"G91G38.3Z-10F3\nG90\n",
		"G53G1X1Y1Z-1.35F6\nG4P0\n",

		// fourth corner
		"G53G1X1Y1Z5F300\nG4P0\n",
		"G53G1X0Y1Z5F600\nG4P0\n",
		"G91G38.3Z-10F300\nG90\n",
		"G53G1X0Y1Z14.25F600\nG4P0\n",
		"G91G38.3Z-10F30\nG90\n",
		"G53G1X0Y1Z0.75F60\nG4P0\n",
		"G91G38.3Z-10F3\nG90\n",
		"G53G1X0Y1Z-0.6F6\nG4P0\n",

		// final raise before handing off the results
		"G53G1X0Y1Z5F300\nG4P0\n",
	}, f.lines())
}

func TestMachine_ProbeMesh_Validation(t *testing.T) {
	f := newFakeAdapter()
	m := newTestMachine(t, f)

	_, err := m.ProbeMesh(MeshOptions{DistanceY: 1, Granularity: 1, TravelHeight: 5, Speed: 5})
	assert.ErrorIs(t, err, probe.ErrInvalidConfig)

	_, err = m.ProbeMesh(MeshOptions{DistanceX: 1, DistanceY: 1, TravelHeight: 5, Speed: 5})
	assert.ErrorIs(t, err, probe.ErrInvalidConfig)

	assert.Empty(t, f.lines())
}

func TestMachine_ReadFromLevel(t *testing.T) {
	f := newFakeAdapter()
	f.state.MPos = coord.Point{X: 10, Y: 0, Z: 5}
	f.state.WCO = coord.Point{X: 10, Y: 0, Z: 0}
	m := newTestMachine(t, f)

	// machine-coordinate mesh rising 1mm over 10mm of X
	pts := []coord.Point{
		{X: 10, Y: 0, Z: 0},
		{X: 20, Y: 0, Z: 1},
		{X: 10, Y: 10, Z: 0},
		{X: 20, Y: 10, Z: 1},
	}

	n, err := m.ReadFromLevel(strings.NewReader("G91 G0 X3\n"), 1, pts)
	assert.NoError(t, err)
	assert.Equal(t, int64(36), n)
	assert.Equal(t, []string{"G91G0X1Z0.1\nG91G0X1Z0.1\nG91G0X1Z0.1\n"}, f.lines())
}

func TestMachine_ReadFromLevel_NotIdle(t *testing.T) {
	f := newFakeAdapter()
	f.state.Status = "Run"
	m := newTestMachine(t, f)

	_, err := m.ReadFromLevel(strings.NewReader("G0 X1\n"), 1, nil)
	assert.EqualError(t, err, "machine not idle")
	assert.Empty(t, f.lines())
}
