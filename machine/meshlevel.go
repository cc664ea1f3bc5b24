package machine

import (
	"errors"
	"io"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
	"github.com/mastercactapus/gprobe/meshlevel"
)

// ReadFromLevel streams a gcode program with surface leveling applied,
// using mesh points from a prior ProbeMesh.
func (m *Machine) ReadFromLevel(r io.Reader, granularity float64, points []coord.Point) (int64, error) {
	stat := m.CurrentState()
	if stat.Status != "Idle" {
		return 0, errors.New("machine not idle")
	}

	// mesh points are probed in machine coordinates, but the leveler
	// tracks the program in work coordinates
	wpts := make([]coord.Point, len(points))
	for i, p := range points {
		wpts[i] = coord.Point{X: p.X - stat.WCO.X, Y: p.Y - stat.WCO.Y, Z: p.Z}
	}

	mesh, err := meshlevel.NewMesh(wpts)
	if err != nil {
		return 0, err
	}
	cfg := meshlevel.Config{
		ZOffsetter: mesh,

		MPos: stat.MPos,
		WCO:  stat.WCO,

		Granularity: granularity,
		Reader:      gcode.NewParser(r),
	}

	return m.ReadFrom(gcode.NewBuffer(meshlevel.New(cfg)))
}
