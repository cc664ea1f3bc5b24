package machine

import (
	"fmt"
	"math"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/meshlevel"
	"github.com/mastercactapus/gprobe/probe"
)

// MeshOptions configure a surface probe over a grid extending +X/+Y
// from the current position.
type MeshOptions struct {
	// DistanceX and DistanceY are the grid extents, in mm.
	DistanceX, DistanceY float64

	// Granularity is the maximum spacing between adjacent grid points.
	Granularity float64

	// TravelHeight is the machine Z used for moves between points.
	TravelHeight float64

	// Speed is the XY travel speed between points (mm/s).
	Speed float64

	// UseOffsets aims the probe sensor, instead of the tool, at each
	// point.
	UseOffsets bool

	Override probe.Override
}

// ProbeMesh probes a serpentine grid over the configured area. The
// returned points are machine coordinates with Z relative to the
// surface at the starting corner, ready for ReadFromLevel.
func (m *Machine) ProbeMesh(opt MeshOptions) ([]coord.Point, error) {
	if opt.DistanceX <= 0 || opt.DistanceY <= 0 {
		return nil, fmt.Errorf("%w: mesh distances must be positive", probe.ErrInvalidConfig)
	}
	if opt.Granularity <= 0 {
		return nil, fmt.Errorf("%w: granularity must be positive", probe.ErrInvalidConfig)
	}

	origin := m.Position()
	var results []coord.Point
	err := m.probe.RunPoints(probe.PointsOptions{
		Points:       gridPoints(origin, opt.DistanceX, opt.DistanceY, opt.Granularity),
		TravelHeight: opt.TravelHeight,
		Speed:        opt.Speed,
		UseOffsets:   opt.UseOffsets,
		Override:     opt.Override,
		Finalize: func(_ coord.Point, res []coord.Point) (bool, error) {
			// fail while still at travel height if the surface can't
			// triangulate
			if _, err := meshlevel.NewMesh(res); err != nil {
				return false, err
			}
			results = res
			return false, nil
		},
	})
	if err != nil {
		return nil, err
	}

	return meshlevel.OffsetFrom(results[0].Z, results), nil
}

// gridPoints lays out a serpentine grid covering distX by distY from
// origin, with no two adjacent points farther than granularity apart.
func gridPoints(origin coord.Point, distX, distY, granularity float64) []coord.Point {
	xyDist := math.Sqrt(granularity * granularity / 2)

	xCount := int(math.Ceil(distX / xyDist))
	yCount := int(math.Ceil(distY / xyDist))

	pts := make([]coord.Point, 0, (xCount+1)*(yCount+1))
	for y := 0; y <= yCount; y++ {
		for x := 0; x <= xCount; x++ {
			xVal := distX / float64(xCount) * float64(x)
			if y%2 != 0 {
				xVal = distX - xVal
			}
			pts = append(pts, coord.Point{
				X: origin.X + xVal,
				Y: origin.Y + distY/float64(yCount)*float64(y),
			})
		}
	}
	return pts
}
