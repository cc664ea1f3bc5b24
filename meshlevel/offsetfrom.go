package meshlevel

import (
	"github.com/mastercactapus/gprobe/coord"
)

// OffsetFrom rebases the Z of every point against z, typically the
// height of the first probed point. The result is a copy.
func OffsetFrom(z float64, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	copy(p, points)

	for i := range p {
		p[i].Z -= z
	}
	return p
}
