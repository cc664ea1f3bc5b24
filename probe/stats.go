package probe

import (
	"sort"

	"github.com/mastercactapus/gprobe/coord"
)

// Mean returns the coordinate-wise arithmetic mean of pts.
//
// pts must not be empty.
func Mean(pts []coord.Point) coord.Point {
	var sum coord.Point
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Div(float64(len(pts)))
}

// Median returns the middle sample when pts are ordered by the given axis
// coordinate. An odd count yields that sample unchanged, all three
// coordinates included; an even count yields the Mean of the two middle
// samples. Equal axis values keep their original order.
//
// pts must not be empty; the input is never modified.
func Median(pts []coord.Point, axis int) coord.Point {
	sorted := make([]coord.Point, len(pts))
	copy(sorted, pts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Axis(axis) < sorted[j].Axis(axis)
	})

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return Mean(sorted[mid-1 : mid+1])
}
