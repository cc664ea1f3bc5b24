package coord

import (
	"math"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

type Triangle struct{ A, B, C Point }

// ContainsXY reports whether the 2D projection of the triangle holds
// the point (x,y). Points within Epsilon of an edge count as inside,
// so adjacent triangles cover their shared edges.
func (t Triangle) ContainsXY(x, y float64) bool {
	if !t.boundsXY(x, y) {
		return false
	}

	if t.insideXY(x, y) {
		return true
	}
	if segmentDistSq(t.A.X, t.A.Y, t.B.X, t.B.Y, x, y) <= epsilonSq {
		return true
	}
	if segmentDistSq(t.B.X, t.B.Y, t.C.X, t.C.Y, x, y) <= epsilonSq {
		return true
	}
	if segmentDistSq(t.C.X, t.C.Y, t.A.X, t.A.Y, x, y) <= epsilonSq {
		return true
	}

	return false
}

// Z gives the Z-coordinate where the plane defined by the triangle
// intersects the vertical line through (x,y).
func (t Triangle) Z(x, y float64) float64 {
	ac := t.C.Sub(t.A)
	ab := t.B.Sub(t.A)

	cp := ac.Cross(ab)
	a, b, c := cp.X, cp.Y, cp.Z

	d := cp.Dot(t.C)

	return (d - a*x - b*y) / c
}

// containment test adapted from
// https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html

func (t Triangle) boundsXY(x, y float64) bool {
	xMin := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	xMax := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	yMin := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	yMax := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon

	return x >= xMin && x <= xMax && y >= yMin && y <= yMax
}

func side(x1, y1, x2, y2, x, y float64) float64 {
	return (y2-y1)*(x-x1) + (-x2+x1)*(y-y1)
}

// insideXY is the plain half-plane test, true when (x,y) is on the
// same side of all three directed edges. The winding must match what
// the delaunay triangulation emits.
func (t Triangle) insideXY(x, y float64) bool {
	return side(t.A.X, t.A.Y, t.B.X, t.B.Y, x, y) >= 0 &&
		side(t.B.X, t.B.Y, t.C.X, t.C.Y, x, y) >= 0 &&
		side(t.C.X, t.C.Y, t.A.X, t.A.Y, x, y) >= 0
}

// segmentDistSq is the squared distance from (x,y) to the segment
// from (x1,y1) to (x2,y2).
func segmentDistSq(x1, y1, x2, y2, x, y float64) float64 {
	lenSq := (x2-x1)*(x2-x1) + (y2-y1)*(y2-y1)
	dot := ((x-x1)*(x2-x1) + (y-y1)*(y2-y1)) / lenSq
	if dot < 0 {
		return (x-x1)*(x-x1) + (y-y1)*(y-y1)
	}
	if dot <= 1 {
		startSq := (x1-x)*(x1-x) + (y1-y)*(y1-y)
		return startSq - dot*dot*lenSq
	}

	return (x-x2)*(x-x2) + (y-y2)*(y-y2)
}
