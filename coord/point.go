// Package coord has the small amount of 3D geometry the probing and
// leveling code shares.
package coord

import (
	"math"
)

// Axis indexes for addressing Point coordinates by number.
const (
	AxisX = 0
	AxisY = 1
	AxisZ = 2
)

type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// Axis returns the coordinate for the given axis index.
func (p Point) Axis(axis int) float64 {
	switch axis {
	case AxisX:
		return p.X
	case AxisY:
		return p.Y
	case AxisZ:
		return p.Z
	}
	panic("coord: invalid axis")
}

// WithAxis returns a copy of p with the given axis coordinate set to val.
func (p Point) WithAxis(axis int, val float64) Point {
	switch axis {
	case AxisX:
		p.X = val
	case AxisY:
		p.Y = val
	case AxisZ:
		p.Z = val
	default:
		panic("coord: invalid axis")
	}
	return p
}

func (p Point) Cross(op Point) Point {
	return Point{
		p.Y*op.Z - p.Z*op.Y,
		p.Z*op.X - p.X*op.Z,
		p.X*op.Y - p.Y*op.X,
	}
}

func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}

func (p Point) Div(val float64) Point {
	p.X /= val
	p.Y /= val
	p.Z /= val
	return p
}

func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// DistanceXY returns the 2D distance from p to (x,y), ignoring Z.
func (p Point) DistanceXY(x, y float64) float64 {
	dx, dy := x-p.X, y-p.Y
	return math.Sqrt(dx*dx + dy*dy)
}
