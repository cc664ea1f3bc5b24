// Package meshlevel rewrites a gcode stream so it follows a probed
// surface, adjusting Z as the tool moves across the mesh.
package meshlevel

import (
	"math"

	"github.com/mastercactapus/gprobe/coord"
	"github.com/mastercactapus/gprobe/gcode"
)

// MeshLeveler is a gcode.Reader that splits long moves to the mesh
// granularity and offsets each one's Z by the surface height at its
// endpoint. Moves that start or end off the mesh pass through
// untouched.
type MeshLeveler struct {
	granularity float64
	offsetter   ZOffsetter

	queue  []gcode.Block
	queueN int

	splitVM *gcode.VM
	levelVM *gcode.VM

	src gcode.Reader
}

type Config struct {
	ZOffsetter  ZOffsetter
	Granularity float64

	// MPos and WCO seed the position tracking; the offsetter is
	// queried in work coordinates.
	MPos, WCO coord.Point

	Reader gcode.Reader
}

func New(cfg Config) *MeshLeveler {
	l := &MeshLeveler{
		splitVM: gcode.NewVM(),
		levelVM: gcode.NewVM(),

		granularity: cfg.Granularity,
		src:         cfg.Reader,

		offsetter: cfg.ZOffsetter,
	}
	if l.offsetter == nil {
		l.offsetter = noOffsetter{}
	}
	l.splitVM.SetMPos(cfg.MPos)
	l.levelVM.SetMPos(cfg.MPos)

	l.splitVM.SetWCO(cfg.WCO)
	l.levelVM.SetWCO(cfg.WCO)

	return l
}

func (l *MeshLeveler) Read() (gcode.Block, error) {
	b, err := l.next()
	if err != nil {
		return nil, err
	}

	oldPos := l.levelVM.WPos()
	err = l.levelVM.Run(b)
	if err != nil {
		return nil, err
	}
	newPos := l.levelVM.WPos()
	if oldPos.Equal(newPos) {
		return b, nil
	}

	// both endpoints need a surface height, otherwise the move is
	// entering or leaving the mesh and is left alone
	ok, oldOffset := l.offsetter.OffsetZ(oldPos.X, oldPos.Y)
	if !ok {
		return b, nil
	}
	ok, newOffset := l.offsetter.OffsetZ(newPos.X, newPos.Y)
	if !ok {
		return b, nil
	}

	if l.levelVM.RelativeMotion() {
		// relative deltas accumulate on their own, so each move only
		// carries the surface change across it
		delta := newOffset - oldOffset
		if delta == 0 {
			return b, nil
		}
		b = b.Clone()
		if hasZ, z := b.Arg('Z'); hasZ {
			b.SetArg('Z', z+delta)
		} else {
			b = append(b, gcode.Word{W: 'Z', Arg: delta})
		}
		return b, nil
	}

	// absolute moves are re-based onto the surface at their endpoint
	z := newPos.Z + newOffset
	b = b.Clone()
	if hasZ, _ := b.Arg('Z'); hasZ {
		b.SetArg('Z', z)
	} else {
		b = append(b, gcode.Word{W: 'Z', Arg: z})
	}

	return b, nil
}

// next returns the upcoming block, splitting any move longer than the
// granularity into even sub-moves first.
func (l *MeshLeveler) next() (gcode.Block, error) {
	if len(l.queue)-l.queueN > 0 {
		l.queueN++
		return l.queue[l.queueN-1], nil
	}
	b, err := l.src.Read()
	if err != nil {
		return nil, err
	}

	oldPos := l.splitVM.WPos()
	err = l.splitVM.Run(b)
	if err != nil {
		return nil, err
	}
	newPos := l.splitVM.WPos()
	if oldPos.Equal(newPos) {
		return b, nil
	}
	dist := oldPos.DistanceXY(newPos.X, newPos.Y)
	if dist <= l.granularity {
		return b, nil
	}

	n := int(math.Ceil(dist / l.granularity))
	step := newPos.Sub(oldPos).Div(float64(n))

	l.queue = l.queue[:0]
	if l.splitVM.RelativeMotion() {
		bl := b.Clone()
		bl.SetArg('X', step.X)
		bl.SetArg('Y', step.Y)
		bl.SetArg('Z', step.Z)

		for i := 1; i <= n; i++ {
			l.queue = append(l.queue, bl)
		}
	} else {
		for i := 1; i <= n; i++ {
			bl := b.Clone()
			bl.SetArg('X', oldPos.X+step.X*float64(i))
			bl.SetArg('Y', oldPos.Y+step.Y*float64(i))
			bl.SetArg('Z', oldPos.Z+step.Z*float64(i))

			l.queue = append(l.queue, bl)
		}
	}

	l.queueN = 1
	return l.queue[0], nil
}
