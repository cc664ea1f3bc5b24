package gcode

import (
	"fmt"

	"github.com/mastercactapus/gprobe/coord"
)

// VM tracks machine position through a program without executing it.
// It understands the straight-line subset grbl programs are made of;
// arcs and canned cycles are rejected rather than mistracked.
type VM struct {
	pos coord.Point
	wco coord.Point

	modal [256]float64
}

// NewVM returns a VM with grbl's power-on modal state.
func NewVM() *VM {
	vm := &VM{}

	vm.modal[ModalGroupMotion] = 0
	vm.modal[ModalGroupCoordinateSystem] = 54
	vm.modal[ModalGroupPlaneSelection] = 17
	vm.modal[ModalGroupDistanceMode] = 90
	vm.modal[ModalGroupArcDistanceMode] = 91.1
	vm.modal[ModalGroupFeedRateMode] = 94
	vm.modal[ModalGroupUnits] = 21
	vm.modal[ModalGroupCutterCompensationMode] = 40
	vm.modal[ModalGroupToolLength] = 49
	vm.modal[ModalGroupStopping] = 0
	vm.modal[ModalGroupSpindle] = 5
	vm.modal[ModalGroupCoolant] = 9

	return vm
}

func (vm VM) Inches() bool         { return vm.modal[ModalGroupUnits] == 20 }
func (vm VM) RelativeMotion() bool { return vm.modal[ModalGroupDistanceMode] == 91 }

// WPos is the position in work coordinates.
func (vm VM) WPos() coord.Point {
	return vm.pos.Sub(vm.wco)
}

// MPos is the position in machine coordinates.
func (vm VM) MPos() coord.Point {
	return vm.pos
}

func (vm *VM) SetMPos(p coord.Point) {
	vm.pos = p
}

func (vm *VM) SetWCO(p coord.Point) {
	vm.wco = p
}

func (vm VM) WCO() coord.Point {
	return vm.wco
}

// isSupported reports whether the VM can track the word. Anything
// whose position effect it cannot model is unsupported.
func isSupported(g Word) bool {
	if g.IsAxis() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 4, 53, 90, 91, 20, 21, 94:
			return true
		}
	case 'F', 'S', 'P':
		return true
	case 'M':
		switch g.Arg {
		case 0, 1, 2, 3, 4, 5, 30:
			return true
		}
	}

	return false
}

func applyBlock(p coord.Point, b Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

// Run advances the VM through one block.
func (vm *VM) Run(b Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	var machineCoords bool
	for _, g := range b {
		mg := g.ModalGroup()
		if mg != ModalGroupNone && mg != ModalGroupNonModal {
			vm.modal[mg] = g.Arg
		}
		if g == (Word{W: 'G', Arg: 53.0}) {
			machineCoords = true
		}
		if !isSupported(g) {
			return fmt.Errorf("unsupported code: %s", g)
		}
	}

	args := b.Args()
	if len(args) == 0 {
		return nil
	}

	mul := 1.0
	if vm.Inches() {
		mul = 25.4
	}
	if vm.RelativeMotion() {
		vm.pos = vm.pos.Add(applyBlock(coord.Point{}, args, mul))
	} else if machineCoords {
		// G53 moves are always in machine millimeters
		vm.pos = applyBlock(vm.pos, args, 1)
	} else {
		vm.pos = applyBlock(vm.WPos(), args, mul).Add(vm.wco)
	}

	return nil
}
