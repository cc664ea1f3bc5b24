// Package gcode renders, parses, and interprets the subset of gcode
// the machine layer exchanges with a grbl controller.
package gcode

import (
	"fmt"
	"strings"
)

// Block is one line of gcode.
type Block []Word

func (b Block) String() string {
	var sb strings.Builder
	for _, g := range b {
		sb.WriteString(g.String())
	}
	return sb.String()
}

// Arg returns the value of the named word and whether it is present.
func (b Block) Arg(w byte) (bool, float64) {
	for _, g := range b {
		if g.W == w {
			return true, g.Arg
		}
	}
	return false, 0
}

// SetArg updates the named word in place. A word that is not present
// is left out; use append to add one.
func (b Block) SetArg(w byte, val float64) {
	for i, g := range b {
		if g.W == w {
			b[i].Arg = val
			return
		}
	}
}

// Args returns only the non-modal words, the arguments to whatever
// command the block carries.
func (b Block) Args() Block {
	res := make(Block, 0, len(b))
	for _, g := range b {
		if g.ModalGroup() == ModalGroupNone {
			res = append(res, g)
		}
	}
	return res
}

func (b Block) Clone() Block {
	c := make(Block, len(b))
	copy(c, b)
	return c
}

// Validate checks the rules grbl enforces, no repeated words and at
// most one word per modal group.
func (b Block) Validate() error {
	var checkWord [256]bool
	var checkModal [256]bool

	var m ModalGroup
	for _, g := range b {
		if !g.IsValid() {
			return fmt.Errorf("invalid word %q in block", string(g.W))
		}
		if g.W != 'G' && checkWord[g.W] {
			return fmt.Errorf("word %c repeated in block", g.W)
		}
		checkWord[g.W] = true
		m = g.ModalGroup()
		if m != ModalGroupNone && checkModal[m] {
			return fmt.Errorf("multiple words from modal group of %s", g)
		}
		checkModal[m] = true
	}

	return nil
}
