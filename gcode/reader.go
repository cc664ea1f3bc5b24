package gcode

import "io"

// Reader is a source of blocks, returning io.EOF when the program
// ends.
type Reader interface {
	Read() (Block, error)
}

// BlocksReader serves an in-memory program as a Reader.
type BlocksReader struct {
	Blocks []Block
	next   int
}

func (b *BlocksReader) Read() (Block, error) {
	if b.next == len(b.Blocks) {
		return nil, io.EOF
	}

	b.next++
	return b.Blocks[b.next-1], nil
}
