package gcode

import (
	"bytes"
	"io"
)

// Buffer renders a block stream into wire text, one newline-terminated
// line per block.
type Buffer struct {
	gr  Reader
	buf *bytes.Buffer
	err error
}

var _ io.Reader = &Buffer{}

func NewBuffer(r Reader) *Buffer {
	return &Buffer{gr: r, buf: &bytes.Buffer{}}
}

// Read fills p with rendered lines, pulling blocks as needed. On
// io.EOF the remaining buffered text is drained; any other source
// error sticks and is returned right away.
func (b *Buffer) Read(p []byte) (n int, err error) {
	if b.err == io.EOF {
		return b.buf.Read(p)
	}
	if b.err != nil {
		return 0, b.err
	}

	var block Block
	for b.buf.Len() < len(p) {
		block, b.err = b.gr.Read()
		if b.err == io.EOF {
			return b.buf.Read(p)
		}
		if b.err != nil {
			return 0, b.err
		}
		b.buf.WriteString(block.String() + "\n")
	}

	return b.buf.Read(p)
}
