package gcode

import (
	"io"
	"strings"
)

// Parse returns all blocks of a complete program.
func Parse(data string) ([]Block, error) {
	r := NewParser(strings.NewReader(data))
	var b []Block
	for {
		bl, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		b = append(b, bl)
	}
	return b, nil
}

// MustParse is Parse for static programs, panicking on error.
func MustParse(data string) []Block {
	b, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return b
}
