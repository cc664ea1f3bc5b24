package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlock_String(t *testing.T) {
	b := Block{{W: 'G', Arg: 38.3}, {W: 'Z', Arg: -10}, {W: 'F', Arg: 300}}
	assert.Equal(t, "G38.3Z-10F300", b.String())

	// values render at 3 decimals with trailing zeros dropped
	b = Block{{W: 'G', Arg: 1}, {W: 'X', Arg: 2.5}, {W: 'Y', Arg: 1.23456}}
	assert.Equal(t, "G1X2.5Y1.235", b.String())
}

func TestBlock_Arg(t *testing.T) {
	b := MustParse("G1 X5 F100")[0]

	ok, v := b.Arg('X')
	assert.True(t, ok)
	assert.Equal(t, 5.0, v)

	ok, _ = b.Arg('Z')
	assert.False(t, ok)
}

func TestBlock_SetArg(t *testing.T) {
	b := MustParse("G1 X5 F100")[0]

	b.SetArg('X', 7)
	assert.Equal(t, "G1X7F100", b.String())

	// absent words are not added
	b.SetArg('Z', 1)
	assert.Equal(t, "G1X7F100", b.String())
}

func TestBlock_Args(t *testing.T) {
	b := MustParse("G1 X5 Y2 F100")[0]
	assert.Equal(t, Block{{W: 'X', Arg: 5}, {W: 'Y', Arg: 2}}, b.Args())
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, MustParse("G90 G1 X5 F100")[0].Validate())

	err := Block{{W: 'X', Arg: 1}, {W: 'X', Arg: 2}}.Validate()
	assert.EqualError(t, err, "word X repeated in block")

	err = Block{{W: 'G', Arg: 0}, {W: 'G', Arg: 1}}.Validate()
	assert.EqualError(t, err, "multiple words from modal group of G1")

	err = Block{{W: 'g', Arg: 0}}.Validate()
	assert.EqualError(t, err, `invalid word "g" in block`)
}
