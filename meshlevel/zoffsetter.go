package meshlevel

// ZOffsetter reports the surface height at a work XY position, and
// whether that position is covered at all.
type ZOffsetter interface {
	OffsetZ(x, y float64) (bool, float64)
}

// noOffsetter turns the leveler into a plain splitter.
type noOffsetter struct{}

func (noOffsetter) OffsetZ(x, y float64) (bool, float64) {
	return false, 0
}
