package recattn

import "gonum.org/v1/gonum/floats"

// A gradBuffer is a flat gradient vector split into
// consecutive regions, one per module.
//
// Regions are views into the same backing slice.
// Writing to a region changes the buffer and vice versa.
type gradBuffer struct {
	data    []float64
	offsets []int
}

func newGradBuffer(sizes ...int) *gradBuffer {
	offsets := make([]int, len(sizes)+1)
	for i, size := range sizes {
		if size < 0 {
			panic("negative region size")
		}
		offsets[i+1] = offsets[i] + size
	}
	return &gradBuffer{
		data:    make([]float64, offsets[len(sizes)]),
		offsets: offsets,
	}
}

// Len returns the total number of entries.
func (g *gradBuffer) Len() int {
	return len(g.data)
}

// NumRegions returns the number of regions.
func (g *gradBuffer) NumRegions() int {
	return len(g.offsets) - 1
}

// RegionSize returns the length of the i-th region.
func (g *gradBuffer) RegionSize(i int) int {
	return g.offsets[i+1] - g.offsets[i]
}

// Region returns the i-th region.
//
// The capacity of the result is capped so that appending
// to it cannot overwrite the next region.
func (g *gradBuffer) Region(i int) []float64 {
	start, end := g.offsets[i], g.offsets[i+1]
	return g.data[start:end:end]
}

// Data returns the whole backing slice.
func (g *gradBuffer) Data() []float64 {
	return g.data
}

// Zero sets every entry to zero.
func (g *gradBuffer) Zero() {
	for i := range g.data {
		g.data[i] = 0
	}
}

// Accumulate adds the contents of other to g.
func (g *gradBuffer) Accumulate(other *gradBuffer) {
	floats.Add(g.data, other.data)
}

// hasSizes checks if the regions of g have the given
// sizes.
func (g *gradBuffer) hasSizes(sizes ...int) bool {
	if g == nil || g.NumRegions() != len(sizes) {
		return false
	}
	for i, size := range sizes {
		if g.RegionSize(i) != size {
			return false
		}
	}
	return true
}
