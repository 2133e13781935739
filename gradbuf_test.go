package recattn

import (
	"testing"

	"gonum.org/v1/gonum/floats"
)

func TestGradBufferRegions(t *testing.T) {
	g := newGradBuffer(3, 0, 2)
	if g.Len() != 5 || g.NumRegions() != 3 {
		t.Fatalf("unexpected layout: len %d regions %d", g.Len(), g.NumRegions())
	}

	first := g.Region(0)
	first[1] = 7
	last := g.Region(2)
	last[0] = 2
	if !floats.Equal(g.Data(), []float64{0, 7, 0, 2, 0}) {
		t.Errorf("regions do not alias buffer: %v", g.Data())
	}
	if len(g.Region(1)) != 0 {
		t.Error("expected empty middle region")
	}

	first = append(first, 100)
	if g.Data()[3] != 2 {
		t.Error("append to a region overwrote the next region")
	}
}

func TestGradBufferAccumulate(t *testing.T) {
	sum := newGradBuffer(2, 1)
	step := newGradBuffer(2, 1)
	for i := 1; i <= 3; i++ {
		step.Zero()
		copy(step.Region(0), []float64{float64(i), 1})
		step.Region(1)[0] = -float64(i)
		sum.Accumulate(step)
	}
	if !floats.Equal(sum.Data(), []float64{6, 3, -6}) {
		t.Errorf("unexpected sum: %v", sum.Data())
	}
	sum.Zero()
	if floats.Sum(sum.Data()) != 0 {
		t.Error("zero failed")
	}
}

func TestGradBufferHasSizes(t *testing.T) {
	var g *gradBuffer
	if g.hasSizes(1, 2) {
		t.Error("nil buffer has no sizes")
	}
	g = newGradBuffer(1, 2)
	if !g.hasSizes(1, 2) || g.hasSizes(2, 1) || g.hasSizes(1, 2, 0) {
		t.Error("hasSizes mismatch")
	}
}
