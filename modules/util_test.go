package modules

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	fdEpsilon = 1e-5
	fdPrec    = 1e-4
)

// dotLoss computes the sum of the entrywise product of a
// and b.
func dotLoss(a, b *mat.Dense) float64 {
	var prod mat.Dense
	prod.MulElem(a, b)
	return mat.Sum(&prod)
}

// numericGrad approximates the gradient of f with respect
// to every entry of data, which f must read.
func numericGrad(data []float64, f func() float64) []float64 {
	res := make([]float64, len(data))
	for i := range data {
		old := data[i]
		data[i] = old + fdEpsilon
		plus := f()
		data[i] = old - fdEpsilon
		minus := f()
		data[i] = old
		res[i] = (plus - minus) / (2 * fdEpsilon)
	}
	return res
}

func checkClose(t *testing.T, name string, expected, actual []float64, prec float64) {
	t.Helper()
	if len(expected) != len(actual) {
		t.Errorf("%s: expected length %d but got %d", name, len(expected), len(actual))
		return
	}
	if diff := floats.Distance(expected, actual, math.Inf(1)); diff > prec {
		t.Errorf("%s: expected %v but got %v", name, expected, actual)
	}
}

func TestVectorConversion(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	v := toVector(m)
	checkClose(t, "packed", []float64{1, 4, 2, 5, 3, 6}, vectorData(v), 0)
	if !mat.Equal(fromVector(v, 3), m) {
		t.Error("fromVector did not invert toVector")
	}
}

func TestWriteGrad(t *testing.T) {
	dst := []float64{1, 2, 3}
	writeGrad(dst, []float64{4, 5, 6})
	checkClose(t, "copy", []float64{4, 5, 6}, dst, 0)
	writeGrad(dst, nil)
	checkClose(t, "zero", []float64{0, 0, 0}, dst, 0)
}
