// Package pack converts between gonum batch matrices and
// packed vectors.
//
// A batch stores one entry per column.
// Packing lays the columns out one after another, which is
// the batch layout used by anyvec.
package pack

import "gonum.org/v1/gonum/mat"

// Flatten returns the entries of m in column-major order,
// so that each batch entry is contiguous.
func Flatten(m mat.Matrix) []float64 {
	rows, cols := m.Dims()
	res := make([]float64, 0, rows*cols)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			res = append(res, m.At(i, j))
		}
	}
	return res
}

// Unflatten is the inverse of Flatten.
// It panics if data does not have rows*cols entries.
func Unflatten(data []float64, rows, cols int) *mat.Dense {
	if len(data) != rows*cols {
		panic("packed data does not match shape")
	}
	res := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			res.Set(i, j, data[j*rows+i])
		}
	}
	return res
}
