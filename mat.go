package recattn

import "gonum.org/v1/gonum/mat"

func numElems(m mat.Matrix) int {
	r, c := m.Dims()
	return r * c
}

func sameShape(a, b mat.Matrix) bool {
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()
	return r1 == r2 && c1 == c2
}

func copyDense(m *mat.Dense) *mat.Dense {
	if m == nil {
		return nil
	}
	return mat.DenseCopyOf(m)
}
