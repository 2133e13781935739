// Package modules provides sub-modules for recurrent
// attention cells.
//
// Linear and Constant operate on gonum matrices directly.
// NetModule and BlockModule wrap anynet layers and anyrnn
// blocks, which must be built with anyvec64.
package modules

import (
	"fmt"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec64"
	"github.com/unixpickle/recattn/internal/pack"
	"gonum.org/v1/gonum/mat"
)

var creator = anyvec64.DefaultCreator{}

func toVector(m mat.Matrix) anyvec.Vector {
	return creator.MakeVectorData(pack.Flatten(m))
}

func vectorData(v anyvec.Vector) []float64 {
	return v.Data().([]float64)
}

func fromVector(v anyvec.Vector, cols int) *mat.Dense {
	data := vectorData(v)
	if cols == 0 || len(data)%cols != 0 {
		panic("vector does not divide into batch")
	}
	return pack.Unflatten(data, len(data)/cols, cols)
}

func varsData(vars []*anydiff.Var) []float64 {
	var res []float64
	for _, v := range vars {
		res = append(res, vectorData(v.Vector)...)
	}
	return res
}

func gradData(g anydiff.Grad, vars []*anydiff.Var) []float64 {
	var res []float64
	for _, v := range vars {
		res = append(res, vectorData(g[v])...)
	}
	return res
}

// writeGrad copies src into dst, or zeros dst if src is
// nil.
func writeGrad(dst, src []float64) {
	if src == nil {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	if len(src) != len(dst) {
		panic("gradient storage has wrong length")
	}
	copy(dst, src)
}

func checkStorage(g []float64, numParams int) {
	if len(g) != numParams {
		panic("gradient storage has wrong length")
	}
}

type parameterizer interface {
	Parameters() []*anydiff.Var
}

func parameters(obj interface{}) []*anydiff.Var {
	if p, ok := obj.(parameterizer); ok {
		return p.Parameters()
	}
	return nil
}

func errParamCount(expected, actual int) error {
	return fmt.Errorf("expected %d parameters but got %d", expected, actual)
}
