package recattn_test

import (
	"math/rand"
	"testing"

	"github.com/unixpickle/recattn"
	"github.com/unixpickle/recattn/modules"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

func TestCellSerialize(t *testing.T) {
	gen := rand.New(rand.NewSource(1))
	cell, err := recattn.NewCell(2, randomLinear(gen, 4, 2),
		modules.NewConstant([]float64{0.5, -0.5}), 3)
	if err != nil {
		t.Fatal(err)
	}

	data, err := serializer.SerializeAny(cell)
	if err != nil {
		t.Fatal(err)
	}
	var decoded *recattn.Cell
	if err := serializer.DeserializeAny(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if decoded.Rho() != 3 || decoded.OutSize() != 2 {
		t.Errorf("unexpected configuration: rho %d, out size %d", decoded.Rho(),
			decoded.OutSize())
	}
	assertClose(t, "parameters", cell.Parameters(), decoded.Parameters())

	in := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	expected, err := cell.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	actual, err := decoded.Forward(in)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "output", packCols(expected), packCols(actual))

	if _, err := decoded.Backward(in, mat.NewDense(2, 2, nil)); err != nil {
		t.Errorf("backward after decode: %v", err)
	}
}

// opaqueModule is a Module which cannot be serialized.
type opaqueModule struct {
	c *modules.Constant
}

func (o opaqueModule) Forward(in *mat.Dense) *mat.Dense { return o.c.Forward(in) }
func (o opaqueModule) Backward(in, gy *mat.Dense) *mat.Dense { return o.c.Backward(in, gy) }
func (o opaqueModule) Gradient(in, err *mat.Dense) {}
func (o opaqueModule) OutputParameter() *mat.Dense { return o.c.OutputParameter() }
func (o opaqueModule) SetOutputParameter(m *mat.Dense) { o.c.SetOutputParameter(m) }
func (o opaqueModule) Parameters() []float64 { return nil }
func (o opaqueModule) GradientStorage() []float64 { return nil }
func (o opaqueModule) SetGradientStorage(g []float64) {}
func (o opaqueModule) Clone() recattn.Module {
	return opaqueModule{modules.NewConstant(o.c.Value)}
}

func TestCellSerializeUnsupported(t *testing.T) {
	gen := rand.New(rand.NewSource(1))
	cell, err := recattn.NewCell(2, randomLinear(gen, 4, 2),
		opaqueModule{modules.NewConstant([]float64{1, 1})}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cell.Serialize(); err == nil {
		t.Error("expected error for unserializable action module")
	}
}
