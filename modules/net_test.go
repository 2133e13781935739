package modules

import (
	"testing"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/recattn"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

var (
	_ recattn.Module       = (*NetModule)(nil)
	_ recattn.Checkpointer = (*NetModule)(nil)
	_ recattn.Cloner       = (*NetModule)(nil)
)

// varGrad approximates the gradient of f with respect to
// the entries of v.
func varGrad(v *anydiff.Var, f func() float64) []float64 {
	orig := vectorData(v.Vector)
	data := append([]float64{}, orig...)
	res := numericGrad(data, func() float64 {
		v.Vector.SetData(data)
		return f()
	})
	v.Vector.SetData(orig)
	return res
}

func TestNetModuleGradients(t *testing.T) {
	layer := anynet.Net{
		anynet.NewFC(creator, 3, 2),
		anynet.Tanh,
	}
	n := NewNetModule(layer)
	if len(n.Parameters()) != 3*2+2 {
		t.Fatalf("unexpected parameter count %d", len(n.Parameters()))
	}

	in := mat.NewDense(3, 2, []float64{0.5, -1, 0.25, 2, -0.3, 0.1})
	gy := mat.NewDense(2, 2, []float64{1, -0.5, 0.25, 2})
	loss := func() float64 {
		return dotLoss(n.Forward(in), gy)
	}

	loss()
	down := n.Backward(in, gy)
	n.Gradient(in, gy)
	paramGrad := append([]float64{}, n.GradientStorage()...)

	t.Run("Input", func(t *testing.T) {
		expected := numericGrad(in.RawMatrix().Data, loss)
		checkClose(t, "input gradient", expected,
			mat.DenseCopyOf(down).RawMatrix().Data, fdPrec)
	})

	t.Run("Params", func(t *testing.T) {
		var expected []float64
		for _, p := range n.params {
			expected = append(expected, varGrad(p, loss)...)
		}
		checkClose(t, "parameter gradient", expected, paramGrad, fdPrec)
	})
}

func TestNetModuleCheckpoint(t *testing.T) {
	n := NewNetModule(anynet.Net{anynet.NewFC(creator, 2, 2), anynet.Sigmoid})
	in1 := mat.NewDense(2, 1, []float64{1, -1})
	in2 := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	gy := mat.NewDense(2, 1, []float64{1, 2})

	n.Forward(in1)
	expected := n.Backward(in1, gy)

	n.Forward(in1)
	c := n.Checkpoint()
	n.Forward(in2)
	n.Restore(c)
	n.Gradient(nil, nil)
	checkClose(t, "gradient after restore", make([]float64, 6), n.GradientStorage(), 0)

	actual := n.Backward(nil, gy)
	if !mat.EqualApprox(expected, actual, 1e-8) {
		t.Errorf("expected %v but got %v", mat.Formatted(expected), mat.Formatted(actual))
	}
}

func TestNetModuleSerialize(t *testing.T) {
	n := NewNetModule(anynet.Net{anynet.NewFC(creator, 2, 3), anynet.Tanh})
	data, err := serializer.SerializeAny(n)
	if err != nil {
		t.Fatal(err)
	}
	var res *NetModule
	if err := serializer.DeserializeAny(data, &res); err != nil {
		t.Fatal(err)
	}
	checkClose(t, "params", n.Parameters(), res.Parameters(), 0)

	in := mat.NewDense(2, 1, []float64{0.3, -0.7})
	if !mat.EqualApprox(n.Forward(in), res.Forward(in), 1e-8) {
		t.Error("outputs differ after round trip")
	}
}

func TestNetModuleClone(t *testing.T) {
	n := NewNetModule(anynet.Net{anynet.NewFC(creator, 2, 2), anynet.Tanh})
	clone := n.Clone().(*NetModule)
	checkClose(t, "params", n.Parameters(), clone.Parameters(), 0)
	for i, p := range clone.params {
		if p == n.params[i] {
			t.Fatal("clone shares a parameter")
		}
	}

	data := vectorData(clone.params[0].Vector)
	data[0] += 1
	clone.params[0].Vector.SetData(data)
	if n.Parameters()[0] == clone.Parameters()[0] {
		t.Error("changing the clone changed the original")
	}
}
