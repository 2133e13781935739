package modules

import (
	"testing"

	"github.com/unixpickle/recattn"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

var (
	_ recattn.Module       = (*Constant)(nil)
	_ recattn.Checkpointer = (*Constant)(nil)
	_ recattn.Cloner       = (*Constant)(nil)
)

func TestConstant(t *testing.T) {
	c := NewConstant([]float64{1, -2})
	out := c.Forward(mat.NewDense(3, 2, nil))
	expected := mat.NewDense(2, 2, []float64{1, 1, -2, -2})
	if !mat.Equal(out, expected) {
		t.Errorf("expected %v but got %v", mat.Formatted(expected), mat.Formatted(out))
	}

	cp := c.Checkpoint()
	c.Forward(mat.NewDense(1, 1, nil))
	c.Restore(cp)
	down := c.Backward(nil, expected)
	if r, cols := down.Dims(); r != 3 || cols != 2 {
		t.Errorf("unexpected gradient shape %dx%d", r, cols)
	}
	if mat.Sum(down) != 0 {
		t.Error("expected zero gradient")
	}
	if len(c.Parameters()) != 0 || len(c.GradientStorage()) != 0 {
		t.Error("constant should have no parameters")
	}
}

func TestConstantSerialize(t *testing.T) {
	c := NewConstant([]float64{0.5, 3})
	data, err := serializer.SerializeAny(c)
	if err != nil {
		t.Fatal(err)
	}
	var res *Constant
	if err := serializer.DeserializeAny(data, &res); err != nil {
		t.Fatal(err)
	}
	checkClose(t, "value", c.Value, res.Value, 0)
}

func TestConstantDeserializeInvalid(t *testing.T) {
	data, err := serializer.SerializeAny(serializer.Float64Slice{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DeserializeConstant(data); err == nil {
		t.Error("expected error for empty value")
	}
}
