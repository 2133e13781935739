package modules

import (
	"errors"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/recattn"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

func init() {
	var c Constant
	serializer.RegisterTypedDeserializer(c.SerializerType(), DeserializeConstant)
}

// Constant is a parameter-free module which outputs the
// same vector for every column of its input.
//
// It is useful as an action module which always proposes
// the same location.
type Constant struct {
	Value []float64

	inRows int
	inCols int
	output *mat.Dense
}

// NewConstant creates a Constant module.
func NewConstant(value []float64) *Constant {
	if len(value) == 0 {
		panic("empty constant")
	}
	return &Constant{Value: append([]float64{}, value...)}
}

// DeserializeConstant deserializes a Constant module.
func DeserializeConstant(d []byte) (*Constant, error) {
	var value serializer.Float64Slice
	if err := serializer.DeserializeAny(d, &value); err != nil {
		return nil, essentials.AddCtx("deserialize Constant", err)
	}
	if len(value) == 0 {
		return nil, essentials.AddCtx("deserialize Constant", errors.New("empty constant"))
	}
	return NewConstant(value), nil
}

// Forward produces one copy of Value per input column.
func (c *Constant) Forward(in *mat.Dense) *mat.Dense {
	c.inRows, c.inCols = in.Dims()
	out := mat.NewDense(len(c.Value), c.inCols, nil)
	for j := 0; j < c.inCols; j++ {
		out.SetCol(j, c.Value)
	}
	c.output = out
	return out
}

// Backward returns zeros shaped like the input of the last
// Forward.
func (c *Constant) Backward(in, gy *mat.Dense) *mat.Dense {
	if c.inCols == 0 {
		panic("backward before forward")
	}
	return mat.NewDense(c.inRows, c.inCols, nil)
}

// Gradient does nothing, since there are no parameters.
func (c *Constant) Gradient(in, err *mat.Dense) {
}

func (c *Constant) OutputParameter() *mat.Dense {
	return c.output
}

func (c *Constant) SetOutputParameter(m *mat.Dense) {
	c.output = m
}

func (c *Constant) Parameters() []float64 {
	return nil
}

func (c *Constant) GradientStorage() []float64 {
	return nil
}

func (c *Constant) SetGradientStorage(g []float64) {
	checkStorage(g, 0)
}

// Checkpoint saves the input shape of the last Forward.
func (c *Constant) Checkpoint() interface{} {
	return [2]int{c.inRows, c.inCols}
}

// Restore restores a shape saved by Checkpoint.
func (c *Constant) Restore(obj interface{}) {
	shape := obj.([2]int)
	c.inRows, c.inCols = shape[0], shape[1]
}

// Clone copies the module.
func (c *Constant) Clone() recattn.Module {
	return NewConstant(c.Value)
}

// SerializerType returns the unique ID used to serialize
// a Constant module with the serializer package.
func (c *Constant) SerializerType() string {
	return "github.com/unixpickle/recattn/modules.Constant"
}

// Serialize serializes the module.
func (c *Constant) Serialize() ([]byte, error) {
	return serializer.SerializeAny(serializer.Float64Slice(c.Value))
}
