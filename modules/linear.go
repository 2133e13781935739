package modules

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/recattn"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

func init() {
	var l Linear
	serializer.RegisterTypedDeserializer(l.SerializerType(), DeserializeLinear)
}

// Linear is a fully-connected layer computing W*x + b for
// every column x of its input.
//
// The parameter vector holds W in row-major order,
// followed by b.
type Linear struct {
	inSize  int
	outSize int

	params []float64
	grad   []float64

	input  *mat.Dense
	output *mat.Dense
}

// NewLinear creates a Linear module with all parameters
// set to zero.
func NewLinear(inSize, outSize int) *Linear {
	if inSize < 1 || outSize < 1 {
		panic("invalid layer size")
	}
	n := outSize*inSize + outSize
	return &Linear{
		inSize:  inSize,
		outSize: outSize,
		params:  make([]float64, n),
		grad:    make([]float64, n),
	}
}

// DeserializeLinear deserializes a Linear module.
func DeserializeLinear(d []byte) (*Linear, error) {
	var inSize, outSize serializer.Int
	var params serializer.Float64Slice
	if err := serializer.DeserializeAny(d, &inSize, &outSize, &params); err != nil {
		return nil, essentials.AddCtx("deserialize Linear", err)
	}
	if inSize < 1 || outSize < 1 {
		return nil, essentials.AddCtx("deserialize Linear",
			fmt.Errorf("invalid layer size %dx%d", outSize, inSize))
	}
	res := NewLinear(int(inSize), int(outSize))
	if len(params) != len(res.params) {
		return nil, essentials.AddCtx("deserialize Linear",
			errParamCount(len(res.params), len(params)))
	}
	copy(res.params, params)
	return res, nil
}

// Randomize initializes the weights uniformly in
// [-1/sqrt(inSize), 1/sqrt(inSize)] and the biases to
// zero.
func (l *Linear) Randomize(gen *rand.Rand) {
	scale := 1 / math.Sqrt(float64(l.inSize))
	weights := l.params[:l.inSize*l.outSize]
	for i := range weights {
		weights[i] = (gen.Float64()*2 - 1) * scale
	}
	for i := range l.biases() {
		l.biases()[i] = 0
	}
}

// InSize returns the number of input rows.
func (l *Linear) InSize() int {
	return l.inSize
}

// OutSize returns the number of output rows.
func (l *Linear) OutSize() int {
	return l.outSize
}

// Weights returns a view of the weight matrix.
// Modifying the view modifies the parameters.
func (l *Linear) Weights() *mat.Dense {
	return mat.NewDense(l.outSize, l.inSize, l.params[:l.outSize*l.inSize])
}

func (l *Linear) biases() []float64 {
	return l.params[l.outSize*l.inSize:]
}

// Forward applies the layer to every column of in.
func (l *Linear) Forward(in *mat.Dense) *mat.Dense {
	rows, cols := in.Dims()
	if rows != l.inSize {
		panic("input size mismatch")
	}
	out := mat.NewDense(l.outSize, cols, nil)
	out.Mul(l.Weights(), in)
	biases := l.biases()
	for i := 0; i < l.outSize; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, out.At(i, j)+biases[i])
		}
	}
	l.input = mat.DenseCopyOf(in)
	l.output = out
	return out
}

// Backward computes W^T*gy.
// The in argument is not needed.
func (l *Linear) Backward(in, gy *mat.Dense) *mat.Dense {
	rows, cols := gy.Dims()
	if rows != l.outSize {
		panic("upstream size mismatch")
	}
	res := mat.NewDense(l.inSize, cols, nil)
	res.Mul(l.Weights().T(), gy)
	return res
}

// Gradient writes the parameter gradient for err.
//
// The in argument is ignored in favor of the input from
// the last Forward (or the last restored checkpoint),
// since callers replaying a recurrence may not have it.
func (l *Linear) Gradient(in, err *mat.Dense) {
	if l.input == nil {
		panic("gradient before forward")
	}
	_, inCols := l.input.Dims()
	rows, cols := err.Dims()
	if rows != l.outSize || cols != inCols {
		panic("upstream size mismatch")
	}
	weightGrad := mat.NewDense(l.outSize, l.inSize, l.grad[:l.outSize*l.inSize])
	weightGrad.Mul(err, l.input.T())
	biasGrad := l.grad[l.outSize*l.inSize:]
	for i := range biasGrad {
		biasGrad[i] = mat.Sum(err.RowView(i))
	}
}

func (l *Linear) OutputParameter() *mat.Dense {
	return l.output
}

func (l *Linear) SetOutputParameter(m *mat.Dense) {
	l.output = m
}

// Parameters returns the parameter vector itself, so
// optimizers may update it in place.
func (l *Linear) Parameters() []float64 {
	return l.params
}

func (l *Linear) GradientStorage() []float64 {
	return l.grad
}

func (l *Linear) SetGradientStorage(g []float64) {
	checkStorage(g, len(l.params))
	l.grad = g
}

// Checkpoint saves the input of the last Forward.
func (l *Linear) Checkpoint() interface{} {
	return l.input
}

// Restore restores an input saved by Checkpoint.
func (l *Linear) Restore(c interface{}) {
	l.input, _ = c.(*mat.Dense)
}

// Clone creates a copy of the module with the same
// parameters and its own gradient storage.
func (l *Linear) Clone() recattn.Module {
	res := NewLinear(l.inSize, l.outSize)
	copy(res.params, l.params)
	return res
}

// SerializerType returns the unique ID used to serialize
// a Linear module with the serializer package.
func (l *Linear) SerializerType() string {
	return "github.com/unixpickle/recattn/modules.Linear"
}

// Serialize serializes the module.
func (l *Linear) Serialize() ([]byte, error) {
	return serializer.SerializeAny(
		serializer.Int(l.inSize),
		serializer.Int(l.outSize),
		serializer.Float64Slice(l.params),
	)
}
