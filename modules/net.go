package modules

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/recattn"
	"github.com/unixpickle/recattn/internal/pack"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

func init() {
	var n NetModule
	serializer.RegisterTypedDeserializer(n.SerializerType(), DeserializeNetModule)
}

// NetModule adapts a feed-forward anynet.Layer.
//
// The layer's parameters are found through its
// Parameters() method, if it has one.
type NetModule struct {
	Layer anynet.Layer

	params   []*anydiff.Var
	grad     []float64
	lastGrad []float64

	step   *netStep
	output *mat.Dense
}

// netStep is everything needed to back-propagate through
// one application of the layer.
type netStep struct {
	In     *anydiff.Var
	Res    anydiff.Res
	InRows int
	Cols   int
}

// NewNetModule wraps a layer.
func NewNetModule(layer anynet.Layer) *NetModule {
	params := parameters(layer)
	return &NetModule{
		Layer:  layer,
		params: params,
		grad:   make([]float64, len(varsData(params))),
	}
}

// DeserializeNetModule deserializes a NetModule.
func DeserializeNetModule(d []byte) (*NetModule, error) {
	var obj serializer.Serializer
	if err := serializer.DeserializeAny(d, &obj); err != nil {
		return nil, essentials.AddCtx("deserialize NetModule", err)
	}
	layer, ok := obj.(anynet.Layer)
	if !ok {
		return nil, essentials.AddCtx("deserialize NetModule",
			errors.New("not an anynet.Layer"))
	}
	return NewNetModule(layer), nil
}

// Forward applies the layer to the batch.
func (n *NetModule) Forward(in *mat.Dense) *mat.Dense {
	rows, cols := in.Dims()
	inVar := anydiff.NewVar(toVector(in))
	res := n.Layer.Apply(inVar, cols)
	n.step = &netStep{In: inVar, Res: res, InRows: rows, Cols: cols}
	n.output = fromVector(res.Output(), cols)
	return n.output
}

// Backward propagates gy through the last step (or the
// last restored checkpoint).
// The parameter gradient is kept for Gradient.
func (n *NetModule) Backward(in, gy *mat.Dense) *mat.Dense {
	if n.step == nil {
		panic("backward before forward")
	}
	grad := anydiff.NewGrad(append(append([]*anydiff.Var{}, n.params...), n.step.In)...)
	n.step.Res.Propagate(toVector(gy), grad)
	n.lastGrad = gradData(grad, n.params)
	return pack.Unflatten(vectorData(grad[n.step.In]), n.step.InRows, n.step.Cols)
}

// Gradient writes the parameter gradient computed by the
// last call to Backward.
func (n *NetModule) Gradient(in, err *mat.Dense) {
	writeGrad(n.grad, n.lastGrad)
}

func (n *NetModule) OutputParameter() *mat.Dense {
	return n.output
}

func (n *NetModule) SetOutputParameter(m *mat.Dense) {
	n.output = m
}

// Parameters returns a copy of the layer's parameters.
func (n *NetModule) Parameters() []float64 {
	return varsData(n.params)
}

func (n *NetModule) GradientStorage() []float64 {
	return n.grad
}

func (n *NetModule) SetGradientStorage(g []float64) {
	checkStorage(g, len(n.grad))
	n.grad = g
}

// Checkpoint saves the last step.
func (n *NetModule) Checkpoint() interface{} {
	return n.step
}

// Restore restores a step saved by Checkpoint.
func (n *NetModule) Restore(c interface{}) {
	n.step, _ = c.(*netStep)
	n.lastGrad = nil
}

// Clone copies the module by serializing its layer, so
// the clone shares no parameters with n.
// It panics if the layer is not a serializer.Serializer.
func (n *NetModule) Clone() recattn.Module {
	data, err := n.Serialize()
	if err != nil {
		panic(err)
	}
	res, err := DeserializeNetModule(data)
	if err != nil {
		panic(essentials.AddCtx("clone NetModule", err))
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a NetModule with the serializer package.
func (n *NetModule) SerializerType() string {
	return "github.com/unixpickle/recattn/modules.NetModule"
}

// Serialize serializes the module.
// It fails if the layer is not a serializer.Serializer.
func (n *NetModule) Serialize() ([]byte, error) {
	s, ok := n.Layer.(serializer.Serializer)
	if !ok {
		return nil, errors.New("serialize NetModule: layer is not a serializer.Serializer")
	}
	return serializer.SerializeAny(s)
}
