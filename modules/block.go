package modules

import (
	"errors"

	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anynet/anyrnn"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/recattn"
	"github.com/unixpickle/recattn/internal/pack"
	"github.com/unixpickle/serializer"
	"gonum.org/v1/gonum/mat"
)

func init() {
	var b BlockModule
	serializer.RegisterTypedDeserializer(b.SerializerType(), DeserializeBlockModule)
}

// BlockModule adapts an anyrnn.Block, making it usable as
// a glimpse module.
//
// Every Forward runs one timestep of the block.
// The recurrent state is carried from one Forward to the
// next until Reset is called.
//
// Backward must visit the timesteps in reverse order, with
// each timestep restored through Restore, so that the
// gradient of the recurrent state can flow from each
// timestep to the one before it.
type BlockModule struct {
	Block anyrnn.Block

	params   []*anydiff.Var
	grad     []float64
	lastGrad []float64

	state     anyrnn.State
	numSteps  int
	step      *blockStep
	stateGrad anyrnn.StateGrad
	output    *mat.Dense
}

type blockStep struct {
	Res    anyrnn.Res
	Index  int
	InRows int
	Cols   int
}

// NewBlockModule wraps a block.
//
// The block's parameters are found through its
// Parameters() method, if it has one.
func NewBlockModule(block anyrnn.Block) *BlockModule {
	params := parameters(block)
	return &BlockModule{
		Block:  block,
		params: params,
		grad:   make([]float64, len(varsData(params))),
	}
}

// DeserializeBlockModule deserializes a BlockModule.
func DeserializeBlockModule(d []byte) (*BlockModule, error) {
	var obj serializer.Serializer
	if err := serializer.DeserializeAny(d, &obj); err != nil {
		return nil, essentials.AddCtx("deserialize BlockModule", err)
	}
	block, ok := obj.(anyrnn.Block)
	if !ok {
		return nil, essentials.AddCtx("deserialize BlockModule",
			errors.New("not an anyrnn.Block"))
	}
	return NewBlockModule(block), nil
}

// Reset discards the recurrent state.
func (b *BlockModule) Reset() {
	b.state = nil
	b.numSteps = 0
	b.step = nil
	b.stateGrad = nil
}

// Forward runs one timestep.
// Every column of in is a separate sequence.
func (b *BlockModule) Forward(in *mat.Dense) *mat.Dense {
	rows, cols := in.Dims()
	if b.state == nil {
		b.state = b.Block.Start(cols)
	} else if len(b.state.Present()) != cols {
		panic("batch size changed mid-sequence")
	}
	res := b.Block.Step(b.state, toVector(in))
	b.state = res.State()
	b.step = &blockStep{Res: res, Index: b.numSteps, InRows: rows, Cols: cols}
	b.numSteps++
	b.stateGrad = nil
	b.output = fromVector(res.Output(), cols)
	return b.output
}

// Backward propagates gy through the current timestep,
// along with the state gradient left by the previous call.
func (b *BlockModule) Backward(in, gy *mat.Dense) *mat.Dense {
	if b.step == nil {
		panic("backward before forward")
	}
	grad := anydiff.NewGrad(b.params...)
	down, stateGrad := b.step.Res.Propagate(toVector(gy), b.stateGrad, grad)
	if b.step.Index == 0 {
		b.Block.PropagateStart(stateGrad, grad)
		b.stateGrad = nil
	} else {
		b.stateGrad = stateGrad
	}
	b.lastGrad = gradData(grad, b.params)
	return pack.Unflatten(vectorData(down), b.step.InRows, b.step.Cols)
}

// Gradient writes the parameter gradient computed by the
// last call to Backward.
func (b *BlockModule) Gradient(in, err *mat.Dense) {
	writeGrad(b.grad, b.lastGrad)
}

func (b *BlockModule) OutputParameter() *mat.Dense {
	return b.output
}

func (b *BlockModule) SetOutputParameter(m *mat.Dense) {
	b.output = m
}

// Parameters returns a copy of the block's parameters.
func (b *BlockModule) Parameters() []float64 {
	return varsData(b.params)
}

func (b *BlockModule) GradientStorage() []float64 {
	return b.grad
}

func (b *BlockModule) SetGradientStorage(g []float64) {
	checkStorage(g, len(b.grad))
	b.grad = g
}

// Checkpoint saves the current timestep.
func (b *BlockModule) Checkpoint() interface{} {
	return b.step
}

// Restore restores a timestep saved by Checkpoint.
func (b *BlockModule) Restore(c interface{}) {
	b.step, _ = c.(*blockStep)
	b.lastGrad = nil
}

// Clone copies the module by serializing its block, so
// the clone shares no parameters with b.
// The clone starts without recurrent state.
// It panics if the block is not a serializer.Serializer.
func (b *BlockModule) Clone() recattn.Module {
	data, err := b.Serialize()
	if err != nil {
		panic(err)
	}
	res, err := DeserializeBlockModule(data)
	if err != nil {
		panic(essentials.AddCtx("clone BlockModule", err))
	}
	return res
}

// SerializerType returns the unique ID used to serialize
// a BlockModule with the serializer package.
func (b *BlockModule) SerializerType() string {
	return "github.com/unixpickle/recattn/modules.BlockModule"
}

// Serialize serializes the module.
// It fails if the block is not a serializer.Serializer.
func (b *BlockModule) Serialize() ([]byte, error) {
	s, ok := b.Block.(serializer.Serializer)
	if !ok {
		return nil, errors.New("serialize BlockModule: block is not a serializer.Serializer")
	}
	return serializer.SerializeAny(s)
}
