// Package recattn implements a recurrent attention layer
// which unrolls a glimpse module and an action module over
// a fixed horizon and back-propagates through the
// unrolled steps.
//
// The layer drives its sub-modules through the Module
// interface.
// Sub-modules keep a single mutable output slot which is
// overwritten on every time-step, so the layer records a
// snapshot of every module after every step and replays
// the snapshots in reverse order during back-propagation.
package recattn

import "gonum.org/v1/gonum/mat"

// A Module is a differentiable unit owned by a Cell.
//
// Matrices store one batch entry per column.
type Module interface {
	// Forward applies the module to a batch and stores the
	// result as the module's output parameter, which it
	// also returns.
	Forward(in *mat.Dense) *mat.Dense

	// Backward computes the gradient with respect to the
	// module's input, given the gradient gy with respect
	// to its output.
	Backward(in, gy *mat.Dense) *mat.Dense

	// Gradient computes the parameter gradient for the
	// upstream error and writes it to the slice set by
	// SetGradientStorage, overwriting its contents.
	Gradient(in, err *mat.Dense)

	// OutputParameter returns the last output.
	OutputParameter() *mat.Dense

	// SetOutputParameter replaces the last output.
	SetOutputParameter(m *mat.Dense)

	// Parameters returns the flat parameter vector.
	// Its length is the parameter count of the module.
	//
	// The result may be the module's own storage or a copy.
	// Callers must not modify it; modules which support
	// in-place updates document that themselves.
	Parameters() []float64

	// GradientStorage returns the slice which Gradient
	// writes to.
	GradientStorage() []float64

	// SetGradientStorage redirects the writes performed by
	// Gradient to g.
	// The module keeps a reference to g rather than a copy.
	SetGradientStorage(g []float64)
}

// A Checkpointer is a Module with internal per-step state
// beyond its output parameter (for example, the input it
// saw during Forward).
//
// Checkpoints are saved after every forward step and
// restored before the corresponding backward step.
type Checkpointer interface {
	Checkpoint() interface{}
	Restore(c interface{})
}

// A Resetter is a Module with recurrent state that should
// be cleared at the start of every unrolled pass.
type Resetter interface {
	Reset()
}

// A Cloner is a Module that can produce a deep copy of
// itself.
// The copy has the same parameters but its own gradient
// storage and per-step state.
//
// NewCell requires both of its modules to be Cloners.
type Cloner interface {
	Clone() Module
}

// A Layer is a component of an enclosing network.
type Layer interface {
	Forward(in *mat.Dense) (*mat.Dense, error)
	Backward(in, gy *mat.Dense) (*mat.Dense, error)

	// Gradient finalizes the parameter gradient for the
	// last backward pass and returns it as a flat vector.
	Gradient(in, err *mat.Dense) ([]float64, error)

	Parameters() []float64
	OutputParameter() *mat.Dense
}
