package recattn

import (
	"fmt"
	"reflect"

	"github.com/unixpickle/essentials"
	"github.com/unixpickle/recattn/internal/pack"
	"gonum.org/v1/gonum/mat"
)

// Module indices, in the order they are recorded in the
// history and laid out in the gradient buffers.
const (
	glimpseIdx = iota
	actionIdx
)

// A Cell is a recurrent attention layer.
//
// Every forward pass runs rho steps.
// At each step, the action module proposes a location
// from the previous glimpse output (or from zeros, at the
// first step), and the glimpse module consumes the
// external input together with that location.
// The output of the layer is the final glimpse output.
//
// A Cell is not safe for concurrent use.
type Cell struct {
	outSize int
	rho     int

	forwardStep   int
	backwardStep  int
	deterministic bool

	glimpse Module
	action  Module

	initialInput *mat.Dense
	inRows       int
	inCols       int
	output       *mat.Dense
	hist         history

	// recorded is set if the last Forward saved history.
	recorded bool

	intermediateGradient *gradBuffer
	attentionGradient    *gradBuffer

	actionError    *mat.Dense
	actionDelta    *mat.Dense
	recurrentError *mat.Dense
	rnnDelta       *mat.Dense
	inputGrad      *mat.Dense
}

// NewCell creates a Cell with a horizon of rho steps.
//
// The outSize argument is the number of rows produced by
// the action module.
//
// Both modules must implement Cloner.
// The Cell keeps its own clones, so the prototypes may be
// reused to build other cells.
func NewCell(outSize int, glimpse, action Module, rho int) (*Cell, error) {
	if rho < 1 {
		return nil, fmt.Errorf("new cell: rho %d: %w", rho, ErrZeroHorizon)
	}
	if outSize < 1 {
		return nil, fmt.Errorf("new cell: output size %d: %w", outSize, ErrInvalidConfig)
	}
	if glimpse == nil || action == nil {
		return nil, fmt.Errorf("new cell: %w", ErrNilModule)
	}
	if sameModule(glimpse, action) {
		return nil, fmt.Errorf("new cell: glimpse and action are the same module: %w",
			ErrInvalidConfig)
	}
	glimpseClone, err := cloneModule(glimpse)
	if err != nil {
		return nil, fmt.Errorf("new cell: glimpse: %w", err)
	}
	actionClone, err := cloneModule(action)
	if err != nil {
		return nil, fmt.Errorf("new cell: action: %w", err)
	}
	return &Cell{
		outSize: outSize,
		rho:     rho,
		glimpse: glimpseClone,
		action:  actionClone,
	}, nil
}

// sameModule reports whether a and b are the same value.
// Modules of uncomparable types are never the same.
func sameModule(a, b Module) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func cloneModule(m Module) (Module, error) {
	c, ok := m.(Cloner)
	if !ok {
		return nil, fmt.Errorf("%T: %w", m, ErrNotCloner)
	}
	res := c.Clone()
	if res == nil || sameModule(res, m) {
		return nil, fmt.Errorf("%T: clone is not a new module: %w", m, ErrNotCloner)
	}
	return res, nil
}

// Rho returns the number of unrolled steps.
func (c *Cell) Rho() int {
	return c.rho
}

// OutSize returns the number of rows in the action
// module's output.
func (c *Cell) OutSize() int {
	return c.outSize
}

// ForwardStep returns the forward step counter.
func (c *Cell) ForwardStep() int {
	return c.forwardStep
}

// BackwardStep returns the number of steps propagated so
// far in the current backward pass.
func (c *Cell) BackwardStep() int {
	return c.backwardStep
}

// Deterministic reports whether the Cell is in inference
// mode.
func (c *Cell) Deterministic() bool {
	return c.deterministic
}

// SetDeterministic toggles inference mode.
// In inference mode, Forward neither records nor clears
// history, and the Cell cannot be back-propagated until
// the next training-mode Forward.
func (c *Cell) SetDeterministic(d bool) {
	c.deterministic = d
}

// Glimpse returns the owned glimpse module.
func (c *Cell) Glimpse() Module {
	return c.glimpse
}

// Action returns the owned action module.
func (c *Cell) Action() Module {
	return c.action
}

// HistoryLen returns the number of snapshots waiting to
// be consumed by back-propagation.
func (c *Cell) HistoryLen() int {
	return c.hist.Len()
}

// OutputParameter returns the result of the last Forward.
func (c *Cell) OutputParameter() *mat.Dense {
	return c.output
}

// Parameters returns a new slice holding the glimpse
// parameters followed by the action parameters.
func (c *Cell) Parameters() []float64 {
	var res []float64
	for _, m := range c.modules() {
		res = append(res, m.Parameters()...)
	}
	return res
}

// AttentionGradient returns a copy of the parameter
// gradient accumulated by the last backward pass, or nil
// if no gradient has been allocated yet.
func (c *Cell) AttentionGradient() []float64 {
	if c.attentionGradient == nil {
		return nil
	}
	return append([]float64{}, c.attentionGradient.Data()...)
}

// Forward runs the unrolled pass on a batch.
//
// The input batch is flattened (column by column) into the
// first column of every glimpse input, so the action
// output must have no more entries than the input.
func (c *Cell) Forward(in *mat.Dense) (*mat.Dense, error) {
	if c.recorded && c.backwardStep > 0 && c.backwardStep < c.rho {
		return nil, fmt.Errorf("forward: %d of %d steps propagated: %w",
			c.backwardStep, c.rho, ErrOverlappingPass)
	}
	if in == nil || numElems(in) == 0 {
		return nil, fmt.Errorf("forward: empty input: %w", ErrShapeMismatch)
	}

	c.inRows, c.inCols = in.Dims()
	if r, cols := dims(c.initialInput); r != c.outSize || cols != c.inCols {
		c.initialInput = mat.NewDense(c.outSize, c.inCols, nil)
	}

	c.recorded = !c.deterministic
	if c.recorded {
		c.hist.reset()
	}
	for _, m := range c.modules() {
		if r, ok := m.(Resetter); ok {
			r.Reset()
		}
	}

	defer func() {
		c.forwardStep = 0
		c.backwardStep = 0
	}()

	features := pack.Flatten(in)
	for c.forwardStep = 0; c.forwardStep < c.rho; c.forwardStep++ {
		actionIn := c.initialInput
		if c.forwardStep > 0 {
			actionIn = c.glimpse.OutputParameter()
		}
		location := c.action.Forward(actionIn)

		glimpseIn, err := glimpseInput(features, location)
		if err != nil {
			if c.recorded {
				c.hist.reset()
			}
			c.recorded = false
			return nil, fmt.Errorf("forward: step %d: %w", c.forwardStep, err)
		}
		c.glimpse.Forward(glimpseIn)

		if !c.deterministic {
			c.hist.push(glimpseIdx, c.forwardStep, c.glimpse)
			c.hist.push(actionIdx, c.forwardStep, c.action)
		}
	}

	c.output = copyDense(c.glimpse.OutputParameter())
	return c.output, nil
}

// Backward back-propagates through every remaining step
// of the last forward pass.
//
// The gy argument is the gradient with respect to the
// output of Forward.
// The result is the gradient with respect to in, summed
// over all steps.
func (c *Cell) Backward(in, gy *mat.Dense) (*mat.Dense, error) {
	return c.BackwardN(in, gy, c.rho)
}

// BackwardN is like Backward, but it propagates through at
// most n steps.
//
// Calling BackwardN repeatedly continues the pass where
// the previous call left off.
// The returned gradient includes every step propagated so
// far in the pass.
func (c *Cell) BackwardN(in, gy *mat.Dense, n int) (*mat.Dense, error) {
	if c.backwardStep >= c.rho {
		return nil, fmt.Errorf("backward: %w", ErrPassComplete)
	}
	if n < 1 {
		return nil, fmt.Errorf("backward: step count %d: %w", n, ErrInvalidConfig)
	}
	remaining := c.rho - c.backwardStep
	if !c.recorded {
		return nil, fmt.Errorf("backward: last forward pass recorded no history: %w",
			ErrHistoryUnderflow)
	}
	if c.hist.Len() < 2*remaining {
		return nil, fmt.Errorf("backward: %d snapshots for %d steps: %w",
			c.hist.Len(), remaining, ErrHistoryUnderflow)
	}
	if r, cols := dims(in); r != c.inRows || cols != c.inCols {
		return nil, fmt.Errorf("backward: input is %dx%d, expected %dx%d: %w",
			r, cols, c.inRows, c.inCols, ErrShapeMismatch)
	}

	if c.backwardStep == 0 {
		if gy == nil || c.output == nil || !sameShape(gy, c.output) {
			return nil, fmt.Errorf("backward: output gradient: %w", ErrShapeMismatch)
		}
		c.allocGradients()
		c.bindGradients()
		c.attentionGradient.Zero()
		c.inputGrad = nil
	}

	steps := essentials.MinInt(n, remaining)
	for i := 0; i < steps; i++ {
		if err := c.backwardStepOnce(gy); err != nil {
			return nil, fmt.Errorf("backward: step %d: %w", c.backwardStep, err)
		}
	}
	return mat.DenseCopyOf(c.inputGrad), nil
}

func (c *Cell) backwardStepOnce(gy *mat.Dense) error {
	if c.backwardStep == 0 {
		c.recurrentError = gy
	} else {
		c.recurrentError = c.actionDelta
	}

	step := c.rho - 1 - c.backwardStep
	for _, idx := range []int{actionIdx, glimpseIdx} {
		s, ok := c.hist.pop(idx, c.modules()[idx])
		if !ok {
			return ErrHistoryUnderflow
		}
		if s != step {
			return fmt.Errorf("snapshot for step %d where %d was expected: %w", s, step,
				ErrHistoryUnderflow)
		}
	}

	location := c.action.OutputParameter()
	if c.actionError == nil || !sameShape(c.actionError, location) {
		r, cols := location.Dims()
		c.actionError = mat.NewDense(r, cols, nil)
	}

	// The first time-step is propagated last.
	backRef, gradRef := c.initialInput, location
	if c.backwardStep == c.rho-1 {
		backRef, gradRef = location, c.initialInput
	}

	c.actionDelta = c.action.Backward(backRef, c.actionError)
	c.rnnDelta = c.glimpse.Backward(c.glimpse.OutputParameter(), c.recurrentError)

	if r, cols := c.rnnDelta.Dims(); r != c.inRows*c.inCols || cols != 2 {
		return fmt.Errorf("glimpse delta is %dx%d: %w", r, cols, ErrShapeMismatch)
	}
	locGrad := pack.Unflatten(mat.Col(nil, 1, c.rnnDelta), c.inRows, c.inCols)
	if c.backwardStep == 0 {
		c.inputGrad = locGrad
	} else {
		c.inputGrad.Add(c.inputGrad, locGrad)
	}

	c.intermediateGradient.Zero()
	c.action.Gradient(gradRef, c.actionError)
	c.glimpse.Gradient(c.glimpse.OutputParameter(), c.recurrentError)
	c.attentionGradient.Accumulate(c.intermediateGradient)

	c.backwardStep++
	return nil
}

// Gradient copies the accumulated parameter gradient into
// the gradient storage of each sub-module and returns a
// copy of it.
//
// Calling Gradient several times in a row has the same
// effect as calling it once.
func (c *Cell) Gradient(in, err *mat.Dense) ([]float64, error) {
	if !c.attentionGradient.hasSizes(c.paramCounts()...) {
		c.allocGradients()
		c.bindGradients()
	}
	for i, m := range c.modules() {
		if len(m.Parameters()) == 0 {
			continue
		}
		copy(m.GradientStorage(), c.attentionGradient.Region(i))
	}
	return c.AttentionGradient(), nil
}

func (c *Cell) modules() []Module {
	return []Module{c.glimpse, c.action}
}

func (c *Cell) paramCounts() []int {
	return []int{len(c.glimpse.Parameters()), len(c.action.Parameters())}
}

// allocGradients allocates the gradient buffers unless
// they already match the parameter counts.
func (c *Cell) allocGradients() {
	counts := c.paramCounts()
	if c.attentionGradient.hasSizes(counts...) &&
		c.intermediateGradient.hasSizes(counts...) {
		return
	}
	c.intermediateGradient = newGradBuffer(counts...)
	c.attentionGradient = newGradBuffer(counts...)
}

// bindGradients points the gradient storage of each
// module at its region of the intermediate gradient.
func (c *Cell) bindGradients() {
	for i, m := range c.modules() {
		m.SetGradientStorage(c.intermediateGradient.Region(i))
	}
}

func glimpseInput(features []float64, location *mat.Dense) (*mat.Dense, error) {
	locData := pack.Flatten(location)
	if len(locData) > len(features) {
		return nil, fmt.Errorf("location has %d entries but input has %d: %w",
			len(locData), len(features), ErrShapeMismatch)
	}
	res := mat.NewDense(len(features), 2, nil)
	res.SetCol(0, features)
	for i, x := range locData {
		res.Set(i, 1, x)
	}
	return res, nil
}

func dims(m *mat.Dense) (int, int) {
	if m == nil {
		return 0, 0
	}
	return m.Dims()
}
