package recattn

import "gonum.org/v1/gonum/mat"

// A snapshot records the state of one module right after
// one forward time-step.
type snapshot struct {
	Module int
	Step   int
	Output *mat.Dense

	// State is the module's checkpoint, or nil if the
	// module is not a Checkpointer.
	State interface{}
}

// history is a last-in-first-out log of snapshots.
//
// During a forward pass, snapshots are pushed for every
// module after every step.
// During back-propagation, they are popped in the reverse
// order, rewinding every module to the step being
// processed.
type history struct {
	entries []snapshot
}

// push records a snapshot of m.
// The output matrix is copied, since modules overwrite it
// on the next step.
func (h *history) push(moduleIdx, step int, m Module) {
	s := snapshot{
		Module: moduleIdx,
		Step:   step,
		Output: copyDense(m.OutputParameter()),
	}
	if c, ok := m.(Checkpointer); ok {
		s.State = c.Checkpoint()
	}
	h.entries = append(h.entries, s)
}

// pop removes the most recent snapshot and restores it
// into m.
//
// It returns false if the log is empty or if the most
// recent snapshot belongs to a different module.
func (h *history) pop(moduleIdx int, m Module) (step int, ok bool) {
	if len(h.entries) == 0 {
		return 0, false
	}
	s := h.entries[len(h.entries)-1]
	if s.Module != moduleIdx {
		return 0, false
	}
	h.entries[len(h.entries)-1] = snapshot{}
	h.entries = h.entries[:len(h.entries)-1]

	m.SetOutputParameter(s.Output)
	if c, ok := m.(Checkpointer); ok {
		c.Restore(s.State)
	}
	return s.Step, true
}

// Len returns the number of stored snapshots.
func (h *history) Len() int {
	return len(h.entries)
}

// reset discards every snapshot.
func (h *history) reset() {
	for i := range h.entries {
		h.entries[i] = snapshot{}
	}
	h.entries = h.entries[:0]
}
