package recattn

import "errors"

var (
	// ErrZeroHorizon is returned when a Cell is created
	// with a horizon less than one.
	ErrZeroHorizon = errors.New("horizon must be at least one")

	// ErrShapeMismatch indicates that a matrix does not
	// have the shape required by a layer.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrHistoryUnderflow is returned by Backward when the
	// recorded history does not cover the remaining steps,
	// e.g. after a deterministic Forward.
	ErrHistoryUnderflow = errors.New("not enough history for backward pass")

	// ErrOverlappingPass is returned by Forward while a
	// backward pass is still in progress.
	ErrOverlappingPass = errors.New("forward during unfinished backward pass")

	// ErrPassComplete is returned by Backward when every
	// step of the last pass has already been propagated.
	ErrPassComplete = errors.New("backward pass already complete")

	// ErrNilModule is returned when a Cell is created
	// without one of its sub-modules.
	ErrNilModule = errors.New("nil sub-module")

	// ErrNotCloner is returned when a Cell is created with
	// a sub-module that cannot be cloned.
	ErrNotCloner = errors.New("sub-module does not implement Cloner")

	// ErrInvalidConfig indicates an invalid layer
	// configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)
