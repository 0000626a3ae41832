package pattern

import "errors"

// Sentinel errors returned by the field generators. Callers match them with
// errors.Is; generators wrap them with the offending values.
var (
	// ErrInvalidParameter is returned for parameters that make a generator
	// undefined: a zero pitch, a non-positive lattice constant, or a
	// non-finite value.
	ErrInvalidParameter = errors.New("pattern: invalid parameter")

	// ErrInvalidShape is returned when a height, width or resolution is not
	// a positive integer.
	ErrInvalidShape = errors.New("pattern: invalid shape")

	// ErrShapeMismatch is returned when two fields of different shape are
	// combined elementwise.
	ErrShapeMismatch = errors.New("pattern: shape mismatch")
)
