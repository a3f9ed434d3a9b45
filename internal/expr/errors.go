package expr

import "errors"

var (
	// ErrShape is the panic value for operands of incompatible lengths.
	ErrShape = errors.New("expr: shape mismatch")
	// ErrNotConvex is returned when a goal or relation breaks the convexity rules.
	ErrNotConvex = errors.New("expr: problem is not convex")
)
