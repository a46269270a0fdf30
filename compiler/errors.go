package compiler

import "errors"

// ---------------------------------------------------------------------------
// Compile Errors
// ---------------------------------------------------------------------------

var (
	ErrUnsupportedCast      = errors.New("unsupported cast")
	ErrUnsupportedOperator  = errors.New("unsupported operator")
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	ErrDependencyCycle      = errors.New("dependency cycle")
	ErrMismatchedBracket    = errors.New("mismatched bracket")
	ErrUnknownSymbol        = errors.New("unknown symbol")
	ErrUnknownRoutine       = errors.New("unknown routine")
	ErrUnknownType          = errors.New("unknown type")
	ErrMemoryLayout         = errors.New("invalid memory layout")
)
