package wasm

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedModule = errors.New("malformed module")
	ErrTruncated       = errors.New("unexpected end of module data")
	ErrVarintOverflow  = errors.New("varint exceeds its declared width")
	ErrInvalidKind     = errors.New("invalid external kind")
	ErrUnknownOpcode   = errors.New("unknown opcode")
)

// MalformedError reports where decoding stopped and why.
// It matches ErrMalformedModule with errors.Is, and unwraps to the
// underlying cause when there is one.
type MalformedError struct {
	Offset int
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed module at offset 0x%x: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed module at offset 0x%x: %s", e.Offset, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformedModule
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(offset int, err error, format string, args ...any) error {
	return &MalformedError{Offset: offset, Reason: fmt.Sprintf(format, args...), Err: err}
}
