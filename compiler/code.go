package compiler

import "github.com/chazu/touchscript/pkg/wasm"

// Op is one element of a code sequence: either raw instruction bytes or a
// call to a routine whose function index is assigned at link time.
type Op struct {
	Bytes []byte
	Call  Routine
}

// Code is a flat code fragment.
type Code []Op

// Raw wraps pre-encoded instruction bytes.
func Raw(b ...byte) Op {
	return Op{Bytes: b}
}

// Asm wraps the bytes assembled so far by b.
func Asm(b *wasm.Builder) Op {
	return Op{Bytes: b.Bytes()}
}

// Call emits a call to r. Macros are inlined instead.
func Call(r Routine) Op {
	return Op{Call: r}
}

// Calls returns the routines called directly by c, in order of appearance.
func (c Code) Calls() []Routine {
	var out []Routine
	for _, op := range c {
		if op.Call != nil {
			out = append(out, op.Call)
		}
	}
	return out
}

// Append returns c extended with raw bytes.
func (c Code) Append(b ...byte) Code {
	return append(c, Op{Bytes: b})
}
