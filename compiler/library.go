package compiler

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chazu/touchscript/pkg/wasm"
)

// Built-in routine ids. The catalogue order is fixed: ids are stored in
// saved documents.
const (
	RoutinePrint RoutineID = -(iota + 1)
	RoutinePrintln
	RoutineInputBool
	RoutineInputI32
	RoutineInputU32
	RoutineInputF64
	RoutineRotateLeftI32
	RoutineRotateLeftI64
	RoutineRotateRightI32
	RoutineRotateRightI64
	RoutineAbsF32
	RoutineAbsF64
	RoutineCeilF32
	RoutineCeilF64
	RoutineFloorF32
	RoutineFloorF64
	RoutineTruncF32
	RoutineTruncF64
	RoutineNearestF32
	RoutineNearestF64
	RoutineSqrtF32
	RoutineSqrtF64
	RoutineMinF32
	RoutineMinF64
	RoutineMaxF32
	RoutineMaxF64
	RoutineCopysignF32
	RoutineCopysignF64
	RoutineCos
	RoutineSin
	RoutineTan
	RoutineAcos
	RoutineAsin
	RoutineAtan
	RoutineAtan2
	RoutineCosh
	RoutineSinh
	RoutineTanh
	RoutineAcosh
	RoutineAsinh
	RoutineAtanh
	RoutineCubeRoot
	RoutineExp
	RoutineLog
	RoutineLog10
	RoutineLog2
	RoutinePow
	RoutineRandom
	RoutineReinterpretF32ToU32
	RoutineReinterpretF64ToU64
	RoutineReinterpretI32ToF32
	RoutineReinterpretI64ToF64

	// Print helpers selected by operand type; not offered by name.
	RoutinePrintChar
	RoutinePrintU32
	RoutinePrintBool
	RoutinePrintI32
	RoutinePrintF32
	RoutinePrintF64
	RoutinePrintU64
	RoutinePrintI64
)

// Host module names used by imported routines.
const (
	HostEnv    = "env"
	HostSystem = "System"
	HostMath   = "Math"
)

// StackPointerGlobal is the index of the mutable i32 global holding the
// top of the scratch stack in linear memory.
const StackPointerGlobal = 0

// Library is the immutable built-in routine catalogue.
type Library struct {
	routines []Routine
	byID     map[RoutineID]Routine
	printers map[TypeID]RoutineID
}

// DefaultLibrary returns the shared built-in library. A construction
// failure is a programming error and panics.
var DefaultLibrary = sync.OnceValue(func() *Library {
	lib, err := newBuiltinLibrary()
	if err != nil {
		panic(fmt.Sprintf("building routine library: %v", err))
	}
	return lib
})

func newLibrary() *Library {
	return &Library{
		byID:     make(map[RoutineID]Routine),
		printers: make(map[TypeID]RoutineID),
	}
}

// add registers r. Every routine r depends on must already be registered.
func (l *Library) add(r Routine) error {
	if _, dup := l.byID[r.ID()]; dup {
		return fmt.Errorf("routine id %d registered twice", r.ID())
	}
	if p, ok := r.(*Predefined); ok {
		for _, d := range p.Dependencies() {
			if l.byID[d.ID()] != d {
				return fmt.Errorf("routine %d needs %d: %w", r.ID(), d.ID(), ErrUnresolvedDependency)
			}
		}
	}
	l.routines = append(l.routines, r)
	l.byID[r.ID()] = r
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Lookup returns the routine with the given id.
func (l *Library) Lookup(id RoutineID) (Routine, error) {
	if r, ok := l.byID[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("routine id %d: %w", id, ErrUnknownRoutine)
}

// MustLookup is Lookup for ids known to be built in.
func (l *Library) MustLookup(id RoutineID) Routine {
	r, err := l.Lookup(id)
	if err != nil {
		panic(err)
	}
	return r
}

// Contains reports whether r is this library's routine for its id.
func (l *Library) Contains(r Routine) bool {
	return !isNilRoutine(r) && l.byID[r.ID()] == r
}

// Routines returns every routine in registration order, helpers included.
func (l *Library) Routines() []Routine {
	return slices.Clone(l.routines)
}

// Named returns the routines callable by name, in catalogue order.
func (l *Library) Named() []Routine {
	var out []Routine
	for _, r := range l.routines {
		if r.Signature().Name != "" {
			out = append(out, r)
		}
	}
	return out
}

// InNamespace returns the named routines owned by ns.
func (l *Library) InNamespace(ns *Type) []Routine {
	var out []Routine
	for _, r := range l.Named() {
		if r.Signature().Namespace == ns {
			out = append(out, r)
		}
	}
	return out
}

// Overloads returns every routine named name in ns.
func (l *Library) Overloads(ns *Type, name string) []Routine {
	var out []Routine
	for _, r := range l.InNamespace(ns) {
		if r.Signature().Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Printer returns the routine that prints a value of type t.
func (l *Library) Printer(t *Type) (Routine, error) {
	id, ok := l.printers[t.ID]
	if !ok {
		return nil, fmt.Errorf("no print routine for %s: %w", t.Text, ErrUnknownRoutine)
	}
	return l.Lookup(id)
}

// ListDependencies returns the routines r needs in a module, callees
// first. The result never contains r itself.
func (l *Library) ListDependencies(r Routine) ([]Routine, error) {
	if !l.Contains(r) {
		return nil, fmt.Errorf("routine not in library: %w", ErrUnknownRoutine)
	}
	if p, ok := r.(*Predefined); ok {
		return p.Dependencies(), nil
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Catalogue
// ---------------------------------------------------------------------------

func sig(ns *Type, name string, returns *Type, params ...Param) Signature {
	return Signature{Namespace: ns, Name: name, Returns: returns, Params: params}
}

func param(t *Type, name string) Param {
	return Param{Type: t, Name: name}
}

func paramDefault(t *Type, name, def string) Param {
	return Param{Type: t, Name: name, Default: def}
}

func ops(codes ...wasm.Opcode) []byte {
	return wasm.NewBuilder().Op(codes...).Bytes()
}

func newBuiltinLibrary() (*Library, error) {
	l := newLibrary()

	// Host output primitives. Each typed printer has its own field so the
	// host can bind one signature per name.
	printStr := NewImported(RoutinePrint, sig(TypeSystem, "print", TypeVoid, param(TypeString, "item")), HostEnv, "puts")
	printLine := NewImported(RoutinePrintln, sig(TypeSystem, "print↲", TypeVoid, param(TypeString, "item")), HostEnv, "putsln")
	printChar := NewImported(RoutinePrintChar, sig(TypeSystem, "", TypeVoid, param(TypeU32, "")), HostEnv, "put")
	helpers := []Routine{
		printChar,
		NewImported(RoutinePrintU32, sig(TypeSystem, "", TypeVoid, param(TypeU32, "")), HostEnv, "putu32"),
		NewImported(RoutinePrintBool, sig(TypeSystem, "", TypeVoid, param(TypeBool, "")), HostEnv, "putbool"),
		NewImported(RoutinePrintI32, sig(TypeSystem, "", TypeVoid, param(TypeI32, "")), HostEnv, "puti32"),
		NewImported(RoutinePrintF32, sig(TypeSystem, "", TypeVoid, param(TypeF32, "")), HostEnv, "putf32"),
		NewImported(RoutinePrintF64, sig(TypeSystem, "", TypeVoid, param(TypeF64, "")), HostEnv, "putf64"),
	}

	printU64, err := NewPredefined(RoutinePrintU64,
		sig(TypeSystem, "", TypeVoid, param(TypeU64, "")),
		[]wasm.LocalEntry{{Count: 1, Type: wasm.I32}},
		printU64Body(printStr),
	)
	if err != nil {
		return nil, err
	}
	printI64, err := NewPredefined(RoutinePrintI64,
		sig(TypeSystem, "", TypeVoid, param(TypeI64, "")),
		nil,
		printI64Body(printChar, printU64),
	)
	if err != nil {
		return nil, err
	}

	num := func(t *Type) Param { return param(t, "num") }
	f64 := func(name string) Param { return param(TypeF64, name) }
	math := func(id RoutineID, name, field string, params ...Param) Routine {
		return NewImported(id, sig(TypeMath, name, TypeF64, params...), HostMath, field)
	}
	macro := func(id RoutineID, ns *Type, name string, returns *Type, code []byte, params ...Param) Routine {
		return NewMacro(id, sig(ns, name, returns, params...), code)
	}

	catalogue := []Routine{
		printStr,
		printLine,
		NewImported(RoutineInputBool, sig(TypeSystem, "input", TypeBool), HostSystem, "inputBool"),
		NewImported(RoutineInputI32, sig(TypeSystem, "input", TypeI32), HostSystem, "inputI32"),
		NewImported(RoutineInputU32, sig(TypeSystem, "input", TypeU32), HostSystem, "inputU32"),
		NewImported(RoutineInputF64, sig(TypeSystem, "input", TypeF64,
			paramDefault(TypeF64, "default", "0"),
			paramDefault(TypeF64, "min", "-Infinity"),
			paramDefault(TypeF64, "max", "Infinity"),
		), HostSystem, "inputF64"),

		macro(RoutineRotateLeftI32, TypeMath, "rotateLeft", TypeI32, ops(wasm.OpI32Rotl), num(TypeI32), param(TypeI32, "count")),
		macro(RoutineRotateLeftI64, TypeMath, "rotateLeft", TypeI64, ops(wasm.OpI64Rotl), num(TypeI64), param(TypeI64, "count")),
		macro(RoutineRotateRightI32, TypeMath, "rotateRight", TypeI32, ops(wasm.OpI32Rotr), num(TypeI32), param(TypeI32, "count")),
		macro(RoutineRotateRightI64, TypeMath, "rotateRight", TypeI64, ops(wasm.OpI64Rotr), num(TypeI64), param(TypeI64, "count")),
		macro(RoutineAbsF32, TypeMath, "abs", TypeF32, ops(wasm.OpF32Abs), num(TypeF32)),
		macro(RoutineAbsF64, TypeMath, "abs", TypeF64, ops(wasm.OpF64Abs), num(TypeF64)),
		macro(RoutineCeilF32, TypeMath, "ceil", TypeF32, ops(wasm.OpF32Ceil), num(TypeF32)),
		macro(RoutineCeilF64, TypeMath, "ceil", TypeF64, ops(wasm.OpF64Ceil), num(TypeF64)),
		macro(RoutineFloorF32, TypeMath, "floor", TypeF32, ops(wasm.OpF32Floor), num(TypeF32)),
		macro(RoutineFloorF64, TypeMath, "floor", TypeF64, ops(wasm.OpF64Floor), num(TypeF64)),
		macro(RoutineTruncF32, TypeMath, "trunc", TypeF32, ops(wasm.OpF32Trunc), num(TypeF32)),
		macro(RoutineTruncF64, TypeMath, "trunc", TypeF64, ops(wasm.OpF64Trunc), num(TypeF64)),
		macro(RoutineNearestF32, TypeMath, "nearest", TypeF32, ops(wasm.OpF32Nearest), num(TypeF32)),
		macro(RoutineNearestF64, TypeMath, "nearest", TypeF64, ops(wasm.OpF64Nearest), num(TypeF64)),
		macro(RoutineSqrtF32, TypeMath, "sqrt", TypeF32, ops(wasm.OpF32Sqrt), num(TypeF32)),
		macro(RoutineSqrtF64, TypeMath, "sqrt", TypeF64, ops(wasm.OpF64Sqrt), num(TypeF64)),
		macro(RoutineMinF32, TypeMath, "min", TypeF32, ops(wasm.OpF32Min), param(TypeF32, "num1"), param(TypeF32, "num2")),
		macro(RoutineMinF64, TypeMath, "min", TypeF64, ops(wasm.OpF64Min), f64("num1"), f64("num2")),
		macro(RoutineMaxF32, TypeMath, "max", TypeF32, ops(wasm.OpF32Max), param(TypeF32, "num1"), param(TypeF32, "num2")),
		macro(RoutineMaxF64, TypeMath, "max", TypeF64, ops(wasm.OpF64Max), f64("num1"), f64("num2")),
		macro(RoutineCopysignF32, TypeMath, "copysign", TypeF32, ops(wasm.OpF32Copysign), paramDefault(TypeF32, "magNum", "1"), param(TypeF32, "signNum")),
		macro(RoutineCopysignF64, TypeMath, "copysign", TypeF64, ops(wasm.OpF64Copysign), paramDefault(TypeF64, "magNum", "1"), f64("signNum")),

		math(RoutineCos, "cos", "cos", f64("num")),
		math(RoutineSin, "sin", "sin", f64("num")),
		math(RoutineTan, "tan", "tan", f64("num")),
		math(RoutineAcos, "acos", "acos", f64("num")),
		math(RoutineAsin, "asin", "asin", f64("num")),
		math(RoutineAtan, "atan", "atan", f64("y/x")),
		math(RoutineAtan2, "atan2", "atan2", f64("y"), f64("x")),
		math(RoutineCosh, "cosh", "cosh", f64("num")),
		math(RoutineSinh, "sinh", "sinh", f64("num")),
		math(RoutineTanh, "tanh", "tanh", f64("y/x")),
		math(RoutineAcosh, "acosh", "acosh", f64("num")),
		math(RoutineAsinh, "asinh", "asinh", f64("num")),
		math(RoutineAtanh, "atanh", "atanh", f64("y/x")),
		math(RoutineCubeRoot, "cubeRoot", "cbrt", f64("num")),
		math(RoutineExp, "E^", "exp", f64("num")),
		math(RoutineLog, "logₑ", "log", f64("num")),
		math(RoutineLog10, "log₁₀", "log10", f64("num")),
		math(RoutineLog2, "log₂", "log2", f64("num")),
		math(RoutinePow, "pow", "pow", f64("base"), f64("power")),
		math(RoutineRandom, "random", "random"),

		macro(RoutineReinterpretF32ToU32, TypeSystem, "reinterpret", TypeU32, ops(wasm.OpI32ReinterpretF32), num(TypeF32)),
		macro(RoutineReinterpretF64ToU64, TypeSystem, "reinterpret", TypeU64, ops(wasm.OpI64ReinterpretF64), num(TypeF64)),
		macro(RoutineReinterpretI32ToF32, TypeSystem, "reinterpret", TypeF32, ops(wasm.OpF32ReinterpretI32), num(TypeI32)),
		macro(RoutineReinterpretI64ToF64, TypeSystem, "reinterpret", TypeF64, ops(wasm.OpF64ReinterpretI64), num(TypeI64)),
	}

	for _, r := range catalogue {
		if err := l.add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range helpers {
		if err := l.add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range []Routine{printU64, printI64} {
		if err := l.add(r); err != nil {
			return nil, err
		}
	}

	l.printers = map[TypeID]RoutineID{
		IDString: RoutinePrint,
		IDU32:    RoutinePrintU32,
		IDBool:   RoutinePrintBool,
		IDI32:    RoutinePrintI32,
		IDF32:    RoutinePrintF32,
		IDF64:    RoutinePrintF64,
		IDU64:    RoutinePrintU64,
		IDI64:    RoutinePrintI64,
	}
	return l, nil
}

// printU64Body converts the u64 in local 0 to decimal digits written
// backwards below the stack pointer, then prints them as one string.
func printU64Body(puts Routine) Code {
	loop := wasm.NewBuilder().
		Index(wasm.OpGlobalGet, StackPointerGlobal). // address = top of stack
		Index(wasm.OpLocalSet, 1).
		Block(wasm.OpLoop, wasm.BlockVoid).
		Index(wasm.OpLocalGet, 1). // --address
		I32Const(-1).
		Op(wasm.OpI32Add).
		Index(wasm.OpLocalTee, 1).
		Index(wasm.OpLocalGet, 0). // digit = val % 10 + '0'
		I64Const(10).
		Op(wasm.OpI64RemU, wasm.OpI32WrapI64).
		I32Const('0').
		Op(wasm.OpI32Add).
		MemArg(wasm.OpI32Store8, 0, 0).
		Index(wasm.OpLocalGet, 0). // val /= 10
		I64Const(10).
		Op(wasm.OpI64DivU).
		Index(wasm.OpLocalTee, 0).
		Op(wasm.OpI64Eqz, wasm.OpI32Eqz).
		Index(wasm.OpBrIf, 0). // while val != 0
		Op(wasm.OpEnd).
		Index(wasm.OpLocalGet, 1). // address
		Index(wasm.OpGlobalGet, StackPointerGlobal).
		Index(wasm.OpLocalGet, 1).
		Op(wasm.OpI32Sub) // size = top of stack - address
	return Code{
		Asm(loop),
		Call(puts),
		Raw(byte(wasm.OpEnd)),
	}
}

// printI64Body prints a minus sign and negates negative values, then
// defers to the unsigned printer.
func printI64Body(printChar, printU64 Routine) Code {
	return Code{
		Asm(wasm.NewBuilder().
			Index(wasm.OpLocalGet, 0).
			I64Const(0).
			Op(wasm.OpI64LtS).
			Block(wasm.OpIf, wasm.I64).
			I32Const('-')),
		Call(printChar),
		Asm(wasm.NewBuilder().
			I64Const(0). // val = -val
			Index(wasm.OpLocalGet, 0).
			Op(wasm.OpI64Sub).
			Op(wasm.OpElse).
			Index(wasm.OpLocalGet, 0).
			Op(wasm.OpEnd)),
		Call(printU64),
		Raw(byte(wasm.OpEnd)),
	}
}
