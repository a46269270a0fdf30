package compiler

import (
	"fmt"
	"slices"
	"sort"

	"github.com/chazu/touchscript/pkg/wasm"
)

// TypeID identifies a type. Built-in types use fixed negative ids; custom
// types get positive ids from their registry.
type TypeID int

const (
	IDVoid     TypeID = -1
	IDAny      TypeID = -2
	IDBool     TypeID = -3
	IDI64      TypeID = -10
	IDU64      TypeID = -11
	IDI32      TypeID = -12
	IDU32      TypeID = -13
	IDF64      TypeID = -20
	IDF32      TypeID = -21
	IDString   TypeID = -30
	IDIterable TypeID = -31
	IDSystem   TypeID = -40
	IDMath     TypeID = -41
)

// Cast is the code converting a value of some source type into the owning
// type. Preferred casts win when several implicit conversions apply.
type Cast struct {
	Code      []byte
	Preferred bool
}

// Type is a value type or namespace known to the compiler.
type Type struct {
	ID   TypeID
	Text string
	Size int // storage size in bytes; 0 for non-numeric and reference types

	casts map[TypeID]Cast
}

func cast(ops ...wasm.Opcode) Cast {
	return Cast{Code: wasm.NewBuilder().Op(ops...).Bytes()}
}

func preferred(ops ...wasm.Opcode) Cast {
	c := cast(ops...)
	c.Preferred = true
	return c
}

// ---------------------------------------------------------------------------
// Built-in types
// ---------------------------------------------------------------------------

var (
	TypeVoid = &Type{ID: IDVoid, Text: "void"}
	TypeAny  = &Type{ID: IDAny, Text: "Any"}
	TypeBool = &Type{ID: IDBool, Text: "bool", Size: 4}

	TypeI64 = &Type{ID: IDI64, Text: "long", Size: 8, casts: map[TypeID]Cast{
		IDU64: preferred(),
		IDI32: preferred(wasm.OpI64ExtendI32S),
		IDU32: preferred(wasm.OpI64ExtendI32U),
		IDF32: cast(wasm.OpI64TruncF32S),
		IDF64: cast(wasm.OpI64TruncF64S),
	}}

	TypeU64 = &Type{ID: IDU64, Text: "ulong", Size: 8, casts: map[TypeID]Cast{
		IDI64: preferred(),
		IDI32: preferred(wasm.OpI64ExtendI32S),
		IDU32: preferred(wasm.OpI64ExtendI32U),
		IDF32: cast(wasm.OpI64TruncF32U),
		IDF64: cast(wasm.OpI64TruncF64U),
	}}

	TypeI32 = &Type{ID: IDI32, Text: "int", Size: 4, casts: map[TypeID]Cast{
		IDI64: preferred(wasm.OpI32WrapI64),
		IDU32: preferred(),
		IDU64: preferred(wasm.OpI32WrapI64),
		IDF32: cast(wasm.OpI32TruncF32S),
		IDF64: cast(wasm.OpI32TruncF64S),
	}}

	TypeU32 = &Type{ID: IDU32, Text: "uint", Size: 4, casts: map[TypeID]Cast{
		IDI64: preferred(wasm.OpI32WrapI64),
		IDI32: preferred(),
		IDU64: preferred(wasm.OpI32WrapI64),
		IDF32: cast(wasm.OpI32TruncF32U),
		IDF64: cast(wasm.OpI32TruncF64U),
	}}

	TypeF64 = &Type{ID: IDF64, Text: "double", Size: 8, casts: map[TypeID]Cast{
		IDI32: cast(wasm.OpF64ConvertI32S),
		IDI64: cast(wasm.OpF64ConvertI64S),
		IDU32: cast(wasm.OpF64ConvertI32U),
		IDU64: cast(wasm.OpF64ConvertI64U),
		IDF32: preferred(wasm.OpF64PromoteF32),
	}}

	TypeF32 = &Type{ID: IDF32, Text: "float", Size: 4, casts: map[TypeID]Cast{
		IDI32: cast(wasm.OpF32ConvertI32S),
		IDI64: cast(wasm.OpF32ConvertI64S),
		IDU32: cast(wasm.OpF32ConvertI32U),
		IDU64: cast(wasm.OpF32ConvertI64U),
		IDF64: preferred(wasm.OpF32DemoteF64),
	}}

	TypeString   = &Type{ID: IDString, Text: "string"}
	TypeIterable = &Type{ID: IDIterable, Text: "iterable"}
	TypeSystem   = &Type{ID: IDSystem, Text: "System"}
	TypeMath     = &Type{ID: IDMath, Text: "Math"}
)

// BuiltinTypes lists the built-in types in catalogue order.
func BuiltinTypes() []*Type {
	return []*Type{
		TypeVoid, TypeAny, TypeBool,
		TypeI64, TypeU64, TypeI32, TypeU32,
		TypeF64, TypeF32,
		TypeString, TypeIterable,
		TypeSystem, TypeMath,
	}
}

// ---------------------------------------------------------------------------
// Type methods
// ---------------------------------------------------------------------------

// IsBuiltin reports whether t is one of the fixed built-in types.
func (t *Type) IsBuiltin() bool {
	return t.ID < 0
}

// IsNumeric reports whether t is an integer or floating-point type.
func (t *Type) IsNumeric() bool {
	switch t.ID {
	case IDI64, IDU64, IDI32, IDU32, IDF64, IDF32:
		return true
	}
	return false
}

// CastFrom returns the cast converting from into t.
func (t *Type) CastFrom(from *Type) (Cast, bool) {
	c, ok := t.casts[from.ID]
	return c, ok
}

// CastSources returns the ids of every type t can be cast from, ascending.
func (t *Type) CastSources() []TypeID {
	ids := make([]TypeID, 0, len(t.casts))
	for id := range t.casts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ValueTypes returns the machine representation of a value of type t.
// Strings are an address and a byte length.
func (t *Type) ValueTypes() []wasm.ValueType {
	switch t.ID {
	case IDBool, IDI32, IDU32:
		return []wasm.ValueType{wasm.I32}
	case IDI64, IDU64:
		return []wasm.ValueType{wasm.I64}
	case IDF32:
		return []wasm.ValueType{wasm.F32}
	case IDF64:
		return []wasm.ValueType{wasm.F64}
	case IDString:
		return []wasm.ValueType{wasm.I32, wasm.I32}
	}
	return nil
}

func (t *Type) String() string {
	return t.Text
}

// ---------------------------------------------------------------------------
// TypeRegistry
// ---------------------------------------------------------------------------

// TypeRegistry catalogues the built-in types plus the custom types defined
// in one context.
type TypeRegistry struct {
	byID  map[TypeID]*Type
	order []*Type
	ids   *IDAllocator
}

// NewTypeRegistry creates a registry holding the built-in types.
// Custom types are numbered from 1.
func NewTypeRegistry() *TypeRegistry {
	r := &TypeRegistry{
		byID: make(map[TypeID]*Type),
		ids:  NewIDAllocator(1),
	}
	for _, t := range BuiltinTypes() {
		r.byID[t.ID] = t
		r.order = append(r.order, t)
	}
	return r
}

// Lookup returns the type with the given id.
func (r *TypeRegistry) Lookup(id TypeID) (*Type, error) {
	if t, ok := r.byID[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("type id %d: %w", id, ErrUnknownType)
}

// Types returns every registered type, built-ins first.
func (r *TypeRegistry) Types() []*Type {
	return slices.Clone(r.order)
}

// Define registers a custom type with the next positive id.
func (r *TypeRegistry) Define(text string, size int) *Type {
	t := &Type{ID: TypeID(r.ids.Next()), Text: text, Size: size}
	r.byID[t.ID] = t
	r.order = append(r.order, t)
	return t
}

// ResolveCast returns the code converting a value of type from into type
// to. Casting a type to itself needs no code.
func (r *TypeRegistry) ResolveCast(from, to *Type) ([]byte, error) {
	if from.ID == to.ID {
		return nil, nil
	}
	c, ok := to.CastFrom(from)
	if !ok {
		return nil, fmt.Errorf("%s to %s: %w", from.Text, to.Text, ErrUnsupportedCast)
	}
	return slices.Clone(c.Code), nil
}

// CastCandidates returns the targets a value of type from can be
// implicitly converted into. The identity conversion comes first, then
// preferred casts, then the rest; ties keep the order of targets.
func (r *TypeRegistry) CastCandidates(from *Type, targets []*Type) []*Type {
	rank := func(t *Type) int {
		if t.ID == from.ID {
			return 0
		}
		if c, ok := t.CastFrom(from); ok && c.Preferred {
			return 1
		}
		return 2
	}
	var out []*Type
	for _, t := range targets {
		if _, ok := t.CastFrom(from); ok || t.ID == from.ID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}
