package wasm

import "slices"

// ---------------------------------------------------------------------------
// Module: logical content of a binary module
// ---------------------------------------------------------------------------

// FuncType is a function signature.
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two signatures have identical params and results.
func (ft FuncType) Equal(other FuncType) bool {
	return slices.Equal(ft.Params, other.Params) && slices.Equal(ft.Results, other.Results)
}

// Limits bounds a memory or table in pages or elements.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

// TableType describes a table import.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// Import is one entry of the import section. Only the field matching Kind
// is meaningful.
type Import struct {
	Module    string
	Field     string
	Kind      ExternalKind
	TypeIndex uint32     // KindFunction
	Table     TableType  // KindTable
	Memory    Limits     // KindMemory
	Global    GlobalType // KindGlobal
}

// Global is a module-defined global with its constant initializer
// expression, excluding the trailing end opcode.
type Global struct {
	Type GlobalType
	Init []byte
}

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExternalKind
	Index uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count uint32
	Type  ValueType
}

// FunctionBody is a code-section entry. Code holds the instruction bytes
// including the terminating end opcode.
type FunctionBody struct {
	Locals []LocalEntry
	Code   []byte
}

// DataSegment initializes linear memory at a constant i32 offset.
type DataSegment struct {
	MemoryIndex uint32
	Offset      int32
	Bytes       []byte
}

// RawSection is a section kept as an uninterpreted payload.
type RawSection struct {
	ID      SectionID
	Name    string // custom sections only
	Payload []byte
}

// Module is the logical content of a WebAssembly module.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Functions []uint32 // type index per defined function
	Memories  []Limits
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Code      []FunctionBody
	Data      []DataSegment
	Raw       []RawSection
}

// ImportedFunctionCount returns the number of function imports, which
// precede defined functions in the function index space.
func (m *Module) ImportedFunctionCount() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == KindFunction {
			n++
		}
	}
	return n
}

// AddType returns the index of ft in the type section, appending it if no
// equal signature exists yet.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, existing := range m.Types {
		if existing.Equal(ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, FuncType{
		Params:  slices.Clone(ft.Params),
		Results: slices.Clone(ft.Results),
	})
	return uint32(len(m.Types) - 1)
}

// ExportByName returns the export with the given name.
func (m *Module) ExportByName(name string) (Export, bool) {
	for _, e := range m.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// ---------------------------------------------------------------------------
// Builder: instruction assembler
// ---------------------------------------------------------------------------

// Builder assembles instruction bytes with properly encoded immediates.
type Builder struct {
	buf []byte
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Op appends opcodes without immediates.
func (b *Builder) Op(ops ...Opcode) *Builder {
	for _, op := range ops {
		b.buf = append(b.buf, byte(op))
	}
	return b
}

// Index appends an opcode followed by a varuint32 index immediate
// (local/global/call/br).
func (b *Builder) Index(op Opcode, index uint32) *Builder {
	b.buf = append(b.buf, byte(op))
	b.buf = AppendUvarint(b.buf, uint64(index))
	return b
}

// I32Const appends i32.const v.
func (b *Builder) I32Const(v int32) *Builder {
	b.buf = append(b.buf, byte(OpI32Const))
	b.buf = AppendVarint(b.buf, int64(v))
	return b
}

// I64Const appends i64.const v.
func (b *Builder) I64Const(v int64) *Builder {
	b.buf = append(b.buf, byte(OpI64Const))
	b.buf = AppendVarint(b.buf, v)
	return b
}

// MemArg appends a load/store opcode with its alignment and offset.
func (b *Builder) MemArg(op Opcode, align, offset uint32) *Builder {
	b.buf = append(b.buf, byte(op))
	b.buf = AppendUvarint(b.buf, uint64(align))
	b.buf = AppendUvarint(b.buf, uint64(offset))
	return b
}

// Block appends block, loop or if with a block result type.
func (b *Builder) Block(op Opcode, result ValueType) *Builder {
	b.buf = append(b.buf, byte(op), byte(result))
	return b
}

// Raw appends pre-encoded bytes.
func (b *Builder) Raw(data ...byte) *Builder {
	b.buf = append(b.buf, data...)
	return b
}

// Len returns the number of bytes assembled so far.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes returns a copy of the assembled bytes.
func (b *Builder) Bytes() []byte {
	return slices.Clone(b.buf)
}
