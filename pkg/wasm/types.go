package wasm

import "fmt"

// Magic is the four-byte preamble of every module.
var Magic = [4]byte{0x00, 'a', 's', 'm'}

// Version is the only module format version understood by the codec.
const Version uint32 = 1

// PageSize is the size in bytes of one linear-memory page.
const PageSize = 65536

// MaxPages is the largest page count a 32-bit linear memory can declare.
const MaxPages = 65536

// ValueType is a value-type or type-constructor byte.
type ValueType byte

const (
	I32       ValueType = 0x7F
	I64       ValueType = 0x7E
	F32       ValueType = 0x7D
	F64       ValueType = 0x7C
	FuncRef   ValueType = 0x70 // table element type
	FuncForm  ValueType = 0x60 // function signature form
	BlockVoid ValueType = 0x40 // empty block result
)

var valueTypeNames = map[ValueType]string{
	I32:       "i32",
	I64:       "i64",
	F32:       "f32",
	F64:       "f64",
	FuncRef:   "funcref",
	FuncForm:  "func",
	BlockVoid: "void",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%02X)", byte(t))
}

// IsNumeric reports whether t may appear as a parameter, result, local or global.
func (t ValueType) IsNumeric() bool {
	return t == I32 || t == I64 || t == F32 || t == F64
}

// SectionID identifies a module section.
type SectionID byte

const (
	SectionCustom   SectionID = 0
	SectionType     SectionID = 1
	SectionImport   SectionID = 2
	SectionFunction SectionID = 3
	SectionTable    SectionID = 4
	SectionMemory   SectionID = 5
	SectionGlobal   SectionID = 6
	SectionExport   SectionID = 7
	SectionStart    SectionID = 8
	SectionElement  SectionID = 9
	SectionCode     SectionID = 10
	SectionData     SectionID = 11
)

var sectionNames = [...]string{
	SectionCustom:   "Custom",
	SectionType:     "Type",
	SectionImport:   "Import",
	SectionFunction: "Function",
	SectionTable:    "Table",
	SectionMemory:   "Memory",
	SectionGlobal:   "Global",
	SectionExport:   "Export",
	SectionStart:    "Start",
	SectionElement:  "Element",
	SectionCode:     "Code",
	SectionData:     "Data",
}

func (id SectionID) String() string {
	if int(id) < len(sectionNames) {
		return sectionNames[id]
	}
	return "Unknown"
}

// ExternalKind tags an import or export.
type ExternalKind byte

const (
	KindFunction ExternalKind = 0
	KindTable    ExternalKind = 1
	KindMemory   ExternalKind = 2
	KindGlobal   ExternalKind = 3
)

func (k ExternalKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindTable:
		return "table"
	case KindMemory:
		return "memory"
	case KindGlobal:
		return "global"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Valid reports whether k is one of the four MVP external kinds.
func (k ExternalKind) Valid() bool {
	return k <= KindGlobal
}
