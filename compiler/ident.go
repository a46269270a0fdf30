package compiler

import (
	"fmt"
	"strconv"
)

// Style classes attached to displayed items.
const (
	StyleKeyword = "keyword"
	StyleVarDef  = "vardef"
	StyleFuncDef = "funcdef"
	StyleCall    = "call"
	StyleComment = "comment"
	StyleLiteral = "literal"
	StyleNumber  = "number"
	StyleString  = "string"
	StylePlain   = ""
)

// Display is the text and style class an editor shows for an item.
// Text may contain a newline separating a qualifier from the name.
type Display struct {
	Text  string
	Style string
}

// Item is anything that can occupy a slot in a document row.
type Item interface {
	Display() Display
	Record() Record
}

// Typed items yield a value.
type Typed interface {
	Type() *Type
}

// ---------------------------------------------------------------------------
// Record: id-keyed serialization
// ---------------------------------------------------------------------------

// Record is the saved form of an Item. Exactly one group of fields is set.
// References to other records are by id only, never by value.
type Record struct {
	// VariableDef
	Name          *string `cbor:"name,omitempty"`
	Type          *TypeID `cbor:"type,omitempty"`
	Scope         *TypeID `cbor:"scope,omitempty"`
	ID            *int    `cbor:"id,omitempty"`
	TypeAnnotated bool    `cbor:"typeAnnotated,omitempty"`

	VarDef     *int       `cbor:"varDef,omitempty"`
	FuncDef    *RoutineID `cbor:"funcDef,omitempty"`
	ArgIndex   *int       `cbor:"argIndex,omitempty"`
	LoopLayers *int       `cbor:"loopLayers,omitempty"`
	Symbol     *SymbolID  `cbor:"symbol,omitempty"`
	Keyword    *KeywordID `cbor:"keyword,omitempty"`
	BoolLit    *bool      `cbor:"boolLit,omitempty"`
	NumLit     *string    `cbor:"numLit,omitempty"`
	StrLit     *string    `cbor:"strLit,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}

// IsVariableDef reports whether the record defines a variable.
func (r Record) IsVariableDef() bool {
	return r.ID != nil
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// VariableDef defines a variable. ID is unique within its document.
type VariableDef struct {
	ID            int
	Name          string
	Type          *Type
	Scope         *Type
	TypeAnnotated bool // the type was written explicitly, not inferred
}

// NewVariableDef creates a definition. An empty name becomes "var<id>"
// and a nil scope means the top level.
func NewVariableDef(id int, name string, typ, scope *Type, typeAnnotated bool) *VariableDef {
	if name == "" {
		name = "var" + strconv.Itoa(id)
	}
	if scope == nil {
		scope = TypeVoid
	}
	return &VariableDef{ID: id, Name: name, Type: typ, Scope: scope, TypeAnnotated: typeAnnotated}
}

func (v *VariableDef) Display() Display {
	if v.TypeAnnotated {
		return Display{Text: v.Type.Text + "\n" + v.Name, Style: StyleKeyword + " " + StyleVarDef}
	}
	return Display{Text: v.Name, Style: StyleVarDef}
}

func (v *VariableDef) Record() Record {
	r := Record{Name: ptr(v.Name), Type: ptr(v.Type.ID), ID: ptr(v.ID), TypeAnnotated: v.TypeAnnotated}
	if v.Scope != TypeVoid {
		r.Scope = ptr(v.Scope.ID)
	}
	return r
}

// VariableRef refers to a VariableDef from some scope.
type VariableRef struct {
	Def       *VariableDef
	ShowScope bool
}

// NewVariableRef creates a reference made from scope current; the
// definition's scope is shown when it differs.
func NewVariableRef(def *VariableDef, current *Type) *VariableRef {
	if current == nil {
		current = TypeVoid
	}
	return &VariableRef{Def: def, ShowScope: def.Scope != current}
}

func (v *VariableRef) Display() Display {
	if v.ShowScope {
		return Display{Text: v.Def.Scope.Text + "\n" + v.Def.Name, Style: StyleKeyword}
	}
	return Display{Text: v.Def.Name, Style: StylePlain}
}

func (v *VariableRef) Record() Record {
	return Record{VarDef: ptr(v.Def.ID)}
}

func (v *VariableRef) Type() *Type {
	return v.Def.Type
}

// ---------------------------------------------------------------------------
// Routines
// ---------------------------------------------------------------------------

// FunctionRef is a call site naming a routine.
type FunctionRef struct {
	Routine   Routine
	ShowScope bool
}

// NewFunctionRef creates a reference made from scope current.
func NewFunctionRef(r Routine, current *Type) *FunctionRef {
	if current == nil {
		current = TypeVoid
	}
	return &FunctionRef{Routine: r, ShowScope: r.Signature().Namespace != current}
}

func (f *FunctionRef) Display() Display {
	s := f.Routine.Signature()
	if f.ShowScope {
		return Display{Text: s.Namespace.Text + "\n" + s.Name, Style: StyleKeyword + " " + StyleCall}
	}
	return Display{Text: s.Name, Style: StyleCall}
}

func (f *FunctionRef) Record() Record {
	return Record{FuncDef: ptr(f.Routine.ID())}
}

func (f *FunctionRef) Type() *Type {
	return f.Routine.Signature().Returns
}

// ArgHint labels an argument slot of a call. It is not a value.
type ArgHint struct {
	Routine Routine
	Index   int
}

func (a *ArgHint) Display() Display {
	params := a.Routine.Signature().Params
	if a.Index < 0 || a.Index >= len(params) {
		return Display{Text: "?", Style: StyleComment}
	}
	return Display{Text: params[a.Index].Label(), Style: StyleComment}
}

func (a *ArgHint) Record() Record {
	return Record{FuncDef: ptr(a.Routine.ID()), ArgIndex: ptr(a.Index)}
}

// ---------------------------------------------------------------------------
// Loop labels
// ---------------------------------------------------------------------------

// LoopLabel names how many enclosing loops a break or continue leaves.
type LoopLabel struct {
	Layers int
}

func (l LoopLabel) Display() Display {
	if l.Layers <= 2 {
		return Display{Text: "outer", Style: StyleCall}
	}
	return Display{Text: Ordinal(l.Layers) + " out", Style: StyleCall}
}

func (l LoopLabel) Record() Record {
	return Record{LoopLayers: ptr(l.Layers)}
}

// Ordinal renders n with its English suffix: 1st, 2nd, 3rd, 4th, 11th,
// 12th, 13th, 21st, 111th.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// ---------------------------------------------------------------------------
// Symbols and keywords as items
// ---------------------------------------------------------------------------

func (s *Symbol) Display() Display {
	return Display{Text: s.Text, Style: StylePlain}
}

func (s *Symbol) Record() Record {
	return Record{Symbol: ptr(s.ID)}
}

func (k *Keyword) Display() Display {
	return Display{Text: k.Text, Style: StyleKeyword}
}

func (k *Keyword) Record() Record {
	return Record{Keyword: ptr(k.ID)}
}

// ---------------------------------------------------------------------------
// Record resolution
// ---------------------------------------------------------------------------

// DefineFromRecord rebuilds a VariableDef and marks its id as used.
func (c *Context) DefineFromRecord(r Record) (*VariableDef, error) {
	if !r.IsVariableDef() || r.Type == nil {
		return nil, fmt.Errorf("record is not a variable definition")
	}
	typ, err := c.Types.Lookup(*r.Type)
	if err != nil {
		return nil, err
	}
	scope := TypeVoid
	if r.Scope != nil {
		if scope, err = c.Types.Lookup(*r.Scope); err != nil {
			return nil, err
		}
	}
	name := ""
	if r.Name != nil {
		name = *r.Name
	}
	c.Vars.Observe(*r.ID)
	return NewVariableDef(*r.ID, name, typ, scope, r.TypeAnnotated), nil
}

// ItemFromRecord resolves a record against this context. vars holds every
// variable defined in the document, so references may precede their
// definitions. current is the scope the item appears in.
func (c *Context) ItemFromRecord(r Record, vars map[int]*VariableDef, current *Type) (Item, error) {
	switch {
	case r.IsVariableDef():
		if def, ok := vars[*r.ID]; ok {
			return def, nil
		}
		return nil, fmt.Errorf("variable %d was not predefined", *r.ID)
	case r.VarDef != nil:
		def, ok := vars[*r.VarDef]
		if !ok {
			return nil, fmt.Errorf("reference to undefined variable %d", *r.VarDef)
		}
		return NewVariableRef(def, current), nil
	case r.FuncDef != nil:
		routine, err := c.Library.Lookup(*r.FuncDef)
		if err != nil {
			return nil, err
		}
		if r.ArgIndex != nil {
			return &ArgHint{Routine: routine, Index: *r.ArgIndex}, nil
		}
		return NewFunctionRef(routine, current), nil
	case r.LoopLayers != nil:
		return LoopLabel{Layers: *r.LoopLayers}, nil
	case r.Symbol != nil:
		sym, err := c.Operators.Symbol(*r.Symbol)
		if err != nil {
			return nil, err
		}
		return sym, nil
	case r.Keyword != nil:
		kw, err := c.Keywords.Keyword(*r.Keyword)
		if err != nil {
			return nil, err
		}
		return kw, nil
	case r.BoolLit != nil:
		return BooleanLiteral{Value: *r.BoolLit}, nil
	case r.NumLit != nil:
		return NumericLiteral{Text: *r.NumLit}, nil
	case r.StrLit != nil:
		return StringLiteral{Text: *r.StrLit}, nil
	}
	return nil, fmt.Errorf("empty record")
}
