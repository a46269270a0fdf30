package compiler

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chazu/touchscript/pkg/wasm"
)

// SymbolID identifies an operator or punctuation symbol. Ids are stored in
// saved documents and never renumbered.
type SymbolID int

const (
	SymAssign SymbolID = iota
	SymAddAssign
	SymSubAssign
	SymMulAssign
	SymDivAssign
	SymModAssign
	SymAndAssign
	SymOrAssign
	SymXorAssign
	SymShlAssign
	SymShrAssign
	SymAdd
	SymSub
	SymMul
	SymDiv
	SymMod
	SymBitAnd
	SymBitOr
	SymBitXor
	SymShl
	SymShr
	SymBoolAnd
	SymBoolOr
	SymRefEqual
	SymRefNotEqual
	SymEqual
	SymNotEqual
	SymLess
	SymGreater
	SymLessEqual
	SymGreaterEqual
	SymRangeHalfOpen
	SymRangeClosed
	SymRangeDownHalfOpen
	SymRangeDownClosed
	SymNegate
	SymNot
	SymPlaceholder
	SymArgSeparator
	SymAccessor
	SymBeginExpr
	SymBeginArgs
	SymEndExpr
	SymEndArgs
)

// Bracket precedences sit below every real operator.
const (
	PrecOpenBracket  = -2
	PrecCloseBracket = -1
)

// Use is the result of applying a symbol to one operand type.
type Use struct {
	Result *Type
	Code   []byte
}

// Symbol is an operator or punctuation token.
type Symbol struct {
	ID         SymbolID
	Text       string
	Precedence int // higher binds tighter; negative marks brackets

	IsArith      bool
	IsBool       bool
	IsAssignment bool
	IsUnary      bool
	IsRange      bool

	// PrecedesExpression is false for tokens that must be followed by
	// another operator or a closing bracket.
	PrecedesExpression bool

	// Brackets only.
	Direction int // +1 opens, -1 closes
	Matching  *Symbol

	uses map[TypeID]Use
}

// IsBinary reports whether the symbol combines two operands.
func (s *Symbol) IsBinary() bool {
	return s.IsArith || s.IsBool
}

// IsBracket reports whether the symbol opens or closes a group.
func (s *Symbol) IsBracket() bool {
	return s.Direction != 0
}

// Dispatch returns the result type and code for applying s to operand.
func (s *Symbol) Dispatch(operand *Type) (Use, error) {
	u, ok := s.uses[operand.ID]
	if !ok {
		return Use{}, fmt.Errorf("%q on %s: %w", s.Text, operand.Text, ErrUnsupportedOperator)
	}
	return Use{Result: u.Result, Code: slices.Clone(u.Code)}, nil
}

// OperandTypes returns the ids of every operand type s accepts, ascending.
func (s *Symbol) OperandTypes() []TypeID {
	ids := make([]TypeID, 0, len(s.uses))
	for id := range s.uses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Symbol) String() string {
	return s.Text
}

// BindsBefore reports whether a pending operator must be reduced before
// next is applied: next does not preempt an operator of equal or higher
// precedence.
func BindsBefore(pending, next *Symbol) bool {
	return next.Precedence <= pending.Precedence
}

// ---------------------------------------------------------------------------
// OperatorRegistry
// ---------------------------------------------------------------------------

// OperatorRegistry is the immutable symbol catalogue.
type OperatorRegistry struct {
	symbols []*Symbol
}

// DefaultOperators returns the shared built-in symbol catalogue.
var DefaultOperators = sync.OnceValue(newOperatorRegistry)

// Symbol returns the symbol with the given id.
func (r *OperatorRegistry) Symbol(id SymbolID) (*Symbol, error) {
	if id < 0 || int(id) >= len(r.symbols) {
		return nil, fmt.Errorf("symbol id %d: %w", id, ErrUnknownSymbol)
	}
	return r.symbols[id], nil
}

// Symbols returns the catalogue in id order.
func (r *OperatorRegistry) Symbols() []*Symbol {
	return slices.Clone(r.symbols)
}

// ByText returns every symbol spelled text. "-" and "=" each name two.
func (r *OperatorRegistry) ByText(text string) []*Symbol {
	var out []*Symbol
	for _, s := range r.symbols {
		if s.Text == text {
			out = append(out, s)
		}
	}
	return out
}

// Dispatch looks up the symbol and applies it to operand.
func (r *OperatorRegistry) Dispatch(id SymbolID, operand *Type) (Use, error) {
	s, err := r.Symbol(id)
	if err != nil {
		return Use{}, err
	}
	return s.Dispatch(operand)
}

// RangeOps returns the loop-continuation comparison and the step
// arithmetic of a range symbol, in that order.
func (r *OperatorRegistry) RangeOps(id SymbolID, operand *Type) (compare, step wasm.Opcode, err error) {
	s, err := r.Symbol(id)
	if err != nil {
		return 0, 0, err
	}
	if !s.IsRange {
		return 0, 0, fmt.Errorf("%q is not a range: %w", s.Text, ErrUnsupportedOperator)
	}
	u, err := s.Dispatch(operand)
	if err != nil {
		return 0, 0, err
	}
	return wasm.Opcode(u.Code[0]), wasm.Opcode(u.Code[1]), nil
}

// ---------------------------------------------------------------------------
// BracketStack
// ---------------------------------------------------------------------------

// BracketStack tracks open brackets while grouping an expression.
type BracketStack struct {
	open []*Symbol
}

// Push records an opening bracket.
func (b *BracketStack) Push(s *Symbol) error {
	if s.Direction != 1 {
		return fmt.Errorf("%q does not open a group: %w", s.Text, ErrMismatchedBracket)
	}
	b.open = append(b.open, s)
	return nil
}

// Close pops the innermost open bracket, which must be matched by closer.
func (b *BracketStack) Close(closer *Symbol) error {
	if closer.Direction != -1 {
		return fmt.Errorf("%q does not close a group: %w", closer.Text, ErrMismatchedBracket)
	}
	if len(b.open) == 0 {
		return fmt.Errorf("%q with no open group: %w", closer.Text, ErrMismatchedBracket)
	}
	top := b.open[len(b.open)-1]
	if top.Matching != closer {
		return fmt.Errorf("%q closes %q: %w", closer.Text, top.Text, ErrMismatchedBracket)
	}
	b.open = b.open[:len(b.open)-1]
	return nil
}

// Depth returns the number of unclosed brackets.
func (b *BracketStack) Depth() int {
	return len(b.open)
}

// ---------------------------------------------------------------------------
// Catalogue
// ---------------------------------------------------------------------------

type useRow struct {
	operand *Type
	code    []byte
}

func row(operand *Type, ops ...wasm.Opcode) useRow {
	return useRow{operand: operand, code: wasm.NewBuilder().Op(ops...).Bytes()}
}

// uses builds a dispatch table. A nil result means each row yields its
// own operand type.
func uses(result *Type, rows ...useRow) map[TypeID]Use {
	m := make(map[TypeID]Use, len(rows))
	for _, r := range rows {
		res := result
		if res == nil {
			res = r.operand
		}
		m[r.operand.ID] = Use{Result: res, Code: r.code}
	}
	return m
}

// ints lists the four integer rows of an operator; floats are added by the
// caller where they apply.
func ints(i32, u32, i64, u64 wasm.Opcode) []useRow {
	return []useRow{
		row(TypeI32, i32),
		row(TypeU32, u32),
		row(TypeI64, i64),
		row(TypeU64, u64),
	}
}

func floats(f32, f64 wasm.Opcode) []useRow {
	return []useRow{row(TypeF32, f32), row(TypeF64, f64)}
}

func newOperatorRegistry() *OperatorRegistry {
	add := ints(wasm.OpI32Add, wasm.OpI32Add, wasm.OpI64Add, wasm.OpI64Add)
	add = append(add, floats(wasm.OpF32Add, wasm.OpF64Add)...)
	sub := ints(wasm.OpI32Sub, wasm.OpI32Sub, wasm.OpI64Sub, wasm.OpI64Sub)
	sub = append(sub, floats(wasm.OpF32Sub, wasm.OpF64Sub)...)
	mul := ints(wasm.OpI32Mul, wasm.OpI32Mul, wasm.OpI64Mul, wasm.OpI64Mul)
	mul = append(mul, floats(wasm.OpF32Mul, wasm.OpF64Mul)...)
	div := ints(wasm.OpI32DivS, wasm.OpI32DivU, wasm.OpI64DivS, wasm.OpI64DivU)
	div = append(div, floats(wasm.OpF32Div, wasm.OpF64Div)...)
	rem := ints(wasm.OpI32RemS, wasm.OpI32RemU, wasm.OpI64RemS, wasm.OpI64RemU)
	and := ints(wasm.OpI32And, wasm.OpI32And, wasm.OpI64And, wasm.OpI64And)
	or := ints(wasm.OpI32Or, wasm.OpI32Or, wasm.OpI64Or, wasm.OpI64Or)
	xor := ints(wasm.OpI32Xor, wasm.OpI32Xor, wasm.OpI64Xor, wasm.OpI64Xor)
	shl := ints(wasm.OpI32Shl, wasm.OpI32Shl, wasm.OpI64Shl, wasm.OpI64Shl)
	shr := ints(wasm.OpI32ShrS, wasm.OpI32ShrU, wasm.OpI64ShrS, wasm.OpI64ShrU)

	cmp := func(i32, u32, i64, u64, f32, f64 wasm.Opcode) map[TypeID]Use {
		return uses(TypeBool, append(ints(i32, u32, i64, u64), floats(f32, f64)...)...)
	}
	rng := func(down bool, i32, u32, i64, u64, f32, f64 wasm.Opcode) map[TypeID]Use {
		step32, step64, stepF32, stepF64 := wasm.OpI32Add, wasm.OpI64Add, wasm.OpF32Add, wasm.OpF64Add
		if down {
			step32, step64, stepF32, stepF64 = wasm.OpI32Sub, wasm.OpI64Sub, wasm.OpF32Sub, wasm.OpF64Sub
		}
		return uses(nil,
			row(TypeI32, i32, step32),
			row(TypeU32, u32, step32),
			row(TypeI64, i64, step64),
			row(TypeU64, u64, step64),
			row(TypeF32, f32, stepF32),
			row(TypeF64, f64, stepF64),
		)
	}
	assign := func(id SymbolID, text string, rows []useRow) *Symbol {
		return &Symbol{ID: id, Text: text, IsAssignment: true, PrecedesExpression: true, uses: uses(TypeVoid, rows...)}
	}
	arith := func(id SymbolID, text string, prec int, rows []useRow) *Symbol {
		return &Symbol{ID: id, Text: text, Precedence: prec, IsArith: true, PrecedesExpression: true, uses: uses(nil, rows...)}
	}
	boolean := func(id SymbolID, text string, prec int, table map[TypeID]Use) *Symbol {
		return &Symbol{ID: id, Text: text, Precedence: prec, IsBool: true, PrecedesExpression: true, uses: table}
	}
	rangeSym := func(id SymbolID, text string, table map[TypeID]Use) *Symbol {
		return &Symbol{ID: id, Text: text, IsRange: true, PrecedesExpression: true, uses: table}
	}
	plain := func(id SymbolID, text string, prec int, precedesExpr bool) *Symbol {
		return &Symbol{ID: id, Text: text, Precedence: prec, PrecedesExpression: precedesExpr}
	}

	minusOne32 := wasm.NewBuilder().I32Const(-1)
	minusOne64 := wasm.NewBuilder().I64Const(-1)
	negate := map[TypeID]Use{
		IDI32: {TypeI32, minusOne32.Bytes()},
		IDU32: {TypeU32, minusOne32.Bytes()},
		IDI64: {TypeI64, minusOne64.Bytes()},
		IDU64: {TypeU64, minusOne64.Bytes()},
		IDF32: {TypeF32, []byte{byte(wasm.OpF32Neg)}},
		IDF64: {TypeF64, []byte{byte(wasm.OpF64Neg)}},
	}
	for _, id := range []TypeID{IDI32, IDU32} {
		u := negate[id]
		u.Code = append(u.Code, byte(wasm.OpI32Mul))
		negate[id] = u
	}
	for _, id := range []TypeID{IDI64, IDU64} {
		u := negate[id]
		u.Code = append(u.Code, byte(wasm.OpI64Mul))
		negate[id] = u
	}
	not := map[TypeID]Use{
		IDBool: {TypeBool, []byte{byte(wasm.OpI32Eqz)}},
		IDI32:  {TypeI32, minusOne32.Bytes()},
		IDU32:  {TypeU32, minusOne32.Bytes()},
		IDI64:  {TypeI64, minusOne64.Bytes()},
		IDU64:  {TypeU64, minusOne64.Bytes()},
	}
	for _, id := range []TypeID{IDI32, IDU32} {
		u := not[id]
		u.Code = append(u.Code, byte(wasm.OpI32Xor))
		not[id] = u
	}
	for _, id := range []TypeID{IDI64, IDU64} {
		u := not[id]
		u.Code = append(u.Code, byte(wasm.OpI64Xor))
		not[id] = u
	}

	equal := cmp(wasm.OpI32Eq, wasm.OpI32Eq, wasm.OpI64Eq, wasm.OpI64Eq, wasm.OpF32Eq, wasm.OpF64Eq)
	equal[IDBool] = Use{TypeBool, []byte{byte(wasm.OpI32Eq)}}
	notEqual := cmp(wasm.OpI32Ne, wasm.OpI32Ne, wasm.OpI64Ne, wasm.OpI64Ne, wasm.OpF32Ne, wasm.OpF64Ne)
	notEqual[IDBool] = Use{TypeBool, []byte{byte(wasm.OpI32Ne)}}

	symbols := []*Symbol{
		{ID: SymAssign, Text: "=", IsAssignment: true, PrecedesExpression: true},
		assign(SymAddAssign, "+=", add),
		assign(SymSubAssign, "-=", sub),
		assign(SymMulAssign, "*=", mul),
		assign(SymDivAssign, "/=", div),
		assign(SymModAssign, "%=", rem),
		assign(SymAndAssign, "&=", and),
		assign(SymOrAssign, "|=", or),
		assign(SymXorAssign, "^=", xor),
		assign(SymShlAssign, "<<=", shl),
		assign(SymShrAssign, ">>=", shr),
		arith(SymAdd, "+", 8, add),
		arith(SymSub, "-", 8, sub),
		arith(SymMul, "*", 9, mul),
		arith(SymDiv, "/", 9, div),
		arith(SymMod, "%", 9, rem),
		arith(SymBitAnd, "&", 6, and),
		arith(SymBitOr, "|", 4, or),
		arith(SymBitXor, "^", 5, xor),
		arith(SymShl, "<<", 7, shl),
		arith(SymShr, ">>", 7, shr),
		boolean(SymBoolAnd, "&&", 2, uses(TypeBool, row(TypeBool, wasm.OpI32And))),
		boolean(SymBoolOr, "||", 1, uses(TypeBool, row(TypeBool, wasm.OpI32Or))),
		plain(SymRefEqual, "===", 3, true),
		plain(SymRefNotEqual, "!==", 3, true),
		boolean(SymEqual, "=", 3, equal),
		boolean(SymNotEqual, "≠", 3, notEqual),
		boolean(SymLess, "<", 3, cmp(wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpF32Lt, wasm.OpF64Lt)),
		boolean(SymGreater, ">", 3, cmp(wasm.OpI32GtS, wasm.OpI32GtU, wasm.OpI64GtS, wasm.OpI64GtU, wasm.OpF32Gt, wasm.OpF64Gt)),
		boolean(SymLessEqual, "≤", 3, cmp(wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpF32Le, wasm.OpF64Le)),
		boolean(SymGreaterEqual, "≥", 3, cmp(wasm.OpI32GeS, wasm.OpI32GeU, wasm.OpI64GeS, wasm.OpI64GeU, wasm.OpF32Ge, wasm.OpF64Ge)),
		rangeSym(SymRangeHalfOpen, "..<", rng(false, wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpF32Lt, wasm.OpF64Lt)),
		rangeSym(SymRangeClosed, "..≤", rng(false, wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpF32Le, wasm.OpF64Le)),
		rangeSym(SymRangeDownHalfOpen, "..>", rng(true, wasm.OpI32GtS, wasm.OpI32GtU, wasm.OpI64GtS, wasm.OpI64GtU, wasm.OpF32Gt, wasm.OpF64Gt)),
		rangeSym(SymRangeDownClosed, "..≥", rng(true, wasm.OpI32GeS, wasm.OpI32GeU, wasm.OpI64GeS, wasm.OpI64GeU, wasm.OpF32Ge, wasm.OpF64Ge)),
		{ID: SymNegate, Text: "-", Precedence: 10, IsUnary: true, PrecedesExpression: true, uses: negate},
		{ID: SymNot, Text: "!", Precedence: 10, IsUnary: true, PrecedesExpression: true, uses: not},
		plain(SymPlaceholder, "____", 0, false),
		plain(SymArgSeparator, ",", 0, true),
		plain(SymAccessor, ".", 0, false),
		{ID: SymBeginExpr, Text: "(", Precedence: PrecOpenBracket, Direction: 1, PrecedesExpression: true},
		{ID: SymBeginArgs, Text: "⟨", Precedence: PrecOpenBracket, Direction: 1, PrecedesExpression: true},
		{ID: SymEndExpr, Text: ")", Precedence: PrecCloseBracket, Direction: -1},
		{ID: SymEndArgs, Text: "⟩", Precedence: PrecCloseBracket, Direction: -1},
	}

	pair := func(opener, closer SymbolID) {
		symbols[opener].Matching = symbols[closer]
		symbols[closer].Matching = symbols[opener]
	}
	pair(SymBeginExpr, SymEndExpr)
	pair(SymBeginArgs, SymEndArgs)

	return &OperatorRegistry{symbols: symbols}
}
