package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/touchscript/pkg/wasm"
)

func sym(t *testing.T, id SymbolID) *Symbol {
	t.Helper()
	s, err := DefaultOperators().Symbol(id)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSymbolIDsAreDense(t *testing.T) {
	syms := DefaultOperators().Symbols()
	if len(syms) != int(SymEndArgs)+1 {
		t.Fatalf("len(Symbols()) = %d, want %d", len(syms), SymEndArgs+1)
	}
	for i, s := range syms {
		if s.ID != SymbolID(i) {
			t.Errorf("Symbols()[%d].ID = %d", i, s.ID)
		}
	}
	if _, err := DefaultOperators().Symbol(SymEndArgs + 1); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("Symbol(out of range) error = %v, want ErrUnknownSymbol", err)
	}
}

func TestByText(t *testing.T) {
	tests := []struct {
		text string
		want []SymbolID
	}{
		{"-", []SymbolID{SymSub, SymNegate}},
		{"=", []SymbolID{SymAssign, SymEqual}},
		{"≠", []SymbolID{SymNotEqual}},
		{"..≥", []SymbolID{SymRangeDownClosed}},
		{"~", nil},
	}
	for _, tt := range tests {
		var got []SymbolID
		for _, s := range DefaultOperators().ByText(tt.text) {
			got = append(got, s.ID)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ByText(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestDispatchIsTotalOverOperandTypes(t *testing.T) {
	reg := NewTypeRegistry()
	for _, s := range DefaultOperators().Symbols() {
		for _, id := range s.OperandTypes() {
			operand, err := reg.Lookup(id)
			if err != nil {
				t.Fatal(err)
			}
			u, err := s.Dispatch(operand)
			if err != nil {
				t.Errorf("%q on %s: %v", s.Text, operand, err)
				continue
			}
			if len(u.Code) == 0 {
				t.Errorf("%q on %s: empty code", s.Text, operand)
			}
			switch {
			case s.IsAssignment:
				if u.Result != TypeVoid {
					t.Errorf("%q on %s yields %s, want void", s.Text, operand, u.Result)
				}
			case s.IsBool:
				if u.Result != TypeBool {
					t.Errorf("%q on %s yields %s, want bool", s.Text, operand, u.Result)
				}
			case s.IsArith, s.IsUnary, s.IsRange:
				if u.Result != operand {
					t.Errorf("%q on %s yields %s, want %s", s.Text, operand, u.Result, operand)
				}
			}
		}
	}
}

func TestDispatch(t *testing.T) {
	tests := []struct {
		id      SymbolID
		operand *Type
		result  *Type
		code    []byte
	}{
		{SymAdd, TypeI32, TypeI32, []byte{0x6A}},
		{SymDiv, TypeU64, TypeU64, []byte{0x80}},
		{SymDiv, TypeF32, TypeF32, []byte{0x95}},
		{SymShr, TypeI32, TypeI32, []byte{0x75}},
		{SymShr, TypeU32, TypeU32, []byte{0x76}},
		{SymLess, TypeU32, TypeBool, []byte{0x49}},
		{SymGreaterEqual, TypeF64, TypeBool, []byte{0x66}},
		{SymNotEqual, TypeI64, TypeBool, []byte{0x52}},
		{SymEqual, TypeBool, TypeBool, []byte{0x46}},
		{SymBoolAnd, TypeBool, TypeBool, []byte{0x71}},
		{SymBoolOr, TypeBool, TypeBool, []byte{0x72}},
		{SymModAssign, TypeI64, TypeVoid, []byte{0x81}},
		{SymNegate, TypeI32, TypeI32, []byte{0x41, 0x7F, 0x6C}},
		{SymNegate, TypeF64, TypeF64, []byte{0x9A}},
		{SymNot, TypeBool, TypeBool, []byte{0x45}},
		{SymNot, TypeU64, TypeU64, []byte{0x42, 0x7F, 0x85}},
	}
	for _, tt := range tests {
		u, err := DefaultOperators().Dispatch(tt.id, tt.operand)
		if err != nil {
			t.Errorf("Dispatch(%d, %s) error: %v", tt.id, tt.operand, err)
			continue
		}
		if u.Result != tt.result {
			t.Errorf("Dispatch(%d, %s).Result = %s, want %s", tt.id, tt.operand, u.Result, tt.result)
		}
		if diff := cmp.Diff(tt.code, u.Code); diff != "" {
			t.Errorf("Dispatch(%d, %s).Code mismatch (-want +got):\n%s", tt.id, tt.operand, diff)
		}
	}
}

func TestDispatchUnsupported(t *testing.T) {
	tests := []struct {
		id      SymbolID
		operand *Type
	}{
		{SymMod, TypeF32},
		{SymBitAnd, TypeF64},
		{SymBoolAnd, TypeI32},
		{SymAdd, TypeString},
		{SymNot, TypeF32},
		{SymPlaceholder, TypeI32},
		{SymBeginExpr, TypeI32},
	}
	for _, tt := range tests {
		if _, err := DefaultOperators().Dispatch(tt.id, tt.operand); !errors.Is(err, ErrUnsupportedOperator) {
			t.Errorf("Dispatch(%d, %s) error = %v, want ErrUnsupportedOperator", tt.id, tt.operand, err)
		}
	}
}

func TestDispatchReturnsCopy(t *testing.T) {
	u, _ := DefaultOperators().Dispatch(SymNegate, TypeI32)
	u.Code[0] = 0
	again, _ := DefaultOperators().Dispatch(SymNegate, TypeI32)
	if again.Code[0] != 0x41 {
		t.Error("dispatch table was mutated through returned code")
	}
}

func TestRangeOps(t *testing.T) {
	tests := []struct {
		id            SymbolID
		operand       *Type
		compare, step wasm.Opcode
	}{
		{SymRangeHalfOpen, TypeI32, wasm.OpI32LtS, wasm.OpI32Add},
		{SymRangeClosed, TypeU64, wasm.OpI64LeU, wasm.OpI64Add},
		{SymRangeDownHalfOpen, TypeU32, wasm.OpI32GtU, wasm.OpI32Sub},
		{SymRangeDownClosed, TypeF64, wasm.OpF64Ge, wasm.OpF64Sub},
		{SymRangeHalfOpen, TypeF32, wasm.OpF32Lt, wasm.OpF32Add},
	}
	for _, tt := range tests {
		compare, step, err := DefaultOperators().RangeOps(tt.id, tt.operand)
		if err != nil {
			t.Errorf("RangeOps(%d, %s) error: %v", tt.id, tt.operand, err)
			continue
		}
		if compare != tt.compare || step != tt.step {
			t.Errorf("RangeOps(%d, %s) = (%s, %s), want (%s, %s)", tt.id, tt.operand, compare, step, tt.compare, tt.step)
		}
	}
	if _, _, err := DefaultOperators().RangeOps(SymAdd, TypeI32); !errors.Is(err, ErrUnsupportedOperator) {
		t.Errorf("RangeOps(+) error = %v, want ErrUnsupportedOperator", err)
	}
}

func TestSymbolFlags(t *testing.T) {
	for _, id := range []SymbolID{SymPlaceholder, SymAccessor, SymEndExpr, SymEndArgs} {
		if sym(t, id).PrecedesExpression {
			t.Errorf("%q.PrecedesExpression = true", sym(t, id).Text)
		}
	}
	for _, id := range []SymbolID{SymAdd, SymArgSeparator, SymBeginArgs, SymNegate, SymAssign} {
		if !sym(t, id).PrecedesExpression {
			t.Errorf("%q.PrecedesExpression = false", sym(t, id).Text)
		}
	}
	if !sym(t, SymSub).IsBinary() || sym(t, SymNegate).IsBinary() {
		t.Error("binary minus and unary minus are confused")
	}
	if !sym(t, SymBoolOr).IsBool || sym(t, SymBoolOr).IsArith {
		t.Error("|| is not a boolean operator")
	}
	if sym(t, SymMul).Precedence <= sym(t, SymAdd).Precedence {
		t.Error("* does not bind tighter than +")
	}
}

func TestBracketsPairBothWays(t *testing.T) {
	pairs := [][2]SymbolID{{SymBeginExpr, SymEndExpr}, {SymBeginArgs, SymEndArgs}}
	for _, p := range pairs {
		open, closer := sym(t, p[0]), sym(t, p[1])
		if open.Matching != closer || closer.Matching != open {
			t.Errorf("%q and %q are not paired", open.Text, closer.Text)
		}
		if open.Direction != 1 || closer.Direction != -1 {
			t.Errorf("directions = %d, %d", open.Direction, closer.Direction)
		}
		if open.Precedence != PrecOpenBracket || closer.Precedence != PrecCloseBracket {
			t.Errorf("bracket precedences = %d, %d", open.Precedence, closer.Precedence)
		}
	}
}

func TestBracketStack(t *testing.T) {
	var b BracketStack
	for _, id := range []SymbolID{SymBeginExpr, SymBeginArgs} {
		if err := b.Push(sym(t, id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := b.Close(sym(t, SymEndExpr)); !errors.Is(err, ErrMismatchedBracket) {
		t.Errorf("closing ⟨ with ) error = %v, want ErrMismatchedBracket", err)
	}
	if err := b.Close(sym(t, SymEndArgs)); err != nil {
		t.Errorf("Close(⟩) error: %v", err)
	}
	if err := b.Close(sym(t, SymEndExpr)); err != nil {
		t.Errorf("Close()) error: %v", err)
	}
	if b.Depth() != 0 {
		t.Errorf("Depth() = %d, want 0", b.Depth())
	}
	if err := b.Close(sym(t, SymEndExpr)); !errors.Is(err, ErrMismatchedBracket) {
		t.Errorf("close with nothing open error = %v, want ErrMismatchedBracket", err)
	}
	if err := b.Push(sym(t, SymAdd)); !errors.Is(err, ErrMismatchedBracket) {
		t.Errorf("Push(+) error = %v, want ErrMismatchedBracket", err)
	}
}

func TestBindsBefore(t *testing.T) {
	tests := []struct {
		pending, next SymbolID
		want          bool
	}{
		{SymMul, SymAdd, true},
		{SymAdd, SymMul, false},
		{SymAdd, SymSub, true}, // left associative
		{SymLess, SymBoolAnd, true},
		{SymBoolOr, SymBoolAnd, false},
		{SymBeginExpr, SymAdd, false},
		{SymAdd, SymEndExpr, true},
	}
	for _, tt := range tests {
		p, n := sym(t, tt.pending), sym(t, tt.next)
		if got := BindsBefore(p, n); got != tt.want {
			t.Errorf("BindsBefore(%q, %q) = %v, want %v", p.Text, n.Text, got, tt.want)
		}
	}
}

func TestKeywords(t *testing.T) {
	kws := DefaultKeywords()
	let, err := kws.Keyword(KwLet)
	if err != nil {
		t.Fatal(err)
	}
	v, _ := kws.Keyword(KwVar)
	if let.Suggestion != v || v.Suggestion != let {
		t.Error("let and var do not suggest each other")
	}
	br, _ := kws.Keyword(KwBreak)
	if br.PrecedesExpression {
		t.Error("break precedes an expression")
	}
	if k, ok := kws.ByText("while"); !ok || !k.PrecedesExpression {
		t.Errorf("ByText(while) = %v, %v", k, ok)
	}
	if _, err := kws.Keyword(KeywordID(999)); err == nil {
		t.Error("Keyword(999) succeeded")
	}
}
