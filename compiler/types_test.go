package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tetratelabs/wazero"

	"github.com/chazu/touchscript/pkg/wasm"
)

func TestBuiltinTypeIDs(t *testing.T) {
	tests := []struct {
		typ  *Type
		id   TypeID
		text string
	}{
		{TypeVoid, -1, "void"},
		{TypeAny, -2, "Any"},
		{TypeBool, -3, "bool"},
		{TypeI64, -10, "long"},
		{TypeU64, -11, "ulong"},
		{TypeI32, -12, "int"},
		{TypeU32, -13, "uint"},
		{TypeF64, -20, "double"},
		{TypeF32, -21, "float"},
		{TypeString, -30, "string"},
		{TypeIterable, -31, "iterable"},
		{TypeSystem, -40, "System"},
		{TypeMath, -41, "Math"},
	}
	for _, tt := range tests {
		if tt.typ.ID != tt.id || tt.typ.Text != tt.text {
			t.Errorf("type = (%d, %q), want (%d, %q)", tt.typ.ID, tt.typ.Text, tt.id, tt.text)
		}
		if !tt.typ.IsBuiltin() {
			t.Errorf("%s.IsBuiltin() = false", tt.text)
		}
	}
}

func TestTypeRegistryDefine(t *testing.T) {
	r := NewTypeRegistry()
	a := r.Define("Point", 8)
	b := r.Define("Rect", 16)
	if a.ID != 1 || b.ID != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", a.ID, b.ID)
	}
	if a.IsBuiltin() {
		t.Error("custom type reports IsBuiltin")
	}
	got, err := r.Lookup(2)
	if err != nil || got != b {
		t.Errorf("Lookup(2) = %v, %v", got, err)
	}
	if _, err := r.Lookup(99); !errors.Is(err, ErrUnknownType) {
		t.Errorf("Lookup(99) error = %v, want ErrUnknownType", err)
	}
	if n := len(r.Types()); n != len(BuiltinTypes())+2 {
		t.Errorf("len(Types()) = %d", n)
	}

	// Registries are independent.
	if c := NewTypeRegistry().Define("Other", 0); c.ID != 1 {
		t.Errorf("fresh registry id = %d, want 1", c.ID)
	}
}

func TestNumericCastTablesAreComplete(t *testing.T) {
	numeric := []*Type{TypeI64, TypeU64, TypeI32, TypeU32, TypeF64, TypeF32}
	for _, to := range numeric {
		if !to.IsNumeric() {
			t.Errorf("%s.IsNumeric() = false", to)
		}
		for _, from := range numeric {
			if from == to {
				continue
			}
			if _, ok := to.CastFrom(from); !ok {
				t.Errorf("no cast from %s to %s", from, to)
			}
		}
		if n := len(to.CastSources()); n != 5 {
			t.Errorf("%s has %d cast sources, want 5", to, n)
		}
	}
	for _, typ := range []*Type{TypeBool, TypeString, TypeVoid} {
		if typ.IsNumeric() {
			t.Errorf("%s.IsNumeric() = true", typ)
		}
	}
}

func TestResolveCast(t *testing.T) {
	r := NewTypeRegistry()
	tests := []struct {
		from, to *Type
		want     []byte
	}{
		{TypeI32, TypeI64, []byte{0xAC}},
		{TypeU32, TypeI64, []byte{0xAD}},
		{TypeI64, TypeI32, []byte{0xA7}},
		{TypeU64, TypeI64, nil},
		{TypeF32, TypeF64, []byte{0xBB}},
		{TypeF64, TypeF32, []byte{0xB6}},
		{TypeF64, TypeU32, []byte{0xAB}},
		{TypeU64, TypeF32, []byte{0xB5}},
		{TypeString, TypeString, nil},
	}
	for _, tt := range tests {
		got, err := r.ResolveCast(tt.from, tt.to)
		if err != nil {
			t.Errorf("ResolveCast(%s, %s) error: %v", tt.from, tt.to, err)
			continue
		}
		if len(got) != len(tt.want) || (len(got) > 0 && cmp.Diff(tt.want, got) != "") {
			t.Errorf("ResolveCast(%s, %s) = % x, want % x", tt.from, tt.to, got, tt.want)
		}
	}

	if _, err := r.ResolveCast(TypeString, TypeI32); !errors.Is(err, ErrUnsupportedCast) {
		t.Errorf("string to int error = %v, want ErrUnsupportedCast", err)
	}
	if _, err := r.ResolveCast(TypeBool, TypeI32); !errors.Is(err, ErrUnsupportedCast) {
		t.Errorf("bool to int error = %v, want ErrUnsupportedCast", err)
	}
}

func TestResolveCastReturnsCopy(t *testing.T) {
	r := NewTypeRegistry()
	code, _ := r.ResolveCast(TypeI32, TypeI64)
	code[0] = 0
	again, _ := r.ResolveCast(TypeI32, TypeI64)
	if again[0] != 0xAC {
		t.Errorf("cast table was mutated through returned code")
	}
}

func TestCastCandidatesOrder(t *testing.T) {
	r := NewTypeRegistry()
	got := r.CastCandidates(TypeI32, []*Type{TypeF64, TypeI64, TypeString, TypeF32, TypeI32, TypeU32})
	want := []*Type{TypeI32, TypeI64, TypeU32, TypeF64, TypeF32}
	if len(got) != len(want) {
		t.Fatalf("CastCandidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CastCandidates[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestValueTypes(t *testing.T) {
	tests := []struct {
		typ  *Type
		want []wasm.ValueType
	}{
		{TypeBool, []wasm.ValueType{wasm.I32}},
		{TypeU32, []wasm.ValueType{wasm.I32}},
		{TypeU64, []wasm.ValueType{wasm.I64}},
		{TypeF32, []wasm.ValueType{wasm.F32}},
		{TypeF64, []wasm.ValueType{wasm.F64}},
		{TypeString, []wasm.ValueType{wasm.I32, wasm.I32}},
		{TypeVoid, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tt.typ.ValueTypes()); diff != "" {
			t.Errorf("%s.ValueTypes() mismatch (-want +got):\n%s", tt.typ, diff)
		}
	}
}

// castModule builds a module exporting f(x) = cast(cast(x, from->via), via->from).
func castModule(t *testing.T, from, via *Type) []byte {
	t.Helper()
	r := NewTypeRegistry()
	there, err := r.ResolveCast(from, via)
	if err != nil {
		t.Fatal(err)
	}
	back, err := r.ResolveCast(via, from)
	if err != nil {
		t.Fatal(err)
	}
	body := wasm.NewBuilder().Index(wasm.OpLocalGet, 0).Raw(there...).Raw(back...).Op(wasm.OpEnd)
	vt := from.ValueTypes()
	m := &wasm.Module{
		Types:     []wasm.FuncType{{Params: vt, Results: vt}},
		Functions: []uint32{0},
		Exports:   []wasm.Export{{Name: "f", Kind: wasm.KindFunction, Index: 0}},
		Code:      []wasm.FunctionBody{{Code: body.Bytes()}},
	}
	bin, err := wasm.Encode(m)
	if err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestPreferredWideningRoundTrips(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	pairs := []struct{ from, via *Type }{
		{TypeI32, TypeI64},
		{TypeU32, TypeI64},
		{TypeI32, TypeU64},
		{TypeU32, TypeU64},
		{TypeI32, TypeU32},
		{TypeU32, TypeI32},
		{TypeI64, TypeU64},
		{TypeU64, TypeI64},
		{TypeF32, TypeF64},
	}
	samples := map[wasm.ValueType][]uint64{
		wasm.I32: {0, 1, 0x7fffffff, 0x80000000, 0xffffffff},
		wasm.I64: {0, 1, 1 << 63, ^uint64(0)},
		wasm.F32: {0, 0x3fc00000, 0xbf800000, 0x7f7fffff},
	}
	for i, p := range pairs {
		c, ok := p.via.CastFrom(p.from)
		if !ok || !c.Preferred {
			t.Errorf("%s to %s is not a preferred cast", p.from, p.via)
			continue
		}
		mod, err := rt.InstantiateWithConfig(ctx, castModule(t, p.from, p.via),
			wazero.NewModuleConfig().WithName("cast"+string(rune('a'+i))))
		if err != nil {
			t.Fatalf("%s via %s: %v", p.from, p.via, err)
		}
		vt := p.from.ValueTypes()[0]
		for _, in := range samples[vt] {
			out, err := mod.ExportedFunction("f").Call(ctx, in)
			if err != nil {
				t.Fatalf("%s via %s: %v", p.from, p.via, err)
			}
			got := out[0]
			if vt != wasm.I64 {
				got = uint64(uint32(got))
			}
			if got != in {
				t.Errorf("%s via %s: f(%#x) = %#x", p.from, p.via, in, got)
			}
		}
	}
}
