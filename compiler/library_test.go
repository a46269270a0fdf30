package compiler

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/touchscript/pkg/wasm"
)

func ids(rs []Routine) []RoutineID {
	var out []RoutineID
	for _, r := range rs {
		out = append(out, r.ID())
	}
	return out
}

func TestNamedCatalogueOrder(t *testing.T) {
	named := DefaultLibrary().Named()
	if len(named) != 52 {
		t.Fatalf("len(Named()) = %d, want 52", len(named))
	}
	for i, r := range named {
		if want := RoutineID(-(i + 1)); r.ID() != want {
			t.Errorf("Named()[%d].ID() = %d, want %d", i, r.ID(), want)
		}
	}
	if n := len(DefaultLibrary().Routines()); n != 60 {
		t.Errorf("len(Routines()) = %d, want 60", n)
	}
}

func TestLookup(t *testing.T) {
	lib := DefaultLibrary()
	tan, err := lib.Lookup(RoutineTan)
	if err != nil {
		t.Fatal(err)
	}
	s := tan.Signature()
	if s.Namespace != TypeMath || s.Name != "tan" || s.Returns != TypeF64 {
		t.Errorf("tan signature = %+v", s)
	}
	if len(s.Params) != 1 || s.Params[0].Type != TypeF64 || s.Params[0].Name != "num" {
		t.Errorf("tan params = %+v", s.Params)
	}
	imp, ok := tan.(*Imported)
	if !ok || imp.Module != HostMath || imp.Field != "tan" {
		t.Errorf("tan = %#v, want Math.tan import", tan)
	}

	if _, err := lib.Lookup(-999); !errors.Is(err, ErrUnknownRoutine) {
		t.Errorf("Lookup(-999) error = %v, want ErrUnknownRoutine", err)
	}
}

func TestReinterpretMacros(t *testing.T) {
	tests := []struct {
		id   RoutineID
		from *Type
		to   *Type
		op   wasm.Opcode
	}{
		{RoutineReinterpretF32ToU32, TypeF32, TypeU32, wasm.OpI32ReinterpretF32},
		{RoutineReinterpretF64ToU64, TypeF64, TypeU64, wasm.OpI64ReinterpretF64},
		{RoutineReinterpretI32ToF32, TypeI32, TypeF32, wasm.OpF32ReinterpretI32},
		{RoutineReinterpretI64ToF64, TypeI64, TypeF64, wasm.OpF64ReinterpretI64},
	}
	for _, tt := range tests {
		m, ok := DefaultLibrary().MustLookup(tt.id).(*Macro)
		if !ok {
			t.Fatalf("routine %d is not a macro", tt.id)
		}
		s := m.Signature()
		if s.Params[0].Type != tt.from || s.Returns != tt.to {
			t.Errorf("routine %d: %s -> %s, want %s -> %s", tt.id, s.Params[0].Type, s.Returns, tt.from, tt.to)
		}
		if diff := cmp.Diff([]byte{byte(tt.op)}, m.Code); diff != "" {
			t.Errorf("routine %d code mismatch (-want +got):\n%s", tt.id, diff)
		}
	}
}

func TestNamespaces(t *testing.T) {
	lib := DefaultLibrary()
	if n := len(lib.InNamespace(TypeSystem)); n != 10 {
		t.Errorf("len(InNamespace(System)) = %d, want 10", n)
	}
	if n := len(lib.InNamespace(TypeMath)); n != 42 {
		t.Errorf("len(InNamespace(Math)) = %d, want 42", n)
	}
	abs := lib.Overloads(TypeMath, "abs")
	if diff := cmp.Diff([]RoutineID{RoutineAbsF32, RoutineAbsF64}, ids(abs)); diff != "" {
		t.Errorf("Overloads(Math, abs) mismatch (-want +got):\n%s", diff)
	}
	input := lib.Overloads(TypeSystem, "input")
	if len(input) != 4 {
		t.Errorf("len(Overloads(System, input)) = %d, want 4", len(input))
	}
}

func TestInputF64Defaults(t *testing.T) {
	r := DefaultLibrary().MustLookup(RoutineInputF64)
	var labels []string
	for _, p := range r.Signature().Params {
		labels = append(labels, p.Label())
	}
	want := []string{"default\n0", "min\n-Infinity", "max\nInfinity"}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestPrinter(t *testing.T) {
	tests := []struct {
		typ  *Type
		want RoutineID
	}{
		{TypeString, RoutinePrint},
		{TypeBool, RoutinePrintBool},
		{TypeI32, RoutinePrintI32},
		{TypeU32, RoutinePrintU32},
		{TypeI64, RoutinePrintI64},
		{TypeU64, RoutinePrintU64},
		{TypeF32, RoutinePrintF32},
		{TypeF64, RoutinePrintF64},
	}
	for _, tt := range tests {
		r, err := DefaultLibrary().Printer(tt.typ)
		if err != nil {
			t.Errorf("Printer(%s) error: %v", tt.typ, err)
			continue
		}
		if r.ID() != tt.want {
			t.Errorf("Printer(%s) = %d, want %d", tt.typ, r.ID(), tt.want)
		}
		if got := r.Signature().Params[0].Type; got != tt.typ {
			t.Errorf("Printer(%s) takes %s", tt.typ, got)
		}
	}
	if _, err := DefaultLibrary().Printer(TypeAny); !errors.Is(err, ErrUnknownRoutine) {
		t.Errorf("Printer(Any) error = %v, want ErrUnknownRoutine", err)
	}
}

func TestPrintU64Body(t *testing.T) {
	p := DefaultLibrary().MustLookup(RoutinePrintU64).(*Predefined)
	got, err := assemble(p.Body, map[RoutineID]uint32{RoutinePrint: 7})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x23, 0x00, // global.get 0
		0x21, 0x01, // local.set 1
		0x03, 0x40, // loop
		0x20, 0x01, 0x41, 0x7F, 0x6A, 0x22, 0x01, // local.tee 1 (local 1 - 1)
		0x20, 0x00, 0x42, 0x0A, 0x82, 0xA7, 0x41, 0x30, 0x6A, // wrap(local 0 % 10) + '0'
		0x3A, 0x00, 0x00, // i32.store8
		0x20, 0x00, 0x42, 0x0A, 0x80, 0x22, 0x00, // local.tee 0 (local 0 / 10)
		0x50, 0x45, 0x0D, 0x00, // br_if 0 (!!local 0)
		0x0B,
		0x20, 0x01, 0x23, 0x00, 0x20, 0x01, 0x6B, // address, top - address
		0x10, 0x07, // call print
		0x0B,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PrintU64 body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]wasm.LocalEntry{{Count: 1, Type: wasm.I32}}, p.Locals); diff != "" {
		t.Errorf("PrintU64 locals mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintI64Body(t *testing.T) {
	p := DefaultLibrary().MustLookup(RoutinePrintI64).(*Predefined)
	got, err := assemble(p.Body, map[RoutineID]uint32{RoutinePrintChar: 2, RoutinePrintU64: 5})
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0x20, 0x00, 0x42, 0x00, 0x53, // local 0 < 0
		0x04, 0x7E, // if (result i64)
		0x41, 0x2D, 0x10, 0x02, // print '-'
		0x42, 0x00, 0x20, 0x00, 0x7D, // 0 - local 0
		0x05,
		0x20, 0x00,
		0x0B,
		0x10, 0x05, // call PrintU64
		0x0B,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PrintI64 body mismatch (-want +got):\n%s", diff)
	}
	if len(p.Locals) != 0 {
		t.Errorf("PrintI64 locals = %v, want none", p.Locals)
	}
}

func TestListDependencies(t *testing.T) {
	lib := DefaultLibrary()
	tests := []struct {
		id   RoutineID
		want []RoutineID
	}{
		{RoutinePrintU64, []RoutineID{RoutinePrint}},
		{RoutinePrintI64, []RoutineID{RoutinePrintChar, RoutinePrint, RoutinePrintU64}},
		{RoutinePrint, nil},
		{RoutineSqrtF64, nil},
	}
	for _, tt := range tests {
		r := lib.MustLookup(tt.id)
		first, err := lib.ListDependencies(r)
		if err != nil {
			t.Fatalf("ListDependencies(%d) error: %v", tt.id, err)
		}
		if diff := cmp.Diff(tt.want, ids(first)); diff != "" {
			t.Errorf("ListDependencies(%d) mismatch (-want +got):\n%s", tt.id, diff)
		}
		second, _ := lib.ListDependencies(r)
		if diff := cmp.Diff(ids(first), ids(second)); diff != "" {
			t.Errorf("ListDependencies(%d) is not stable:\n%s", tt.id, diff)
		}
		for _, d := range first {
			if d.ID() == tt.id {
				t.Errorf("routine %d depends on itself", tt.id)
			}
		}
	}

	foreign := NewImported(-999, sig(TypeSystem, "", TypeVoid), HostEnv, "nothing")
	if _, err := lib.ListDependencies(foreign); !errors.Is(err, ErrUnknownRoutine) {
		t.Errorf("ListDependencies(foreign) error = %v, want ErrUnknownRoutine", err)
	}
}

func TestLibraryRejectsUnregisteredDependency(t *testing.T) {
	l := newLibrary()
	dep := NewImported(-100, sig(TypeSystem, "", TypeVoid), HostEnv, "dep")
	p, err := NewPredefined(-101, sig(TypeSystem, "user", TypeVoid), nil, Code{Call(dep), Raw(byte(wasm.OpEnd))})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.add(p); !errors.Is(err, ErrUnresolvedDependency) {
		t.Errorf("add without dependency error = %v, want ErrUnresolvedDependency", err)
	}
	if err := l.add(dep); err != nil {
		t.Fatal(err)
	}
	if err := l.add(p); err != nil {
		t.Errorf("add after dependency error: %v", err)
	}
	if err := l.add(dep); err == nil {
		t.Error("duplicate add succeeded")
	}
}

func TestNewPredefinedNilCallee(t *testing.T) {
	var missing *Predefined
	_, err := NewPredefined(-100, sig(TypeSystem, "", TypeVoid), nil, Code{Call(missing), Raw(byte(wasm.OpEnd))})
	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Errorf("error = %v, want ErrUnresolvedDependency", err)
	}
}

func TestResolveDependencies(t *testing.T) {
	lib := DefaultLibrary()
	code := Code{
		Call(lib.MustLookup(RoutineAbsF64)),
		Call(lib.MustLookup(RoutinePrintI64)),
		Call(lib.MustLookup(RoutinePrintU64)),
		Call(lib.MustLookup(RoutineCos)),
		Call(lib.MustLookup(RoutinePrint)),
	}
	got, err := ResolveDependencies(code)
	if err != nil {
		t.Fatal(err)
	}
	want := []RoutineID{RoutinePrintChar, RoutinePrint, RoutinePrintU64, RoutinePrintI64, RoutineCos}
	if diff := cmp.Diff(want, ids(got)); diff != "" {
		t.Errorf("ResolveDependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveDependenciesCycle(t *testing.T) {
	a, err := NewPredefined(-100, sig(TypeSystem, "", TypeVoid), nil, Code{Raw(byte(wasm.OpEnd))})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewPredefined(-101, sig(TypeSystem, "", TypeVoid), nil, Code{Call(a), Raw(byte(wasm.OpEnd))})
	if err != nil {
		t.Fatal(err)
	}
	a.Body = Code{Call(b), Raw(byte(wasm.OpEnd))}
	if _, err := ResolveDependencies(Code{Call(a)}); !errors.Is(err, ErrDependencyCycle) {
		t.Errorf("error = %v, want ErrDependencyCycle", err)
	}
}
