package wasm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
}

func withSections(sections ...[]byte) []byte {
	out := header()
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

// minimalModule imports one function, stores one data segment and calls
// the import from its start function.
func minimalModule() *Module {
	start := uint32(1)
	return &Module{
		Types: []FuncType{
			{Params: []ValueType{I32, I32}},
			{},
		},
		Imports: []Import{
			{Module: "env", Field: "puts", Kind: KindFunction, TypeIndex: 0},
		},
		Functions: []uint32{1},
		Memories:  []Limits{{Min: 1}},
		Exports:   []Export{{Name: "memory", Kind: KindMemory, Index: 0}},
		Start:     &start,
		Code: []FunctionBody{{
			Code: NewBuilder().I32Const(16).I32Const(5).Index(OpCall, 0).Op(OpEnd).Bytes(),
		}},
		Data: []DataSegment{{MemoryIndex: 0, Offset: 16, Bytes: []byte("hello")}},
	}
}

// ---------------------------------------------------------------------------
// Encode
// ---------------------------------------------------------------------------

func TestEncodeExactBytes(t *testing.T) {
	m := &Module{
		Types:     []FuncType{{}},
		Functions: []uint32{0},
		Code:      []FunctionBody{{Code: []byte{byte(OpEnd)}}},
	}
	got, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := withSections(
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
		[]byte{0x03, 0x02, 0x01, 0x00},
		[]byte{0x0A, 0x04, 0x01, 0x02, 0x00, 0x0B},
	)
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % x, want % x", got, want)
	}
}

func TestEncodeEmptyModule(t *testing.T) {
	got, err := Encode(&Module{})
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !bytes.Equal(got, header()) {
		t.Errorf("Encode(empty) = % x, want header only", got)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Encode(minimalModule())
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	b, _ := Encode(minimalModule())
	if !bytes.Equal(a, b) {
		t.Error("Encode produced different bytes for identical modules")
	}
}

func TestEncodeRawSectionPlacement(t *testing.T) {
	m := &Module{
		Types: []FuncType{{}},
		Raw: []RawSection{
			{ID: 0x20, Payload: []byte{0xEE}},
			{ID: SectionTable, Payload: []byte{0x00}},
		},
	}
	got, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	want := withSections(
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
		[]byte{0x04, 0x01, 0x00},
		[]byte{0x20, 0x01, 0xEE},
	)
	if !bytes.Equal(got, want) {
		t.Errorf("Encode = % x, want % x", got, want)
	}
}

func TestEncodeInvalidKind(t *testing.T) {
	m := &Module{Imports: []Import{{Module: "a", Field: "b", Kind: 9}}}
	if _, err := Encode(m); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("Encode error = %v, want ErrInvalidKind", err)
	}
}

func TestEncodeBodyCountMismatch(t *testing.T) {
	m := &Module{Types: []FuncType{{}}, Code: []FunctionBody{{Code: []byte{0x0B}}}}
	if _, err := Encode(m); err == nil {
		t.Error("Encode with more bodies than functions should fail")
	}
}

// ---------------------------------------------------------------------------
// Decode
// ---------------------------------------------------------------------------

func TestDecodeRoundTrip(t *testing.T) {
	want := minimalModule()
	bin, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := Decode(bin)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode(Encode(m)) mismatch (-want +got):\n%s", diff)
	}

	again, err := Encode(got)
	if err != nil {
		t.Fatalf("re-Encode error: %v", err)
	}
	if !bytes.Equal(bin, again) {
		t.Error("re-encoding a decoded module changed its bytes")
	}
}

func TestDecodeGlobalsAndRaw(t *testing.T) {
	want := &Module{
		Globals: []Global{
			{Type: GlobalType{Type: I32, Mutable: true}, Init: NewBuilder().I32Const(65536).Bytes()},
			{Type: GlobalType{Type: I64}, Init: NewBuilder().I64Const(-7).Bytes()},
		},
		Raw: []RawSection{
			{ID: SectionTable, Payload: []byte{0x01, 0x70, 0x00, 0x01}},
			{ID: SectionCustom, Name: "name", Payload: []byte{0x01, 0x02}},
		},
	}
	bin, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	got, err := Decode(bin)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAnySectionOrder(t *testing.T) {
	bin := withSections(
		[]byte{0x08, 0x01, 0x00},
		[]byte{0x01, 0x04, 0x01, 0x60, 0x00, 0x00},
	)
	m, err := Decode(bin)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if m.Start == nil || *m.Start != 0 {
		t.Errorf("Start = %v, want 0", m.Start)
	}
	if len(m.Types) != 1 {
		t.Errorf("len(Types) = %d, want 1", len(m.Types))
	}
}

func TestDecodeUnknownSectionIsOpaque(t *testing.T) {
	bin := withSections([]byte{0x2A, 0x03, 0xDE, 0xAD, 0x01})
	m, err := Decode(bin)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	want := []RawSection{{ID: 0x2A, Payload: []byte{0xDE, 0xAD, 0x01}}}
	if diff := cmp.Diff(want, m.Raw); diff != "" {
		t.Errorf("Raw mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		offset int
		cause  error
	}{
		{"bad magic", []byte{0x00, 0x61, 0x73, 0x6E, 0x01, 0x00, 0x00, 0x00}, 0, nil},
		{"short version", []byte{0x00, 0x61, 0x73, 0x6D, 0x01}, 4, ErrTruncated},
		{"truncated section size", withSections([]byte{0x01, 0x80}), 9, ErrTruncated},
		{"payload longer than content", withSections([]byte{0x01, 0x05, 0x01, 0x60, 0x00, 0x00, 0x00}), 14, nil},
		{"count exceeds payload", withSections([]byte{0x01, 0x03, 0x01, 0x60, 0x00, 0x00}), 10, ErrTruncated},
		{"content longer than payload", withSections([]byte{0x01, 0x04, 0x01, 0x60, 0x01, 0x7F}), 14, ErrTruncated},
		{"unknown type form", withSections([]byte{0x01, 0x04, 0x01, 0x61, 0x00, 0x00}), 11, nil},
		{"unknown value type", withSections([]byte{0x01, 0x05, 0x01, 0x60, 0x01, 0x55, 0x00}), 13, nil},
		{"unknown import kind", withSections([]byte{0x02, 0x06, 0x01, 0x01, 'a', 0x01, 'b', 0x04}), 15, ErrInvalidKind},
		{"data offset not constant", withSections([]byte{0x0B, 0x06, 0x01, 0x00, 0x42, 0x00, 0x0B, 0x00}), 12, nil},
		{"section overruns module", withSections([]byte{0x0B, 0x09, 0x01}), 10, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			if !errors.Is(err, ErrMalformedModule) {
				t.Fatalf("Decode error = %v, want ErrMalformedModule", err)
			}
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("Decode error %T is not *MalformedError", err)
			}
			if me.Offset != tt.offset {
				t.Errorf("Offset = 0x%x, want 0x%x (%v)", me.Offset, tt.offset, err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("error = %v, want cause %v", err, tt.cause)
			}
		})
	}
}
