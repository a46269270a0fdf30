package host

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/touchscript/compiler"
	"github.com/chazu/touchscript/pkg/wasm"
)

func newTestRuntime(t *testing.T, stdin string) (*Runtime, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cfg := Config{Stdout: &out, Seed: 1}
	if stdin != "" {
		cfg.Stdin = strings.NewReader(stdin)
	}
	rt, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt, &out
}

func call(id compiler.RoutineID) compiler.Op {
	return compiler.Call(compiler.DefaultLibrary().MustLookup(id))
}

func run(t *testing.T, rt *Runtime, p compiler.Program, opts compiler.LinkOptions) {
	t.Helper()
	bin, err := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(p, opts)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := rt.Run(context.Background(), bin); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPrintU64Scenario(t *testing.T) {
	rt, out := newTestRuntime(t, "")
	run(t, rt, compiler.Program{Body: compiler.Code{
		compiler.Asm(wasm.NewBuilder().I64Const(12345)),
		call(compiler.RoutinePrintU64),
	}}, compiler.DefaultLinkOptions())
	if got := out.String(); got != "12345" {
		t.Errorf("output = %q, want %q", got, "12345")
	}
}

func TestPrintI64(t *testing.T) {
	tests := []struct {
		v    int64
		want string
	}{
		{0, "0"},
		{-42, "-42"},
		{math.MaxInt64, "9223372036854775807"},
	}
	for _, tt := range tests {
		rt, out := newTestRuntime(t, "")
		run(t, rt, compiler.Program{Body: compiler.Code{
			compiler.Asm(wasm.NewBuilder().I64Const(tt.v)),
			call(compiler.RoutinePrintI64),
		}}, compiler.DefaultLinkOptions())
		if got := out.String(); got != tt.want {
			t.Errorf("print %d = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestPrintlnDataSegment(t *testing.T) {
	rt, out := newTestRuntime(t, "")
	p := compiler.Program{
		Body: compiler.Code{
			compiler.Asm(wasm.NewBuilder().I32Const(16).I32Const(5)),
			call(compiler.RoutinePrintln),
			compiler.Asm(wasm.NewBuilder().I32Const(1)),
			call(compiler.RoutinePrintBool),
		},
		Data: []wasm.DataSegment{{Offset: 16, Bytes: []byte("hello")}},
	}
	run(t, rt, p, compiler.DefaultLinkOptions())
	if got := out.String(); got != "hello\ntrue" {
		t.Errorf("output = %q", got)
	}
}

func TestImportedMemory(t *testing.T) {
	rt, out := newTestRuntime(t, "")
	opts := compiler.DefaultLinkOptions()
	opts.ImportMemory = true
	opts.MaxPages = 2
	p := compiler.Program{Body: compiler.Code{
		compiler.Asm(wasm.NewBuilder().I64Const(-7)),
		call(compiler.RoutinePrintI64),
	}}
	run(t, rt, p, opts)
	run(t, rt, p, opts) // the provided memory is released between runs
	if got := out.String(); got != "-7-7" {
		t.Errorf("output = %q, want -7-7", got)
	}
}

func TestReservedMemoryModule(t *testing.T) {
	rt, _ := newTestRuntime(t, "")
	opts := compiler.DefaultLinkOptions()
	opts.ImportMemory = true
	opts.MemoryModule = compiler.HostEnv
	bin, err := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(compiler.Program{}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Run(context.Background(), bin); !errors.Is(err, ErrReservedModule) {
		t.Errorf("Run error = %v, want ErrReservedModule", err)
	}
}

func TestMathAndFloats(t *testing.T) {
	rt, out := newTestRuntime(t, "")
	f64 := func(v float64) compiler.Op {
		b := wasm.NewBuilder().Op(wasm.OpF64Const)
		bits := math.Float64bits(v)
		for i := 0; i < 8; i++ {
			b.Raw(byte(bits >> (8 * i)))
		}
		return compiler.Asm(b)
	}
	p := compiler.Program{Body: compiler.Code{
		f64(0),
		call(compiler.RoutineCos),
		call(compiler.RoutinePrintF64),
		f64(2),
		f64(10),
		call(compiler.RoutinePow),
		call(compiler.RoutinePrintF64),
		f64(-2.25),
		call(compiler.RoutineAbsF64),
		call(compiler.RoutineSqrtF64),
		call(compiler.RoutinePrintF64),
	}}
	run(t, rt, p, compiler.DefaultLinkOptions())
	if got := out.String(); got != "110241.5" {
		t.Errorf("output = %q, want %q", got, "110241.5")
	}
}

func TestInput(t *testing.T) {
	rt, out := newTestRuntime(t, "41\nyes\n250\n")
	p := compiler.Program{Body: compiler.Code{
		call(compiler.RoutineInputI32),
		compiler.Asm(wasm.NewBuilder().I32Const(1).Op(wasm.OpI32Add)),
		call(compiler.RoutinePrintI32),
		call(compiler.RoutineInputBool),
		call(compiler.RoutinePrintBool),
		call(compiler.RoutineInputU32),
		call(compiler.RoutinePrintU32),
	}}
	run(t, rt, p, compiler.DefaultLinkOptions())
	if got := out.String(); got != "42true250" {
		t.Errorf("output = %q, want 42true250", got)
	}
}

func TestTrapIsReported(t *testing.T) {
	rt, _ := newTestRuntime(t, "")
	p := compiler.Program{Body: compiler.Code{compiler.Raw(byte(wasm.OpUnreachable))}}
	bin, err := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(p, compiler.DefaultLinkOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Run(context.Background(), bin); err == nil {
		t.Error("unreachable did not fail")
	}
	if err := rt.Run(context.Background(), []byte("junk")); !errors.Is(err, wasm.ErrMalformedModule) {
		t.Errorf("Run(junk) error = %v, want ErrMalformedModule", err)
	}
}

func TestRunAfterClose(t *testing.T) {
	rt, err := New(context.Background(), Config{Stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	bin, _ := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(compiler.Program{}, compiler.DefaultLinkOptions())
	rt.Close(context.Background())
	if err := rt.Run(context.Background(), bin); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Close error = %v, want ErrClosed", err)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		v    float64
		bits int
		want string
	}{
		{1, 64, "1"},
		{1.5, 64, "1.5"},
		{-0.25, 64, "-0.25"},
		{1e21, 64, "1e+21"},
		{1e-7, 64, "1e-07"},
		{float64(float32(0.1)), 32, "0.1"},
		{math.Inf(-1), 64, "-Infinity"},
		{math.NaN(), 64, "NaN"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.v, tt.bits); got != tt.want {
			t.Errorf("formatNumber(%v, %d) = %q, want %q", tt.v, tt.bits, got, tt.want)
		}
	}
}

var errBrokenPipe = errors.New("broken pipe")

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errBrokenPipe
}

func TestOutputErrorIsReported(t *testing.T) {
	w := &failingWriter{}
	rt, err := New(context.Background(), Config{Stdout: w, Seed: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Close(context.Background())

	bin, err := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(compiler.Program{Body: compiler.Code{
		compiler.Asm(wasm.NewBuilder().I64Const(-12)),
		call(compiler.RoutinePrintI64),
	}}, compiler.DefaultLinkOptions())
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Run(context.Background(), bin); !errors.Is(err, errBrokenPipe) {
		t.Errorf("Run error = %v, want %v", err, errBrokenPipe)
	}
	// PrintI64 writes the sign and the digits separately; both are attempted.
	if w.writes != 2 {
		t.Errorf("writes = %d, want 2", w.writes)
	}

	// The failure belongs to that run only.
	empty, _ := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(compiler.Program{}, compiler.DefaultLinkOptions())
	if err := rt.Run(context.Background(), empty); err != nil {
		t.Errorf("Run after failed output = %v, want nil", err)
	}
}

func TestCloseTwice(t *testing.T) {
	rt, err := New(context.Background(), Config{Stdout: &bytes.Buffer{}})
	if err != nil {
		t.Fatal(err)
	}
	rt.Close(context.Background())
	rt.Close(context.Background())
	bin, _ := compiler.NewLinker(compiler.DefaultLibrary()).LinkAndEncode(compiler.Program{}, compiler.DefaultLinkOptions())
	if err := rt.Run(context.Background(), bin); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after double Close error = %v, want ErrClosed", err)
	}
}
