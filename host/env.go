package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tliron/commonlog"

	"github.com/chazu/touchscript/compiler"
)

// env implements the host functions imported by compiled programs. Output
// goes to out; input lines are read from in.
type env struct {
	out  io.Writer
	in   *bufio.Reader
	rand *rand.Rand
	log  commonlog.Logger

	// outErr is the first output failure of the current run.
	outErr error
}

// ---------------------------------------------------------------------------
// env: output
// ---------------------------------------------------------------------------

func (e *env) write(s string) {
	if _, err := io.WriteString(e.out, s); err != nil {
		e.log.Errorf("writing program output: %s", err.Error())
		if e.outErr == nil {
			e.outErr = err
		}
	}
}

// readString copies size bytes at addr out of the caller's memory.
func readString(m api.Module, addr, size uint32) string {
	mem := m.Memory()
	if mem == nil {
		panic(fmt.Sprintf("string at 0x%x: module has no memory", addr))
	}
	buf, ok := mem.Read(addr, size)
	if !ok {
		panic(fmt.Sprintf("string at 0x%x (%d bytes) is out of bounds", addr, size))
	}
	return string(buf)
}

func (e *env) puts(_ context.Context, m api.Module, addr, size uint32) {
	e.write(readString(m, addr, size))
}

func (e *env) putsln(_ context.Context, m api.Module, addr, size uint32) {
	e.write(readString(m, addr, size) + "\n")
}

func (e *env) put(c uint32) {
	e.write(string(rune(c)))
}

func (e *env) putu32(v uint32) {
	e.write(strconv.FormatUint(uint64(v), 10))
}

func (e *env) putbool(v uint32) {
	e.write(strconv.FormatBool(v != 0))
}

func (e *env) puti32(v int32) {
	e.write(strconv.FormatInt(int64(v), 10))
}

func (e *env) putf32(v float32) {
	e.write(formatNumber(float64(v), 32))
}

func (e *env) putf64(v float64) {
	e.write(formatNumber(v, 64))
}

// formatNumber renders v the way a browser console prints numbers:
// integers without a fraction, exponents only for very large or very
// small magnitudes.
func formatNumber(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(v, 'e', -1, bits)
	}
	return strconv.FormatFloat(v, 'f', -1, bits)
}

// ---------------------------------------------------------------------------
// System: input
// ---------------------------------------------------------------------------

// readLine returns the next input line without its terminator, and false
// once input is exhausted.
func (e *env) readLine() (string, bool) {
	if e.in == nil {
		return "", false
	}
	line, err := e.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

func (e *env) inputBool() uint32 {
	line, _ := e.readLine()
	switch strings.ToLower(line) {
	case "true", "t", "yes", "y", "1":
		return 1
	}
	return 0
}

func (e *env) inputI32() int32 {
	line, _ := e.readLine()
	v, err := strconv.ParseInt(line, 10, 32)
	if err != nil {
		return 0
	}
	return int32(v)
}

func (e *env) inputU32() uint32 {
	line, _ := e.readLine()
	v, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// inputF64 reads a number clamped to [lo, hi]; unreadable input yields def.
func (e *env) inputF64(def, lo, hi float64) float64 {
	line, ok := e.readLine()
	if !ok {
		return def
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return def
	}
	return math.Min(math.Max(v, lo), hi)
}

// ---------------------------------------------------------------------------
// Module registration
// ---------------------------------------------------------------------------

func (e *env) instantiate(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder(compiler.HostEnv).
		NewFunctionBuilder().WithFunc(e.puts).Export("puts").
		NewFunctionBuilder().WithFunc(e.putsln).Export("putsln").
		NewFunctionBuilder().WithFunc(e.put).Export("put").
		NewFunctionBuilder().WithFunc(e.putu32).Export("putu32").
		NewFunctionBuilder().WithFunc(e.putbool).Export("putbool").
		NewFunctionBuilder().WithFunc(e.puti32).Export("puti32").
		NewFunctionBuilder().WithFunc(e.putf32).Export("putf32").
		NewFunctionBuilder().WithFunc(e.putf64).Export("putf64").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiating %s: %w", compiler.HostEnv, err)
	}

	_, err = rt.NewHostModuleBuilder(compiler.HostSystem).
		NewFunctionBuilder().WithFunc(e.inputBool).Export("inputBool").
		NewFunctionBuilder().WithFunc(e.inputI32).Export("inputI32").
		NewFunctionBuilder().WithFunc(e.inputU32).Export("inputU32").
		NewFunctionBuilder().WithFunc(e.inputF64).Export("inputF64").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("instantiating %s: %w", compiler.HostSystem, err)
	}

	unary := map[string]func(float64) float64{
		"cos": math.Cos, "sin": math.Sin, "tan": math.Tan,
		"acos": math.Acos, "asin": math.Asin, "atan": math.Atan,
		"cosh": math.Cosh, "sinh": math.Sinh, "tanh": math.Tanh,
		"acosh": math.Acosh, "asinh": math.Asinh, "atanh": math.Atanh,
		"cbrt": math.Cbrt, "exp": math.Exp,
		"log": math.Log, "log10": math.Log10, "log2": math.Log2,
	}
	b := rt.NewHostModuleBuilder(compiler.HostMath)
	for name, fn := range unary {
		b = b.NewFunctionBuilder().WithFunc(fn).Export(name)
	}
	b = b.NewFunctionBuilder().WithFunc(math.Atan2).Export("atan2").
		NewFunctionBuilder().WithFunc(math.Pow).Export("pow").
		NewFunctionBuilder().WithFunc(e.rand.Float64).Export("random")
	if _, err := b.Instantiate(ctx); err != nil {
		return fmt.Errorf("instantiating %s: %w", compiler.HostMath, err)
	}
	return nil
}
