package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/touchscript/compiler"
	"github.com/chazu/touchscript/manifest"
	"github.com/chazu/touchscript/pkg/wasm"
)

const greeting = "Hello from TouchScript"

// exampleProgram prints a greeting, the number 12345 and -12345 on
// separate lines.
func exampleProgram(lib *compiler.Library) compiler.Program {
	call := func(id compiler.RoutineID) compiler.Op {
		return compiler.Call(lib.MustLookup(id))
	}
	newline := compiler.Asm(wasm.NewBuilder().I32Const('\n'))
	return compiler.Program{
		Body: compiler.Code{
			compiler.Asm(wasm.NewBuilder().I32Const(0).I32Const(int32(len(greeting)))),
			call(compiler.RoutinePrintln),
			compiler.Asm(wasm.NewBuilder().I64Const(12345)),
			call(compiler.RoutinePrintU64),
			newline,
			call(compiler.RoutinePrintChar),
			compiler.Asm(wasm.NewBuilder().I64Const(-12345)),
			call(compiler.RoutinePrintI64),
			newline,
			call(compiler.RoutinePrintChar),
		},
		Data: []wasm.DataSegment{{Offset: 0, Bytes: []byte(greeting)}},
	}
}

// handleExample links the sample program with the manifest's module
// settings and writes it to the output path, or runs it with -run.
func handleExample(ctx context.Context, args []string, m *manifest.Manifest) error {
	run := false
	for _, a := range args {
		switch a {
		case "-run", "--run":
			run = true
		default:
			return fmt.Errorf("usage: tsc example [-run]")
		}
	}

	lib := compiler.DefaultLibrary()
	bin, err := compiler.NewLinker(lib).LinkAndEncode(exampleProgram(lib), m.LinkOptions())
	if err != nil {
		return err
	}
	if run {
		return runModule(ctx, bin)
	}

	out := m.OutputPath()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(out, bin, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d bytes)\n", out, len(bin))
	return nil
}
