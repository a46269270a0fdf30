// tsc is the TouchScript compiler backend command: it inspects and runs
// compiled modules, lists the built-in library, manages saved projects and
// serves the editor protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/touchscript/compiler"
	"github.com/chazu/touchscript/host"
	"github.com/chazu/touchscript/manifest"
	"github.com/chazu/touchscript/pkg/wasm"
	"github.com/chazu/touchscript/server"
)

var log = commonlog.GetLogger("touchscript.cli")

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 = errors only, 1 = info, 2 = debug)")
	dir := flag.String("C", ".", "Directory to search for touchscript.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tsc [options] <command> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  disasm <file.wasm>           Annotated hex dump of a module\n")
		fmt.Fprintf(os.Stderr, "  run <file.wasm>              Run a module against the host environment\n")
		fmt.Fprintf(os.Stderr, "  lib                          List the built-in routines\n")
		fmt.Fprintf(os.Stderr, "  example [-run]               Link the sample program to the manifest output\n")
		fmt.Fprintf(os.Stderr, "  project <subcommand> ...     Manage saved projects\n")
		fmt.Fprintf(os.Stderr, "  lsp                          Start the language server on stdio\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// The language server owns stdout; its logs go to stderr regardless.
	commonlog.Configure(*verbose, nil)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default()
	} else {
		log.Infof("using manifest in %s", m.Dir)
	}

	ctx := context.Background()

	switch args[0] {
	case "disasm":
		err = handleDisasm(args[1:])
	case "run":
		err = handleRun(ctx, args[1:])
	case "lib":
		err = handleLib()
	case "example":
		err = handleExample(ctx, args[1:], m)
	case "project":
		err = handleProjectCommand(ctx, args[1:], m)
	case "lsp":
		err = server.NewLSP().Run()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func handleDisasm(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tsc disasm <file.wasm>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return wasm.WriteDisassembly(os.Stdout, data)
}

func handleRun(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: tsc run <file.wasm>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return runModule(ctx, data)
}

func runModule(ctx context.Context, bin []byte) error {
	rt, err := host.New(ctx, host.Config{Stdout: os.Stdout, Stdin: os.Stdin})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	return rt.Run(ctx, bin)
}

// handleLib prints every named routine grouped by namespace.
func handleLib() error {
	lib := compiler.DefaultLibrary()
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, ns := range []*compiler.Type{compiler.TypeSystem, compiler.TypeMath} {
		fmt.Fprintf(tw, "%s\n", ns.Text)
		for _, r := range lib.InNamespace(ns) {
			sig := r.Signature()
			params := make([]string, len(sig.Params))
			for i, p := range sig.Params {
				params[i] = p.Type.Text + " " + p.Name
			}
			fmt.Fprintf(tw, "  %d\t%s\t(%s)\t%s\n", r.ID(), sig.Name, strings.Join(params, ", "), sig.Returns.Text)
		}
	}
	return tw.Flush()
}
