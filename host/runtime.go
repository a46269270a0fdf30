// Package host executes linked modules against the built-in host
// environment: the env output functions, the System input functions and
// the Math functions.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tliron/commonlog"

	"github.com/chazu/touchscript/compiler"
	"github.com/chazu/touchscript/pkg/wasm"
)

var (
	ErrClosed         = errors.New("host: runtime closed")
	ErrReservedModule = errors.New("host: memory imported from a host function module")
)

// Config configures a Runtime. Zero values mean stdout, no input and a
// random seed.
type Config struct {
	Stdout io.Writer
	Stdin  io.Reader
	Seed   uint64
}

// Runtime runs compiled programs one at a time.
type Runtime struct {
	rt     wazero.Runtime
	env    *env
	worker *worker
	log    commonlog.Logger
}

// New creates a runtime with the host modules instantiated.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	log := commonlog.GetLogger("touchscript.host")
	e := &env{out: cfg.Stdout, log: log}
	if e.out == nil {
		e.out = os.Stdout
	}
	if cfg.Stdin != nil {
		e.in = bufio.NewReader(cfg.Stdin)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	e.rand = rand.New(rand.NewPCG(seed, seed>>1|1))

	rt := wazero.NewRuntime(ctx)
	if err := e.instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return &Runtime{
		rt:     rt,
		env:    e,
		worker: newWorker(),
		log:    log,
	}, nil
}

// Run instantiates bin, which executes its start function, then releases
// it. Memory imports are satisfied by fresh memories sized from the import
// limits. A failed output write is logged and reported once the run ends.
func (r *Runtime) Run(ctx context.Context, bin []byte) error {
	m, err := wasm.Decode(bin)
	if err != nil {
		return err
	}
	return r.worker.do(func() error {
		r.env.outErr = nil
		var owned []api.Module
		defer func() {
			for i := len(owned) - 1; i >= 0; i-- {
				owned[i].Close(ctx)
			}
		}()

		for _, imp := range m.Imports {
			if imp.Kind != wasm.KindMemory {
				continue
			}
			mem, err := r.provideMemory(ctx, imp)
			if err != nil {
				return err
			}
			owned = append(owned, mem)
		}

		r.log.Debugf("running module: %d bytes, %d imports", len(bin), len(m.Imports))
		mod, err := r.rt.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return fmt.Errorf("running module: %w", err)
		}
		owned = append(owned, mod)
		if err := r.env.outErr; err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	})
}

// provideMemory instantiates a module named after the import that exports
// one memory under the imported field name.
func (r *Runtime) provideMemory(ctx context.Context, imp wasm.Import) (api.Module, error) {
	switch imp.Module {
	case compiler.HostEnv, compiler.HostSystem, compiler.HostMath:
		return nil, fmt.Errorf("%w: %s.%s", ErrReservedModule, imp.Module, imp.Field)
	}
	bin, err := wasm.Encode(&wasm.Module{
		Memories: []wasm.Limits{imp.Memory},
		Exports:  []wasm.Export{{Name: imp.Field, Kind: wasm.KindMemory}},
	})
	if err != nil {
		return nil, err
	}
	mod, err := r.rt.InstantiateWithConfig(ctx, bin, wazero.NewModuleConfig().WithName(imp.Module))
	if err != nil {
		return nil, fmt.Errorf("providing memory %s.%s: %w", imp.Module, imp.Field, err)
	}
	return mod, nil
}

// Close stops the runtime and releases every module. Closing twice is
// harmless.
func (r *Runtime) Close(ctx context.Context) error {
	r.worker.stop()
	return r.rt.Close(ctx)
}
