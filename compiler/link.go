package compiler

import (
	"fmt"
	"math"
	"slices"

	"github.com/tliron/commonlog"

	"github.com/chazu/touchscript/pkg/wasm"
)

// ---------------------------------------------------------------------------
// Linker: Program -> wasm.Module
// ---------------------------------------------------------------------------

// Program is the output of the statement compiler: the body of the entry
// function plus static data.
type Program struct {
	Locals []wasm.LocalEntry
	Body   Code // without the terminating end
	Data   []wasm.DataSegment
}

// LinkOptions controls the memory layout of linked modules.
type LinkOptions struct {
	MemoryPages uint32
	MaxPages    uint32 // 0 means unbounded

	// ImportMemory imports linear memory from MemoryModule.MemoryField
	// instead of defining it.
	ImportMemory bool
	MemoryModule string
	MemoryField  string

	// ExportMemory is the export name of a defined memory; empty keeps it
	// private.
	ExportMemory string

	// StackPointer initializes the stack-pointer global. 0 means the top
	// of the initial memory.
	StackPointer int32

	// ExportEntry exports the entry function under this name when set.
	ExportEntry string
}

// DefaultLinkOptions returns one exported page of defined memory. When
// memory is imported it comes from js.mem, since the env host module only
// provides functions.
func DefaultLinkOptions() LinkOptions {
	return LinkOptions{
		MemoryPages:  1,
		MemoryModule: "js",
		MemoryField:  "mem",
		ExportMemory: "memory",
	}
}

// Validate checks the page counts against the 32-bit address space. The
// default stack pointer sits at the top of the initial memory, so a full
// 4 GiB memory needs an explicit StackPointer.
func (o LinkOptions) Validate() error {
	switch {
	case o.MemoryPages == 0:
		return fmt.Errorf("memory must have at least one page: %w", ErrMemoryLayout)
	case o.MemoryPages > wasm.MaxPages:
		return fmt.Errorf("%d memory pages exceed %d: %w", o.MemoryPages, wasm.MaxPages, ErrMemoryLayout)
	case o.MaxPages > wasm.MaxPages:
		return fmt.Errorf("%d max pages exceed %d: %w", o.MaxPages, wasm.MaxPages, ErrMemoryLayout)
	case o.MaxPages != 0 && o.MaxPages < o.MemoryPages:
		return fmt.Errorf("max pages %d below memory pages %d: %w", o.MaxPages, o.MemoryPages, ErrMemoryLayout)
	case o.StackPointer == 0 && uint64(o.MemoryPages)*wasm.PageSize > math.MaxUint32:
		return fmt.Errorf("top of %d pages does not fit the stack pointer; set it explicitly: %w", o.MemoryPages, ErrMemoryLayout)
	}
	return nil
}

// stackTop is the address just past the initial memory, as i32 bits.
func (o LinkOptions) stackTop() int32 {
	return int32(uint32(uint64(o.MemoryPages) * wasm.PageSize))
}

func (o LinkOptions) limits() wasm.Limits {
	l := wasm.Limits{Min: o.MemoryPages}
	if o.MaxPages != 0 {
		l.Max, l.HasMax = o.MaxPages, true
	}
	return l
}

// Linker lays out routines and a program into a module.
type Linker struct {
	lib *Library
	log commonlog.Logger
}

// NewLinker creates a linker resolving calls against lib.
func NewLinker(lib *Library) *Linker {
	return &Linker{lib: lib, log: commonlog.GetLogger("touchscript.link")}
}

// Link builds a module whose start function runs p.
//
// Function imports come first in the order routines are first needed, then
// one defined function per predefined routine with callees before callers,
// then the entry function. Macros are inlined at their call sites.
func (l *Linker) Link(p Program, opts LinkOptions) (*wasm.Module, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	deps, err := ResolveDependencies(p.Body)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	for _, d := range deps {
		if !l.lib.Contains(d) {
			return nil, fmt.Errorf("link: routine %d is not in the library: %w", d.ID(), ErrUnresolvedDependency)
		}
	}

	m := &wasm.Module{}
	if opts.ImportMemory {
		m.Imports = append(m.Imports, wasm.Import{
			Module: opts.MemoryModule,
			Field:  opts.MemoryField,
			Kind:   wasm.KindMemory,
			Memory: opts.limits(),
		})
	} else {
		m.Memories = []wasm.Limits{opts.limits()}
		if opts.ExportMemory != "" {
			m.Exports = append(m.Exports, wasm.Export{Name: opts.ExportMemory, Kind: wasm.KindMemory})
		}
	}

	index := make(map[RoutineID]uint32)
	var funcCount uint32
	for _, d := range deps {
		if imp, ok := d.(*Imported); ok {
			m.Imports = append(m.Imports, wasm.Import{
				Module:    imp.Module,
				Field:     imp.Field,
				Kind:      wasm.KindFunction,
				TypeIndex: m.AddType(imp.Signature().FuncType()),
			})
			index[imp.ID()] = funcCount
			funcCount++
		}
	}

	var defined []*Predefined
	for _, d := range deps {
		if pre, ok := d.(*Predefined); ok {
			m.Functions = append(m.Functions, m.AddType(pre.Signature().FuncType()))
			index[pre.ID()] = funcCount
			funcCount++
			defined = append(defined, pre)
		}
	}
	for _, pre := range defined {
		code, err := assemble(pre.Body, index)
		if err != nil {
			return nil, fmt.Errorf("link: routine %d: %w", pre.ID(), err)
		}
		m.Code = append(m.Code, wasm.FunctionBody{Locals: slices.Clone(pre.Locals), Code: code})
	}

	entry := funcCount
	code, err := assemble(p.Body, index)
	if err != nil {
		return nil, fmt.Errorf("link: entry: %w", err)
	}
	m.Functions = append(m.Functions, m.AddType(wasm.FuncType{}))
	m.Code = append(m.Code, wasm.FunctionBody{
		Locals: slices.Clone(p.Locals),
		Code:   append(code, byte(wasm.OpEnd)),
	})
	m.Start = &entry
	if opts.ExportEntry != "" {
		m.Exports = append(m.Exports, wasm.Export{Name: opts.ExportEntry, Kind: wasm.KindFunction, Index: entry})
	}

	sp := opts.StackPointer
	if sp == 0 {
		sp = opts.stackTop()
	}
	m.Globals = []wasm.Global{{
		Type: wasm.GlobalType{Type: wasm.I32, Mutable: true},
		Init: wasm.NewBuilder().I32Const(sp).Bytes(),
	}}

	for _, seg := range p.Data {
		m.Data = append(m.Data, wasm.DataSegment{
			MemoryIndex: seg.MemoryIndex,
			Offset:      seg.Offset,
			Bytes:       slices.Clone(seg.Bytes),
		})
	}

	l.log.Debugf("linked %d imports, %d functions, %d types, %d data segments",
		len(m.Imports), len(m.Functions), len(m.Types), len(m.Data))
	return m, nil
}

// assemble flattens code into instruction bytes, resolving calls through
// index and inlining macros.
func assemble(code Code, index map[RoutineID]uint32) ([]byte, error) {
	b := wasm.NewBuilder()
	for _, op := range code {
		b.Raw(op.Bytes...)
		if op.Call == nil {
			continue
		}
		if mac, ok := op.Call.(*Macro); ok {
			b.Raw(mac.Code...)
			continue
		}
		idx, ok := index[op.Call.ID()]
		if !ok {
			return nil, fmt.Errorf("call to routine %d: %w", op.Call.ID(), ErrUnresolvedDependency)
		}
		b.Index(wasm.OpCall, idx)
	}
	return b.Bytes(), nil
}

// LinkAndEncode links p and encodes the result.
func (l *Linker) LinkAndEncode(p Program, opts LinkOptions) ([]byte, error) {
	m, err := l.Link(p, opts)
	if err != nil {
		return nil, err
	}
	return wasm.Encode(m)
}
