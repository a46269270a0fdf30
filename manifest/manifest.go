// Package manifest handles touchscript.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/touchscript/compiler"
)

// FileName is the manifest's name inside a project directory.
const FileName = "touchscript.toml"

// Manifest represents a touchscript.toml project configuration.
type Manifest struct {
	Project Project      `toml:"project"`
	Module  ModuleConfig `toml:"module"`
	Output  Output       `toml:"output"`
	Store   StoreConfig  `toml:"store"`

	// Dir is the directory containing the touchscript.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// ModuleConfig controls the layout of linked modules.
type ModuleConfig struct {
	MemoryPages  uint32 `toml:"memory-pages"`
	MaxPages     uint32 `toml:"max-pages"`
	ImportMemory bool   `toml:"import-memory"`
	MemoryModule string `toml:"memory-module"`
	MemoryField  string `toml:"memory-field"`
	ExportMemory string `toml:"export-memory"`
	StackPointer int32  `toml:"stack-pointer"`
	ExportEntry  string `toml:"export-entry"`
}

// Output configures where compiled modules are written.
type Output struct {
	Wasm string `toml:"wasm"`
}

// StoreConfig locates the project database.
type StoreConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no manifest exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	def := compiler.DefaultLinkOptions()
	if m.Module.MemoryPages == 0 {
		m.Module.MemoryPages = def.MemoryPages
	}
	if m.Module.MemoryModule == "" {
		m.Module.MemoryModule = def.MemoryModule
	}
	if m.Module.MemoryField == "" {
		m.Module.MemoryField = def.MemoryField
	}
	if m.Module.ExportMemory == "" && !m.Module.ImportMemory {
		m.Module.ExportMemory = def.ExportMemory
	}
	if m.Output.Wasm == "" {
		m.Output.Wasm = "out.wasm"
	}
}

// Load parses a touchscript.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.LinkOptions().Validate(); err != nil {
		return nil, fmt.Errorf("%s: [module]: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a touchscript.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// LinkOptions converts the [module] section for the linker.
func (m *Manifest) LinkOptions() compiler.LinkOptions {
	return compiler.LinkOptions{
		MemoryPages:  m.Module.MemoryPages,
		MaxPages:     m.Module.MaxPages,
		ImportMemory: m.Module.ImportMemory,
		MemoryModule: m.Module.MemoryModule,
		MemoryField:  m.Module.MemoryField,
		ExportMemory: m.Module.ExportMemory,
		StackPointer: m.Module.StackPointer,
		ExportEntry:  m.Module.ExportEntry,
	}
}

// OutputPath returns the absolute path compiled modules are written to.
func (m *Manifest) OutputPath() string {
	if filepath.IsAbs(m.Output.Wasm) || m.Dir == "" {
		return m.Output.Wasm
	}
	return filepath.Join(m.Dir, m.Output.Wasm)
}

// StorePath returns the project database path, or "" for the default.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" || filepath.IsAbs(m.Store.Path) || m.Dir == "" {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
