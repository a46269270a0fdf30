package compiler

import (
	"fmt"
	"slices"

	"github.com/chazu/touchscript/pkg/wasm"
)

// RoutineID identifies a routine. Built-in routines use fixed negative ids.
type RoutineID int

// Param is one routine parameter. Default is shown to the user only.
type Param struct {
	Type    *Type
	Name    string
	Default string
}

// Label is the text shown for an argument slot.
func (p Param) Label() string {
	if p.Default != "" {
		return p.Name + "\n" + p.Default
	}
	return p.Name
}

// Signature describes how a routine is called. An empty Name marks an
// operator-like routine that is never called by name.
type Signature struct {
	Namespace *Type
	Name      string
	Returns   *Type
	Params    []Param
}

// FuncType lowers the signature to its machine function type.
func (s *Signature) FuncType() wasm.FuncType {
	var ft wasm.FuncType
	for _, p := range s.Params {
		ft.Params = append(ft.Params, p.Type.ValueTypes()...)
	}
	ft.Results = s.Returns.ValueTypes()
	return ft
}

// Display renders the signature's name, prefixed by the return type when
// the routine yields a value.
func (s *Signature) Display() Display {
	if s.Returns.Size == 0 {
		return Display{Text: s.Name, Style: StyleFuncDef}
	}
	return Display{Text: s.Returns.Text + "\n" + s.Name, Style: StyleKeyword + " " + StyleFuncDef}
}

// Routine is a built-in callable: Imported, Macro or Predefined.
type Routine interface {
	ID() RoutineID
	Signature() *Signature
	Display() Display
}

type routineBase struct {
	id  RoutineID
	sig Signature
}

func (r *routineBase) ID() RoutineID         { return r.id }
func (r *routineBase) Signature() *Signature { return &r.sig }
func (r *routineBase) Display() Display      { return Display{Text: r.sig.Name, Style: StyleFuncDef} }

// Imported is bound to a host function and contributes one import entry.
type Imported struct {
	routineBase
	Module string
	Field  string
}

// NewImported creates a host-imported routine.
func NewImported(id RoutineID, sig Signature, module, field string) *Imported {
	return &Imported{routineBase: routineBase{id: id, sig: sig}, Module: module, Field: field}
}

// Macro is inlined at every call site.
type Macro struct {
	routineBase
	Code []byte
}

// NewMacro creates an inline routine from its instruction bytes.
func NewMacro(id RoutineID, sig Signature, code []byte) *Macro {
	return &Macro{routineBase: routineBase{id: id, sig: sig}, Code: code}
}

// Predefined is a routine with its own function body. Body includes the
// terminating end opcode; parameters come first in the local index space,
// followed by Locals.
type Predefined struct {
	routineBase
	Locals []wasm.LocalEntry
	Body   Code

	deps []Routine
}

// NewPredefined creates a routine and computes its dependency set: every
// Imported and Predefined routine reachable from its body, callees first.
func NewPredefined(id RoutineID, sig Signature, locals []wasm.LocalEntry, body Code) (*Predefined, error) {
	p := &Predefined{
		routineBase: routineBase{id: id, sig: sig},
		Locals:      locals,
		Body:        body,
	}
	deps, err := ResolveDependencies(body)
	if err != nil {
		return nil, fmt.Errorf("routine %d: %w", id, err)
	}
	for _, d := range deps {
		if d.ID() == id {
			return nil, fmt.Errorf("routine %d calls itself: %w", id, ErrDependencyCycle)
		}
	}
	p.deps = deps
	return p, nil
}

// Dependencies returns the routines that must be present in a module
// containing p, ordered so that callees precede their callers.
func (p *Predefined) Dependencies() []Routine {
	return slices.Clone(p.deps)
}

func isNilRoutine(r Routine) bool {
	switch v := r.(type) {
	case nil:
		return true
	case *Imported:
		return v == nil
	case *Macro:
		return v == nil
	case *Predefined:
		return v == nil
	}
	return false
}

// ResolveDependencies walks the calls in code and returns every Imported
// and Predefined routine it needs, deduplicated, callees before callers.
// Macros contribute nothing since they are inlined.
func ResolveDependencies(code Code) ([]Routine, error) {
	w := &depWalker{
		seen:     make(map[RoutineID]bool),
		visiting: make(map[RoutineID]bool),
	}
	for _, op := range code {
		if op.Call == nil {
			continue
		}
		if err := w.visit(op.Call); err != nil {
			return nil, err
		}
	}
	return w.order, nil
}

type depWalker struct {
	seen     map[RoutineID]bool
	visiting map[RoutineID]bool
	order    []Routine
}

func (w *depWalker) visit(r Routine) error {
	if isNilRoutine(r) {
		return fmt.Errorf("call to undefined routine: %w", ErrUnresolvedDependency)
	}
	if _, ok := r.(*Macro); ok {
		return nil
	}
	id := r.ID()
	if w.seen[id] {
		return nil
	}
	if w.visiting[id] {
		return fmt.Errorf("routine %d: %w", id, ErrDependencyCycle)
	}
	if p, ok := r.(*Predefined); ok {
		w.visiting[id] = true
		for _, callee := range p.Body.Calls() {
			if err := w.visit(callee); err != nil {
				return err
			}
		}
		delete(w.visiting, id)
	}
	w.seen[id] = true
	w.order = append(w.order, r)
	return nil
}
