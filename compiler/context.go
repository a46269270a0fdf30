package compiler

// IDAllocator hands out monotonically increasing identifiers. It is not
// synchronized: the document that owns it is the single writer.
type IDAllocator struct {
	next int
}

// NewIDAllocator creates an allocator whose first id is start.
func NewIDAllocator(start int) *IDAllocator {
	return &IDAllocator{next: start}
}

// Next returns a fresh id.
func (a *IDAllocator) Next() int {
	id := a.next
	a.next++
	return id
}

// Observe records that id is in use, so later ids never collide with it.
// Used when records are loaded from a saved document.
func (a *IDAllocator) Observe(id int) {
	if id >= a.next {
		a.next = id + 1
	}
}

// Peek returns the id the next call to Next will return.
func (a *IDAllocator) Peek() int {
	return a.next
}

// Context holds the registries and id counters for one document or
// compilation. Independent contexts never share identifiers.
type Context struct {
	Types     *TypeRegistry
	Operators *OperatorRegistry
	Keywords  *KeywordTable
	Library   *Library

	// Vars allocates VariableDef ids, starting at 0.
	Vars *IDAllocator
}

// NewContext creates a Context over the built-in registries with fresh
// id counters.
func NewContext() *Context {
	return &Context{
		Types:     NewTypeRegistry(),
		Operators: DefaultOperators(),
		Keywords:  DefaultKeywords(),
		Library:   DefaultLibrary(),
		Vars:      NewIDAllocator(0),
	}
}

// NewVariable defines a variable with a fresh id.
func (c *Context) NewVariable(name string, typ *Type, scope *Type, typeAnnotated bool) *VariableDef {
	return NewVariableDef(c.Vars.Next(), name, typ, scope, typeAnnotated)
}
