package il

import "fmt"

// ExternalFunction is a runtime-provided function callable by plain
// name. NumArgs of -1 means variadic; NeverReturns marks functions that
// terminate the program.
type ExternalFunction struct {
	Name         string
	NumArgs      int64
	NeverReturns bool
}

// Function is a named instruction sequence with its own scope.
type Function struct {
	Name         string
	NumArgs      int64
	Instructions []Instruction
	Scope        *AggregateScope
}

// NewFunction creates an empty function. Its scope stands alone until
// the function is added to a program.
func NewFunction(name string, numArgs int64) *Function {
	return &Function{
		Name:    name,
		NumArgs: numArgs,
		Scope:   NewAggregateScope(),
	}
}

// NewVariable makes a spillable variable; use with Scope.GetOrCreate.
func NewVariable(name string) *Variable {
	return &Variable{Name: name, Spillable: true}
}

// GetOrCreateVariable returns the function's variable called name,
// creating it on first use.
func (f *Function) GetOrCreateVariable(name string) *Variable {
	return f.Scope.Variables.GetOrCreate(name, NewVariable)
}

// Append adds an instruction at the end of the body.
func (f *Function) Append(inst Instruction) {
	f.Instructions = append(f.Instructions, inst)
}

// Insert places an instruction at index, shifting the rest down.
func (f *Function) Insert(index int, inst Instruction) {
	f.Instructions = append(f.Instructions, nil)
	copy(f.Instructions[index+1:], f.Instructions[index:])
	f.Instructions[index] = inst
}

// DefineLabel records a label definition in the function's label scope.
func (f *Function) DefineLabel(l *Label) error {
	return f.Scope.Labels.Resolve(l.Name, l)
}

// MarkAllSpillable resets the spillable flag on every variable.
func (f *Function) MarkAllSpillable() {
	for _, v := range f.Scope.Variables.AllItems() {
		v.Spillable = true
	}
}

// RegisterSet resolves register names against the scope chain; names
// not yet visible are skipped.
func (s *AggregateScope) RegisterSet(names ...string) NodeSet {
	set := NewNodeSet()
	for _, name := range names {
		if r, ok := s.Registers.Lookup(name); ok {
			set.Add(r)
		}
	}
	return set
}

// Builtins pre-populated into every program's external scope.
var builtinExternals = []ExternalFunction{
	{Name: "print", NumArgs: 1},
	{Name: "input", NumArgs: 0},
	{Name: "allocate", NumArgs: 2},
	{Name: "tensor-error", NumArgs: 3, NeverReturns: true},
	{Name: "tuple-error", NumArgs: -1, NeverReturns: true},
}

// Program is a collection of functions plus the top-level scope holding
// the registers and runtime externals they reference.
type Program struct {
	Entry     *FunctionRef
	Functions []*Function
	Externals []*ExternalFunction
	Scope     *AggregateScope
}

// NewProgram creates a program whose entry point is the function named
// entryName. The top-level scope is seeded with the 16 registers and
// the runtime builtins; the entry reference binds when the named
// function is added.
func NewProgram(entryName string) *Program {
	p := &Program{Scope: NewAggregateScope()}
	for _, def := range registerDefs {
		reg := &Register{Name: def.name, CalleeSaved: def.calleeSaved, ArgumentOrder: def.argOrder}
		p.Scope.Registers.Resolve(def.name, reg)
	}
	for _, b := range builtinExternals {
		ext := b
		p.Externals = append(p.Externals, &ext)
		p.Scope.Externals.Resolve(ext.Name, &ext)
	}
	p.Entry = &FunctionRef{Name: entryName}
	p.Scope.Functions.AddRef(entryName, p.Entry)
	return p
}

// AddFunction defines f in the program and chains f's scope under the
// program's, binding any references f left free.
func (p *Program) AddFunction(f *Function) error {
	if err := p.Scope.Functions.Resolve(f.Name, f); err != nil {
		return err
	}
	f.Scope.SetParent(p.Scope)
	p.Functions = append(p.Functions, f)
	return nil
}

// Finalize verifies that every name referenced anywhere in the program
// has been defined.
func (p *Program) Finalize() error {
	for _, name := range p.Scope.Labels.FreeNames() {
		return fmt.Errorf("label :%s is never defined", name)
	}
	for _, name := range p.Scope.Functions.FreeNames() {
		return fmt.Errorf("function @%s is never defined", name)
	}
	for _, name := range p.Scope.Registers.FreeNames() {
		return fmt.Errorf("unknown register %s", name)
	}
	for _, name := range p.Scope.Externals.FreeNames() {
		return fmt.Errorf("unknown external function %s", name)
	}
	return nil
}
