package il

import (
	"fmt"
	"sort"
)

// Ref is a reference that can be bound to its referent once the name it
// mentions is defined.
type Ref[T any] interface {
	Bind(item T)
}

// Scope is a namespace for one kind of item. References registered
// before their name is defined are parked as free refs and bound when
// Resolve defines the name; SetParent hands any still-free refs to the
// enclosing scope.
type Scope[T any] struct {
	kind    string
	items   map[string]T
	order   []string
	pending map[string][]Ref[T]
	parent  *Scope[T]
}

// NewScope creates an empty scope; kind names the item kind in
// diagnostics ("label", "function", ...).
func NewScope[T any](kind string) *Scope[T] {
	return &Scope[T]{
		kind:    kind,
		items:   make(map[string]T),
		pending: make(map[string][]Ref[T]),
	}
}

// Lookup finds name in this scope or any ancestor.
func (s *Scope[T]) Lookup(name string) (T, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if item, ok := sc.items[name]; ok {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// AddRef registers a reference to name. If the name is already visible
// the ref is bound immediately; otherwise it is parked here, or
// forwarded to the parent once one is set.
func (s *Scope[T]) AddRef(name string, ref Ref[T]) {
	if item, ok := s.Lookup(name); ok {
		ref.Bind(item)
		return
	}
	if s.parent != nil {
		s.parent.AddRef(name, ref)
		return
	}
	s.pending[name] = append(s.pending[name], ref)
}

// Resolve defines name in this scope and binds every free ref parked
// under it. Defining the same name twice is an error.
func (s *Scope[T]) Resolve(name string, item T) error {
	if _, ok := s.items[name]; ok {
		return fmt.Errorf("duplicate %s %q", s.kind, name)
	}
	s.define(name, item)
	return nil
}

// GetOrCreate returns the item for name, materializing one with make
// when the name is not yet visible anywhere in the chain.
func (s *Scope[T]) GetOrCreate(name string, make func(name string) T) T {
	if item, ok := s.Lookup(name); ok {
		return item
	}
	item := make(name)
	s.define(name, item)
	return item
}

func (s *Scope[T]) define(name string, item T) {
	s.items[name] = item
	s.order = append(s.order, name)
	for _, ref := range s.pending[name] {
		ref.Bind(item)
	}
	delete(s.pending, name)
}

// SetParent chains this scope under parent and transfers every free ref
// to it; refs whose names the parent already knows are bound on the spot.
func (s *Scope[T]) SetParent(parent *Scope[T]) {
	s.parent = parent
	for name, refs := range s.pending {
		for _, ref := range refs {
			parent.AddRef(name, ref)
		}
		delete(s.pending, name)
	}
}

// FreeNames returns the names with unbound refs, sorted.
func (s *Scope[T]) FreeNames() []string {
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AllItems returns the items defined directly in this scope in
// definition order.
func (s *Scope[T]) AllItems() []T {
	items := make([]T, 0, len(s.order))
	for _, name := range s.order {
		items = append(items, s.items[name])
	}
	return items
}

// AggregateScope bundles the per-kind scopes of a function or program.
type AggregateScope struct {
	Variables *Scope[*Variable]
	Registers *Scope[*Register]
	Labels    *Scope[*Label]
	Functions *Scope[*Function]
	Externals *Scope[*ExternalFunction]
}

// NewAggregateScope creates an aggregate with five empty per-kind scopes.
func NewAggregateScope() *AggregateScope {
	return &AggregateScope{
		Variables: NewScope[*Variable]("variable"),
		Registers: NewScope[*Register]("register"),
		Labels:    NewScope[*Label]("label"),
		Functions: NewScope[*Function]("function"),
		Externals: NewScope[*ExternalFunction]("external function"),
	}
}

// SetParent chains each per-kind scope to the parent's corresponding kind.
func (s *AggregateScope) SetParent(parent *AggregateScope) {
	s.Variables.SetParent(parent.Variables)
	s.Registers.SetParent(parent.Registers)
	s.Labels.SetParent(parent.Labels)
	s.Functions.SetParent(parent.Functions)
	s.Externals.SetParent(parent.Externals)
}
