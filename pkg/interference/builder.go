package interference

import (
	"fmt"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/liveness"
)

// Build constructs the conflict graph for one analyzed function. All
// allocatable registers enter as a pre-colored clique, palette order
// fixing their colors. Each instruction contributes a clique over its
// IN set, a clique over its OUT set when control forks, and edges
// between its KILL set and the values live past it. Shift counts held
// in variables are pinned away from every register but rcx.
func Build(f *il.Function, live *liveness.Info) (*Graph, error) {
	var nodes []il.Node
	for _, v := range f.Scope.Variables.AllItems() {
		nodes = append(nodes, v)
	}
	registers := make([]*il.Register, 0, len(il.AllocOrder))
	for _, name := range il.AllocOrder {
		reg, ok := f.Scope.Registers.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("register %s not in scope", name)
		}
		registers = append(registers, reg)
		nodes = append(nodes, reg)
	}

	g := New(nodes)
	registerSet := il.NewNodeSet()
	for color, reg := range registers {
		u, _ := g.Index(reg)
		g.SetColor(u, color)
		registerSet.Add(reg)
	}
	if err := g.AddClique(registerSet); err != nil {
		return nil, err
	}

	for i := range f.Instructions {
		if err := g.AddClique(live.In[i]); err != nil {
			return nil, err
		}
		if len(live.Succ[i]) > 1 {
			if err := g.AddClique(live.Out[i]); err != nil {
				return nil, err
			}
		}
		if err := g.AddTotalBipartite(live.Kill[i], live.Out[i].Minus(live.Kill[i])); err != nil {
			return nil, err
		}
	}

	if err := addShiftRestrictions(g, f, registers); err != nil {
		return nil, err
	}
	return g, nil
}

// addShiftRestrictions pins every variable-held shift count to rcx by
// edging it against the rest of the palette. Literal counts contribute
// nothing.
func addShiftRestrictions(g *Graph, f *il.Function, registers []*il.Register) error {
	for _, inst := range f.Instructions {
		assign, ok := inst.(*il.Assign)
		if !ok || (assign.Op != il.OpShl && assign.Op != il.OpShr) {
			continue
		}
		for count := range assign.Src.VarsOnRead() {
			for _, reg := range registers {
				if reg.Name == "rcx" {
					continue
				}
				if err := g.AddEdge(count, reg); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
