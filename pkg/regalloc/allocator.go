package regalloc

import (
	"errors"
	"fmt"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/interference"
	"github.com/il-lang/ilc/pkg/liveness"
)

// Allocation maps every variable of a function to a register and
// records how many stack slots spilling consumed.
type Allocation struct {
	Assignment map[*il.Variable]*il.Register
	SpillSlots int64
}

// AllocateAndSpill colors f's variables, spilling one variable per
// failed attempt until the graph colors. Fails when only non-spillable
// temporaries are left to spill.
func AllocateAndSpill(f *il.Function) (*Allocation, error) {
	a, _, err := allocateAndSpill(f, 0)
	return a, err
}

func allocateAndSpill(f *il.Function, nextSlot int64) (*Allocation, int64, error) {
	for {
		live := liveness.Analyze(f)
		g, err := interference.Build(f, live)
		if err != nil {
			return nil, nextSlot, err
		}
		spills := Color(g)
		if len(spills) == 0 {
			a, err := assignment(f, g)
			if a != nil {
				a.SpillSlots = nextSlot
			}
			return a, nextSlot, err
		}
		picked := lastSpillable(spills)
		if picked == nil {
			return nil, nextSlot, errors.New("registers exhausted with no spillable variable left")
		}
		Spill(f, picked, FreshPrefix(f, "s"), nextSlot)
		nextSlot++
	}
}

// AllocateWithBackup retries a failed allocation after spilling every
// variable to memory, which leaves only short-lived temporaries to
// color.
func AllocateWithBackup(f *il.Function) (*Allocation, error) {
	a, used, err := allocateAndSpill(f, 0)
	if err == nil {
		return a, nil
	}
	f.MarkAllSpillable()
	used = spillAllFrom(f, FreshPrefix(f, "s"), used)
	a, _, err = allocateAndSpill(f, used)
	if err != nil {
		return nil, fmt.Errorf("allocation failed even after spilling all variables: %w", err)
	}
	return a, nil
}

// lastSpillable returns the most constrained spill candidate, the last
// spillable entry of the list.
func lastSpillable(spills []*il.Variable) *il.Variable {
	for i := len(spills) - 1; i >= 0; i-- {
		if spills[i].Spillable {
			return spills[i]
		}
	}
	return nil
}

// assignment reads the coloring back out of the graph.
func assignment(f *il.Function, g *interference.Graph) (*Allocation, error) {
	a := &Allocation{Assignment: make(map[*il.Variable]*il.Register)}
	for _, v := range f.Scope.Variables.AllItems() {
		u, ok := g.Index(v)
		if !ok {
			return nil, fmt.Errorf("variable %%%s missing from conflict graph", v.Name)
		}
		color := g.Color(u)
		if color == interference.NoColor {
			return nil, fmt.Errorf("variable %%%s left uncolored", v.Name)
		}
		reg, ok := f.Scope.Registers.Lookup(il.AllocOrder[color])
		if !ok {
			return nil, fmt.Errorf("register %s not in scope", il.AllocOrder[color])
		}
		a.Assignment[v] = reg
	}
	return a, nil
}
