// Package regalloc assigns registers to function variables by graph
// coloring, spilling to stack slots when the graph is infeasible.
package regalloc

import (
	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/interference"
)

// Color simplifies and selects on the conflict graph, assigning every
// variable node a palette index or leaving it uncolored as a spill.
// The returned spills are ordered most-constrained last, so callers
// spill from the end of the list.
func Color(g *interference.Graph) []*il.Variable {
	k := len(il.AllocOrder)
	var stack []int

	for {
		u, ok := lowDegreeNode(g, k)
		if !ok {
			// potential spill: the highest-degree node goes on the
			// stack anyway and may still find a color on select
			u, ok = highestDegreeNode(g)
			if !ok {
				break
			}
		}
		stack = append(stack, u)
		g.SetEnabled(u, false)
	}

	var spills []*il.Variable
	for i := len(stack) - 1; i >= 0; i-- {
		u := stack[i]
		g.SetEnabled(u, true)
		color, ok := freeColor(g, u, k)
		if !ok {
			if v, isVar := g.Node(u).(*il.Variable); isVar {
				spills = append(spills, v)
			}
			continue
		}
		g.SetColor(u, color)
	}
	return spills
}

// lowDegreeNode finds an enabled uncolored node whose enabled degree is
// below k, scanning in node order.
func lowDegreeNode(g *interference.Graph, k int) (int, bool) {
	for u := 0; u < g.Len(); u++ {
		if g.Enabled(u) && g.Color(u) == interference.NoColor && g.EnabledDegree(u) < k {
			return u, true
		}
	}
	return 0, false
}

// highestDegreeNode finds the enabled uncolored node with the most
// enabled neighbors, breaking ties by name.
func highestDegreeNode(g *interference.Graph) (int, bool) {
	best, bestDegree, found := 0, -1, false
	for u := 0; u < g.Len(); u++ {
		if !g.Enabled(u) || g.Color(u) != interference.NoColor {
			continue
		}
		degree := g.EnabledDegree(u)
		if degree > bestDegree ||
			(degree == bestDegree && g.Node(u).NodeName() < g.Node(best).NodeName()) {
			best, bestDegree, found = u, degree, true
		}
	}
	return best, found
}

// freeColor picks the lowest color not used by an enabled neighbor.
func freeColor(g *interference.Graph, u, k int) (int, bool) {
	used := make([]bool, k)
	for _, v := range g.Neighbors(u) {
		if g.Enabled(v) && g.Color(v) != interference.NoColor {
			used[g.Color(v)] = true
		}
	}
	for color := 0; color < k; color++ {
		if !used[color] {
			return color, true
		}
	}
	return 0, false
}
