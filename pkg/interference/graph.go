// Package interference builds and stores the coloring graph used by
// register allocation.
package interference

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/il-lang/ilc/pkg/il"
)

// NoColor marks a node that has not been assigned a palette index.
const NoColor = -1

type nodeInfo struct {
	node     il.Node
	adj      []int
	color    int
	enabled  bool
	selfEdge bool
}

// Graph is an undirected conflict graph over variables and allocatable
// registers. Adjacency lists hold sorted node indices. A node may carry
// a color, an index into the allocation palette.
type Graph struct {
	index map[il.Node]int
	nodes []nodeInfo
}

// New creates a graph over the given nodes, all enabled and uncolored.
func New(nodes []il.Node) *Graph {
	g := &Graph{index: make(map[il.Node]int, len(nodes))}
	for _, n := range nodes {
		if _, ok := g.index[n]; ok {
			continue
		}
		g.index[n] = len(g.nodes)
		g.nodes = append(g.nodes, nodeInfo{node: n, color: NoColor, enabled: true})
	}
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the node stored at index u.
func (g *Graph) Node(u int) il.Node { return g.nodes[u].node }

// Index returns the index of a node, if present.
func (g *Graph) Index(n il.Node) (int, bool) {
	u, ok := g.index[n]
	return u, ok
}

// Color returns the palette index of node u, or NoColor.
func (g *Graph) Color(u int) int { return g.nodes[u].color }

// SetColor assigns a palette index to node u.
func (g *Graph) SetColor(u, color int) { g.nodes[u].color = color }

// Enabled reports whether node u participates in conflict checks.
func (g *Graph) Enabled(u int) bool { return g.nodes[u].enabled }

// SetEnabled toggles node u's participation in conflict checks.
func (g *Graph) SetEnabled(u int, on bool) { g.nodes[u].enabled = on }

// Neighbors returns the sorted indices adjacent to u.
func (g *Graph) Neighbors(u int) []int { return g.nodes[u].adj }

// colorConflict reports whether u and v are both enabled, both colored,
// and colored alike.
func (g *Graph) colorConflict(u, v int) bool {
	ui, vi := &g.nodes[u], &g.nodes[v]
	return ui.enabled && vi.enabled &&
		ui.color != NoColor && ui.color == vi.color
}

// InConflict reports whether any enabled neighbor of u shares u's color.
func (g *Graph) InConflict(u int) bool {
	if !g.nodes[u].enabled {
		return false
	}
	for _, v := range g.nodes[u].adj {
		if g.colorConflict(u, v) {
			return true
		}
	}
	return false
}

// AddEdge records that a and b cannot share a register. Idempotent. An
// edge between equal-colored enabled nodes is an error; a self-edge is
// stored only as a marker since a colored node cannot conflict with
// itself.
func (g *Graph) AddEdge(a, b il.Node) error {
	u, ok := g.index[a]
	if !ok {
		return fmt.Errorf("node %s not in graph", a.NodeName())
	}
	v, ok := g.index[b]
	if !ok {
		return fmt.Errorf("node %s not in graph", b.NodeName())
	}
	return g.addEdge(u, v)
}

func (g *Graph) addEdge(u, v int) error {
	if u == v {
		g.nodes[u].selfEdge = true
		return nil
	}
	if g.colorConflict(u, v) {
		return fmt.Errorf("edge between equal-colored nodes %s and %s",
			g.nodes[u].node.NodeName(), g.nodes[v].node.NodeName())
	}
	if insertSorted(&g.nodes[u].adj, v) {
		insertSorted(&g.nodes[v].adj, u)
	}
	return nil
}

// insertSorted adds x to a sorted slice, reporting whether it was new.
func insertSorted(adj *[]int, x int) bool {
	i := sort.SearchInts(*adj, x)
	if i < len(*adj) && (*adj)[i] == x {
		return false
	}
	*adj = append(*adj, 0)
	copy((*adj)[i+1:], (*adj)[i:])
	(*adj)[i] = x
	return true
}

// AddClique adds every edge among a set of nodes.
func (g *Graph) AddClique(set il.NodeSet) error {
	nodes := set.Sorted()
	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			if err := g.AddEdge(a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddTotalBipartite adds every edge between a node of one group and a
// distinct node of the other.
func (g *Graph) AddTotalBipartite(groupA, groupB il.NodeSet) error {
	for a := range groupA {
		for b := range groupB {
			if a == b {
				continue
			}
			if err := g.AddEdge(a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// HasEdge reports whether an edge exists between a and b.
func (g *Graph) HasEdge(a, b il.Node) bool {
	u, ok := g.index[a]
	if !ok {
		return false
	}
	v, ok := g.index[b]
	if !ok {
		return false
	}
	i := sort.SearchInts(g.nodes[u].adj, v)
	return i < len(g.nodes[u].adj) && g.nodes[u].adj[i] == v
}

// EnabledDegree counts the enabled neighbors of u.
func (g *Graph) EnabledDegree(u int) int {
	degree := 0
	for _, v := range g.nodes[u].adj {
		if g.nodes[v].enabled {
			degree++
		}
	}
	return degree
}

// Dump writes one line per node in name order: the node's name followed
// by its neighbors' names, also in name order.
func (g *Graph) Dump(w io.Writer) {
	order := make([]int, len(g.nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return g.nodes[order[i]].node.NodeName() < g.nodes[order[j]].node.NodeName()
	})

	for _, u := range order {
		names := make([]string, 0, len(g.nodes[u].adj))
		for _, v := range g.nodes[u].adj {
			names = append(names, g.nodes[v].node.NodeName())
		}
		sort.Strings(names)
		line := g.nodes[u].node.NodeName()
		if len(names) > 0 {
			line += " " + strings.Join(names, " ")
		}
		fmt.Fprintln(w, line)
	}
}
