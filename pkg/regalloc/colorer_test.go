package regalloc

import (
	"fmt"
	"testing"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/interference"
)

func cliqueOf(t *testing.T, n int) (*interference.Graph, []il.Node) {
	t.Helper()
	nodes := make([]il.Node, n)
	for i := range nodes {
		nodes[i] = &il.Variable{Name: fmt.Sprintf("n%02d", i), Spillable: true}
	}
	g := interference.New(nodes)
	for i, a := range nodes {
		for _, b := range nodes[i+1:] {
			if err := g.AddEdge(a, b); err != nil {
				t.Fatalf("AddEdge: %v", err)
			}
		}
	}
	return g, nodes
}

func TestColorSmallClique(t *testing.T) {
	g, nodes := cliqueOf(t, 3)
	spills := Color(g)
	if len(spills) != 0 {
		t.Fatalf("spills = %v, want none", spills)
	}
	seen := make(map[int]bool)
	for _, n := range nodes {
		u, _ := g.Index(n)
		color := g.Color(u)
		if color == interference.NoColor {
			t.Fatalf("%s uncolored", n.NodeName())
		}
		if seen[color] {
			t.Errorf("color %d reused inside a clique", color)
		}
		seen[color] = true
	}
}

func TestColorOversizedClique(t *testing.T) {
	g, _ := cliqueOf(t, len(il.AllocOrder)+1)
	spills := Color(g)
	if len(spills) != 1 {
		t.Fatalf("spills = %v, want exactly one", spills)
	}
	// all nodes tie on degree, so the name-ordered first is picked
	if spills[0].Name != "n00" {
		t.Errorf("spilled %s, want n00", spills[0].Name)
	}
}

func TestColorDisjointCliquesSpillOrder(t *testing.T) {
	n := len(il.AllocOrder) + 1
	var nodes []il.Node
	for _, prefix := range []string{"a", "b"} {
		for i := 0; i < n; i++ {
			nodes = append(nodes, &il.Variable{Name: fmt.Sprintf("%s%02d", prefix, i), Spillable: true})
		}
	}
	g := interference.New(nodes)
	for c := 0; c < 2; c++ {
		clique := nodes[c*n : (c+1)*n]
		for i, a := range clique {
			for _, b := range clique[i+1:] {
				if err := g.AddEdge(a, b); err != nil {
					t.Fatalf("AddEdge: %v", err)
				}
			}
		}
	}

	spills := Color(g)
	if len(spills) != 2 {
		t.Fatalf("spills = %v, want two", spills)
	}
	// a00 is pushed first during simplify, so it must come back last
	if spills[0].Name != "b00" || spills[1].Name != "a00" {
		t.Errorf("spill order = [%s %s], want [b00 a00]", spills[0].Name, spills[1].Name)
	}
}

func TestColorRespectsPrecolored(t *testing.T) {
	v := &il.Variable{Name: "v", Spillable: true}
	regs := make([]il.Node, 3)
	for i := range regs {
		regs[i] = &il.Register{Name: fmt.Sprintf("fixed%d", i)}
	}
	g := interference.New(append([]il.Node{v}, regs...))
	for i, r := range regs {
		u, _ := g.Index(r)
		g.SetColor(u, i)
		if err := g.AddEdge(v, r); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}

	spills := Color(g)
	if len(spills) != 0 {
		t.Fatalf("spills = %v, want none", spills)
	}
	u, _ := g.Index(il.Node(v))
	if color := g.Color(u); color < 3 {
		t.Errorf("variable took pre-colored neighbor's color %d", color)
	}
}
