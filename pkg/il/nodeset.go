package il

import "sort"

// Node is a variable-like value the allocator tracks: a Variable or a
// Register. The interference graph and liveness sets operate over Nodes.
type Node interface {
	NodeName() string
	implNode()
}

// NodeSet is a set of Nodes keyed by identity.
type NodeSet map[Node]struct{}

// NewNodeSet builds a set from the given nodes.
func NewNodeSet(nodes ...Node) NodeSet {
	s := make(NodeSet, len(nodes))
	for _, n := range nodes {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts n into the set.
func (s NodeSet) Add(n Node) {
	s[n] = struct{}{}
}

// Contains reports whether n is in the set.
func (s NodeSet) Contains(n Node) bool {
	_, ok := s[n]
	return ok
}

// AddAll inserts every node of o into s.
func (s NodeSet) AddAll(o NodeSet) {
	for n := range o {
		s[n] = struct{}{}
	}
}

// Union returns a new set containing the nodes of s and o.
func (s NodeSet) Union(o NodeSet) NodeSet {
	r := make(NodeSet, len(s)+len(o))
	r.AddAll(s)
	r.AddAll(o)
	return r
}

// Minus returns a new set containing the nodes of s not in o.
func (s NodeSet) Minus(o NodeSet) NodeSet {
	r := make(NodeSet)
	for n := range s {
		if !o.Contains(n) {
			r[n] = struct{}{}
		}
	}
	return r
}

// Equal reports whether s and o contain the same nodes.
func (s NodeSet) Equal(o NodeSet) bool {
	if len(s) != len(o) {
		return false
	}
	for n := range s {
		if !o.Contains(n) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy of the set.
func (s NodeSet) Copy() NodeSet {
	r := make(NodeSet, len(s))
	r.AddAll(s)
	return r
}

// Sorted returns the nodes ordered by name for deterministic output.
func (s NodeSet) Sorted() []Node {
	nodes := make([]Node, 0, len(s))
	for n := range s {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].NodeName() < nodes[j].NodeName()
	})
	return nodes
}

// SortedNames returns the node names in lexicographic order.
func (s NodeSet) SortedNames() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n.NodeName())
	}
	sort.Strings(names)
	return names
}
