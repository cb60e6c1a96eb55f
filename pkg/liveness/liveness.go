// Package liveness computes per-instruction GEN/KILL/IN/OUT sets and
// control-flow successors for an IL function.
package liveness

import (
	"fmt"
	"io"
	"strings"

	"github.com/il-lang/ilc/pkg/il"
)

// Info holds the dataflow results for one function, indexed by
// instruction position.
type Info struct {
	Fn   *il.Function
	Gen  []il.NodeSet
	Kill []il.NodeSet
	In   []il.NodeSet
	Out  []il.NodeSet
	Succ [][]int
}

// Analyze computes successors, GEN/KILL, and the least fixed point of
//
//	OUT(i) = union of IN(s) over successors s
//	IN(i)  = GEN(i) union (OUT(i) minus KILL(i))
//
// by reverse-order sweeps until no set changes.
func Analyze(f *il.Function) *Info {
	n := len(f.Instructions)
	info := &Info{
		Fn:   f,
		Gen:  make([]il.NodeSet, n),
		Kill: make([]il.NodeSet, n),
		In:   make([]il.NodeSet, n),
		Out:  make([]il.NodeSet, n),
		Succ: successors(f),
	}

	for i, inst := range f.Instructions {
		info.Gen[i] = GenSet(f, inst)
		info.Kill[i] = KillSet(f, inst)
		info.In[i] = info.Gen[i].Copy()
		info.Out[i] = il.NewNodeSet()
	}

	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			out := il.NewNodeSet()
			for _, s := range info.Succ[i] {
				out.AddAll(info.In[s])
			}
			if !out.Equal(info.Out[i]) {
				info.Out[i] = out
				changed = true
			}

			in := info.Gen[i].Union(info.Out[i].Minus(info.Kill[i]))
			if !in.Equal(info.In[i]) {
				info.In[i] = in
				changed = true
			}
		}
	}
	return info
}

// successors maps each instruction index to the indices control may
// reach next. Returns and calls to never-returning externals have none.
func successors(f *il.Function) [][]int {
	labelIndex := make(map[*il.Label]int)
	for i, inst := range f.Instructions {
		if lab, ok := inst.(*il.Label); ok {
			labelIndex[lab] = i
		}
	}

	n := len(f.Instructions)
	succ := make([][]int, n)
	for i, inst := range f.Instructions {
		next := i + 1
		switch t := inst.(type) {
		case *il.Return:
		case *il.Goto:
			if idx, ok := labelIndex[t.Target.Referent]; ok {
				succ[i] = append(succ[i], idx)
			}
		case *il.CompareJump:
			if next < n {
				succ[i] = append(succ[i], next)
			}
			if idx, ok := labelIndex[t.Target.Referent]; ok {
				succ[i] = append(succ[i], idx)
			}
		case *il.Call:
			if neverReturns(t.Callee) {
				break
			}
			if next < n {
				succ[i] = append(succ[i], next)
			}
		default:
			if next < n {
				succ[i] = append(succ[i], next)
			}
		}
	}
	return succ
}

func neverReturns(callee il.Expr) bool {
	ext, ok := callee.(*il.ExternalFunctionRef)
	return ok && ext.Referent != nil && ext.Referent.NeverReturns
}

// GenSet computes the variables read by one instruction. The function
// supplies the scope used to resolve the register sets of return and
// call conventions.
func GenSet(f *il.Function, inst il.Instruction) il.NodeSet {
	switch t := inst.(type) {
	case *il.Return:
		return f.Scope.RegisterSet(il.ReturnLive...)
	case *il.Assign:
		gen := t.Src.VarsOnRead().Union(t.Dest.VarsOnWrite(true))
		if t.Op != il.OpPure {
			gen.AddAll(t.Dest.VarsOnRead())
		}
		return gen
	case *il.CompareAssign:
		return t.Lhs.VarsOnRead().Union(t.Rhs.VarsOnRead())
	case *il.CompareJump:
		return t.Lhs.VarsOnRead().Union(t.Rhs.VarsOnRead())
	case *il.Call:
		gen := t.Callee.VarsOnRead()
		nargs := t.NumArgs
		if nargs > int64(len(il.ArgumentRegisters)) {
			nargs = int64(len(il.ArgumentRegisters))
		}
		if nargs > 0 {
			gen.AddAll(f.Scope.RegisterSet(il.ArgumentRegisters[:nargs]...))
		}
		return gen
	case *il.Lea:
		gen := t.Base.VarsOnRead().Union(t.Offset.VarsOnRead())
		gen.AddAll(t.Dest.VarsOnWrite(true))
		return gen
	}
	return il.NewNodeSet()
}

// KillSet computes the variables strictly written by one instruction;
// addressing reads never appear here. The function supplies the scope
// used to resolve the caller-saved registers of call conventions.
func KillSet(f *il.Function, inst il.Instruction) il.NodeSet {
	switch t := inst.(type) {
	case *il.Assign:
		return t.Dest.VarsOnWrite(false)
	case *il.CompareAssign:
		return t.Dest.VarsOnWrite(false)
	case *il.Lea:
		return t.Dest.VarsOnWrite(false)
	case *il.Call:
		return f.Scope.RegisterSet(il.CallerSaved...)
	}
	return il.NewNodeSet()
}

// Dump writes the IN and OUT sets in the standard parenthesized form:
// one line per instruction in program order, tokens sorted by name.
func (info *Info) Dump(w io.Writer) {
	fmt.Fprintln(w, "(")
	fmt.Fprintln(w, "(in")
	for _, set := range info.In {
		fmt.Fprintf(w, "(%s)\n", strings.Join(set.SortedNames(), " "))
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "(out")
	for _, set := range info.Out {
		fmt.Fprintf(w, "(%s)\n", strings.Join(set.SortedNames(), " "))
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, ")")
}
