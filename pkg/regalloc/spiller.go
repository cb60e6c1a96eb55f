package regalloc

import (
	"fmt"
	"strings"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/liveness"
)

// Spill rewrites f so that v lives in the stack slot at rsp + 8*slot.
// Each instruction touching v gets a fresh non-spillable variable named
// prefix0, prefix1, ... with a load inserted before it when v is read
// and a store after it when v is written. Non-spillable variables are
// left alone.
func Spill(f *il.Function, v *il.Variable, prefix string, slot int64) {
	if !v.Spillable {
		return
	}
	spillInto(f, v, prefix, slot, 0)
}

// SpillAll spills every spillable variable into its own consecutive
// stack slot, numbering fresh variables across all of them.
func SpillAll(f *il.Function, prefix string) int64 {
	return spillAllFrom(f, prefix, 0)
}

func spillAllFrom(f *il.Function, prefix string, firstSlot int64) int64 {
	slot := firstSlot
	count := 0
	for _, v := range f.Scope.Variables.AllItems() {
		if !v.Spillable {
			continue
		}
		count = spillInto(f, v, prefix, slot, count)
		slot++
	}
	return slot
}

// spillInto performs one spill, numbering fresh variables from count
// and returning the next unused number.
func spillInto(f *il.Function, v *il.Variable, prefix string, slot int64, count int) int {
	rsp, ok := f.Scope.Registers.Lookup("rsp")
	if !ok {
		return count
	}
	offset := 8 * slot

	for i := 0; i < len(f.Instructions); i++ {
		inst := f.Instructions[i]
		reads := liveness.GenSet(f, inst).Contains(v)
		writes := liveness.KillSet(f, inst).Contains(v)
		if !reads && !writes {
			continue
		}

		fresh := f.GetOrCreateVariable(fmt.Sprintf("%s%d", prefix, count))
		fresh.Spillable = false
		count++
		replaceVariable(inst, v, fresh)

		if reads {
			f.Insert(i, &il.Assign{
				Dest: &il.VariableRef{Referent: fresh},
				Op:   il.OpPure,
				Src:  slotLocation(rsp, offset),
			})
			i++
		}
		if writes {
			f.Insert(i+1, &il.Assign{
				Dest: slotLocation(rsp, offset),
				Op:   il.OpPure,
				Src:  &il.VariableRef{Referent: fresh},
			})
			i++
		}
	}
	return count
}

func slotLocation(rsp *il.Register, offset int64) *il.MemoryLocation {
	return &il.MemoryLocation{
		Base:   &il.RegisterRef{Name: rsp.Name, Referent: rsp},
		Offset: &il.NumberLiteral{Value: offset},
	}
}

// replaceVariable rebinds every mention of from inside one instruction.
func replaceVariable(inst il.Instruction, from, to *il.Variable) {
	switch t := inst.(type) {
	case *il.Assign:
		replaceInExpr(t.Dest, from, to)
		replaceInExpr(t.Src, from, to)
	case *il.CompareAssign:
		replaceInExpr(t.Dest, from, to)
		replaceInExpr(t.Lhs, from, to)
		replaceInExpr(t.Rhs, from, to)
	case *il.CompareJump:
		replaceInExpr(t.Lhs, from, to)
		replaceInExpr(t.Rhs, from, to)
	case *il.Call:
		replaceInExpr(t.Callee, from, to)
	case *il.Lea:
		replaceInExpr(t.Dest, from, to)
		replaceInExpr(t.Base, from, to)
		replaceInExpr(t.Offset, from, to)
	}
}

func replaceInExpr(e il.Expr, from, to *il.Variable) {
	switch t := e.(type) {
	case *il.VariableRef:
		if t.Referent == from {
			t.Referent = to
		}
	case *il.MemoryLocation:
		replaceInExpr(t.Base, from, to)
	}
}

// FreshPrefix returns the shortest p<i> no existing variable name of f
// starts with, so spill temporaries never collide with live names.
func FreshPrefix(f *il.Function, p string) string {
	for i := 0; ; i++ {
		prefix := fmt.Sprintf("%s%d", p, i)
		if !prefixInUse(f, prefix) {
			return prefix
		}
	}
}

func prefixInUse(f *il.Function, prefix string) bool {
	for _, v := range f.Scope.Variables.AllItems() {
		if strings.HasPrefix(v.Name, prefix) {
			return true
		}
	}
	return false
}
