// Package codegen lowers a fully register-allocated program to x86-64
// assembly in AT&T syntax. Every variable must already be mapped to a
// physical register; spilled values reach memory through the rsp-based
// slots the allocator introduced.
package codegen

import (
	"fmt"
	"io"
	"strings"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/regalloc"
)

// Emitter writes assembly text for one program.
type Emitter struct {
	w      io.Writer
	allocs map[*il.Function]*regalloc.Allocation

	// per-function state
	fn    *il.Function
	alloc *regalloc.Allocation
}

// NewEmitter creates an emitter writing to w. allocs maps each function
// of the program to its allocation result.
func NewEmitter(w io.Writer, allocs map[*il.Function]*regalloc.Allocation) *Emitter {
	return &Emitter{w: w, allocs: allocs}
}

// EmitProgram writes the whole program: a text section, a global entry
// symbol and one block per function.
func (e *Emitter) EmitProgram(prog *il.Program) error {
	fmt.Fprintln(e.w, "\t.text")
	fmt.Fprintf(e.w, "\t.globl %s\n", globalName(prog.Entry.Name))
	for _, fn := range prog.Functions {
		if err := e.EmitFunction(fn); err != nil {
			return fmt.Errorf("function @%s: %w", fn.Name, err)
		}
	}
	return nil
}

// EmitFunction writes one function: label, prologue reserving the spill
// slots, the lowered body, and an epilogue folded into each return.
func (e *Emitter) EmitFunction(fn *il.Function) error {
	alloc, ok := e.allocs[fn]
	if !ok {
		return fmt.Errorf("no allocation")
	}
	e.fn, e.alloc = fn, alloc
	fmt.Fprintf(e.w, "%s:\n", globalName(fn.Name))
	if n := e.frameBytes(); n > 0 {
		fmt.Fprintf(e.w, "\tsubq $%d, %%rsp\n", n)
	}
	for _, inst := range fn.Instructions {
		if err := e.emitInstruction(inst); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) frameBytes() int64 {
	return 8 * e.alloc.SpillSlots
}

func (e *Emitter) emitInstruction(inst il.Instruction) error {
	switch t := inst.(type) {
	case *il.Return:
		if n := e.frameBytes(); n > 0 {
			fmt.Fprintf(e.w, "\taddq $%d, %%rsp\n", n)
		}
		fmt.Fprintln(e.w, "\tretq")
		return nil
	case *il.Assign:
		return e.emitAssign(t)
	case *il.CompareAssign:
		return e.emitCompareAssign(t)
	case *il.CompareJump:
		return e.emitCompareJump(t)
	case *il.Label:
		fmt.Fprintf(e.w, "%s:\n", labelName(t.Name))
		return nil
	case *il.Goto:
		fmt.Fprintf(e.w, "\tjmp %s\n", labelName(t.Target.Name))
		return nil
	case *il.Call:
		return e.emitCall(t)
	case *il.Lea:
		return e.emitLea(t)
	}
	return fmt.Errorf("unknown instruction %T", inst)
}

var assignMnemonics = map[il.AssignOp]string{
	il.OpPure: "movq",
	il.OpAdd:  "addq",
	il.OpSub:  "subq",
	il.OpMul:  "imulq",
	il.OpAnd:  "andq",
}

func (e *Emitter) emitAssign(a *il.Assign) error {
	if a.Op == il.OpShl || a.Op == il.OpShr {
		return e.emitShift(a)
	}
	mnem, ok := assignMnemonics[a.Op]
	if !ok {
		return fmt.Errorf("unknown assign operator %v", a.Op)
	}
	src, err := e.operand(a.Src)
	if err != nil {
		return err
	}
	dest, err := e.operand(a.Dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.w, "\t%s %s, %s\n", mnem, src, dest)
	return nil
}

// emitShift lowers <<= and >>=. A register shift count must already sit
// in rcx; the allocator guarantees that for variables.
func (e *Emitter) emitShift(a *il.Assign) error {
	mnem := "salq"
	if a.Op == il.OpShr {
		mnem = "sarq"
	}
	dest, err := e.operand(a.Dest)
	if err != nil {
		return err
	}
	if lit, ok := a.Src.(*il.NumberLiteral); ok {
		fmt.Fprintf(e.w, "\t%s $%d, %s\n", mnem, lit.Value, dest)
		return nil
	}
	reg, err := e.register(a.Src)
	if err != nil {
		return err
	}
	if reg.Name != "rcx" {
		return fmt.Errorf("shift count in %s, want rcx", reg.Name)
	}
	fmt.Fprintf(e.w, "\t%s %%cl, %s\n", mnem, dest)
	return nil
}

func (e *Emitter) emitCompareAssign(c *il.CompareAssign) error {
	dest, err := e.register(c.Dest)
	if err != nil {
		return err
	}
	if lv, lok := literal(c.Lhs); lok {
		if rv, rok := literal(c.Rhs); rok {
			val := int64(0)
			if compare(lv, c.Op, rv) {
				val = 1
			}
			fmt.Fprintf(e.w, "\tmovq $%d, %%%s\n", val, dest.Name)
			return nil
		}
	}
	op := c.Op
	lhs, rhs := c.Lhs, c.Rhs
	flipped := false
	if _, ok := literal(lhs); ok {
		lhs, rhs = rhs, lhs
		flipped = true
	}
	lhsOp, err := e.operand(lhs)
	if err != nil {
		return err
	}
	rhsOp, err := e.operand(rhs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.w, "\tcmpq %s, %s\n", rhsOp, lhsOp)
	fmt.Fprintf(e.w, "\tset%s %%%s\n", conditionCode(op, flipped), low8[dest.Name])
	fmt.Fprintf(e.w, "\tmovzbq %%%s, %%%s\n", low8[dest.Name], dest.Name)
	return nil
}

func (e *Emitter) emitCompareJump(c *il.CompareJump) error {
	target := labelName(c.Target.Name)
	if lv, lok := literal(c.Lhs); lok {
		if rv, rok := literal(c.Rhs); rok {
			if compare(lv, c.Op, rv) {
				fmt.Fprintf(e.w, "\tjmp %s\n", target)
			}
			return nil
		}
	}
	op := c.Op
	lhs, rhs := c.Lhs, c.Rhs
	flipped := false
	if _, ok := literal(lhs); ok {
		lhs, rhs = rhs, lhs
		flipped = true
	}
	lhsOp, err := e.operand(lhs)
	if err != nil {
		return err
	}
	rhsOp, err := e.operand(rhs)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.w, "\tcmpq %s, %s\n", rhsOp, lhsOp)
	fmt.Fprintf(e.w, "\tj%s %s\n", conditionCode(op, flipped), target)
	return nil
}

func (e *Emitter) emitCall(c *il.Call) error {
	switch callee := c.Callee.(type) {
	case *il.FunctionRef:
		fmt.Fprintf(e.w, "\tcallq %s\n", globalName(callee.Name))
	case *il.ExternalFunctionRef:
		fmt.Fprintf(e.w, "\tcallq %s\n", globalName(callee.Name))
	default:
		reg, err := e.register(c.Callee)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.w, "\tcallq *%%%s\n", reg.Name)
	}
	return nil
}

func (e *Emitter) emitLea(l *il.Lea) error {
	dest, err := e.register(l.Dest)
	if err != nil {
		return err
	}
	base, err := e.register(l.Base)
	if err != nil {
		return err
	}
	offset, err := e.register(l.Offset)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.w, "\tleaq (%%%s, %%%s, %d), %%%s\n",
		base.Name, offset.Name, l.Scale, dest.Name)
	return nil
}

// operand renders an expression as an assembly operand, resolving
// variables through the allocation map.
func (e *Emitter) operand(expr il.Expr) (string, error) {
	switch t := expr.(type) {
	case *il.RegisterRef:
		return "%" + t.Name, nil
	case *il.VariableRef:
		reg, err := e.assigned(t.Referent)
		if err != nil {
			return "", err
		}
		return "%" + reg.Name, nil
	case *il.NumberLiteral:
		return fmt.Sprintf("$%d", t.Value), nil
	case *il.FunctionRef:
		return "$" + globalName(t.Name), nil
	case *il.StackArg:
		return fmt.Sprintf("%d(%%rsp)", e.frameBytes()+8*t.Slot.Value), nil
	case *il.MemoryLocation:
		base, err := e.register(t.Base)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d(%%%s)", t.Offset.Value, base.Name), nil
	}
	return "", fmt.Errorf("unsupported operand %T", expr)
}

// register resolves an expression that must denote a physical register.
func (e *Emitter) register(expr il.Expr) (*il.Register, error) {
	switch t := expr.(type) {
	case *il.RegisterRef:
		if t.Referent == nil {
			return nil, fmt.Errorf("unbound register %s", t.Name)
		}
		return t.Referent, nil
	case *il.VariableRef:
		return e.assigned(t.Referent)
	}
	return nil, fmt.Errorf("operand %T is not a register", expr)
}

func (e *Emitter) assigned(v *il.Variable) (*il.Register, error) {
	reg, ok := e.alloc.Assignment[v]
	if !ok {
		return nil, fmt.Errorf("variable %%%s has no register", v.Name)
	}
	return reg, nil
}

func literal(expr il.Expr) (int64, bool) {
	if lit, ok := expr.(*il.NumberLiteral); ok {
		return lit.Value, true
	}
	return 0, false
}

func compare(lhs int64, op il.CmpOp, rhs int64) bool {
	switch op {
	case il.CmpLt:
		return lhs < rhs
	case il.CmpLe:
		return lhs <= rhs
	}
	return lhs == rhs
}

// conditionCode maps a comparison to its jcc/setcc suffix. flipped means
// the operands were swapped to move a literal into the right slot, so
// the sense of the ordering reverses.
func conditionCode(op il.CmpOp, flipped bool) string {
	switch op {
	case il.CmpLt:
		if flipped {
			return "g"
		}
		return "l"
	case il.CmpLe:
		if flipped {
			return "ge"
		}
		return "le"
	}
	return "e"
}

// low8 names the byte-wide alias of each allocatable register, used by
// setcc.
var low8 = map[string]string{
	"rax": "al", "rbx": "bl", "rcx": "cl", "rdx": "dl",
	"rdi": "dil", "rsi": "sil", "rbp": "bpl",
	"r8": "r8b", "r9": "r9b", "r10": "r10b", "r11": "r11b",
	"r12": "r12b", "r13": "r13b", "r14": "r14b", "r15": "r15b",
}

// globalName mangles a function or external name into a symbol: a
// leading underscore plus dashes rewritten to underscores.
func globalName(name string) string {
	return "_" + strings.ReplaceAll(name, "-", "_")
}

// labelName mangles :L into _L.
func labelName(name string) string {
	return "_" + strings.ReplaceAll(name, "-", "_")
}
