package il

import (
	"fmt"
	"io"
	"strings"
)

// Printer writes programs back out as IL concrete syntax. The output
// reparses to an equivalent program.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints the whole program.
func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprintf(p.w, "(@%s\n", prog.Entry.Name)
	for _, fn := range prog.Functions {
		p.PrintFunction(fn)
	}
	fmt.Fprintln(p.w, ")")
}

// PrintFunction prints one function.
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "  (@%s %d\n", fn.Name, fn.NumArgs)
	for _, inst := range fn.Instructions {
		fmt.Fprintf(p.w, "    %s\n", InstructionString(inst))
	}
	fmt.Fprintln(p.w, "  )")
}

// InstructionString renders one instruction as IL text.
func InstructionString(inst Instruction) string {
	switch i := inst.(type) {
	case *Return:
		return "return"
	case *Assign:
		return fmt.Sprintf("%s %s %s", ExprString(i.Dest), i.Op, ExprString(i.Src))
	case *CompareAssign:
		return fmt.Sprintf("%s <- %s %s %s",
			ExprString(i.Dest), ExprString(i.Lhs), i.Op, ExprString(i.Rhs))
	case *CompareJump:
		return fmt.Sprintf("cjump %s %s %s :%s",
			ExprString(i.Lhs), i.Op, ExprString(i.Rhs), i.Target.Name)
	case *Label:
		return ":" + i.Name
	case *Goto:
		return "goto :" + i.Target.Name
	case *Call:
		return fmt.Sprintf("call %s %d", ExprString(i.Callee), i.NumArgs)
	case *Lea:
		return fmt.Sprintf("%s @ %s %s %d",
			ExprString(i.Dest), ExprString(i.Base), ExprString(i.Offset), i.Scale)
	}
	return "?"
}

// ExprString renders one operand as IL text.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case *RegisterRef:
		return x.Name
	case *VariableRef:
		return "%" + x.Referent.Name
	case *NumberLiteral:
		return fmt.Sprintf("%d", x.Value)
	case *LabelRef:
		return ":" + x.Name
	case *FunctionRef:
		return "@" + x.Name
	case *ExternalFunctionRef:
		return x.Name
	case *StackArg:
		return fmt.Sprintf("stack-arg %d", x.Slot.Value)
	case *MemoryLocation:
		return fmt.Sprintf("mem %s %d", ExprString(x.Base), x.Offset.Value)
	}
	return "?"
}

// FunctionString renders a whole function, as printed by PrintFunction.
func FunctionString(fn *Function) string {
	var sb strings.Builder
	NewPrinter(&sb).PrintFunction(fn)
	return sb.String()
}
