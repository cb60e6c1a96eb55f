package codegen

import (
	"strings"
	"testing"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/lexer"
	"github.com/il-lang/ilc/pkg/parser"
	"github.com/il-lang/ilc/pkg/regalloc"
)

func parseProgram(t *testing.T, input string) *il.Program {
	t.Helper()
	p := parser.New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return prog
}

func emitProgram(t *testing.T, input string) (string, map[*il.Function]*regalloc.Allocation) {
	t.Helper()
	prog := parseProgram(t, input)
	allocs := make(map[*il.Function]*regalloc.Allocation)
	for _, fn := range prog.Functions {
		a, err := regalloc.AllocateAndSpill(fn)
		if err != nil {
			t.Fatalf("allocation of @%s: %v", fn.Name, err)
		}
		allocs[fn] = a
	}
	var sb strings.Builder
	if err := NewEmitter(&sb, allocs).EmitProgram(prog); err != nil {
		t.Fatalf("EmitProgram: %v", err)
	}
	return sb.String(), allocs
}

func assigned(t *testing.T, allocs map[*il.Function]*regalloc.Allocation, fn *il.Function, name string) string {
	t.Helper()
	v, ok := fn.Scope.Variables.Lookup(name)
	if !ok {
		t.Fatalf("variable %%%s missing", name)
	}
	reg := allocs[fn].Assignment[v]
	if reg == nil {
		t.Fatalf("variable %%%s not assigned", name)
	}
	return reg.Name
}

func wantLines(t *testing.T, asm string, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if !strings.Contains(asm, line) {
			t.Errorf("missing %q in:\n%s", line, asm)
		}
	}
}

func TestEmitIdentity(t *testing.T) {
	prog := `(@id
  (@id 1
    %x <- rdi
    rax <- %x
    return
  )
)`
	asm, allocs := emitProgram(t, prog)
	fn := parseProgramFns(t, allocs)["id"]
	reg := assigned(t, allocs, fn, "x")
	wantLines(t, asm,
		"\t.text\n",
		"\t.globl _id\n",
		"_id:\n",
		"\tmovq %rdi, %"+reg+"\n",
		"\tmovq %"+reg+", %rax\n",
		"\tretq\n",
	)
}

func parseProgramFns(t *testing.T, allocs map[*il.Function]*regalloc.Allocation) map[string]*il.Function {
	t.Helper()
	fns := make(map[string]*il.Function)
	for fn := range allocs {
		fns[fn.Name] = fn
	}
	return fns
}

func TestEmitLabelMangling(t *testing.T) {
	asm, _ := emitProgram(t, `(@main
  (@main 0
    :loop
    goto :loop
  )
)`)
	wantLines(t, asm, "_loop:\n", "\tjmp _loop\n")
}

func TestEmitCompareJump(t *testing.T) {
	asm, allocs := emitProgram(t, `(@main
  (@main 0
    %i <- 0
    :top
    %i += 1
    cjump %i < 10 :top
    return
  )
)`)
	fn := parseProgramFns(t, allocs)["main"]
	reg := assigned(t, allocs, fn, "i")
	wantLines(t, asm,
		"\taddq $1, %"+reg+"\n",
		"\tcmpq $10, %"+reg+"\n",
		"\tjl _top\n",
	)
}

func TestEmitCompareJumpLiteralLhs(t *testing.T) {
	asm, allocs := emitProgram(t, `(@main
  (@main 0
    %i <- 5
    cjump 3 < %i :done
    :done
    return
  )
)`)
	fn := parseProgramFns(t, allocs)["main"]
	reg := assigned(t, allocs, fn, "i")
	wantLines(t, asm,
		"\tcmpq $3, %"+reg+"\n",
		"\tjg _done\n",
	)
}

func TestEmitCompareAssign(t *testing.T) {
	asm, _ := emitProgram(t, `(@main
  (@main 0
    rax <- rdi < 10
    return
  )
)`)
	wantLines(t, asm,
		"\tcmpq $10, %rdi\n",
		"\tsetl %al\n",
		"\tmovzbq %al, %rax\n",
	)
}

func TestEmitShift(t *testing.T) {
	asm, allocs := emitProgram(t, `(@main
  (@main 0
    %c <- 1
    %n <- 3
    %c <<= %n
    rax <- %c
    return
  )
)`)
	fn := parseProgramFns(t, allocs)["main"]
	creg := assigned(t, allocs, fn, "c")
	if nreg := assigned(t, allocs, fn, "n"); nreg != "rcx" {
		t.Fatalf("shift count in %s, want rcx", nreg)
	}
	wantLines(t, asm, "\tsalq %cl, %"+creg+"\n")
}

func TestEmitShiftByLiteral(t *testing.T) {
	asm, _ := emitProgram(t, `(@main
  (@main 0
    rax <- 1
    rax >>= 2
    return
  )
)`)
	wantLines(t, asm, "\tsarq $2, %rax\n")
}

func TestEmitCalls(t *testing.T) {
	asm, _ := emitProgram(t, `(@main
  (@main 0
    rdi <- 7
    call print 1
    call @helper 0
    return
  )
  (@helper 0
    call tuple-error 0
  )
)`)
	wantLines(t, asm,
		"\tcallq _print\n",
		"\tcallq _helper\n",
		"\tcallq _tuple_error\n",
	)
}

func TestEmitMemoryOperands(t *testing.T) {
	asm, _ := emitProgram(t, `(@main
  (@main 0
    mem rsp 16 <- 9
    rax <- mem rsp 16
    return
  )
)`)
	wantLines(t, asm,
		"\tmovq $9, 16(%rsp)\n",
		"\tmovq 16(%rsp), %rax\n",
	)
}

func TestEmitFrameAdjustment(t *testing.T) {
	p := parser.New(lexer.New(`(@f 0
  return
)`))
	_, fn := p.ParseFunctionFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	alloc := &regalloc.Allocation{
		Assignment: map[*il.Variable]*il.Register{},
		SpillSlots: 2,
	}
	var sb strings.Builder
	e := NewEmitter(&sb, map[*il.Function]*regalloc.Allocation{fn: alloc})
	if err := e.EmitFunction(fn); err != nil {
		t.Fatalf("EmitFunction: %v", err)
	}
	want := "_f:\n\tsubq $16, %rsp\n\taddq $16, %rsp\n\tretq\n"
	if sb.String() != want {
		t.Errorf("frame adjustment mismatch:\ngot:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestEmitLea(t *testing.T) {
	asm, allocs := emitProgram(t, `(@main
  (@main 0
    %a <- 8
    %o <- 2
    %d @ %a %o 4
    rax <- %d
    return
  )
)`)
	fn := parseProgramFns(t, allocs)["main"]
	a, o, d := assigned(t, allocs, fn, "a"), assigned(t, allocs, fn, "o"), assigned(t, allocs, fn, "d")
	wantLines(t, asm, "\tleaq (%"+a+", %"+o+", 4), %"+d+"\n")
}

func TestEmitStackArg(t *testing.T) {
	p := parser.New(lexer.New(`(@f 0
  rax <- stack-arg 1
  return
)`))
	_, fn := p.ParseFunctionFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	alloc := &regalloc.Allocation{
		Assignment: map[*il.Variable]*il.Register{},
		SpillSlots: 1,
	}
	var sb strings.Builder
	e := NewEmitter(&sb, map[*il.Function]*regalloc.Allocation{fn: alloc})
	if err := e.EmitFunction(fn); err != nil {
		t.Fatalf("EmitFunction: %v", err)
	}
	wantLines(t, sb.String(), "\tmovq 16(%rsp), %rax\n")
}
