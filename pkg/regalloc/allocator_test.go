package regalloc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/lexer"
	"github.com/il-lang/ilc/pkg/parser"
)

func parseFirstFunction(t *testing.T, input string) *il.Function {
	t.Helper()
	p := parser.New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return prog.Functions[0]
}

func TestAllocateIdentity(t *testing.T) {
	fn := parseFirstFunction(t, `(@id
  (@id 1
    %x <- rdi
    rax <- %x
    return
  )
)`)

	a, err := AllocateAndSpill(fn)
	if err != nil {
		t.Fatalf("AllocateAndSpill: %v", err)
	}
	if a.SpillSlots != 0 {
		t.Errorf("spill slots = %d, want 0", a.SpillSlots)
	}
	x, _ := fn.Scope.Variables.Lookup("x")
	reg, ok := a.Assignment[x]
	if !ok {
		t.Fatalf("%%x not assigned")
	}
	if reg.Name == "rsp" {
		t.Errorf("%%x assigned rsp")
	}
	if reg.CalleeSaved {
		t.Errorf("%%x assigned callee-saved %s, a caller-saved register suffices", reg.Name)
	}
}

// sixteenLive builds a function holding 16 variables live across one
// point; only %a0 stays live long enough to be worth spilling.
func sixteenLive(t *testing.T) *il.Function {
	var sb strings.Builder
	sb.WriteString("(@main\n  (@main 0\n")
	sb.WriteString("    %a0 <- 0\n")
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&sb, "    %%v%02d <- %d\n", i, i)
	}
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&sb, "    mem rsp %d <- %%v%02d\n", 8*i, i)
	}
	sb.WriteString("    rax <- %a0\n")
	sb.WriteString("    call tuple-error 0\n")
	sb.WriteString("  )\n)\n")
	return parseFirstFunction(t, sb.String())
}

func TestAllocateForcedSpill(t *testing.T) {
	fn := sixteenLive(t)
	a, err := AllocateAndSpill(fn)
	if err != nil {
		t.Fatalf("AllocateAndSpill: %v", err)
	}
	if a.SpillSlots != 1 {
		t.Errorf("spill slots = %d, want 1", a.SpillSlots)
	}
	if _, ok := fn.Scope.Variables.Lookup("s00"); !ok {
		t.Error("expected spill temporaries named s0<i>")
	}

	seen := make(map[string]bool)
	for i := 1; i <= 15; i++ {
		v, ok := fn.Scope.Variables.Lookup(fmt.Sprintf("v%02d", i))
		if !ok {
			t.Fatalf("%%v%02d missing", i)
		}
		reg := a.Assignment[v]
		if reg == nil {
			t.Fatalf("%%v%02d not assigned", i)
		}
		if seen[reg.Name] {
			t.Errorf("register %s assigned twice", reg.Name)
		}
		seen[reg.Name] = true
	}
}

func TestAllocateShiftRestriction(t *testing.T) {
	fn := parseFirstFunction(t, `(@main
  (@main 0
    %c <- 1
    %n <- 3
    %c <<= %n
    rax <- %c
    return
  )
)`)

	a, err := AllocateAndSpill(fn)
	if err != nil {
		t.Fatalf("AllocateAndSpill: %v", err)
	}
	n, _ := fn.Scope.Variables.Lookup("n")
	if reg := a.Assignment[n]; reg == nil || reg.Name != "rcx" {
		t.Errorf("shift count assigned %v, want rcx", reg)
	}
}

func TestAllocateAfterSpillAll(t *testing.T) {
	fn := sixteenLive(t)
	slots := SpillAll(fn, FreshPrefix(fn, "s"))
	if slots != 16 {
		t.Errorf("slots = %d, want 16", slots)
	}
	a, err := AllocateAndSpill(fn)
	if err != nil {
		t.Fatalf("allocation after spill-all: %v", err)
	}
	if a.SpillSlots != 0 {
		t.Errorf("extra spills after spill-all: %d", a.SpillSlots)
	}
}

func TestAllocateWithBackup(t *testing.T) {
	fn := sixteenLive(t)
	a, err := AllocateWithBackup(fn)
	if err != nil {
		t.Fatalf("AllocateWithBackup: %v", err)
	}
	for v, reg := range a.Assignment {
		if reg.Name == "rsp" {
			t.Errorf("%%%s assigned rsp", v.Name)
		}
	}
}

func TestAllocationRespectsConflicts(t *testing.T) {
	fn := parseFirstFunction(t, `(@main
  (@main 0
    %a <- 1
    %b <- 2
    %c <- 3
    rax <- %a
    rax += %b
    rax += %c
    return
  )
)`)

	a, err := AllocateAndSpill(fn)
	if err != nil {
		t.Fatalf("AllocateAndSpill: %v", err)
	}
	names := []string{"a", "b", "c"}
	seen := make(map[string]string)
	for _, name := range names {
		v, _ := fn.Scope.Variables.Lookup(name)
		reg := a.Assignment[v]
		if reg == nil {
			t.Fatalf("%%%s not assigned", name)
		}
		if prev, ok := seen[reg.Name]; ok {
			t.Errorf("%%%s and %%%s share %s while simultaneously live", prev, name, reg.Name)
		}
		seen[reg.Name] = name
	}
}
