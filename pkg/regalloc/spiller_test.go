package regalloc

import (
	"os"
	"testing"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/lexer"
	"github.com/il-lang/ilc/pkg/parser"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from spill.yaml
type TestSpec struct {
	Name    string `yaml:"name"`
	Input   string `yaml:"input"`
	Spilled string `yaml:"spilled"`
}

// TestFile represents the spill.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func loadTestFile(t *testing.T) TestFile {
	t.Helper()
	data, err := os.ReadFile("../../testdata/spill.yaml")
	if err != nil {
		t.Fatalf("failed to read spill.yaml: %v", err)
	}
	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse spill.yaml: %v", err)
	}
	return testFile
}

func parseSpillInput(t *testing.T, input string) (*il.Function, *il.Variable, string) {
	t.Helper()
	p := parser.New(lexer.New(input))
	fn, target, prefix := p.ParseSpillFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return fn, target, prefix
}

func parseFunctionText(t *testing.T, input string) *il.Function {
	t.Helper()
	p := parser.New(lexer.New(input))
	_, fn := p.ParseFunctionFile()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return fn
}

func TestSpillYAML(t *testing.T) {
	testFile := loadTestFile(t)
	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			fn, target, prefix := parseSpillInput(t, tc.Input)
			Spill(fn, target, prefix, 0)
			want := il.FunctionString(parseFunctionText(t, tc.Spilled))
			if got := il.FunctionString(fn); got != want {
				t.Errorf("spilled function mismatch:\ngot:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

func TestSpillTemporariesNotSpillable(t *testing.T) {
	fn, target, prefix := parseSpillInput(t, `((@f 0
  %x <- 1
  rax <- %x
  return
)
%x %s)`)

	Spill(fn, target, prefix, 0)
	for _, name := range []string{"s0", "s1"} {
		v, ok := fn.Scope.Variables.Lookup(name)
		if !ok {
			t.Fatalf("temporary %s not created", name)
		}
		if v.Spillable {
			t.Errorf("temporary %s is spillable", name)
		}
	}
}

func TestSpillNonSpillableIsNoop(t *testing.T) {
	fn, target, prefix := parseSpillInput(t, `((@f 0
  %x <- 1
  rax <- %x
  return
)
%x %s)`)

	target.Spillable = false
	before := il.FunctionString(fn)
	Spill(fn, target, prefix, 0)
	if got := il.FunctionString(fn); got != before {
		t.Errorf("spill of non-spillable variable changed the function:\n%s", got)
	}
}

func TestSpillSlotOffsets(t *testing.T) {
	fn, target, prefix := parseSpillInput(t, `((@f 0
  %x <- 1
  rax <- %x
  return
)
%x %s)`)

	Spill(fn, target, prefix, 3)
	store, ok := fn.Instructions[1].(*il.Assign)
	if !ok {
		t.Fatalf("instruction 1 is %T", fn.Instructions[1])
	}
	loc, ok := store.Dest.(*il.MemoryLocation)
	if !ok {
		t.Fatalf("store destination is %T", store.Dest)
	}
	if loc.Offset.Value != 24 {
		t.Errorf("slot offset = %d, want 24", loc.Offset.Value)
	}
}

func TestSpillAllAssignsDistinctSlots(t *testing.T) {
	fn, _, prefix := parseSpillInput(t, `((@f 0
  %a <- 1
  %b <- 2
  rax <- %a
  rax += %b
  return
)
%a %s)`)

	slots := SpillAll(fn, prefix)
	if slots != 2 {
		t.Errorf("slots used = %d, want 2", slots)
	}
	want := il.FunctionString(parseFunctionText(t, `(@f 0
  %s0 <- 1
  mem rsp 0 <- %s0
  %s2 <- 2
  mem rsp 8 <- %s2
  %s1 <- mem rsp 0
  rax <- %s1
  %s3 <- mem rsp 8
  rax += %s3
  return
)`))
	if got := il.FunctionString(fn); got != want {
		t.Errorf("spill-all mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestFreshPrefix(t *testing.T) {
	fn := parseFunctionText(t, `(@f 0
  %x <- 1
  rax <- %x
  return
)`)
	if got := FreshPrefix(fn, "s"); got != "s0" {
		t.Errorf("prefix = %q, want s0", got)
	}

	fn.GetOrCreateVariable("s00")
	if got := FreshPrefix(fn, "s"); got != "s1" {
		t.Errorf("prefix after s00 = %q, want s1", got)
	}
}
