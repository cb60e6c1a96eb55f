package main

import (
	"fmt"
	"io"
	"os"

	"github.com/il-lang/ilc/pkg/codegen"
	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/interference"
	"github.com/il-lang/ilc/pkg/lexer"
	"github.com/il-lang/ilc/pkg/liveness"
	"github.com/il-lang/ilc/pkg/parser"
	"github.com/il-lang/ilc/pkg/regalloc"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Mode and pipeline flags
var (
	verbose       bool
	optLevel      int
	genCode       int
	dumpLiveness  bool
	dumpInterfere bool
	spillMode     bool
	parseTreePath string
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ilc [file]",
		Short: "ilc is a register-allocating backend for the IL language",
		Long: `ilc compiles IL programs by assigning a physical x86-64
register to every variable, spilling to the stack when the
interference graph is not colorable. Analysis modes dump the
intermediate results of single-function inputs.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFlagValues(errOut); err != nil {
				return err
			}
			if len(args) == 0 {
				cmd.Help()
				return nil
			}
			filename := args[0]

			if dumpLiveness {
				return doLiveness(filename, out, errOut)
			}
			if dumpInterfere {
				return doInterference(filename, out, errOut)
			}
			if spillMode {
				return doSpill(filename, out, errOut)
			}
			if parseTreePath != "" {
				return doParseTree(filename, parseTreePath, out, errOut)
			}
			return doCompile(filename, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Trace compilation phases")
	rootCmd.Flags().IntVarP(&optLevel, "optimize", "O", 0, "Optimization level (0-2)")
	rootCmd.Flags().IntVarP(&genCode, "generate", "g", 1, "Generate assembly output (0 or 1)")
	rootCmd.Flags().BoolVarP(&dumpLiveness, "liveness", "l", false, "Dump liveness of a single-function file")
	rootCmd.Flags().BoolVarP(&dumpInterfere, "interference", "i", false, "Dump the interference graph of a single-function file")
	rootCmd.Flags().BoolVarP(&spillMode, "spill", "s", false, "Run the spiller on a spill test file")
	rootCmd.Flags().StringVarP(&parseTreePath, "parse-tree", "p", "", "Write the parse tree to the given path")

	return rootCmd
}

func checkFlagValues(errOut io.Writer) error {
	if optLevel < 0 || optLevel > 2 {
		fmt.Fprintf(errOut, "ilc: invalid optimization level %d\n", optLevel)
		return fmt.Errorf("invalid optimization level %d", optLevel)
	}
	if genCode != 0 && genCode != 1 {
		fmt.Fprintf(errOut, "ilc: invalid -g value %d\n", genCode)
		return fmt.Errorf("invalid -g value %d", genCode)
	}
	return nil
}

func tracef(errOut io.Writer, format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(errOut, "ilc: "+format+"\n", args...)
	}
}

func readSource(filename string, errOut io.Writer) (string, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ilc: error reading %s: %v\n", filename, err)
		return "", err
	}
	return string(content), nil
}

func reportErrors(p *parser.Parser, filename string, errOut io.Writer) error {
	if len(p.Errors()) == 0 {
		return nil
	}
	for _, e := range p.Errors() {
		fmt.Fprintf(errOut, "%s: %s\n", filename, e)
	}
	return fmt.Errorf("parsing failed with %d errors", len(p.Errors()))
}

// parseProgramFile parses a whole program and resolves every name.
func parseProgramFile(filename string, errOut io.Writer) (*il.Program, error) {
	content, err := readSource(filename, errOut)
	if err != nil {
		return nil, err
	}
	p := parser.New(lexer.New(content))
	prog := p.ParseProgram()
	if err := reportErrors(p, filename, errOut); err != nil {
		return nil, err
	}
	return prog, nil
}

// parseFunctionFile parses a file holding one bare function.
func parseFunctionFile(filename string, errOut io.Writer) (*il.Function, error) {
	content, err := readSource(filename, errOut)
	if err != nil {
		return nil, err
	}
	p := parser.New(lexer.New(content))
	_, fn := p.ParseFunctionFile()
	if err := reportErrors(p, filename, errOut); err != nil {
		return nil, err
	}
	return fn, nil
}

// doLiveness dumps the per-instruction IN and OUT sets of a
// single-function file.
func doLiveness(filename string, out, errOut io.Writer) error {
	fn, err := parseFunctionFile(filename, errOut)
	if err != nil {
		return err
	}
	tracef(errOut, "computing liveness for @%s", fn.Name)
	info := liveness.Analyze(fn)
	info.Dump(out)
	return nil
}

// doInterference dumps the interference graph of a single-function
// file, one node plus its sorted neighbors per line.
func doInterference(filename string, out, errOut io.Writer) error {
	fn, err := parseFunctionFile(filename, errOut)
	if err != nil {
		return err
	}
	tracef(errOut, "building interference graph for @%s", fn.Name)
	g, err := interference.Build(fn, liveness.Analyze(fn))
	if err != nil {
		fmt.Fprintf(errOut, "ilc: %s: %v\n", filename, err)
		return err
	}
	g.Dump(out)
	return nil
}

// doSpill runs one spill on a spill test file (function, target
// variable, prefix) and prints the rewritten function.
func doSpill(filename string, out, errOut io.Writer) error {
	content, err := readSource(filename, errOut)
	if err != nil {
		return err
	}
	p := parser.New(lexer.New(content))
	fn, target, prefix := p.ParseSpillFile()
	if err := reportErrors(p, filename, errOut); err != nil {
		return err
	}
	tracef(errOut, "spilling %%%s in @%s", target.Name, fn.Name)
	regalloc.Spill(fn, target, prefix, 0)
	il.NewPrinter(out).PrintFunction(fn)
	return nil
}

// doParseTree parses the program and writes it back out to path.
func doParseTree(filename, path string, out, errOut io.Writer) error {
	prog, err := parseProgramFile(filename, errOut)
	if err != nil {
		return err
	}
	outFile, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(errOut, "ilc: error creating %s: %v\n", path, err)
		return err
	}
	defer outFile.Close()
	il.NewPrinter(outFile).PrintProgram(prog)
	il.NewPrinter(out).PrintProgram(prog)
	return nil
}

// doCompile allocates every function of the program, prints the
// allocated form and, with -g 1, emits x86-64 text to prog.S.
func doCompile(filename string, out, errOut io.Writer) error {
	prog, err := parseProgramFile(filename, errOut)
	if err != nil {
		return err
	}
	allocs := make(map[*il.Function]*regalloc.Allocation)
	for _, fn := range prog.Functions {
		tracef(errOut, "allocating @%s", fn.Name)
		a, err := regalloc.AllocateWithBackup(fn)
		if err != nil {
			fmt.Fprintf(errOut, "ilc: %s: @%s: %v\n", filename, fn.Name, err)
			return err
		}
		replaceAllocated(fn, a)
		allocs[fn] = a
	}
	il.NewPrinter(out).PrintProgram(prog)
	if genCode == 0 {
		return nil
	}

	outFile, err := os.Create(assemblyOutputFilename)
	if err != nil {
		fmt.Fprintf(errOut, "ilc: error creating %s: %v\n", assemblyOutputFilename, err)
		return err
	}
	defer outFile.Close()
	tracef(errOut, "emitting %s", assemblyOutputFilename)
	if err := codegen.NewEmitter(outFile, allocs).EmitProgram(prog); err != nil {
		fmt.Fprintf(errOut, "ilc: %s: %v\n", filename, err)
		return err
	}
	return nil
}

// assemblyOutputFilename is the fixed assembly file written by the
// default mode.
const assemblyOutputFilename = "prog.S"

// replaceAllocated rewrites every variable reference of fn into a
// reference to its assigned register.
func replaceAllocated(fn *il.Function, a *regalloc.Allocation) {
	for _, inst := range fn.Instructions {
		switch t := inst.(type) {
		case *il.Assign:
			t.Dest = substitute(t.Dest, a)
			t.Src = substitute(t.Src, a)
		case *il.CompareAssign:
			t.Dest = substitute(t.Dest, a)
			t.Lhs = substitute(t.Lhs, a)
			t.Rhs = substitute(t.Rhs, a)
		case *il.CompareJump:
			t.Lhs = substitute(t.Lhs, a)
			t.Rhs = substitute(t.Rhs, a)
		case *il.Call:
			t.Callee = substitute(t.Callee, a)
		case *il.Lea:
			t.Dest = substitute(t.Dest, a)
			t.Base = substitute(t.Base, a)
			t.Offset = substitute(t.Offset, a)
		}
	}
}

func substitute(e il.Expr, a *regalloc.Allocation) il.Expr {
	switch t := e.(type) {
	case *il.VariableRef:
		if reg, ok := a.Assignment[t.Referent]; ok {
			return &il.RegisterRef{Name: reg.Name, Referent: reg}
		}
	case *il.MemoryLocation:
		t.Base = substitute(t.Base, a)
	}
	return e
}
