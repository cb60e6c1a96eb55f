// Package parser implements a recursive descent parser for IL
package parser

import (
	"fmt"
	"strconv"

	"github.com/il-lang/ilc/pkg/il"
	"github.com/il-lang/ilc/pkg/lexer"
)

// Parser parses IL source text into an il.Program
type Parser struct {
	l         *lexer.Lexer
	curToken  lexer.Token
	peekToken lexer.Token
	errors    []string

	prog *il.Program
	fn   *il.Function
}

// New creates a new Parser for the given lexer
func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// Errors returns the list of parsing errors
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(msg string) {
	p.errors = append(p.errors, fmt.Sprintf("line %d, col %d: %s",
		p.curToken.Line, p.curToken.Column, msg))
}

func (p *Parser) curTokenIs(t lexer.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t lexer.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expect(t lexer.TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("expected %s, got %s", t, p.curToken.Type))
	return false
}

// ParseProgram parses a whole program: ( @entry FUNCTION+ )
func (p *Parser) ParseProgram() *il.Program {
	if !p.expect(lexer.TokenLParen) {
		return nil
	}
	if !p.curTokenIs(lexer.TokenFunctionName) {
		p.addError(fmt.Sprintf("expected entry function name, got %s", p.curToken.Type))
		return nil
	}
	p.prog = il.NewProgram(p.curToken.Literal)
	p.nextToken()

	for p.curTokenIs(lexer.TokenLParen) {
		fn := p.parseFunction()
		if fn == nil {
			return nil
		}
		if err := p.prog.AddFunction(fn); err != nil {
			p.addError(err.Error())
		}
	}

	p.expect(lexer.TokenRParen)
	if !p.curTokenIs(lexer.TokenEOF) {
		p.addError(fmt.Sprintf("trailing input after program: %s", p.curToken.Type))
	}
	if err := p.prog.Finalize(); err != nil {
		p.addError(err.Error())
	}
	return p.prog
}

// ParseFunctionFile parses a file holding a single function, wrapping
// it in a program so register and builtin names resolve. Used by the
// liveness and interference dump modes.
func (p *Parser) ParseFunctionFile() (*il.Program, *il.Function) {
	fn := p.parseFunction()
	if fn == nil {
		return nil, nil
	}
	p.prog = il.NewProgram(fn.Name)
	if err := p.prog.AddFunction(fn); err != nil {
		p.addError(err.Error())
	}
	if !p.curTokenIs(lexer.TokenEOF) {
		p.addError(fmt.Sprintf("trailing input after function: %s", p.curToken.Type))
	}
	if err := p.prog.Finalize(); err != nil {
		p.addError(err.Error())
	}
	return p.prog, fn
}

// ParseSpillFile parses a spill test file: ( FUNCTION %target %prefix ).
// The target must name a variable of the function.
func (p *Parser) ParseSpillFile() (*il.Function, *il.Variable, string) {
	if !p.expect(lexer.TokenLParen) {
		return nil, nil, ""
	}
	fn := p.parseFunction()
	if fn == nil {
		return nil, nil, ""
	}
	p.prog = il.NewProgram(fn.Name)
	if err := p.prog.AddFunction(fn); err != nil {
		p.addError(err.Error())
	}

	if !p.curTokenIs(lexer.TokenVariable) {
		p.addError(fmt.Sprintf("expected spill target variable, got %s", p.curToken.Type))
		return nil, nil, ""
	}
	target, ok := fn.Scope.Variables.Lookup(p.curToken.Literal)
	if !ok {
		p.addError(fmt.Sprintf("spill target %%%s does not occur in @%s", p.curToken.Literal, fn.Name))
		return nil, nil, ""
	}
	p.nextToken()

	if !p.curTokenIs(lexer.TokenVariable) {
		p.addError(fmt.Sprintf("expected spill prefix, got %s", p.curToken.Type))
		return nil, nil, ""
	}
	prefix := p.curToken.Literal
	p.nextToken()

	p.expect(lexer.TokenRParen)
	if err := p.prog.Finalize(); err != nil {
		p.addError(err.Error())
	}
	return fn, target, prefix
}

// parseFunction parses ( @name N INSTRUCTION+ )
func (p *Parser) parseFunction() *il.Function {
	if !p.expect(lexer.TokenLParen) {
		return nil
	}
	if !p.curTokenIs(lexer.TokenFunctionName) {
		p.addError(fmt.Sprintf("expected function name, got %s", p.curToken.Type))
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()

	numArgs, ok := p.parseNumberValue()
	if !ok {
		return nil
	}
	if numArgs < 0 {
		p.addError(fmt.Sprintf("function @%s declares %d arguments", name, numArgs))
	}

	p.fn = il.NewFunction(name, numArgs)
	for !p.curTokenIs(lexer.TokenRParen) && !p.curTokenIs(lexer.TokenEOF) {
		inst := p.parseInstruction()
		if inst != nil {
			p.fn.Append(inst)
		}
	}
	p.expect(lexer.TokenRParen)

	fn := p.fn
	p.fn = nil
	return fn
}

func (p *Parser) parseInstruction() il.Instruction {
	switch p.curToken.Type {
	case lexer.TokenReturn:
		p.nextToken()
		return &il.Return{}
	case lexer.TokenLabel:
		lab := &il.Label{Name: p.curToken.Literal}
		if err := p.fn.DefineLabel(lab); err != nil {
			p.addError(err.Error())
		}
		p.nextToken()
		return lab
	case lexer.TokenGoto:
		p.nextToken()
		target := p.parseLabelRef()
		if target == nil {
			return nil
		}
		return &il.Goto{Target: target}
	case lexer.TokenCjump:
		return p.parseCompareJump()
	case lexer.TokenCall:
		return p.parseCall()
	case lexer.TokenMem:
		return p.parseMemAssign()
	case lexer.TokenVariable, lexer.TokenRegister:
		return p.parseOperandInstruction()
	default:
		p.addError(fmt.Sprintf("unexpected token in instruction: %s", p.curToken.Type))
		p.nextToken()
		return nil
	}
}

// parseOperandInstruction handles everything beginning with a writable
// operand: assignments, compare-assignments, increments, and lea.
func (p *Parser) parseOperandInstruction() il.Instruction {
	dest := p.parseWOperand()
	if dest == nil {
		return nil
	}

	switch p.curToken.Type {
	case lexer.TokenArrow:
		p.nextToken()
		return p.parseAssignSource(dest)
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenAmpEq:
		op := assignOpFor(p.curToken.Type)
		p.nextToken()
		src := p.parseTOperand()
		if src == nil {
			return nil
		}
		return &il.Assign{Dest: dest, Op: op, Src: src}
	case lexer.TokenShlEq, lexer.TokenShrEq:
		op := assignOpFor(p.curToken.Type)
		p.nextToken()
		src := p.parseShiftCount()
		if src == nil {
			return nil
		}
		return &il.Assign{Dest: dest, Op: op, Src: src}
	case lexer.TokenPlusPlus:
		p.nextToken()
		return &il.Assign{Dest: dest, Op: il.OpAdd, Src: &il.NumberLiteral{Value: 1}}
	case lexer.TokenMinusMinus:
		p.nextToken()
		return &il.Assign{Dest: dest, Op: il.OpSub, Src: &il.NumberLiteral{Value: 1}}
	case lexer.TokenAt:
		p.nextToken()
		return p.parseLea(dest)
	default:
		p.addError(fmt.Sprintf("expected assignment operator, got %s", p.curToken.Type))
		p.nextToken()
		return nil
	}
}

// parseAssignSource parses the right side of dest <- ..., which is a
// memory load, a stack argument, or an s operand optionally followed by
// a comparison.
func (p *Parser) parseAssignSource(dest il.Expr) il.Instruction {
	switch p.curToken.Type {
	case lexer.TokenMem:
		src := p.parseMemoryLocation()
		if src == nil {
			return nil
		}
		return &il.Assign{Dest: dest, Op: il.OpPure, Src: src}
	case lexer.TokenStackArg:
		p.nextToken()
		slot, ok := p.parseNumberValue()
		if !ok {
			return nil
		}
		if slot < 0 {
			p.addError(fmt.Sprintf("negative stack-arg slot %d", slot))
		}
		return &il.Assign{Dest: dest, Op: il.OpPure,
			Src: &il.StackArg{Slot: &il.NumberLiteral{Value: slot}}}
	}

	src := p.parseSOperand()
	if src == nil {
		return nil
	}

	switch p.curToken.Type {
	case lexer.TokenLt, lexer.TokenLe, lexer.TokenEq:
		op := cmpOpFor(p.curToken.Type)
		p.nextToken()
		if !isTOperand(src) {
			p.addError("comparison operand must be a register, variable, or number")
		}
		rhs := p.parseTOperand()
		if rhs == nil {
			return nil
		}
		return &il.CompareAssign{Dest: dest, Lhs: src, Op: op, Rhs: rhs}
	}
	return &il.Assign{Dest: dest, Op: il.OpPure, Src: src}
}

// parseMemAssign parses mem X N op SRC
func (p *Parser) parseMemAssign() il.Instruction {
	dest := p.parseMemoryLocation()
	if dest == nil {
		return nil
	}
	switch p.curToken.Type {
	case lexer.TokenArrow:
		p.nextToken()
		src := p.parseSOperand()
		if src == nil {
			return nil
		}
		return &il.Assign{Dest: dest, Op: il.OpPure, Src: src}
	case lexer.TokenPlusEq, lexer.TokenMinusEq:
		op := assignOpFor(p.curToken.Type)
		p.nextToken()
		src := p.parseTOperand()
		if src == nil {
			return nil
		}
		return &il.Assign{Dest: dest, Op: op, Src: src}
	default:
		p.addError(fmt.Sprintf("expected <-, += or -= after memory location, got %s", p.curToken.Type))
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseCompareJump() il.Instruction {
	p.nextToken() // consume 'cjump'
	lhs := p.parseTOperand()
	if lhs == nil {
		return nil
	}
	var op il.CmpOp
	switch p.curToken.Type {
	case lexer.TokenLt, lexer.TokenLe, lexer.TokenEq:
		op = cmpOpFor(p.curToken.Type)
		p.nextToken()
	default:
		p.addError(fmt.Sprintf("expected comparison operator, got %s", p.curToken.Type))
		return nil
	}
	rhs := p.parseTOperand()
	if rhs == nil {
		return nil
	}
	target := p.parseLabelRef()
	if target == nil {
		return nil
	}
	return &il.CompareJump{Lhs: lhs, Op: op, Rhs: rhs, Target: target}
}

func (p *Parser) parseCall() il.Instruction {
	p.nextToken() // consume 'call'
	var callee il.Expr
	switch p.curToken.Type {
	case lexer.TokenExternal:
		ref := &il.ExternalFunctionRef{Name: p.curToken.Literal}
		p.fn.Scope.Externals.AddRef(p.curToken.Literal, ref)
		callee = ref
		p.nextToken()
	case lexer.TokenFunctionName:
		ref := &il.FunctionRef{Name: p.curToken.Literal}
		p.fn.Scope.Functions.AddRef(p.curToken.Literal, ref)
		callee = ref
		p.nextToken()
	case lexer.TokenVariable, lexer.TokenRegister:
		callee = p.parseXOperand()
		if callee == nil {
			return nil
		}
	default:
		p.addError(fmt.Sprintf("expected call target, got %s", p.curToken.Type))
		return nil
	}
	numArgs, ok := p.parseNumberValue()
	if !ok {
		return nil
	}
	return &il.Call{Callee: callee, NumArgs: numArgs}
}

// parseLea parses the tail of W @ W W F
func (p *Parser) parseLea(dest il.Expr) il.Instruction {
	base := p.parseWOperand()
	if base == nil {
		return nil
	}
	offset := p.parseWOperand()
	if offset == nil {
		return nil
	}
	scale, ok := p.parseNumberValue()
	if !ok {
		return nil
	}
	switch scale {
	case 1, 2, 4, 8:
	default:
		p.addError(fmt.Sprintf("scale must be 1, 2, 4, or 8, got %d", scale))
	}
	return &il.Lea{Dest: dest, Base: base, Offset: offset, Scale: scale}
}

// parseMemoryLocation parses mem X N
func (p *Parser) parseMemoryLocation() *il.MemoryLocation {
	p.nextToken() // consume 'mem'
	base := p.parseXOperand()
	if base == nil {
		return nil
	}
	offset, ok := p.parseNumberValue()
	if !ok {
		return nil
	}
	if offset%8 != 0 {
		p.addError(fmt.Sprintf("memory offset %d is not a multiple of 8", offset))
	}
	return &il.MemoryLocation{Base: base, Offset: &il.NumberLiteral{Value: offset}}
}

func (p *Parser) parseLabelRef() *il.LabelRef {
	if !p.curTokenIs(lexer.TokenLabel) {
		p.addError(fmt.Sprintf("expected label, got %s", p.curToken.Type))
		return nil
	}
	ref := &il.LabelRef{Name: p.curToken.Literal}
	p.fn.Scope.Labels.AddRef(p.curToken.Literal, ref)
	p.nextToken()
	return ref
}

// parseWOperand parses a writable operand: a variable or any register
// except rsp.
func (p *Parser) parseWOperand() il.Expr {
	if p.curTokenIs(lexer.TokenRegister) && p.curToken.Literal == "rsp" {
		p.addError("rsp cannot be used here")
	}
	return p.parseXOperand()
}

// parseXOperand parses a variable or register.
func (p *Parser) parseXOperand() il.Expr {
	switch p.curToken.Type {
	case lexer.TokenVariable:
		ref := &il.VariableRef{Referent: p.fn.GetOrCreateVariable(p.curToken.Literal)}
		p.nextToken()
		return ref
	case lexer.TokenRegister:
		ref := &il.RegisterRef{Name: p.curToken.Literal}
		p.fn.Scope.Registers.AddRef(p.curToken.Literal, ref)
		p.nextToken()
		return ref
	default:
		p.addError(fmt.Sprintf("expected register or variable, got %s", p.curToken.Type))
		p.nextToken()
		return nil
	}
}

// parseTOperand parses a variable, register, or number.
func (p *Parser) parseTOperand() il.Expr {
	if p.curTokenIs(lexer.TokenNumber) {
		value, ok := p.parseNumberValue()
		if !ok {
			return nil
		}
		return &il.NumberLiteral{Value: value}
	}
	return p.parseXOperand()
}

// parseSOperand parses a t operand, label, or function name.
func (p *Parser) parseSOperand() il.Expr {
	switch p.curToken.Type {
	case lexer.TokenLabel:
		return p.parseLabelRef()
	case lexer.TokenFunctionName:
		ref := &il.FunctionRef{Name: p.curToken.Literal}
		p.fn.Scope.Functions.AddRef(p.curToken.Literal, ref)
		p.nextToken()
		return ref
	default:
		return p.parseTOperand()
	}
}

// parseShiftCount parses a shift amount: rcx, a variable, or a number.
func (p *Parser) parseShiftCount() il.Expr {
	if p.curTokenIs(lexer.TokenRegister) && p.curToken.Literal != "rcx" {
		p.addError(fmt.Sprintf("shift count register must be rcx, got %s", p.curToken.Literal))
	}
	return p.parseTOperand()
}

func (p *Parser) parseNumberValue() (int64, bool) {
	if !p.curTokenIs(lexer.TokenNumber) {
		p.addError(fmt.Sprintf("expected number, got %s", p.curToken.Type))
		return 0, false
	}
	value, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
	if err != nil {
		p.addError(fmt.Sprintf("bad number literal %q", p.curToken.Literal))
		return 0, false
	}
	p.nextToken()
	return value, true
}

func isTOperand(e il.Expr) bool {
	switch e.(type) {
	case *il.VariableRef, *il.RegisterRef, *il.NumberLiteral:
		return true
	}
	return false
}

func assignOpFor(t lexer.TokenType) il.AssignOp {
	switch t {
	case lexer.TokenPlusEq:
		return il.OpAdd
	case lexer.TokenMinusEq:
		return il.OpSub
	case lexer.TokenStarEq:
		return il.OpMul
	case lexer.TokenAmpEq:
		return il.OpAnd
	case lexer.TokenShlEq:
		return il.OpShl
	case lexer.TokenShrEq:
		return il.OpShr
	}
	return il.OpPure
}

func cmpOpFor(t lexer.TokenType) il.CmpOp {
	switch t {
	case lexer.TokenLt:
		return il.CmpLt
	case lexer.TokenLe:
		return il.CmpLe
	}
	return il.CmpEq
}
