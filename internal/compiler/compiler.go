// Package compiler turns the parser's AST into bytecode.Instructions plus a
// constant pool: one pass over the tree, a symbol table per lexical scope,
// and back-patched jumps for conditionals. There is no intermediate
// representation; Compile walks the AST exactly once.
package compiler

import (
	"fmt"
	"sort"

	"sentra/internal/bytecode"
	"sentra/internal/errors"
	"sentra/internal/object"
	"sentra/internal/parser"
)

// EmittedInstruction records one instruction the compiler wrote to the
// current scope, so the compiler can recognize and undo a trailing OpPop.
type EmittedInstruction struct {
	Opcode   bytecode.OpCode
	Position int
}

// CompilationScope holds the instruction buffer being built for one function
// body (or the top-level program). Compiler.scopes is a stack of these, one
// per nested function literal currently being compiled.
type CompilationScope struct {
	instructions        bytecode.Instructions
	lastInstruction     EmittedInstruction
	previousInstruction EmittedInstruction
}

// Bytecode is the Compiler's output: a flat instruction stream and the
// constant pool it references by index.
type Bytecode struct {
	Instructions bytecode.Instructions
	Constants    []object.Value
}

// Compiler walks a parser.Stmt/parser.Expr tree and emits bytecode. It
// implements parser.ExprVisitor and parser.StmtVisitor; since Accept has no
// error return, a compile failure is recorded in err and every subsequent
// visit becomes a no-op until the caller observes it.
type Compiler struct {
	constants   []object.Value
	symbolTable *SymbolTable
	scopes      []CompilationScope
	scopeIndex  int
	err         error
}

// New creates a Compiler with an empty constant pool and a fresh global
// symbol table pre-populated with every entry of object.Builtins, in order.
func New() *Compiler {
	mainScope := CompilationScope{instructions: bytecode.Instructions{}}

	symbolTable := NewSymbolTable()
	for i, b := range object.Builtins {
		symbolTable.DefineBuiltin(i, b.Name)
	}

	return &Compiler{
		constants:   []object.Value{},
		symbolTable: symbolTable,
		scopes:      []CompilationScope{mainScope},
	}
}

// NewWithState creates a Compiler that continues from a previous
// compilation's symbol table and constant pool, so the REPL can compile each
// line against the bindings and constants the lines before it produced.
func NewWithState(s *SymbolTable, constants []object.Value) *Compiler {
	c := New()
	c.symbolTable = s
	c.constants = constants
	return c
}

// SymbolTable exposes the compiler's current (outermost, after NewWithState
// or after Compile returns) symbol table, so the REPL can thread it into the
// next line's Compiler.
func (c *Compiler) SymbolTable() *SymbolTable { return c.symbolTable }

// Compile compiles a full program: every top-level function declaration is
// hoisted (bound in the global symbol table) before any statement is
// compiled, so top-level functions may call each other regardless of
// declaration order; then every statement is compiled in sequence.
func (c *Compiler) Compile(stmts []parser.Stmt) error {
	c.hoistFunctionDecls(stmts)
	for _, s := range stmts {
		c.compileStmt(s)
		if c.err != nil {
			return c.err
		}
	}
	return nil
}

func (c *Compiler) hoistFunctionDecls(stmts []parser.Stmt) {
	for _, s := range stmts {
		if fn, ok := s.(*parser.FunctionStmt); ok {
			if _, ok := c.symbolTable.Resolve(fn.Name); !ok {
				c.symbolTable.Define(fn.Name)
			}
		}
	}
}

func (c *Compiler) Bytecode() *Bytecode {
	return &Bytecode{Instructions: c.currentInstructions(), Constants: c.constants}
}

func (c *Compiler) compileStmt(s parser.Stmt) {
	if c.err != nil {
		return
	}
	s.Accept(c)
}

func (c *Compiler) compileExpr(e parser.Expr) {
	if c.err != nil {
		return
	}
	e.Accept(c)
}

func (c *Compiler) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = errors.NewCompileError(fmt.Sprintf(format, args...), "", 0, 0).Wrap()
	}
}

// --- emission plumbing ---

func (c *Compiler) currentInstructions() bytecode.Instructions {
	return c.scopes[c.scopeIndex].instructions
}

func (c *Compiler) addConstant(v object.Value) int {
	c.constants = append(c.constants, v)
	return len(c.constants) - 1
}

func (c *Compiler) emit(op bytecode.OpCode, operands ...int) int {
	ins := bytecode.Make(op, operands...)
	pos := c.addInstruction(ins)
	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []byte) int {
	pos := len(c.currentInstructions())
	c.scopes[c.scopeIndex].instructions = append(c.currentInstructions(), ins...)
	return pos
}

func (c *Compiler) setLastInstruction(op bytecode.OpCode, pos int) {
	previous := c.scopes[c.scopeIndex].lastInstruction
	c.scopes[c.scopeIndex].previousInstruction = previous
	c.scopes[c.scopeIndex].lastInstruction = EmittedInstruction{Opcode: op, Position: pos}
}

func (c *Compiler) lastInstructionIs(op bytecode.OpCode) bool {
	if len(c.currentInstructions()) == 0 {
		return false
	}
	return c.scopes[c.scopeIndex].lastInstruction.Opcode == op
}

func (c *Compiler) removeLastPop() {
	last := c.scopes[c.scopeIndex].lastInstruction
	previous := c.scopes[c.scopeIndex].previousInstruction

	c.scopes[c.scopeIndex].instructions = c.currentInstructions()[:last.Position]
	c.scopes[c.scopeIndex].lastInstruction = previous
}

func (c *Compiler) replaceInstruction(pos int, newInstruction []byte) {
	c.currentInstructions().Patch(pos, newInstruction)
}

func (c *Compiler) replaceLastPopWithReturn() {
	lastPos := c.scopes[c.scopeIndex].lastInstruction.Position
	c.replaceInstruction(lastPos, bytecode.Make(bytecode.OpReturnValue))
	c.scopes[c.scopeIndex].lastInstruction.Opcode = bytecode.OpReturnValue
}

func (c *Compiler) changeOperand(opPos int, operand int) {
	op := bytecode.OpCode(c.currentInstructions()[opPos])
	c.replaceInstruction(opPos, bytecode.Make(op, operand))
}

func (c *Compiler) enterScope() {
	c.scopes = append(c.scopes, CompilationScope{instructions: bytecode.Instructions{}})
	c.scopeIndex++
	c.symbolTable = NewEnclosedSymbolTable(c.symbolTable)
}

func (c *Compiler) leaveScope() bytecode.Instructions {
	instructions := c.currentInstructions()
	c.scopes = c.scopes[:len(c.scopes)-1]
	c.scopeIndex--
	c.symbolTable = c.symbolTable.Outer
	return instructions
}

func (c *Compiler) loadSymbol(s Symbol) {
	switch s.Scope {
	case GlobalScope:
		c.emit(bytecode.OpGetGlobal, s.Index)
	case LocalScope:
		c.emit(bytecode.OpGetLocal, s.Index)
	case BuiltinScope:
		c.emit(bytecode.OpGetBuiltin, s.Index)
	case FreeScope:
		c.emit(bytecode.OpGetFree, s.Index)
	case FunctionScope:
		c.emit(bytecode.OpCurrentClosure)
	}
}

// compileStmtList compiles a block's statements in sequence, trimming the
// trailing OpPop when asExpr is true so the value of the final
// ExpressionStmt survives on the stack for the enclosing expression to use
// (a block expression, such as an if-expression branch).
func (c *Compiler) compileStmtList(stmts []parser.Stmt, asExpr bool) {
	for _, s := range stmts {
		c.compileStmt(s)
		if c.err != nil {
			return
		}
	}
	if asExpr && c.lastInstructionIs(bytecode.OpPop) {
		c.removeLastPop()
	}
}

// --- statements ---

func (c *Compiler) VisitPrintStmt(s *parser.PrintStmt) interface{} {
	putsSym, _ := c.symbolTable.Resolve("puts")
	c.loadSymbol(putsSym)
	c.compileExpr(s.Expr)
	c.emit(bytecode.OpCall, 1)
	c.emit(bytecode.OpPop)
	return nil
}

func (c *Compiler) VisitLetStmt(s *parser.LetStmt) interface{} {
	symbol := c.symbolTable.Define(s.Name)
	c.compileExpr(s.Expr)
	if c.err != nil {
		return nil
	}
	c.emitSet(symbol)
	return nil
}

func (c *Compiler) emitSet(symbol Symbol) {
	switch symbol.Scope {
	case GlobalScope:
		c.emit(bytecode.OpSetGlobal, symbol.Index)
	case LocalScope:
		c.emit(bytecode.OpSetLocal, symbol.Index)
	default:
		c.fail("cannot assign to %s", symbol.Name)
	}
}

func (c *Compiler) VisitAssignmentStmt(s *parser.AssignmentStmt) interface{} {
	symbol, ok := c.symbolTable.Resolve(s.Name)
	if !ok {
		c.fail("undefined variable: %s", s.Name)
		return nil
	}
	c.compileExpr(s.Value)
	if c.err != nil {
		return nil
	}
	c.emitSet(symbol)
	return nil
}

func (c *Compiler) VisitIndexAssignmentStmt(s *parser.IndexAssignmentStmt) interface{} {
	c.fail("index assignment is not supported: containers are immutable")
	return nil
}

func (c *Compiler) VisitExpressionStmt(s *parser.ExpressionStmt) interface{} {
	c.compileExpr(s.Expr)
	if c.err != nil {
		return nil
	}
	c.emit(bytecode.OpPop)
	return nil
}

func (c *Compiler) VisitFunctionStmt(s *parser.FunctionStmt) interface{} {
	symbol, ok := c.symbolTable.Resolve(s.Name)
	if !ok {
		symbol = c.symbolTable.Define(s.Name)
	}

	c.compileFunctionBody(s.Name, s.Params, s.Body)
	if c.err != nil {
		return nil
	}
	c.emitSet(symbol)
	return nil
}

// compileFunctionBody compiles params+body into a fresh scope, emits the
// resulting object.CompiledFunction as a constant, and emits the OpClosure
// that constructs a Closure from it plus whatever it captured as free
// variables. It leaves the closure value on the stack of the *enclosing*
// scope; the caller is responsible for binding or discarding it.
func (c *Compiler) compileFunctionBody(name string, params []string, body []parser.Stmt) {
	c.enterScope()

	if name != "" {
		c.symbolTable.DefineFunctionName(name)
	}
	for _, p := range params {
		c.symbolTable.Define(p)
	}

	c.compileStmtList(body, false)
	if c.err != nil {
		c.leaveScope()
		return
	}

	if c.lastInstructionIs(bytecode.OpPop) {
		c.replaceLastPopWithReturn()
	}
	if !c.lastInstructionIs(bytecode.OpReturnValue) {
		c.emit(bytecode.OpReturn)
	}

	freeSymbols := c.symbolTable.FreeSymbols
	numLocals := c.symbolTable.numDefinitions
	instructions := c.leaveScope()

	for _, s := range freeSymbols {
		c.loadSymbol(s)
	}

	compiledFn := &object.CompiledFunction{
		Instructions:  instructions,
		NumLocals:     numLocals,
		NumParameters: len(params),
		Name:          name,
	}
	fnIndex := c.addConstant(compiledFn)
	c.emit(bytecode.OpClosure, fnIndex, len(freeSymbols))
}

func (c *Compiler) VisitReturnStmt(s *parser.ReturnStmt) interface{} {
	if s.Value == nil {
		c.emit(bytecode.OpNull)
	} else {
		c.compileExpr(s.Value)
		if c.err != nil {
			return nil
		}
	}
	c.emit(bytecode.OpReturnValue)
	return nil
}

func (c *Compiler) VisitIfStmt(s *parser.IfStmt) interface{} {
	c.compileExpr(s.Condition)
	if c.err != nil {
		return nil
	}

	// Each branch leaves one value: its final expression's value, or Null
	// when it ends in anything else (a missing else counts as empty). The
	// if statement then pops that value like an expression statement.
	jumpNotTruthyPos := c.emit(bytecode.OpJumpNotTruthy, 9999)
	c.compileStmtList(s.Then, false)
	if c.err != nil {
		return nil
	}
	if c.lastInstructionIs(bytecode.OpPop) {
		c.removeLastPop()
	} else if !c.lastInstructionIs(bytecode.OpReturnValue) {
		c.emit(bytecode.OpNull)
	}

	jumpPos := c.emit(bytecode.OpJump, 9999)
	c.changeOperand(jumpNotTruthyPos, len(c.currentInstructions()))

	c.compileStmtList(s.Else, false)
	if c.err != nil {
		return nil
	}
	if c.lastInstructionIs(bytecode.OpPop) {
		c.removeLastPop()
	} else if !c.lastInstructionIs(bytecode.OpReturnValue) {
		c.emit(bytecode.OpNull)
	}
	c.changeOperand(jumpPos, len(c.currentInstructions()))
	c.emit(bytecode.OpPop)
	return nil
}

func (c *Compiler) VisitWhileStmt(s *parser.WhileStmt) interface{} {
	c.fail("while loops are not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitForStmt(s *parser.ForStmt) interface{} {
	c.fail("for loops are not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitForInStmt(s *parser.ForInStmt) interface{} {
	c.fail("for-in loops are not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitBreakStmt(s *parser.BreakStmt) interface{} {
	c.fail("break is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitContinueStmt(s *parser.ContinueStmt) interface{} {
	c.fail("continue is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitImportStmt(s *parser.ImportStmt) interface{} {
	c.fail("import is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitExportStmt(s *parser.ExportStmt) interface{} {
	c.fail("export is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitClassStmt(s *parser.ClassStmt) interface{} {
	c.fail("classes are not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitTryStmt(s *parser.TryStmt) interface{} {
	c.fail("try/catch is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitThrowStmt(s *parser.ThrowStmt) interface{} {
	c.fail("throw is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitMatchStmt(s *parser.MatchStmt) interface{} {
	c.fail("match is not supported by this bytecode target")
	return nil
}

// --- expressions ---

func (c *Compiler) VisitLiteralExpr(e *parser.Literal) interface{} {
	switch v := e.Value.(type) {
	case float64:
		c.emit(bytecode.OpConstant, c.addConstant(&object.Int{Value: int64(v)}))
	case string:
		c.emit(bytecode.OpConstant, c.addConstant(&object.String{Value: v}))
	case bool:
		if v {
			c.emit(bytecode.OpTrue)
		} else {
			c.emit(bytecode.OpFalse)
		}
	case nil:
		c.emit(bytecode.OpNull)
	default:
		c.fail("unsupported literal value %v (%T)", v, v)
	}
	return nil
}

func (c *Compiler) VisitVariableExpr(e *parser.Variable) interface{} {
	symbol, ok := c.symbolTable.Resolve(e.Name)
	if !ok {
		c.fail("undefined variable: %s", e.Name)
		return nil
	}
	c.loadSymbol(symbol)
	return nil
}

func (c *Compiler) VisitAssignExpr(e *parser.Assign) interface{} {
	symbol, ok := c.symbolTable.Resolve(e.Name)
	if !ok {
		c.fail("undefined variable: %s", e.Name)
		return nil
	}
	c.compileExpr(e.Value)
	if c.err != nil {
		return nil
	}
	c.emitSet(symbol)
	c.loadSymbol(symbol)
	return nil
}

func (c *Compiler) VisitBinaryExpr(e *parser.Binary) interface{} {
	switch e.Operator {
	case "<":
		c.compileExpr(e.Right)
		c.compileExpr(e.Left)
		if c.err != nil {
			return nil
		}
		c.emit(bytecode.OpGreaterThan)
		return nil
	case ">=":
		c.compileExpr(e.Right)
		c.compileExpr(e.Left)
		if c.err != nil {
			return nil
		}
		c.emit(bytecode.OpGreaterThan)
		c.emit(bytecode.OpBang)
		return nil
	case "<=":
		c.compileExpr(e.Left)
		c.compileExpr(e.Right)
		if c.err != nil {
			return nil
		}
		c.emit(bytecode.OpGreaterThan)
		c.emit(bytecode.OpBang)
		return nil
	}

	c.compileExpr(e.Left)
	c.compileExpr(e.Right)
	if c.err != nil {
		return nil
	}

	switch e.Operator {
	case "+":
		c.emit(bytecode.OpAdd)
	case "-":
		c.emit(bytecode.OpSub)
	case "*":
		c.emit(bytecode.OpMul)
	case "/":
		c.emit(bytecode.OpDiv)
	case ">":
		c.emit(bytecode.OpGreaterThan)
	case "==":
		c.emit(bytecode.OpEqual)
	case "!=":
		c.emit(bytecode.OpNotEqual)
	default:
		c.fail("unknown operator: %s", e.Operator)
	}
	return nil
}

func (c *Compiler) VisitUnaryExpr(e *parser.UnaryExpr) interface{} {
	c.compileExpr(e.Operand)
	if c.err != nil {
		return nil
	}
	switch e.Operator {
	case "-":
		c.emit(bytecode.OpMinus)
	case "!":
		c.emit(bytecode.OpBang)
	default:
		c.fail("unknown operator: %s", e.Operator)
	}
	return nil
}

// VisitLogicalExpr desugars && and || into jumps over the existing opcode
// set, normalizing to a strict boolean result. Each OpJumpNotTruthy
// consumes (pops) the value it tests, so neither branch needs a dup opcode
// the registry doesn't have; the right operand is only ever compiled when
// it is actually needed, preserving short-circuit evaluation.
func (c *Compiler) VisitLogicalExpr(e *parser.LogicalExpr) interface{} {
	c.compileExpr(e.Left)
	if c.err != nil {
		return nil
	}

	switch e.Operator {
	case "&&":
		shortCircuitPos := c.emit(bytecode.OpJumpNotTruthy, 9999)
		c.compileExpr(e.Right)
		if c.err != nil {
			return nil
		}
		rightFalsyPos := c.emit(bytecode.OpJumpNotTruthy, 9999)

		c.emit(bytecode.OpTrue)
		truePos := c.emit(bytecode.OpJump, 9999)

		falseLabel := len(c.currentInstructions())
		c.changeOperand(shortCircuitPos, falseLabel)
		c.changeOperand(rightFalsyPos, falseLabel)
		c.emit(bytecode.OpFalse)

		c.changeOperand(truePos, len(c.currentInstructions()))
	case "||":
		checkRightPos := c.emit(bytecode.OpJumpNotTruthy, 9999)

		c.emit(bytecode.OpTrue)
		shortCircuitTruePos := c.emit(bytecode.OpJump, 9999)

		c.changeOperand(checkRightPos, len(c.currentInstructions()))
		c.compileExpr(e.Right)
		if c.err != nil {
			return nil
		}
		rightFalsyPos := c.emit(bytecode.OpJumpNotTruthy, 9999)

		c.emit(bytecode.OpTrue)
		truePos := c.emit(bytecode.OpJump, 9999)

		falseLabel := len(c.currentInstructions())
		c.changeOperand(rightFalsyPos, falseLabel)
		c.emit(bytecode.OpFalse)

		end := len(c.currentInstructions())
		c.changeOperand(shortCircuitTruePos, end)
		c.changeOperand(truePos, end)
	default:
		c.fail("unknown logical operator: %s", e.Operator)
	}
	return nil
}

func (c *Compiler) VisitCallExpr(e *parser.CallExpr) interface{} {
	c.compileExpr(e.Callee)
	if c.err != nil {
		return nil
	}
	for _, arg := range e.Args {
		c.compileExpr(arg)
		if c.err != nil {
			return nil
		}
	}
	c.emit(bytecode.OpCall, len(e.Args))
	return nil
}

func (c *Compiler) VisitIfExpr(e *parser.IfExpr) interface{} {
	c.compileExpr(e.Cond)
	if c.err != nil {
		return nil
	}

	jumpNotTruthyPos := c.emit(bytecode.OpJumpNotTruthy, 9999)
	c.compileExpr(e.ThenBranch)
	if c.err != nil {
		return nil
	}
	if c.lastInstructionIs(bytecode.OpPop) {
		c.removeLastPop()
	}

	jumpPos := c.emit(bytecode.OpJump, 9999)
	c.changeOperand(jumpNotTruthyPos, len(c.currentInstructions()))

	if e.ElseBranch == nil {
		c.emit(bytecode.OpNull)
	} else {
		c.compileExpr(e.ElseBranch)
		if c.err != nil {
			return nil
		}
		if c.lastInstructionIs(bytecode.OpPop) {
			c.removeLastPop()
		}
	}
	c.changeOperand(jumpPos, len(c.currentInstructions()))
	return nil
}

func (c *Compiler) VisitBlockExpr(e *parser.BlockExpr) interface{} {
	c.compileStmtList(e.Stmts, true)
	return nil
}

func (c *Compiler) VisitArrayExpr(e *parser.ArrayExpr) interface{} {
	for _, el := range e.Elements {
		c.compileExpr(el)
		if c.err != nil {
			return nil
		}
	}
	c.emit(bytecode.OpArray, len(e.Elements))
	return nil
}

// VisitMapExpr compiles a hash literal. Keys are sorted by their source-text
// rendering before compilation, so the same literal always produces the
// same instruction sequence regardless of the order the parser happened to
// collect its pairs in.
func (c *Compiler) VisitMapExpr(e *parser.MapExpr) interface{} {
	type pair struct {
		key   parser.Expr
		value parser.Expr
		text  string
	}
	pairs := make([]pair, len(e.Keys))
	for i := range e.Keys {
		pairs[i] = pair{key: e.Keys[i], value: e.Values[i], text: exprSource(e.Keys[i])}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].text < pairs[j].text })

	for _, p := range pairs {
		c.compileExpr(p.key)
		if c.err != nil {
			return nil
		}
		c.compileExpr(p.value)
		if c.err != nil {
			return nil
		}
	}
	c.emit(bytecode.OpHash, len(pairs)*2)
	return nil
}

func (c *Compiler) VisitIndexExpr(e *parser.IndexExpr) interface{} {
	c.compileExpr(e.Object)
	if c.err != nil {
		return nil
	}
	c.compileExpr(e.Index)
	if c.err != nil {
		return nil
	}
	c.emit(bytecode.OpIndex)
	return nil
}

func (c *Compiler) VisitSetIndexExpr(e *parser.SetIndexExpr) interface{} {
	c.fail("index assignment is not supported: containers are immutable")
	return nil
}

func (c *Compiler) VisitInterpolationExpr(e *parser.InterpolationExpr) interface{} {
	c.fail("string interpolation is not supported by this bytecode target")
	return nil
}

func (c *Compiler) VisitLambdaExpr(e *parser.LambdaExpr) interface{} {
	c.compileFunctionBody(e.Name, e.Params, e.Body)
	return nil
}

func (c *Compiler) VisitPropertyExpr(e *parser.PropertyExpr) interface{} {
	c.fail("property access is not supported by this bytecode target")
	return nil
}

// exprSource renders e back to source-like text for deterministic hash-key
// ordering. It only needs to be stable and collision-free across the
// expression shapes legal as a map key, not a faithful pretty-printer.
func exprSource(e parser.Expr) string {
	switch v := e.(type) {
	case *parser.Literal:
		return fmt.Sprintf("%v", v.Value)
	case *parser.Variable:
		return v.Name
	case *parser.UnaryExpr:
		return v.Operator + exprSource(v.Operand)
	case *parser.Binary:
		return exprSource(v.Left) + v.Operator + exprSource(v.Right)
	default:
		return fmt.Sprintf("%p", e)
	}
}
