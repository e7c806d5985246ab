// internal/repl/repl.go
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"sentra/internal/compiler"
	"sentra/internal/lexer"
	"sentra/internal/object"
	"sentra/internal/parser"
	"sentra/internal/vm"
)

const promptText = ">>> "

// ANSI colors for the prompt and printed values, disabled by colorize()
// when stdout isn't a terminal or NO_COLOR is set.
const (
	colorReset  = "\033[0m"
	colorPrompt = "\033[36m"
	colorValue  = "\033[32m"
	colorError  = "\033[31m"
)

// Start runs the read-eval-print loop, reading lines from in and writing
// prompts and results to out. Unlike the teacher's original loop, which
// built a fresh compiler.NewStmtCompiler() every line and threw bindings
// away, the symbol table, constant pool, and VM globals all survive from
// one line to the next (the Monkey REPL's pattern): a `let` on one line is
// visible on the next.
func Start(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	color := colorize(out)

	fmt.Fprintln(out, "Sentra REPL | type 'exit' to quit")

	symbolTable := compiler.NewSymbolTable()
	for i, b := range object.Builtins {
		symbolTable.DefineBuiltin(i, b.Name)
	}
	constants := []object.Value{}
	globals := make([]object.Value, vm.GlobalsSize)

	for {
		writePrompt(out, color)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "exit" {
			return
		}
		if line == "" {
			continue
		}

		tokens := lexer.NewScanner(line).ScanTokens()
		p := parser.NewParser(tokens)
		stmts := p.Parse()

		comp := compiler.NewWithState(symbolTable, constants)
		if err := comp.Compile(stmts); err != nil {
			writeError(out, color, err)
			continue
		}

		bc := comp.Bytecode()
		constants = bc.Constants

		machine := vm.NewWithGlobalsStore(bc, globals)
		if err := machine.Run(); err != nil {
			writeError(out, color, err)
			continue
		}
		globals = machine.Globals()

		last := machine.LastPoppedStackElem()
		if last == nil {
			continue
		}
		writeValue(out, color, last)
	}
}

func writePrompt(out io.Writer, color bool) {
	if color {
		fmt.Fprint(out, colorPrompt+promptText+colorReset)
	} else {
		fmt.Fprint(out, promptText)
	}
}

func writeValue(out io.Writer, color bool, v object.Value) {
	if color {
		fmt.Fprintln(out, colorValue+v.Inspect()+colorReset)
	} else {
		fmt.Fprintln(out, v.Inspect())
	}
}

func writeError(out io.Writer, color bool, err error) {
	if color {
		fmt.Fprintln(out, colorError+err.Error()+colorReset)
	} else {
		fmt.Fprintln(out, err.Error())
	}
}

// colorize reports whether the REPL should colorize its output: out must be
// a terminal (checked with mattn/go-isatty, matching SENTRA_DEBUG's sibling
// env-driven knobs) and NO_COLOR must be unset.
func colorize(out io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
