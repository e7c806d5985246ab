// Package irdump renders a compiled program as LLVM IR text, purely for
// inspecting what a future native backend's function boundaries and
// constant pool would look like. Nothing produced here is ever assembled,
// linked, or executed — it is `sentra dump --emit-llvm`'s output only.
package irdump

import (
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/types"

	"sentra/internal/bytecode"
	"sentra/internal/compiler"
	"sentra/internal/object"
)

// Dump lowers bc into a skeleton LLVM module: one function per compiled
// function in bc.Constants (plus a synthetic "main" for bc.Instructions
// itself), one basic block per run of instructions between jump targets,
// and an i64 constant per OpConstant operand that indexes an Int. Returns
// the module's textual IR.
func Dump(bc *compiler.Bytecode) string {
	m := ir.NewModule()

	lowerFunc(m, "main", bc.Instructions, bc.Constants)

	for i, c := range bc.Constants {
		if fn, ok := c.(*object.CompiledFunction); ok {
			name := fn.Name
			if name == "" {
				name = fmt.Sprintf("anonymous_%d", i)
			}
			lowerFunc(m, name, fn.Instructions, bc.Constants)
		}
	}

	return m.String()
}

// lowerFunc builds one ir.Func from a flat instruction stream, splitting
// it into basic blocks at every jump target (the addresses OpJump and
// OpJumpNotTruthy can land on). Each block translates the arithmetic and
// constant-load opcodes it contains into real instructions; anything else
// is skipped as diagnostic noise, since this dump never runs. Every block
// still needs a terminator, so each closes with a placeholder `ret i64 0`
// unless the source instructions already ended it with a return.
func lowerFunc(m *ir.Module, name string, ins bytecode.Instructions, constants []object.Value) *ir.Func {
	fn := m.NewFunc(name, types.I64)

	boundaries := jumpTargets(ins)

	blocks := make(map[int]*ir.Block)
	entry := fn.NewBlock("entry")
	blocks[0] = entry

	i := 0
	stack := []ir.Value{}
	cur := entry
	for i < len(ins) {
		if b, ok := blocks[i]; ok && i != 0 {
			if cur.Term == nil {
				cur.NewRet(constant.NewInt(types.I64, 0))
			}
			cur = b
		} else if boundaries[i] && blocks[i] == nil {
			nb := fn.NewBlock(fmt.Sprintf("L%d", i))
			blocks[i] = nb
			if cur.Term == nil {
				cur.NewRet(constant.NewInt(types.I64, 0))
			}
			cur = nb
		}

		def, err := bytecode.Lookup(ins[i])
		if err != nil {
			break
		}
		operands, read := bytecode.ReadOperands(def, ins[i+1:])

		switch def.Name {
		case "OpConstant":
			idx := operands[0]
			if idx < len(constants) {
				if n, ok := constants[idx].(*object.Int); ok {
					stack = append(stack, constant.NewInt(types.I64, n.Value))
				}
			}
		case "OpAdd", "OpSub", "OpMul", "OpDiv":
			if len(stack) >= 2 {
				right := stack[len(stack)-1]
				left := stack[len(stack)-2]
				stack = stack[:len(stack)-2]
				var v ir.Value
				switch def.Name {
				case "OpAdd":
					v = cur.NewAdd(left, right)
				case "OpSub":
					v = cur.NewSub(left, right)
				case "OpMul":
					v = cur.NewMul(left, right)
				case "OpDiv":
					v = cur.NewSDiv(left, right)
				}
				stack = append(stack, v)
			}
		case "OpReturnValue":
			if len(stack) > 0 {
				cur.NewRet(stack[len(stack)-1])
			} else {
				cur.NewRet(constant.NewInt(types.I64, 0))
			}
		case "OpReturn":
			cur.NewRet(constant.NewInt(types.I64, 0))
		}

		i += 1 + read
	}

	if cur.Term == nil {
		if len(stack) > 0 {
			cur.NewRet(stack[len(stack)-1])
		} else {
			cur.NewRet(constant.NewInt(types.I64, 0))
		}
	}

	return fn
}

// jumpTargets scans ins for every position an OpJump or OpJumpNotTruthy
// operand addresses, so lowerFunc knows where to start a new block.
func jumpTargets(ins bytecode.Instructions) map[int]bool {
	targets := map[int]bool{}
	i := 0
	for i < len(ins) {
		def, err := bytecode.Lookup(ins[i])
		if err != nil {
			break
		}
		operands, read := bytecode.ReadOperands(def, ins[i+1:])
		if def.Name == "OpJump" || def.Name == "OpJumpNotTruthy" {
			targets[operands[0]] = true
		}
		i += 1 + read
	}
	return targets
}
