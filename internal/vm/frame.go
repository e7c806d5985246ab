package vm

import (
	"sentra/internal/bytecode"
	"sentra/internal/object"
)

// Frame is one call's activation record: the closure being executed, its
// instruction pointer, and the stack index its local slots start at.
// The closure value itself sits on the VM stack at basePointer-1, one slot
// below its first local/argument.
type Frame struct {
	cl          *object.Closure
	ip          int
	basePointer int
}

// NewFrame starts a frame for cl with ip positioned before the first
// instruction (Run's fetch loop pre-increments).
func NewFrame(cl *object.Closure, basePointer int) *Frame {
	return &Frame{cl: cl, ip: -1, basePointer: basePointer}
}

func (f *Frame) Instructions() bytecode.Instructions {
	return f.cl.Fn.Instructions
}
