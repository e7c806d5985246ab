// Package object defines the tagged set of runtime values the compiler's
// constant pool and the virtual machine's stack hold. It sits below both
// internal/compiler and internal/vm so neither needs to import the other
// just to talk about values.
package object

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"strings"

	"sentra/internal/bytecode"
)

// Type tags a Value's dynamic variant for quick switches and error messages.
type Type string

const (
	NULL_OBJ             Type = "NULL"
	BOOL_OBJ             Type = "BOOL"
	INT_OBJ              Type = "INT"
	STRING_OBJ           Type = "STRING"
	ARRAY_OBJ            Type = "ARRAY"
	HASH_OBJ             Type = "HASH"
	COMPILED_FUNCTION_OBJ Type = "COMPILED_FUNCTION"
	CLOSURE_OBJ          Type = "CLOSURE"
	BUILTIN_OBJ          Type = "BUILTIN"
	RETURN_VALUE_OBJ     Type = "RETURN_VALUE"
	ERROR_OBJ            Type = "ERROR"
)

// Value is implemented by every runtime value variant named in the data
// model: Null, Bool, Int64, Str, Array, Hash, CompiledFunction, Closure,
// Builtin, ReturnValue, Error.
type Value interface {
	Type() Type
	Inspect() string
}

// Hashable is implemented by variants that may be used as a Hash key:
// Bool, Int64, Str.
type Hashable interface {
	HashKey() HashKey
}

// HashKey is a value's identity when used as a Hash key: the variant's type
// tag plus a 64-bit digest of its payload. Equality is structural over both
// fields, so two Values of different Go types never collide even if their
// digests happen to match.
type HashKey struct {
	Type  Type
	Value uint64
}

// Null is the singleton absence-of-value. Use the package-level NULL
// instance; never construct a second one, since truthiness and equality
// checks compare by pointer identity.
type Null struct{}

func (n *Null) Type() Type      { return NULL_OBJ }
func (n *Null) Inspect() string { return "null" }

// Bool wraps a boolean. Use TRUE/FALSE; never allocate a third instance.
type Bool struct {
	Value bool
}

func (b *Bool) Type() Type      { return BOOL_OBJ }
func (b *Bool) Inspect() string { return fmt.Sprintf("%t", b.Value) }
func (b *Bool) HashKey() HashKey {
	var v uint64
	if b.Value {
		v = 1
	}
	return HashKey{Type: b.Type(), Value: v}
}

// Singleton instances. Truthiness and singleton-identity fast paths in the
// VM compare against these pointers directly.
var (
	NULL  = &Null{}
	TRUE  = &Bool{Value: true}
	FALSE = &Bool{Value: false}
)

// NativeBool returns TRUE or FALSE for b, never allocating.
func NativeBool(b bool) *Bool {
	if b {
		return TRUE
	}
	return FALSE
}

// Int is a signed 64-bit integer, the language's only numeric type.
type Int struct {
	Value int64
}

func (i *Int) Type() Type      { return INT_OBJ }
func (i *Int) Inspect() string { return fmt.Sprintf("%d", i.Value) }
func (i *Int) HashKey() HashKey {
	return HashKey{Type: i.Type(), Value: uint64(i.Value)}
}

// String is an immutable byte string.
type String struct {
	Value string
}

func (s *String) Type() Type      { return STRING_OBJ }
func (s *String) Inspect() string { return s.Value }
func (s *String) HashKey() HashKey {
	h := fnv.New64a()
	h.Write([]byte(s.Value))
	return HashKey{Type: s.Type(), Value: h.Sum64()}
}

// Array is an ordered, zero-indexed sequence of Values. Indexing out of
// range or with a negative index yields NULL rather than erroring.
type Array struct {
	Elements []Value
}

func (a *Array) Type() Type { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	var out bytes.Buffer
	elems := make([]string, 0, len(a.Elements))
	for _, e := range a.Elements {
		elems = append(elems, e.Inspect())
	}
	out.WriteString("[")
	out.WriteString(strings.Join(elems, ", "))
	out.WriteString("]")
	return out.String()
}

// HashPair preserves the original key Value alongside its mapped Value, so
// Inspect can render the key in its original form rather than its digest.
type HashPair struct {
	Key   Value
	Value Value
}

// Hash maps HashKey to HashPair. Only Hashable variants may be keys.
type Hash struct {
	Pairs map[HashKey]HashPair
}

func (h *Hash) Type() Type { return HASH_OBJ }
func (h *Hash) Inspect() string {
	var out bytes.Buffer
	pairs := make([]string, 0, len(h.Pairs))
	for _, pair := range h.Pairs {
		pairs = append(pairs, fmt.Sprintf("%s: %s", pair.Key.Inspect(), pair.Value.Inspect()))
	}
	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ", "))
	out.WriteString("}")
	return out.String()
}

// CompiledFunction is the compiler's output for one function literal:
// its instruction stream plus the local-slot and parameter counts the VM
// needs to set up a call frame. Immutable after compilation.
type CompiledFunction struct {
	Instructions  bytecode.Instructions
	NumLocals     int
	NumParameters int
	Name          string // empty for anonymous literals; set for named declarations
}

func (cf *CompiledFunction) Type() Type { return COMPILED_FUNCTION_OBJ }
func (cf *CompiledFunction) Inspect() string {
	name := cf.Name
	if name == "" {
		name = "anonymous"
	}
	return fmt.Sprintf("CompiledFunction[%s]", name)
}

// Closure pairs a CompiledFunction with the values it captured from its
// defining lexical scope. len(Free) always equals the free-count operand of
// the OpClosure instruction that built it.
type Closure struct {
	Fn   *CompiledFunction
	Free []Value
}

func (c *Closure) Type() Type { return CLOSURE_OBJ }
func (c *Closure) Inspect() string {
	return fmt.Sprintf("Closure[%s](%p)", c.Fn.Inspect(), c)
}

// BuiltinFunction is the signature every native builtin implements.
type BuiltinFunction func(args ...Value) Value

// Builtin wraps a native function exposed to the language under a fixed
// name and GetBuiltin table index (see object.Builtins).
type Builtin struct {
	Name string
	Fn   BuiltinFunction
}

func (b *Builtin) Type() Type      { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string { return fmt.Sprintf("builtin function: %s", b.Name) }

// ReturnValue wraps the value produced by a return statement. The compiler
// and VM never create one: a compiled return leaves its value on the
// operand stack directly. The variant is kept because
// the tree-walking evaluator (out of scope here) uses it to unwind a call.
type ReturnValue struct {
	Value Value
}

func (rv *ReturnValue) Type() Type      { return RETURN_VALUE_OBJ }
func (rv *ReturnValue) Inspect() string { return rv.Value.Inspect() }

// Error is a first-class error value returned by builtins. Its Inspect form
// always begins with "ERROR: ", per the error-value handling design.
type Error struct {
	Message string
}

func (e *Error) Type() Type      { return ERROR_OBJ }
func (e *Error) Inspect() string { return "ERROR: " + e.Message }

// Newf builds an *Error with a formatted message.
func Newf(format string, args ...interface{}) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// IsTruthy reports whether v is anything other than NULL or FALSE.
func IsTruthy(v Value) bool {
	switch v {
	case NULL, FALSE:
		return false
	case TRUE:
		return true
	default:
		return true
	}
}
