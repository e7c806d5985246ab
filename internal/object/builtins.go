package object

import "fmt"

// Builtins lists every builtin function in fixed registration order. A
// Symbol with BuiltinScope carries an index into this slice, and the
// compiler pre-populates the global symbol table from it in exactly this
// order at construction, so GetBuiltin <idx> always addresses the same
// function regardless of what program is being compiled. Reordering this
// slice is a wire-breaking change.
var Builtins = []struct {
	Name    string
	Builtin *Builtin
}{
	{"len", &Builtin{Name: "len", Fn: builtinLen}},
	{"puts", &Builtin{Name: "puts", Fn: builtinPuts}},
	{"first", &Builtin{Name: "first", Fn: builtinFirst}},
	{"last", &Builtin{Name: "last", Fn: builtinLast}},
	{"rest", &Builtin{Name: "rest", Fn: builtinRest}},
	{"push", &Builtin{Name: "push", Fn: builtinPush}},
}

// PutsWriter receives the text `puts` writes, one line per argument. The
// REPL and `sentra run` point it at stdout; tests redirect it to a buffer.
var PutsWriter = func(s string) {
	fmt.Println(s)
}

func builtinLen(args ...Value) Value {
	if len(args) != 1 {
		return Newf("wrong number of arguments. got=%d, want=1", len(args))
	}
	switch arg := args[0].(type) {
	case *String:
		return &Int{Value: int64(len(arg.Value))}
	case *Array:
		return &Int{Value: int64(len(arg.Elements))}
	default:
		return Newf("argument to `len` not supported, got %s", args[0].Type())
	}
}

func builtinPuts(args ...Value) Value {
	for _, arg := range args {
		PutsWriter(arg.Inspect())
	}
	return NULL
}

func builtinFirst(args ...Value) Value {
	if len(args) != 1 {
		return Newf("wrong number of arguments. got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return Newf("argument to `first` must be ARRAY, got %s", args[0].Type())
	}
	if len(arr.Elements) > 0 {
		return arr.Elements[0]
	}
	return NULL
}

func builtinLast(args ...Value) Value {
	if len(args) != 1 {
		return Newf("wrong number of arguments. got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return Newf("argument to `last` must be ARRAY, got %s", args[0].Type())
	}
	if n := len(arr.Elements); n > 0 {
		return arr.Elements[n-1]
	}
	return NULL
}

func builtinRest(args ...Value) Value {
	if len(args) != 1 {
		return Newf("wrong number of arguments. got=%d, want=1", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return Newf("argument to `rest` must be ARRAY, got %s", args[0].Type())
	}
	if n := len(arr.Elements); n > 0 {
		newElements := make([]Value, n-1)
		copy(newElements, arr.Elements[1:n])
		return &Array{Elements: newElements}
	}
	return NULL
}

func builtinPush(args ...Value) Value {
	if len(args) != 2 {
		return Newf("wrong number of arguments. got=%d, want=2", len(args))
	}
	arr, ok := args[0].(*Array)
	if !ok {
		return Newf("argument to `push` must be ARRAY, got %s", args[0].Type())
	}
	n := len(arr.Elements)
	newElements := make([]Value, n+1)
	copy(newElements, arr.Elements)
	newElements[n] = args[1]
	return &Array{Elements: newElements}
}

// GetBuiltinByName is a convenience lookup used by tests and tooling; the
// compiler itself walks Builtins by index, never by name.
func GetBuiltinByName(name string) *Builtin {
	for _, b := range Builtins {
		if b.Name == name {
			return b.Builtin
		}
	}
	return nil
}
