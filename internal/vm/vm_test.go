package vm

import (
	"fmt"
	"testing"

	"sentra/internal/compiler"
	"sentra/internal/lexer"
	"sentra/internal/object"
	"sentra/internal/parser"
)

func parseProgram(t *testing.T, input string) []parser.Stmt {
	t.Helper()
	tokens := lexer.NewScanner(input).ScanTokens()
	p := parser.NewParser(tokens)
	return p.Parse()
}

type vmTestCase struct {
	input    string
	expected interface{}
}

func runVMTests(t *testing.T, tests []vmTestCase) {
	t.Helper()
	for _, tt := range tests {
		stmts := parseProgram(t, tt.input)

		comp := compiler.New()
		if err := comp.Compile(stmts); err != nil {
			t.Fatalf("compiler error for %q: %s", tt.input, err)
		}

		machine := New(comp.Bytecode())
		if err := machine.Run(); err != nil {
			t.Fatalf("vm error for %q: %s", tt.input, err)
		}

		stackElem := machine.LastPoppedStackElem()
		testExpectedObject(t, tt.input, tt.expected, stackElem)
	}
}

func testExpectedObject(t *testing.T, input string, expected interface{}, actual object.Value) {
	t.Helper()
	switch expected := expected.(type) {
	case int:
		if err := testIntObject(int64(expected), actual); err != nil {
			t.Errorf("%q: testIntObject failed: %s", input, err)
		}
	case bool:
		if err := testBoolObject(expected, actual); err != nil {
			t.Errorf("%q: testBoolObject failed: %s", input, err)
		}
	case string:
		if err := testStringObject(expected, actual); err != nil {
			t.Errorf("%q: testStringObject failed: %s", input, err)
		}
	case []int:
		array, ok := actual.(*object.Array)
		if !ok {
			t.Errorf("%q: object not Array, got %T (%+v)", input, actual, actual)
			return
		}
		if len(array.Elements) != len(expected) {
			t.Errorf("%q: wrong number of elements. want=%d, got=%d", input, len(expected), len(array.Elements))
			return
		}
		for i, el := range expected {
			if err := testIntObject(int64(el), array.Elements[i]); err != nil {
				t.Errorf("%q: element %d: %s", input, i, err)
			}
		}
	case nil:
		if actual != object.NULL {
			t.Errorf("%q: object not NULL, got %T (%+v)", input, actual, actual)
		}
	case *object.Error:
		errObj, ok := actual.(*object.Error)
		if !ok {
			t.Errorf("%q: object not Error, got %T (%+v)", input, actual, actual)
			return
		}
		if errObj.Message != expected.Message {
			t.Errorf("%q: wrong error message. want=%q, got=%q", input, expected.Message, errObj.Message)
		}
	default:
		t.Errorf("%q: unhandled expected type %T", input, expected)
	}
}

func testIntObject(expected int64, actual object.Value) error {
	result, ok := actual.(*object.Int)
	if !ok {
		return fmt.Errorf("object is not Int, got %T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%d, want=%d", result.Value, expected)
	}
	return nil
}

func testBoolObject(expected bool, actual object.Value) error {
	result, ok := actual.(*object.Bool)
	if !ok {
		return fmt.Errorf("object is not Bool, got %T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%t, want=%t", result.Value, expected)
	}
	return nil
}

func testStringObject(expected string, actual object.Value) error {
	result, ok := actual.(*object.String)
	if !ok {
		return fmt.Errorf("object is not String, got %T (%+v)", actual, actual)
	}
	if result.Value != expected {
		return fmt.Errorf("object has wrong value. got=%q, want=%q", result.Value, expected)
	}
	return nil
}

func TestIntegerArithmetic(t *testing.T) {
	tests := []vmTestCase{
		{"1", 1},
		{"2", 2},
		{"1 + 2", 3},
		{"1 - 2", -1},
		{"1 * 2", 2},
		{"4 / 2", 2},
		{"50 / 2 * 2 + 10 - 5", 55},
		{"5 + 5 + 5 + 5 - 10", 10},
		{"2 * 2 * 2 * 2 * 2", 32},
		{"5 * 2 + 10", 20},
		{"5 + 2 * 10", 25},
		{"5 * (2 + 10)", 60},
		{"-5", -5},
		{"-10", -10},
		{"-50 + 100 + -50", 0},
		{"(5 + 10 * 2 + 15 / 3) * 2 + -10", 50},
	}
	runVMTests(t, tests)
}

func TestBooleanExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"true", true},
		{"false", false},
		{"1 < 2", true},
		{"1 > 2", false},
		{"1 < 1", false},
		{"1 > 1", false},
		{"1 == 1", true},
		{"1 != 1", false},
		{"1 == 2", false},
		{"1 != 2", true},
		{"1 <= 1", true},
		{"2 >= 1", true},
		{"true == true", true},
		{"false == false", true},
		{"true == false", false},
		{"true != false", true},
		{"(1 < 2) == true", true},
		{"(1 < 2) == false", false},
		{"!true", false},
		{"!false", true},
		{"!5", false},
		{"!!true", true},
		{"!!5", true},
		{"true && true", true},
		{"true && false", false},
		{"false || true", true},
		{"false || false", false},
	}
	runVMTests(t, tests)
}

func TestConditionals(t *testing.T) {
	tests := []vmTestCase{
		{"if true { 10 }", 10},
		{"if true { 10 } else { 20 }", 10},
		{"if false { 10 } else { 20 }", 20},
		{"if 1 < 2 { 10 }", 10},
		{"if 1 > 2 { 10 }", nil},
		{"if false { 10 }", nil},
	}
	runVMTests(t, tests)
}

func TestGlobalLetStatements(t *testing.T) {
	tests := []vmTestCase{
		{"let one = 1; one", 1},
		{"let one = 1; let two = one + one; one + two", 3},
		{"let one = 1; let two = one + one; let three = one + two; three", 3},
	}
	runVMTests(t, tests)
}

func TestStringExpressions(t *testing.T) {
	tests := []vmTestCase{
		{`"monkey"`, "monkey"},
		{`"mon" + "key"`, "monkey"},
		{`"mon" + "key" + "banana"`, "monkeybanana"},
	}
	runVMTests(t, tests)
}

func TestArrayLiterals(t *testing.T) {
	tests := []vmTestCase{
		{"[]", []int{}},
		{"[1, 2, 3]", []int{1, 2, 3}},
		{"[1 + 2, 3 * 4, 5 + 6]", []int{3, 12, 11}},
	}
	runVMTests(t, tests)
}

func TestIndexExpressions(t *testing.T) {
	tests := []vmTestCase{
		{"[1, 2, 3][1]", 2},
		{"[1, 2, 3][0 + 2]", 3},
		{"[[1, 1, 1]][0][0]", 1},
		{"[][0]", nil},
		{"[1, 2, 3][99]", nil},
		{"[1][-1]", nil},
	}
	runVMTests(t, tests)
}

func TestHashLiterals(t *testing.T) {
	tests := []vmTestCase{
		{`{"a": 1, "b": 2}["a"]`, 1},
		{`{1: 1, 2: 2}[2]`, 2},
		{`{}["a"]`, nil},
		{`{1: 1}[0]`, nil},
	}
	runVMTests(t, tests)
}

func TestCallingFunctions(t *testing.T) {
	tests := []vmTestCase{
		{
			input:    `let fivePlusTen = fn() { 5 + 10; }; fivePlusTen();`,
			expected: 15,
		},
		{
			input:    `let one = fn() { 1; }; let two = fn() { 2; }; one() + two()`,
			expected: 3,
		},
		{
			input:    `let a = fn() { 1; }; let b = fn() { a() + 1; }; let c = fn() { b() + 1; }; c();`,
			expected: 3,
		},
		{
			input:    `let earlyExit = fn() { return 99; 100; }; earlyExit();`,
			expected: 99,
		},
		{
			input:    `let noReturn = fn() { };  noReturn();`,
			expected: nil,
		},
		{
			input:    `let identity = fn(a) { a; }; identity(4);`,
			expected: 4,
		},
		{
			input:    `let sum = fn(a, b) { a + b; }; sum(1, 2);`,
			expected: 3,
		},
		{
			input: `
			let sum = fn(a, b) {
				let c = a + b;
				c;
			};
			sum(1, 2) + sum(3, 4);`,
			expected: 10,
		},
	}
	runVMTests(t, tests)
}

func TestRecursiveFibonacci(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let fib = fn(n) {
				if n < 2 {
					return n;
				}
				return fib(n - 1) + fib(n - 2);
			};
			fib(10);`,
			expected: 55,
		},
	}
	runVMTests(t, tests)
}

func TestClosures(t *testing.T) {
	tests := []vmTestCase{
		{
			input: `
			let newAdder = fn(a, b) {
				fn(c) { a + b + c };
			};
			let addTwo = newAdder(1, 1);
			addTwo(3);`,
			expected: 5,
		},
		{
			input: `
			let newAdderOuter = fn(a, b) {
				let c = a + b;
				fn(d) {
					let e = d + c;
					fn(f) { e + f; };
				};
			};
			let newAdderInner = newAdderOuter(1, 2);
			let adder = newAdderInner(3);
			adder(8);`,
			expected: 14,
		},
	}
	runVMTests(t, tests)
}

func TestBuiltinFunctions(t *testing.T) {
	tests := []vmTestCase{
		{`len("")`, 0},
		{`len("four")`, 4},
		{`len("hello world")`, 11},
		{`len([1, 2, 3])`, 3},
		{`len([])`, 0},
		{`len(1)`, &object.Error{Message: "argument to `len` not supported, got INT"}},
		{`len("one", "two")`, &object.Error{Message: "wrong number of arguments. got=2, want=1"}},
	}
	runVMTests(t, tests)
}

func TestArrayBuiltinFunctions(t *testing.T) {
	tests := []vmTestCase{
		{`first([1, 2, 3])`, 1},
		{`first([])`, nil},
		{`first(1)`, &object.Error{Message: "argument to `first` must be ARRAY, got INT"}},
		{`first([1], [2])`, &object.Error{Message: "wrong number of arguments. got=2, want=1"}},

		{`last([1, 2, 3])`, 3},
		{`last([])`, nil},
		{`last(1)`, &object.Error{Message: "argument to `last` must be ARRAY, got INT"}},

		{`rest([1, 2, 3])`, []int{2, 3}},
		{`rest([3])`, []int{}},
		{`rest([])`, nil},
		{`rest(1)`, &object.Error{Message: "argument to `rest` must be ARRAY, got INT"}},

		{`push([1, 2, 3], 4)`, []int{1, 2, 3, 4}},
		{`push([], 1)`, []int{1}},
		{`push(1, 1)`, &object.Error{Message: "argument to `push` must be ARRAY, got INT"}},
		{`push([1], 2, 3)`, &object.Error{Message: "wrong number of arguments. got=3, want=2"}},
	}
	runVMTests(t, tests)
}

// TestPushDoesNotMutateOriginalArray exercises spec.md's scenario: push
// returns a new array and leaves the original binding untouched.
func TestPushDoesNotMutateOriginalArray(t *testing.T) {
	tests := []vmTestCase{
		{`let a = [1, 2, 3]; push(a, 4); a;`, []int{1, 2, 3}},
		{`let a = [1, 2, 3]; let b = push(a, 4); b;`, []int{1, 2, 3, 4}},
		{`let a = []; let b = push(a, 1); let c = push(a, 2); [len(a), len(b), len(c)];`, []int{0, 1, 1}},
	}
	runVMTests(t, tests)
}

func TestCallingFunctionsWithWrongArguments(t *testing.T) {
	stmts := parseProgram(t, `let f = fn(a, b) { a + b }; f(1);`)
	comp := compiler.New()
	if err := comp.Compile(stmts); err != nil {
		t.Fatalf("compiler error: %s", err)
	}
	machine := New(comp.Bytecode())
	err := machine.Run()
	if err == nil {
		t.Fatalf("expected a runtime error for wrong argument count, got none")
	}
}
