package bytecode

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		op       OpCode
		operands []int
		expected []byte
	}{
		{OpConstant, []int{65534}, []byte{byte(OpConstant), 255, 254}},
		{OpAdd, []int{}, []byte{byte(OpAdd)}},
		{OpGetLocal, []int{255}, []byte{byte(OpGetLocal), 255}},
		{OpClosure, []int{65534, 255}, []byte{byte(OpClosure), 255, 254, 255}},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)
		if len(instruction) != len(tt.expected) {
			t.Fatalf("instruction has wrong length. want=%d, got=%d", len(tt.expected), len(instruction))
		}
		for i, b := range tt.expected {
			if instruction[i] != b {
				t.Errorf("wrong byte at pos %d. want=%d, got=%d", i, b, instruction[i])
			}
		}
	}
}

func TestReadOperands(t *testing.T) {
	tests := []struct {
		op        OpCode
		operands  []int
		bytesRead int
	}{
		{OpConstant, []int{65535}, 2},
		{OpGetLocal, []int{255}, 1},
		{OpClosure, []int{65535, 255}, 3},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)

		def, err := Lookup(byte(tt.op))
		if err != nil {
			t.Fatalf("definition not found: %q", err)
		}

		operandsRead, n := ReadOperands(def, Instructions(instruction[1:]))
		if n != tt.bytesRead {
			t.Fatalf("n wrong. want=%d, got=%d", tt.bytesRead, n)
		}

		for i, want := range tt.operands {
			if operandsRead[i] != want {
				t.Errorf("operand wrong. want=%d, got=%d", want, operandsRead[i])
			}
		}
	}
}

// Encoding round-trip: decode(encode(op, ops)) == (op, ops) for every
// opcode/operand-tuple pair in the registry.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := map[OpCode][]int{
		OpConstant:       {1234},
		OpAdd:            {},
		OpSub:            {},
		OpMul:            {},
		OpDiv:            {},
		OpTrue:           {},
		OpFalse:          {},
		OpEqual:          {},
		OpNotEqual:       {},
		OpGreaterThan:    {},
		OpMinus:          {},
		OpBang:           {},
		OpJumpNotTruthy:  {4000},
		OpJump:           {4000},
		OpNull:           {},
		OpSetGlobal:      {42},
		OpGetGlobal:      {42},
		OpSetLocal:       {9},
		OpGetLocal:       {9},
		OpGetBuiltin:     {3},
		OpGetFree:        {2},
		OpCurrentClosure: {},
		OpArray:          {3},
		OpHash:           {6},
		OpIndex:          {},
		OpCall:           {2},
		OpReturnValue:    {},
		OpReturn:         {},
		OpClosure:        {10, 2},
		OpPop:            {},
	}

	for op, operands := range cases {
		encoded := Make(op, operands...)
		def, err := Lookup(encoded[0])
		if err != nil {
			t.Fatalf("%v: lookup failed: %s", op, err)
		}
		decoded, n := ReadOperands(def, Instructions(encoded[1:]))
		if n != len(encoded)-1 {
			t.Fatalf("%v: consumed %d bytes, want %d", op, n, len(encoded)-1)
		}
		if len(decoded) != len(operands) {
			t.Fatalf("%v: decoded %d operands, want %d", op, len(decoded), len(operands))
		}
		for i := range operands {
			if decoded[i] != operands[i] {
				t.Errorf("%v: operand %d = %d, want %d", op, i, decoded[i], operands[i])
			}
		}
	}
}

func TestInstructionsString(t *testing.T) {
	instructions := []Instructions{
		Make(OpAdd),
		Make(OpGetLocal, 1),
		Make(OpConstant, 2),
		Make(OpConstant, 65535),
	}

	concatted := Instructions{}
	for _, ins := range instructions {
		concatted = append(concatted, ins...)
	}

	expected := `0000 OpAdd
0001 OpGetLocal 1
0003 OpConstant 2
0006 OpConstant 65535
`

	if concatted.String() != expected {
		t.Errorf("instructions wrongly formatted.\nwant=%q\ngot=%q", expected, concatted.String())
	}
}

// Disassembly stability, per the specification's concrete scenario.
func TestDisassemblyStability(t *testing.T) {
	concatted := Instructions{}
	concatted = append(concatted, Make(OpConstant, 65535)...)
	concatted = append(concatted, Make(OpAdd)...)
	concatted = append(concatted, Make(OpGetLocal, 1)...)

	expected := "0000 OpConstant 65535\n0003 OpAdd\n0004 OpGetLocal 1\n"
	if concatted.String() != expected {
		t.Errorf("want=%q got=%q", expected, concatted.String())
	}
}

func TestPatch(t *testing.T) {
	ins := Instructions(Make(OpJump, 9999))
	ins.Patch(0, Make(OpJump, 10))

	def, _ := Lookup(ins[0])
	operands, _ := ReadOperands(def, ins[1:])
	if operands[0] != 10 {
		t.Errorf("patched operand = %d, want 10", operands[0])
	}
}

func TestLookupUndefined(t *testing.T) {
	if _, err := Lookup(255); err == nil {
		t.Error("expected an error for an undefined opcode")
	}
}
