package codegen

import (
	"strings"
	"testing"

	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

func sizeOfU8(types.Type) (uint32, error) { return 1, nil }

func noClasses(string) (*symtab.ClassEntry, bool) { return nil, false }

func opLiteral(n int64) tac.Operand {
	return tac.Operand{Name: "", IntVal: n, Permutation: tac.Literal, Type: types.Type{Basic: types.U8}}
}

func opVar(name string) tac.Operand {
	return tac.Operand{Name: name, Permutation: tac.Standard, Type: types.Type{Basic: types.U8}}
}

// buildSimpleFunction constructs "u8 add(u8 a, u8 b) { return a + b; }":
// one argument pair, one temp, one add line, one return line.
func buildSimpleFunction(t *testing.T) *symtab.FunctionEntry {
	t.Helper()
	global := symtab.NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("add", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn.MainScope.CreateVariable("a", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8); err != nil {
		t.Fatal(err)
	}
	if _, err := fn.MainScope.CreateVariable("b", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8); err != nil {
		t.Fatal(err)
	}

	block := tac.NewBasicBlock(0)
	block.Append(&tac.Line{
		Op:    tac.OpAdd,
		Index: 0,
		Operands: [4]tac.Operand{
			opVar(".0"), opVar("a"), opVar("b"),
		},
	})
	block.Append(&tac.Line{
		Op:    tac.OpReturn,
		Index: 1,
		Operands: [4]tac.Operand{
			opVar(".0"),
		},
	})
	fn.Blocks = []*tac.BasicBlock{block}
	return fn
}

func TestEmitFunctionProducesPrologueAndEpilogue(t *testing.T) {
	var buf strings.Builder
	gen := New(&buf, noClasses)
	fn := buildSimpleFunction(t)

	if err := gen.EmitFunction(fn); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if !strings.Contains(out, "add:") {
		t.Errorf("missing function label, got:\n%s", out)
	}
	if !strings.Contains(out, "mv fp, sp") {
		t.Errorf("missing frame-pointer setup, got:\n%s", out)
	}
	if !strings.Contains(out, "add_done:") {
		t.Errorf("missing done label, got:\n%s", out)
	}
	if !strings.Contains(out, "jalr zero, 0(ra)") {
		t.Errorf("missing return jump, got:\n%s", out)
	}
	if !strings.Contains(out, "\tadd ") {
		t.Errorf("missing add instruction, got:\n%s", out)
	}
}

func TestEmitFunctionAsmShortCircuit(t *testing.T) {
	var buf strings.Builder
	gen := New(&buf, noClasses)

	global := symtab.NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("raw", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	fn.IsAsmFun = true
	block := tac.NewBasicBlock(0)
	block.Append(&tac.Line{Op: tac.OpAsm, Index: 0, Operands: [4]tac.Operand{{Name: "nop"}}})
	fn.Blocks = []*tac.BasicBlock{block}

	if err := gen.EmitFunction(fn); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "\tnop") {
		t.Errorf("expected raw asm line to pass through verbatim, got:\n%s", out)
	}
	// The only stack decrements are the ra and fp prologue pushes.
	if strings.Count(out, "addi sp, sp, -") != 2 {
		t.Errorf("asm functions should not allocate local stack space, got:\n%s", out)
	}
}

func TestEmitGlobalBlockHasNoPrologueOrTerminator(t *testing.T) {
	var buf strings.Builder
	gen := New(&buf, noClasses)

	global := symtab.NewScope(nil, nil, "global")
	if _, err := global.CreateVariable("x", types.Type{Basic: types.U8}, true, 0, false, sizeOfU8); err != nil {
		t.Fatal(err)
	}

	block := tac.NewBasicBlock(0)
	block.Append(&tac.Line{
		Op:    tac.OpAssign,
		Index: 0,
		Operands: [4]tac.Operand{
			opVar("x"), opLiteral(1),
		},
	})

	if err := gen.EmitGlobalBlock(block, global, "userstart"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	if strings.Contains(out, "ra") {
		t.Errorf("global block should not save/restore ra, got:\n%s", out)
	}
	if strings.Contains(out, "jalr") {
		t.Errorf("global block should not emit a jalr terminator, got:\n%s", out)
	}
	if !strings.Contains(out, "la ") {
		t.Errorf("expected a global-address load for x, got:\n%s", out)
	}
}
