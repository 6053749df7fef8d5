package export

import (
	"strings"
	"testing"

	"classicalc/internal/codegen"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

func sizeOfU8(types.Type) (uint32, error) { return 1, nil }

func noClasses(string) (*symtab.ClassEntry, bool) { return nil, false }

func TestFrameWrapsFunctionsVariablesAndGlobalSections(t *testing.T) {
	global := symtab.NewScope(nil, nil, "global")

	if _, err := global.CreateVariable("counter", types.Type{Basic: types.U8}, true, 0, false, sizeOfU8); err != nil {
		t.Fatal(err)
	}

	fn, err := global.CreateFunction("identity", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn.MainScope.CreateVariable("a", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8); err != nil {
		t.Fatal(err)
	}
	fn.IsDefined = true
	block := tac.NewBasicBlock(0)
	block.Append(&tac.Line{
		Op:    tac.OpReturn,
		Index: 0,
		Operands: [4]tac.Operand{
			{Name: "a", Permutation: tac.Standard, Type: types.Type{Basic: types.U8}},
		},
	})
	fn.Blocks = []*tac.BasicBlock{block}

	userStart := tac.NewBasicBlock(0)
	globalAsm := tac.NewBasicBlock(1)
	globalAsm.Append(&tac.Line{Op: tac.OpAsm, Index: 0, Operands: [4]tac.Operand{{Name: "wfi"}}})

	var buf strings.Builder
	gen := codegen.New(&buf, noClasses)

	if err := Frame(&buf, global, userStart, globalAsm, gen); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"~export variable counter",
		"~end export variable counter",
		"~export funcdef identity",
		"~end export funcdef identity",
		"~export section userstart",
		"~end export section userstart",
		"~export section asm",
		"\twfi",
		"~end export section asm",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestFrameFunctionDeclarationOnlyHasNoBody(t *testing.T) {
	global := symtab.NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("proto", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	gen := codegen.New(&buf, noClasses)
	if err := frameFunction(&buf, fn, gen); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "~export funcdec proto") {
		t.Errorf("undefined function should be framed as funcdec, got:\n%s", out)
	}
	if strings.Contains(out, "proto:") {
		t.Errorf("undefined function should not emit a body, got:\n%s", out)
	}
}
