package linearizer

import (
	"testing"

	"classicalc/internal/ast"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
)

// node builds an AST node with the given children linked via
// FirstChild/NextSibling, matching the shape the (out-of-scope)
// parser hands the linearizer.
func node(kind ast.TokenKind, value string, children ...*ast.Node) *ast.Node {
	n := &ast.Node{Kind: kind, ValueStr: value}
	var prev *ast.Node
	for _, c := range children {
		if prev == nil {
			n.FirstChild = c
		} else {
			prev.NextSibling = c
		}
		prev = c
	}
	return n
}

func ident(name string) *ast.Node { return node(ast.TIdentifier, name) }
func number(v string) *ast.Node   { return node(ast.TNumber, v) }

// decl builds a `Type name;`-shaped TDecl node.
func decl(typeNode *ast.Node, name string) *ast.Node {
	return node(ast.TDecl, "", typeNode, ident(name))
}

func u8() *ast.Node { return node(ast.TU8, "") }

// buildAddProgram constructs the AST for:
//
//	u8 counter;
//	fun u8 add(u8 a, u8 b) {
//	  return a + b;
//	}
func buildAddProgram() *ast.Node {
	globalDecl := decl(u8(), "counter")

	argA := node(ast.TParam, "a", u8())
	argB := node(ast.TParam, "b", u8())
	argList := node(ast.TArgList, "", argA, argB)

	sum := node(ast.TPlus, "", ident("a"), ident("b"))
	ret := node(ast.TReturn, "", sum)
	body := node(ast.TBlock, "", ret)

	fn := node(ast.TFunDecl, "add", u8(), argList, body)

	return node(ast.TProgram, "", globalDecl, fn)
}

func TestBuildProgramDeclaresGlobalAndFunction(t *testing.T) {
	prog, err := BuildProgram(buildAddProgram())
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}

	if _, ok := prog.Global.Lookup("counter"); !ok {
		t.Error("expected global variable counter to be declared")
	}

	member, ok := prog.Global.Lookup("add")
	if !ok || member.Kind != symtab.KindFunction {
		t.Fatal("expected function add to be declared")
	}
	fn := member.Function
	if !fn.IsDefined {
		t.Error("add should be marked defined, it has a body")
	}
	if len(fn.Arguments) != 2 {
		t.Fatalf("expected 2 arguments, got %d", len(fn.Arguments))
	}
	if len(fn.Blocks) == 0 || len(fn.Blocks[0].TAC) == 0 {
		t.Fatal("expected add's entry block to contain lowered TAC")
	}

	foundAdd, foundReturn := false, false
	for _, line := range fn.Blocks[0].TAC {
		switch line.Op {
		case tac.OpAdd:
			foundAdd = true
		case tac.OpReturn:
			foundReturn = true
		}
	}
	if !foundAdd {
		t.Error("expected an add TAC line for 'a + b'")
	}
	if !foundReturn {
		t.Error("expected a return TAC line")
	}
}

func TestBuildProgramReservesUserStartAndAsmBlocks(t *testing.T) {
	prog, err := BuildProgram(buildAddProgram())
	if err != nil {
		t.Fatalf("BuildProgram: %v", err)
	}
	if prog.UserStart == nil || prog.UserStart.LabelNum != 0 {
		t.Error("expected UserStart to be reserved block label 0")
	}
	if prog.GlobalAsmBlk == nil || prog.GlobalAsmBlk.LabelNum != 1 {
		t.Error("expected GlobalAsmBlk to be reserved block label 1")
	}
}

func TestBuildProgramRejectsConflictingPrototype(t *testing.T) {
	protoArgs := node(ast.TArgList, "")
	proto := node(ast.TFunDecl, "f", u8(), protoArgs)

	defArgs := node(ast.TArgList, "")
	body := node(ast.TBlock, "")
	def := node(ast.TFunDecl, "f", node(ast.TU16, ""), defArgs, body)

	root := node(ast.TProgram, "", proto, def)

	if _, err := BuildProgram(root); err == nil {
		t.Fatal("expected conflicting prototype/definition to be rejected")
	}
}
