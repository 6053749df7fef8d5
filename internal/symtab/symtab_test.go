package symtab

import (
	"strings"
	"testing"

	"classicalc/internal/tac"
	"classicalc/internal/types"
)

func sizeOfU8(types.Type) (uint32, error) { return 1, nil }

func TestInsertRejectsDuplicate(t *testing.T) {
	s := NewScope(nil, nil, "global")
	if err := s.Insert(&ScopeMember{Name: "x", Kind: KindVariable}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(&ScopeMember{Name: "x", Kind: KindVariable}); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}
}

func TestCreateSubScopeNaming(t *testing.T) {
	global := NewScope(nil, nil, "global")
	first, err := global.CreateSubScope()
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "00" {
		t.Errorf("first sub-scope name = %q, want 00", first.Name)
	}
	second, _ := global.CreateSubScope()
	if second.Name != "01" {
		t.Errorf("second sub-scope name = %q, want 01", second.Name)
	}
}

func TestCreateSubScopeRejectsOver255(t *testing.T) {
	global := NewScope(nil, nil, "global")
	global.SubScopeCount = 0xff
	if _, err := global.CreateSubScope(); err == nil {
		t.Fatal("expected sub-scope count over 255 to be rejected")
	}
}

func TestArgumentStackOffsetsAccumulate(t *testing.T) {
	global := NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("add", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := fn.MainScope.CreateVariable("a", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fn.MainScope.CreateVariable("b", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8)
	if err != nil {
		t.Fatal(err)
	}
	if a.StackOffset != 8 {
		t.Errorf("first argument offset = %d, want 8", a.StackOffset)
	}
	if b.StackOffset != 9 {
		t.Errorf("second argument offset = %d, want 9", b.StackOffset)
	}
	if fn.ArgStackSize != 2 {
		t.Errorf("argStackSize = %d, want 2", fn.ArgStackSize)
	}
	if !a.IsAssigned || a.AssignedAt != 0 {
		t.Error("arguments should be immediately assigned at index 0")
	}
}

func TestLayoutClassMembersAlignment(t *testing.T) {
	memberA := &VariableEntry{Name: "a", Type: types.Type{Basic: types.U8}}
	memberB := &VariableEntry{Name: "b", Type: types.Type{Basic: types.U16}}
	offsets, total, err := LayoutClassMembers([]*VariableEntry{memberA, memberB}, func(t types.Type) (uint32, error) {
		return types.SizeOf(t, nil)
	})
	if err != nil {
		t.Fatal(err)
	}
	if offsets["a"].Offset != 0 {
		t.Errorf("a offset = %d, want 0", offsets["a"].Offset)
	}
	if offsets["b"].Offset != 2 {
		t.Errorf("b offset = %d, want 2 (aligned)", offsets["b"].Offset)
	}
	if total != 4 {
		t.Errorf("total size = %d, want 4", total)
	}
}

func TestMangleIsStable(t *testing.T) {
	in := NewInterner()
	a := Mangle(in, "00", "x")
	b := Mangle(in, "00", "x")
	if a != b {
		t.Fatalf("Mangle should be stable: %q != %q", a, b)
	}
	if a != "00_x" {
		t.Errorf("Mangle(00,x) = %q, want 00_x", a)
	}
}

func TestInternerReuse(t *testing.T) {
	in := NewInterner()
	a := in.Intern("hello")
	b := in.Intern("hello")
	if a != b {
		t.Fatal("re-interning should return the same canonical string")
	}
}

// TestCollapseScopesFlattensNestedVariable builds mainScope -> subscope
// "00" containing a local variable "x" referenced in a block owned by
// "00", then checks that after collapse the mangled name "00_x" is
// reachable from mainScope.Lookup directly (testable property #3) and
// that "00" itself has been dissolved out of mainScope's entries.
func TestCollapseScopesFlattensNestedVariable(t *testing.T) {
	global := NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("f", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := fn.MainScope.CreateSubScope()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sub.CreateVariable("x", types.Type{Basic: types.U8}, false, 1, false, sizeOfU8); err != nil {
		t.Fatal(err)
	}
	block := tac.NewBasicBlock(0)
	block.Append(&tac.Line{
		Op:    tac.OpAssign,
		Index: 0,
		Operands: [4]tac.Operand{
			{Name: "x", Permutation: tac.Standard},
			{Name: "1", Permutation: tac.Literal},
		},
	})
	if err := sub.AddBasicBlock(block); err != nil {
		t.Fatal(err)
	}

	in := NewInterner()
	CollapseScopes(in, global)

	if block.TAC[0].D().Name != "00_x" {
		t.Errorf("operand name after collapse = %q, want 00_x", block.TAC[0].D().Name)
	}
	if _, ok := fn.MainScope.Lookup("00_x"); !ok {
		t.Fatal("00_x should be reachable from mainScope after collapse")
	}
	for _, m := range fn.MainScope.Entries {
		if m.Kind == KindScope {
			t.Errorf("mainScope should not retain a sub-scope husk after collapse, found %q", m.Name)
		}
	}
}

func TestScopeDumpListsVariablesAndFunctions(t *testing.T) {
	global := NewScope(nil, nil, "global")
	if _, err := global.CreateVariable("g", types.Type{Basic: types.U8}, true, 0, false, sizeOfU8); err != nil {
		t.Fatal(err)
	}
	fn, err := global.CreateFunction("add", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn.MainScope.CreateVariable("a", types.Type{Basic: types.U8}, false, 0, true, sizeOfU8); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	global.Dump(&buf, 0)
	out := buf.String()

	if !strings.Contains(out, `scope "global"`) {
		t.Errorf("dump should name the scope, got %q", out)
	}
	if !strings.Contains(out, "var g:") {
		t.Errorf("dump should list variable g, got %q", out)
	}
	if !strings.Contains(out, "fun add:") {
		t.Errorf("dump should list function add, got %q", out)
	}
	if !strings.Contains(out, "var a:") {
		t.Errorf("dump should recurse into the function's main scope, got %q", out)
	}
}

func TestCollapseScopesHoistsGlobalPastMainScope(t *testing.T) {
	global := NewScope(nil, nil, "global")
	fn, err := global.CreateFunction("f", types.Type{Basic: types.U8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fn.MainScope.CreateVariable("g", types.Type{Basic: types.U8}, true, 0, false, sizeOfU8); err != nil {
		t.Fatal(err)
	}

	in := NewInterner()
	CollapseScopes(in, global)

	if _, ok := global.Lookup("f_g"); !ok {
		t.Fatal("global variable declared inside a function should be hoisted to the global scope")
	}
	for _, m := range fn.MainScope.Entries {
		if m.Kind == KindVariable && m.Variable.IsGlobal {
			t.Error("global variable should not remain in mainScope after collapse")
		}
	}
}
