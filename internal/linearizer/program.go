package linearizer

import (
	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// Program is the linearized output of one whole-program compile: the
// global scope (holding hoisted functions, classes, globals, and the
// two reserved global basic blocks) plus every function's flattened,
// monotonicity-checked TAC.
type Program struct {
	Global       *symtab.Scope
	UserStart    *tac.BasicBlock // label 0: global initialization code
	GlobalAsmBlk *tac.BasicBlock // label 1: global inline-asm lines
}

// BuildProgram walks a whole top-level AST (root.Kind == ast.TProgram)
// in a two-pass hoisting style, grounded in the teacher's
// collect-then-compile pattern: pass one declares every class and
// function so forward references resolve, pass two compiles function
// bodies and top-level statements.
func BuildProgram(root *ast.Node) (*Program, error) {
	global := symtab.NewScope(nil, nil, "global")
	classLookup := func(name string) (*symtab.ClassEntry, bool) { return global.LookupClass(name) }

	userStart := tac.NewBasicBlock(0)
	if err := global.AddBasicBlock(userStart); err != nil {
		return nil, errors.NewInternal(errors.Position{}, "global-block-reservation", "%v", err)
	}
	globalAsm := tac.NewBasicBlock(1)
	if err := global.AddBasicBlock(globalAsm); err != nil {
		return nil, errors.NewInternal(errors.Position{}, "global-block-reservation", "%v", err)
	}

	decls := root.Children()

	// Pass 1: declare every class and function prototype/definition
	// signature before compiling any body, so mutually recursive and
	// forward-referencing calls resolve.
	for _, n := range decls {
		switch n.Kind {
		case ast.TClassDecl:
			if err := declareClass(global, n); err != nil {
				return nil, err
			}
		case ast.TFunDecl:
			if err := declareFunction(global, classLookup, n); err != nil {
				return nil, err
			}
		}
	}

	strings := map[string]*symtab.VariableEntry{}
	topLevel := globalFB(global, classLookup, strings, userStart)

	// Pass 2: compile function bodies and top-level declarations and
	// statements in source order (global asm blocks are routed to block 1).
	for _, n := range decls {
		switch n.Kind {
		case ast.TFunDecl:
			if bodyNode(n) == nil {
				continue // prototype only, nothing to compile
			}
			member, _ := global.Lookup(n.ValueStr)
			fn := member.Function
			fb, err := NewFunctionBuilder(fn, classLookup, global, strings)
			if err != nil {
				return nil, err
			}
			if err := fb.walkStatement(bodyNode(n)); err != nil {
				return nil, err
			}
			if ok, bad := tac.CheckMonotonic(flattenBlocks(fn)); !ok {
				return nil, errors.NewInternal(pos(n), "tac-monotonic-index", "function %q: TAC index %d is not monotonic", fn.Name, bad)
			}
		case ast.TClassDecl:
			// already fully handled in pass 1.
		default:
			if err := topLevel.walkTopLevel(n, userStart, globalAsm); err != nil {
				return nil, err
			}
		}
	}

	return &Program{Global: global, UserStart: userStart, GlobalAsmBlk: globalAsm}, nil
}

func bodyNode(funDecl *ast.Node) *ast.Node {
	return funDecl.Child(2)
}

// declareClass builds a class's member scope and computed layout and
// registers it at global scope.
func declareClass(global *symtab.Scope, n *ast.Node) error {
	members := symtab.NewScope(global, nil, n.ValueStr)
	var vars []*symtab.VariableEntry
	for _, member := range n.Children() {
		typeNode := member.Child(0)
		baseType, err := resolveBaseTypeStandalone(typeNode)
		if err != nil {
			return err
		}
		for _, d := range member.Children()[1:] {
			name, indirection, arraySize, declAt := parseDeclarator(d)
			t := baseType
			t.Indirection = indirection
			t.ArraySize = arraySize
			v, err := members.CreateVariable(name, t, false, 0, false, func(ty types.Type) (uint32, error) {
				return types.SizeOf(ty, func(cn string) (types.ClassLayout, bool) { return global.LookupClass(cn) })
			})
			if err != nil {
				return errors.NewCode(pos(declAt), "%v", err)
			}
			vars = append(vars, v)
		}
	}
	offsets, size, err := symtab.LayoutClassMembers(vars, func(ty types.Type) (uint32, error) {
		return types.SizeOf(ty, func(cn string) (types.ClassLayout, bool) { return global.LookupClass(cn) })
	})
	if err != nil {
		return err
	}
	_, err = global.CreateClass(n.ValueStr, members, offsets, size)
	return err
}

// declareFunction registers a function's signature, reconciling
// against an existing prototype when one was already declared, and
// populates its argument list the first time the signature is seen.
func declareFunction(global *symtab.Scope, classes func(string) (*symtab.ClassEntry, bool), n *ast.Node) error {
	returnType, err := resolveBaseTypeStandalone(n.Child(0))
	if err != nil {
		return err
	}
	argList := n.Child(1).Children()
	argTypesList := make([]types.Type, 0, len(argList))
	for _, a := range argList {
		t, err := resolveBaseTypeStandalone(a.Child(0))
		if err != nil {
			return err
		}
		argTypesList = append(argTypesList, t)
	}

	existing, existed := global.Lookup(n.ValueStr)
	fn, err := global.CreateFunction(n.ValueStr, returnType, n)
	if err != nil {
		return err
	}
	if existed && existing.Kind == symtab.KindFunction {
		if err := symtab.ReconcileFunction(fn, returnType, argTypesList, pos(n)); err != nil {
			return err
		}
	} else {
		sizeOf := func(ty types.Type) (uint32, error) {
			return types.SizeOf(ty, func(cn string) (types.ClassLayout, bool) { return classes(cn) })
		}
		for i, a := range argList {
			if _, err := fn.MainScope.CreateVariable(a.ValueStr, argTypesList[i], false, 0, true, sizeOf); err != nil {
				return errors.NewCode(pos(a), "%v", err)
			}
		}
	}

	body := bodyNode(n)
	if body != nil {
		fn.IsDefined = true
		if len(body.Children()) == 1 && body.Child(0).Kind == ast.TAsm {
			fn.IsAsmFun = true
		}
	}
	return nil
}

func resolveBaseTypeStandalone(n *ast.Node) (types.Type, error) {
	switch n.Kind {
	case ast.TVoid:
		return types.Type{Basic: types.Null}, nil
	case ast.TU8:
		return types.Type{Basic: types.U8}, nil
	case ast.TU16:
		return types.Type{Basic: types.U16}, nil
	case ast.TU32:
		return types.Type{Basic: types.U32}, nil
	case ast.TClass:
		return types.Type{Basic: types.Class, ClassName: n.ValueStr}, nil
	default:
		return types.Type{}, errors.NewCode(pos(n), "expected a type name")
	}
}

func flattenBlocks(fn *symtab.FunctionEntry) []*tac.Line {
	var all []*tac.Line
	for _, b := range fn.Blocks {
		all = append(all, b.TAC...)
	}
	return all
}

// globalBuilder is a FunctionBuilder rooted at the global scope, used
// to compile top-level declarations, statements, and asm blocks. It is
// never attached to a real FunctionEntry: return statements cannot
// occur at global scope, so fb.fn is only a placeholder carrying a
// Null return type.
func globalFB(global *symtab.Scope, classes func(string) (*symtab.ClassEntry, bool), strings map[string]*symtab.VariableEntry, userStart *tac.BasicBlock) *FunctionBuilder {
	placeholder := &symtab.FunctionEntry{Name: "", ReturnType: types.Type{Basic: types.Null}, MainScope: global}
	return &FunctionBuilder{
		fn:       placeholder,
		scope:    global,
		block:    userStart,
		labelNum: 2,
		classes:  classes,
		strings:  strings,
		globals:  global,
	}
}

// walkTopLevel lowers one top-level non-class, non-function node: a
// declaration is registered as a global variable; a TAsm block is
// routed to the reserved global asm block (label 1); anything else is
// ordinary user-initialization code, routed to block 0.
func (fb *FunctionBuilder) walkTopLevel(n *ast.Node, userStart, globalAsm *tac.BasicBlock) error {
	if n.Kind == ast.TAsm {
		fb.block = globalAsm
		err := fb.walkAsmBlock(n)
		fb.block = userStart
		return err
	}
	if n.Kind == ast.TDecl {
		return fb.walkDeclaration(n, true)
	}
	return fb.walkStatement(n)
}
