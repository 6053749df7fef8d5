package linearizer

import (
	"strconv"

	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/types"
)

// parseDeclarator walks a declarator AST rooted at n: zero or more
// TStar wrapper nodes (pointer levels) around either a bare TIdentifier
// leaf or a TLBracket-wrapped "name[size]" leaf, threading indirection
// level and array size through one recursive walk the way the original
// declarator parser does, rather than splitting pointer and array
// parsing into separate passes.
func parseDeclarator(n *ast.Node) (name string, indirection uint8, arraySize uint32, declaredAt *ast.Node) {
	switch n.Kind {
	case ast.TStar:
		innerName, innerIndirection, innerArray, declAt := parseDeclarator(n.Child(0))
		return innerName, innerIndirection + 1, innerArray, declAt
	case ast.TLBracket:
		ident := n.Child(0)
		sizeNode := n.Child(1)
		size := uint64(0)
		if sizeNode != nil {
			size, _ = strconv.ParseUint(sizeNode.ValueStr, 10, 32)
		}
		return ident.ValueStr, 0, uint32(size), ident
	default:
		return n.ValueStr, 0, 0, n
	}
}

// walkDeclaration lowers a `Type declarator[, declarator...];` node:
// Child(0) is the base type node, remaining children are declarators.
// Declaring a local/global of undeclared class (except via pointer) is
// a compile error, delegated to Scope_lookupClass-equivalent lookup.
func (fb *FunctionBuilder) walkDeclaration(n *ast.Node, isGlobal bool) error {
	typeNode := n.Child(0)
	baseType, err := fb.resolveBaseType(typeNode)
	if err != nil {
		return err
	}
	declarators := n.Children()[1:]
	for _, d := range declarators {
		name, indirection, arraySize, declAt := parseDeclarator(d)
		t := baseType
		t.Indirection = indirection
		t.ArraySize = arraySize
		if t.Basic == types.Class && t.Indirection == 0 {
			if _, ok := fb.classes(t.ClassName); !ok {
				return errors.NewCode(pos(declAt), "use of undeclared class %q", t.ClassName)
			}
		}
		scope := fb.scope
		if isGlobal {
			scope = fb.globals
		}
		if _, err := scope.CreateVariable(name, t, isGlobal, fb.tacIndex, false, fb.sizeOf); err != nil {
			return errors.NewCode(pos(declAt), "%v", err)
		}
	}
	return nil
}

func (fb *FunctionBuilder) resolveBaseType(n *ast.Node) (types.Type, error) {
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
