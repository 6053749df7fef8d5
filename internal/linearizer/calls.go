package linearizer

import (
	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// lowerCall emits the push/call sequence for callee(args...) and
// returns the destination operand (zero-value when the callee is
// void), the callee's entry, and any error. Arguments are pushed
// right-to-left so argument 0 ends up on top of stack.
func (fb *FunctionBuilder) lowerCall(n *ast.Node) (tac.Operand, *symtab.FunctionEntry, error) {
	nameNode := n.Child(0)
	if nameNode.Kind != ast.TIdentifier {
		return tac.Operand{}, nil, errors.NewCode(pos(n), "call target must be a function name")
	}
	member, ok := fb.scope.Lookup(nameNode.ValueStr)
	if !ok || member.Kind != symtab.KindFunction {
		return tac.Operand{}, nil, errors.NewCode(pos(n), "call to undeclared function %q", nameNode.ValueStr)
	}
	fn := member.Function

	argNodes := n.Child(1).Children()
	if len(argNodes) != len(fn.Arguments) {
		return tac.Operand{}, nil, errors.NewCode(pos(n), "function %q expects %d arguments, got %d", fn.Name, len(fn.Arguments), len(argNodes))
	}
	args := make([]tac.Operand, len(argNodes))
	for i, an := range argNodes {
		v, err := fb.walkExpr(an)
		if err != nil {
			return tac.Operand{}, nil, err
		}
		widens, err := types.CompareWidening(fn.Arguments[i].Type, v.Type, fb.classLayout)
		if err != nil {
			return tac.Operand{}, nil, err
		}
		if !widens {
			return tac.Operand{}, nil, errors.NewCode(pos(an), "argument %d to %q: cannot narrow %s to %s", i, fn.Name, types.Describe(v.Type), types.Describe(fn.Arguments[i].Type))
		}
		args[i] = v
	}
	for i := len(args) - 1; i >= 0; i-- {
		fb.emit(tac.OpPush, n, args[i])
	}

	var dest tac.Operand
	if fn.ReturnType.Basic != types.Null {
		dest = fb.newTemp(fn.ReturnType)
	}
	callLine := &tac.Line{Op: tac.OpCall, Index: fb.nextIndex(), SrcAST: n}
	callLine.Operands[0] = dest
	callLine.Operands[1] = tac.Operand{Name: fn.Name, Permutation: tac.Literal}
	fb.block.Append(callLine)
	return dest, fn, nil
}

// walkCall lowers a call used in expression position: using the return
// value of a void function is a compile error.
func (fb *FunctionBuilder) walkCall(n *ast.Node) (tac.Operand, error) {
	dest, fn, err := fb.lowerCall(n)
	if err != nil {
		return tac.Operand{}, err
	}
	if fn.ReturnType.Basic == types.Null {
		return tac.Operand{}, errors.NewCode(pos(n), "cannot use the return value of void function %q", fn.Name)
	}
	return dest, nil
}

// walkCallStatement lowers a call used as a standalone statement: the
// return value, if any, is discarded.
func (fb *FunctionBuilder) walkCallStatement(n *ast.Node) error {
	_, _, err := fb.lowerCall(n)
	return err
}
