package linearizer

import (
	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// memberChain resolves a.b / a->b / a.b.c / a->b->c down to the final
// base operand, the chain of member names to walk, and whether each hop
// is an arrow (pointer) or a dot (value) access. "." requires a
// non-indirect class; "->" requires indirection exactly 1 and array
// size 0.
type memberStep struct {
	name  string
	arrow bool
}

func memberChain(n *ast.Node) (*ast.Node, []memberStep) {
	var steps []memberStep
	cur := n
	for cur.Kind == ast.TDot || cur.Kind == ast.TArrow {
		steps = append([]memberStep{{name: cur.Child(1).ValueStr, arrow: cur.Kind == ast.TArrow}}, steps...)
		cur = cur.Child(0)
	}
	return cur, steps
}

// walkMemberRead lowers a.b / a->b as an rvalue: one addrof for the
// leaf "." step, one load_off per "->" step, then a final load_off for
// the accessed member.
func (fb *FunctionBuilder) walkMemberRead(n *ast.Node) (tac.Operand, error) {
	baseNode, steps := memberChain(n)
	base, err := fb.walkExpr(baseNode)
	if err != nil {
		return tac.Operand{}, err
	}
	op, _, err := fb.walkMemberStepsTyped(n, base, steps, false)
	return op, err
}

// walkMemberAddress is the lvalue-address variant used by &a.b / &a->b:
// identical to walkMemberRead except the terminal load_off becomes a
// lea_off (computing the address, not the value).
func (fb *FunctionBuilder) walkMemberAddress(n *ast.Node) (tac.Operand, error) {
	baseNode, steps := memberChain(n)
	base, err := fb.walkExpr(baseNode)
	if err != nil {
		return tac.Operand{}, err
	}
	op, _, err := fb.walkMemberStepsTyped(n, base, steps, true)
	return op, err
}

// walkMemberStepsTyped walks a member-access chain and returns both the
// resulting operand and its *logical* (declared) type — independent of
// the operand's physical representation once a step has been converted
// to lea_off, since a nested class-value member accessed by "." stays
// legal to dot into further even though, physically, the operand now
// holds that member's address.
func (fb *FunctionBuilder) walkMemberStepsTyped(n *ast.Node, base tac.Operand, steps []memberStep, addressOfLeaf bool) (tac.Operand, types.Type, error) {
	cur := base
	logicalType := base.Type
	if len(steps) > 0 && !steps[0].arrow && logicalType.Basic == types.Class && logicalType.Indirection == 0 && !logicalType.IsArray() {
		// base is a bare class value (not yet an address): addrof it so
		// the first "." step can load_off through the address, same as
		// every subsequent step in the chain.
		addr := fb.newTemp(types.Type{Basic: types.Class, ClassName: logicalType.ClassName, Indirection: 1})
		fb.emit(tac.OpAddrOf, n, addr, cur)
		cur = addr
	}
	for i, step := range steps {
		last := i == len(steps)-1
		class, offset, err := fb.resolveMember(n, logicalType, step)
		if err != nil {
			return tac.Operand{}, types.Type{}, err
		}
		_ = class
		offsetOperand := literalOperand(int64(offset.Offset), types.Type{Basic: types.U32})

		op := tac.OpLoadOff
		resultType := offset.Variable.Type
		logicalType = resultType
		if last && addressOfLeaf {
			op = tac.OpLeaOff
			resultType.Indirection++
		} else if !last && resultType.Basic == types.Class && resultType.Indirection == 0 && !resultType.IsArray() {
			// yields a full class value, not a pointer: convert to
			// lea_off so the next step indirects through the address.
			op = tac.OpLeaOff
			resultType.Indirection++
		}
		dest := fb.newTemp(resultType)
		fb.emit(op, n, dest, cur, offsetOperand)
		cur = dest
	}
	return cur, logicalType, nil
}

func (fb *FunctionBuilder) resolveMember(n *ast.Node, baseType types.Type, step memberStep) (*symtab.ClassEntry, symtab.MemberOffset, error) {
	if step.arrow {
		if baseType.Indirection != 1 || baseType.IsArray() {
			return nil, symtab.MemberOffset{}, errors.NewCode(pos(n), "'->' requires a single-indirection, non-array pointer, got %s", types.Describe(baseType))
		}
	} else {
		if baseType.Indirection != 0 || baseType.Basic != types.Class {
			return nil, symtab.MemberOffset{}, errors.NewCode(pos(n), "'.' requires a non-indirect class value, got %s", types.Describe(baseType))
		}
	}
	class, ok := fb.classes(baseType.ClassName)
	if !ok {
		return nil, symtab.MemberOffset{}, errors.NewCode(pos(n), "unknown class %q", baseType.ClassName)
	}
	member, ok := class.MemberOffsets[step.name]
	if !ok {
		return nil, symtab.MemberOffset{}, errors.NewCode(pos(n), "class %q has no member %q", baseType.ClassName, step.name)
	}
	return class, member, nil
}
