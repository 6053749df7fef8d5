package linearizer

import (
	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// walkStatement dispatches one statement node.
func (fb *FunctionBuilder) walkStatement(n *ast.Node) error {
	switch n.Kind {
	case ast.TDecl:
		return fb.walkDeclaration(n, fb.scope == fb.globals)
	case ast.TAssign, ast.TPlusAssign, ast.TMinusAssign:
		_, err := fb.walkAssignment(n)
		return err
	case ast.TIf:
		return fb.walkIf(n)
	case ast.TWhile:
		return fb.walkWhile(n)
	case ast.TReturn:
		return fb.walkReturn(n)
	case ast.TAsm:
		return fb.walkAsmBlock(n)
	case ast.TCall:
		return fb.walkCallStatement(n)
	case ast.TBlock:
		for _, c := range n.Children() {
			if err := fb.walkStatement(c); err != nil {
				return err
			}
		}
		return nil
	default:
		_, err := fb.walkExpr(n)
		return err
	}
}

// walkAssignment lowers assignment into *p, a[i], obj.m, obj->m, and
// plain identifiers: five distinct lowering paths producing
// store/store_arr/store_off/assign respectively.
func (fb *FunctionBuilder) walkAssignment(n *ast.Node) (tac.Operand, error) {
	lhs := n.Child(0)
	rhsNode := n.Child(1)
	rhs, err := fb.walkExpr(rhsNode)
	if err != nil {
		return tac.Operand{}, err
	}
	if n.Kind == ast.TPlusAssign || n.Kind == ast.TMinusAssign {
		cur, err := fb.walkExpr(lhs)
		if err != nil {
			return tac.Operand{}, err
		}
		op := tac.OpAdd
		if n.Kind == ast.TMinusAssign {
			op = tac.OpSubtract
		}
		dest := fb.newTemp(widerOf(cur.Type, rhs.Type))
		fb.emit(op, n, dest, cur, rhs)
		rhs = dest
	}

	switch lhs.Kind {
	case ast.TIdentifier:
		member, ok := fb.scope.Lookup(lhs.ValueStr)
		if !ok || (member.Kind != symtab.KindVariable && member.Kind != symtab.KindArgument) {
			return tac.Operand{}, errors.NewCode(pos(lhs), "use of undeclared identifier %q", lhs.ValueStr)
		}
		v := member.Variable
		if v.Type.IsArray() {
			return tac.Operand{}, errors.NewCode(pos(lhs), "cannot assign to array variable %q", v.Name)
		}
		if v.Type.Basic == types.Class && v.Type.Indirection == 0 && !v.Type.IsArray() {
			return tac.Operand{}, errors.NewCode(pos(lhs), "cannot assign to whole class value %q (not supported)", v.Name)
		}
		widens, err := types.CompareWidening(v.Type, rhs.Type, fb.classLayout)
		if err != nil {
			return tac.Operand{}, err
		}
		if !widens {
			return tac.Operand{}, errors.NewCode(pos(n), "cannot narrow %s to %s assigning to %q", types.Describe(rhs.Type), types.Describe(v.Type), v.Name)
		}
		dest := tac.Operand{Name: v.Name, Type: v.Type, Permutation: tac.Standard}
		fb.emit(tac.OpAssign, n, dest, rhs)
		v.IsAssigned = true
		v.AssignedAt = int32(fb.tacIndex)
		return dest, nil

	case ast.TStar:
		ptr, err := fb.walkExpr(lhs.Child(0))
		if err != nil {
			return tac.Operand{}, err
		}
		if !ptr.Type.IsPointer() {
			return tac.Operand{}, errors.NewCode(pos(lhs), "cannot dereference non-pointer type %s", types.Describe(ptr.Type))
		}
		fb.emit(tac.OpStore, n, ptr, rhs)
		return rhs, nil

	case ast.TLBracket:
		baseNode, idxNode := lhs.Child(0), lhs.Child(1)
		base, err := fb.walkBaseForIndex(baseNode)
		if err != nil {
			return tac.Operand{}, err
		}
		elemType, err := types.Dereferenced(base.Type)
		if err != nil {
			return tac.Operand{}, errors.NewCode(pos(lhs), "cannot index non-array, non-pointer type %s", types.Describe(base.Type))
		}
		elemSize, err := fb.sizeOf(elemType)
		if err != nil {
			return tac.Operand{}, err
		}
		shift := scaleShift(elemSize)
		if idxNode.Kind == ast.TNumber {
			idxVal := parseIntLiteral(idxNode.ValueStr)
			offset := idxVal << shift
			fb.emit(tac.OpStoreOff, n, base, literalOperand(offset, types.Type{Basic: types.U32}), rhs)
			return rhs, nil
		}
		idx, err := fb.walkExpr(idxNode)
		if err != nil {
			return tac.Operand{}, err
		}
		fb.emit(tac.OpStoreArr, n, base, idx, literalOperand(int64(shift), types.Type{Basic: types.U8}), rhs)
		return rhs, nil

	case ast.TDot, ast.TArrow:
		return fb.walkMemberAssign(n, lhs, rhs)

	default:
		return tac.Operand{}, errors.NewCode(pos(lhs), "invalid assignment target")
	}
}

func (fb *FunctionBuilder) walkMemberAssign(n, lhs *ast.Node, rhs tac.Operand) (tac.Operand, error) {
	baseNode, steps := memberChain(lhs)
	base, err := fb.walkExpr(baseNode)
	if err != nil {
		return tac.Operand{}, err
	}
	cur := base
	logicalType := base.Type
	if len(steps) > 1 {
		headOnly, headType, err := fb.walkMemberStepsTyped(n, base, steps[:len(steps)-1], true)
		if err != nil {
			return tac.Operand{}, err
		}
		cur, logicalType = headOnly, headType
	} else if !steps[0].arrow && logicalType.Basic == types.Class && logicalType.Indirection == 0 {
		addr := fb.newTemp(types.Type{Basic: types.Class, ClassName: logicalType.ClassName, Indirection: 1})
		fb.emit(tac.OpAddrOf, n, addr, cur)
		cur = addr
	}
	last := steps[len(steps)-1]
	_, offset, err := fb.resolveMember(n, logicalType, last)
	if err != nil {
		return tac.Operand{}, err
	}
	fb.emit(tac.OpStoreOff, n, cur, literalOperand(int64(offset.Offset), types.Type{Basic: types.U32}), rhs)
	return rhs, nil
}

// walkIf lowers if/else: walkConditionCheck emits a single
// branch-on-false to the else label (or the convergence label with no
// else); the true branch falls through into a freshly labelled block
// owned by a sub-scope. With an else arm, the true branch ends in a jump
// to the convergence label and the else block falls through into it;
// without one, the true branch falls through into the false label's
// block, which is the convergence point.
func (fb *FunctionBuilder) walkIf(n *ast.Node) error {
	cond := n.Child(0)
	thenBlock := n.Child(1)
	elseBlock := n.Child(2)

	falseLabel := fb.newLabel()
	if err := fb.walkConditionCheck(cond, falseLabel); err != nil {
		return err
	}

	thenScope, err := fb.scope.CreateSubScope()
	if err != nil {
		return err
	}
	outerScope := fb.scope
	fb.scope = thenScope
	if _, err := fb.openBlock(fb.newLabel()); err != nil {
		fb.scope = outerScope
		return err
	}
	if err := fb.walkStatement(thenBlock); err != nil {
		fb.scope = outerScope
		return err
	}
	fb.scope = outerScope

	if elseBlock == nil {
		_, err := fb.openBlock(falseLabel)
		return err
	}

	joinLabel := fb.newLabel()
	fb.emit(tac.OpJmp, n, literalOperand(int64(joinLabel), types.Type{Basic: types.U32}))

	elseScope, err := fb.scope.CreateSubScope()
	if err != nil {
		return err
	}
	fb.scope = elseScope
	if _, err := fb.openBlock(falseLabel); err != nil {
		fb.scope = outerScope
		return err
	}
	if err := fb.walkStatement(elseBlock); err != nil {
		fb.scope = outerScope
		return err
	}
	fb.scope = outerScope

	_, err = fb.openBlock(joinLabel)
	return err
}

// walkWhile lowers: jmp header; header: do; [cond-check -> exit]; body;
// jmp header; exit: enddo.
func (fb *FunctionBuilder) walkWhile(n *ast.Node) error {
	cond := n.Child(0)
	body := n.Child(1)

	headerLabel := fb.newLabel()
	exitLabel := fb.newLabel()

	fb.emit(tac.OpJmp, n, literalOperand(int64(headerLabel), types.Type{Basic: types.U32}))
	if _, err := fb.openBlock(headerLabel); err != nil {
		return err
	}
	fb.emit(tac.OpDo, n)
	if err := fb.walkConditionCheck(cond, exitLabel); err != nil {
		return err
	}

	bodyScope, err := fb.scope.CreateSubScope()
	if err != nil {
		return err
	}
	outerScope := fb.scope
	fb.scope = bodyScope
	if err := fb.walkStatement(body); err != nil {
		fb.scope = outerScope
		return err
	}
	fb.scope = outerScope
	fb.emit(tac.OpJmp, n, literalOperand(int64(headerLabel), types.Type{Basic: types.U32}))

	if _, err := fb.openBlock(exitLabel); err != nil {
		return err
	}
	fb.emit(tac.OpEndDo, n)
	return nil
}

// walkReturn emits `return` with the lowered sub-expression (if any).
// No separate jmp TAC line is emitted: codegen lowers each return to a
// move into a0 (when there is a value) followed by `j {fn}_done`.
func (fb *FunctionBuilder) walkReturn(n *ast.Node) error {
	var value tac.Operand
	if valNode := n.Child(0); valNode != nil {
		v, err := fb.walkExpr(valNode)
		if err != nil {
			return err
		}
		widens, err := types.CompareWidening(fb.fn.ReturnType, v.Type, fb.classLayout)
		if err != nil {
			return err
		}
		if !widens {
			return errors.NewCode(pos(n), "cannot return %s from function declared to return %s", types.Describe(v.Type), types.Describe(fb.fn.ReturnType))
		}
		value = v
		fb.emit(tac.OpReturn, n, value)
	} else {
		fb.emit(tac.OpReturn, n)
	}
	return nil
}

// walkAsmBlock lowers each child sibling into one verbatim asm TAC
// line.
func (fb *FunctionBuilder) walkAsmBlock(n *ast.Node) error {
	for _, c := range n.Children() {
		fb.emit(tac.OpAsm, c, tac.Operand{Name: c.ValueStr, Permutation: tac.Literal})
	}
	return nil
}

func parseIntLiteral(s string) int64 {
	var v int64
	neg := false
	for i, r := range s {
		if i == 0 && r == '-' {
			neg = true
			continue
		}
		if r < '0' || r > '9' {
			break
		}
		v = v*10 + int64(r-'0')
	}
	if neg {
		v = -v
	}
	return v
}
