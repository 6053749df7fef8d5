package linearizer

import (
	"strconv"

	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// walkExpr lowers an expression AST node to a TAC operand representing
// its rvalue, emitting whatever TAC is needed along the way.
func (fb *FunctionBuilder) walkExpr(n *ast.Node) (tac.Operand, error) {
	switch n.Kind {
	case ast.TNumber:
		v, err := strconv.ParseInt(n.ValueStr, 10, 64)
		if err != nil {
			return tac.Operand{}, errors.NewCode(pos(n), "malformed numeric literal %q", n.ValueStr)
		}
		return literalOperand(v, widthTypeFor(v)), nil

	case ast.TCharLiteral:
		v := int64(0)
		if len(n.ValueStr) > 0 {
			v = int64(n.ValueStr[0])
		}
		return literalOperand(v, types.Type{Basic: types.U8}), nil

	case ast.TStringLiteral:
		return fb.internStringLiteral(n)

	case ast.TIdentifier:
		return fb.resolveRvalue(n)

	case ast.TPlus, ast.TMinus, ast.TStar, ast.TSlash:
		return fb.walkArithmetic(n)

	case ast.TAmpersand:
		return fb.walkAddressOf(n)

	case ast.TNot:
		return tac.Operand{}, errors.NewCode(pos(n), "'!' is only valid in a condition, not as a value")

	case ast.TDot, ast.TArrow:
		return fb.walkMemberRead(n)

	case ast.TLBracket:
		return fb.walkArrayRead(n)

	case ast.TCall:
		return fb.walkCall(n)

	case ast.TLess, ast.TGreater, ast.TLessEqual, ast.TGreaterEqual, ast.TEqual, ast.TNotEqual, ast.TAnd, ast.TOr:
		return tac.Operand{}, errors.NewCode(pos(n), "comparison/logical operator only valid in a condition")

	default:
		return tac.Operand{}, errors.NewInternal(pos(n), "unexpected TAC kind", "unexpected AST node kind %d in expression position", n.Kind)
	}
}

func widthTypeFor(v int64) types.Type {
	switch {
	case v >= 0 && v <= 0xff:
		return types.Type{Basic: types.U8}
	case v >= 0 && v <= 0xffff:
		return types.Type{Basic: types.U16}
	default:
		return types.Type{Basic: types.U32}
	}
}

// resolveRvalue looks up an identifier and, if it names a storage
// array, decays it to a pointer (array decay at rvalue use sites).
func (fb *FunctionBuilder) resolveRvalue(n *ast.Node) (tac.Operand, error) {
	member, ok := fb.scope.Lookup(n.ValueStr)
	if !ok {
		return tac.Operand{}, errors.NewCode(pos(n), "use of undeclared identifier %q", n.ValueStr)
	}
	if member.Kind != symtab.KindVariable && member.Kind != symtab.KindArgument {
		return tac.Operand{}, errors.NewCode(pos(n), "%q does not name a variable", n.ValueStr)
	}
	v := member.Variable
	t := types.Decay(v.Type)
	perm := tac.Standard
	return tac.Operand{Name: v.Name, Type: t, Permutation: perm}, nil
}

// walkArithmetic lowers +, -, *, / including pointer-arithmetic scale
// multiplication: when exactly one operand is a pointer, the other is
// first multiplied by sizeof(pointer's pointee) via an inserted mul.
// Arithmetic between two pointers is a compile error.
func (fb *FunctionBuilder) walkArithmetic(n *ast.Node) (tac.Operand, error) {
	lhsNode, rhsNode := n.Child(0), n.Child(1)
	if rhsNode == nil {
		// unary minus
		zero := literalOperand(0, types.Type{Basic: types.U32})
		rhs, err := fb.walkExpr(lhsNode)
		if err != nil {
			return tac.Operand{}, err
		}
		dest := fb.newTemp(rhs.Type)
		fb.emit(tac.OpSubtract, n, dest, zero, rhs)
		return dest, nil
	}

	lhs, err := fb.walkExpr(lhsNode)
	if err != nil {
		return tac.Operand{}, err
	}
	rhs, err := fb.walkExpr(rhsNode)
	if err != nil {
		return tac.Operand{}, err
	}

	lhsPtr := lhs.Type.IsPointer() || lhs.Type.IsArray()
	rhsPtr := rhs.Type.IsPointer() || rhs.Type.IsArray()
	if lhsPtr && rhsPtr {
		return tac.Operand{}, errors.NewCode(pos(n), "arithmetic between two pointer operands is not allowed")
	}
	op := arithOp(n.Kind)
	if lhsPtr {
		rhs, err = fb.insertScaleMul(n, rhs, lhs.Type)
		if err != nil {
			return tac.Operand{}, err
		}
		dest := fb.newTemp(lhs.Type)
		fb.emit(op, n, dest, lhs, rhs)
		return dest, nil
	}
	if rhsPtr {
		lhs, err = fb.insertScaleMul(n, lhs, rhs.Type)
		if err != nil {
			return tac.Operand{}, err
		}
		dest := fb.newTemp(rhs.Type)
		fb.emit(op, n, dest, lhs, rhs)
		return dest, nil
	}

	resultType := widerOf(lhs.Type, rhs.Type)
	dest := fb.newTemp(resultType)
	fb.emit(op, n, dest, lhs, rhs)
	return dest, nil
}

func arithOp(k ast.TokenKind) tac.Op {
	switch k {
	case ast.TPlus:
		return tac.OpAdd
	case ast.TMinus:
		return tac.OpSubtract
	case ast.TStar:
		return tac.OpMul
	case ast.TSlash:
		return tac.OpDiv
	default:
		return tac.OpAdd
	}
}

func widerOf(a, b types.Type) types.Type {
	sa, _ := types.SizeOf(a, nil)
	sb, _ := types.SizeOf(b, nil)
	if sa >= sb {
		return a
	}
	return b
}

// insertScaleMul realizes pointer arithmetic: multiplies a non-pointer
// operand by sizeof the pointer's pointee so that addition/subtraction
// against the pointer steps by whole elements.
func (fb *FunctionBuilder) insertScaleMul(n *ast.Node, operand tac.Operand, ptrType types.Type) (tac.Operand, error) {
	deref, err := types.Dereferenced(ptrType)
	if err != nil {
		return tac.Operand{}, err
	}
	elemSize, err := fb.sizeOf(deref)
	if err != nil {
		return tac.Operand{}, err
	}
	scale := literalOperand(int64(elemSize), types.Type{Basic: types.U32})
	dest := fb.newTemp(types.Type{Basic: types.U32})
	fb.emit(tac.OpMul, n, dest, operand, scale)
	return dest, nil
}

// walkAddressOf lowers &e. If e is a bare identifier, mark its variable
// mustSpill=true (it can no longer live solely in a register). Taking
// the address of a local array is a compile error.
func (fb *FunctionBuilder) walkAddressOf(n *ast.Node) (tac.Operand, error) {
	operand := n.Child(0)
	if operand.Kind == ast.TDot || operand.Kind == ast.TArrow {
		return fb.walkMemberAddress(operand)
	}
	if operand.Kind != ast.TIdentifier {
		return tac.Operand{}, errors.NewCode(pos(n), "address-of requires an identifier or member access")
	}
	member, ok := fb.scope.Lookup(operand.ValueStr)
	if !ok || (member.Kind != symtab.KindVariable && member.Kind != symtab.KindArgument) {
		return tac.Operand{}, errors.NewCode(pos(operand), "use of undeclared identifier %q", operand.ValueStr)
	}
	v := member.Variable
	if v.Type.IsArray() && !v.IsGlobal {
		return tac.Operand{}, errors.NewCode(pos(n), "cannot take the address of local array %q", v.Name)
	}
	v.MustSpill = true
	resultType := v.Type
	resultType.Indirection++
	dest := fb.newTemp(resultType)
	fb.emit(tac.OpAddrOf, n, dest, tac.Operand{Name: v.Name, Type: v.Type, Permutation: tac.Standard})
	return dest, nil
}

// walkArrayRead lowers a[i]: literal index -> load_off, dynamic index ->
// load_arr. The array base must itself be an array or pointer.
func (fb *FunctionBuilder) walkArrayRead(n *ast.Node) (tac.Operand, error) {
	baseNode, idxNode := n.Child(0), n.Child(1)
	base, err := fb.walkBaseForIndex(baseNode)
	if err != nil {
		return tac.Operand{}, err
	}
	elemType, err := types.Dereferenced(base.Type)
	if err != nil {
		return tac.Operand{}, errors.NewCode(pos(n), "cannot index non-array, non-pointer type %s", types.Describe(base.Type))
	}
	elemSize, err := fb.sizeOf(elemType)
	if err != nil {
		return tac.Operand{}, err
	}
	shift := scaleShift(elemSize)
	dest := fb.newTemp(elemType)

	if idxNode.Kind == ast.TNumber {
		idxVal, _ := strconv.ParseInt(idxNode.ValueStr, 10, 64)
		offset := idxVal << shift
		fb.emit(tac.OpLoadOff, n, dest, base, literalOperand(offset, types.Type{Basic: types.U32}))
		return dest, nil
	}
	idx, err := fb.walkExpr(idxNode)
	if err != nil {
		return tac.Operand{}, err
	}
	fb.emit(tac.OpLoadArr, n, dest, base, idx, literalOperand(int64(shift), types.Type{Basic: types.U8}))
	return dest, nil
}

// walkBaseForIndex resolves the array/pointer base of an index
// expression without decaying an array (load_arr/load_off need the
// base address, not a generic decayed-pointer rvalue for arrays that
// the following lowering already accounts for).
func (fb *FunctionBuilder) walkBaseForIndex(n *ast.Node) (tac.Operand, error) {
	if n.Kind == ast.TIdentifier {
		member, ok := fb.scope.Lookup(n.ValueStr)
		if !ok || (member.Kind != symtab.KindVariable && member.Kind != symtab.KindArgument) {
			return tac.Operand{}, errors.NewCode(pos(n), "use of undeclared identifier %q", n.ValueStr)
		}
		v := member.Variable
		if !v.Type.IsArray() && !v.Type.IsPointer() {
			return tac.Operand{}, errors.NewCode(pos(n), "%q is not an array or pointer", n.ValueStr)
		}
		return tac.Operand{Name: v.Name, Type: v.Type, Permutation: tac.Standard}, nil
	}
	return fb.walkExpr(n)
}
