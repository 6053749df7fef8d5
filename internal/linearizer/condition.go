package linearizer

import (
	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// walkConditionCheck emits a single branch that jumps to
// falseJumpLabelNum when the condition tested by tree is FALSE. Maps
// source operators to their *inverse* branch so the fall-through path
// is the true branch:
//
//	== -> bne, != -> beq, < -> bgeu, > -> bleu, <= -> bgtu, >= -> bltu, !e -> bnez
//
// This restores tt_bne (== case) as a live opcode; see SPEC_FULL.md
// part A, Open Question 1, for why the naive reading of the source
// would wire == to beq instead (a latent bug, not a contract).
func (fb *FunctionBuilder) walkConditionCheck(tree *ast.Node, falseJumpLabelNum uint32) error {
	target := literalOperand(int64(falseJumpLabelNum), types.Type{Basic: types.U32})

	switch tree.Kind {
	case ast.TEqual:
		return fb.emitCompareBranch(tree, tac.OpBne, target)
	case ast.TNotEqual:
		return fb.emitCompareBranch(tree, tac.OpBeq, target)
	case ast.TLess:
		return fb.emitCompareBranch(tree, tac.OpBgeu, target)
	case ast.TGreater:
		return fb.emitCompareBranch(tree, tac.OpBleu, target)
	case ast.TLessEqual:
		return fb.emitCompareBranch(tree, tac.OpBgtu, target)
	case ast.TGreaterEqual:
		return fb.emitCompareBranch(tree, tac.OpBltu, target)
	case ast.TNot:
		operand, err := fb.walkExpr(tree.Child(0))
		if err != nil {
			return err
		}
		fb.emit(tac.OpBnez, tree, target, operand)
		return nil
	default:
		// bare truthiness test, e.g. `if (flag)`: false when zero.
		operand, err := fb.walkExpr(tree)
		if err != nil {
			return err
		}
		fb.emit(tac.OpBeqz, tree, target, operand)
		return nil
	}
}

func (fb *FunctionBuilder) emitCompareBranch(tree *ast.Node, op tac.Op, target tac.Operand) error {
	lhs, err := fb.walkExpr(tree.Child(0))
	if err != nil {
		return err
	}
	rhs, err := fb.walkExpr(tree.Child(1))
	if err != nil {
		return err
	}
	if (lhs.Type.IsPointer() || lhs.Type.IsArray()) && (rhs.Type.IsPointer() || rhs.Type.IsArray()) {
		return errors.NewCode(pos(tree), "comparison between two pointer operands is not allowed")
	}
	fb.emit(op, tree, target, lhs, rhs)
	return nil
}
