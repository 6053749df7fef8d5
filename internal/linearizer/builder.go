// Package linearizer walks an AST and lowers it to TAC basic blocks,
// populating the symbol table as it goes.
package linearizer

import (
	"fmt"

	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// FunctionBuilder owns the monotonic TACIndex/tempNum/labelNum counters
// for one function and the current basic block being appended to,
// avoiding the pervasive integer-pointer plumbing the original threads
// through every walk function (see design note on control-flow pattern).
type FunctionBuilder struct {
	fn       *symtab.FunctionEntry
	scope    *symtab.Scope
	tacIndex uint32
	tempNum  uint32
	labelNum uint32
	block    *tac.BasicBlock
	classes  func(name string) (*symtab.ClassEntry, bool)
	strings  map[string]*symtab.VariableEntry // interned string-literal globals, keyed by literal content
	globals  *symtab.Scope
}

// NewFunctionBuilder starts building fn's body in mainScope, with its
// entry block (label 0) already open.
func NewFunctionBuilder(fn *symtab.FunctionEntry, classes func(string) (*symtab.ClassEntry, bool), globals *symtab.Scope, strings map[string]*symtab.VariableEntry) (*FunctionBuilder, error) {
	entry := tac.NewBasicBlock(0)
	if err := fn.MainScope.AddBasicBlock(entry); err != nil {
		return nil, err
	}
	return &FunctionBuilder{
		fn:       fn,
		scope:    fn.MainScope,
		block:    entry,
		labelNum: 1,
		classes:  classes,
		strings:  strings,
		globals:  globals,
	}, nil
}

func (fb *FunctionBuilder) sizeOf(t types.Type) (uint32, error) {
	return types.SizeOf(t, fb.classLayout)
}

func (fb *FunctionBuilder) classLayout(name string) (types.ClassLayout, bool) {
	c, ok := fb.classes(name)
	if !ok {
		return nil, false
	}
	return c, true
}

// nextIndex returns the next monotonic TAC index for this function.
func (fb *FunctionBuilder) nextIndex() uint32 {
	i := fb.tacIndex
	fb.tacIndex++
	return i
}

// newTemp allocates a fresh temporary operand of type t, named ".N".
func (fb *FunctionBuilder) newTemp(t types.Type) tac.Operand {
	name := fmt.Sprintf(".%d", fb.tempNum)
	fb.tempNum++
	return tac.Operand{Name: name, Type: t, Permutation: tac.Temp}
}

// newLabel allocates a fresh label number within this function.
func (fb *FunctionBuilder) newLabel() uint32 {
	l := fb.labelNum
	fb.labelNum++
	return l
}

// emit appends a TAC line with a freshly allocated index to the current
// block and returns it.
func (fb *FunctionBuilder) emit(op tac.Op, src *ast.Node, operands ...tac.Operand) *tac.Line {
	line := &tac.Line{Op: op, Index: fb.nextIndex(), SrcAST: src}
	for i := 0; i < len(operands) && i < 4; i++ {
		line.Operands[i] = operands[i]
	}
	fb.block.Append(line)
	return line
}

// openBlock switches the builder to append into a fresh block with the
// given label, inserting it into the current scope and the function's
// ordered block list.
func (fb *FunctionBuilder) openBlock(label uint32) (*tac.BasicBlock, error) {
	b := tac.NewBasicBlock(label)
	if err := fb.scope.AddBasicBlock(b); err != nil {
		return nil, err
	}
	fb.block = b
	return b, nil
}

func pos(n *ast.Node) errors.Position {
	if n == nil {
		return errors.Position{}
	}
	return errors.Position{File: n.File, Line: n.Line, Col: n.Col}
}

// literalOperand builds an int-literal operand (for branch targets,
// array offsets, push widths, etc).
func literalOperand(v int64, t types.Type) tac.Operand {
	return tac.Operand{Name: fmt.Sprintf("%d", v), IntVal: v, Type: t, Permutation: tac.Literal}
}

// scaleShift computes ceil(log2(elementSize)), the shift amount applied
// to an array index or pointer-arithmetic scale multiplication.
func scaleShift(elementSize uint32) uint32 {
	if elementSize <= 1 {
		return 0
	}
	shift := uint32(0)
	size := uint32(1)
	for size < elementSize {
		size <<= 1
		shift++
	}
	return shift
}
