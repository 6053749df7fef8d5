// Package tac defines the three/four-operand IR the linearizer emits and
// the register allocator and code generator consume.
package tac

import (
	"classicalc/internal/ast"
	"classicalc/internal/types"
)

// Op is one TAC opcode. Contracts are given per-op below; d/a/b/c refer
// to operand indices 0/1/2/3.
type Op int

const (
	OpAsm      Op = iota // verbatim emit of a.str as one assembly line
	OpAssign             // d := a  (primitive copy only)
	OpAdd                // d := a + b
	OpSubtract           // d := a - b
	OpMul                // d := a * b
	OpDiv                // d := a / b  (lowering only, never constant-folded)
	OpLoad               // d := *a
	OpLoadOff            // d := *(a+b), b a literal u32 offset
	OpLoadArr            // d := *(a + (b << c)), b index, c scale shift
	OpStore              // *d := a
	OpStoreOff           // *(d+a) := b, a a literal offset
	OpStoreArr           // *(d + (a << b)) := c
	OpAddrOf             // d := &a; a.wbLocation in {stack,global}
	OpLeaOff             // d := d/a + b, no dereference
	OpLeaArr             // d := a + (c << b), no dereference
	OpBeq
	OpBne
	OpBgeu
	OpBltu
	OpBgtu
	OpBleu
	OpBeqz
	OpBnez
	OpJmp
	OpPush
	OpPop
	OpCall
	OpLabel
	OpReturn
	OpDo
	OpEndDo
)

func (o Op) String() string {
	names := [...]string{
		"asm", "assign", "add", "subtract", "mul", "div",
		"load", "load_off", "load_arr", "store", "store_off", "store_arr",
		"addrof", "lea_off", "lea_arr",
		"beq", "bne", "bgeu", "bltu", "bgtu", "bleu", "beqz", "bnez",
		"jmp", "push", "pop", "call", "label", "return", "do", "enddo",
	}
	if int(o) < 0 || int(o) >= len(names) {
		return "?"
	}
	return names[o]
}

// Permutation is the operand's storage/role tag.
type Permutation int

const (
	Standard Permutation = iota // a named variable resolved by scope lookup
	Temp                        // a linearizer-generated temporary (".N")
	Literal                     // an immediate value, no scope lookup
	ObjPtr                      // a pointer-to-object operand (participates in mangling like Standard)
)

// Operand is one operand slot of a TAC line.
type Operand struct {
	Name        string // for Literal int operands, the decimal text; for Standard/Temp/ObjPtr, the variable/temp name
	IntVal      int64  // valid when Permutation == Literal and the literal is numeric (branch targets, offsets)
	Type        types.Type
	Permutation Permutation
	CastAsType  *types.Type // when set, EffectiveType() returns this instead of Type
}

// EffectiveType returns the operand's type for width-selection purposes:
// the cast type if one is set, else the declared type.
func (o Operand) EffectiveType() types.Type {
	if o.CastAsType != nil {
		return *o.CastAsType
	}
	return o.Type
}

// Line is one TAC instruction. Index is unique and strictly monotonic
// within a function; a re-index gap or duplicate is an Internal error.
type Line struct {
	Op          Op
	Operands    [4]Operand
	Index       uint32
	Reorderable bool
	SrcAST      *ast.Node
}

// D, A, B, C return operand slots 0..3 by their conventional names.
func (l *Line) D() *Operand { return &l.Operands[0] }
func (l *Line) A() *Operand { return &l.Operands[1] }
func (l *Line) B() *Operand { return &l.Operands[2] }
func (l *Line) C() *Operand { return &l.Operands[3] }

// BasicBlock is a maximal straight-line run of TAC lines. Block 0 is a
// function's entry block; at global scope label 0 is reserved for the
// user-initialization block and label 1 for the global inline-asm
// block (see export.Frame).
type BasicBlock struct {
	LabelNum              uint32
	TAC                   []*Line
	ContainsEffectiveCode bool
}

// NewBasicBlock constructs an empty block with the given label.
func NewBasicBlock(label uint32) *BasicBlock {
	return &BasicBlock{LabelNum: label}
}

// Append adds a TAC line to the block, marking the block as containing
// effective code unless the line is a bookkeeping-only do/enddo.
func (b *BasicBlock) Append(l *Line) {
	b.TAC = append(b.TAC, l)
	if l.Op != OpDo && l.Op != OpEndDo {
		b.ContainsEffectiveCode = true
	}
}

// CheckMonotonic verifies that, read backwards, each line's Index is
// exactly one less than the line that follows it, with no gaps and no
// duplicates. Returns the offending index on violation.
func CheckMonotonic(lines []*Line) (ok bool, badIndex uint32) {
	for i := len(lines) - 1; i > 0; i-- {
		if lines[i].Index != lines[i-1].Index+1 {
			return false, lines[i-1].Index
		}
	}
	return true, 0
}
