// Package codegen emits textual RISC-V-style assembly from a linearized
// function's TAC basic blocks, running the level-0 register allocator
// first and picking load/store widths and addressing modes from
// operand types one line at a time.
package codegen

import (
	"fmt"
	"io"

	"classicalc/internal/errors"
	"classicalc/internal/regalloc"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// Generator emits one function (or the global user-start/asm sections)
// at a time to out.
type Generator struct {
	out     io.Writer
	classes func(string) (*symtab.ClassEntry, bool)
}

// New builds a Generator writing to out, resolving class layouts via
// classes.
func New(out io.Writer, classes func(string) (*symtab.ClassEntry, bool)) *Generator {
	return &Generator{out: out, classes: classes}
}

func (g *Generator) sizeOf(t types.Type) (uint32, error) {
	return types.SizeOf(t, g.classLayout)
}

func (g *Generator) classLayout(name string) (types.ClassLayout, bool) {
	c, ok := g.classes(name)
	if !ok {
		return nil, false
	}
	return c, true
}

func (g *Generator) emit(format string, args ...interface{}) {
	fmt.Fprintf(g.out, format+"\n", args...)
}

func regName(idx uint8) string {
	switch idx {
	case regalloc.RegZero:
		return "zero"
	case regalloc.RegRA:
		return "ra"
	case regalloc.RegSP:
		return "sp"
	case regalloc.RegFP:
		return "fp"
	case regalloc.RegT0:
		return "t0"
	case regalloc.RegT1:
		return "t1"
	case regalloc.RegT2:
		return "t2"
	case regalloc.RegA0:
		return "a0"
	default:
		return fmt.Sprintf("x%d", idx)
	}
}

func loadMnemonic(w types.Width) string  { return "l" + string(w) + "u" }
func storeMnemonic(w types.Width) string { return "s" + string(w) }

func (g *Generator) push(reg uint8) {
	g.emit("\taddi sp, sp, -4")
	g.emit("\tsw %s, 0(sp)", regName(reg))
}

func (g *Generator) pop(reg uint8) {
	g.emit("\tlw %s, 0(sp)", regName(reg))
	g.emit("\taddi sp, sp, 4")
}

// lookupFor returns a regalloc.Discover-compatible lookup closure over
// fn's own scope chain (mainScope -> global, post scope-collapse).
func lookupFor(fn *symtab.FunctionEntry) func(string) (*symtab.VariableEntry, bool) {
	return func(name string) (*symtab.VariableEntry, bool) {
		m, ok := fn.MainScope.Lookup(name)
		if !ok || (m.Kind != symtab.KindVariable && m.Kind != symtab.KindArgument) {
			return nil, false
		}
		return m.Variable, true
	}
}

// EmitFunction emits one function's complete assembly: label, prologue,
// (asm-function short circuit, or regalloc + body + epilogue).
func (g *Generator) EmitFunction(fn *symtab.FunctionEntry) error {
	g.emit("%s:", fn.Name)
	g.push(regalloc.RegRA)
	g.push(regalloc.RegFP)
	g.emit("\tmv fp, sp")

	if fn.IsAsmFun {
		for _, b := range fn.Blocks {
			for _, l := range b.TAC {
				if l.Op == tac.OpAsm {
					g.emit("\t%s", l.Operands[0].Name)
				}
			}
		}
		g.pop(regalloc.RegFP)
		g.pop(regalloc.RegRA)
		g.emit("\tjalr zero, 0(ra)")
		return nil
	}

	set := regalloc.Discover(fn, lookupFor(fn))
	assignment, err := regalloc.AssignLevel0(set, g.sizeOf)
	if err != nil {
		return err
	}

	if assignment.LocalStackSize > 0 {
		g.emit("\taddi sp, sp, -%d", assignment.LocalStackSize)
	}
	for r := regalloc.NumRegisters - 1; r >= 0; r-- {
		if assignment.TouchedRegister[r] {
			g.push(uint8(r))
		}
	}

	for _, arg := range fn.Arguments {
		l, ok := set.Lookup(arg.Name)
		if !ok || l.WBLocation != regalloc.Register {
			continue
		}
		width := types.SelectWidth(arg.Type)
		g.emit("\t%s %s, %d(fp)", loadMnemonic(width), regName(l.RegisterLocation), arg.StackOffset)
	}

	for _, b := range fn.Blocks {
		g.emit("%s_%d:", fn.Name, b.LabelNum)
		for _, line := range b.TAC {
			if err := g.emitLine(fn, set, line); err != nil {
				return err
			}
		}
	}

	g.emit("%s_done:", fn.Name)
	for r := 0; r < regalloc.NumRegisters; r++ {
		if assignment.TouchedRegister[r] {
			g.pop(uint8(r))
		}
	}
	if assignment.LocalStackSize > 0 {
		g.emit("\taddi sp, sp, %d", assignment.LocalStackSize)
	}
	g.pop(regalloc.RegFP)
	g.pop(regalloc.RegRA)
	if fn.ArgStackSize > 0 {
		g.emit("\taddi sp, sp, %d", fn.ArgStackSize)
	}
	g.emit("\tjalr zero, 0(ra)")
	return nil
}

// EmitGlobalBlock emits a reserved global code section (user-start or
// the like): entered directly by the downstream linker/startup stub
// rather than via call/ret, so unlike EmitFunction there is no ra/fp
// save, no callee-register push/pop, and no jalr terminator. The stub
// is assumed to have already pointed fp at the initial stack top, so
// any spilled temporaries still address relative to fp like a normal
// function's locals.
func (g *Generator) EmitGlobalBlock(block *tac.BasicBlock, scope *symtab.Scope, label string) error {
	fn := &symtab.FunctionEntry{Name: label, MainScope: scope, Blocks: []*tac.BasicBlock{block}}
	lookup := func(name string) (*symtab.VariableEntry, bool) {
		m, ok := scope.Lookup(name)
		if !ok || (m.Kind != symtab.KindVariable && m.Kind != symtab.KindArgument) {
			return nil, false
		}
		return m.Variable, true
	}

	set := regalloc.Discover(fn, lookup)
	assignment, err := regalloc.AssignLevel0(set, g.sizeOf)
	if err != nil {
		return err
	}
	if assignment.LocalStackSize > 0 {
		g.emit("\taddi sp, sp, -%d", assignment.LocalStackSize)
	}
	for _, line := range block.TAC {
		if err := g.emitLine(fn, set, line); err != nil {
			return err
		}
	}
	return nil
}

// place loads operand's value into scratch (a t0/t1/t2 register index)
// and returns the register actually holding it: the scratch itself for
// literals/stack/global operands, or the operand's own assigned
// register when it is register-resident (avoiding a redundant copy).
func (g *Generator) place(set *regalloc.Set, op tac.Operand, scratch uint8) (uint8, error) {
	if op.Permutation == tac.Literal {
		g.emit("\tli %s, %d", regName(scratch), op.IntVal)
		return scratch, nil
	}
	l, ok := set.Lookup(op.Name)
	if !ok {
		return 0, errors.NewInternal(errors.Position{}, "unknown-writeback-location", "operand %q has no discovered lifetime", op.Name)
	}
	switch l.WBLocation {
	case regalloc.Register:
		return l.RegisterLocation, nil
	case regalloc.Stack:
		if op.EffectiveType().IsArray() {
			g.emit("\taddi %s, fp, %d", regName(scratch), l.StackLocation)
			return scratch, nil
		}
		width := types.SelectWidth(op.EffectiveType())
		g.emit("\t%s %s, %d(fp)", loadMnemonic(width), regName(scratch), l.StackLocation)
		return scratch, nil
	case regalloc.Global:
		g.emit("\tla %s, %s", regName(scratch), op.Name)
		if op.EffectiveType().IsArray() {
			return scratch, nil
		}
		width := types.SelectWidth(op.EffectiveType())
		g.emit("\t%s %s, 0(%s)", loadMnemonic(width), regName(scratch), regName(scratch))
		return scratch, nil
	default:
		return 0, errors.NewInternal(errors.Position{}, "unknown-writeback-location", "operand %q has unresolved writeback location", op.Name)
	}
}

// writeBack stores scratch into dest's real home: a register-to-register
// move, a stack store, or a store through a loaded global address.
func (g *Generator) writeBack(set *regalloc.Set, dest tac.Operand, scratch uint8) error {
	l, ok := set.Lookup(dest.Name)
	if !ok {
		return errors.NewInternal(errors.Position{}, "unknown-writeback-location", "destination %q has no discovered lifetime", dest.Name)
	}
	switch l.WBLocation {
	case regalloc.Register:
		if l.RegisterLocation != scratch {
			g.emit("\tmv %s, %s", regName(l.RegisterLocation), regName(scratch))
		}
		return nil
	case regalloc.Stack:
		width := types.SelectWidth(dest.EffectiveType())
		g.emit("\t%s %s, %d(fp)", storeMnemonic(width), regName(scratch), l.StackLocation)
		return nil
	case regalloc.Global:
		addr := uint8(regalloc.RegT1)
		if scratch == regalloc.RegT1 {
			addr = regalloc.RegT2
		}
		g.emit("\tla %s, %s", regName(addr), dest.Name)
		width := types.SelectWidth(dest.EffectiveType())
		g.emit("\t%s %s, 0(%s)", storeMnemonic(width), regName(scratch), regName(addr))
		return nil
	default:
		return errors.NewInternal(errors.Position{}, "unknown-writeback-location", "destination %q has unresolved writeback location", dest.Name)
	}
}

func (g *Generator) emitLine(fn *symtab.FunctionEntry, set *regalloc.Set, l *tac.Line) error {
	switch l.Op {
	case tac.OpAsm:
		g.emit("\t%s", l.Operands[0].Name)
		return nil

	case tac.OpAssign:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		return g.writeBack(set, l.Operands[0], a)

	case tac.OpAdd, tac.OpSubtract, tac.OpMul, tac.OpDiv:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		b, err := g.place(set, l.Operands[2], regalloc.RegT1)
		if err != nil {
			return err
		}
		mnem := map[tac.Op]string{tac.OpAdd: "add", tac.OpSubtract: "sub", tac.OpMul: "mul", tac.OpDiv: "div"}[l.Op]
		g.emit("\t%s %s, %s, %s", mnem, regName(regalloc.RegT2), regName(a), regName(b))
		return g.writeBack(set, l.Operands[0], regalloc.RegT2)

	case tac.OpLoad:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		width, err := types.SelectWidthForDereference(l.Operands[1].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, 0(%s)", loadMnemonic(width), regName(regalloc.RegT1), regName(a))
		return g.writeBack(set, l.Operands[0], regalloc.RegT1)

	case tac.OpLoadOff:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		width, err := types.SelectWidthForDereference(l.Operands[1].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, %d(%s)", loadMnemonic(width), regName(regalloc.RegT1), l.Operands[2].IntVal, regName(a))
		return g.writeBack(set, l.Operands[0], regalloc.RegT1)

	case tac.OpLoadArr:
		base, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		idx, err := g.place(set, l.Operands[2], regalloc.RegT1)
		if err != nil {
			return err
		}
		g.emit("\tslli %s, %s, %d", regName(regalloc.RegT1), regName(idx), l.Operands[3].IntVal)
		g.emit("\tadd %s, %s, %s", regName(regalloc.RegT1), regName(base), regName(regalloc.RegT1))
		width, err := types.SelectWidthForDereference(l.Operands[1].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, 0(%s)", loadMnemonic(width), regName(regalloc.RegT2), regName(regalloc.RegT1))
		return g.writeBack(set, l.Operands[0], regalloc.RegT2)

	case tac.OpStore:
		d, err := g.place(set, l.Operands[0], regalloc.RegT0)
		if err != nil {
			return err
		}
		a, err := g.place(set, l.Operands[1], regalloc.RegT1)
		if err != nil {
			return err
		}
		width, err := types.SelectWidthForDereference(l.Operands[0].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, 0(%s)", storeMnemonic(width), regName(a), regName(d))
		return nil

	case tac.OpStoreOff:
		d, err := g.place(set, l.Operands[0], regalloc.RegT0)
		if err != nil {
			return err
		}
		b, err := g.place(set, l.Operands[2], regalloc.RegT1)
		if err != nil {
			return err
		}
		width, err := types.SelectWidthForDereference(l.Operands[0].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, %d(%s)", storeMnemonic(width), regName(b), l.Operands[1].IntVal, regName(d))
		return nil

	case tac.OpStoreArr:
		d, err := g.place(set, l.Operands[0], regalloc.RegT0)
		if err != nil {
			return err
		}
		idx, err := g.place(set, l.Operands[1], regalloc.RegT1)
		if err != nil {
			return err
		}
		g.emit("\tslli %s, %s, %d", regName(regalloc.RegT1), regName(idx), l.Operands[2].IntVal)
		g.emit("\tadd %s, %s, %s", regName(regalloc.RegT1), regName(d), regName(regalloc.RegT1))
		c, err := g.place(set, l.Operands[3], regalloc.RegT2)
		if err != nil {
			return err
		}
		width, err := types.SelectWidthForDereference(l.Operands[0].EffectiveType(), g.classLayout)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, 0(%s)", storeMnemonic(width), regName(c), regName(regalloc.RegT1))
		return nil

	case tac.OpAddrOf:
		lifetime, ok := set.Lookup(l.Operands[1].Name)
		if !ok {
			return errors.NewInternal(errors.Position{}, "unknown-writeback-location", "addrof operand %q has no discovered lifetime", l.Operands[1].Name)
		}
		if lifetime.WBLocation == regalloc.Register {
			return errors.NewInternal(errors.Position{}, "addrof-of-register-lifetime", "cannot take the address of register-resident %q", l.Operands[1].Name)
		}
		if lifetime.WBLocation == regalloc.Global {
			g.emit("\tla %s, %s", regName(regalloc.RegT0), l.Operands[1].Name)
		} else {
			g.emit("\taddi %s, fp, %d", regName(regalloc.RegT0), lifetime.StackLocation)
		}
		return g.writeBack(set, l.Operands[0], regalloc.RegT0)

	case tac.OpLeaOff:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		g.emit("\taddi %s, %s, %d", regName(regalloc.RegT1), regName(a), l.Operands[2].IntVal)
		return g.writeBack(set, l.Operands[0], regalloc.RegT1)

	case tac.OpLeaArr:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		c, err := g.place(set, l.Operands[3], regalloc.RegT1)
		if err != nil {
			return err
		}
		g.emit("\tslli %s, %s, %d", regName(regalloc.RegT1), regName(c), l.Operands[2].IntVal)
		g.emit("\tadd %s, %s, %s", regName(regalloc.RegT1), regName(a), regName(regalloc.RegT1))
		return g.writeBack(set, l.Operands[0], regalloc.RegT1)

	case tac.OpBeq, tac.OpBne, tac.OpBgeu, tac.OpBltu, tac.OpBgtu, tac.OpBleu:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		b, err := g.place(set, l.Operands[2], regalloc.RegT1)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, %s, %s_%d", l.Op.String(), regName(a), regName(b), fn.Name, l.Operands[0].IntVal)
		return nil

	case tac.OpBeqz, tac.OpBnez:
		a, err := g.place(set, l.Operands[1], regalloc.RegT0)
		if err != nil {
			return err
		}
		g.emit("\t%s %s, %s_%d", l.Op.String(), regName(a), fn.Name, l.Operands[0].IntVal)
		return nil

	case tac.OpJmp:
		g.emit("\tj %s_%d", fn.Name, l.Operands[0].IntVal)
		return nil

	case tac.OpPush:
		a, err := g.place(set, l.Operands[0], regalloc.RegT0)
		if err != nil {
			return err
		}
		size, err := g.sizeOf(l.Operands[0].EffectiveType())
		if err != nil {
			return err
		}
		g.emit("\taddi sp, sp, -%d", size)
		g.emit("\t%s %s, 0(sp)", storeMnemonic(types.SelectWidth(l.Operands[0].EffectiveType())), regName(a))
		return nil

	case tac.OpPop:
		size, err := g.sizeOf(l.Operands[0].EffectiveType())
		if err != nil {
			return err
		}
		g.emit("\t%s %s, 0(sp)", loadMnemonic(types.SelectWidth(l.Operands[0].EffectiveType())), regName(regalloc.RegT0))
		g.emit("\taddi sp, sp, %d", size)
		return g.writeBack(set, l.Operands[0], regalloc.RegT0)

	case tac.OpCall:
		g.emit("\tjal ra, %s", l.Operands[1].Name)
		if l.Operands[0].Name != "" {
			return g.writeBack(set, l.Operands[0], regalloc.RegA0)
		}
		return nil

	case tac.OpLabel:
		g.emit("%s_%d:", fn.Name, l.Operands[0].IntVal)
		return nil

	case tac.OpReturn:
		if l.Operands[0].Name != "" {
			a, err := g.place(set, l.Operands[0], regalloc.RegT0)
			if err != nil {
				return err
			}
			if a != regalloc.RegA0 {
				g.emit("\tmv a0, %s", regName(a))
			}
		}
		g.emit("\tj %s_done", fn.Name)
		return nil

	case tac.OpDo, tac.OpEndDo:
		return nil

	default:
		return errors.NewInternal(errors.Position{}, "unexpected-tac-kind", "unexpected TAC op %v in function body", l.Op)
	}
}
