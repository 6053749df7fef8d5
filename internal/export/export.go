// Package export wraps emitted assembly in the "~export ... ~end
// export ..." textual section markers the downstream assembler/linker
// expects: one bracket pair per function, the reserved global
// user-start and asm sections, and one per global variable.
package export

import (
	"fmt"
	"io"

	"classicalc/internal/codegen"
	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// Frame writes every export section for a whole compiled program: the
// global scope's functions and variables in declaration order, then the
// reserved user-start and global-asm sections.
func Frame(out io.Writer, global *symtab.Scope, userStart, globalAsm *tac.BasicBlock, gen *codegen.Generator) error {
	for _, member := range global.Entries {
		switch member.Kind {
		case symtab.KindFunction:
			if err := frameFunction(out, member.Function, gen); err != nil {
				return err
			}
		case symtab.KindVariable:
			frameVariable(out, member.Variable)
		}
	}
	if err := frameUserStart(out, userStart, global, gen); err != nil {
		return err
	}
	frameGlobalAsm(out, globalAsm)
	return nil
}

func frameFunction(out io.Writer, fn *symtab.FunctionEntry, gen *codegen.Generator) error {
	kind := "funcdec"
	if fn.IsDefined {
		kind = "funcdef"
	}
	fmt.Fprintf(out, "~export %s %s\n", kind, fn.Name)
	fmt.Fprintf(out, "returns %s\n", types.Describe(fn.ReturnType))
	fmt.Fprintf(out, "%d arguments\n", len(fn.Arguments))
	for _, a := range fn.Arguments {
		fmt.Fprintf(out, "%s %s\n", types.Describe(a.Type), a.Name)
	}
	if fn.IsDefined {
		if err := gen.EmitFunction(fn); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "~end export %s %s\n", kind, fn.Name)
	return nil
}

func frameVariable(out io.Writer, v *symtab.VariableEntry) {
	fmt.Fprintf(out, "~export variable %s\n", v.Name)
	fmt.Fprintf(out, "%s\n", types.Describe(v.Type))
	if v.Type.InitializerBytes != nil {
		fmt.Fprintln(out, "initialize")
		for _, b := range v.Type.InitializerBytes {
			fmt.Fprintf(out, ".byte 0x%02X\n", b)
		}
	} else {
		fmt.Fprintln(out, "noinitialize")
	}
	fmt.Fprintf(out, "~end export variable %s\n", v.Name)
}

func frameUserStart(out io.Writer, userStart *tac.BasicBlock, global *symtab.Scope, gen *codegen.Generator) error {
	fmt.Fprintln(out, "~export section userstart")
	if err := gen.EmitGlobalBlock(userStart, global, "userstart"); err != nil {
		return err
	}
	fmt.Fprintln(out, "~end export section userstart")
	return nil
}

func frameGlobalAsm(out io.Writer, globalAsm *tac.BasicBlock) {
	fmt.Fprintln(out, "~export section asm")
	for _, l := range globalAsm.TAC {
		if l.Op == tac.OpAsm {
			fmt.Fprintf(out, "\t%s\n", l.Operands[0].Name)
		}
	}
	fmt.Fprintln(out, "~end export section asm")
}
