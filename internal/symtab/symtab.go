// Package symtab implements the nested scope tree, name mangling, and
// the post-linearization scope-collapse pass.
package symtab

import (
	"fmt"
	"io"
	"strings"

	"classicalc/internal/ast"
	"classicalc/internal/errors"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// Kind tags which payload a ScopeMember carries.
type Kind int

const (
	KindVariable Kind = iota
	KindArgument
	KindFunction
	KindScope
	KindBasicBlock
	KindClass
)

// VariableEntry is a variable or argument declaration.
type VariableEntry struct {
	Name        string
	Type        types.Type
	StackOffset int32
	DeclaredAt  uint32
	AssignedAt  int32
	IsAssigned  bool
	IsGlobal    bool
	MustSpill   bool
}

// MemberOffset is a class member's layout entry.
type MemberOffset struct {
	Offset   uint32
	Variable *VariableEntry
}

// ClassEntry is a class declaration: its member scope plus the computed
// layout (declaration-order offsets, natural alignment).
type ClassEntry struct {
	Name          string
	Members       *Scope
	MemberOffsets map[string]MemberOffset
	Size          uint32
}

// TotalSize implements types.ClassLayout.
func (c *ClassEntry) TotalSize() uint32 { return c.Size }

// FunctionEntry is a function declaration or definition.
type FunctionEntry struct {
	Name         string
	ReturnType   types.Type
	Arguments    []*VariableEntry
	ArgStackSize uint32
	MainScope    *Scope
	Blocks       []*tac.BasicBlock
	IsDefined    bool
	IsAsmFun     bool
	declAST      *ast.Node // for mismatch diagnostics
}

// ScopeMember is a tagged-variant entry of a Scope: exactly one payload
// field is set, selected by Kind.
type ScopeMember struct {
	Name     string
	Kind     Kind
	Variable *VariableEntry
	Function *FunctionEntry
	SubScope *Scope
	Block    *tac.BasicBlock
	Class    *ClassEntry
}

// Scope is a lexical scope: an ordered entry list plus a weak back-edge
// to its parent. Order drives emission order and scope-collapse
// hoisting, so entries are never stored keyed-only.
type Scope struct {
	Parent         *Scope // weak back-edge, not owning
	ParentFunction *FunctionEntry
	Entries        []*ScopeMember
	SubScopeCount  uint8
	Name           string

	byName map[string]*ScopeMember
}

// NewScope constructs an empty scope under parent (nil for the global
// scope) named name.
func NewScope(parent *Scope, parentFunction *FunctionEntry, name string) *Scope {
	return &Scope{
		Parent:         parent,
		ParentFunction: parentFunction,
		Name:           name,
		byName:         make(map[string]*ScopeMember),
	}
}

// Insert adds member to this scope. Fails if name already exists in
// this scope (not the parent chain).
func (s *Scope) Insert(member *ScopeMember) error {
	if _, exists := s.byName[member.Name]; exists {
		return fmt.Errorf("%q already declared in scope %q", member.Name, s.Name)
	}
	s.byName[member.Name] = member
	s.Entries = append(s.Entries, member)
	return nil
}

// Lookup walks the parent chain starting at s, returning the first
// matching member.
func (s *Scope) Lookup(name string) (*ScopeMember, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if m, ok := cur.byName[name]; ok {
			return m, true
		}
	}
	return nil, false
}

// LookupClass walks the parent chain for a class named name.
func (s *Scope) LookupClass(name string) (*ClassEntry, bool) {
	m, ok := s.Lookup(name)
	if !ok || m.Kind != KindClass {
		return nil, false
	}
	return m.Class, true
}

// CreateSubScope allocates a fresh child scope named with a two-hex-
// digit counter drawn from this scope's counter (00, 01, ... fe). Fails
// once 255 sub-scopes have been created here (SubScopeCount == 0xff);
// the name ff is never handed out.
func (s *Scope) CreateSubScope() (*Scope, error) {
	if s.SubScopeCount == 0xff {
		return nil, fmt.Errorf("scope %q: sub-scope count exceeds 255", s.Name)
	}
	name := fmt.Sprintf("%02x", s.SubScopeCount)
	s.SubScopeCount++
	child := NewScope(s, s.ParentFunction, name)
	if err := s.Insert(&ScopeMember{Name: name, Kind: KindScope, SubScope: child}); err != nil {
		return nil, err
	}
	return child, nil
}

// CreateVariable declares a variable or argument in this scope.
// Arguments are assigned stackOffset = argStackSize+8 (accounting for
// the saved ra/fp pair) and are immediately considered assigned;
// argStackSize on the owning function is bumped by sizeof(type).
func (s *Scope) CreateVariable(name string, t types.Type, isGlobal bool, declaredAt uint32, isArgument bool, sizeOf func(types.Type) (uint32, error)) (*VariableEntry, error) {
	v := &VariableEntry{
		Name:       name,
		Type:       t,
		DeclaredAt: declaredAt,
		IsGlobal:   isGlobal,
		AssignedAt: -1,
	}
	kind := KindVariable
	if isArgument {
		kind = KindArgument
		if s.ParentFunction == nil {
			return nil, fmt.Errorf("argument %q declared outside a function", name)
		}
		size, err := sizeOf(t)
		if err != nil {
			return nil, err
		}
		v.StackOffset = int32(s.ParentFunction.ArgStackSize) + 8
		s.ParentFunction.ArgStackSize += size
		v.IsAssigned = true
		v.AssignedAt = 0
	}
	if err := s.Insert(&ScopeMember{Name: name, Kind: kind, Variable: v}); err != nil {
		return nil, err
	}
	if isArgument {
		s.ParentFunction.Arguments = append(s.ParentFunction.Arguments, v)
	}
	return v, nil
}

// CreateFunction declares name at this (global) scope. If a function of
// that name already exists (a prototype), the existing entry is returned
// unchanged and no signature check is made here; the caller reconciles
// the signatures with ReconcileFunction.
func (s *Scope) CreateFunction(name string, returnType types.Type, declAST *ast.Node) (*FunctionEntry, error) {
	if existing, ok := s.byName[name]; ok {
		if existing.Kind != KindFunction {
			return nil, fmt.Errorf("%q already declared as non-function in scope %q", name, s.Name)
		}
		return existing.Function, nil
	}
	fn := &FunctionEntry{Name: name, ReturnType: returnType, declAST: declAST}
	fn.MainScope = NewScope(s, fn, name)
	if err := s.Insert(&ScopeMember{Name: name, Kind: KindFunction, Function: fn}); err != nil {
		return nil, err
	}
	return fn, nil
}

// ReconcileFunction checks that a later definition's signature matches
// an earlier declaration's, returning a Code error rendering both
// signatures side by side on mismatch. Grounded in the original
// source's prototype/definition conflict diagnostic.
func ReconcileFunction(existing *FunctionEntry, returnType types.Type, args []types.Type, pos errors.Position) error {
	mismatch := !types.Equal(existing.ReturnType, returnType) || len(existing.Arguments) != len(args)
	if !mismatch {
		for i, a := range args {
			if !types.Equal(existing.Arguments[i].Type, a) {
				mismatch = true
				break
			}
		}
	}
	if !mismatch {
		return nil
	}
	return errors.NewCode(pos,
		"conflicting prototype/definition for %q: declared as %s, redefined as %s",
		existing.Name, signatureString(existing.ReturnType, argTypes(existing.Arguments)), signatureString(returnType, args))
}

func argTypes(vs []*VariableEntry) []types.Type {
	out := make([]types.Type, len(vs))
	for i, v := range vs {
		out[i] = v.Type
	}
	return out
}

func signatureString(ret types.Type, args []types.Type) string {
	s := types.Describe(ret) + "("
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += types.Describe(a)
	}
	return s + ")"
}

// AddBasicBlock inserts b under the synthetic name "Block{labelNum}"
// and, when this scope belongs to a function, appends it to that
// function's ordered block list.
func (s *Scope) AddBasicBlock(b *tac.BasicBlock) error {
	name := fmt.Sprintf("Block%d", b.LabelNum)
	if err := s.Insert(&ScopeMember{Name: name, Kind: KindBasicBlock, Block: b}); err != nil {
		return err
	}
	if s.ParentFunction != nil {
		s.ParentFunction.Blocks = append(s.ParentFunction.Blocks, b)
	}
	return nil
}

// CreateClass declares a class at this scope with the given (already
// laid-out) member scope and offsets.
func (s *Scope) CreateClass(name string, members *Scope, offsets map[string]MemberOffset, size uint32) (*ClassEntry, error) {
	c := &ClassEntry{Name: name, Members: members, MemberOffsets: offsets, Size: size}
	if err := s.Insert(&ScopeMember{Name: name, Kind: KindClass, Class: c}); err != nil {
		return nil, err
	}
	return c, nil
}

// Dump renders the scope tree depth-first to w: one line per entry,
// indented by nesting depth. Gated behind pipeline.Verbosity>=2, mirroring
// compiler.c's argv-triggered symbol-table printouts before and after
// scope collapse; it is a debugging aid, not part of the emitted-assembly
// contract.
func (s *Scope) Dump(w io.Writer, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%sscope %q\n", indent, s.Name)
	for _, m := range s.Entries {
		switch m.Kind {
		case KindVariable, KindArgument:
			fmt.Fprintf(w, "%s  var %s: %s\n", indent, m.Name, types.Describe(m.Variable.Type))
		case KindFunction:
			fmt.Fprintf(w, "%s  fun %s: %s\n", indent, m.Name, types.Describe(m.Function.ReturnType))
			m.Function.MainScope.Dump(w, depth+1)
		case KindClass:
			fmt.Fprintf(w, "%s  class %s (%d bytes)\n", indent, m.Name, m.Class.Size)
		case KindScope:
			m.SubScope.Dump(w, depth+1)
		case KindBasicBlock:
			fmt.Fprintf(w, "%s  block %d\n", indent, m.Block.LabelNum)
		}
	}
}

// alignTo rounds offset up to a multiple of min(4, fieldSize), matching
// the original's per-field natural alignment rule.
func alignTo(offset, fieldSize uint32) uint32 {
	align := fieldSize
	if align > 4 {
		align = 4
	}
	if align == 0 {
		return offset
	}
	rem := offset % align
	if rem == 0 {
		return offset
	}
	return offset + (align - rem)
}

// LayoutClassMembers computes declaration-order member offsets with
// per-field natural alignment to min(4, size). Returns the offsets map
// and total (aligned) size.
func LayoutClassMembers(members []*VariableEntry, sizeOf func(types.Type) (uint32, error)) (map[string]MemberOffset, uint32, error) {
	offsets := make(map[string]MemberOffset, len(members))
	var cursor uint32
	for _, m := range members {
		size, err := sizeOf(m.Type)
		if err != nil {
			return nil, 0, err
		}
		cursor = alignTo(cursor, size)
		offsets[m.Name] = MemberOffset{Offset: cursor, Variable: m}
		cursor += size
	}
	return offsets, cursor, nil
}
