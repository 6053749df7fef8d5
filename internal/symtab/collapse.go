package symtab

import (
	"classicalc/internal/tac"
)

// Interner is the process-wide string-interning dictionary. Spec.md §5
// treats it as a single shared resource for the lifetime of one
// compilation; there is no concurrent access, so a bare map suffices.
type Interner struct {
	seen map[string]string
}

// NewInterner returns an empty interner.
func NewInterner() *Interner {
	return &Interner{seen: make(map[string]string)}
}

// Intern returns the canonical copy of s: re-interning an
// already-interned string returns the exact same stored value.
func (in *Interner) Intern(s string) string {
	if canon, ok := in.seen[s]; ok {
		return canon
	}
	in.seen[s] = s
	return s
}

// Mangle computes "{scopeName}_{name}", interned.
func Mangle(in *Interner, scopeName, name string) string {
	return in.Intern(scopeName + "_" + name)
}

// CollapseScopes runs the post-linearization scope-collapse pass over
// the global scope and every function reachable from it. Three passes,
// depth-first, per function scope tree and the global scope itself:
//
//  1. Recurse into sub-scopes and functions first.
//  2. Within each scope, rewrite every TAC operand with permutation
//     Standard or ObjPtr whose name resolves to an entry declared in
//     this scope: replace the name with its mangled form.
//  3. Hoist every sub-scope (depth>0) and every global variable
//     (regardless of depth) up into the parent scope under its
//     (already-mangled) name; basic blocks at depth>0 hoist too.
//
// Mangling must complete before hoisting runs for a given scope (the
// "declared in this scope" test in step 2 would otherwise be
// invalidated by an earlier hoist), so the two sub-passes are
// sequenced scope-by-scope rather than globally.
func CollapseScopes(in *Interner, global *Scope) {
	collapseScope(in, global, 0)
}

func collapseScope(in *Interner, s *Scope, depth int) {
	// Snapshot the names natively declared in this scope BEFORE
	// recursing: pass 1 below will splice hoisted-in members from
	// children into s.Entries, and those must not be mistaken for
	// names declared directly in s (which would double-mangle them).
	localNames := make(map[string]bool, len(s.Entries))
	for _, member := range s.Entries {
		if member.Kind == KindVariable || member.Kind == KindArgument {
			localNames[member.Name] = true
		}
	}

	// Pass 1: recurse depth-first into sub-scopes and function bodies
	// before touching this scope's own members.
	for _, member := range append([]*ScopeMember(nil), s.Entries...) {
		switch member.Kind {
		case KindScope:
			collapseScope(in, member.SubScope, depth+1)
		case KindFunction:
			collapseScope(in, member.Function.MainScope, 0)
		}
	}

	// Pass 2: mangle operand names resolved to this scope's own
	// (natively declared) variable/argument/objptr-style members.
	if len(localNames) > 0 {
		forEachBlockInScope(s, func(b *tac.BasicBlock) {
			for _, line := range b.TAC {
				for i := range line.Operands {
					op := &line.Operands[i]
					if op.Permutation != tac.Standard && op.Permutation != tac.ObjPtr {
						continue
					}
					if localNames[op.Name] {
						op.Name = Mangle(in, s.Name, op.Name)
					}
				}
			}
		})
		for name := range localNames {
			if member, ok := s.byName[name]; ok {
				mangled := Mangle(in, s.Name, name)
				delete(s.byName, name)
				member.Name = mangled
				s.byName[mangled] = member
				for idx, e := range s.Entries {
					if e == member {
						s.Entries[idx] = member
					}
				}
			}
		}
	}

	// Pass 3: hoist this scope's own contents into its parent whenever
	// this scope is itself a nested sub-scope (depth>0) — a function's
	// mainScope and the true global scope (both depth 0) are where
	// cascading stops. Global variables are the one exception: they
	// keep cascading one hop further even out of a depth-0 mainScope,
	// so a global declared deep inside a function still ends up a
	// direct member of the true global scope.
	if s.Parent == nil {
		return
	}
	var remaining []*ScopeMember
	for _, member := range s.Entries {
		hoist := depth > 0
		if member.Kind == KindVariable && member.Variable.IsGlobal {
			hoist = true
		}
		if member.Kind == KindArgument {
			hoist = false // arguments never leave the mainScope they were declared in
		}
		if member.Kind == KindScope && len(member.SubScope.Entries) == 0 {
			// fully drained by its own pass 3 already; nothing left worth keeping
			delete(s.byName, member.Name)
			continue
		}
		if hoist {
			delete(s.byName, member.Name)
			s.Parent.Entries = append(s.Parent.Entries, member)
			s.Parent.byName[member.Name] = member
			if member.Kind == KindScope {
				member.SubScope.Parent = s.Parent
			}
		} else {
			remaining = append(remaining, member)
		}
	}
	s.Entries = remaining
}

func forEachBlockInScope(s *Scope, fn func(*tac.BasicBlock)) {
	for _, member := range s.Entries {
		if member.Kind == KindBasicBlock {
			fn(member.Block)
		}
	}
}
