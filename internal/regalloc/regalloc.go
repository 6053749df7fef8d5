// Package regalloc computes per-variable live ranges over a function's
// flat TAC index and assigns machine registers, stack slots, or global
// addresses to them: the "level 0" naive allocator called for by the
// design notes, split into lifetime discovery and register assignment
// so the latter can be swapped without touching the AST walker.
package regalloc

import (
	"sort"

	"classicalc/internal/symtab"
	"classicalc/internal/tac"
	"classicalc/internal/types"
)

// Reserved machine register indices in the RISC-V-style 32-register
// file. The general-purpose allocation pool runs from StartAllocatingFrom
// through NumRegisters-1.
const (
	RegZero             = 0
	RegRA               = 1
	RegSP               = 2
	RegT0               = 5
	RegT1               = 6
	RegT2               = 7
	RegFP               = 8
	RegA0               = 10
	StartAllocatingFrom = 11
	NumRegisters        = 32
)

// WritebackLocation is where a variable's value physically lives.
type WritebackLocation int

const (
	Unknown WritebackLocation = iota
	Register
	Stack
	Global
)

// Lifetime is the interval of TAC indices over which a name is live,
// plus its eventual storage decision.
type Lifetime struct {
	Name             string
	Type             types.Type
	Start            uint32
	End              uint32
	NReads           int
	NWrites          int
	WBLocation       WritebackLocation
	StackLocation    int32
	RegisterLocation uint8
	IsArgument       bool
	MustSpill        bool
}

// Set is the discovered lifetimes for one function, keyed by name but
// also held in discovery order for deterministic assignment.
type Set struct {
	byName map[string]*Lifetime
	order  []*Lifetime
}

// All returns every discovered lifetime in first-appearance order.
func (s *Set) All() []*Lifetime { return s.order }

// Lookup finds a lifetime by name.
func (s *Set) Lookup(name string) (*Lifetime, bool) {
	l, ok := s.byName[name]
	return l, ok
}

func trackable(o tac.Operand) bool {
	return o.Permutation == tac.Standard || o.Permutation == tac.Temp || o.Permutation == tac.ObjPtr
}

// operandRoles reports which operand slots (0..3) are read and which
// are written for op, per the contracts in tac.Op's doc comments.
func operandRoles(op tac.Op) (reads []int, writes []int) {
	switch op {
	case tac.OpAsm, tac.OpLabel, tac.OpJmp, tac.OpDo, tac.OpEndDo:
		return nil, nil
	case tac.OpAssign, tac.OpLoad, tac.OpAddrOf:
		return []int{1}, []int{0}
	case tac.OpAdd, tac.OpSubtract, tac.OpMul, tac.OpDiv:
		return []int{1, 2}, []int{0}
	case tac.OpLoadOff, tac.OpLeaOff:
		return []int{1, 2}, []int{0}
	case tac.OpLoadArr, tac.OpLeaArr:
		return []int{1, 2, 3}, []int{0}
	case tac.OpStore:
		return []int{0, 1}, nil
	case tac.OpStoreOff:
		return []int{0, 1, 2}, nil
	case tac.OpStoreArr:
		return []int{0, 1, 2, 3}, nil
	case tac.OpBeq, tac.OpBne, tac.OpBgeu, tac.OpBltu, tac.OpBgtu, tac.OpBleu:
		return []int{1, 2}, nil
	case tac.OpBeqz, tac.OpBnez:
		return []int{1}, nil
	case tac.OpPush, tac.OpReturn:
		// the linearizer and codegen carry the pushed/returned value in slot 0
		return []int{0}, nil
	case tac.OpPop:
		return nil, []int{0}
	case tac.OpCall:
		return nil, []int{0}
	default:
		return nil, nil
	}
}

// loadOffLhsQuirk: for lea_off/load_off, operand 0 ("d") doubles as a
// source in the "d/a" notation only when the destination itself is
// being used as the base (chained struct addressing never does this in
// our lowering — operand 0 is always a fresh temp destination). We
// therefore only treat slot 0 as a write for these ops; declared above.

// Discover walks fn's basic blocks in order and builds live ranges for
// every variable/argument/temporary name referenced, consulting lookup
// for each name's IsGlobal/MustSpill declaration-time flags. Arguments
// keep their declaration-time positive stack offset as StackLocation
// in case they are not promoted to a register.
func Discover(fn *symtab.FunctionEntry, lookup func(name string) (*symtab.VariableEntry, bool)) *Set {
	set := &Set{byName: map[string]*Lifetime{}}

	get := func(name string, t types.Type) *Lifetime {
		if l, ok := set.byName[name]; ok {
			return l
		}
		l := &Lifetime{Name: name, Type: t, WBLocation: Unknown}
		if v, ok := lookup(name); ok {
			l.MustSpill = v.MustSpill
			if v.IsGlobal {
				l.WBLocation = Global
			} else if v.MustSpill {
				l.WBLocation = Stack
			}
			l.IsArgument = v.StackOffset > 0 && !v.IsGlobal
			if l.IsArgument {
				l.StackLocation = v.StackOffset
			}
		}
		set.byName[name] = l
		set.order = append(set.order, l)
		return l
	}

	touch := func(o tac.Operand, idx uint32, isWrite bool) {
		if !trackable(o) {
			return
		}
		l := get(o.Name, o.EffectiveType())
		if l.Start == 0 && l.End == 0 && l.NReads == 0 && l.NWrites == 0 {
			l.Start = idx
		}
		if idx < l.Start {
			l.Start = idx
		}
		if idx > l.End {
			l.End = idx
		}
		if isWrite {
			l.NWrites++
		} else {
			l.NReads++
		}
	}

	for _, b := range fn.Blocks {
		for _, line := range b.TAC {
			reads, writes := operandRoles(line.Op)
			for _, i := range reads {
				touch(line.Operands[i], line.Index, false)
			}
			for _, i := range writes {
				touch(line.Operands[i], line.Index, true)
			}
		}
	}
	return set
}

// Assignment is the outcome of level-0 register assignment: bytes of
// local stack space required (excluding saved registers and args) and
// which registers were actually assigned to some lifetime (for
// prologue/epilogue callee-save).
type Assignment struct {
	LocalStackSize  uint32
	TouchedRegister [NumRegisters]bool
}

// AssignLevel0 implements the naive greedy allocator: lifetimes already
// forced to stack/global keep that location; everything else is handed
// out via linear-scan over the pool starting at StartAllocatingFrom,
// spilling to a fresh negative stack slot when the pool is exhausted.
func AssignLevel0(set *Set, sizeOf func(types.Type) (uint32, error)) (Assignment, error) {
	var a Assignment
	var cursor int32

	unassigned := make([]*Lifetime, 0, len(set.order))
	for _, l := range set.order {
		switch l.WBLocation {
		case Global:
			continue
		case Stack:
			if !l.IsArgument {
				size, err := sizeOf(l.Type)
				if err != nil {
					return a, err
				}
				cursor -= int32(size)
				l.StackLocation = cursor
				a.LocalStackSize += size
			}
		default:
			unassigned = append(unassigned, l)
		}
	}

	// Linear-scan over lifetimes sorted by start; longer-lived/hotter
	// lifetimes starting at the same index are preferred for a register
	// first, matching the "decreasing priority" ordering the design
	// calls for.
	sort.SliceStable(unassigned, func(i, j int) bool {
		if unassigned[i].Start != unassigned[j].Start {
			return unassigned[i].Start < unassigned[j].Start
		}
		pi := int(unassigned[i].End-unassigned[i].Start) + unassigned[i].NReads + unassigned[i].NWrites
		pj := int(unassigned[j].End-unassigned[j].Start) + unassigned[j].NReads + unassigned[j].NWrites
		return pi > pj
	})

	pool := make([]uint8, 0, NumRegisters-StartAllocatingFrom)
	for r := uint8(StartAllocatingFrom); r < NumRegisters; r++ {
		pool = append(pool, r)
	}
	var active []*Lifetime // currently assigned, sorted by End ascending

	for _, l := range unassigned {
		// expire
		kept := active[:0]
		for _, act := range active {
			if act.End < l.Start {
				pool = append(pool, act.RegisterLocation)
			} else {
				kept = append(kept, act)
			}
		}
		active = kept
		sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })

		if len(pool) > 0 {
			reg := pool[0]
			pool = pool[1:]
			l.WBLocation = Register
			l.RegisterLocation = reg
			a.TouchedRegister[reg] = true
			active = append(active, l)
			sort.Slice(active, func(i, j int) bool { return active[i].End < active[j].End })
			continue
		}

		if l.IsArgument {
			l.WBLocation = Stack // keeps its existing positive StackLocation
			continue
		}
		size, err := sizeOf(l.Type)
		if err != nil {
			return a, err
		}
		cursor -= int32(size)
		l.WBLocation = Stack
		l.StackLocation = cursor
		a.LocalStackSize += size
	}

	return a, nil
}
