package tac

import (
	"reflect"
	"testing"
)

func TestCheckMonotonicNoGaps(t *testing.T) {
	lines := []*Line{
		{Op: OpAssign, Index: 0},
		{Op: OpAssign, Index: 1},
		{Op: OpAssign, Index: 2},
	}
	if ok, bad := CheckMonotonic(lines); !ok {
		t.Fatalf("expected monotonic, got bad index %d", bad)
	}
}

func TestCheckMonotonicDetectsGap(t *testing.T) {
	lines := []*Line{
		{Op: OpAssign, Index: 0},
		{Op: OpAssign, Index: 2},
	}
	ok, bad := CheckMonotonic(lines)
	if ok {
		t.Fatal("expected gap to be detected")
	}
	if bad != 0 {
		t.Fatalf("bad index = %d, want 0", bad)
	}
}

func TestBasicBlockAppendTracksEffectiveCode(t *testing.T) {
	b := NewBasicBlock(0)
	b.Append(&Line{Op: OpDo})
	if b.ContainsEffectiveCode {
		t.Fatal("do/enddo alone should not mark effective code")
	}
	b.Append(&Line{Op: OpAssign})
	if !b.ContainsEffectiveCode {
		t.Fatal("assign should mark effective code")
	}
}

func TestOperandEffectiveType(t *testing.T) {
	o := Operand{}
	if !reflect.DeepEqual(o.EffectiveType(), o.Type) {
		t.Fatal("without cast, effective type should equal declared type")
	}
}
