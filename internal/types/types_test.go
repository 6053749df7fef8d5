package types

import (
	"reflect"
	"testing"
)

func noClasses(string) (ClassLayout, bool) { return nil, false }

func TestSizeOfPrimitives(t *testing.T) {
	cases := []struct {
		t    Type
		want uint32
	}{
		{Type{Basic: U8}, 1},
		{Type{Basic: U16}, 2},
		{Type{Basic: U32}, 4},
		{Type{Basic: U8, Indirection: 1}, 4},
		{Type{Basic: U8, ArraySize: 4}, 4},
		{Type{Basic: U16, ArraySize: 4}, 8},
	}
	for _, c := range cases {
		got, err := SizeOf(c.t, noClasses)
		if err != nil {
			t.Fatalf("SizeOf(%v): %v", c.t, err)
		}
		if got != c.want {
			t.Errorf("SizeOf(%v) = %d, want %d", c.t, got, c.want)
		}
	}
}

type fakeClass uint32

func (f fakeClass) TotalSize() uint32 { return uint32(f) }

func TestSizeOfClass(t *testing.T) {
	classes := func(name string) (ClassLayout, bool) {
		if name == "P" {
			return fakeClass(6), true
		}
		return nil, false
	}
	got, err := SizeOf(Type{Basic: Class, ClassName: "P"}, classes)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("SizeOf(class P) = %d, want 6", got)
	}
}

func TestDecay(t *testing.T) {
	arr := Type{Basic: U8, ArraySize: 4}
	got := Decay(arr)
	if got.ArraySize != 0 || got.Indirection != 1 {
		t.Errorf("Decay(%v) = %v, want ArraySize=0 Indirection=1", arr, got)
	}
	ptr := Type{Basic: U8, Indirection: 1}
	if got := Decay(ptr); !reflect.DeepEqual(got, ptr) {
		t.Errorf("Decay of non-array should be identity, got %v", got)
	}
}

func TestSelectWidth(t *testing.T) {
	cases := []struct {
		t    Type
		want Width
	}{
		{Type{Basic: U8}, WidthByte},
		{Type{Basic: U16}, WidthHalf},
		{Type{Basic: U32}, WidthWord},
		{Type{Basic: U8, Indirection: 1}, WidthWord},
		{Type{Basic: U8, ArraySize: 4}, WidthWord},
	}
	for _, c := range cases {
		if got := SelectWidth(c.t); got != c.want {
			t.Errorf("SelectWidth(%v) = %s, want %s", c.t, got, c.want)
		}
	}
}

func TestSelectWidthForDereference(t *testing.T) {
	ptrToU16 := Type{Basic: U16, Indirection: 1}
	got, err := SelectWidthForDereference(ptrToU16, noClasses)
	if err != nil {
		t.Fatal(err)
	}
	if got != WidthHalf {
		t.Errorf("SelectWidthForDereference(u16*) = %s, want h", got)
	}

	_, err = SelectWidthForDereference(Type{Basic: U8}, noClasses)
	if err == nil {
		t.Fatal("expected error dereferencing non-indirect operand")
	}
}

func TestCompareWideningMonotone(t *testing.T) {
	u8 := Type{Basic: U8}
	u16 := Type{Basic: U16}
	u32 := Type{Basic: U32}

	ok, err := CompareWidening(u16, u8, noClasses)
	if err != nil || !ok {
		t.Fatalf("u8 -> u16 should widen, got ok=%v err=%v", ok, err)
	}
	ok, err = CompareWidening(u32, u8, noClasses)
	if err != nil || !ok {
		t.Fatalf("u8 -> u32 should widen, got ok=%v err=%v", ok, err)
	}
	ok, _ = CompareWidening(u8, u16, noClasses)
	if ok {
		t.Fatal("u16 -> u8 should not widen (narrowing)")
	}
	ok, _ = CompareWidening(Type{Basic: U8, Indirection: 1}, u8, noClasses)
	if ok {
		t.Fatal("pointer-ness mismatch should not widen")
	}
}
