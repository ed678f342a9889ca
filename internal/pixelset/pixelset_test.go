package pixelset

import (
	"slices"
	"testing"
)

func TestSingletonAndHas(t *testing.T) {
	s := Singleton(130, 129)
	if !s.Has(129) {
		t.Fatal("expected pixel 129 to be present")
	}
	if s.Has(128) || s.Has(0) {
		t.Fatal("unexpected neighbouring pixels present")
	}
	if s.Has(500) || s.Has(-1) {
		t.Fatal("out of range indices must be absent")
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestUnionIntersects(t *testing.T) {
	a := Of(200, 1, 70, 199)
	b := Of(200, 2, 71)
	if Intersects(a, b) {
		t.Fatal("disjoint sets reported as intersecting")
	}
	u := Union(a, b)
	if got := slices.Collect(u.Indices()); !slices.Equal(got, []int{1, 2, 70, 71, 199}) {
		t.Fatalf("Union indices = %v", got)
	}
	if !Intersects(u, Singleton(200, 199)) {
		t.Fatal("union should intersect pixel 199")
	}
	if !Equal(And(u, b), b) {
		t.Fatal("And(union, b) should equal b")
	}
	if a.Len() != 3 {
		t.Fatal("Union must not mutate its inputs")
	}
}

func TestEqualAndZeroValue(t *testing.T) {
	var zero Set
	if !zero.IsEmpty() {
		t.Fatal("zero set should be empty")
	}
	if !Equal(zero, New(90)) {
		t.Fatal("zero set should equal an empty set of any width")
	}
	if Equal(Singleton(90, 3), New(90)) {
		t.Fatal("non-empty set equal to empty set")
	}
	if !Equal(Union(zero, Singleton(90, 3)), Singleton(90, 3)) {
		t.Fatal("union with zero set should be identity")
	}
}

func TestFullTrimsTail(t *testing.T) {
	s := Full(70)
	if got := s.Len(); got != 70 {
		t.Fatalf("Full(70).Len() = %d", got)
	}
	if s.Has(70) {
		t.Fatal("pixel beyond width present")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		set  Set
		want string
	}{
		{New(8), "0x0"},
		{Singleton(8, 0), "0x1"},
		{Of(8, 0, 7), "0x81"},
		{Singleton(72, 64), "0x10000000000000000"},
	}
	for _, tt := range tests {
		if got := tt.set.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestWidthMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on width mismatch")
		}
	}()
	Union(New(8), New(16))
}
