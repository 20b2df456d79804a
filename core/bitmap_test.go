package core

import "testing"

// TestBitmap_SetClearTest verifies basic bit manipulation
// Given: An empty bitmap
// When: Bits across several words are set, tested and cleared
// Then: Test reflects exactly the set bits and cleared trailing words are trimmed
func TestBitmap_SetClearTest(t *testing.T) {
	// Arrange
	var b Bitmap

	// Act
	b.Set(0)
	b.Set(31)
	b.Set(95)

	// Assert
	for _, i := range []uint32{0, 31, 95} {
		if !b.Test(i) {
			t.Fatalf("bit %d should be set", i)
		}
	}
	if b.Test(1) || b.Test(64) {
		t.Fatal("unset bits should not test true")
	}
	if b.Popcount() != 3 {
		t.Fatalf("popcount = %d, want 3", b.Popcount())
	}

	// Act - clear the highest bit; the trailing words must be trimmed
	b.Clear(95)

	// Assert
	if b.Test(95) {
		t.Fatal("cleared bit should not test true")
	}
	if !b.Equal(NewBitmapBit(0).Union(NewBitmapBit(31))) {
		t.Fatal("bitmap after clear should equal {0,31}")
	}
}

// TestBitmap_EmptyBehavior verifies the distinguished empty bitmap
// Given: The shared empty bitmap and a fully-cleared bitmap
// When: They are compared and queried
// Then: Both are equal, report no bits and FindFirstSet returns 0
func TestBitmap_EmptyBehavior(t *testing.T) {
	empty := EmptyBitmap()
	if empty.Any() {
		t.Fatal("empty bitmap should report Any() == false")
	}
	if empty.FindFirstSet() != 0 {
		t.Fatalf("FindFirstSet on empty = %d, want 0", empty.FindFirstSet())
	}

	b := NewBitmapBit(40)
	b.Clear(40)
	if !b.Equal(empty) {
		t.Fatal("fully-cleared bitmap should equal the empty bitmap")
	}
	if b.Any() {
		t.Fatal("fully-cleared bitmap should report Any() == false")
	}
}

// TestBitmap_FindFirstSet verifies the count-trailing-zeros semantics
// Given: Bitmaps with known lowest bits
// When: FindFirstSet is called
// Then: The 1-based index of the lowest set bit is returned
func TestBitmap_FindFirstSet(t *testing.T) {
	cases := []struct {
		bit  uint32
		want uint32
	}{
		{0, 1},
		{5, 6},
		{31, 32},
		{32, 33},
		{100, 101},
	}
	for _, c := range cases {
		b := NewBitmapBit(c.bit)
		if got := b.FindFirstSet(); got != c.want {
			t.Errorf("FindFirstSet({%d}) = %d, want %d", c.bit, got, c.want)
		}
	}

	// Lowest bit wins when several are set.
	b := NewBitmapBit(7)
	b.Set(70)
	if got := b.FindFirstSet(); got != 8 {
		t.Fatalf("FindFirstSet({7,70}) = %d, want 8", got)
	}
}

// TestBitmap_SubsetAndIntersects verifies the set-relation predicates
// Given: Nested and disjoint bitmaps
// When: Subset and Intersects are evaluated
// Then: Subset holds only for containment; Intersects only for shared bits
func TestBitmap_SubsetAndIntersects(t *testing.T) {
	parent := NewBitmapBit(1)
	child := parent.Union(NewBitmapBit(2))
	other := NewBitmapBit(3)

	if !parent.Subset(child) {
		t.Fatal("parent signature should be a subset of child signature")
	}
	if child.Subset(parent) {
		t.Fatal("child signature should not be a subset of parent signature")
	}
	if !EmptyBitmap().Subset(parent) {
		t.Fatal("empty bitmap is a subset of everything")
	}
	if parent.Intersects(other) {
		t.Fatal("disjoint bitmaps should not intersect")
	}
	if !child.Intersects(parent) {
		t.Fatal("overlapping bitmaps should intersect")
	}
}

// TestBitmap_UnionIntersect verifies the derived set operations
// Given: Two overlapping bitmaps
// When: Union and Intersect are computed
// Then: Results hold exactly the expected bits and operands are unchanged
func TestBitmap_UnionIntersect(t *testing.T) {
	a := NewBitmapBit(1)
	a.Set(50)
	b := NewBitmapBit(50)
	b.Set(2)

	u := a.Union(b)
	for _, i := range []uint32{1, 2, 50} {
		if !u.Test(i) {
			t.Fatalf("union missing bit %d", i)
		}
	}

	x := a.Intersect(b)
	if !x.Equal(NewBitmapBit(50)) {
		t.Fatal("intersection should hold exactly bit 50")
	}

	// Operands untouched
	if a.Popcount() != 2 || b.Popcount() != 2 {
		t.Fatal("Union/Intersect must not mutate their operands")
	}

	// Intersection with a disjoint set trims down to empty. Read-only
	// queries work on unaddressable values such as chained results.
	if a.Intersect(NewBitmapBit(9)).Any() {
		t.Fatal("disjoint intersection should be empty")
	}

	// Round trip from empty: union with b then intersect with b yields b.
	var rt Bitmap
	rt.UnionWith(b)
	rt.IntersectWith(b)
	if !rt.Equal(b) {
		t.Fatal("union-then-intersect from empty should reproduce the operand")
	}
}

// TestBitmap_CopyIndependence verifies Copy produces an independent bitmap
func TestBitmap_CopyIndependence(t *testing.T) {
	a := NewBitmapBit(3)
	c := a.Copy()
	c.Set(4)

	if a.Test(4) {
		t.Fatal("mutating a copy must not affect the original")
	}
}
