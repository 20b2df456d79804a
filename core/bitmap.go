package core

import "math/bits"

const bitmapWordBits = 32

// Bitmap is a compact set of small non-negative integers stored as an
// ordered sequence of 32-bit words. Group signatures are bitmaps with one
// bit per leaf group in the ancestor chain, so membership and ancestry
// checks reduce to subset and intersection tests.
//
// Invariant: trailing zero words are trimmed, so two bitmaps holding the
// same bits have equal word slices.
type Bitmap struct {
	words []uint32
}

// emptyBitmap is the distinguished shared empty set. All zero-value and
// fully-cleared bitmaps compare equal to it.
var emptyBitmap = Bitmap{}

// EmptyBitmap returns the shared empty bitmap.
func EmptyBitmap() Bitmap {
	return emptyBitmap
}

// NewBitmapBit returns a bitmap with exactly bit i set.
func NewBitmapBit(i uint32) Bitmap {
	var b Bitmap
	b.Set(i)
	return b
}

// Set sets bit i, growing the word sequence as needed.
func (b *Bitmap) Set(i uint32) {
	word := int(i / bitmapWordBits)
	for len(b.words) <= word {
		b.words = append(b.words, 0)
	}
	b.words[word] |= 1 << (i % bitmapWordBits)
}

// Clear clears bit i. Clearing a bit beyond the current length is a no-op.
func (b *Bitmap) Clear(i uint32) {
	word := int(i / bitmapWordBits)
	if word >= len(b.words) {
		return
	}
	b.words[word] &^= 1 << (i % bitmapWordBits)
	b.trim()
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i uint32) bool {
	word := int(i / bitmapWordBits)
	if word >= len(b.words) {
		return false
	}
	return b.words[word]&(1<<(i%bitmapWordBits)) != 0
}

// Any reports whether any bit is set.
func (b Bitmap) Any() bool {
	return len(b.words) != 0
}

// UnionWith merges all bits of o into b.
func (b *Bitmap) UnionWith(o Bitmap) {
	for len(b.words) < len(o.words) {
		b.words = append(b.words, 0)
	}
	for i, w := range o.words {
		b.words[i] |= w
	}
}

// IntersectWith keeps only the bits present in both b and o.
func (b *Bitmap) IntersectWith(o Bitmap) {
	if len(o.words) < len(b.words) {
		b.words = b.words[:len(o.words)]
	}
	for i := range b.words {
		b.words[i] &= o.words[i]
	}
	b.trim()
}

// Union returns a new bitmap holding the bits of both operands.
func (b Bitmap) Union(o Bitmap) Bitmap {
	out := b.Copy()
	out.UnionWith(o)
	return out
}

// Intersect returns a new bitmap holding the bits common to both operands.
func (b Bitmap) Intersect(o Bitmap) Bitmap {
	out := b.Copy()
	out.IntersectWith(o)
	return out
}

// Subset reports whether every bit of b is also set in o.
func (b Bitmap) Subset(o Bitmap) bool {
	if len(b.words) > len(o.words) {
		return false
	}
	for i, w := range b.words {
		if w&^o.words[i] != 0 {
			return false
		}
	}
	return true
}

// Intersects reports whether b and o share at least one bit.
func (b Bitmap) Intersects(o Bitmap) bool {
	n := min(len(b.words), len(o.words))
	for i := 0; i < n; i++ {
		if b.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// FindFirstSet returns the 1-based index of the lowest set bit, or 0 if the
// bitmap is empty. Semantics match a count-trailing-zeros primitive applied
// to 32-bit words scanned in ascending order.
func (b Bitmap) FindFirstSet() uint32 {
	for i, w := range b.words {
		if w != 0 {
			return uint32(i*bitmapWordBits+bits.TrailingZeros32(w)) + 1
		}
	}
	return 0
}

// Popcount returns the number of set bits.
func (b Bitmap) Popcount() int {
	n := 0
	for _, w := range b.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// Copy returns an independent copy of b.
func (b Bitmap) Copy() Bitmap {
	if len(b.words) == 0 {
		return emptyBitmap
	}
	out := Bitmap{words: make([]uint32, len(b.words))}
	copy(out.words, b.words)
	return out
}

// Equal reports whether b and o hold exactly the same bits.
func (b Bitmap) Equal(o Bitmap) bool {
	if len(b.words) != len(o.words) {
		return false
	}
	for i, w := range b.words {
		if w != o.words[i] {
			return false
		}
	}
	return true
}

func (b *Bitmap) trim() {
	n := len(b.words)
	for n > 0 && b.words[n-1] == 0 {
		n--
	}
	b.words = b.words[:n]
}
