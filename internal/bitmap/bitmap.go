// Package bitmap provides a compact, growable bitset for row indices.
//
// It is the dense backend behind presence sets: one bit per table row,
// packed into uint64 words so intersection and union sizes reduce to
// word-wise AND/OR followed by a popcount.
package bitmap

import "math/bits"

// Bitmap represents a bitset backed by a slice of uint64 words.
// Each bit corresponds to a non-negative row index.
type Bitmap struct {
	data []uint64
}

// New allocates a bitmap sized for ids in the range [0, n).
//
// If n <= 0, no backing storage is allocated and the bitmap behaves as
// an empty set. The bitmap still grows on Add.
func New(n int) *Bitmap {
	if n <= 0 {
		return &Bitmap{data: nil}
	}
	return &Bitmap{data: make([]uint64, WordsFor(n))}
}

// WordsFor returns the number of 64-bit words needed to hold n bits.
func WordsFor(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 63) / 64
}

// Add sets the bit for id, growing the backing slice when needed.
// Negative ids are ignored.
func (b *Bitmap) Add(id int) {
	if id < 0 {
		return
	}
	word := id / 64
	if word >= len(b.data) {
		b.grow(word + 1)
	}
	b.data[word] |= 1 << uint(id%64)
}

// Has reports whether the bit for id is set. Negative ids always return false.
func (b *Bitmap) Has(id int) bool {
	if id < 0 {
		return false
	}
	word := id / 64
	if word >= len(b.data) {
		return false
	}
	return b.data[word]&(1<<uint(id%64)) != 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}

// Resize sets the number of backing words to hold n bits. Shrinking clears
// every bit >= n.
func (b *Bitmap) Resize(n int) {
	want := WordsFor(n)
	if want > len(b.data) {
		b.grow(want)
		return
	}
	clear(b.data[want:])
	b.data = b.data[:want]
	if rem := n % 64; rem != 0 && want > 0 {
		b.data[want-1] &= (uint64(1) << uint(rem)) - 1
	}
}

// Words exposes the backing words. Callers must not modify them.
func (b *Bitmap) Words() []uint64 { return b.data }

// Each calls fn for every set bit in ascending order until fn returns false.
func (b *Bitmap) Each(fn func(id int) bool) {
	for i, w := range b.data {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			if !fn(i*64 + tz) {
				return
			}
			w &= w - 1
		}
	}
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	out := make([]uint64, len(b.data))
	copy(out, b.data)
	return &Bitmap{data: out}
}

func (b *Bitmap) grow(words int) {
	if words <= cap(b.data) {
		b.data = b.data[:words]
		return
	}
	next := make([]uint64, words, max(words, 2*cap(b.data)))
	copy(next, b.data)
	b.data = next
}

// AndCount returns |a ∩ b| without allocating.
func AndCount(a, b []uint64) int {
	n := min(len(a), len(b))
	c := 0
	for i := 0; i < n; i++ {
		c += bits.OnesCount64(a[i] & b[i])
	}
	return c
}

// OrCount returns |a ∪ b| without allocating.
func OrCount(a, b []uint64) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	c := 0
	for i := range b {
		c += bits.OnesCount64(a[i] | b[i])
	}
	for i := len(b); i < len(a); i++ {
		c += bits.OnesCount64(a[i])
	}
	return c
}

// AndInto writes a AND b into dst, which must hold max(len(a), len(b)) words.
// Words past the shorter operand are cleared.
func AndInto(dst, a, b []uint64) {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		dst[i] = a[i] & b[i]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// OrInto writes a OR b into dst, which must hold max(len(a), len(b)) words.
func OrInto(dst, a, b []uint64) {
	for i := range dst {
		var x, y uint64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		dst[i] = x | y
	}
}

// PopCount returns the number of set bits across words.
func PopCount(words []uint64) int {
	c := 0
	for _, w := range words {
		c += bits.OnesCount64(w)
	}
	return c
}
