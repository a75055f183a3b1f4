// Package combo enumerates k-combinations of sample indices in
// lexicographic order.
//
// Enumeration is lazy: an Enumerator holds only the current index tuple.
// It can be restarted with Reset and positioned anywhere in the sequence
// with Seek, which is how combination-range chunks pick their slice.
package combo

import (
	"iter"

	"combostat/internal/apperr"
)

// Enumerator walks every k-subset of {0..n-1} in lexicographic order.
type Enumerator struct {
	n, k int

	idx     []int
	started bool
	pending bool // Seek positioned idx; next Next returns it unchanged
	done    bool
	pivot   int
	rank    uint64
}

// New returns an Enumerator over C(n, k) tuples. It fails with
// ErrInvalidArgument unless 1 <= k <= n.
func New(n, k int) (*Enumerator, error) {
	if k < 1 || k > n {
		return nil, apperr.InvalidArgf("combination size k=%d must be in [1, %d]", k, n)
	}
	return &Enumerator{n: n, k: k, idx: make([]int, k)}, nil
}

// N is the number of items combinations are drawn from.
func (e *Enumerator) N() int { return e.n }

// K is the combination size.
func (e *Enumerator) K() int { return e.k }

// Count returns C(n, k) and whether it fits in a uint64.
func (e *Enumerator) Count() (uint64, bool) { return Binomial(e.n, e.k) }

// Next advances to the next tuple. It returns false once the sequence is
// exhausted.
func (e *Enumerator) Next() bool {
	if e.done {
		return false
	}
	if e.pending {
		e.pending = false
		e.pivot = 0
		return true
	}
	if !e.started {
		for i := range e.idx {
			e.idx[i] = i
		}
		e.started = true
		e.pivot = 0
		e.rank = 0
		return true
	}

	i := e.k - 1
	for i >= 0 && e.idx[i] == e.n-e.k+i {
		i--
	}
	if i < 0 {
		e.done = true
		return false
	}
	e.idx[i]++
	for j := i + 1; j < e.k; j++ {
		e.idx[j] = e.idx[j-1] + 1
	}
	e.pivot = i
	e.rank++
	return true
}

// Indices returns the current tuple. The slice is reused by Next; copy it
// to keep it.
func (e *Enumerator) Indices() []int { return e.idx }

// Pivot is the first position that changed since the previous tuple. It is
// 0 for the first tuple and right after Seek.
func (e *Enumerator) Pivot() int { return e.pivot }

// Rank is the zero-based position of the current tuple in the sequence.
func (e *Enumerator) Rank() uint64 { return e.rank }

// Reset restarts the enumeration from the first tuple.
func (e *Enumerator) Reset() {
	e.started = false
	e.pending = false
	e.done = false
	e.pivot = 0
	e.rank = 0
}

// Seek positions the enumerator so that the next call to Next yields the
// tuple with the given rank. Seeking to C(n, k) leaves it exhausted.
func (e *Enumerator) Seek(rank uint64) error {
	total, ok := e.Count()
	if !ok {
		return apperr.InvalidArgf("C(%d,%d) overflows uint64; cannot seek", e.n, e.k)
	}
	if rank > total {
		return apperr.InvalidArgf("rank %d out of range [0, %d]", rank, total)
	}
	e.started = true
	e.pivot = 0
	e.rank = rank
	if rank == total {
		e.pending = false
		e.done = true
		return nil
	}
	unrank(e.idx, e.n, rank)
	e.pending = true
	e.done = false
	return nil
}

// unrank fills idx with the lexicographic tuple at position rank.
func unrank(idx []int, n int, rank uint64) {
	k := len(idx)
	c := 0
	for i := 0; i < k; i++ {
		for {
			// tuples that keep c at position i
			block, _ := Binomial(n-c-1, k-i-1)
			if rank < block {
				break
			}
			rank -= block
			c++
		}
		idx[i] = c
		c++
	}
}

// All returns an iterator over the remaining tuples. The yielded slice is
// reused between iterations.
func (e *Enumerator) All() iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		for e.Next() {
			if !yield(e.idx) {
				return
			}
		}
	}
}

// Names maps index tuple idx to sample names.
func Names(names []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = names[j]
	}
	return out
}

// Enumerate yields every k-combination of names, in input order, as fresh
// slices.
func Enumerate(names []string, k int) (iter.Seq[[]string], error) {
	e, err := New(len(names), k)
	if err != nil {
		return nil, err
	}
	return func(yield func([]string) bool) {
		e.Reset()
		for e.Next() {
			if !yield(Names(names, e.idx)) {
				return
			}
		}
	}, nil
}
