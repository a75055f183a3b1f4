// Package presence holds the per-sample row sets built from a presence table.
//
// A Set records which rows of a table window a sample is present in. Sets
// are built once by the loader and are read-only afterwards, so they are
// safe to share between goroutines.
package presence

import (
	"fmt"
	"strings"

	"combostat/internal/apperr"
	"combostat/internal/bitmap"

	"github.com/RoaringBitmap/roaring"
)

// Backend selects the set representation.
type Backend string

const (
	// BackendBitset stores one bit per row of the window. Best for dense tables.
	BackendBitset Backend = "bitset"
	// BackendRoaring stores compressed roaring containers. Best for sparse tables.
	BackendRoaring Backend = "roaring"
)

// ParseBackend accepts "bitset" or "roaring" (case-insensitive). An empty
// string selects BackendBitset.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(BackendBitset):
		return BackendBitset, nil
	case string(BackendRoaring):
		return BackendRoaring, nil
	default:
		return "", apperr.InvalidArgf("unsupported set backend %q (want bitset|roaring)", s)
	}
}

// Set is a read-only collection of row indices.
type Set interface {
	// Cardinality is the number of rows in the set.
	Cardinality() uint64
	// Contains reports whether row is a member.
	Contains(row uint32) bool
	// Rows returns the members in ascending order.
	Rows() []uint32
}

// Builder accumulates rows for one sample.
type Builder interface {
	Add(row uint32)
	// Build finalizes the set for a window of n rows. The builder must not
	// be used afterwards.
	Build(n int) Set
}

// NewBuilder returns a Builder for backend b.
func NewBuilder(b Backend) Builder {
	if b == BackendRoaring {
		return &roaringBuilder{bm: roaring.New()}
	}
	return &bitsetBuilder{bm: bitmap.New(0)}
}

// FromRows builds a set directly from row indices. Mostly useful in tests.
func FromRows(b Backend, n int, rows ...uint32) Set {
	bl := NewBuilder(b)
	for _, r := range rows {
		bl.Add(r)
	}
	return bl.Build(n)
}

// Bitset is the dense Set implementation.
type Bitset struct {
	bm   *bitmap.Bitmap
	card uint64
}

// Words exposes the backing words for word-wise set algebra.
func (s *Bitset) Words() []uint64 { return s.bm.Words() }

func (s *Bitset) Cardinality() uint64 { return s.card }

func (s *Bitset) Contains(row uint32) bool { return s.bm.Has(int(row)) }

func (s *Bitset) Rows() []uint32 {
	out := make([]uint32, 0, s.card)
	s.bm.Each(func(id int) bool {
		out = append(out, uint32(id))
		return true
	})
	return out
}

func (s *Bitset) String() string { return fmt.Sprintf("bitset(%d)", s.card) }

type bitsetBuilder struct{ bm *bitmap.Bitmap }

func (b *bitsetBuilder) Add(row uint32) { b.bm.Add(int(row)) }

func (b *bitsetBuilder) Build(n int) Set {
	b.bm.Resize(n)
	return &Bitset{bm: b.bm, card: uint64(b.bm.Count())}
}

// Roaring is the compressed Set implementation.
type Roaring struct{ bm *roaring.Bitmap }

// Bitmap exposes the underlying roaring bitmap. Callers must not modify it.
func (s *Roaring) Bitmap() *roaring.Bitmap { return s.bm }

func (s *Roaring) Cardinality() uint64 { return s.bm.GetCardinality() }

func (s *Roaring) Contains(row uint32) bool { return s.bm.Contains(row) }

func (s *Roaring) Rows() []uint32 { return s.bm.ToArray() }

func (s *Roaring) String() string { return fmt.Sprintf("roaring(%d)", s.bm.GetCardinality()) }

type roaringBuilder struct{ bm *roaring.Bitmap }

func (b *roaringBuilder) Add(row uint32) { b.bm.Add(row) }

func (b *roaringBuilder) Build(n int) Set {
	if n >= 0 {
		b.bm.RemoveRange(uint64(n), uint64(1)<<32)
	}
	b.bm.RunOptimize()
	return &Roaring{bm: b.bm}
}

// ToBitset converts any Set to a *Bitset over n rows.
func ToBitset(s Set, n int) *Bitset {
	if bs, ok := s.(*Bitset); ok {
		return bs
	}
	bl := &bitsetBuilder{bm: bitmap.New(n)}
	for _, r := range s.Rows() {
		bl.Add(r)
	}
	return bl.Build(n).(*Bitset)
}

// ToRoaring converts any Set to a *Roaring.
func ToRoaring(s Set) *Roaring {
	if rs, ok := s.(*Roaring); ok {
		return rs
	}
	return &Roaring{bm: roaring.BitmapOf(s.Rows()...)}
}
