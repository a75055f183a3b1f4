// Package share computes the shared-row count of a combination of samples:
// the size of the intersection ("core") or union ("pan") of their presence
// sets.
package share

import (
	"strings"

	"combostat/internal/apperr"
	"combostat/internal/bitmap"
	"combostat/internal/presence"

	"github.com/RoaringBitmap/roaring"
)

// Type selects how presence sets are combined.
type Type string

const (
	Intersection Type = "intersection"
	Union        Type = "union"
)

// Types lists the supported share types in a stable order.
var Types = []Type{Intersection, Union}

// ParseType accepts "intersection" or "union" (case-insensitive).
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Intersection:
		return Intersection, nil
	case Union:
		return Union, nil
	default:
		return "", apperr.InvalidArgf("unsupported share type %q (want intersection|union)", s)
	}
}

// Label is the curve name used in reports: core for intersection, pan for
// union.
func (t Type) Label() string {
	if t == Intersection {
		return "core"
	}
	return "pan"
}

// Count returns |s1 ∩ ... ∩ sk| or |s1 ∪ ... ∪ sk|. A single set yields its
// own size and no sets yields 0.
func Count(t Type, sets []presence.Set) uint64 {
	switch len(sets) {
	case 0:
		return 0
	case 1:
		return sets[0].Cardinality()
	}

	if t == Intersection {
		for _, s := range sets {
			if s.Cardinality() == 0 {
				return 0
			}
		}
	}

	if words, ok := bitsetWords(sets); ok {
		return countWords(t, words)
	}

	bms := make([]*roaring.Bitmap, len(sets))
	for i, s := range sets {
		bms[i] = presence.ToRoaring(s).Bitmap()
	}
	if len(bms) == 2 {
		if t == Intersection {
			return bms[0].AndCardinality(bms[1])
		}
		return bms[0].OrCardinality(bms[1])
	}
	if t == Intersection {
		return roaring.FastAnd(bms...).GetCardinality()
	}
	return roaring.FastOr(bms...).GetCardinality()
}

func bitsetWords(sets []presence.Set) ([][]uint64, bool) {
	out := make([][]uint64, len(sets))
	for i, s := range sets {
		bs, ok := s.(*presence.Bitset)
		if !ok {
			return nil, false
		}
		out[i] = bs.Words()
	}
	return out, true
}

func countWords(t Type, words [][]uint64) uint64 {
	if len(words) == 2 {
		if t == Intersection {
			return uint64(bitmap.AndCount(words[0], words[1]))
		}
		return uint64(bitmap.OrCount(words[0], words[1]))
	}
	n := 0
	for _, w := range words {
		n = max(n, len(w))
	}
	acc := make([]uint64, n)
	copy(acc, words[0])
	for _, w := range words[1:] {
		if t == Intersection {
			bitmap.AndInto(acc, acc, w)
		} else {
			bitmap.OrInto(acc, acc, w)
		}
	}
	return uint64(bitmap.PopCount(acc))
}
