package share

import (
	"combostat/internal/apperr"
	"combostat/internal/bitmap"
	"combostat/internal/presence"

	"github.com/RoaringBitmap/roaring"
)

// Evaluator computes Count for a stream of k-tuples over a fixed list of
// sets. It caches the combined set of every tuple prefix, so when tuples
// arrive in lexicographic order only the changed suffix is recomputed.
//
// Results are identical to Count. An Evaluator is not safe for concurrent
// use.
type Evaluator struct {
	typ  Type
	k    int
	last []int
	// valid is the number of prefix levels that match last.
	valid int

	// bitset mode
	words [][]uint64
	pre   [][]uint64

	// roaring mode
	bms  []*roaring.Bitmap
	rpre []*roaring.Bitmap
}

// NewEvaluator prepares an Evaluator for k-tuples over sets.
func NewEvaluator(t Type, sets []presence.Set, k int) (*Evaluator, error) {
	if t != Intersection && t != Union {
		return nil, apperr.InvalidArgf("unsupported share type %q", t)
	}
	if k < 1 || k > len(sets) {
		return nil, apperr.InvalidArgf("combination size k=%d must be in [1, %d]", k, len(sets))
	}
	e := &Evaluator{typ: t, k: k, last: make([]int, k)}

	if words, ok := bitsetWords(sets); ok {
		n := 0
		for _, w := range words {
			n = max(n, len(w))
		}
		e.words = words
		e.pre = make([][]uint64, max(k-1, 0))
		for i := 1; i < len(e.pre); i++ {
			e.pre[i] = make([]uint64, n)
		}
		return e, nil
	}

	e.bms = make([]*roaring.Bitmap, len(sets))
	for i, s := range sets {
		e.bms[i] = presence.ToRoaring(s).Bitmap()
	}
	e.rpre = make([]*roaring.Bitmap, max(k-1, 0))
	return e, nil
}

// Eval returns the shared count for the sample indices in idx, which must
// have length k.
func (e *Evaluator) Eval(idx []int) uint64 {
	// first level that differs from the previous tuple
	p := 0
	for p < e.valid && idx[p] == e.last[p] {
		p++
	}
	copy(e.last, idx)

	if e.words != nil {
		return e.evalWords(idx, p)
	}
	return e.evalRoaring(idx, p)
}

func (e *Evaluator) evalWords(idx []int, p int) uint64 {
	if e.k == 1 {
		return uint64(bitmap.PopCount(e.words[idx[0]]))
	}
	for i := p; i < e.k-1; i++ {
		if i == 0 {
			e.pre[0] = e.words[idx[0]]
			continue
		}
		if e.typ == Intersection {
			bitmap.AndInto(e.pre[i], e.pre[i-1], e.words[idx[i]])
		} else {
			bitmap.OrInto(e.pre[i], e.pre[i-1], e.words[idx[i]])
		}
	}
	e.valid = e.k - 1

	prefix, lastSet := e.pre[e.k-2], e.words[idx[e.k-1]]
	if e.typ == Intersection {
		return uint64(bitmap.AndCount(prefix, lastSet))
	}
	return uint64(bitmap.OrCount(prefix, lastSet))
}

func (e *Evaluator) evalRoaring(idx []int, p int) uint64 {
	if e.k == 1 {
		return e.bms[idx[0]].GetCardinality()
	}
	for i := p; i < e.k-1; i++ {
		if i == 0 {
			e.rpre[0] = e.bms[idx[0]]
			continue
		}
		if e.typ == Intersection {
			e.rpre[i] = roaring.And(e.rpre[i-1], e.bms[idx[i]])
		} else {
			e.rpre[i] = roaring.Or(e.rpre[i-1], e.bms[idx[i]])
		}
	}
	e.valid = e.k - 1

	prefix, lastSet := e.rpre[e.k-2], e.bms[idx[e.k-1]]
	if e.typ == Intersection {
		return prefix.AndCardinality(lastSet)
	}
	return prefix.OrCardinality(lastSet)
}
