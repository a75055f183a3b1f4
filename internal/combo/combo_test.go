package combo

import (
	"errors"
	"fmt"
	"math/big"
	"slices"
	"testing"

	"combostat/internal/apperr"
)

func collect(t *testing.T, n, k int) [][]int {
	t.Helper()
	e, err := New(n, k)
	if err != nil {
		t.Fatalf("New(%d,%d): %v", n, k, err)
	}
	var out [][]int
	for idx := range e.All() {
		out = append(out, slices.Clone(idx))
	}
	return out
}

func TestEnumerateABC(t *testing.T) {
	t.Parallel()

	seq, err := Enumerate([]string{"A", "B", "C"}, 2)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	var got []string
	for c := range seq {
		got = append(got, fmt.Sprint(c))
	}
	want := []string{"[A B]", "[A C]", "[B C]"}
	if !slices.Equal(got, want) {
		t.Fatalf("Enumerate = %v, want %v", got, want)
	}
}

// TestCountAndUniqueness checks C(n,k) distinct ascending tuples in strictly
// increasing lexicographic order for a grid of small n, k.
func TestCountAndUniqueness(t *testing.T) {
	t.Parallel()

	for n := 1; n <= 9; n++ {
		for k := 1; k <= n; k++ {
			n, k := n, k
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				t.Parallel()

				got := collect(t, n, k)
				want, _ := Binomial(n, k)
				if uint64(len(got)) != want {
					t.Fatalf("got %d tuples, want %d", len(got), want)
				}
				for i, c := range got {
					for j := 1; j < len(c); j++ {
						if c[j] <= c[j-1] {
							t.Fatalf("tuple %v not strictly ascending", c)
						}
					}
					if i > 0 && slices.Compare(got[i-1], c) >= 0 {
						t.Fatalf("tuple %v does not follow %v", c, got[i-1])
					}
				}
			})
		}
	}
}

func TestInvalidK(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ n, k int }{{3, 0}, {3, 4}, {0, 1}, {5, -1}} {
		if _, err := New(tc.n, tc.k); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("New(%d,%d) err = %v, want ErrInvalidArgument", tc.n, tc.k, err)
		}
	}
	if _, err := Enumerate([]string{"A"}, 2); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Enumerate k>n err = %v", err)
	}
}

func TestResetIsStable(t *testing.T) {
	t.Parallel()

	e, _ := New(6, 3)
	var first, second [][]int
	for e.Next() {
		first = append(first, slices.Clone(e.Indices()))
	}
	if e.Next() {
		t.Fatalf("Next after exhaustion returned true")
	}
	e.Reset()
	for e.Next() {
		second = append(second, slices.Clone(e.Indices()))
	}
	if len(first) != len(second) {
		t.Fatalf("restart produced %d tuples, want %d", len(second), len(first))
	}
	for i := range first {
		if !slices.Equal(first[i], second[i]) {
			t.Fatalf("tuple %d differs after Reset: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestPivotAndRank(t *testing.T) {
	t.Parallel()

	e, _ := New(5, 3)
	var prev []int
	var rank uint64
	for e.Next() {
		cur := e.Indices()
		if e.Rank() != rank {
			t.Fatalf("Rank() = %d, want %d", e.Rank(), rank)
		}
		if prev != nil {
			p := e.Pivot()
			if !slices.Equal(prev[:p], cur[:p]) || prev[p] == cur[p] {
				t.Fatalf("pivot %d wrong for %v -> %v", p, prev, cur)
			}
		} else if e.Pivot() != 0 {
			t.Fatalf("first pivot = %d, want 0", e.Pivot())
		}
		prev = slices.Clone(cur)
		rank++
	}
}

// TestSeekMatchesSequential unranks every position and compares against
// the sequential walk.
func TestSeekMatchesSequential(t *testing.T) {
	t.Parallel()

	const n, k = 8, 4
	all := collect(t, n, k)
	e, _ := New(n, k)
	for r := range all {
		if err := e.Seek(uint64(r)); err != nil {
			t.Fatalf("Seek(%d): %v", r, err)
		}
		if !e.Next() {
			t.Fatalf("Next after Seek(%d) = false", r)
		}
		if !slices.Equal(e.Indices(), all[r]) || e.Rank() != uint64(r) {
			t.Fatalf("Seek(%d) = %v rank %d, want %v", r, e.Indices(), e.Rank(), all[r])
		}
		if r+1 < len(all) {
			if !e.Next() || !slices.Equal(e.Indices(), all[r+1]) {
				t.Fatalf("Next after Seek(%d) = %v, want %v", r, e.Indices(), all[r+1])
			}
		}
	}

	if err := e.Seek(uint64(len(all))); err != nil {
		t.Fatalf("Seek(end): %v", err)
	}
	if e.Next() {
		t.Fatalf("Next after Seek(end) returned true")
	}
	if err := e.Seek(uint64(len(all)) + 1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("Seek past end err = %v", err)
	}
}

func TestBinomial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n, k   int
		want   uint64
		wantOK bool
	}{
		{10, 0, 1, true},
		{10, 2, 45, true},
		{10, 5, 252, true},
		{10, 11, 0, true},
		{52, 5, 2598960, true},
		{67, 33, 14226520737620288370, true},
		{68, 34, 0, false},
		{1000, 500, 0, false},
	}
	for _, tt := range tests {
		got, ok := Binomial(tt.n, tt.k)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Binomial(%d,%d) = %d,%v want %d,%v", tt.n, tt.k, got, ok, tt.want, tt.wantOK)
		}
		if ok {
			if b := BinomialBig(tt.n, tt.k); b.Cmp(new(big.Int).SetUint64(got)) != 0 {
				t.Errorf("BinomialBig(%d,%d) = %s, want %d", tt.n, tt.k, b, got)
			}
		}
	}
}

func BenchmarkNext(b *testing.B) {
	e, _ := New(30, 5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !e.Next() {
			e.Reset()
		}
	}
}
