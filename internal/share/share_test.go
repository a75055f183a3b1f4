package share

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"combostat/internal/apperr"
	"combostat/internal/combo"
	"combostat/internal/presence"
)

var backends = []presence.Backend{presence.BackendBitset, presence.BackendRoaring}

func TestParseType(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Type{"intersection": Intersection, " Union ": Union} {
		got, err := ParseType(in)
		if err != nil || got != want {
			t.Errorf("ParseType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseType("xor"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("ParseType(xor) err = %v", err)
	}
	if Intersection.Label() != "core" || Union.Label() != "pan" {
		t.Errorf("labels = %s/%s", Intersection.Label(), Union.Label())
	}
}

// TestCountABC covers the three-sample example: A={0,1,3}, B={0,2,3},
// C={1,2,3}. Every pair intersects in 2 rows and unions to 4.
func TestCountABC(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		sets := []presence.Set{
			presence.FromRows(b, 4, 0, 1, 3),
			presence.FromRows(b, 4, 0, 2, 3),
			presence.FromRows(b, 4, 1, 2, 3),
		}
		pairs := [][]int{{0, 1}, {0, 2}, {1, 2}}
		for _, p := range pairs {
			pick := []presence.Set{sets[p[0]], sets[p[1]]}
			if got := Count(Intersection, pick); got != 2 {
				t.Errorf("%s: intersection %v = %d, want 2", b, p, got)
			}
			if got := Count(Union, pick); got != 4 {
				t.Errorf("%s: union %v = %d, want 4", b, p, got)
			}
		}
		if got := Count(Intersection, sets); got != 1 {
			t.Errorf("%s: triple intersection = %d, want 1", b, got)
		}
		if got := Count(Union, sets); got != 4 {
			t.Errorf("%s: triple union = %d, want 4", b, got)
		}
	}
}

func TestCountEdgeCases(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		a := presence.FromRows(b, 8, 1, 2, 3)
		empty := presence.FromRows(b, 8)
		if got := Count(Intersection, nil); got != 0 {
			t.Errorf("%s: no sets = %d", b, got)
		}
		if got := Count(Union, []presence.Set{a}); got != 3 {
			t.Errorf("%s: k=1 union = %d, want 3", b, got)
		}
		if got := Count(Intersection, []presence.Set{a}); got != 3 {
			t.Errorf("%s: k=1 intersection = %d, want 3", b, got)
		}
		if got := Count(Intersection, []presence.Set{a, empty, a}); got != 0 {
			t.Errorf("%s: intersection with empty = %d, want 0", b, got)
		}
		if got := Count(Union, []presence.Set{a, empty}); got != 3 {
			t.Errorf("%s: union with empty = %d, want 3", b, got)
		}
	}

	// mixed backends fall back to roaring
	mixed := []presence.Set{
		presence.FromRows(presence.BackendBitset, 8, 1, 2),
		presence.FromRows(presence.BackendRoaring, 8, 2, 3),
	}
	if got := Count(Union, mixed); got != 3 {
		t.Errorf("mixed union = %d, want 3", got)
	}
}

func randomSets(r *rand.Rand, b presence.Backend, n, rows int, density float64) []presence.Set {
	out := make([]presence.Set, n)
	for i := range out {
		bl := presence.NewBuilder(b)
		for row := 0; row < rows; row++ {
			if r.Float64() < density {
				bl.Add(uint32(row))
			}
		}
		out[i] = bl.Build(rows)
	}
	return out
}

// TestBoundsAndEvaluator checks |A∩B| <= min(|A|,|B|) <= |A∪B| and that
// the incremental evaluator agrees with Count on every tuple.
func TestBoundsAndEvaluator(t *testing.T) {
	t.Parallel()

	for _, b := range backends {
		b := b
		t.Run(string(b), func(t *testing.T) {
			t.Parallel()

			r := rand.New(rand.NewSource(7))
			sets := randomSets(r, b, 7, 300, 0.4)

			for i := range sets {
				for j := i + 1; j < len(sets); j++ {
					pick := []presence.Set{sets[i], sets[j]}
					in, un := Count(Intersection, pick), Count(Union, pick)
					lo := min(sets[i].Cardinality(), sets[j].Cardinality())
					if in > lo || lo > un {
						t.Fatalf("bounds violated: %d <= %d <= %d", in, lo, un)
					}
				}
			}

			for _, typ := range Types {
				for k := 1; k <= len(sets); k++ {
					ev, err := NewEvaluator(typ, sets, k)
					if err != nil {
						t.Fatalf("NewEvaluator: %v", err)
					}
					en, _ := combo.New(len(sets), k)
					for idx := range en.All() {
						pick := make([]presence.Set, k)
						for i, j := range idx {
							pick[i] = sets[j]
						}
						if got, want := ev.Eval(idx), Count(typ, pick); got != want {
							t.Fatalf("%s k=%d %v: Eval = %d, Count = %d", typ, k, idx, got, want)
						}
					}
				}
			}
		})
	}
}

// TestEvaluatorOutOfOrder feeds tuples in a scrambled order so the prefix
// cache is invalidated on almost every call.
func TestEvaluatorOutOfOrder(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(11))
	sets := randomSets(r, presence.BackendBitset, 6, 130, 0.5)
	en, _ := combo.New(6, 3)
	var tuples [][]int
	for idx := range en.All() {
		tuples = append(tuples, slices.Clone(idx))
	}
	r.Shuffle(len(tuples), func(i, j int) { tuples[i], tuples[j] = tuples[j], tuples[i] })

	ev, _ := NewEvaluator(Union, sets, 3)
	for _, idx := range tuples {
		pick := []presence.Set{sets[idx[0]], sets[idx[1]], sets[idx[2]]}
		if got, want := ev.Eval(idx), Count(Union, pick); got != want {
			t.Fatalf("%v: Eval = %d, Count = %d", idx, got, want)
		}
	}
}

func TestNewEvaluatorInvalid(t *testing.T) {
	t.Parallel()

	sets := []presence.Set{presence.FromRows(presence.BackendBitset, 1, 0)}
	if _, err := NewEvaluator(Intersection, sets, 2); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("k>n err = %v", err)
	}
	if _, err := NewEvaluator(Type("xor"), sets, 1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("bad type err = %v", err)
	}
}

func BenchmarkEvaluator(b *testing.B) {
	for _, backend := range backends {
		b.Run(string(backend), func(b *testing.B) {
			r := rand.New(rand.NewSource(1))
			sets := randomSets(r, backend, 20, 20000, 0.3)
			ev, _ := NewEvaluator(Intersection, sets, 4)
			en, _ := combo.New(len(sets), 4)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if !en.Next() {
					en.Reset()
					en.Next()
				}
				_ = ev.Eval(en.Indices())
			}
		})
	}
}
