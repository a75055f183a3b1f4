package partition

import (
	"errors"
	"testing"

	"combostat/internal/apperr"
	"combostat/internal/combo"
	"combostat/internal/share"
)

// TestPlanThresholdOne: with threshold 1 every combination is its own
// chunk, so the plan reproduces C(10, k).
func TestPlanThresholdOne(t *testing.T) {
	t.Parallel()

	plan, err := Plan(10, 1)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := map[int]uint64{2: 45, 3: 120, 4: 210, 5: 252, 6: 210, 7: 120, 8: 45, 9: 10, 10: 1}
	if len(plan) != len(want) {
		t.Fatalf("plan has %d entries, want %d: %v", len(plan), len(want), plan)
	}
	for k, w := range want {
		if plan[k] != w {
			t.Errorf("plan[%d] = %d, want %d", k, plan[k], w)
		}
	}
}

func TestChunkCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		n, k      int
		threshold int64
		want      uint64
	}{
		{"fits in one chunk", 10, 3, 200000, 1},
		{"exact multiple", 10, 2, 15, 3},
		{"ceil rounds up", 10, 2, 20, 3},
		{"k equals n", 10, 10, 5, 1},
		{"large n", 40, 20, DefaultThreshold, 689233},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ChunkCount(tt.n, tt.k, tt.threshold, DefaultMaxChunks)
			if err != nil {
				t.Fatalf("ChunkCount: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ChunkCount(%d,%d,%d) = %d, want %d", tt.n, tt.k, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestPlanRejects(t *testing.T) {
	t.Parallel()

	for _, th := range []int64{0, -5} {
		if _, err := Plan(5, th); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Plan(5, %d) err = %v, want ErrInvalidArgument", th, err)
		}
	}
	// C(100,50) / 1 does not fit any sane chunk limit.
	if _, err := Plan(100, 1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Plan(100, 1) err = %v, want ErrInvalidArgument", err)
	}
	if plan, err := Plan(1, 10); err != nil || len(plan) != 0 {
		t.Errorf("Plan(1, 10) = %v, %v; want empty", plan, err)
	}
}

func TestStatChunkSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rows   int
		chunks uint64
		want   int
	}{
		{1000, 1, 0},
		{1000, 0, 0},
		{1000, 3, 334},
		{1000, 4, 250},
		{3, 10, 1},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := StatChunkSize(tt.rows, tt.chunks); got != tt.want {
			t.Errorf("StatChunkSize(%d, %d) = %d, want %d", tt.rows, tt.chunks, got, tt.want)
		}
	}
}

func TestSpecsRows(t *testing.T) {
	t.Parallel()

	specs, err := Specs(6, 3, 4, 10, ModeRows)
	if err != nil {
		t.Fatalf("Specs: %v", err)
	}
	if len(specs) != 4 {
		t.Fatalf("got %d specs, want 4", len(specs))
	}
	covered := 0
	for i, s := range specs {
		if s.Index != i+1 || s.RowChunkSize != 3 || s.Total != 4 || s.K != 3 {
			t.Fatalf("spec %d = %+v", i, s)
		}
		if err := s.Validate(); err != nil {
			t.Fatalf("Validate(%v): %v", s, err)
		}
		start := (s.Index - 1) * s.RowChunkSize
		covered += max(0, min(10, start+s.RowChunkSize)-start)
	}
	if covered != 10 {
		t.Fatalf("row windows cover %d rows, want 10", covered)
	}
}

// TestSpecsCombinationsCoverage: ranges are contiguous, disjoint, and
// cover [0, C(n,k)) exactly.
func TestSpecsCombinationsCoverage(t *testing.T) {
	t.Parallel()

	for _, chunks := range []uint64{1, 2, 3, 7, 20, 56} {
		specs, err := Specs(8, 3, chunks, 0, ModeCombinations)
		if err != nil {
			t.Fatalf("Specs: %v", err)
		}
		total, _ := combo.Binomial(8, 3)
		var next uint64
		for _, s := range specs {
			if s.Start != next {
				t.Fatalf("chunks=%d: gap before %v", chunks, s)
			}
			if err := s.Validate(); err != nil {
				t.Fatalf("Validate(%v): %v", s, err)
			}
			next = s.End
		}
		if next != total {
			t.Fatalf("chunks=%d: coverage ends at %d, want %d", chunks, next, total)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	bad := []ChunkSpec{
		{K: 0, Mode: ModeRows},
		{K: 2, Mode: ModeRows, RowChunkSize: -1},
		{K: 2, Mode: ModeRows, RowChunkSize: 10, Index: 0},
		{K: 2, Mode: ModeCombinations, Start: 5, End: 4},
		{K: 2, Mode: "zigzag"},
	}
	for _, s := range bad {
		if err := s.Validate(); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidArgument", s, err)
		}
	}
}

func TestNaming(t *testing.T) {
	t.Parallel()

	if got := GroupKey(share.Intersection, 3); got != "intersection3" {
		t.Errorf("GroupKey = %q", got)
	}
	if got := ResultPath("out/result", share.Union, 12, 4); got != "out/result/union12/12_4.txt" {
		t.Errorf("ResultPath = %q", got)
	}
	if got := MergedPath("merge", "union12"); got != "merge/union12/union12.txt" {
		t.Errorf("MergedPath = %q", got)
	}

	typ, k, err := ParseGroupKey("union12")
	if err != nil || typ != share.Union || k != 12 {
		t.Errorf("ParseGroupKey(union12) = %q, %d, %v", typ, k, err)
	}
	for _, bad := range []string{"union", "core3", "intersection0", "intersectionX"} {
		if _, _, err := ParseGroupKey(bad); err == nil {
			t.Errorf("ParseGroupKey(%q) succeeded", bad)
		}
	}

	k, c, err := ParseChunkFile("/x/3_17.txt")
	if err != nil || k != 3 || c != 17 {
		t.Errorf("ParseChunkFile = %d, %d, %v", k, c, err)
	}
	for _, bad := range []string{"3_17.tsv", "3-17.txt", "a_1.txt", "3_0.txt"} {
		if _, _, err := ParseChunkFile(bad); err == nil {
			t.Errorf("ParseChunkFile(%q) succeeded", bad)
		}
	}

	mode, err := ParseMode("")
	if err != nil || mode != ModeRows {
		t.Errorf("ParseMode(\"\") = %q, %v", mode, err)
	}
	if _, err := ParseMode("zigzag"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("ParseMode(zigzag) err = %v", err)
	}
}
