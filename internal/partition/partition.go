// Package partition splits the combination space for each k into chunks
// that independent processes can compute.
//
// Two chunk modes exist. Row mode (the default) gives every chunk the full
// combination sequence over a window of table rows; chunk files are merged
// by elementwise sum. Combination mode gives every chunk a contiguous range
// of combination ranks over the whole table; chunk files are concatenated.
package partition

import (
	"fmt"
	"math/big"
	"strings"

	"combostat/internal/apperr"
	"combostat/internal/combo"
)

const (
	// DefaultThreshold is the target number of combinations per chunk.
	DefaultThreshold = 200000
	// MinThreshold is the smallest accepted threshold.
	MinThreshold = 1
	// DefaultMaxChunks caps the chunk count for a single k.
	DefaultMaxChunks = 1_000_000
)

// Mode selects how a chunk slices the work.
type Mode string

const (
	ModeRows         Mode = "rows"
	ModeCombinations Mode = "combinations"
)

// ParseMode accepts "rows" or "combinations". Empty selects ModeRows.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeRows):
		return ModeRows, nil
	case string(ModeCombinations), "combos":
		return ModeCombinations, nil
	default:
		return "", apperr.InvalidArgf("unsupported chunk mode %q (want rows|combinations)", s)
	}
}

// ChunkSpec identifies one unit of work.
type ChunkSpec struct {
	K     int    `json:"k"`
	Total uint64 `json:"total"`
	// Index is 1-based.
	Index int  `json:"index"`
	Mode  Mode `json:"mode"`

	// RowChunkSize is the row window size in row mode; 0 reads every row.
	RowChunkSize int `json:"row_chunk_size,omitempty"`

	// Start and End bound the combination ranks [Start, End) in
	// combination mode.
	Start uint64 `json:"start,omitempty"`
	End   uint64 `json:"end,omitempty"`
}

// ChunkCount returns max(1, ceil(C(n,k)/threshold)), failing when the
// result exceeds maxChunks.
func ChunkCount(n, k int, threshold int64, maxChunks uint64) (uint64, error) {
	if threshold < MinThreshold {
		return 0, apperr.InvalidArgf("threshold must be >= %d, got %d", MinThreshold, threshold)
	}
	c := combo.BinomialBig(n, k)
	t := big.NewInt(threshold)
	q, r := new(big.Int).QuoRem(c, t, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	if q.Sign() == 0 {
		return 1, nil
	}
	if !q.IsUint64() || (maxChunks > 0 && q.Uint64() > maxChunks) {
		return 0, apperr.InvalidArgf("k=%d needs %s chunks at threshold %d (limit %d); raise the threshold", k, q, threshold, maxChunks)
	}
	return q.Uint64(), nil
}

// Plan returns the chunk count for every k in [2, sampleCount] using
// DefaultMaxChunks.
func Plan(sampleCount int, threshold int64) (map[int]uint64, error) {
	return PlanLimit(sampleCount, threshold, DefaultMaxChunks)
}

// PlanLimit is Plan with an explicit per-k chunk cap. maxChunks == 0
// disables the cap (the uint64 limit still applies).
func PlanLimit(sampleCount int, threshold int64, maxChunks uint64) (map[int]uint64, error) {
	if threshold < MinThreshold {
		return nil, apperr.InvalidArgf("threshold must be >= %d, got %d", MinThreshold, threshold)
	}
	out := make(map[int]uint64, max(sampleCount-1, 0))
	for k := 2; k <= sampleCount; k++ {
		c, err := ChunkCount(sampleCount, k, threshold, maxChunks)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// StatChunkSize is the row window size for a k split into chunkCount row
// chunks: ceil(totalRows/chunkCount), or 0 (whole table) for a single chunk.
func StatChunkSize(totalRows int, chunkCount uint64) int {
	if chunkCount <= 1 || totalRows <= 0 {
		return 0
	}
	c := int(chunkCount)
	return (totalRows + c - 1) / c
}

// Specs expands a chunk count for k into every ChunkSpec.
func Specs(n, k int, chunkCount uint64, totalRows int, mode Mode) ([]ChunkSpec, error) {
	if chunkCount == 0 {
		return nil, apperr.InvalidArgf("chunk count must be >= 1")
	}
	total, ok := combo.Binomial(n, k)
	if !ok && mode == ModeCombinations {
		return nil, apperr.InvalidArgf("C(%d,%d) overflows uint64; use row mode", n, k)
	}

	out := make([]ChunkSpec, 0, chunkCount)
	switch mode {
	case ModeRows, "":
		size := StatChunkSize(totalRows, chunkCount)
		for i := uint64(1); i <= chunkCount; i++ {
			out = append(out, ChunkSpec{K: k, Total: chunkCount, Index: int(i), Mode: ModeRows, RowChunkSize: size})
		}
	case ModeCombinations:
		bt := new(big.Int).SetUint64(total)
		bc := new(big.Int).SetUint64(chunkCount)
		bound := func(i uint64) uint64 {
			v := new(big.Int).Mul(bt, new(big.Int).SetUint64(i))
			return v.Quo(v, bc).Uint64()
		}
		for i := uint64(0); i < chunkCount; i++ {
			out = append(out, ChunkSpec{
				K: k, Total: chunkCount, Index: int(i + 1), Mode: ModeCombinations,
				Start: bound(i), End: bound(i + 1),
			})
		}
	default:
		return nil, apperr.InvalidArgf("unsupported chunk mode %q", mode)
	}
	return out, nil
}

// Validate checks a spec before any I/O.
func (c ChunkSpec) Validate() error {
	if c.K < 1 {
		return apperr.InvalidArgf("k=%d must be >= 1", c.K)
	}
	switch c.Mode {
	case ModeRows, "":
		if c.RowChunkSize < 0 {
			return apperr.InvalidArgf("row chunk size %d must be >= 0", c.RowChunkSize)
		}
		if c.RowChunkSize > 0 && c.Index < 1 {
			return apperr.InvalidArgf("chunk index %d must be >= 1", c.Index)
		}
	case ModeCombinations:
		if c.Start > c.End {
			return apperr.InvalidArgf("combination range [%d, %d) is inverted", c.Start, c.End)
		}
	default:
		return apperr.InvalidArgf("unsupported chunk mode %q", c.Mode)
	}
	return nil
}

func (c ChunkSpec) String() string {
	if c.Mode == ModeCombinations {
		return fmt.Sprintf("k=%d chunk %d/%d ranks [%d,%d)", c.K, c.Index, c.Total, c.Start, c.End)
	}
	return fmt.Sprintf("k=%d chunk %d/%d rows %d", c.K, c.Index, c.Total, c.RowChunkSize)
}
