package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"combostat/internal/partition"
	"combostat/internal/share"

	"github.com/dustin/go-humanize"
)

// PlanFile is written into the output directory next to the scripts.
const PlanFile = "plan.json"

// Plan is the full set of chunks for one input table.
type Plan struct {
	Input     string                `json:"input"`
	Samples   int                   `json:"samples"`
	Rows      int                   `json:"rows"`
	Threshold int64                 `json:"threshold"`
	MaxChunks uint64                `json:"max_chunks"`
	Mode      partition.Mode        `json:"mode"`
	Types     []share.Type          `json:"share_types"`
	Specs     []partition.ChunkSpec `json:"chunks"`
}

// NewPlan splits every k in [2, samples] by threshold. Each spec runs once
// per share type.
func NewPlan(input string, samples, rows int, threshold int64, maxChunks uint64, mode partition.Mode) (*Plan, error) {
	counts, err := partition.PlanLimit(samples, threshold, maxChunks)
	if err != nil {
		return nil, err
	}
	ks := make([]int, 0, len(counts))
	for k := range counts {
		ks = append(ks, k)
	}
	sort.Ints(ks)

	p := &Plan{
		Input:     input,
		Samples:   samples,
		Rows:      rows,
		Threshold: threshold,
		MaxChunks: maxChunks,
		Mode:      mode,
		Types:     share.Types,
	}
	for _, k := range ks {
		specs, err := partition.Specs(samples, k, counts[k], rows, mode)
		if err != nil {
			return nil, err
		}
		p.Specs = append(p.Specs, specs...)
	}
	return p, nil
}

// Jobs is the number of stat invocations the plan needs.
func (p *Plan) Jobs() int { return len(p.Specs) * len(p.Types) }

// Summary is a one-line human description.
func (p *Plan) Summary() string {
	return fmt.Sprintf("%d samples, %s rows, %s stat jobs (%s mode, threshold %s)",
		p.Samples, humanize.Comma(int64(p.Rows)), humanize.Comma(int64(p.Jobs())), p.Mode, humanize.Comma(p.Threshold))
}

// WriteFile stores the plan as indented JSON.
func (p *Plan) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// ReadPlan loads a plan written by WriteFile.
func ReadPlan(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}
