// Package stat runs one chunk of the computation: load the table window,
// enumerate k-combinations, evaluate each one and stream the counts to the
// chunk's result file.
package stat

import (
	"context"
	"fmt"
	"time"

	"combostat/internal/apperr"
	"combostat/internal/combo"
	"combostat/internal/metrics"
	"combostat/internal/resultio"
	"combostat/internal/share"
	"combostat/internal/table"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Range bounds a combination-range chunk: ranks [Start, End).
type Range struct {
	Start uint64
	End   uint64
}

// Config describes one chunk run.
type Config struct {
	Input     string
	Output    string
	K         int
	ShareType share.Type
	Table     table.Options
	// Range, when set, restricts the run to a slice of the combination
	// sequence over the whole table. It cannot be combined with a row
	// window.
	Range *Range

	Progress bool
	Logger   zerolog.Logger
	RunID    string
}

// Summary describes a finished run.
type Summary struct {
	RunID        string
	Output       string
	Samples      int
	Rows         int
	K            int
	ShareType    share.Type
	Combinations uint64
	Digest       uint64
	Elapsed      time.Duration
}

const cancelCheckEvery = 4096

// Validate rejects configurations before any I/O.
func (c Config) Validate() error {
	if c.K < 1 {
		return apperr.InvalidArgf("combination size k=%d must be >= 1", c.K)
	}
	if _, err := share.ParseType(string(c.ShareType)); err != nil {
		return err
	}
	if c.Input == "" || c.Output == "" {
		return apperr.InvalidArgf("input and output paths are required")
	}
	if err := c.Table.Window.Validate(); err != nil {
		return err
	}
	if c.Range != nil {
		if c.Range.Start > c.Range.End {
			return apperr.InvalidArgf("combination range [%d, %d) is inverted", c.Range.Start, c.Range.End)
		}
		if c.Table.Window.ChunkSize > 0 {
			return apperr.InvalidArgf("a combination range cannot be combined with a row window")
		}
	}
	return nil
}

// Run executes the chunk described by cfg.
func Run(ctx context.Context, cfg Config) (Summary, error) {
	if err := cfg.Validate(); err != nil {
		return Summary{}, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log := cfg.Logger.With().Str("run_id", cfg.RunID).Str("share_type", string(cfg.ShareType)).Int("k", cfg.K).Logger()
	cfg.Table.Logger = log
	started := time.Now()

	// k and the combination range depend only on the sample count, so check
	// them against the header before scanning the row window.
	samples, err := table.ReadHeaderFile(ctx, cfg.Input, cfg.Table)
	if err != nil {
		return Summary{}, err
	}
	en, err := combo.New(len(samples), cfg.K)
	if err != nil {
		return Summary{}, err
	}
	total, ok := en.Count()
	limit := total
	if cfg.Range != nil {
		if !ok || cfg.Range.End > total {
			return Summary{}, apperr.InvalidArgf("combination range [%d, %d) exceeds C(%d,%d)", cfg.Range.Start, cfg.Range.End, len(samples), cfg.K)
		}
		if err := en.Seek(cfg.Range.Start); err != nil {
			return Summary{}, err
		}
		limit = cfg.Range.End - cfg.Range.Start
	}

	t0 := time.Now()
	tbl, err := table.LoadFile(ctx, cfg.Input, cfg.Table)
	metrics.RecordStep(cfg.RunID, "load", err, time.Since(t0))
	if err != nil {
		return Summary{}, err
	}
	log.Info().Str("input", cfg.Input).Int("samples", len(tbl.Samples)).Int("rows", tbl.Rows).Msg("table loaded")

	ev, err := share.NewEvaluator(cfg.ShareType, tbl.Sets, cfg.K)
	if err != nil {
		return Summary{}, err
	}

	w, err := resultio.Create(cfg.Output, resultio.Options{
		Total:    limit,
		Progress: cfg.Progress,
		Logger:   log,
	})
	if err != nil {
		return Summary{}, err
	}

	t0 = time.Now()
	n, err := evaluate(ctx, en, ev, w, limit, cfg.Range != nil)
	if err == nil {
		err = w.Close()
	} else {
		w.Abort()
	}
	metrics.RecordStep(cfg.RunID, "evaluate", err, time.Since(t0))
	if err != nil {
		return Summary{}, fmt.Errorf("write %s: %w", cfg.Output, err)
	}
	metrics.RecordCombinations(cfg.RunID, string(cfg.ShareType), n)

	sum := Summary{
		RunID:        cfg.RunID,
		Output:       cfg.Output,
		Samples:      len(tbl.Samples),
		Rows:         tbl.Rows,
		K:            cfg.K,
		ShareType:    cfg.ShareType,
		Combinations: n,
		Digest:       w.Digest(),
		Elapsed:      time.Since(started),
	}
	log.Info().Str("output", sum.Output).Uint64("combinations", n).
		Str("xxh3", fmt.Sprintf("%016x", sum.Digest)).Dur("elapsed", sum.Elapsed).Msg("chunk done")
	return sum, nil
}

func evaluate(ctx context.Context, en *combo.Enumerator, ev *share.Evaluator, w *resultio.Writer, limit uint64, bounded bool) (uint64, error) {
	var n uint64
	for (!bounded || n < limit) && en.Next() {
		if n%cancelCheckEvery == 0 {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			default:
			}
		}
		if err := w.Write(ev.Eval(en.Indices())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
