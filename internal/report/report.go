// Package report turns merged group results into the per-k tables that the
// plot scripts and database sinks consume.
package report

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"

	"combostat/internal/partition"
	"combostat/internal/plot"
	"combostat/internal/resultio"
	"combostat/internal/share"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Options configure Build.
type Options struct {
	Type    plot.Type
	Splits  int
	Workers int
	Logger  zerolog.Logger
}

// Row is one line of a report. Point reports fill Value; box reports fill
// Stats.
type Row struct {
	ShareCount int
	ShareType  string
	Value      uint64
	Stats      Stats
}

// Report is the processed table of a merge directory.
type Report struct {
	Type plot.Type
	Rows []Row
}

type groupFile struct {
	typ  share.Type
	k    int
	path string
}

// Build reads every merged group under mergeDir. Groups without a merged
// file are skipped with a warning.
func Build(ctx context.Context, mergeDir string, opts Options) (*Report, error) {
	if opts.Type == "" {
		opts.Type = plot.Point
	}
	if opts.Splits < 1 {
		opts.Splits = DefaultSplits
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	log := opts.Logger

	groups, err := findGroups(mergeDir, log)
	if err != nil {
		return nil, err
	}

	parts := make([][]Row, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, gf := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			values, err := resultio.ReadFile(gf.path)
			if err != nil {
				return fmt.Errorf("group %s: %w", partition.GroupKey(gf.typ, gf.k), err)
			}
			parts[i] = groupRows(opts.Type, gf, values, opts.Splits)
			log.Debug().Str("group", partition.GroupKey(gf.typ, gf.k)).Int("values", len(values)).Msg("group processed")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Report{Type: opts.Type}
	for _, p := range parts {
		r.Rows = append(r.Rows, p...)
	}
	log.Info().Str("merge_dir", mergeDir).Int("groups", len(groups)).Int("rows", len(r.Rows)).Msg("report built")
	return r, nil
}

func groupRows(t plot.Type, gf groupFile, values []uint64, splits int) []Row {
	label := gf.typ.Label()
	if t == plot.Box {
		sorted := slices.Clone(values)
		slices.Sort(sorted)
		return []Row{{ShareCount: gf.k, ShareType: label, Stats: Describe(sorted)}}
	}
	rep := Representative(values, splits)
	rows := make([]Row, len(rep))
	for i, v := range rep {
		rows[i] = Row{ShareCount: gf.k, ShareType: label, Value: v}
	}
	return rows
}

// findGroups lists merged group files ordered by share type, then k.
func findGroups(mergeDir string, log zerolog.Logger) ([]groupFile, error) {
	entries, err := os.ReadDir(mergeDir)
	if err != nil {
		return nil, fmt.Errorf("read merge dir %s: %w", mergeDir, err)
	}
	var out []groupFile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		typ, k, err := partition.ParseGroupKey(e.Name())
		if err != nil {
			continue
		}
		path := partition.MergedPath(mergeDir, e.Name())
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn().Str("group", e.Name()).Msg("no merged result, skipping")
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		out = append(out, groupFile{typ: typ, k: k, path: path})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].typ != out[j].typ {
			return out[i].typ < out[j].typ
		}
		return out[i].k < out[j].k
	})
	return out, nil
}

// Columns are the header names for the report's type.
func (r *Report) Columns() []string {
	if r.Type == plot.Box {
		return []string{"share_count", "share_type", "mean", "min", "p25", "p50", "p75", "max"}
	}
	return []string{"share_count", "share_type", "value"}
}

// Records returns the rows as database values in Columns order.
func (r *Report) Records() [][]any {
	out := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		if r.Type == plot.Box {
			s := row.Stats
			out[i] = []any{int64(row.ShareCount), row.ShareType, s.Mean, s.Min, s.P25, s.P50, s.P75, s.Max}
			continue
		}
		out[i] = []any{int64(row.ShareCount), row.ShareType, int64(row.Value)}
	}
	return out
}

// WriteTSV writes a header line and one tab-separated line per row.
func (r *Report) WriteTSV(w io.Writer) error {
	bw := bufio.NewWriter(w)
	cols := r.Columns()
	for i, c := range cols {
		if i > 0 {
			bw.WriteByte('\t')
		}
		bw.WriteString(c)
	}
	bw.WriteByte('\n')

	var buf []byte
	for _, row := range r.Rows {
		buf = strconv.AppendInt(buf[:0], int64(row.ShareCount), 10)
		buf = append(buf, '\t')
		buf = append(buf, row.ShareType...)
		if r.Type == plot.Box {
			s := row.Stats
			for _, f := range []float64{s.Mean, s.Min, s.P25, s.P50, s.P75, s.Max} {
				buf = append(buf, '\t')
				buf = strconv.AppendFloat(buf, f, 'f', -1, 64)
			}
		} else {
			buf = append(buf, '\t')
			buf = strconv.AppendUint(buf, row.Value, 10)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the TSV to path, replacing it only once fully written.
func (r *Report) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod report: %w", err)
	}
	if err := r.WriteTSV(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
