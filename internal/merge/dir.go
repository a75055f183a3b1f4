package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"combostat/internal/apperr"
	"combostat/internal/metrics"
	"combostat/internal/partition"
	"combostat/internal/resultio"
	"combostat/internal/share"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ManifestFile is written into the merge directory after every run.
const ManifestFile = "manifest.json"

// Mode selects how chunk files of a group are combined.
type Mode string

const (
	// ModeSum adds chunk files position by position (row-window chunks).
	ModeSum Mode = "sum"
	// ModeConcat appends chunk files in chunk order (combination-range chunks).
	ModeConcat Mode = "concat"
)

// ModeFor maps a chunk mode to its merge mode.
func ModeFor(m partition.Mode) Mode {
	if m == partition.ModeCombinations {
		return ModeConcat
	}
	return ModeSum
}

// ParseMode accepts "sum" or "concat"; empty selects ModeSum.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSum:
		return ModeSum, nil
	case ModeConcat:
		return ModeConcat, nil
	default:
		return "", apperr.InvalidArgf("unsupported merge mode %q (want sum|concat)", s)
	}
}

// Options configure Dir.
type Options struct {
	Mode    Mode
	Workers int
	MaxOpen int
	Logger  zerolog.Logger
	RunID   string
}

// GroupResult describes one merged group.
type GroupResult struct {
	Group     string     `json:"group"`
	ShareType share.Type `json:"share_type"`
	K         int        `json:"k"`
	Files     []string   `json:"files"`
	Output    string     `json:"output,omitempty"`
	Lines     uint64     `json:"lines"`
	Digest    string     `json:"xxh3,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Manifest lists every group found in a result directory.
type Manifest struct {
	Mode   Mode          `json:"mode"`
	Groups []GroupResult `json:"groups"`
}

type group struct {
	key   string
	typ   share.Type
	k     int
	files []string
}

// Dir merges every group under resultDir into mergeDir/{group}/{group}.txt
// and writes the manifest. Groups run concurrently; the returned error
// joins the failures of individual groups.
func Dir(ctx context.Context, resultDir, mergeDir string, opts Options) (Manifest, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSum
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	log := opts.Logger

	groups, err := discover(resultDir, log)
	if err != nil {
		return Manifest{}, err
	}
	log.Info().Str("result_dir", resultDir).Int("groups", len(groups)).Str("mode", string(opts.Mode)).Msg("merging")

	results := make([]GroupResult, len(groups))
	errs := make([]error, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, gr := range groups {
		g.Go(func() error {
			t0 := time.Now()
			res, err := mergeGroup(gctx, gr, mergeDir, opts)
			metrics.RecordStep(opts.RunID, "merge_group", err, time.Since(t0))
			if err != nil {
				res.Error = err.Error()
				errs[i] = err
				log.Error().Err(err).Str("group", gr.key).Msg("group failed")
			} else {
				log.Info().Str("group", gr.key).Int("files", len(gr.files)).Uint64("lines", res.Lines).Msg("group merged")
			}
			results[i] = res
			// isolation: one group's failure never cancels the others
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	metrics.RecordGroups(opts.RunID, "merged", len(groups)-failed)
	metrics.RecordGroups(opts.RunID, "failed", failed)

	m := Manifest{Mode: opts.Mode, Groups: results}
	if err := writeManifest(filepath.Join(mergeDir, ManifestFile), m); err != nil {
		return m, err
	}
	if waitErr != nil {
		return m, waitErr
	}
	return m, errors.Join(errs...)
}

// discover finds group directories and their chunk files, ordered by group
// key and chunk index.
func discover(resultDir string, log zerolog.Logger) ([]group, error) {
	entries, err := os.ReadDir(resultDir)
	if err != nil {
		return nil, fmt.Errorf("read result dir %s: %w", resultDir, err)
	}
	var out []group
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		typ, k, err := partition.ParseGroupKey(e.Name())
		if err != nil {
			log.Debug().Str("dir", e.Name()).Msg("skipping non-group directory")
			continue
		}
		files, err := chunkFiles(filepath.Join(resultDir, e.Name()), k)
		if err != nil {
			return nil, err
		}
		out = append(out, group{key: e.Name(), typ: typ, k: k, files: files})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].typ != out[j].typ {
			return out[i].typ < out[j].typ
		}
		return out[i].k < out[j].k
	})
	return out, nil
}

// chunkFiles returns a group's chunk files ordered by chunk index.
// Files that are not named {k}_{chunk}.txt are ignored.
func chunkFiles(dir string, k int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read group dir %s: %w", dir, err)
	}
	type chunk struct {
		idx  int
		path string
	}
	var chunks []chunk
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fk, idx, err := partition.ParseChunkFile(e.Name())
		if err != nil || fk != k {
			continue
		}
		chunks = append(chunks, chunk{idx, filepath.Join(dir, e.Name())})
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].idx < chunks[j].idx })
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.path
	}
	return out, nil
}

func mergeGroup(ctx context.Context, gr group, mergeDir string, opts Options) (GroupResult, error) {
	res := GroupResult{Group: gr.key, ShareType: gr.typ, K: gr.k, Files: gr.files}
	if len(gr.files) == 0 {
		return res, &AggregationError{Group: gr.key, Msg: "no chunk files"}
	}
	for i, f := range gr.files {
		if _, idx, _ := partition.ParseChunkFile(f); idx != i+1 {
			return res, &AggregationError{Group: gr.key, Msg: fmt.Sprintf("missing chunk %d_%d.txt", gr.k, i+1)}
		}
	}

	out := partition.MergedPath(mergeDir, gr.key)
	w, err := resultio.Create(out, resultio.Options{})
	if err != nil {
		return res, err
	}
	var n uint64
	if opts.Mode == ModeConcat {
		n, err = Concat(ctx, gr.files, w)
	} else {
		n, err = Sum(ctx, gr.files, w, opts.MaxOpen)
	}
	if err != nil {
		w.Abort()
		var ae *AggregationError
		if errors.As(err, &ae) {
			ae.Group = gr.key
		}
		return res, err
	}
	if err := w.Close(); err != nil {
		return res, err
	}
	res.Output = out
	res.Lines = n
	res.Digest = fmt.Sprintf("%016x", w.Digest())
	return res, nil
}

func writeManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create merge dir: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of a merge directory.
func ReadManifest(mergeDir string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(filepath.Join(mergeDir, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
