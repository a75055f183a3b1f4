// Package resultio writes and reads result streams: one non-negative
// decimal integer per line, in combination order.
package resultio

import (
	"bufio"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/zeebo/xxh3"
)

const (
	// DefaultBatchSize is the number of lines buffered before they are
	// handed to the file buffer.
	DefaultBatchSize = 1000
	bufSize          = 64 << 10
)

// Options configure a Writer.
type Options struct {
	BatchSize int
	// Total is the expected number of results, used for progress only.
	Total uint64
	// Progress enables periodic progress log lines.
	Progress bool
	// ProgressEvery is the number of results between progress lines.
	// Zero picks roughly one line per 5% of Total.
	ProgressEvery uint64
	Logger        zerolog.Logger
}

// Writer streams results to a temporary file next to the destination and
// renames it into place on Close, so the destination only ever holds a
// complete stream.
type Writer struct {
	path string
	tmp  *os.File
	bw   *bufio.Writer
	hash *xxh3.Hasher

	batch     []byte
	batchSize int
	pending   int
	lines     uint64

	opts     Options
	every    uint64
	started  time.Time
	closed   bool
	finalSum uint64
}

// Create prepares a Writer for path, creating parent directories.
func Create(path string, opts Options) (*Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", path, err)
	}
	_ = os.Chmod(tmp.Name(), 0o644)

	bs := opts.BatchSize
	if bs <= 0 {
		bs = DefaultBatchSize
	}
	every := opts.ProgressEvery
	if every == 0 {
		every = max(opts.Total/20, 100_000)
	}
	return &Writer{
		path:      path,
		tmp:       tmp,
		bw:        bufio.NewWriterSize(tmp, bufSize),
		hash:      xxh3.New(),
		batch:     make([]byte, 0, bs*8),
		batchSize: bs,
		opts:      opts,
		every:     every,
		started:   time.Now(),
	}, nil
}

// Path is the final destination.
func (w *Writer) Path() string { return w.path }

// Lines is the number of results written so far.
func (w *Writer) Lines() uint64 { return w.lines }

// Digest is the xxh3 hash of every byte written. It is final after Close.
func (w *Writer) Digest() uint64 {
	if w.closed {
		return w.finalSum
	}
	return w.hash.Sum64()
}

// Write appends one result.
func (w *Writer) Write(v uint64) error {
	if w.closed {
		return errors.New("resultio: write after close")
	}
	w.batch = strconv.AppendUint(w.batch, v, 10)
	w.batch = append(w.batch, '\n')
	w.pending++
	w.lines++
	if w.pending >= w.batchSize {
		if err := w.flushBatch(); err != nil {
			return err
		}
	}
	if w.opts.Progress && w.lines%w.every == 0 {
		w.logProgress()
	}
	return nil
}

// WriteAll drains seq into the writer.
func (w *Writer) WriteAll(seq iter.Seq[uint64]) error {
	for v := range seq {
		if err := w.Write(v); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushBatch() error {
	if len(w.batch) == 0 {
		return nil
	}
	_, _ = w.hash.Write(w.batch)
	if _, err := w.bw.Write(w.batch); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	w.batch = w.batch[:0]
	w.pending = 0
	return nil
}

func (w *Writer) logProgress() {
	ev := w.opts.Logger.Info().Str("path", w.path).Str("written", humanize.Comma(int64(w.lines)))
	if w.opts.Total > 0 {
		ev = ev.Str("total", humanize.Comma(int64(w.opts.Total))).
			Float64("pct", 100*float64(w.lines)/float64(w.opts.Total))
	}
	ev.Dur("elapsed", time.Since(w.started)).Msg("writing results")
}

// Close flushes, syncs, and renames the stream into place.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flushBatch(); err != nil {
		w.discard()
		return err
	}
	w.finalSum = w.hash.Sum64()
	w.closed = true

	name := w.tmp.Name()
	if err := w.bw.Flush(); err != nil {
		w.discard()
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	if err := os.Rename(name, w.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("rename %s: %w", w.path, err)
	}
	_ = syncDir(filepath.Dir(w.path))

	if w.opts.Progress {
		w.opts.Logger.Info().Str("path", w.path).Str("written", humanize.Comma(int64(w.lines))).
			Dur("elapsed", time.Since(w.started)).Msg("results written")
	}
	return nil
}

// Abort discards the stream; the destination is left untouched.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.discard()
}

func (w *Writer) discard() {
	w.closed = true
	name := w.tmp.Name()
	_ = w.tmp.Close()
	_ = os.Remove(name)
}

// syncDir fsyncs dir so the rename survives a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
