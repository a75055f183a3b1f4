// Package merge combines per-chunk result files into one file per group.
//
// Row-window chunks are combined by positional sum; combination-range
// chunks are concatenated in chunk order. Groups are independent: a
// malformed group is reported without stopping the others.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"combostat/internal/apperr"
	"combostat/internal/resultio"
)

// DefaultMaxOpen bounds how many chunk files a sum pass reads at once.
const DefaultMaxOpen = 64

// ValueWriter receives merged values in order.
type ValueWriter interface {
	Write(v uint64) error
}

// AggregationError reports chunk files that cannot be combined.
type AggregationError struct {
	Group string
	File  string
	Lines uint64
	Want  uint64
	Msg   string
}

func (e *AggregationError) Error() string {
	prefix := "aggregation error"
	if e.Group != "" {
		prefix += " in group " + e.Group
	}
	if e.Msg != "" {
		return prefix + ": " + e.Msg
	}
	return fmt.Sprintf("%s: %s has %d lines, expected %d", prefix, e.File, e.Lines, e.Want)
}

// Unwrap lets errors.Is(err, apperr.ErrAggregation) match.
func (e *AggregationError) Unwrap() error { return apperr.ErrAggregation }

type input struct {
	path  string
	label string // file name reported in errors
}

// Sum writes the positional sum of files to w and returns the number of
// values written. Every file must hold the same number of values. More than
// maxOpen files are reduced in cascaded passes through temporary files.
func Sum(ctx context.Context, files []string, w ValueWriter, maxOpen int) (uint64, error) {
	if len(files) == 0 {
		return 0, &AggregationError{Msg: "no chunk files"}
	}
	if maxOpen < 2 {
		maxOpen = DefaultMaxOpen
	}
	ins := make([]input, len(files))
	for i, f := range files {
		ins[i] = input{path: f, label: f}
	}
	if len(ins) <= maxOpen {
		return sumPass(ctx, ins, w)
	}

	tmpDir, err := os.MkdirTemp("", "combostat-merge-*")
	if err != nil {
		return 0, fmt.Errorf("merge temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pass := 0
	for len(ins) > maxOpen {
		var next []input
		for start := 0; start < len(ins); start += maxOpen {
			batch := ins[start:min(start+maxOpen, len(ins))]
			tmp := filepath.Join(tmpDir, fmt.Sprintf("p%d_%d.txt", pass, start/maxOpen))
			tw, err := resultio.Create(tmp, resultio.Options{})
			if err != nil {
				return 0, err
			}
			if _, err := sumPass(ctx, batch, tw); err != nil {
				tw.Abort()
				return 0, err
			}
			if err := tw.Close(); err != nil {
				return 0, err
			}
			next = append(next, input{path: tmp, label: batch[0].label})
		}
		ins = next
		pass++
	}
	return sumPass(ctx, ins, w)
}

// sumPass reads every input in lockstep.
func sumPass(ctx context.Context, ins []input, w ValueWriter) (uint64, error) {
	files := make([]*os.File, 0, len(ins))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	scanners := make([]*resultio.Scanner, len(ins))
	for i, in := range ins {
		f, err := os.Open(in.path)
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", in.label, err)
		}
		files = append(files, f)
		scanners[i] = resultio.NewScanner(f)
	}

	var n uint64
	have := make([]bool, len(scanners))
	for {
		if n%4096 == 0 {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			default:
			}
		}

		var total uint64
		got := 0
		for i, sc := range scanners {
			have[i] = sc.Scan()
			if have[i] {
				total += sc.Value()
				got++
			} else if err := sc.Err(); err != nil {
				return n, &AggregationError{File: ins[i].label, Msg: fmt.Sprintf("%s: %v", ins[i].label, err)}
			}
		}
		if got == 0 {
			return n, nil
		}
		if got != len(scanners) {
			return n, mismatch(ins, scanners, have, n)
		}
		if err := w.Write(total); err != nil {
			return n, err
		}
		n++
	}
}

// mismatch drains every scanner to report exact line counts. The first
// file's count is the expected one.
func mismatch(ins []input, scanners []*resultio.Scanner, have []bool, pos uint64) error {
	counts := make([]uint64, len(scanners))
	for i, sc := range scanners {
		counts[i] = pos
		if have[i] {
			counts[i]++
			for sc.Scan() {
				counts[i]++
			}
		}
	}
	for i := 1; i < len(counts); i++ {
		if counts[i] != counts[0] {
			return &AggregationError{File: ins[i].label, Lines: counts[i], Want: counts[0]}
		}
	}
	return &AggregationError{File: ins[0].label, Lines: counts[0], Want: counts[0]}
}

// Concat writes every value of files, in order, to w.
func Concat(ctx context.Context, files []string, w ValueWriter) (uint64, error) {
	var n uint64
	for _, p := range files {
		select {
		case <-ctx.Done():
			return n, ctx.Err()
		default:
		}
		f, err := os.Open(p)
		if err != nil {
			return n, fmt.Errorf("open %s: %w", p, err)
		}
		sc := resultio.NewScanner(f)
		for sc.Scan() {
			if err := w.Write(sc.Value()); err != nil {
				f.Close()
				return n, err
			}
			n++
		}
		f.Close()
		if err := sc.Err(); err != nil {
			return n, &AggregationError{File: p, Msg: fmt.Sprintf("%s: %v", p, err)}
		}
	}
	return n, nil
}
