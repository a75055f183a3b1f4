// Package table loads a delimited presence/absence matrix into one presence
// set per sample.
//
// The first StartColumn columns are row labels; every later column is a
// sample. A cell is present when it is a number greater than zero. Empty,
// NA, NaN and null cells are absent.
package table

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"combostat/internal/datasource"
	"combostat/internal/presence"

	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// Table is a loaded window of a presence matrix.
type Table struct {
	// Samples are the sample names in column order.
	Samples []string
	// Rows is the number of data rows in the window.
	Rows int
	// Sets holds one presence set per sample. Row indices are relative to
	// the window start.
	Sets   []presence.Set
	Window Window
}

// LoadFile opens a local path or s3:// URI and loads it.
func LoadFile(ctx context.Context, uri string, opts Options) (*Table, error) {
	if err := opts.withDefaults().validate(); err != nil {
		return nil, err
	}
	src, err := datasource.ForURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	t, err := Load(ctx, rc, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", uri, err)
	}
	return t, nil
}

// Load reads the table from r.
func Load(ctx context.Context, r io.Reader, opts Options) (*Table, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.Logger

	cr := newReader(r, opts.Separator)
	header, err := readHeader(cr, opts)
	if err != nil {
		return nil, err
	}
	samples := header[opts.StartColumn:]
	width := len(header)

	builders := make([]presence.Builder, len(samples))
	for i := range builders {
		builders[i] = presence.NewBuilder(opts.Backend)
	}

	start, end, all := opts.Window.Bounds()
	row := 0 // data row index in the file
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !all && row >= end {
			break
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		if !all && row < start {
			row++
			continue
		}

		line, _ := cr.FieldPos(0)
		if len(rec) != width {
			return nil, &DataFormatError{Line: line, Msg: fmt.Sprintf("row has %d fields, header has %d", len(rec), width)}
		}
		rel := uint32(row - start)
		for i, cell := range rec[opts.StartColumn:] {
			ok, err := parseCell(cell)
			if err != nil {
				return nil, &DataFormatError{Line: line, Column: samples[i], Msg: err.Error()}
			}
			if ok {
				builders[i].Add(rel)
			}
		}
		row++
		if (row-start)%opts.LogEvery == 0 {
			log.Debug().Int("line", line).Int("rows", row-start).Msg("loading table")
		}
	}

	n := max(row-start, 0)
	sets := make([]presence.Set, len(builders))
	for i, b := range builders {
		sets[i] = b.Build(n)
	}
	log.Debug().Int("samples", len(samples)).Int("rows", n).Int("window_start", start).Msg("table loaded")
	return &Table{Samples: samples, Rows: n, Sets: sets, Window: opts.Window}, nil
}

// ReadHeader returns only the sample names of the table in r.
func ReadHeader(r io.Reader, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	header, err := readHeader(newReader(r, opts.Separator), opts)
	if err != nil {
		return nil, err
	}
	return header[opts.StartColumn:], nil
}

// ReadHeaderFile is ReadHeader over a local path or s3:// URI.
func ReadHeaderFile(ctx context.Context, uri string, opts Options) ([]string, error) {
	src, err := datasource.ForURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	samples, err := ReadHeader(rc, opts)
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", uri, err)
	}
	return samples, nil
}

func newReader(r io.Reader, sep rune) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1 // widths are checked against the header
	cr.ReuseRecord = true
	return cr
}

// readHeader skips HeaderRow lines and returns a normalized copy of the
// header record.
func readHeader(cr *csv.Reader, opts Options) ([]string, error) {
	for i := 0; i < opts.HeaderRow; i++ {
		if _, err := cr.Read(); err != nil {
			if err == io.EOF {
				return nil, &DataFormatError{Msg: fmt.Sprintf("missing header: input ends before line %d", opts.HeaderRow+1)}
			}
			return nil, csvError(err)
		}
	}
	rec, err := cr.Read()
	if err == io.EOF {
		return nil, &DataFormatError{Msg: "missing header: input is empty"}
	}
	if err != nil {
		return nil, csvError(err)
	}
	line, _ := cr.FieldPos(0)

	header := make([]string, len(rec))
	for i, h := range rec {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		header[i] = norm.NFC.String(strings.TrimSpace(h))
	}
	if opts.StartColumn >= len(header) {
		return nil, &DataFormatError{
			Line: line,
			Msg:  fmt.Sprintf("start column %d out of range: header has %d columns (check the separator)", opts.StartColumn, len(header)),
		}
	}
	return header, nil
}

// parseCell reports whether cell marks a present row.
func parseCell(cell string) (bool, error) {
	v := strings.TrimSpace(cell)
	switch strings.ToLower(v) {
	case "", "na", "nan", "null", "n/a":
		return false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false, fmt.Errorf("non-numeric value %q", cell)
	}
	return f > 0, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &DataFormatError{Line: pe.Line, Msg: pe.Err.Error()}
	}
	return fmt.Errorf("read table: %w", err)
}
