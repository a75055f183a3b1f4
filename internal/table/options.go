package table

import (
	"unicode/utf8"

	"combostat/internal/apperr"
	"combostat/internal/presence"

	"github.com/rs/zerolog"
)

// Window selects a contiguous block of data rows: rows
// [(Index-1)*ChunkSize, Index*ChunkSize). ChunkSize 0 selects every row.
type Window struct {
	ChunkSize int
	Index     int
}

// Validate rejects negative sizes and a missing index.
func (w Window) Validate() error {
	if w.ChunkSize < 0 {
		return apperr.InvalidArgf("chunksize %d must be >= 0", w.ChunkSize)
	}
	if w.ChunkSize > 0 && w.Index < 1 {
		return apperr.InvalidArgf("chunk %d must be >= 1 when chunksize is set", w.Index)
	}
	return nil
}

// Bounds returns the half-open row range. all is true when the window is
// the whole table.
func (w Window) Bounds() (start, end int, all bool) {
	if w.ChunkSize == 0 {
		return 0, 0, true
	}
	start = (w.Index - 1) * w.ChunkSize
	return start, start + w.ChunkSize, false
}

// Options configure Load.
type Options struct {
	// Separator is the field delimiter. Zero means tab.
	Separator rune
	// HeaderRow is the 0-based line index of the header; lines before it
	// are skipped.
	HeaderRow int
	// StartColumn is the index of the first sample column.
	StartColumn int
	Window      Window
	Backend     presence.Backend
	Logger      zerolog.Logger
	// LogEvery emits a debug progress line every LogEvery data rows.
	LogEvery int
}

const defaultLogEvery = 50_000

func (o Options) withDefaults() Options {
	if o.Separator == 0 {
		o.Separator = '\t'
	}
	if o.Backend == "" {
		o.Backend = presence.BackendBitset
	}
	if o.LogEvery <= 0 {
		o.LogEvery = defaultLogEvery
	}
	return o
}

func (o Options) validate() error {
	if o.Separator == '\r' || o.Separator == '\n' || o.Separator == '"' ||
		o.Separator == utf8.RuneError || !utf8.ValidRune(o.Separator) {
		return apperr.InvalidArgf("invalid separator %q", o.Separator)
	}
	if o.HeaderRow < 0 {
		return apperr.InvalidArgf("header row %d must be >= 0", o.HeaderRow)
	}
	if o.StartColumn < 0 {
		return apperr.InvalidArgf("start column %d must be >= 0", o.StartColumn)
	}
	if _, err := presence.ParseBackend(string(o.Backend)); err != nil {
		return err
	}
	return o.Window.Validate()
}
