package table

import (
	"fmt"

	"combostat/internal/apperr"
)

// DataFormatError reports malformed input. Line is 1-based and counts
// physical lines of the file; 0 means the error is not tied to a line.
type DataFormatError struct {
	Line   int
	Column string
	Msg    string
}

func (e *DataFormatError) Error() string {
	switch {
	case e.Line > 0 && e.Column != "":
		return fmt.Sprintf("data format error at line %d, column %q: %s", e.Line, e.Column, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("data format error at line %d: %s", e.Line, e.Msg)
	default:
		return "data format error: " + e.Msg
	}
}

// Unwrap lets errors.Is(err, apperr.ErrDataFormat) match.
func (e *DataFormatError) Unwrap() error { return apperr.ErrDataFormat }
