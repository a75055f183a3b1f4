// Package apperr defines the error kinds shared across combostat packages.
//
// Concrete errors wrap one of the sentinels below so callers at the CLI
// boundary can map them to exit codes with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks a request that was rejected before any I/O:
	// k out of range, unknown share type, non-positive threshold, bad window.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDataFormat marks malformed input tables.
	ErrDataFormat = errors.New("data format error")

	// ErrAggregation marks chunk results that cannot be combined.
	ErrAggregation = errors.New("aggregation error")
)

// InvalidArgf returns an error wrapping ErrInvalidArgument.
func InvalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Exit codes returned by the CLI for each error kind.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInvalidArgs = 2
	ExitDataFormat  = 3
	ExitAggregation = 4
)

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidArgument):
		return ExitInvalidArgs
	case errors.Is(err, ErrDataFormat):
		return ExitDataFormat
	case errors.Is(err, ErrAggregation):
		return ExitAggregation
	default:
		return ExitFailure
	}
}
