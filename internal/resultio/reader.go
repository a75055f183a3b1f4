package resultio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Scanner reads a result stream value by value. Blank lines are skipped.
type Scanner struct {
	sc   *bufio.Scanner
	v    uint64
	line int
	err  error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Scanner{sc: sc}
}

// Scan advances to the next value.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for s.sc.Scan() {
		s.line++
		b := bytes.TrimSpace(s.sc.Bytes())
		if len(b) == 0 {
			continue
		}
		v, err := strconv.ParseUint(string(b), 10, 64)
		if err != nil {
			s.err = fmt.Errorf("line %d: invalid result %q: %w", s.line, b, err)
			return false
		}
		s.v = v
		return true
	}
	s.err = s.sc.Err()
	return false
}

// Value is the current value.
func (s *Scanner) Value() uint64 { return s.v }

// Line is the 1-based line number of the current value.
func (s *Scanner) Line() int { return s.line }

// Err returns the first non-EOF error.
func (s *Scanner) Err() error { return s.err }

// ReadFile loads every value of a result file.
func ReadFile(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []uint64
	sc := NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Value())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
