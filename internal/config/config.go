// Package config holds the per-command settings of the combostat CLI.
//
// Every command has an explicit struct. Values are layered in this order,
// later layers winning: built-in defaults, COMBOSTAT_* environment
// variables, an optional JSON file (-config or COMBOSTAT_CONFIG), and
// finally command-line flags.
//
// For tests, pass a private FlagSet and a map-backed getenv:
//
//	fs := flag.NewFlagSet("stat", flag.ContinueOnError)
//	cfg, err := config.LoadStatFromArgs(fs, func(k string) string { return env[k] }, args)
package config

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"combostat/internal/apperr"
)

// EnvPrefix prefixes every environment variable the loaders read.
const EnvPrefix = "COMBOSTAT_"

// env wraps getenv with typed, prefixed lookups. Malformed values fall back
// to the default.
type env func(string) string

func (e env) str(k, d string) string {
	if v := e(EnvPrefix + k); v != "" {
		return v
	}
	return d
}

func (e env) int(k string, d int) int {
	if v := e(EnvPrefix + k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func (e env) int64(k string, d int64) int64 {
	if v := e(EnvPrefix + k); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return d
}

func (e env) uint64(k string, d uint64) uint64 {
	if v := e(EnvPrefix + k); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return d
}

func (e env) bool(k string, d bool) bool {
	if v := strings.ToLower(e(EnvPrefix + k)); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return d
}

// ParseSeparator decodes a separator as written on a command line: "\t",
// "\\t", "tab", "comma", "space", "semicolon", "pipe", or a single rune.
func ParseSeparator(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", `\t`, `\\t`, "\t", "tab":
		return '\t', nil
	case "comma":
		return ',', nil
	case "space":
		return ' ', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, apperr.InvalidArgf("separator %q must be a single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '\n' || r == '\r' || r == '"' || r == utf8.RuneError {
		return 0, apperr.InvalidArgf("separator %q is not allowed", s)
	}
	return r, nil
}

// DecodeFile decodes the JSON file at path into v, rejecting unknown keys.
// Keys absent from the file leave v's fields unchanged.
func DecodeFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidArgf("decode config %s: %v", path, err)
	}
	return nil
}

// configPath finds -config in args before the flag set is parsed, falling
// back to COMBOSTAT_CONFIG.
func configPath(args []string, e env) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return e.str("CONFIG", "")
}

// parseInterspersed parses args allowing positionals before flags, so
// "merge out/result -o merge" works like "merge -o merge out/result".
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return pos, nil
		}
		// flag consumed a "--" terminator: everything after it is positional
		if i := len(args) - len(rest) - 1; i >= 0 && args[i] == "--" {
			return append(pos, rest...), nil
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
}

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
