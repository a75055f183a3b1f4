package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"combostat/internal/apperr"

	"github.com/go-playground/validator/v10"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is the JSON path of the field, e.g. "range.end".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate runs the struct rules on cfg plus command-specific lints.
func Validate(cfg any) []Issue {
	var issues []Issue
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
		}
		for _, fe := range verrs {
			issues = append(issues, Issue{Severity: SeverityError, Path: fieldPath(fe), Message: describe(fe)})
		}
	}
	return append(issues, lint(cfg)...)
}

// fieldPath drops the root type name: "Stat.range.end" -> "range.end".
// Fields of embedded structs sit at the top level, as in JSON.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	for _, embedded := range []string{"Common.", "TableInput."} {
		ns = strings.TrimPrefix(ns, embedded)
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "required_if", "required_with":
		return fmt.Sprintf("is required when %s is set", strings.Fields(fe.Param())[0])
	case "min":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gtefield":
		return fmt.Sprintf("must be >= %s, got %v", strings.ToLower(fe.Param()), fe.Value())
	default:
		return fmt.Sprintf("failed %s rule", fe.Tag())
	}
}

// lint adds checks that the tags cannot express.
func lint(cfg any) []Issue {
	var issues []Issue
	switch c := cfg.(type) {
	case *Stat:
		issues = append(issues, lintSeparator(c.Separator)...)
		if c.Range != nil && c.ChunkSize > 0 {
			issues = append(issues, Issue{SeverityError, "range", "a combination range cannot be combined with chunksize"})
		}
		if c.Backend == "roaring" && c.ChunkSize == 0 && c.Range == nil {
			issues = append(issues, Issue{SeverityWarning, "backend", "roaring reads the whole table into compressed sets; bitset is faster for dense tables"})
		}
	case *Plan:
		issues = append(issues, lintSeparator(c.Separator)...)
		if c.MaxChunks == 0 {
			issues = append(issues, Issue{SeverityWarning, "max_chunks", "no per-k chunk limit; very small thresholds can generate millions of scripts"})
		}
	case *Report:
		if c.DBKind == "" && c.DBDSN != "" {
			issues = append(issues, Issue{SeverityWarning, "db_dsn", "db_dsn is ignored without db_kind"})
		}
		if c.Write == "" && len(c.Options) > 0 {
			issues = append(issues, Issue{SeverityWarning, "options", "plot options are ignored without write"})
		}
	}
	return issues
}

func lintSeparator(sep string) []Issue {
	if _, err := ParseSeparator(sep); err != nil {
		return []Issue{{SeverityError, "sep", err.Error()}}
	}
	return nil
}

// Check validates cfg and returns the error-severity issues joined as an
// invalid-argument error, or nil.
func Check(cfg any) error {
	var errs []string
	for _, iss := range Validate(cfg) {
		if iss.Severity == SeverityError {
			errs = append(errs, iss.Error())
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return apperr.InvalidArgf("config: %s", strings.Join(errs, "; "))
}

// Commands lists the kinds ValidateFile accepts.
var Commands = []string{"stat", "plan", "merge", "report"}

// ValidateFile decodes the JSON config for command over its defaults and
// returns every issue found. Decode failures are returned as errors.
func ValidateFile(command, path string, getenv func(string) string) ([]Issue, error) {
	e := env(getenv)
	var cfg any
	switch command {
	case "stat":
		cfg = defaultStat(e)
	case "plan":
		cfg = defaultPlan(e)
	case "merge":
		cfg = defaultMerge(e)
	case "report":
		cfg = defaultReport(e)
	default:
		return nil, apperr.InvalidArgf("unknown command %q (want %s)", command, strings.Join(Commands, "|"))
	}
	if err := DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return Validate(cfg), nil
}
