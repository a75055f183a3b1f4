// Package plot renders the R scripts that draw accumulation curves from a
// report TSV, and optionally runs them.
package plot

import (
	"context"
	"embed"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"combostat/internal/apperr"
)

// Type is the plot layout.
type Type string

const (
	// Point plots every representative value per k.
	Point Type = "point"
	// Box plots descriptive statistics per k.
	Box Type = "box"
)

// ParseType accepts "point" or "box"; empty selects Point.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", Point:
		return Point, nil
	case Box:
		return Box, nil
	default:
		return "", apperr.InvalidArgf("unsupported plot type %q (want point|box)", s)
	}
}

// DefaultInfile is the report file name for t.
func DefaultInfile(t Type) string { return fmt.Sprintf("processed_stats.%s.tsv", t) }

// Options are the plot settings. Keys are the names accepted by Set.
type Options struct {
	Infile      string  `json:"infile"`
	Output      string  `json:"output"`
	XLab        string  `json:"x_lab"`
	YLab        string  `json:"y_lab"`
	Title       string  `json:"title"`
	LegendTitle string  `json:"legend_title"`
	DPI         int     `json:"dpi"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// DefaultOptions returns the defaults for t.
func DefaultOptions(t Type) Options {
	o := Options{
		Infile:      DefaultInfile(t),
		Output:      "pointplot",
		XLab:        "Genomes",
		YLab:        "Families",
		LegendTitle: "Type",
		DPI:         300,
		Width:       14,
		Height:      7,
	}
	if t == Box {
		o.Output = "boxplot"
		o.Title = "BoxPlot"
	}
	return o
}

// Keys lists the accepted option keys.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(o *Options, v string) error{
	"infile":       func(o *Options, v string) error { o.Infile = v; return nil },
	"output":       func(o *Options, v string) error { o.Output = v; return nil },
	"x_lab":        func(o *Options, v string) error { o.XLab = v; return nil },
	"y_lab":        func(o *Options, v string) error { o.YLab = v; return nil },
	"title":        func(o *Options, v string) error { o.Title = v; return nil },
	"legend_title": func(o *Options, v string) error { o.LegendTitle = v; return nil },
	"dpi": func(o *Options, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("dpi must be a positive integer, got %q", v)
		}
		o.DPI = n
		return nil
	},
	"width":  func(o *Options, v string) error { return setDim(&o.Width, "width", v) },
	"height": func(o *Options, v string) error { return setDim(&o.Height, "height", v) },
}

func setDim(dst *float64, name, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fmt.Errorf("%s must be a positive number, got %q", name, v)
	}
	*dst = f
	return nil
}

// Set assigns one option. Unknown keys and malformed values are rejected.
func (o *Options) Set(key, value string) error {
	fn, ok := setters[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return apperr.InvalidArgf("unknown plot option %q (known: %s)", key, strings.Join(Keys(), ", "))
	}
	if err := fn(o, unquote(value)); err != nil {
		return apperr.InvalidArgf("plot option %s: %v", key, err)
	}
	return nil
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// ParseOptions applies "key=value" pairs on top of DefaultOptions(t).
func ParseOptions(t Type, pairs []string) (Options, error) {
	o := DefaultOptions(t)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return o, apperr.InvalidArgf("plot option %q is not key=value", p)
		}
		if err := o.Set(k, v); err != nil {
			return o, err
		}
	}
	return o, nil
}

//go:embed templates/*.R.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("plot").Funcs(template.FuncMap{
	"rq":  rQuote,
	"num": func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) },
}).ParseFS(templateFS, "templates/*.R.tmpl"))

// rQuote renders s as a single-quoted R string literal.
func rQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)
	return "'" + r.Replace(s) + "'"
}

// Render writes the R script for t.
func Render(w io.Writer, t Type, o Options) error {
	name := string(t) + ".R.tmpl"
	if err := templates.ExecuteTemplate(w, name, o); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

// WriteScript renders the script to path.
func WriteScript(path string, t Type, o Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Render(f, t, o); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RunRscript executes script with the given Rscript binary.
func RunRscript(ctx context.Context, rscript, script string, stdout, stderr io.Writer) error {
	if rscript == "" {
		rscript = "Rscript"
	}
	cmd := exec.CommandContext(ctx, rscript, script)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", rscript, script, err)
	}
	return nil
}
