package config

import (
	"errors"
	"flag"
	"strings"

	"combostat/internal/apperr"
	"combostat/internal/batch"
	"combostat/internal/merge"
	"combostat/internal/partition"
	"combostat/internal/plot"
	"combostat/internal/presence"
	"combostat/internal/report"
	"combostat/internal/share"
	"combostat/internal/stat"
	"combostat/internal/storage"
	"combostat/internal/table"
)

// Common settings shared by every command.
type Common struct {
	// Metrics selects the metrics backend.
	Metrics        string `json:"metrics" validate:"oneof=none pushgateway datadog"`
	PushgatewayURL string `json:"pushgateway_url" validate:"required_if=Metrics pushgateway"`
	StatsdAddr     string `json:"statsd_addr" validate:"required_if=Metrics datadog"`
	// RunID labels logs and metrics; empty generates one.
	RunID string `json:"run_id"`
}

func defaultCommon(e env) Common {
	return Common{
		Metrics:        e.str("METRICS", "none"),
		PushgatewayURL: e.str("PUSHGATEWAY_URL", ""),
		StatsdAddr:     e.str("STATSD_ADDR", ""),
		RunID:          e.str("RUN_ID", ""),
	}
}

func bindCommon(fs *flag.FlagSet, c *Common) {
	fs.StringVar(&c.Metrics, "metrics", c.Metrics, "Metrics backend: none|pushgateway|datadog")
	fs.StringVar(&c.PushgatewayURL, "pushgateway-url", c.PushgatewayURL, "Prometheus Pushgateway URL")
	fs.StringVar(&c.StatsdAddr, "statsd-addr", c.StatsdAddr, "DogStatsD address")
	fs.StringVar(&c.RunID, "run-id", c.RunID, "Run identifier for logs and metrics")
	fs.String("config", "", "JSON config file (flags override it)")
}

// TableInput describes how the presence table is read.
type TableInput struct {
	Input       string `json:"input" validate:"required"`
	Separator   string `json:"sep"`
	HeaderRow   int    `json:"header" validate:"min=0"`
	StartColumn int    `json:"start_col" validate:"min=0"`
	Backend     string `json:"backend" validate:"oneof=bitset roaring"`
}

func defaultTableInput(e env) TableInput {
	return TableInput{
		Input:       e.str("INPUT", ""),
		Separator:   e.str("SEP", `\t`),
		HeaderRow:   e.int("HEADER", 0),
		StartColumn: e.int("START_COL", 1),
		Backend:     e.str("BACKEND", string(presence.BackendBitset)),
	}
}

func bindTableInput(fs *flag.FlagSet, t *TableInput) {
	fs.StringVar(&t.Input, "i", t.Input, "Input presence table (path or s3://bucket/key)")
	fs.StringVar(&t.Separator, "sep", t.Separator, `Field separator: \t, tab, comma or one character`)
	fs.IntVar(&t.HeaderRow, "header", t.HeaderRow, "0-based line index of the header row")
	fs.IntVar(&t.StartColumn, "start-col", t.StartColumn, "Index of the first sample column")
	fs.StringVar(&t.Backend, "backend", t.Backend, "Presence set backend: bitset|roaring")
}

// Options converts to table options without a window.
func (t TableInput) Options() (table.Options, error) {
	sep, err := ParseSeparator(t.Separator)
	if err != nil {
		return table.Options{}, err
	}
	b, err := presence.ParseBackend(t.Backend)
	if err != nil {
		return table.Options{}, err
	}
	return table.Options{Separator: sep, HeaderRow: t.HeaderRow, StartColumn: t.StartColumn, Backend: b}, nil
}

// Range is a combination-rank slice [Start, End).
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end" validate:"gtefield=Start"`
}

// Stat configures "combostat stat".
type Stat struct {
	Common
	TableInput
	Output    string `json:"output" validate:"required"`
	K         int    `json:"k" validate:"min=1"`
	ShareType string `json:"share_type" validate:"oneof=intersection union"`
	ChunkSize int    `json:"chunksize" validate:"min=0"`
	Chunk     int    `json:"chunk" validate:"required_with=ChunkSize"`
	Range     *Range `json:"range,omitempty" validate:"omitempty"`
	Progress  bool   `json:"progress"`
}

func defaultStat(e env) *Stat {
	return &Stat{
		Common:     defaultCommon(e),
		TableInput: defaultTableInput(e),
		Output:     e.str("OUTPUT", ""),
		K:          e.int("K", 0),
		ShareType:  e.str("SHARE_TYPE", string(share.Intersection)),
		ChunkSize:  e.int("CHUNKSIZE", 0),
		Chunk:      e.int("CHUNK", 1),
		Progress:   e.bool("PROGRESS", false),
	}
}

// LoadStatFromArgs builds a Stat from defaults, env, an optional JSON
// file and args, then validates it.
func LoadStatFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Stat, error) {
	e := env(getenv)
	cfg := defaultStat(e)
	if p := configPath(args, e); p != "" {
		if err := DecodeFile(p, cfg); err != nil {
			return nil, err
		}
	}

	bindCommon(fs, &cfg.Common)
	bindTableInput(fs, &cfg.TableInput)
	fs.StringVar(&cfg.Output, "o", cfg.Output, "Output result file")
	fs.IntVar(&cfg.K, "n", cfg.K, "Combination size k")
	fs.StringVar(&cfg.ShareType, "t", cfg.ShareType, "Share type: intersection|union")
	fs.IntVar(&cfg.ChunkSize, "chunksize", cfg.ChunkSize, "Rows per window (0 reads every row)")
	fs.IntVar(&cfg.Chunk, "chunk", cfg.Chunk, "1-based window index")
	var rs, re uint64
	if cfg.Range != nil {
		rs, re = cfg.Range.Start, cfg.Range.End
	}
	fs.Uint64Var(&rs, "range-start", rs, "First combination rank (inclusive)")
	fs.Uint64Var(&re, "range-end", re, "Last combination rank (exclusive)")
	fs.BoolVar(&cfg.Progress, "progress", cfg.Progress, "Log progress while writing results")

	if err := fs.Parse(args); err != nil {
		return nil, flagErr(err)
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "range-start" || f.Name == "range-end" {
			cfg.Range = &Range{}
		}
	})
	if cfg.Range != nil {
		cfg.Range.Start, cfg.Range.End = rs, re
	}
	cfg.normalize()
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Stat) normalize() {
	s.ShareType = strings.ToLower(strings.TrimSpace(s.ShareType))
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	s.Metrics = strings.ToLower(strings.TrimSpace(s.Metrics))
}

// StatConfig converts to the runner's configuration.
func (s *Stat) StatConfig() (stat.Config, error) {
	opts, err := s.TableInput.Options()
	if err != nil {
		return stat.Config{}, err
	}
	opts.Window = table.Window{ChunkSize: s.ChunkSize, Index: s.Chunk}
	t, err := share.ParseType(s.ShareType)
	if err != nil {
		return stat.Config{}, err
	}
	c := stat.Config{
		Input:     s.Input,
		Output:    s.Output,
		K:         s.K,
		ShareType: t,
		Table:     opts,
		Progress:  s.Progress,
		RunID:     s.RunID,
	}
	if s.Range != nil {
		c.Range = &stat.Range{Start: s.Range.Start, End: s.Range.End}
	}
	return c, nil
}

// Plan configures "combostat plan".
type Plan struct {
	Common
	TableInput
	Threshold int64  `json:"threshold" validate:"min=1"`
	MaxChunks uint64 `json:"max_chunks"`
	OutputDir string `json:"output_dir" validate:"required"`
	MergeDir  string `json:"merge_dir" validate:"required"`
	Mode      string `json:"mode" validate:"oneof=rows combinations combos"`
	PlotType  string `json:"plot_type" validate:"oneof=point box"`
	Mem       string `json:"mem" validate:"required"`
	Binary    string `json:"binary" validate:"required"`
	Job       string `json:"job"`
	NoCheck   bool   `json:"no_check"`
}

func defaultPlan(e env) *Plan {
	return &Plan{
		Common:     defaultCommon(e),
		TableInput: defaultTableInput(e),
		Threshold:  e.int64("THRESHOLD", partition.DefaultThreshold),
		MaxChunks:  e.uint64("MAX_CHUNKS", partition.DefaultMaxChunks),
		OutputDir:  e.str("OUTDIR", "."),
		MergeDir:   e.str("MERGE_DIR", "merge"),
		Mode:       e.str("MODE", string(partition.ModeRows)),
		PlotType:   e.str("PLOT_TYPE", string(plot.Point)),
		Mem:        e.str("MEM", "1G"),
		Binary:     e.str("BINARY", "combostat"),
		Job:        e.str("JOB", ""),
		NoCheck:    e.bool("NO_CHECK", false),
	}
}

// LoadPlanFromArgs builds a Plan from defaults, env, an optional JSON file
// and args, then validates it.
func LoadPlanFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Plan, error) {
	e := env(getenv)
	cfg := defaultPlan(e)
	if p := configPath(args, e); p != "" {
		if err := DecodeFile(p, cfg); err != nil {
			return nil, err
		}
	}

	bindCommon(fs, &cfg.Common)
	bindTableInput(fs, &cfg.TableInput)
	fs.Int64Var(&cfg.Threshold, "threshold", cfg.Threshold, "Target combinations per chunk")
	fs.Uint64Var(&cfg.MaxChunks, "max-chunks", cfg.MaxChunks, "Per-k chunk limit (0 disables)")
	fs.StringVar(&cfg.OutputDir, "O", cfg.OutputDir, "Output directory for scripts and results")
	fs.StringVar(&cfg.MergeDir, "merge-dir", cfg.MergeDir, "Merge directory used by the generated scripts")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Chunk mode: rows|combinations")
	fs.StringVar(&cfg.PlotType, "plot-type", cfg.PlotType, "Plot type: point|box")
	fs.StringVar(&cfg.Mem, "mem", cfg.Mem, "Memory request per job")
	fs.StringVar(&cfg.Binary, "binary", cfg.Binary, "Command the scripts invoke")
	fs.StringVar(&cfg.Job, "job", cfg.Job, "Build this scheduler job file with makejob")
	fs.BoolVar(&cfg.NoCheck, "no-check", cfg.NoCheck, "Pass -no to makejob (skip queue checks)")

	if err := fs.Parse(args); err != nil {
		return nil, flagErr(err)
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.PlotType = strings.ToLower(strings.TrimSpace(cfg.PlotType))
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BatchOptions converts to script generation options.
func (p *Plan) BatchOptions() (batch.Options, error) {
	sep, err := ParseSeparator(p.Separator)
	if err != nil {
		return batch.Options{}, err
	}
	pt, err := plot.ParseType(p.PlotType)
	if err != nil {
		return batch.Options{}, err
	}
	b := presence.Backend("")
	if p.Backend != string(presence.BackendBitset) {
		b = presence.Backend(p.Backend)
	}
	return batch.Options{
		OutputDir:   p.OutputDir,
		MergeDir:    p.MergeDir,
		Separator:   sep,
		HeaderRow:   p.HeaderRow,
		StartColumn: p.StartColumn,
		Backend:     b,
		PlotType:    pt,
		Mem:         p.Mem,
		Binary:      p.Binary,
	}, nil
}

// Merge configures "combostat merge".
type Merge struct {
	Common
	ResultDir string `json:"result_dir" validate:"required"`
	MergeDir  string `json:"merge_dir" validate:"required"`
	Mode      string `json:"mode" validate:"oneof=sum concat"`
	Workers   int    `json:"workers" validate:"min=1"`
	MaxOpen   int    `json:"max_open" validate:"min=2"`
}

func defaultMerge(e env) *Merge {
	return &Merge{
		Common:    defaultCommon(e),
		ResultDir: e.str("RESULT_DIR", ""),
		MergeDir:  e.str("MERGE_DIR", "merge"),
		Mode:      e.str("MERGE_MODE", string(merge.ModeSum)),
		Workers:   e.int("WORKERS", 4),
		MaxOpen:   e.int("MAX_OPEN", merge.DefaultMaxOpen),
	}
}

// LoadMergeFromArgs builds a Merge. The result directory is the first
// positional argument.
func LoadMergeFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Merge, error) {
	e := env(getenv)
	cfg := defaultMerge(e)
	if p := configPath(args, e); p != "" {
		if err := DecodeFile(p, cfg); err != nil {
			return nil, err
		}
	}

	bindCommon(fs, &cfg.Common)
	fs.StringVar(&cfg.MergeDir, "o", cfg.MergeDir, "Merge output directory")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Merge mode: sum|concat")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Groups merged concurrently")
	fs.IntVar(&cfg.MaxOpen, "max-open", cfg.MaxOpen, "Chunk files open at once per group")

	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return nil, flagErr(err)
	}
	if len(pos) > 1 {
		return nil, apperr.InvalidArgf("merge takes one result directory, got %d", len(pos))
	}
	if len(pos) == 1 {
		cfg.ResultDir = pos[0]
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeOptions converts to merge.Options.
func (m *Merge) MergeOptions() (merge.Options, error) {
	mode, err := merge.ParseMode(m.Mode)
	if err != nil {
		return merge.Options{}, err
	}
	return merge.Options{Mode: mode, Workers: m.Workers, MaxOpen: m.MaxOpen, RunID: m.RunID}, nil
}

// Report configures "combostat report".
type Report struct {
	Common
	MergeDir string   `json:"merge_dir" validate:"required"`
	PlotType string   `json:"plot_type" validate:"oneof=point box"`
	Output   string   `json:"output"`
	Splits   int      `json:"splits" validate:"min=2"`
	Workers  int      `json:"workers" validate:"min=1"`
	DBKind   string   `json:"db_kind" validate:"omitempty,oneof=sqlite postgres"`
	DBDSN    string   `json:"db_dsn" validate:"required_with=DBKind"`
	DBTable  string   `json:"db_table"`
	Write    string   `json:"write"`
	Options  []string `json:"options"`
	Rscript  string   `json:"rscript"`
	NoRun    bool     `json:"no_run"`
}

func defaultReport(e env) *Report {
	return &Report{
		Common:   defaultCommon(e),
		MergeDir: e.str("MERGE_DIR", ""),
		PlotType: e.str("PLOT_TYPE", string(plot.Point)),
		Output:   e.str("REPORT", ""),
		Splits:   e.int("SPLITS", report.DefaultSplits),
		Workers:  e.int("WORKERS", 4),
		DBKind:   e.str("DB_KIND", ""),
		DBDSN:    e.str("DB_DSN", ""),
		DBTable:  e.str("DB_TABLE", report.DefaultTable),
		Write:    e.str("WRITE", ""),
		Rscript:  e.str("RSCRIPT", "Rscript"),
		NoRun:    e.bool("NO_RUN", false),
	}
}

// LoadReportFromArgs builds a Report. The merge directory is the first
// positional argument.
func LoadReportFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Report, error) {
	e := env(getenv)
	cfg := defaultReport(e)
	if p := configPath(args, e); p != "" {
		if err := DecodeFile(p, cfg); err != nil {
			return nil, err
		}
	}

	bindCommon(fs, &cfg.Common)
	fs.StringVar(&cfg.PlotType, "plot-type", cfg.PlotType, "Report layout: point|box")
	fs.StringVar(&cfg.PlotType, "T", cfg.PlotType, "Shorthand for -plot-type")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "Report TSV (default: the infile option)")
	fs.IntVar(&cfg.Splits, "splits", cfg.Splits, "Representative values per k in point reports")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Groups read concurrently")
	fs.StringVar(&cfg.DBKind, "db-kind", cfg.DBKind, "Also store the report: sqlite|postgres")
	fs.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "Database DSN")
	fs.StringVar(&cfg.DBTable, "db-table", cfg.DBTable, "Database table")
	fs.StringVar(&cfg.Write, "write", cfg.Write, "Write the R plot script to this file")
	fs.StringVar(&cfg.Rscript, "rscript", cfg.Rscript, "Rscript executable")
	fs.StringVar(&cfg.Rscript, "R", cfg.Rscript, "Shorthand for -rscript")
	fs.BoolVar(&cfg.NoRun, "no-run", cfg.NoRun, "Write the R script without running it")
	opts := multiFlag(cfg.Options)
	fs.Var(&opts, "option", "Plot option key=value (repeatable)")

	pos, err := parseInterspersed(fs, args)
	if err != nil {
		return nil, flagErr(err)
	}
	cfg.Options = opts
	if len(pos) > 1 {
		return nil, apperr.InvalidArgf("report takes one merge directory, got %d", len(pos))
	}
	if len(pos) == 1 {
		cfg.MergeDir = pos[0]
	}
	cfg.PlotType = strings.ToLower(strings.TrimSpace(cfg.PlotType))
	cfg.DBKind = strings.ToLower(strings.TrimSpace(cfg.DBKind))
	if err := Check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReportOptions converts to report.Options.
func (r *Report) ReportOptions() (report.Options, error) {
	t, err := plot.ParseType(r.PlotType)
	if err != nil {
		return report.Options{}, err
	}
	return report.Options{Type: t, Splits: r.Splits, Workers: r.Workers}, nil
}

// PlotOptions resolves the plot options and the report file. The report
// file is -o when given, else the infile option, else the default name;
// the plot reads whatever file the report is written to.
func (r *Report) PlotOptions() (plot.Options, string, error) {
	t, err := plot.ParseType(r.PlotType)
	if err != nil {
		return plot.Options{}, "", err
	}
	o, err := plot.ParseOptions(t, r.Options)
	if err != nil {
		return o, "", err
	}
	out := r.Output
	if out == "" {
		out = o.Infile
	}
	o.Infile = out
	return o, out, nil
}

// StorageConfig is the database sink, or nil when none is configured.
func (r *Report) StorageConfig() *storage.Config {
	if r.DBKind == "" {
		return nil
	}
	return &storage.Config{Kind: r.DBKind, DSN: r.DBDSN, Table: r.DBTable}
}

// flagErr classifies a flag parse failure as an invalid argument, leaving
// flag.ErrHelp recognizable.
func flagErr(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return apperr.InvalidArgf("%v", err)
}
