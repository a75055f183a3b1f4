// Command combostat computes pan-genome accumulation statistics over every
// k-combination of samples in a presence table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"combostat/internal/apperr"
	"combostat/internal/batch"
	"combostat/internal/config"
	"combostat/internal/logging"
	"combostat/internal/merge"
	"combostat/internal/metrics"
	"combostat/internal/metrics/datadog"
	"combostat/internal/metrics/prompush"
	"combostat/internal/partition"
	"combostat/internal/plot"
	"combostat/internal/report"
	"combostat/internal/stat"
	"combostat/internal/table"

	_ "combostat/internal/storage/all"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const usage = `usage: combostat <command> [flags]

commands:
  stat      count shared rows for every k-combination of one chunk
  plan      split a table into chunks and write batch scripts
  merge     combine chunk results into one file per group
  report    build the processed table and the R plot script
  validate  check a JSON config file

Run "combostat <command> -h" for the flags of a command.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches one command and returns the process exit status.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	lo := logging.OptionsFromEnv(getenv)
	lo.Out = stderr
	log := logging.New(lo)

	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return apperr.ExitInvalidArgs
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet("combostat "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var err error
	switch cmd {
	case "stat":
		err = runStat(ctx, fs, getenv, rest, log)
	case "plan":
		err = runPlan(ctx, fs, getenv, rest, log, stdout, stderr)
	case "merge":
		err = runMerge(ctx, fs, getenv, rest, log)
	case "report":
		err = runReport(ctx, fs, getenv, rest, log, stdout, stderr)
	case "validate":
		err = runValidate(fs, getenv, rest, stdout)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return apperr.ExitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return apperr.ExitInvalidArgs
	}
	if errors.Is(err, flag.ErrHelp) {
		return apperr.ExitOK
	}
	if err != nil {
		log.Error().Err(err).Str("command", cmd).Msg("command failed")
		return apperr.ExitCode(err)
	}
	return apperr.ExitOK
}

// setupMetrics installs the configured backend and returns its flush.
// Failing to build a backend is logged and leaves metrics disabled.
func setupMetrics(c config.Common, job string, log zerolog.Logger) func() {
	var b metrics.Backend
	var err error
	switch c.Metrics {
	case "pushgateway":
		b, err = prompush.NewBackend(job, c.PushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{Addr: c.StatsdAddr, Namespace: "combostat."})
	default:
		return func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("backend", c.Metrics).Msg("metrics disabled")
		return func() {}
	}
	metrics.SetBackend(b)
	log.Debug().Str("backend", c.Metrics).Str("job", job).Msg("metrics enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn().Err(err).Msg("metrics flush failed")
		}
	}
}

func runID(c *config.Common) string {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	return c.RunID
}

func runStat(ctx context.Context, fs *flag.FlagSet, getenv func(string) string, args []string, log zerolog.Logger) error {
	cfg, err := config.LoadStatFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}
	id := runID(&cfg.Common)
	defer setupMetrics(cfg.Common, "combostat_stat", log)()

	sc, err := cfg.StatConfig()
	if err != nil {
		return err
	}
	sc.Logger = log
	sc.RunID = id
	sum, err := stat.Run(ctx, sc)
	if err != nil {
		return err
	}
	log.Info().
		Str("run_id", sum.RunID).
		Str("output", sum.Output).
		Str("combinations", humanize.Comma(int64(sum.Combinations))).
		Str("xxh3", fmt.Sprintf("%016x", sum.Digest)).
		Dur("elapsed", sum.Elapsed).
		Msg("stat done")
	return nil
}

func runPlan(ctx context.Context, fs *flag.FlagSet, getenv func(string) string, args []string, log zerolog.Logger, stdout, stderr io.Writer) error {
	cfg, err := config.LoadPlanFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}
	runID(&cfg.Common)
	defer setupMetrics(cfg.Common, "combostat_plan", log)()

	topts, err := cfg.TableInput.Options()
	if err != nil {
		return err
	}
	mode, err := partition.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	samples, err := table.ReadHeaderFile(ctx, cfg.Input, topts)
	if err != nil {
		return err
	}
	rows, err := table.CountRowsURI(ctx, cfg.Input, topts)
	if err != nil {
		return err
	}
	log.Debug().Str("input", cfg.Input).Int("samples", len(samples)).Int("rows", rows).Msg("table scanned")

	p, err := batch.NewPlan(cfg.Input, len(samples), rows, cfg.Threshold, cfg.MaxChunks, mode)
	if err != nil {
		return err
	}
	bopts, err := cfg.BatchOptions()
	if err != nil {
		return err
	}
	bopts.Logger = log
	res, err := batch.Generate(p, bopts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\n%s\n", p.Summary(), res.JobConf)

	if cfg.Job == "" {
		return nil
	}
	t0 := time.Now()
	err = batch.RunMakejob(ctx, res.JobConf, cfg.Job, cfg.NoCheck, stdout, stderr)
	metrics.RecordStep(cfg.RunID, "makejob", err, time.Since(t0))
	return err
}

func runMerge(ctx context.Context, fs *flag.FlagSet, getenv func(string) string, args []string, log zerolog.Logger) error {
	cfg, err := config.LoadMergeFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}
	id := runID(&cfg.Common)
	defer setupMetrics(cfg.Common, "combostat_merge", log)()

	opts, err := cfg.MergeOptions()
	if err != nil {
		return err
	}
	opts.RunID = id
	opts.Logger = log.With().Str("run_id", id).Logger()
	m, err := merge.Dir(ctx, cfg.ResultDir, cfg.MergeDir, opts)
	log.Info().Str("merge_dir", cfg.MergeDir).Int("groups", len(m.Groups)).Msg("merge done")
	return err
}

func runReport(ctx context.Context, fs *flag.FlagSet, getenv func(string) string, args []string, log zerolog.Logger, stdout, stderr io.Writer) error {
	cfg, err := config.LoadReportFromArgs(fs, getenv, args)
	if err != nil {
		return err
	}
	id := runID(&cfg.Common)
	defer setupMetrics(cfg.Common, "combostat_report", log)()

	ropts, err := cfg.ReportOptions()
	if err != nil {
		return err
	}
	popts, outFile, err := cfg.PlotOptions()
	if err != nil {
		return err
	}
	ropts.Logger = log

	t0 := time.Now()
	r, err := report.Build(ctx, cfg.MergeDir, ropts)
	metrics.RecordStep(id, "report", err, time.Since(t0))
	if err != nil {
		return err
	}
	if err := r.WriteFile(outFile); err != nil {
		return err
	}
	log.Info().Str("output", outFile).Int("rows", len(r.Rows)).Msg("report written")

	if sc := cfg.StorageConfig(); sc != nil {
		n, err := report.Store(ctx, *sc, r)
		if err != nil {
			return err
		}
		log.Info().Str("kind", sc.Kind).Str("table", sc.Table).Int64("rows", n).Msg("report stored")
	}

	if cfg.Write == "" {
		return nil
	}
	if err := plot.WriteScript(cfg.Write, r.Type, popts); err != nil {
		return err
	}
	log.Info().Str("script", cfg.Write).Msg("plot script written")
	if cfg.NoRun {
		return nil
	}
	t0 = time.Now()
	err = plot.RunRscript(ctx, cfg.Rscript, cfg.Write, stdout, stderr)
	metrics.RecordStep(id, "plot", err, time.Since(t0))
	return err
}

func runValidate(fs *flag.FlagSet, getenv func(string) string, args []string, stdout io.Writer) error {
	var path, command string
	fs.StringVar(&path, "config", "", "JSON config file")
	fs.StringVar(&command, "command", "stat", "Command the file configures: stat|plan|merge|report")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return apperr.InvalidArgf("%v", err)
	}
	if path == "" && fs.NArg() == 1 {
		path = fs.Arg(0)
	}
	if path == "" {
		return apperr.InvalidArgf("validate needs -config FILE")
	}
	issues, err := config.ValidateFile(command, path, getenv)
	if err != nil {
		return err
	}
	bad := 0
	for _, iss := range issues {
		fmt.Fprintf(stdout, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			bad++
		}
	}
	if bad > 0 {
		return apperr.InvalidArgf("%s: %d error(s)", path, bad)
	}
	fmt.Fprintf(stdout, "%s: ok\n", path)
	return nil
}
