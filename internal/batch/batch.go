// Package batch writes the shell scripts and job file that run a plan on a
// cluster: one stat script per (share type, k, chunk), a merge script that
// depends on all of them, and a plot script that depends on the merge.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"combostat/internal/datasource"
	"combostat/internal/merge"
	"combostat/internal/partition"
	"combostat/internal/plot"
	"combostat/internal/presence"

	"github.com/rs/zerolog"
)

// Options control script generation.
type Options struct {
	// OutputDir receives shell/, result/, makejob.conf and plan.json.
	OutputDir string
	MergeDir  string
	// ReportFile is the processed TSV; empty selects
	// processed_stats.{plot type}.tsv in the working directory.
	ReportFile  string
	Separator   rune
	HeaderRow   int
	StartColumn int
	Backend     presence.Backend
	PlotType    plot.Type
	// Mem is the memory request written next to every script.
	Mem string
	// Binary is the command the scripts invoke.
	Binary string
	Logger zerolog.Logger
}

// Job is one line of the job file.
type Job struct {
	Script string
	Mem    string
	Deps   []string
}

func (j Job) String() string {
	s := j.Script + " " + j.Mem
	if len(j.Deps) > 0 {
		s += " " + strings.Join(j.Deps, ",")
	}
	return s
}

// Result lists what Generate wrote.
type Result struct {
	StatScripts []string
	MergeScript string
	PlotScript  string
	JobConf     string
	PlanFile    string
	Jobs        []Job
}

// JobConfFile is the job file name inside the output directory.
const JobConfFile = "makejob.conf"

// Generate writes every script for p. Paths inside scripts are absolute.
func Generate(p *Plan, opts Options) (*Result, error) {
	if opts.Mem == "" {
		opts.Mem = "1G"
	}
	if opts.Binary == "" {
		opts.Binary = "combostat"
	}
	if opts.PlotType == "" {
		opts.PlotType = plot.Point
	}
	if opts.Separator == 0 {
		opts.Separator = '\t'
	}
	if opts.ReportFile == "" {
		opts.ReportFile = plot.DefaultInfile(opts.PlotType)
	}
	if opts.MergeDir == "" {
		opts.MergeDir = "merge"
	}

	outDir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	mergeDir, err := filepath.Abs(opts.MergeDir)
	if err != nil {
		return nil, err
	}
	reportFile, err := filepath.Abs(opts.ReportFile)
	if err != nil {
		return nil, err
	}
	input := p.Input
	if !datasource.IsRemote(input) {
		if input, err = filepath.Abs(input); err != nil {
			return nil, err
		}
	}
	shellDir := filepath.Join(outDir, "shell")
	resultDir := filepath.Join(outDir, "result")
	log := opts.Logger

	res := &Result{}
	for _, spec := range p.Specs {
		for _, t := range p.Types {
			group := partition.GroupKey(t, spec.K)
			script := filepath.Join(shellDir, group, fmt.Sprintf("stat.%s_%d.sh", group, spec.Index))
			args := []string{
				"-i", shellQuote(input),
				"-o", shellQuote(partition.ResultPath(resultDir, t, spec.K, spec.Index)),
				"-header", strconv.Itoa(opts.HeaderRow),
				"-start-col", strconv.Itoa(opts.StartColumn),
				"-sep", sepArg(opts.Separator),
				"-n", strconv.Itoa(spec.K),
				"-t", string(t),
			}
			if spec.Mode == partition.ModeCombinations {
				args = append(args,
					"-range-start", strconv.FormatUint(spec.Start, 10),
					"-range-end", strconv.FormatUint(spec.End, 10))
			} else {
				args = append(args,
					"-chunksize", strconv.Itoa(spec.RowChunkSize),
					"-chunk", strconv.Itoa(spec.Index))
			}
			if opts.Backend != "" {
				args = append(args, "-backend", string(opts.Backend))
			}
			if err := writeScript(script, opts.Binary, "stat", args); err != nil {
				return nil, err
			}
			res.StatScripts = append(res.StatScripts, script)
			res.Jobs = append(res.Jobs, Job{Script: script, Mem: opts.Mem})
		}
	}
	log.Debug().Int("scripts", len(res.StatScripts)).Str("shell_dir", shellDir).Msg("stat scripts written")

	res.MergeScript = filepath.Join(shellDir, "merge.sh")
	if err := writeScript(res.MergeScript, opts.Binary, "merge", []string{
		"-o", shellQuote(mergeDir),
		"-mode", string(merge.ModeFor(p.Mode)),
		shellQuote(resultDir),
	}); err != nil {
		return nil, err
	}
	res.Jobs = append(res.Jobs, Job{Script: res.MergeScript, Mem: opts.Mem, Deps: res.StatScripts})

	res.PlotScript = filepath.Join(shellDir, "plot.sh")
	if err := writeScript(res.PlotScript, opts.Binary, "report", []string{
		"-plot-type", string(opts.PlotType),
		"-o", shellQuote(reportFile),
		"-write", shellQuote(filepath.Join(outDir, string(opts.PlotType)+"_plot.R")),
		"-option", shellQuote("output=" + filepath.Join(outDir, string(opts.PlotType)+"plot")),
		shellQuote(mergeDir),
	}); err != nil {
		return nil, err
	}
	res.Jobs = append(res.Jobs, Job{Script: res.PlotScript, Mem: opts.Mem, Deps: []string{res.MergeScript}})

	res.JobConf = filepath.Join(outDir, JobConfFile)
	if err := writeJobConf(res.JobConf, res.Jobs); err != nil {
		return nil, err
	}
	res.PlanFile = filepath.Join(outDir, PlanFile)
	if err := p.WriteFile(res.PlanFile); err != nil {
		return nil, err
	}
	log.Info().Str("job_conf", res.JobConf).Int("jobs", len(res.Jobs)).Msg("batch generated")
	return res, nil
}

func writeScript(path, binary, cmd string, args []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\nset -e\n")
	sb.WriteString(binary)
	sb.WriteByte(' ')
	sb.WriteString(cmd)
	for i := 0; i < len(args); i++ {
		sb.WriteString(" \\\n    ")
		sb.WriteString(args[i])
		// keep "-flag value" pairs on one line
		if strings.HasPrefix(args[i], "-") && i+1 < len(args) {
			sb.WriteByte(' ')
			sb.WriteString(args[i+1])
			i++
		}
	}
	sb.WriteByte('\n')
	if err := os.WriteFile(path, []byte(sb.String()), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeJobConf(path string, jobs []Job) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, j := range jobs {
		w.WriteString(j.String())
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// sepArg renders a separator for the stat command line. Tab becomes the
// two-character escape the CLI decodes.
func sepArg(r rune) string {
	if r == '\t' {
		return `'\t'`
	}
	return shellQuote(string(r))
}

// shellQuote wraps s in single quotes for POSIX sh.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// MakejobCommand is the external job builder invocation for conf.
func MakejobCommand(conf, job string, noCheck bool) []string {
	args := []string{"makejob", conf, "-o", job}
	if noCheck {
		args = append(args, "-no")
	}
	return args
}

// RunMakejob converts the job file into a scheduler job with makejob.
func RunMakejob(ctx context.Context, conf, job string, noCheck bool, stdout, stderr io.Writer) error {
	argv := MakejobCommand(conf, job, noCheck)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return nil
}
