package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"combostat/internal/partition"
	"combostat/internal/plot"
	"combostat/internal/share"
)

func TestNewPlan_Rows(t *testing.T) {
	t.Parallel()
	// C(4,2)=6 -> 2 chunks at threshold 5; C(4,3)=4 and C(4,4)=1 -> 1 chunk.
	p, err := NewPlan("in.tsv", 4, 10, 5, 0, partition.ModeRows)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if len(p.Specs) != 4 {
		t.Fatalf("specs = %v", p.Specs)
	}
	if p.Specs[0].K != 2 || p.Specs[0].RowChunkSize != 5 || p.Specs[1].Index != 2 {
		t.Fatalf("k=2 specs = %+v %+v", p.Specs[0], p.Specs[1])
	}
	if p.Specs[2].K != 3 || p.Specs[2].RowChunkSize != 0 {
		t.Fatalf("k=3 spec = %+v", p.Specs[2])
	}
	if p.Jobs() != 8 {
		t.Fatalf("Jobs = %d, want 8", p.Jobs())
	}
	if !strings.Contains(p.Summary(), "8 stat jobs") {
		t.Fatalf("Summary = %q", p.Summary())
	}
}

func TestNewPlan_BadThreshold(t *testing.T) {
	t.Parallel()
	if _, err := NewPlan("in.tsv", 4, 10, 0, 0, partition.ModeRows); err == nil {
		t.Fatal("expected error for threshold 0")
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p, err := NewPlan(filepath.Join(dir, "in.tsv"), 3, 4, 2, 0, partition.ModeRows)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Generate(p, Options{
		OutputDir:   filepath.Join(dir, "out"),
		MergeDir:    filepath.Join(dir, "merge"),
		ReportFile:  filepath.Join(dir, "processed_stats.box.tsv"),
		StartColumn: 1,
		PlotType:    plot.Box,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// k=2: C(3,2)=3 -> 2 chunks; k=3: 1 chunk; two share types each.
	if len(res.StatScripts) != 6 {
		t.Fatalf("stat scripts = %v", res.StatScripts)
	}
	want := filepath.Join(dir, "out", "shell", "intersection2", "stat.intersection2_1.sh")
	if res.StatScripts[0] != want {
		t.Fatalf("first script = %s, want %s", res.StatScripts[0], want)
	}

	body, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	s := string(body)
	for _, frag := range []string{
		"combostat stat",
		"-sep '\\t'",
		"-n 2",
		"-t intersection",
		"-chunksize 2",
		"-chunk 1",
		"-o '" + filepath.Join(dir, "out", "result", "intersection2", "2_1.txt") + "'",
	} {
		if !strings.Contains(s, frag) {
			t.Errorf("stat script missing %q:\n%s", frag, s)
		}
	}

	conf, err := os.ReadFile(res.JobConf)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(conf)), "\n")
	if len(lines) != 8 {
		t.Fatalf("job conf has %d lines:\n%s", len(lines), conf)
	}
	if lines[0] != want+" 1G" {
		t.Fatalf("first job line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[6], res.MergeScript+" 1G "+res.StatScripts[0]+",") {
		t.Fatalf("merge job line = %q", lines[6])
	}
	if lines[7] != res.PlotScript+" 1G "+res.MergeScript {
		t.Fatalf("plot job line = %q", lines[7])
	}

	mergeBody, _ := os.ReadFile(res.MergeScript)
	if !strings.Contains(string(mergeBody), "-mode sum") {
		t.Fatalf("merge script:\n%s", mergeBody)
	}
	plotBody, _ := os.ReadFile(res.PlotScript)
	if !strings.Contains(string(plotBody), "-plot-type box") || !strings.Contains(string(plotBody), "box_plot.R") {
		t.Fatalf("plot script:\n%s", plotBody)
	}

	back, err := ReadPlan(res.PlanFile)
	if err != nil {
		t.Fatalf("ReadPlan: %v", err)
	}
	if len(back.Specs) != len(p.Specs) || back.Types[1] != share.Union {
		t.Fatalf("plan round trip = %+v", back)
	}
}

func TestGenerate_CombinationMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p, err := NewPlan("in.csv", 4, 3, 4, 0, partition.ModeCombinations)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Generate(p, Options{OutputDir: dir, MergeDir: filepath.Join(dir, "m"), Separator: ','})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	body, _ := os.ReadFile(res.StatScripts[0])
	s := string(body)
	if !strings.Contains(s, "-range-start 0") || !strings.Contains(s, "-range-end 3") || !strings.Contains(s, "-sep ','") {
		t.Fatalf("combination script:\n%s", s)
	}
	if strings.Contains(s, "-chunksize") {
		t.Fatalf("combination script has row window:\n%s", s)
	}
	mergeBody, _ := os.ReadFile(res.MergeScript)
	if !strings.Contains(string(mergeBody), "-mode concat") {
		t.Fatalf("merge script:\n%s", mergeBody)
	}
}

func TestGenerate_RemoteInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	const uri = "s3://bucket/pav.tsv"
	p, err := NewPlan(uri, 3, 4, 10, 0, partition.ModeRows)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Generate(p, Options{OutputDir: dir, MergeDir: filepath.Join(dir, "m"), StartColumn: 1})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, script := range res.StatScripts {
		body, err := os.ReadFile(script)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(body), "-i '"+uri+"'") {
			t.Fatalf("%s does not read %s:\n%s", script, uri, body)
		}
	}
}

func TestShellQuote(t *testing.T) {
	t.Parallel()
	if got := shellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("shellQuote = %s", got)
	}
}

func TestMakejobCommand(t *testing.T) {
	t.Parallel()
	got := strings.Join(MakejobCommand("makejob.conf", "main.job", true), " ")
	if got != "makejob makejob.conf -o main.job -no" {
		t.Fatalf("MakejobCommand = %q", got)
	}
	got = strings.Join(MakejobCommand("makejob.conf", "main.job", false), " ")
	if got != "makejob makejob.conf -o main.job" {
		t.Fatalf("MakejobCommand = %q", got)
	}
}
