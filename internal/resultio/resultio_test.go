package resultio

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "result", "intersection2", "2_1.txt")
	w, err := Create(path, Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, v := range []uint64{2, 2, 2} {
		if err := w.Write(v); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("destination exists before Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "2\n2\n2\n" {
		t.Fatalf("content = %q", b)
	}
	if w.Lines() != 3 {
		t.Fatalf("Lines() = %d", w.Lines())
	}

	got, err := ReadFile(path)
	if err != nil || !slices.Equal(got, []uint64{2, 2, 2}) {
		t.Fatalf("ReadFile = %v, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

// TestDigestIsDeterministic: identical streams hash the same regardless of
// batch size, and differ from another stream.
func TestDigestIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vals := []uint64{0, 1, 17, 1 << 40, 3}
	write := func(name string, batch int, vals []uint64) (uint64, []byte) {
		t.Helper()
		p := filepath.Join(dir, name)
		w, err := Create(p, Options{BatchSize: batch})
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteAll(slices.Values(vals)); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		b, _ := os.ReadFile(p)
		return w.Digest(), b
	}

	d1, b1 := write("a.txt", 1, vals)
	d2, b2 := write("b.txt", 1000, vals)
	d3, _ := write("c.txt", 3, vals[:4])
	if !bytes.Equal(b1, b2) || d1 != d2 {
		t.Fatalf("same stream differs: %x vs %x", d1, d2)
	}
	if d1 == d3 {
		t.Fatalf("different streams share digest %x", d1)
	}
}

func TestAbortLeavesNothing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	w, err := Create(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Write(5)
	w.Abort()

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("Abort left files: %v", entries)
	}
	if err := w.Write(1); err == nil {
		t.Fatalf("Write after Abort succeeded")
	}
}

func TestProgressDoesNotAlterOutput(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	dir := t.TempDir()
	p := filepath.Join(dir, "p.txt")
	w, err := Create(p, Options{Progress: true, ProgressEvery: 2, Total: 5, Logger: zerolog.New(&logs)})
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 5; i++ {
		_ = w.Write(i)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "0\n1\n2\n3\n4\n" {
		t.Fatalf("content = %q", b)
	}
	if n := strings.Count(logs.String(), "writing results"); n != 2 {
		t.Fatalf("progress lines = %d, want 2\n%s", n, logs.String())
	}
	if !strings.Contains(logs.String(), "results written") {
		t.Fatalf("missing final progress line")
	}
}

func TestScannerErrors(t *testing.T) {
	t.Parallel()

	sc := NewScanner(strings.NewReader("1\n\n2\nx\n3\n"))
	var got []uint64
	for sc.Scan() {
		got = append(got, sc.Value())
	}
	if !slices.Equal(got, []uint64{1, 2}) {
		t.Fatalf("values = %v", got)
	}
	if sc.Err() == nil || !strings.Contains(sc.Err().Error(), "line 4") {
		t.Fatalf("Err() = %v", sc.Err())
	}
}
