package report

import (
	"context"
	"path/filepath"
	"testing"

	"combostat/internal/plot"
	"combostat/internal/storage"
	_ "combostat/internal/storage/sqlite"
)

func TestTableDef(t *testing.T) {
	t.Parallel()
	box := (&Report{Type: plot.Box}).TableDef("")
	if box.Name != DefaultTable || len(box.Columns) != 8 {
		t.Fatalf("box table = %+v", box)
	}
	if box.Columns[0].Type != storage.Integer || box.Columns[1].Type != storage.Text || box.Columns[2].Type != storage.Real {
		t.Fatalf("box column types = %+v", box.Columns)
	}
	point := (&Report{Type: plot.Point}).TableDef("pts")
	if point.Name != "pts" || point.Columns[2].Name != "value" || point.Columns[2].Type != storage.Integer {
		t.Fatalf("point table = %+v", point)
	}
}

func TestStore_SQLite(t *testing.T) {
	t.Parallel()
	r := &Report{Type: plot.Point, Rows: []Row{
		{ShareCount: 1, ShareType: "core", Value: 3},
		{ShareCount: 1, ShareType: "pan", Value: 5},
	}}
	cfg := storage.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "r.db")}
	n, err := Store(context.Background(), cfg, r)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d rows, want 2", n)
	}
	// appending to an existing table works
	if _, err := Store(context.Background(), cfg, r); err != nil {
		t.Fatalf("Store again: %v", err)
	}
}

func TestStore_UnknownKind(t *testing.T) {
	t.Parallel()
	if _, err := Store(context.Background(), storage.Config{Kind: "nosuch"}, &Report{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
