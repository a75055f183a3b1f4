package report

import (
	"context"
	"fmt"

	"combostat/internal/storage"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "combostat_stats"

// TableDef describes the database table for the report's type.
func (r *Report) TableDef(name string) storage.TableDef {
	if name == "" {
		name = DefaultTable
	}
	td := storage.TableDef{Name: name}
	for _, c := range r.Columns() {
		typ := storage.Real
		switch c {
		case "share_count", "value":
			typ = storage.Integer
		case "share_type":
			typ = storage.Text
		}
		td.Columns = append(td.Columns, storage.ColumnDef{Name: c, Type: typ})
	}
	return td
}

// Store creates the table if needed and bulk-loads the rows. The backend for
// cfg.Kind must be registered.
func Store(ctx context.Context, cfg storage.Config, r *Report) (int64, error) {
	td := r.TableDef(cfg.Table)
	cfg.Table = td.Name
	cfg.Columns = td.ColumnNames()

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	if err := storage.EnsureTable(ctx, cfg.Kind, repo, td); err != nil {
		return 0, err
	}
	n, err := repo.CopyFrom(ctx, cfg.Columns, r.Records())
	if err != nil {
		return n, fmt.Errorf("store %s report: %w", r.Type, err)
	}
	return n, nil
}
