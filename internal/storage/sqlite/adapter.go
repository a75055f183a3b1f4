package sqlite

import (
	"context"

	"combostat/internal/storage"
)

// Kind is the storage kind this package registers.
const Kind = "sqlite"

// newRepository is a test hook.
var newRepository = NewRepository

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

var _ storage.Repository = (*wrappedRepo)(nil)

func columnType(c storage.ColumnType) string {
	switch c {
	case storage.Integer:
		return "INTEGER"
	case storage.Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

func init() {
	storage.Register(Kind, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL(Kind, func(td storage.TableDef) (string, error) {
		return storage.BuildCreateTable(td, columnType)
	})
}
