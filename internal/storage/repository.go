// Package storage is the backend-agnostic sink for report tables. Concrete
// backends register themselves by kind from their init functions; callers
// open one with New and never import a backend directly.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Repository is the write side of a database backend.
type Repository interface {
	// CopyFrom bulk-loads rows into the configured table. Every row has
	// len(columns) values.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// DDLBuilder renders the CREATE TABLE statement for a backend.
type DDLBuilder func(td TableDef) (string, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
	builders  = map[string]DDLBuilder{}
)

// Register makes a backend available under kind. Registering the same kind
// again replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// RegisterDDL installs the CREATE TABLE builder for kind.
func RegisterDDL(kind string, b DDLBuilder) {
	mu.Lock()
	defer mu.Unlock()
	builders[kind] = b
}

// New opens the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds in sorted order.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ColumnType is a portable column type.
type ColumnType int

const (
	Integer ColumnType = iota
	Real
	Text
)

// ColumnDef is one column of a TableDef.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// TableDef describes a destination table.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnNames lists the column names in order.
func (td TableDef) ColumnNames() []string {
	out := make([]string, len(td.Columns))
	for i, c := range td.Columns {
		out[i] = c.Name
	}
	return out
}

// EnsureTable creates td through repo using the DDL builder for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, td TableDef) error {
	mu.RLock()
	b, ok := builders[kind]
	mu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL builder for storage.kind=%s", kind)
	}
	stmt, err := b(td)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", td.Name, err)
	}
	return nil
}

// QuoteIdent quotes each dot-separated segment of name with double quotes.
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// BuildCreateTable renders CREATE TABLE IF NOT EXISTS with the given type
// names. Both SQL backends share this shape.
func BuildCreateTable(td TableDef, typeName func(ColumnType) string) (string, error) {
	if strings.TrimSpace(td.Name) == "" {
		return "", fmt.Errorf("ddl: table name must not be empty")
	}
	if len(td.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS ")
	sb.WriteString(QuoteIdent(td.Name))
	sb.WriteString(" (\n")
	for i, c := range td.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", td.Name)
		}
		if i > 0 {
			sb.WriteString(",\n")
		}
		sb.WriteString("  ")
		sb.WriteString(QuoteIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(typeName(c.Type))
		sb.WriteString(" NOT NULL")
	}
	sb.WriteString("\n);")
	return sb.String(), nil
}
