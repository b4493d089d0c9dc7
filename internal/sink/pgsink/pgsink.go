// Package pgsink implements sink.Sink for Postgres with pgx v5 COPY.
package pgsink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"tableread/internal/errs"
	"tableread/internal/sink"
	"tableread/internal/spec"
)

// Config selects the database and destination.
type Config struct {
	// DSN is a pgx connection string or URL.
	DSN string
	// Table is the destination, optionally schema-qualified ("public.people").
	Table string
}

// copier is the part of *pgxpool.Pool used for writes.
type copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink writes rows with COPY FROM STDIN.
type Sink struct {
	db      copier
	closeFn func()
	table   pgx.Identifier
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.TableCreator = (*Sink)(nil)
)

// New parses cfg and connects a pool. The pool connects lazily, so an
// unreachable server surfaces on the first write.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	table, err := ParseTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Configurationf("pgsink: dsn: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, errs.Resolution(err, "pgsink: connect")
	}
	return &Sink{db: pool, closeFn: pool.Close, table: table}, nil
}

// ParseTable splits "schema.table" into a pgx identifier.
func ParseTable(name string) (pgx.Identifier, error) {
	var id pgx.Identifier
	for _, p := range strings.Split(name, ".") {
		if p = strings.TrimSpace(p); p != "" {
			id = append(id, p)
		}
	}
	if len(id) == 0 || len(id) > 2 {
		return nil, errs.Configurationf("pgsink: invalid table name %q", name)
	}
	return id, nil
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS with one text column per
// name.
func CreateTableSQL(table pgx.Identifier, names []string) string {
	defs := make([]string, len(names))
	for i, n := range names {
		defs[i] = pgx.Identifier{n}.Sanitize() + " text"
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", table.Sanitize(), strings.Join(defs, ",\n  "))
}

// CreateTable creates the destination table unless it exists.
func (s *Sink) CreateTable(ctx context.Context, ts spec.TableSpec[string]) error {
	if ts.Width() == 0 {
		return errs.Configurationf("pgsink: cannot create %s without columns", s.table.Sanitize())
	}
	if _, err := s.db.Exec(ctx, CreateTableSQL(s.table, ts.Names())); err != nil {
		return errors.Wrapf(err, "pgsink: create table %s", s.table.Sanitize())
	}
	return nil
}

// Write copies rows into the table. COPY is atomic: on error nothing is
// inserted.
func (s *Sink) Write(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errs.Configurationf("pgsink: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.db.CopyFrom(ctx, s.table, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, errors.Wrapf(err, "pgsink: copy into %s", s.table.Sanitize())
	}
	return n, nil
}

// Close releases the pool.
func (s *Sink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
