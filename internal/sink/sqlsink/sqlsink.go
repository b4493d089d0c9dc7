// Package sqlsink implements sink.Sink on database/sql for SQLite
// (modernc.org/sqlite), MySQL (go-sql-driver/mysql) and SQL Server
// (go-mssqldb). Rows are written with multi-row INSERT statements inside one
// transaction per Write.
package sqlsink

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tableread/internal/errs"
	"tableread/internal/sink"
	"tableread/internal/spec"

	// Drivers registered with database/sql.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// Config selects the backend and destination.
type Config struct {
	// Kind is sqlite, mysql or mssql.
	Kind string
	DSN  string
	// Table is the destination, optionally schema-qualified ("dbo.people").
	Table string
	// PingTimeout bounds the connectivity check in New. Defaults to 5s.
	PingTimeout time.Duration
}

// Kinds lists the supported backends.
func Kinds() []string { return []string{"sqlite", "mysql", "mssql"} }

// Sink is a database/sql backed sink.Sink.
type Sink struct {
	db      *sql.DB
	dialect dialect
	table   string
}

var (
	_ sink.Sink         = (*Sink)(nil)
	_ sink.TableCreator = (*Sink)(nil)
)

// New validates cfg, opens the pool and pings it.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	d, ok := lookupDialect(cfg.Kind)
	if !ok {
		return nil, errs.Configurationf("sqlsink: unknown kind %q", cfg.Kind)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errs.Configurationf("sqlsink: %s DSN must not be empty", d.name)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errs.Configurationf("sqlsink: %s table must not be empty", d.name)
	}
	if err := d.validateDSN(cfg.DSN); err != nil {
		return nil, errs.Configurationf("sqlsink: %v", err)
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, errs.Configurationf("sqlsink: %s open: %v", d.name, err)
	}
	if d.singleConn {
		db.SetMaxOpenConns(1)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errs.Resolution(err, "sqlsink: %s ping", d.name)
	}
	return &Sink{db: db, dialect: d, table: cfg.Table}, nil
}

// DB exposes the pool, e.g. for verification queries.
func (s *Sink) DB() *sql.DB { return s.db }

// CreateTable creates the destination table with one text column per spec
// column. An existing table is left alone.
func (s *Sink) CreateTable(ctx context.Context, ts spec.TableSpec[string]) error {
	if ts.Width() == 0 {
		return errs.Configurationf("sqlsink: cannot create %s without columns", s.table)
	}
	stmt := s.dialect.createTableSQL(s.table, ts.Names())
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "sqlsink: create table %s", s.table)
	}
	return nil
}

// Write inserts rows in one transaction, chunked so that every statement
// stays under the backend's bind parameter limit. On error nothing from this
// call is committed and 0 is returned.
func (s *Sink) Write(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, errs.Configurationf("sqlsink: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, errs.IO(nil, "sqlsink: row %d has %d values for %d columns", i, len(row), len(columns))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "sqlsink: begin tx")
	}
	rollback := func() { _ = tx.Rollback() }

	per := s.dialect.rowsPerStatement(len(columns))
	var full *sql.Stmt
	defer func() {
		if full != nil {
			_ = full.Close()
		}
	}()

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row...)
		}

		var res sql.Result
		if len(chunk) == per {
			// Full chunks share one prepared statement.
			if full == nil {
				if full, err = tx.PrepareContext(ctx, s.dialect.insertSQL(s.table, columns, per)); err != nil {
					rollback()
					return 0, errors.Wrap(err, "sqlsink: prepare insert")
				}
			}
			res, err = full.ExecContext(ctx, args...)
		} else {
			res, err = tx.ExecContext(ctx, s.dialect.insertSQL(s.table, columns, len(chunk)), args...)
		}
		if err != nil {
			rollback()
			return 0, errors.Wrapf(err, "sqlsink: insert rows %d-%d", start, end-1)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		} else {
			inserted += int64(len(chunk))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "sqlsink: commit")
	}
	return inserted, nil
}

// Close closes the pool.
func (s *Sink) Close() error {
	return errors.Wrap(s.db.Close(), "sqlsink: close")
}
