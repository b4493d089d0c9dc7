// Package sink contains the storage-agnostic contract for writing executed
// rows to a database, and a push-style batcher on top of it.
//
// Backends (sqlsink for SQLite, MySQL and SQL Server; pgsink for Postgres)
// implement Write with their most efficient primitive: multi-row INSERT or
// COPY.
package sink

import (
	"context"

	"tableread/internal/spec"
)

// DefaultBatchSize is the number of rows per Write when none is configured.
const DefaultBatchSize = 500

// Sink writes rows into one destination table.
type Sink interface {
	// Write inserts rows, each aligned to columns, and returns the number of
	// rows reported as inserted. It is atomic per call where the backend
	// allows it.
	Write(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Close() error
}

// TableCreator is implemented by sinks that can create their destination
// table from a spec.
type TableCreator interface {
	CreateTable(ctx context.Context, s spec.TableSpec[string]) error
}
