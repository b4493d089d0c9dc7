package pgsink

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/errs"
	"tableread/internal/spec"
)

type fakeCopier struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
	execs   []string
	err     error
}

func (f *fakeCopier) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.table, f.columns = table, columns
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.rows = append(f.rows, vals)
	}
	return int64(len(f.rows)), src.Err()
}

func (f *fakeCopier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.CommandTag{}, f.err
}

func TestParseTable(t *testing.T) {
	t.Parallel()

	id, err := ParseTable("public.people")
	require.NoError(t, err)
	assert.Equal(t, pgx.Identifier{"public", "people"}, id)

	id, err = ParseTable("people")
	require.NoError(t, err)
	assert.Equal(t, pgx.Identifier{"people"}, id)

	for _, bad := range []string{"", " . ", "a.b.c"} {
		_, err := ParseTable(bad)
		assert.ErrorIs(t, err, errs.ErrConfiguration, bad)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	got := CreateTableSQL(pgx.Identifier{"public", "people"}, []string{"id", `full "name"`})
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"public\".\"people\" (\n  \"id\" text,\n  \"full \"\"name\"\"\" text\n)", got)
}

func TestSink_WriteAndCreate(t *testing.T) {
	t.Parallel()

	fc := &fakeCopier{}
	s := &Sink{db: fc, table: pgx.Identifier{"people"}}
	ctx := context.Background()

	ts := spec.TableSpec[string]{Columns: []spec.Column[string]{{Name: "id"}, {Name: "name"}}}
	require.NoError(t, s.CreateTable(ctx, ts))
	require.Len(t, fc.execs, 1)
	assert.Contains(t, fc.execs[0], `CREATE TABLE IF NOT EXISTS "people"`)

	n, err := s.Write(ctx, []string{"id", "name"}, [][]any{{"1", "ann"}, {"2", nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, pgx.Identifier{"people"}, fc.table)
	assert.Equal(t, []any{"2", nil}, fc.rows[1])

	n, err = s.Write(ctx, []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, s.CreateTable(ctx, spec.TableSpec[string]{}), errs.ErrConfiguration)
	assert.NoError(t, s.Close())
}

func TestSink_WriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("conn reset")
	s := &Sink{db: &fakeCopier{err: boom}, table: pgx.Identifier{"people"}}
	n, err := s.Write(context.Background(), []string{"id"}, [][]any{{"1"}})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `pgsink: copy into "people"`)
}

func TestNew_BadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{DSN: "postgres://localhost/db", Table: ""})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = New(context.Background(), Config{DSN: "postgres://localhost:notaport/db", Table: "people"})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
