package sqlsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/errs"
	"tableread/internal/spec"
)

func peopleSpec() spec.TableSpec[string] {
	return spec.TableSpec[string]{Columns: []spec.Column[string]{
		{Name: "id", Type: "string", HasType: true},
		{Name: "full name", Type: "string", HasType: true},
	}}
}

func openMemory(t *testing.T) *Sink {
	t.Helper()
	s, err := New(context.Background(), Config{Kind: "sqlite", DSN: ":memory:", Table: "people"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func count(t *testing.T, s *Sink) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&n))
	return n
}

func TestSQLite_CreateAndWrite(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, peopleSpec()))
	// Creating twice is a no-op.
	require.NoError(t, s.CreateTable(ctx, peopleSpec()))

	cols := []string{"id", "full name"}
	n, err := s.Write(ctx, cols, [][]any{{"1", "Ann Lee"}, {"2", nil}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, count(t, s))

	var name string
	require.NoError(t, s.DB().QueryRow(`SELECT "full name" FROM "people" WHERE "id" = '1'`).Scan(&name))
	assert.Equal(t, "Ann Lee", name)
}

func TestSQLite_WriteChunksOverParamLimit(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, peopleSpec()))

	// 999 params / 2 columns = 499 rows per statement: two full chunks and a
	// remainder.
	rows := make([][]any, 1200)
	for i := range rows {
		rows[i] = []any{i, "x"}
	}
	n, err := s.Write(ctx, []string{"id", "full name"}, rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), n)
	assert.Equal(t, 1200, count(t, s))
}

func TestSQLite_WriteIsAtomic(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTable(ctx, peopleSpec()))

	_, err := s.Write(ctx, []string{"id", "missing"}, [][]any{{"1", "x"}})
	require.Error(t, err)
	assert.Equal(t, 0, count(t, s))

	_, err = s.Write(ctx, []string{"id", "full name"}, [][]any{{"1"}})
	assert.ErrorIs(t, err, errs.ErrIO)

	n, err := s.Write(ctx, []string{"id"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_CreateTableNeedsColumns(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	err := s.CreateTable(context.Background(), spec.TableSpec[string]{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestNew_ConfigErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unknown kind", Config{Kind: "oracle", DSN: "x", Table: "t"}},
		{"empty dsn", Config{Kind: "sqlite", Table: "t"}},
		{"empty table", Config{Kind: "sqlite", DSN: ":memory:"}},
		{"bad mysql dsn", Config{Kind: "mysql", DSN: "user:pass@tcp(localhost:3306", Table: "t"}},
		{"bad mssql dsn", Config{Kind: "mssql", DSN: "sqlserver://host?connection+timeout=abc", Table: "t"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(ctx, tt.cfg)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestDialect_SQL(t *testing.T) {
	t.Parallel()

	my, _ := lookupDialect("mysql")
	assert.Equal(t, "INSERT INTO `db`.`people` (`id`, `na``me`) VALUES (?, ?), (?, ?)",
		my.insertSQL("db.people", []string{"id", "na`me"}, 2))

	ms, _ := lookupDialect("mssql")
	assert.Equal(t, "INSERT INTO [dbo].[people] ([id], [name]) VALUES (@p1, @p2), (@p3, @p4)",
		ms.insertSQL("dbo.people", []string{"id", "name"}, 2))
	assert.Equal(t, "IF OBJECT_ID(N'[dbo].[people]', N'U') IS NULL\nCREATE TABLE [dbo].[people] (\n  [id] NVARCHAR(MAX)\n)",
		ms.createTableSQL("dbo.people", []string{"id"}))
	assert.Equal(t, 1000, ms.rowsPerStatement(2))

	lite, _ := lookupDialect("sqlite")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"people\" (\n  \"a\"\"b\" TEXT\n)",
		lite.createTableSQL("people", []string{`a"b`}))
	assert.Equal(t, 1, lite.rowsPerStatement(5000))
}
