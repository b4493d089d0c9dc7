package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/errs"
)

type fixture struct {
	dir    string
	config string
	dbPath string
}

// newFixture writes two CSV files with the same header and a node
// configuration reading both, with an SQLite sink in the same directory.
func newFixture(t *testing.T, mutate func(map[string]any)) fixture {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}
	a := write("a.csv", "id,name\n1,ann\n2,bob\n")
	b := write("b.csv", "id,name\n3,cid\n")
	dbPath := filepath.Join(dir, "out.db")

	node := map[string]any{
		"job": "people",
		"locations": []map[string]any{
			{"category": "local", "path": a},
			{"category": "local", "path": b},
		},
		"read": map[string]any{"has_header": true, "check_columns": true},
		"sink": map[string]any{"kind": "sqlite", "dsn": dbPath, "table": "people", "batch_size": 2, "create_table": true},
	}
	if mutate != nil {
		mutate(node)
	}
	body, err := json.Marshal(node)
	require.NoError(t, err)
	return fixture{dir: dir, config: write("node.json", string(body)), dbPath: dbPath}
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestValidate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	out, _, err := run(t, "validate", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "0 error(s)")

	bad := newFixture(t, func(n map[string]any) { delete(n, "locations") })
	out, _, err = run(t, "validate", "--config", bad.config)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
	assert.Contains(t, out, "1 error(s)")
}

func TestRead_CSV(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	out, _, err := run(t, "read", "--config", f.config)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ann\n2,bob\n3,cid\n", out)
}

func TestRead_LimitPerLocation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(n map[string]any) {
		n["read"] = map[string]any{"has_header": true, "limit_rows": true, "limit": 1}
	})
	out, _, err := run(t, "read", "--config", f.config)
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,ann\n3,cid\n", out)
}

func TestRead_Table(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	out, _, err := run(t, "read", "--config", f.config, "--format", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "cid")

	_, _, err = run(t, "read", "--config", f.config, "--format", "xml")
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestSpec(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	out, _, err := run(t, "spec", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "string")
	assert.Contains(t, out, "fingerprint:")
}

func TestCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	out, _, err := run(t, "check", "--config", f.config)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	missing := newFixture(t, func(n map[string]any) {
		n["locations"] = []map[string]any{{"category": "local", "path": "/definitely/not/here.csv"}}
	})
	_, _, err = run(t, "check", "--config", missing.config)
	assert.ErrorIs(t, err, errs.ErrResolution)
}

func TestLoad_SQLite(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	_, _, err := run(t, "load", "--config", f.config)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", f.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&count))
	assert.Equal(t, 3, count)

	var name string
	require.NoError(t, db.QueryRow(`SELECT "name" FROM "people" WHERE "id" = '3'`).Scan(&name))
	assert.Equal(t, "cid", name)
}

func TestLoad_RequiresSink(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(n map[string]any) { delete(n, "sink") })
	_, _, err := run(t, "load", "--config", f.config)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRoot_BadLogLevel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	var stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&stderr)
	root.SetArgs([]string{"validate", "--config", f.config, "--log-level", "loud"})
	assert.ErrorIs(t, root.Execute(), errs.ErrConfiguration)
}

func TestFirstNonEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "b", firstNonEmpty("", " ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
}
