package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/errs"
	"tableread/internal/location"
	"tableread/internal/mount"
)

const nodeJSON = `{
  "job": "people",
  "locations": [
    { "category": "relative", "specifier": "data", "path": "people.csv" },
    { "category": "custom_url", "path": "https://example.com/people-2.csv" }
  ],
  "read": { "skip_rows": 1, "has_header": true, "limit_rows": true, "limit": 10 },
  "csv": { "comma": ";", "replace": [ { "from": "\\\"", "to": "\"" } ] },
  "workspace": { "workflow_dir": "/srv/flows/people" },
  "mounts": [ { "name": "share", "kind": "local", "root": "/mnt/share" } ],
  "hub": { "base_url": "https://hub.example.com/api", "timeout": "5s" },
  "sink": { "kind": "sqlite", "dsn": "file:people.db", "table": "people", "create_table": true }
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()

	n, err := Load(writeFile(t, "node.json", nodeJSON))
	require.NoError(t, err)

	assert.Equal(t, "people", n.Job)
	require.Len(t, n.Locations, 2)
	assert.Equal(t, Location{Category: "relative", Specifier: "data", Path: "people.csv"}, n.Locations[0])
	assert.Equal(t, int64(1), n.Read.SkipRows)
	assert.True(t, n.Read.HasHeader)
	assert.Equal(t, int64(10), n.Read.Limit)
	assert.Equal(t, DefaultColumnPrefix, n.Read.ColumnPrefix)
	assert.Equal(t, ";", n.CSV.String("comma", ","))
	require.Len(t, n.CSV.Maps("replace"), 1)
	assert.Equal(t, "/srv/flows/people", n.Workspace.WorkflowDir)
	require.Len(t, n.Mounts, 1)
	assert.Equal(t, mount.KindLocal, n.Mounts[0].Kind)
	assert.Equal(t, "5s", n.Hub.Timeout.String())
	assert.Equal(t, 500, n.Sink.BatchSize)
	assert.Equal(t, "none", n.Metrics.Backend)
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	body := `
job: yaml-job
locations:
  - category: local
    path: /tmp/a.csv
read:
  column_prefix: Col
`
	n, err := Load(writeFile(t, "node.yaml", body))
	require.NoError(t, err)
	assert.Equal(t, "yaml-job", n.Job)
	assert.Equal(t, "Col", n.Read.Prefix())
	assert.NotNil(t, n.CSV)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Load(writeFile(t, "bad.json", `{"job": `))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

// Environment overrides mutate process state, so these tests do not run in
// parallel.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TABLEREAD_HUB_TOKEN", "s3cret")
	t.Setenv("TABLEREAD_READ_LIMIT", "7")
	t.Setenv("TABLEREAD_JOB", "from-env")

	n, err := Load(writeFile(t, "node.json", nodeJSON))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", n.Hub.Token)
	assert.Equal(t, int64(7), n.Read.Limit)
	assert.Equal(t, "from-env", n.Job)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "TABLEREAD_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	p := writeFile(t, ".env", key+"=hello\n")
	require.NoError(t, LoadEnvFile(p))
	assert.Equal(t, "hello", os.Getenv(key))

	err := LoadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestLocation_Location(t *testing.T) {
	t.Parallel()

	loc, err := Location{Category: "Hub-Space", Specifier: " sp1 ", Path: "/a/b.csv"}.Location()
	require.NoError(t, err)
	assert.Equal(t, location.New(location.HubSpace, "sp1", "/a/b.csv"), loc)

	_, err = Location{Category: "ftp", Path: "x"}.Location()
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Location{Category: "mountpoint", Path: "x"}.Location()
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRead_Policy(t *testing.T) {
	t.Parallel()

	r := Read{SkipRows: 2, HasHeader: true, CheckColumns: true, LimitRows: true, Limit: 5}
	p := r.Policy(3)
	assert.Equal(t, int64(2), p.SkipRows)
	assert.True(t, p.SkipHeader)
	assert.True(t, p.CheckColumns)
	assert.Equal(t, 3, p.Width)
	assert.True(t, p.LimitRows)
	assert.Equal(t, int64(5), p.Limit)

	assert.Equal(t, DefaultColumnPrefix, Read{}.Prefix())
}

func TestLoad_SampleConfig(t *testing.T) {
	t.Parallel()

	n, err := Load(filepath.Join("..", "..", "configs", "tableread.json"))
	require.NoError(t, err)
	msgs := Validate(n)
	assert.False(t, msgs.HasError(), "%v", msgs)
	require.Len(t, n.Mounts, 1)
	assert.Equal(t, "archive.example.com:22", n.Mounts[0].SFTP.Addr)
	assert.Equal(t, "10s", n.Mounts[0].SFTP.Timeout.String())
}
