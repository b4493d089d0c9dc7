// Package config defines the configuration model of a table-reading node and
// loads it from disk.
//
// A node file names the locations to read, the read policy, the CSV tokenizer
// options and the environment the locations resolve against (workspace roots,
// mountpoints, hub and URL backends). Example (trimmed):
//
//	{
//	  "job": "people_nightly",
//	  "locations": [
//	    { "category": "relative", "specifier": "data", "path": "people.csv" },
//	    { "category": "custom_url", "path": "https://example.com/people-2.csv" }
//	  ],
//	  "read": { "skip_rows": 1, "has_header": true, "limit_rows": true, "limit": 1000 },
//	  "csv":  { "comma": ";" },
//	  "workspace": { "workflow_dir": "/srv/flows/people" },
//	  "sink": { "kind": "sqlite", "dsn": "file:people.db", "table": "people", "create_table": true }
//	}
//
// Every scalar key may be overridden from the environment with the TABLEREAD_
// prefix and dots replaced by underscores, e.g. TABLEREAD_HUB_TOKEN or
// TABLEREAD_READ_LIMIT.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"tableread/internal/connection/hubfs"
	"tableread/internal/errs"
	"tableread/internal/location"
	"tableread/internal/mount"
	"tableread/internal/provider"
	"tableread/internal/read"
	"tableread/internal/resolver"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "TABLEREAD"

// DefaultColumnPrefix names columns when there is no header row.
const DefaultColumnPrefix = "Column"

// Node is the top-level object of a node configuration file.
type Node struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" mapstructure:"job"`

	Locations []Location `json:"locations" mapstructure:"locations"`
	Read      Read       `json:"read" mapstructure:"read"`

	// CSV is the tokenizer options bag (see parser/csv.FromOptions).
	CSV Options `json:"csv" mapstructure:"csv"`

	Workspace resolver.Workspace  `json:"workspace" mapstructure:"workspace"`
	Mounts    []mount.Mountpoint  `json:"mounts" mapstructure:"mounts"`
	Hub       hubfs.Config        `json:"hub" mapstructure:"hub"`
	URL       provider.URLOptions `json:"url" mapstructure:"url"`

	Sink    Sink    `json:"sink" mapstructure:"sink"`
	Metrics Metrics `json:"metrics" mapstructure:"metrics"`
}

// Location is the configured form of a location.Location.
type Location struct {
	// Category is one of local, relative, mountpoint, hub_space, custom_url,
	// connected.
	Category  string `json:"category" mapstructure:"category"`
	Specifier string `json:"specifier" mapstructure:"specifier"`
	Path      string `json:"path" mapstructure:"path"`
}

// Location parses the category and validates the descriptor.
func (l Location) Location() (location.Location, error) {
	c, err := location.ParseCategory(l.Category)
	if err != nil {
		return location.Location{}, err
	}
	loc := location.New(c, strings.TrimSpace(l.Specifier), strings.TrimSpace(l.Path))
	if err := loc.Validate(); err != nil {
		return location.Location{}, err
	}
	return loc, nil
}

// Read holds the node's read settings.
type Read struct {
	// SkipRows drops leading rows before the header.
	SkipRows int64 `json:"skip_rows" mapstructure:"skip_rows"`
	// HasHeader takes column names from the first row left after SkipRows
	// and drops that row from the data.
	HasHeader bool `json:"has_header" mapstructure:"has_header"`
	// ColumnPrefix names columns prefix+hex index when there is no header,
	// and for empty header cells.
	ColumnPrefix string `json:"column_prefix" mapstructure:"column_prefix"`
	// CheckColumns fails rows whose width differs from the configured table spec.
	CheckColumns bool `json:"check_columns" mapstructure:"check_columns"`
	// LimitRows caps the rows read from each location at Limit.
	LimitRows bool  `json:"limit_rows" mapstructure:"limit_rows"`
	Limit     int64 `json:"limit" mapstructure:"limit"`
	// FailOnEmpty turns an empty first location into an error at configure
	// time instead of a warning.
	FailOnEmpty bool `json:"fail_on_empty" mapstructure:"fail_on_empty"`
}

// Prefix returns ColumnPrefix or the default.
func (r Read) Prefix() string {
	if r.ColumnPrefix == "" {
		return DefaultColumnPrefix
	}
	return r.ColumnPrefix
}

// Policy returns the read policy for one location. width is the expected
// column count, 0 for "width of the first data row".
func (r Read) Policy(width int) read.Policy {
	return read.Policy{
		SkipRows:     r.SkipRows,
		SkipHeader:   r.HasHeader,
		CheckColumns: r.CheckColumns,
		Width:        width,
		LimitRows:    r.LimitRows,
		Limit:        r.Limit,
	}
}

// Sink selects where executed rows are written by "tableread load".
type Sink struct {
	// Kind is one of sqlite, mysql, mssql, postgres.
	Kind string `json:"kind" mapstructure:"kind"`
	DSN  string `json:"dsn" mapstructure:"dsn"`
	// Table is the destination table, optionally schema-qualified.
	Table string `json:"table" mapstructure:"table"`
	// BatchSize is the number of rows per insert batch. Defaults to 500.
	BatchSize int `json:"batch_size" mapstructure:"batch_size"`
	// CreateTable creates the table from the table spec when it does not exist.
	CreateTable bool `json:"create_table" mapstructure:"create_table"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is one of none, pushgateway, datadog.
	Backend        string `json:"backend" mapstructure:"backend"`
	PushgatewayURL string `json:"pushgateway_url" mapstructure:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" mapstructure:"datadog_addr"`
}

// Known kinds.
var (
	SinkKinds       = []string{"sqlite", "mysql", "mssql", "postgres"}
	MetricsBackends = []string{"none", "pushgateway", "datadog"}
)

// envKeys are registered so that AutomaticEnv can override them even when the
// file does not mention them.
var envKeys = map[string]any{
	"job":                       "",
	"read.skip_rows":            0,
	"read.has_header":           false,
	"read.column_prefix":        DefaultColumnPrefix,
	"read.check_columns":        false,
	"read.limit_rows":           false,
	"read.limit":                0,
	"read.fail_on_empty":        false,
	"workspace.workflow_dir":    "",
	"workspace.data_dir":        "",
	"workspace.mountpoint":      "",
	"workspace.space":           "",
	"hub.base_url":              "",
	"hub.token":                 "",
	"url.s3.region":             "",
	"url.s3.endpoint":           "",
	"url.s3.credentials_key":    "",
	"url.s3.credentials_secret": "",
	"sink.kind":                 "",
	"sink.dsn":                  "",
	"sink.table":                "",
	"sink.batch_size":           500,
	"sink.create_table":         false,
	"metrics.backend":           "none",
	"metrics.pushgateway_url":   "",
	"metrics.datadog_addr":      "",
}

// Load reads the node configuration at path. The format follows the file
// extension (json, yaml, toml). Environment overrides are applied.
func Load(path string) (Node, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, def := range envKeys {
		v.SetDefault(k, def)
	}

	if err := v.ReadInConfig(); err != nil {
		return Node{}, errs.Configurationf("config: read %s: %v", path, err)
	}
	var n Node
	if err := v.Unmarshal(&n); err != nil {
		return Node{}, errs.Configurationf("config: decode %s: %v", path, err)
	}
	if n.CSV == nil {
		n.CSV = Options{}
	}
	return n, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are kept.
func LoadEnvFile(path string) error {
	if err := gotenv.Load(path); err != nil {
		return errs.Configurationf("config: load env file %s: %v", path, err)
	}
	return nil
}
