// Package config defines the job file of the mover and loads it.
//
// A job file is JSON; every key can be overridden from the environment with
// the USERMOVER_ prefix and dots replaced by underscores, e.g.
// USERMOVER_STORAGE_DB_DSN or USERMOVER_RUNTIME_DRY_RUN.
//
// Example:
//
//	{
//	  "job": "storeuser-backfill",
//	  "storage": { "kind": "mysql", "db": { "dsn": "user:pw@tcp(db:3306)/legacy", "table": "tbl_storeuser" } },
//	  "users":   { "table": "tbl_users", "earliest_timestamp": "2000-01-01" },
//	  "stores":  { "table": "tbl_store", "min_mid": 100 },
//	  "upsert":  { "policy": "update", "timestamp_column": "time_stamp" },
//	  "runtime": { "mode": "per_user", "timeout": "10m" }
//	}
package config

import (
	"fmt"
	"strings"
	"time"
)

// Job is the top-level object of a job file.
type Job struct {
	// Job names the run in logs and metrics.
	Job string `json:"job" mapstructure:"job"`

	Storage Storage       `json:"storage" mapstructure:"storage"`
	Users   UsersSource   `json:"users" mapstructure:"users"`
	Stores  StoresSource  `json:"stores" mapstructure:"stores"`
	Upsert  Upsert        `json:"upsert" mapstructure:"upsert"`
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`
	Log     LogConfig     `json:"log" mapstructure:"log"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
}

// Storage selects the backend holding both the legacy tables and the join
// table.
type Storage struct {
	// Kind selects the backend: postgres, mysql, mariadb, mssql, sqlite, duckdb.
	Kind string   `json:"kind" mapstructure:"kind"`
	DB   DBConfig `json:"db" mapstructure:"db"`
}

// DBConfig configures the connection and the written table.
type DBConfig struct {
	DSN string `json:"dsn" mapstructure:"dsn"`

	// Table is the join table written by the mover.
	Table string `json:"table" mapstructure:"table" default:"tbl_storeuser"`

	// AutoCreateTable creates Table before the run when it is missing.
	AutoCreateTable bool `json:"auto_create_table" mapstructure:"auto_create_table"`
}

// UsersSource configures the user row source.
type UsersSource struct {
	Table string `json:"table" mapstructure:"table" default:"tbl_users"`

	// EarliestTimestamp keeps rows with time_stamp at or after it. Accepts
	// RFC 3339 or a plain date.
	EarliestTimestamp string `json:"earliest_timestamp" mapstructure:"earliest_timestamp" default:"2000-01-01"`
}

// StoresSource configures the store catalog source.
type StoresSource struct {
	Table string `json:"table" mapstructure:"table" default:"tbl_store"`

	// MinMid keeps stores with mid > MinMid; lower mids are reserved.
	MinMid int64 `json:"min_mid" mapstructure:"min_mid" default:"100"`
}

// Upsert configures the statements written to the join table.
type Upsert struct {
	// Policy is none, update or ignore.
	Policy string `json:"policy" mapstructure:"policy" default:"update"`

	// Columns is the projection: surrogate id, user mid, store mid.
	Columns []string `json:"columns" mapstructure:"columns" default:"[\"mid\",\"user_mid\",\"store_mid\"]"`

	// KeyColumns is the conflict target; defaults to the first column.
	KeyColumns []string `json:"key_columns" mapstructure:"key_columns"`

	// TimestampColumn is maintained by the database and never updated.
	TimestampColumn string `json:"timestamp_column" mapstructure:"timestamp_column" default:"time_stamp"`
}

// Run modes.
const (
	ModePerUser   = "per_user"
	ModeAggregate = "aggregate"
)

// RuntimeConfig controls how statements are produced and sent.
type RuntimeConfig struct {
	// Mode is per_user (one statement per user) or aggregate (rows of all
	// users batched through the loader).
	Mode string `json:"mode" mapstructure:"mode" default:"per_user"`

	// BatchSize is the aggregate-mode batch size.
	BatchSize int `json:"batch_size" mapstructure:"batch_size" default:"1000"`

	// IDSeed, when > 0, is the first surrogate id of the run. Otherwise the
	// sequence starts after the largest id already in the table.
	IDSeed int64 `json:"id_seed" mapstructure:"id_seed"`

	// Timeout bounds the whole run, e.g. "10m". Empty means no limit.
	Timeout string `json:"timeout" mapstructure:"timeout"`

	// DryRun renders and logs statements without executing them.
	DryRun bool `json:"dry_run" mapstructure:"dry_run"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level" default:"info"`
	Format string `json:"format" mapstructure:"format" default:"console"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	// Backend is none, pushgateway or datadog.
	Backend        string `json:"backend" mapstructure:"backend" default:"none"`
	PushgatewayURL string `json:"pushgateway_url" mapstructure:"pushgateway_url"`
	DatadogAddr    string `json:"datadog_addr" mapstructure:"datadog_addr" default:"127.0.0.1:8125"`
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an earliest_timestamp value as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339 or YYYY-MM-DD", s)
}

// Since returns the parsed users.earliest_timestamp.
func (j Job) Since() (time.Time, error) { return ParseTimestamp(j.Users.EarliestTimestamp) }

// RunTimeout returns the parsed runtime.timeout, 0 when unset.
func (j Job) RunTimeout() (time.Duration, error) {
	if strings.TrimSpace(j.Runtime.Timeout) == "" {
		return 0, nil
	}
	return time.ParseDuration(j.Runtime.Timeout)
}
