package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const sampleJob = `{
  "job": "storeuser-backfill",
  "storage": { "kind": "sqlite", "db": { "dsn": ":memory:", "auto_create_table": true } },
  "users": { "earliest_timestamp": "2021-03-04" },
  "upsert": { "policy": "ignore" },
  "runtime": { "mode": "aggregate", "batch_size": 50, "timeout": "2m" }
}`

func TestLoadBytes_Defaults(t *testing.T) {
	t.Parallel()

	j, err := LoadBytes([]byte(sampleJob))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if j.Job != "storeuser-backfill" || j.Storage.Kind != "sqlite" || !j.Storage.DB.AutoCreateTable {
		t.Fatalf("decoded job = %+v", j)
	}
	if j.Storage.DB.Table != "tbl_storeuser" || j.Users.Table != "tbl_users" || j.Stores.Table != "tbl_store" {
		t.Errorf("table defaults not applied: %+v", j)
	}
	if j.Stores.MinMid != 100 {
		t.Errorf("stores.min_mid = %d, want 100", j.Stores.MinMid)
	}
	if !reflect.DeepEqual(j.Upsert.Columns, []string{"mid", "user_mid", "store_mid"}) {
		t.Errorf("upsert.columns = %v", j.Upsert.Columns)
	}
	if j.Upsert.Policy != "ignore" || j.Upsert.TimestampColumn != "time_stamp" {
		t.Errorf("upsert = %+v", j.Upsert)
	}
	if j.Runtime.Mode != ModeAggregate || j.Runtime.BatchSize != 50 {
		t.Errorf("runtime = %+v", j.Runtime)
	}
	if j.Log.Level != "info" || j.Metrics.Backend != "none" {
		t.Errorf("log/metrics defaults = %+v %+v", j.Log, j.Metrics)
	}

	since, err := j.Since()
	if err != nil || !since.Equal(time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Since = %v, %v", since, err)
	}
	if d, err := j.RunTimeout(); err != nil || d != 2*time.Minute {
		t.Errorf("RunTimeout = %v, %v", d, err)
	}
}

func TestLoadBytes_EmptyUsesOriginalCutoff(t *testing.T) {
	t.Parallel()
	j, err := LoadBytes([]byte(`{}`))
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	since, err := j.Since()
	if err != nil || !since.Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Since = %v, %v", since, err)
	}
	if d, _ := j.RunTimeout(); d != 0 {
		t.Fatalf("RunTimeout = %v, want 0", d)
	}
}

// TestLoad_FileAndEnv reads a file and overrides keys from the environment.
// It cannot run in parallel because it sets environment variables.
func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(sampleJob), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("USERMOVER_STORAGE_DB_DSN", "file:override.db")
	t.Setenv("USERMOVER_RUNTIME_DRY_RUN", "true")
	t.Setenv("USERMOVER_STORES_MIN_MID", "250")

	j, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if j.Storage.DB.DSN != "file:override.db" {
		t.Errorf("dsn = %q, want env override", j.Storage.DB.DSN)
	}
	if !j.Runtime.DryRun {
		t.Errorf("dry_run not overridden")
	}
	if j.Stores.MinMid != 250 {
		t.Errorf("min_mid = %d, want 250", j.Stores.MinMid)
	}
	if j.Job != "storeuser-backfill" {
		t.Errorf("job = %q", j.Job)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("missing job file accepted")
	}
}

func TestLoadBytes_Malformed(t *testing.T) {
	t.Parallel()
	if _, err := LoadBytes([]byte(`{"job": `)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want time.Time
		err  bool
	}{
		{"2000-01-01", time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), false},
		{" 2020-05-06 07:08:09 ", time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC), false},
		{"2020-05-06T07:08:09+02:00", time.Date(2020, 5, 6, 5, 8, 9, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
		{"", time.Time{}, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTimestamp(tt.in)
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want err=%v", err, tt.err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	j, err := LoadBytes([]byte(sampleJob))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Check(j); err != nil {
		t.Fatalf("Check(valid) = %v", err)
	}

	j.Storage.DB.DSN = ""
	j.Upsert.Policy = "replace"
	_, err = Check(j)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("Check(invalid) = %v, want ErrInvalid", err)
	}
}
