package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "USERMOVER"

// envKeys lists every key that can be overridden from the environment. Viper
// only consults the environment for keys it knows about.
var envKeys = []string{
	"job",
	"storage.kind", "storage.db.dsn", "storage.db.table", "storage.db.auto_create_table",
	"users.table", "users.earliest_timestamp",
	"stores.table", "stores.min_mid",
	"upsert.policy", "upsert.columns", "upsert.key_columns", "upsert.timestamp_column",
	"runtime.mode", "runtime.batch_size", "runtime.id_seed", "runtime.timeout", "runtime.dry_run",
	"log.level", "log.format",
	"metrics.backend", "metrics.pushgateway_url", "metrics.datadog_addr",
}

// NewViper returns a viper instance reading JSON with USERMOVER_* overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads the job file at path (optional when every key comes from the
// environment), applies environment overrides and fills defaults.
func Load(path string) (Job, error) {
	v := NewViper()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Job{}, fmt.Errorf("read job file %s: %w", path, err)
		}
	}
	return decode(v)
}

// LoadBytes is Load for an in-memory job file.
func LoadBytes(b []byte) (Job, error) {
	v := NewViper()
	if err := v.ReadConfig(strings.NewReader(string(b))); err != nil {
		return Job{}, fmt.Errorf("parse job: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (Job, error) {
	var j Job
	if err := v.Unmarshal(&j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if err := defaults.Set(&j); err != nil {
		return Job{}, fmt.Errorf("apply defaults: %w", err)
	}
	return j, nil
}

// ErrInvalid is returned by Check when the job has error-level issues.
var ErrInvalid = errors.New("invalid job")

// Check validates j and returns ErrInvalid, listing every error-level issue,
// when at least one is found. Warnings are returned for the caller to log.
func Check(j Job) (warnings []Issue, err error) {
	var errs []string
	for _, iss := range ValidateJob(j) {
		if iss.Severity == SeverityError {
			errs = append(errs, iss.Error())
			continue
		}
		warnings = append(warnings, iss)
	}
	if len(errs) > 0 {
		return warnings, fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return warnings, nil
}
