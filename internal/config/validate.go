package config

import (
	"fmt"
	"strings"

	"usermover/internal/sqlgen"
	"usermover/internal/statement"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the job
// file (e.g. "storage.db.dsn").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// knownKinds are the storage kinds built into the binary.
var knownKinds = map[string]struct{}{
	"postgres": {},
	"mysql":    {},
	"mariadb":  {},
	"mssql":    {},
	"sqlite":   {},
	"duckdb":   {},
}

// ValidateJob performs static validation of a job. It does not mutate j and
// does not touch the database.
func ValidateJob(j Job) []Issue {
	var issues []Issue
	if strings.TrimSpace(j.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it labels logs and metrics",
		})
	}
	issues = append(issues, validateStorage(j.Storage)...)
	issues = append(issues, validateSources(j.Users, j.Stores)...)
	issues = append(issues, validateUpsert(j.Upsert)...)
	issues = append(issues, validateRuntime(j.Runtime)...)
	issues = append(issues, validateLimits(j)...)
	issues = append(issues, validateMetrics(j.Metrics)...)
	return issues
}

func validateStorage(s Storage) []Issue {
	var issues []Issue
	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{SeverityError, "storage.kind", "storage.kind must not be empty"})
	}
	if _, ok := knownKinds[s.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; ensure a matching backend is registered", s.Kind),
		})
	}
	if strings.TrimSpace(s.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "storage.db.dsn must not be empty"})
	}
	if strings.TrimSpace(s.DB.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "storage.db.table must not be empty"})
	}
	return issues
}

func validateSources(u UsersSource, s StoresSource) []Issue {
	var issues []Issue
	if strings.TrimSpace(u.Table) == "" {
		issues = append(issues, Issue{SeverityError, "users.table", "users.table must not be empty"})
	}
	if _, err := ParseTimestamp(u.EarliestTimestamp); err != nil {
		issues = append(issues, Issue{SeverityError, "users.earliest_timestamp", err.Error()})
	}
	if strings.TrimSpace(s.Table) == "" {
		issues = append(issues, Issue{SeverityError, "stores.table", "stores.table must not be empty"})
	}
	if s.MinMid < 0 {
		issues = append(issues, Issue{SeverityWarning, "stores.min_mid", fmt.Sprintf("min_mid=%d; every store will be considered", s.MinMid)})
	}
	return issues
}

func validateUpsert(u Upsert) []Issue {
	var issues []Issue
	switch strings.ToLower(strings.TrimSpace(u.Policy)) {
	case "", "none", "insert", "update", "on_duplicate_key_update", "upsert", "ignore", "insert_ignore", "skip":
	default:
		issues = append(issues, Issue{SeverityError, "upsert.policy", fmt.Sprintf("unknown policy %q; want none, update or ignore", u.Policy)})
	}
	if len(u.Columns) != 3 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "upsert.columns",
			Message:  fmt.Sprintf("got %d columns; want exactly 3 (surrogate id, user mid, store mid)", len(u.Columns)),
		})
	}
	seen := map[string]bool{}
	for i, c := range u.Columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if key == "" {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("upsert.columns[%d]", i), "column name must not be empty"})
			continue
		}
		if seen[key] {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("upsert.columns[%d]", i), fmt.Sprintf("duplicate column %q", c)})
		}
		seen[key] = true
	}
	for i, k := range u.KeyColumns {
		if !seen[strings.ToLower(strings.TrimSpace(k))] {
			issues = append(issues, Issue{SeverityError, fmt.Sprintf("upsert.key_columns[%d]", i), fmt.Sprintf("key column %q is not projected", k)})
		}
	}
	if ts := strings.ToLower(strings.TrimSpace(u.TimestampColumn)); ts != "" && seen[ts] {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "upsert.timestamp_column",
			Message:  fmt.Sprintf("timestamp column %q is projected; it will be written on insert but never updated", u.TimestampColumn),
		})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	switch r.Mode {
	case ModePerUser, ModeAggregate:
	default:
		issues = append(issues, Issue{SeverityError, "runtime.mode", fmt.Sprintf("unknown mode %q; want %s or %s", r.Mode, ModePerUser, ModeAggregate)})
	}
	if r.BatchSize <= 0 {
		sev := SeverityWarning
		if r.Mode == ModeAggregate {
			sev = SeverityError
		}
		issues = append(issues, Issue{sev, "runtime.batch_size", fmt.Sprintf("batch_size=%d must be positive", r.BatchSize)})
	}
	if r.IDSeed < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.id_seed", "id_seed must not be negative"})
	}
	if strings.TrimSpace(r.Timeout) != "" {
		if _, err := (Job{Runtime: r}).RunTimeout(); err != nil {
			issues = append(issues, Issue{SeverityError, "runtime.timeout", err.Error()})
		}
	}
	return issues
}

// validateLimits warns when one aggregate batch rendered as a statement binds
// more parameters than the dialect accepts. Such batches still run, split
// into several statements inside one transaction.
func validateLimits(j Job) []Issue {
	if j.Runtime.Mode != ModeAggregate || j.Runtime.BatchSize <= 0 || len(j.Upsert.Columns) == 0 {
		return nil
	}
	policy, err := statement.ParsePolicy(j.Upsert.Policy)
	if err != nil || (policy == statement.PolicyNone && !j.Runtime.DryRun) {
		return nil
	}
	d, err := sqlgen.ForKind(j.Storage.Kind)
	if err != nil {
		return nil
	}
	limit := sqlgen.MaxParams(d)
	params := j.Runtime.BatchSize * len(j.Upsert.Columns)
	if limit == 0 || params <= limit {
		return nil
	}
	perStmt := max(limit/len(j.Upsert.Columns), 1)
	return []Issue{{
		Severity: SeverityWarning,
		Path:     "runtime.batch_size",
		Message: fmt.Sprintf("batch_size=%d binds %d parameters; %s accepts %d, so each batch is split into statements of %d rows",
			j.Runtime.BatchSize, params, d.Name(), limit, perStmt),
	}}
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none":
	case "pushgateway", "prom", "prometheus":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend needs metrics.pushgateway_url"})
		}
	case "datadog", "dd":
		if strings.TrimSpace(m.DatadogAddr) == "" {
			issues = append(issues, Issue{SeverityWarning, "metrics.datadog_addr", "datadog_addr is empty; the client default will be used"})
		}
	default:
		issues = append(issues, Issue{SeverityWarning, "metrics.backend", fmt.Sprintf("unknown metrics backend %q; metrics disabled", m.Backend)})
	}
	return issues
}
