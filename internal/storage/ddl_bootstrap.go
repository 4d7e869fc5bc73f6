package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"usermover/internal/ddl"
	"usermover/internal/sqlgen"
)

// DDLBootstrapper applies the DDL that creates table td, typically via
// repo.Exec.
type DDLBootstrapper func(ctx context.Context, repo Repository, td ddl.TableDef) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper of a storage kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// ExecDDL returns a DDLBootstrapper that renders td for d and runs it through
// repo.Exec. Backends whose DDL needs nothing more register this.
func ExecDDL(d sqlgen.Dialect) DDLBootstrapper {
	return func(ctx context.Context, repo Repository, td ddl.TableDef) error {
		sql, err := ddl.BuildCreateTableSQL(d, td)
		if err != nil {
			return err
		}
		return repo.Exec(ctx, sql)
	}
}

// EnsureTable creates the join table described by cfg (columns plus the
// timestamp column) if it does not exist yet.
func EnsureTable(ctx context.Context, cfg Config, timestampCol string, repo Repository) error {
	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", cfg.Kind)
	}
	d, err := sqlgen.ForKind(cfg.Kind)
	if err != nil {
		return err
	}
	td, err := ddl.StoreUserTable(d, strings.TrimSpace(cfg.Table), cfg.Columns, timestampCol)
	if err != nil {
		return fmt.Errorf("table definition: %w", err)
	}
	if err := fn(ctx, repo, td); err != nil {
		return fmt.Errorf("apply DDL: %w", err)
	}
	return nil
}
