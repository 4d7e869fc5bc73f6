// Package duckdb implements a DuckDB-backed storage.Repository. It is mostly
// used to rehearse a move locally against an exported copy of the legacy
// tables.
package duckdb

import (
	"context"

	_ "github.com/duckdb/duckdb-go/v2"

	"usermover/internal/sqlgen"
	"usermover/internal/storage"
	"usermover/internal/storage/sqldb"
)

// Repository is a DuckDB-backed storage.Repository.
type Repository struct {
	*sqldb.Repository
}

// NewRepository opens the database file named by cfg.DSN (":memory:" for a
// throwaway database).
func NewRepository(ctx context.Context, cfg storage.Config) (*Repository, func(), error) {
	base, err := sqldb.Open(ctx, "duckdb", cfg.DSN, sqlgen.DuckDB{}, cfg)
	if err != nil {
		return nil, nil, err
	}
	// An in-memory database lives only as long as its connection.
	base.DB().SetMaxOpenConns(1)
	closeFn := func() { _ = base.DB().Close() }
	return &Repository{Repository: base}, closeFn, nil
}
