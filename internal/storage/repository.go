// Package storage contains the storage-agnostic contracts of the mover: the
// Repository every backend implements, the factory backends register with,
// the DDL bootstrap hook and the batched loader.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"usermover/internal/model"
	"usermover/internal/statement"
)

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string

	// Table is the join table written by the mover.
	Table string
	// Columns is the ordered projection of Table.
	Columns []string
	// KeyColumns is the conflict target of Table.
	KeyColumns []string
}

// UserQuery selects the user rows to move.
type UserQuery struct {
	Table string
	// Since keeps rows whose time_stamp is at or after it.
	Since time.Time
}

// StoreQuery selects the store catalog.
type StoreQuery struct {
	Table string
	// MinMid keeps stores with mid > MinMid.
	MinMid int64
}

// Skip is a user row left out of the run.
type Skip = model.Skip

// Outcome describes an executed statement.
type Outcome struct {
	// SQL is the rendered statement text; the failing chunk on error.
	SQL          string
	Args         int
	RowsAffected int64
	// Chunks is the number of statements st was split into to fit the
	// dialect's limits. They run in one transaction.
	Chunks int
}

// Repository is the contract every backend implements.
type Repository interface {
	// Users reads the user rows matching q. Rows with an empty required field
	// are returned as skips instead of users.
	Users(ctx context.Context, q UserQuery) ([]model.User, []Skip, error)
	// Stores reads the store catalog.
	Stores(ctx context.Context, q StoreQuery) ([]model.Store, error)
	// Execute renders and runs st. Statements with no rows are not sent to
	// the database.
	Execute(ctx context.Context, st *statement.Staged) (Outcome, error)
	// CopyFrom bulk-inserts rows into the configured table.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// MaxMid returns the largest value of column in table, or 0 when the
	// table is empty.
	MaxMid(ctx context.Context, table, column string) (int64, error)
	// Exec runs a raw statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// ErrUnsupportedKind is returned by New for a kind nobody registered.
var ErrUnsupportedKind = errors.New("unsupported storage.kind")

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory of a storage kind. Backends
// call it from init.
func Register(kind string, fn Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = fn
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	fn, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w=%s", ErrUnsupportedKind, cfg.Kind)
	}
	return fn(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
