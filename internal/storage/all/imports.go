// Package all wires every built-in storage backend into the storage factory.
//
// It exists for side effects only: importing it runs the init functions that
// register the factories and DDL bootstrappers of
//
//   - "postgres" (internal/storage/postgres)
//   - "mysql", "mariadb" (internal/storage/mysql)
//   - "mssql" (internal/storage/mssql)
//   - "sqlite" (internal/storage/sqlite)
//   - "duckdb" (internal/storage/duckdb)
//
// Typical usage, in cmd/usermover:
//
//	import _ "usermover/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: job.Storage.Kind, DSN: job.Storage.DB.DSN})
//
// A binary that needs only some backends can import those packages directly
// instead.
package all

import (
	_ "usermover/internal/storage/duckdb"
	_ "usermover/internal/storage/mssql"
	_ "usermover/internal/storage/mysql"
	_ "usermover/internal/storage/postgres"
	_ "usermover/internal/storage/sqlite"
)
