package mysql

import (
	"context"

	"usermover/internal/sqlgen"
	"usermover/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

var _ storage.Repository = (*wrappedRepo)(nil)

func init() {
	factory := func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	}
	storage.Register("mysql", factory)
	storage.Register("mariadb", factory)
	storage.RegisterDDL("mysql", storage.ExecDDL(sqlgen.MySQL{}))
	storage.RegisterDDL("mariadb", storage.ExecDDL(sqlgen.MySQL{}))
}

// wrappedRepo adds the close function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
