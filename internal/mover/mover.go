// Package mover runs a migration: it reads users and stores from the legacy
// tables, resolves every user's access rules into store mids and writes one
// join row per (user, store) pair.
package mover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"usermover/internal/config"
	"usermover/internal/idgen"
	"usermover/internal/metrics"
	"usermover/internal/model"
	"usermover/internal/resolve"
	"usermover/internal/sqlgen"
	"usermover/internal/statement"
	"usermover/internal/storage"
)

// Run steps, used as metric labels.
const (
	StepLoadUsers  = "load_users"
	StepLoadStores = "load_stores"
	StepResolve    = "resolve"
	StepWrite      = "write"
)

// Mover executes one job against one repository.
type Mover struct {
	repo    storage.Repository
	job     config.Job
	dialect sqlgen.Dialect
	policy  statement.ConflictPolicy
	since   time.Time
	timeout time.Duration

	now func() time.Time
	log *zap.SugaredLogger
}

// New validates the parts of job the run depends on and returns a Mover.
func New(repo storage.Repository, job config.Job) (*Mover, error) {
	if repo == nil {
		return nil, errors.New("mover: repository is nil")
	}
	policy, err := statement.ParsePolicy(job.Upsert.Policy)
	if err != nil {
		return nil, err
	}
	since, err := job.Since()
	if err != nil {
		return nil, err
	}
	timeout, err := job.RunTimeout()
	if err != nil {
		return nil, fmt.Errorf("runtime.timeout: %w", err)
	}
	d, err := sqlgen.ForKind(job.Storage.Kind)
	if err != nil {
		return nil, err
	}
	switch job.Runtime.Mode {
	case config.ModePerUser:
	case config.ModeAggregate:
		if job.Runtime.BatchSize <= 0 {
			return nil, fmt.Errorf("mover: aggregate mode needs batch_size > 0, got %d", job.Runtime.BatchSize)
		}
	default:
		return nil, fmt.Errorf("mover: unknown mode %q", job.Runtime.Mode)
	}

	return &Mover{
		repo:    repo,
		job:     job,
		dialect: d,
		policy:  policy,
		since:   since,
		timeout: timeout,
		now:     time.Now,
		log:     zap.S().Named("mover"),
	}, nil
}

// Run is New followed by Mover.Run.
func Run(ctx context.Context, repo storage.Repository, job config.Job) (Summary, error) {
	m, err := New(repo, job)
	if err != nil {
		return Summary{}, err
	}
	return m.Run(ctx)
}

// Run moves every eligible user. A statement that fails for one user is
// logged with its SQL and counted; the run continues. Errors reading the
// sources, building statements or a cancelled context end the run.
func (m *Mover) Run(ctx context.Context) (sum Summary, err error) {
	start := m.now()
	sum = Summary{RunID: uuid.NewString(), DryRun: m.job.Runtime.DryRun}
	log := m.log.With("job", m.job.Job, "run_id", sum.RunID)

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	defer func() {
		sum.Duration = m.now().Sub(start)
		m.recordSummary(sum)
		log.Infow("run finished",
			"summary", sum.String(),
			"users_failed", sum.UsersFailed,
			"batches_failed", sum.BatchesFailed,
			"rows_written", sum.RowsWritten,
			"dry_run", sum.DryRun,
		)
	}()

	log.Infow("run started",
		"kind", m.job.Storage.Kind,
		"table", m.job.Storage.DB.Table,
		"since", m.since,
		"policy", m.policy.String(),
		"mode", m.job.Runtime.Mode,
		"dry_run", sum.DryRun,
	)

	users, stores, err := m.load(ctx, log, &sum)
	if err != nil {
		return sum, err
	}
	if len(users) == 0 {
		log.Infow("no users to move")
		return sum, nil
	}
	if len(stores) == 0 {
		log.Infow("no stores to grant")
		return sum, nil
	}

	resStart := m.now()
	st := resolve.Apply(users, stores)
	for _, u := range users {
		if len(u.StoreMids) > 0 {
			sum.UsersResolved++
		} else {
			sum.UsersEmpty++
		}
	}
	metrics.RecordStep(m.job.Job, StepResolve, nil, m.now().Sub(resStart))
	log.Infow("users resolved",
		"by_serial", st.Serial,
		"by_group", st.Group,
		"without_groups", st.None,
		"no_match", st.Empty,
		"rows", st.Stores,
	)

	ids, err := m.sequence(ctx, log)
	if err != nil {
		return sum, err
	}
	sum.FirstID = ids.Peek()

	ucfg := statement.UpsertConfig{
		IDs:             ids,
		Policy:          m.policy,
		Columns:         m.job.Upsert.Columns,
		KeyColumns:      m.job.Upsert.KeyColumns,
		TimestampColumn: m.job.Upsert.TimestampColumn,
	}

	writeStart := m.now()
	if m.job.Runtime.Mode == config.ModeAggregate {
		err = m.writeAggregate(ctx, log, users, ucfg, &sum)
	} else {
		err = m.writePerUser(ctx, log, users, ucfg, &sum)
	}
	metrics.RecordStep(m.job.Job, StepWrite, err, m.now().Sub(writeStart))
	return sum, err
}

// load reads users and stores concurrently.
func (m *Mover) load(ctx context.Context, log *zap.SugaredLogger, sum *Summary) ([]model.User, []model.Store, error) {
	var (
		users  []model.User
		skips  []storage.Skip
		stores []model.Store
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t0 := m.now()
		var err error
		users, skips, err = m.repo.Users(gctx, storage.UserQuery{Table: m.job.Users.Table, Since: m.since})
		metrics.RecordStep(m.job.Job, StepLoadUsers, err, m.now().Sub(t0))
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		t0 := m.now()
		var err error
		stores, err = m.repo.Stores(gctx, storage.StoreQuery{Table: m.job.Stores.Table, MinMid: m.job.Stores.MinMid})
		metrics.RecordStep(m.job.Job, StepLoadStores, err, m.now().Sub(t0))
		if err != nil {
			return fmt.Errorf("load stores: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	for _, s := range skips {
		log.Debugw("user skipped", "user", s.Name, "reason", s.Reason)
	}
	sum.UsersRead = len(users)
	sum.UsersSkipped = len(skips)
	sum.Stores = len(stores)
	log.Infow("sources loaded", "users", len(users), "skipped", len(skips), "stores", len(stores))
	return users, stores, nil
}

// sequence seeds the run's surrogate ids: runtime.id_seed, then one past the
// largest id in the join table, then the clock. The stored maximum is read
// even with a configured seed so a seed that would reuse ids is reported.
func (m *Mover) sequence(ctx context.Context, log *zap.SugaredLogger) (*idgen.Sequence, error) {
	table := m.job.Storage.DB.Table
	idCol := statement.DefaultColumns[0]
	if len(m.job.Upsert.Columns) > 0 {
		idCol = m.job.Upsert.Columns[0]
	}

	configured := m.job.Runtime.IDSeed
	stored, err := m.repo.MaxMid(ctx, table, idCol)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case configured > 0:
		stored = 0
		log.Warnw("could not read largest id; using the configured seed unchecked", "table", table, "error", err)
	default:
		stored = 0
		log.Warnw("could not read largest id; seeding from the clock", "table", table, "error", err)
	}
	if configured > 0 && configured <= stored {
		log.Warnw("configured id seed is not above the largest stored id; existing rows may be overwritten",
			"id_seed", configured,
			"stored_max", stored,
			"policy", m.policy.String(),
		)
	}

	seed := idgen.Seed(configured, stored, m.now())
	log.Infow("id sequence seeded", "first_id", seed, "configured", configured, "stored_max", stored)
	return idgen.NewSequence(seed), nil
}

func (m *Mover) writePerUser(ctx context.Context, log *zap.SugaredLogger, users []model.User, ucfg statement.UpsertConfig, sum *Summary) error {
	table := m.job.Storage.DB.Table
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := statement.BuildUpsert(u, table, ucfg)
		if err != nil {
			return fmt.Errorf("build statement for user %q: %w", u.Name, err)
		}
		if st.RowCount() == 0 {
			continue
		}

		if sum.DryRun {
			if err := m.logDryRun(log, st, "user", u.Name); err != nil {
				return err
			}
			sum.Statements++
			sum.RowsWritten += int64(st.RowCount())
			continue
		}

		out, err := m.repo.Execute(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			sum.UsersFailed++
			log.Errorw("user failed", "user", u.Name, "mid", u.Mid, "rows", st.RowCount(), "sql", out.SQL, "error", err)
			continue
		}
		sum.Statements++
		sum.RowsWritten += int64(st.RowCount())
		sum.RowsAffected += out.RowsAffected
		log.Debugw("user moved", "user", u.Name, "mid", u.Mid, "rows", st.RowCount(), "affected", out.RowsAffected)
	}
	return nil
}

// writeAggregate streams the rows of every user through storage.LoadBatches.
// A batch that fails is logged and counted; the run continues.
func (m *Mover) writeAggregate(ctx context.Context, log *zap.SugaredLogger, users []model.User, ucfg statement.UpsertConfig, sum *Summary) error {
	b, err := ucfg.Builder(m.job.Storage.DB.Table)
	if err != nil {
		return err
	}
	batchSize := m.job.Runtime.BatchSize

	rows := make(chan []any, batchSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rows)
		for _, u := range users {
			for _, rec := range ucfg.Records(u) {
				row, err := b.Row(rec, ucfg.IDs)
				if err != nil {
					return fmt.Errorf("build row for user %q: %w", u.Name, err)
				}
				select {
				case rows <- row:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return nil
	})

	var written int64
	g.Go(func() error {
		n, err := storage.LoadBatches(gctx, b.Columns(), rows, batchSize, m.batchFn(log, b, sum))
		written = n
		return err
	})

	err = g.Wait()
	sum.RowsWritten += written
	return err
}

// batchFn returns the CopyFn flushing one aggregate batch. Plain inserts use
// the backend's bulk path; conflict policies go through a statement.
func (m *Mover) batchFn(log *zap.SugaredLogger, b *statement.Builder, sum *Summary) storage.CopyFn {
	return func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		sum.Batches++
		metrics.RecordBatches(m.job.Job, 1)

		if m.policy == statement.PolicyNone && !sum.DryRun {
			n, err := m.repo.CopyFrom(ctx, columns, rows)
			if err != nil {
				return m.batchFailed(ctx, log, sum, len(rows), "", err)
			}
			sum.Statements++
			sum.RowsAffected += n
			return n, nil
		}

		st := b.New()
		for _, r := range rows {
			if err := st.AddRow(r); err != nil {
				return 0, err
			}
		}

		if sum.DryRun {
			if err := m.logDryRun(log, st, "batch", sum.Batches); err != nil {
				return 0, err
			}
			sum.Statements++
			return int64(st.RowCount()), nil
		}

		out, err := m.repo.Execute(ctx, st)
		if err != nil {
			return m.batchFailed(ctx, log, sum, st.RowCount(), out.SQL, err)
		}
		sum.Statements++
		sum.RowsAffected += out.RowsAffected
		return int64(st.RowCount()), nil
	}
}

func (m *Mover) batchFailed(ctx context.Context, log *zap.SugaredLogger, sum *Summary, rows int, sql string, err error) (int64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	sum.BatchesFailed++
	log.Errorw("batch failed", "batch", sum.Batches, "rows", rows, "sql", sql, "error", err)
	return 0, nil
}

func (m *Mover) logDryRun(log *zap.SugaredLogger, st *statement.Staged, key string, val any) error {
	queries, err := sqlgen.RenderChunks(st, m.dialect)
	if err != nil {
		return fmt.Errorf("render %s %v: %w", key, val, err)
	}
	for i, q := range queries {
		log.Infow("dry run", key, val, "chunk", i+1, "chunks", len(queries), "rows", q.Rows, "sql", q.SQL, "args", q.Args)
	}
	return nil
}

func (m *Mover) recordSummary(sum Summary) {
	job := m.job.Job
	metrics.RecordRow(job, metrics.KindUsersRead, int64(sum.UsersRead))
	metrics.RecordRow(job, metrics.KindUsersSkipped, int64(sum.UsersSkipped))
	metrics.RecordRow(job, metrics.KindUsersResolved, int64(sum.UsersResolved))
	metrics.RecordRow(job, metrics.KindUsersEmpty, int64(sum.UsersEmpty))
	metrics.RecordRow(job, metrics.KindUsersFailed, int64(sum.UsersFailed))
	metrics.RecordRow(job, metrics.KindStoresRead, int64(sum.Stores))
	if !sum.DryRun {
		metrics.RecordRow(job, metrics.KindRowsWritten, sum.RowsWritten)
	}
}
