package duckdb

import (
	"context"
	"testing"

	"usermover/internal/idgen"
	"usermover/internal/model"
	"usermover/internal/statement"
	"usermover/internal/storage"
)

func TestUpsertRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := storage.Config{
		Kind:    "duckdb",
		DSN:     ":memory:",
		Table:   "tbl_storeuser",
		Columns: []string{"mid", "user_mid", "store_mid"},
	}
	repo, closeFn, err := NewRepository(ctx, cfg)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	defer closeFn()

	if err := storage.EnsureTable(ctx, cfg, "time_stamp", repo); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	u := model.NewUser("alice")
	u.Mid = 42
	u.StoreMids = []int64{100, 101}
	for i, policy := range []statement.ConflictPolicy{statement.PolicyNone, statement.PolicyUpdate, statement.PolicyIgnore} {
		st, err := statement.BuildUpsert(u, cfg.Table, statement.UpsertConfig{
			IDs:             idgen.NewSequence(1),
			Policy:          policy,
			TimestampColumn: "time_stamp",
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := repo.Execute(ctx, st); err != nil {
			t.Fatalf("Execute #%d (%s): %v", i, policy, err)
		}
	}

	if n, err := repo.CopyFrom(ctx, cfg.Columns, [][]any{{int64(3), int64(43), int64(102)}}); err != nil || n != 1 {
		t.Fatalf("CopyFrom n=%d err=%v", n, err)
	}
	if maxMid, err := repo.MaxMid(ctx, cfg.Table, "mid"); err != nil || maxMid != 3 {
		t.Fatalf("MaxMid=%d err=%v", maxMid, err)
	}
}
