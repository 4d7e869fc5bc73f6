package sqlgen

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"usermover/internal/idgen"
	"usermover/internal/model"
	"usermover/internal/statement"
)

func aliceStatement(t *testing.T, policy statement.ConflictPolicy) *statement.Staged {
	t.Helper()
	u := model.NewUser("alice")
	u.Mid = 42
	u.StoreMids = []int64{100, 101}
	st, err := statement.BuildUpsert(u, "tbl_storeuser", statement.UpsertConfig{
		IDs:    idgen.NewSequence(7),
		Policy: policy,
	})
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}
	return st
}

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		policy  statement.ConflictPolicy
		want    string
	}{
		{
			name: "mysql insert", dialect: MySQL{}, policy: statement.PolicyNone,
			want: "INSERT INTO `tbl_storeuser` (`mid`,`user_mid`,`store_mid`) VALUES (?,?,?),(?,?,?)",
		},
		{
			name: "mysql ignore", dialect: MySQL{}, policy: statement.PolicyIgnore,
			want: "INSERT IGNORE INTO `tbl_storeuser` (`mid`,`user_mid`,`store_mid`) VALUES (?,?,?),(?,?,?)",
		},
		{
			name: "mysql update", dialect: MySQL{}, policy: statement.PolicyUpdate,
			want: "INSERT INTO `tbl_storeuser` (`mid`,`user_mid`,`store_mid`) VALUES (?,?,?),(?,?,?) " +
				"ON DUPLICATE KEY UPDATE `user_mid` = VALUES(`user_mid`), `store_mid` = VALUES(`store_mid`)",
		},
		{
			name: "postgres update", dialect: Postgres{}, policy: statement.PolicyUpdate,
			want: `INSERT INTO "tbl_storeuser" ("mid","user_mid","store_mid") VALUES ($1,$2,$3),($4,$5,$6) ` +
				`ON CONFLICT ("mid") DO UPDATE SET "user_mid" = EXCLUDED."user_mid", "store_mid" = EXCLUDED."store_mid"`,
		},
		{
			name: "postgres ignore", dialect: Postgres{}, policy: statement.PolicyIgnore,
			want: `INSERT INTO "tbl_storeuser" ("mid","user_mid","store_mid") VALUES ($1,$2,$3),($4,$5,$6) ON CONFLICT ("mid") DO NOTHING`,
		},
		{
			name: "sqlite ignore", dialect: SQLite{}, policy: statement.PolicyIgnore,
			want: `INSERT OR IGNORE INTO "tbl_storeuser" ("mid","user_mid","store_mid") VALUES (?,?,?),(?,?,?)`,
		},
		{
			name: "duckdb update", dialect: DuckDB{}, policy: statement.PolicyUpdate,
			want: `INSERT INTO "tbl_storeuser" ("mid","user_mid","store_mid") VALUES (?,?,?),(?,?,?) ` +
				`ON CONFLICT ("mid") DO UPDATE SET "user_mid" = EXCLUDED."user_mid", "store_mid" = EXCLUDED."store_mid"`,
		},
		{
			name: "mssql insert", dialect: MSSQL{}, policy: statement.PolicyNone,
			want: "INSERT INTO [tbl_storeuser] ([mid],[user_mid],[store_mid]) VALUES (@p1,@p2,@p3),(@p4,@p5,@p6)",
		},
		{
			name: "mssql update", dialect: MSSQL{}, policy: statement.PolicyUpdate,
			want: "MERGE INTO [tbl_storeuser] WITH (HOLDLOCK) AS T USING (VALUES (@p1,@p2,@p3), (@p4,@p5,@p6)) " +
				"AS S ([mid], [user_mid], [store_mid]) ON T.[mid] = S.[mid] " +
				"WHEN MATCHED THEN UPDATE SET T.[user_mid] = S.[user_mid], T.[store_mid] = S.[store_mid] " +
				"WHEN NOT MATCHED THEN INSERT ([mid], [user_mid], [store_mid]) VALUES (S.[mid], S.[user_mid], S.[store_mid]);",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args, err := Render(aliceStatement(t, tt.policy), tt.dialect)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if sql != tt.want {
				t.Fatalf("sql mismatch\n got: %s\nwant: %s", sql, tt.want)
			}
			want := []any{int64(7), int64(42), int64(100), int64(8), int64(42), int64(101)}
			if !reflect.DeepEqual(args, want) {
				t.Fatalf("args=%v, want %v", args, want)
			}
		})
	}
}

func manyStores(t *testing.T, n int, policy statement.ConflictPolicy) *statement.Staged {
	t.Helper()
	u := model.NewUser("wide")
	u.Mid = 1
	for i := 0; i < n; i++ {
		u.StoreMids = append(u.StoreMids, int64(1000+i))
	}
	st, err := statement.BuildUpsert(u, "tbl_storeuser", statement.UpsertConfig{
		IDs:    idgen.NewSequence(1),
		Policy: policy,
	})
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}
	return st
}

func singleColumn(t *testing.T, n int, policy statement.ConflictPolicy) *statement.Staged {
	t.Helper()
	recs := make([]statement.Record, n)
	for i := range recs {
		recs[i] = statement.Record{{Name: "id", Value: i}}
	}
	spec := statement.TableSpec{
		Source: statement.Schema{Name: "s", Columns: []statement.Column{{Name: "id"}}},
		Dest:   statement.Schema{Name: "d", Columns: []statement.Column{{Name: "id"}}},
	}
	st, err := statement.BuildRecords(recs, spec, statement.Options{Policy: policy}, nil)
	if err != nil {
		t.Fatalf("BuildRecords: %v", err)
	}
	return st
}

func TestRenderChunks_Limits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		st      func(*testing.T) *statement.Staged
		dialect Dialect
		sizes   []int
	}{
		{"mssql merge over 2100 parameters", func(t *testing.T) *statement.Staged {
			return manyStores(t, 1000, statement.PolicyUpdate)
		}, MSSQL{}, []int{699, 301}},
		{"mssql insert over 2100 parameters", func(t *testing.T) *statement.Staged {
			return manyStores(t, 1000, statement.PolicyNone)
		}, MSSQL{}, []int{699, 301}},
		{"mssql insert over 1000 rows", func(t *testing.T) *statement.Staged {
			return singleColumn(t, 2500, statement.PolicyNone)
		}, MSSQL{}, []int{1000, 1000, 500}},
		{"mssql merge not capped at 1000 rows", func(t *testing.T) *statement.Staged {
			return singleColumn(t, 2500, statement.PolicyIgnore)
		}, MSSQL{}, []int{2099, 401}},
		{"postgres fits", func(t *testing.T) *statement.Staged {
			return manyStores(t, 1000, statement.PolicyUpdate)
		}, Postgres{}, []int{1000}},
		{"postgres over 65535 parameters", func(t *testing.T) *statement.Staged {
			return manyStores(t, 22000, statement.PolicyUpdate)
		}, Postgres{}, []int{21845, 155}},
		{"duckdb unlimited", func(t *testing.T) *statement.Staged {
			return manyStores(t, 22000, statement.PolicyUpdate)
		}, DuckDB{}, []int{22000}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := tt.st(t)
			queries, err := RenderChunks(st, tt.dialect)
			if err != nil {
				t.Fatalf("RenderChunks: %v", err)
			}
			if len(queries) != len(tt.sizes) {
				t.Fatalf("chunks=%d, want %d", len(queries), len(tt.sizes))
			}
			cols := len(st.Columns())
			var first any
			for i, q := range queries {
				if q.Rows != tt.sizes[i] || len(q.Args) != q.Rows*cols {
					t.Fatalf("chunk %d: rows=%d args=%d, want rows=%d", i, q.Rows, len(q.Args), tt.sizes[i])
				}
				if p := MaxParams(tt.dialect); p > 0 && len(q.Args) > p {
					t.Fatalf("chunk %d binds %d parameters, limit %d", i, len(q.Args), p)
				}
				if i == 0 {
					first = q.Args[0]
				}
			}
			if first != st.Rows()[0][0] {
				t.Fatalf("first chunk does not start with the first row")
			}
		})
	}
}

func TestRenderChunks_Empty(t *testing.T) {
	t.Parallel()
	if _, err := RenderChunks(nil, MSSQL{}); !errors.Is(err, ErrEmptyStatement) {
		t.Fatalf("nil err=%v", err)
	}
	if _, err := RenderChunks(manyStores(t, 0, statement.PolicyNone), MSSQL{}); !errors.Is(err, ErrEmptyStatement) {
		t.Fatalf("empty err=%v", err)
	}
}

func TestRender_MSSQLIgnore(t *testing.T) {
	t.Parallel()
	sql, _, err := Render(aliceStatement(t, statement.PolicyIgnore), MSSQL{})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(sql, "WHEN MATCHED") || !strings.HasPrefix(sql, "MERGE INTO") {
		t.Fatalf("sql=%s", sql)
	}
}

func TestRender_Empty(t *testing.T) {
	t.Parallel()
	st, err := statement.BuildUpsert(model.NewUser("bob"), "t", statement.UpsertConfig{IDs: idgen.NewSequence(1)})
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []Dialect{MySQL{}, Postgres{}, SQLite{}, MSSQL{}, DuckDB{}} {
		if _, _, err := Render(st, d); !errors.Is(err, ErrEmptyStatement) {
			t.Fatalf("%s: err=%v, want ErrEmptyStatement", d.Name(), err)
		}
	}
	if _, _, err := Render(nil, MySQL{}); !errors.Is(err, ErrEmptyStatement) {
		t.Fatalf("nil statement err=%v", err)
	}
}

func TestRender_Invalid(t *testing.T) {
	t.Parallel()
	st := aliceStatement(t, statement.PolicyNone)
	st.Stages[2].Rows = append(st.Stages[2].Rows, []any{1})
	if _, _, err := Render(st, Postgres{}); !errors.Is(err, statement.ErrArity) {
		t.Fatalf("err=%v, want ErrArity", err)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    Dialect
		in   string
		want string
	}{
		{Postgres{}, "public.tbl_users", `"public"."tbl_users"`},
		{Postgres{}, `we"ird`, `"we""ird"`},
		{MySQL{}, "db.tbl", "`db`.`tbl`"},
		{MSSQL{}, "dbo.tbl", "[dbo].[tbl]"},
		{MSSQL{}, "[dbo].tbl", "[dbo].[tbl]"},
		{SQLite{}, "tbl", `"tbl"`},
	}
	for _, tt := range tests {
		if got := tt.d.QuoteIdent(tt.in); got != tt.want {
			t.Errorf("%s.QuoteIdent(%q)=%q, want %q", tt.d.Name(), tt.in, got, tt.want)
		}
	}
}

func TestForKind(t *testing.T) {
	t.Parallel()
	for kind, want := range map[string]string{
		"postgres": "postgres", "PG": "postgres", "mysql": "mysql",
		"sqlite3": "sqlite", "sqlserver": "mssql", "duckdb": "duckdb",
	} {
		d, err := ForKind(kind)
		if err != nil {
			t.Fatalf("ForKind(%q): %v", kind, err)
		}
		if d.Name() != want {
			t.Fatalf("ForKind(%q)=%s, want %s", kind, d.Name(), want)
		}
	}
	if _, err := ForKind("oracle"); err == nil {
		t.Fatal("ForKind(oracle) succeeded")
	}
}
