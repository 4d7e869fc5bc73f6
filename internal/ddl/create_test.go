package ddl

import (
	"strings"
	"testing"

	"usermover/internal/sqlgen"
)

// TestBuildCreateTableSQL checks rendering and validation errors across
// dialects.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		dialect     sqlgen.Dialect
		def         TableDef
		wantSQL     string
		errContains string
	}{
		{
			name:        "empty FQN returns error",
			dialect:     sqlgen.Postgres{},
			def:         TableDef{Columns: []ColumnDef{{Name: "id", SQLType: "INT"}}},
			errContains: "table FQN must not be empty",
		},
		{
			name:        "no columns returns error",
			dialect:     sqlgen.Postgres{},
			def:         TableDef{FQN: "public.t"},
			errContains: "at least one column is required",
		},
		{
			name:        "column with empty name returns error",
			dialect:     sqlgen.SQLite{},
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{SQLType: "INT"}}},
			errContains: "column with empty name",
		},
		{
			name:        "column with empty type returns error",
			dialect:     sqlgen.SQLite{},
			def:         TableDef{FQN: "t", Columns: []ColumnDef{{Name: "id"}}},
			errContains: "missing SQLType",
		},
		{
			name:    "postgres primary key and default",
			dialect: sqlgen.Postgres{},
			def: TableDef{
				FQN: "  public.t  ",
				Columns: []ColumnDef{
					{Name: "mid", SQLType: "BIGINT", Nullable: true, PrimaryKey: true},
					{Name: "time_stamp", SQLType: "TIMESTAMPTZ", Nullable: true, Default: " CURRENT_TIMESTAMP "},
				},
			},
			wantSQL: "CREATE TABLE IF NOT EXISTS \"public\".\"t\" (\n  \"mid\" BIGINT NOT NULL,\n  \"time_stamp\" TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,\n  PRIMARY KEY (\"mid\")\n);",
		},
		{
			name:    "mysql backticks",
			dialect: sqlgen.MySQL{},
			def:     TableDef{FQN: "t", Columns: []ColumnDef{{Name: "a", SQLType: "BIGINT"}}},
			wantSQL: "CREATE TABLE IF NOT EXISTS `t` (\n  `a` BIGINT NOT NULL\n);",
		},
		{
			name:    "mssql guard",
			dialect: sqlgen.MSSQL{},
			def:     TableDef{FQN: "dbo.t", Columns: []ColumnDef{{Name: "a", SQLType: "BIGINT", PrimaryKey: true}}},
			wantSQL: "IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL\nBEGIN\n  CREATE TABLE [dbo].[t] (\n    [a] BIGINT NOT NULL,\n    PRIMARY KEY ([a])\n  );\nEND;",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gotSQL, err := BuildCreateTableSQL(tt.dialect, tt.def)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("BuildCreateTableSQL() error = %v, want substring %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildCreateTableSQL() unexpected error = %v", err)
			}
			if gotSQL != tt.wantSQL {
				t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", gotSQL, tt.wantSQL)
			}
		})
	}
}

func TestStoreUserTable(t *testing.T) {
	t.Parallel()

	td, err := StoreUserTable(sqlgen.MySQL{}, "tbl_storeuser", []string{"mid", "user_mid", "store_mid"}, "time_stamp")
	if err != nil {
		t.Fatalf("StoreUserTable: %v", err)
	}
	if len(td.Columns) != 4 {
		t.Fatalf("columns=%d, want 4", len(td.Columns))
	}
	if c, _ := td.Column("mid"); !c.PrimaryKey {
		t.Fatalf("mid is not the primary key")
	}
	if c, ok := td.Column("time_stamp"); !ok || c.Default == "" {
		t.Fatalf("time_stamp=%+v ok=%v", c, ok)
	}

	if _, err := StoreUserTable(sqlgen.SQLite{}, "t", []string{"a"}, ""); err == nil {
		t.Fatal("StoreUserTable accepted 1 column")
	}
}

func TestLegacyTablesRender(t *testing.T) {
	t.Parallel()
	for _, d := range []sqlgen.Dialect{sqlgen.Postgres{}, sqlgen.MySQL{}, sqlgen.SQLite{}, sqlgen.MSSQL{}, sqlgen.DuckDB{}} {
		for _, td := range []TableDef{UsersTable(d, "tbl_users"), StoresTable(d, "tbl_store")} {
			if _, err := BuildCreateTableSQL(d, td); err != nil {
				t.Fatalf("%s %s: %v", d.Name(), td.FQN, err)
			}
		}
	}
}

var benchmarkSink string

func BenchmarkBuildCreateTableSQL(b *testing.B) {
	td, _ := StoreUserTable(sqlgen.Postgres{}, "public.tbl_storeuser", []string{"mid", "user_mid", "store_mid"}, "time_stamp")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s, err := BuildCreateTableSQL(sqlgen.Postgres{}, td)
		if err != nil {
			b.Fatal(err)
		}
		benchmarkSink = s
	}
}
