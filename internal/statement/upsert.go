package statement

import (
	"errors"
	"fmt"
	"strings"

	"usermover/internal/idgen"
	"usermover/internal/model"
)

// ConflictPolicy selects what happens when an inserted row hits an existing
// unique key.
type ConflictPolicy int

const (
	// PolicyNone emits a plain INSERT; conflicts fail the statement.
	PolicyNone ConflictPolicy = iota
	// PolicyUpdate overwrites the existing row.
	PolicyUpdate
	// PolicyIgnore keeps the existing row and skips the new one.
	PolicyIgnore
)

func (p ConflictPolicy) String() string {
	switch p {
	case PolicyUpdate:
		return "update"
	case PolicyIgnore:
		return "ignore"
	default:
		return "none"
	}
}

// ParsePolicy maps a config value to a ConflictPolicy.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "insert":
		return PolicyNone, nil
	case "update", "on_duplicate_key_update", "upsert":
		return PolicyUpdate, nil
	case "ignore", "insert_ignore", "skip":
		return PolicyIgnore, nil
	}
	return PolicyNone, fmt.Errorf("statement: unknown conflict policy %q", s)
}

// DefaultColumns is the tbl_storeuser projection: surrogate id, user mid,
// store mid.
var DefaultColumns = []string{"mid", "user_mid", "store_mid"}

// ErrNoGenerator is returned when a builder needs surrogate ids but was not
// given a Generator.
var ErrNoGenerator = errors.New("statement: surrogate id generator is nil")

// UpsertConfig configures the user/store statements.
type UpsertConfig struct {
	// IDs hands out the surrogate id of each row. Share one Generator across
	// the whole run.
	IDs idgen.Generator

	Policy ConflictPolicy

	// Columns is projected verbatim: surrogate id, user id, store id.
	Columns []string

	// KeyColumns is the conflict target; defaults to the first column.
	KeyColumns []string

	// TimestampColumn is maintained by the database and never assigned in the
	// update clause.
	TimestampColumn string
}

func (c UpsertConfig) columns() []string {
	if len(c.Columns) == 0 {
		return DefaultColumns
	}
	return c.Columns
}

// Builder returns the record builder for table: the user and store columns
// come from each record, the surrogate id is synthesized into the first
// column.
func (c UpsertConfig) Builder(table string) (*Builder, error) {
	cols := c.columns()
	if len(cols) != 3 {
		return nil, fmt.Errorf("%w: user/store projection needs 3 columns, got %d", ErrArity, len(cols))
	}
	spec := TableSpec{
		Source: Schema{Name: "users", Columns: []Column{{Name: cols[1]}, {Name: cols[2]}}},
		Dest:   Schema{Name: table, Columns: []Column{{Name: cols[0]}, {Name: cols[1]}, {Name: cols[2]}}},
	}
	return NewBuilder(spec, Options{
		TimestampColumn: c.TimestampColumn,
		SynthesizeMid:   true,
		MidColumn:       cols[0],
		SurrogateFirst:  true,
		Policy:          c.Policy,
		KeyColumns:      c.KeyColumns,
	})
}

// Records returns one record per resolved store of u.
func (c UpsertConfig) Records(u model.User) []Record {
	cols := c.columns()
	if len(cols) != 3 {
		return nil
	}
	recs := make([]Record, 0, len(u.StoreMids))
	for _, storeMid := range u.StoreMids {
		recs = append(recs, Record{{Name: cols[1], Value: u.Mid}, {Name: cols[2], Value: storeMid}})
	}
	return recs
}

// BuildUpsert builds the statement that grants u its resolved stores: one row
// [surrogate, u.Mid, storeMid] per entry of u.StoreMids. A user with no
// resolved stores yields a statement with zero rows.
func BuildUpsert(u model.User, table string, cfg UpsertConfig) (*Staged, error) {
	if cfg.IDs == nil {
		return nil, ErrNoGenerator
	}
	b, err := cfg.Builder(table)
	if err != nil {
		return nil, err
	}
	st := b.New()
	if err := b.Append(st, cfg.Records(u), cfg.IDs); err != nil {
		return nil, err
	}
	return st, nil
}

// updateClause returns col = <col> for every column except the keys and the
// timestamp.
func updateClause(cols, keys []string, timestampCol string) []Assign {
	out := make([]Assign, 0, len(cols))
	for _, c := range cols {
		if timestampCol != "" && strings.EqualFold(c, timestampCol) {
			continue
		}
		if containsFold(keys, c) {
			continue
		}
		out = append(out, EqualsSelf(c))
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
