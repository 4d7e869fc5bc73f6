// Package statement builds dialect-agnostic bulk write statements.
//
// A Staged statement is an ordered list of stages:
//
//	Insert | InsertIgnore   target table
//	Project                 ordered column list
//	Values                  rows, positionally aligned to Project
//	OnDuplicateKeyUpdate    optional; col = <col> assignments
//
// Renderers (internal/sqlgen) turn a Staged statement into SQL for a given
// dialect. Nothing in this package talks to a database.
package statement

import (
	"errors"
	"fmt"
)

// Op is the kind of a Stage.
type Op int

const (
	OpInsert Op = iota + 1
	OpInsertIgnore
	OpProject
	OpValues
	OpOnDuplicateKeyUpdate
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "Insert"
	case OpInsertIgnore:
		return "InsertIgnore"
	case OpProject:
		return "Project"
	case OpValues:
		return "Values"
	case OpOnDuplicateKeyUpdate:
		return "OnDuplicateKeyUpdate"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

var (
	// ErrArity is returned when a row does not match the projected columns.
	ErrArity = errors.New("statement: row arity does not match projected columns")
	// ErrMalformed is returned for a stage list that is out of order or
	// missing a required stage.
	ErrMalformed = errors.New("statement: malformed stage list")
)

// Assign is a symbolic update item: Column takes the value the insert
// attempted for Source. EqualsSelf(c) is the common case.
type Assign struct {
	Column string
	Source string
}

// EqualsSelf returns the assignment col = <incoming col>.
func EqualsSelf(col string) Assign { return Assign{Column: col, Source: col} }

// Stage is one step of a Staged statement. Only the fields relevant to Op are
// set.
type Stage struct {
	Op      Op
	Table   string
	Columns []string
	Rows    [][]any
	Updates []Assign
}

// Staged is the intermediate representation of a bulk insert-or-update.
type Staged struct {
	Stages []Stage

	// KeyColumns names the unique key a conflict is detected on. Dialects
	// that need an explicit conflict target (Postgres, SQLite, SQL Server)
	// use it; MySQL ignores it.
	KeyColumns []string
}

func (s *Staged) find(op Op) *Stage {
	for i := range s.Stages {
		if s.Stages[i].Op == op {
			return &s.Stages[i]
		}
	}
	return nil
}

// Table returns the target table and whether conflicting rows are skipped.
func (s *Staged) Table() (table string, ignore bool) {
	if len(s.Stages) == 0 {
		return "", false
	}
	first := s.Stages[0]
	return first.Table, first.Op == OpInsertIgnore
}

// Columns returns the projected columns.
func (s *Staged) Columns() []string {
	if p := s.find(OpProject); p != nil {
		return p.Columns
	}
	return nil
}

// Rows returns the value rows.
func (s *Staged) Rows() [][]any {
	if v := s.find(OpValues); v != nil {
		return v.Rows
	}
	return nil
}

// RowCount returns the number of value rows.
func (s *Staged) RowCount() int { return len(s.Rows()) }

// Updates returns the update clause, or nil when the statement has none.
func (s *Staged) Updates() []Assign {
	if u := s.find(OpOnDuplicateKeyUpdate); u != nil {
		return u.Updates
	}
	return nil
}

// AddRow appends a row to the Values stage after checking its arity.
func (s *Staged) AddRow(row []any) error {
	v := s.find(OpValues)
	if v == nil {
		return fmt.Errorf("%w: no Values stage", ErrMalformed)
	}
	if want := len(s.Columns()); len(row) != want {
		return fmt.Errorf("%w: got %d values, want %d", ErrArity, len(row), want)
	}
	v.Rows = append(v.Rows, row)
	return nil
}

// Validate checks stage order and the arity invariant.
func (s *Staged) Validate() error {
	if len(s.Stages) < 3 {
		return fmt.Errorf("%w: %d stages", ErrMalformed, len(s.Stages))
	}
	want := []Op{0, OpProject, OpValues}
	for i, st := range s.Stages {
		switch {
		case i == 0:
			if st.Op != OpInsert && st.Op != OpInsertIgnore {
				return fmt.Errorf("%w: stage 0 is %s", ErrMalformed, st.Op)
			}
			if st.Table == "" {
				return fmt.Errorf("%w: empty target table", ErrMalformed)
			}
		case i < len(want):
			if st.Op != want[i] {
				return fmt.Errorf("%w: stage %d is %s, want %s", ErrMalformed, i, st.Op, want[i])
			}
		case i == 3:
			if st.Op != OpOnDuplicateKeyUpdate {
				return fmt.Errorf("%w: stage 3 is %s", ErrMalformed, st.Op)
			}
			if s.Stages[0].Op == OpInsertIgnore {
				return fmt.Errorf("%w: InsertIgnore with update clause", ErrMalformed)
			}
			if len(st.Updates) == 0 {
				return fmt.Errorf("%w: empty update clause", ErrMalformed)
			}
		default:
			return fmt.Errorf("%w: unexpected stage %d (%s)", ErrMalformed, i, st.Op)
		}
	}

	cols := s.Stages[1].Columns
	if len(cols) == 0 {
		return fmt.Errorf("%w: no projected columns", ErrMalformed)
	}
	for i, row := range s.Stages[2].Rows {
		if len(row) != len(cols) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrArity, i, len(row), len(cols))
		}
	}
	return nil
}

// newStaged returns an Insert/Project/Values statement with no rows.
func newStaged(table string, ignore bool, cols []string) *Staged {
	op := OpInsert
	if ignore {
		op = OpInsertIgnore
	}
	return &Staged{
		Stages: []Stage{
			{Op: op, Table: table},
			{Op: OpProject, Columns: append([]string(nil), cols...)},
			{Op: OpValues, Rows: [][]any{}},
		},
	}
}

// Split returns st as consecutive statements of at most n rows each, sharing
// the target, projection and conflict clause. It returns st itself when
// n <= 0 or the rows already fit.
func (s *Staged) Split(n int) []*Staged {
	rows := s.Rows()
	if n <= 0 || len(rows) <= n {
		return []*Staged{s}
	}
	out := make([]*Staged, 0, (len(rows)+n-1)/n)
	for lo := 0; lo < len(rows); lo += n {
		hi := min(lo+n, len(rows))
		part := &Staged{
			Stages:     make([]Stage, len(s.Stages)),
			KeyColumns: s.KeyColumns,
		}
		copy(part.Stages, s.Stages)
		for i := range part.Stages {
			if part.Stages[i].Op == OpValues {
				part.Stages[i].Rows = rows[lo:hi:hi]
			}
		}
		out = append(out, part)
	}
	return out
}
