package statement

import (
	"fmt"
	"strings"
	"time"

	"usermover/internal/idgen"
)

// ColumnType is the coarse type of a schema column. Only the distinctions the
// builder acts on are modeled.
type ColumnType int

const (
	TypeOther ColumnType = iota
	TypeDateTime
	// TypeTimestamp is a database-maintained TIMESTAMP column.
	TypeTimestamp
)

// Column is a named, typed column of a table schema.
type Column struct {
	Name string
	Type ColumnType
}

// Schema describes one side of a copy: the source the records come from or
// the destination table they are written to.
type Schema struct {
	Name    string
	Columns []Column

	// HashFields lists destination columns fed into the synthesized hash.
	HashFields []string
}

// Has reports whether the schema contains column name (case-insensitive).
func (s Schema) Has(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// Column looks up a column by name (case-insensitive).
func (s Schema) Column(name string) (Column, bool) {
	if name == "" {
		return Column{}, false
	}
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered list of source fields.
type Record []Field

// Get returns the value of field name (case-insensitive).
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether the record carries field name.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Options toggles the per-table transformations applied by a Builder. The
// zero value projects source columns that exist in the destination, and
// nothing else.
type Options struct {
	// Rename maps source field names to destination column names.
	Rename map[string]string
	// DropColumns lists destination columns never written.
	DropColumns []string

	// TimestampColumn is the database-maintained timestamp column. It is never
	// assigned in the update clause.
	TimestampColumn string
	// SuppressTimestamp leaves TimestampColumn out so the database stamps it.
	SuppressTimestamp bool

	// SynthesizeHash fills HashColumn from the destination's HashFields when
	// the destination has HashColumn, the source does not, and the
	// destination has no SecondaryHashColumn.
	SynthesizeHash      bool
	HashColumn          string
	SecondaryHashColumn string

	// SuppressLegacyID drops LegacyIDColumn when the destination has the
	// newer IDColumn; records that only carry the legacy id have it written
	// to IDColumn.
	SuppressLegacyID bool
	LegacyIDColumn   string
	IDColumn         string

	// SynthesizeMid adds a surrogate MidColumn when the destination has it
	// and the source does not. It is projected last unless SurrogateFirst.
	SynthesizeMid  bool
	MidColumn      string
	SurrogateFirst bool

	// NullSentinel is a string value written as SQL NULL.
	NullSentinel string

	Policy ConflictPolicy

	// KeyColumns is the conflict target. It defaults to the synthesized
	// surrogate, else the first projected column. Key columns are never
	// assigned in the update clause.
	KeyColumns []string
}

// DefaultOptions returns the replication settings of the legacy tables:
// time_stamp suppressed, hasha synthesized, rid folded into record_id, mid
// synthesized, mid_timestamp dropped, "\N" as NULL, update on conflict.
func DefaultOptions() Options {
	return Options{
		DropColumns:         []string{"mid_timestamp"},
		TimestampColumn:     "time_stamp",
		SuppressTimestamp:   true,
		SynthesizeHash:      true,
		HashColumn:          "hasha",
		SecondaryHashColumn: "hashb",
		SuppressLegacyID:    true,
		LegacyIDColumn:      "rid",
		IDColumn:            "record_id",
		SynthesizeMid:       true,
		MidColumn:           "mid",
		NullSentinel:        `\N`,
		Policy:              PolicyUpdate,
		KeyColumns:          []string{"mid"},
	}
}

// TableSpec pairs the source and destination schemas of a copy.
type TableSpec struct {
	Source Schema
	Dest   Schema
}

// Builder is the compiled projection of one TableSpec under one set of
// Options. It is immutable and safe for concurrent use.
type Builder struct {
	spec    TableSpec
	opts    Options
	p       *plan
	keys    []string
	updates []Assign
}

// NewBuilder compiles the projection of a TableSpec under opts.
func NewBuilder(spec TableSpec, opts Options) (*Builder, error) {
	p, err := newPlan(spec, opts)
	if err != nil {
		return nil, err
	}
	b := &Builder{spec: spec, opts: opts, p: p}

	switch {
	case len(opts.KeyColumns) > 0:
		b.keys = append([]string(nil), opts.KeyColumns...)
	case p.midAt >= 0:
		b.keys = []string{p.cols[p.midAt]}
	default:
		b.keys = []string{p.cols[0]}
	}

	if opts.Policy == PolicyUpdate {
		b.updates = updateClause(p.cols, b.keys, opts.TimestampColumn)
		if len(b.updates) == 0 {
			return nil, fmt.Errorf("%w: nothing left to update in %s", ErrMalformed, spec.Dest.Name)
		}
	}
	return b, nil
}

// Columns returns the projected destination columns.
func (b *Builder) Columns() []string {
	return append([]string(nil), b.p.cols...)
}

// KeyColumns returns the conflict target.
func (b *Builder) KeyColumns() []string {
	return append([]string(nil), b.keys...)
}

// NeedsIDs reports whether rows carry a synthesized surrogate.
func (b *Builder) NeedsIDs() bool { return b.p.midAt >= 0 }

// New returns an empty statement with the builder's projection and conflict
// clause.
func (b *Builder) New() *Staged {
	st := newStaged(b.spec.Dest.Name, b.opts.Policy == PolicyIgnore, b.p.cols)
	st.KeyColumns = b.KeyColumns()
	if len(b.updates) > 0 {
		st.Stages = append(st.Stages, Stage{
			Op:      OpOnDuplicateKeyUpdate,
			Updates: append([]Assign(nil), b.updates...),
		})
	}
	return st
}

// Row converts one record into a value row aligned to Columns.
func (b *Builder) Row(rec Record, ids idgen.Generator) ([]any, error) {
	if b.NeedsIDs() && ids == nil {
		return nil, ErrNoGenerator
	}
	return b.p.row(rec, b.spec, b.opts, ids)
}

// Append converts recs and adds them to st.
func (b *Builder) Append(st *Staged, recs []Record, ids idgen.Generator) error {
	for i, rec := range recs {
		row, err := b.Row(rec, ids)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := st.AddRow(row); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}

// BuildRecords builds a staged statement copying recs into spec.Dest. ids is
// required only when a mid column is synthesized.
func BuildRecords(recs []Record, spec TableSpec, opts Options, ids idgen.Generator) (*Staged, error) {
	b, err := NewBuilder(spec, opts)
	if err != nil {
		return nil, err
	}
	if b.NeedsIDs() && ids == nil {
		return nil, ErrNoGenerator
	}
	st := b.New()
	if err := b.Append(st, recs, ids); err != nil {
		return nil, err
	}
	return st, nil
}

// plan is the per-table projection a Builder computes once.
type plan struct {
	cols   []string // projected destination columns, in order
	srcOf  []string // source field per column; "" for synthesized columns
	hashAt int      // index of the synthesized hash, or -1
	midAt  int      // index of the synthesized mid, or -1
}

func (p *plan) synthesized(i int) bool { return i == p.hashAt || i == p.midAt }

func newPlan(spec TableSpec, opts Options) (*plan, error) {
	if strings.TrimSpace(spec.Dest.Name) == "" {
		return nil, fmt.Errorf("%w: destination table has no name", ErrMalformed)
	}

	srcFor := make(map[string]string, len(spec.Source.Columns)) // dest (lower) -> source
	for _, c := range spec.Source.Columns {
		dst := c.Name
		if to, ok := lookupFold(opts.Rename, c.Name); ok {
			dst = to
		}
		srcFor[strings.ToLower(dst)] = c.Name
	}
	excluded := make(map[string]bool, len(opts.DropColumns))
	for _, e := range opts.DropColumns {
		excluded[strings.ToLower(e)] = true
	}

	hash := opts.SynthesizeHash &&
		spec.Dest.Has(opts.HashColumn) &&
		!spec.Source.Has(opts.HashColumn) &&
		!spec.Dest.Has(opts.SecondaryHashColumn)
	mid := opts.SynthesizeMid &&
		spec.Dest.Has(opts.MidColumn) &&
		!spec.Source.Has(opts.MidColumn)
	foldLegacy := opts.SuppressLegacyID && spec.Dest.Has(opts.IDColumn)

	p := &plan{hashAt: -1, midAt: -1}
	add := func(col, src string) {
		p.cols = append(p.cols, col)
		p.srcOf = append(p.srcOf, src)
	}
	if mid && opts.SurrogateFirst {
		p.midAt = 0
		add(opts.MidColumn, "")
	}

	for _, c := range spec.Dest.Columns {
		key := strings.ToLower(c.Name)
		switch {
		case excluded[key]:
			continue
		case opts.SuppressTimestamp && strings.EqualFold(c.Name, opts.TimestampColumn):
			continue
		case foldLegacy && strings.EqualFold(c.Name, opts.LegacyIDColumn):
			continue
		case hash && strings.EqualFold(c.Name, opts.HashColumn):
			continue
		case mid && strings.EqualFold(c.Name, opts.MidColumn):
			continue
		}

		src, ok := srcFor[key]
		if !ok && foldLegacy && strings.EqualFold(c.Name, opts.IDColumn) {
			if legacy, has := spec.Source.Column(opts.LegacyIDColumn); has {
				src, ok = legacy.Name, true
			}
		}
		if !ok {
			continue
		}
		add(c.Name, src)
	}

	if hash {
		p.hashAt = len(p.cols)
		add(opts.HashColumn, "")
	}
	if mid && !opts.SurrogateFirst {
		p.midAt = len(p.cols)
		add(opts.MidColumn, "")
	}
	if len(p.cols) == 0 {
		return nil, fmt.Errorf("%w: no columns to project into %s", ErrMalformed, spec.Dest.Name)
	}
	return p, nil
}

func (p *plan) row(rec Record, spec TableSpec, opts Options, ids idgen.Generator) ([]any, error) {
	row := make([]any, len(p.cols))
	for i, col := range p.cols {
		if p.synthesized(i) {
			continue
		}
		v, ok := rec.Get(p.srcOf[i])
		if !ok && opts.SuppressLegacyID && strings.EqualFold(col, opts.IDColumn) {
			v, _ = rec.Get(opts.LegacyIDColumn)
		}
		dc, _ := spec.Dest.Column(col)
		cv, err := convert(v, dc, opts.NullSentinel)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		row[i] = cv
	}

	if p.hashAt >= 0 {
		vals := make([]any, 0, len(spec.Dest.HashFields))
		for _, f := range spec.Dest.HashFields {
			vals = append(vals, p.valueFor(row, f))
		}
		row[p.hashAt] = Hash63(vals...)
	}
	if p.midAt >= 0 {
		row[p.midAt] = ids.Next()
	}
	return row, nil
}

// valueFor returns the projected record value of column name, or nil.
func (p *plan) valueFor(row []any, name string) any {
	for i, c := range p.cols {
		if !p.synthesized(i) && strings.EqualFold(c, name) {
			return row[i]
		}
	}
	return nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convert(v any, c Column, nullSentinel string) (any, error) {
	s, isStr := v.(string)
	if isStr && nullSentinel != "" && s == nullSentinel {
		return nil, nil
	}
	if !isStr || (c.Type != TypeDateTime && c.Type != TypeTimestamp) {
		return v, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unparsable datetime %q", s)
}

func lookupFold(m map[string]string, key string) (string, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}
