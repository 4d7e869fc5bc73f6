// Package resolve expands a user's access rules (consolidation groups or
// explicit serial numbers) into the mids of the stores the user may access.
package resolve

import "usermover/internal/model"

// Field selects the store attribute a rule matches against.
type Field int

const (
	// ByCG matches Store.CG.
	ByCG Field = iota
	// BySerial matches Store.SerialNumber.
	BySerial
)

func (f Field) String() string {
	switch f {
	case ByCG:
		return "cg"
	case BySerial:
		return "serial"
	default:
		return "unknown"
	}
}

// Mode reports which rule kind resolved a user.
type Mode int

const (
	// ModeNone means the user had no consolidation groups and got no stores.
	ModeNone Mode = iota
	ModeSerial
	ModeGroup
)

func (m Mode) String() string {
	switch m {
	case ModeSerial:
		return "serial"
	case ModeGroup:
		return "group"
	default:
		return "none"
	}
}

// Filter returns every catalog entry whose field equals want, in catalog
// order.
func Filter(catalog []model.Store, field Field, want int32) []model.Store {
	var out []model.Store
	for _, s := range catalog {
		var v int32
		switch field {
		case ByCG:
			v = s.CG
		case BySerial:
			v = s.SerialNumber
		default:
			continue
		}
		if v == want {
			out = append(out, s)
		}
	}
	return out
}

// Resolve returns the store mids u may access.
//
// A user without consolidation groups gets nothing. When the user lists
// serial numbers, only serial matching is used; otherwise stores are matched
// by group. Results are concatenated in rule order and are not deduplicated.
func Resolve(u model.User, catalog []model.Store) []int64 {
	mids, _ := resolve(u, catalog)
	return mids
}

// ModeFor reports which rule kind Resolve applies to u.
func ModeFor(u model.User) Mode {
	switch {
	case !u.HasGroups():
		return ModeNone
	case len(u.SerialNumbers) > 0:
		return ModeSerial
	default:
		return ModeGroup
	}
}

func resolve(u model.User, catalog []model.Store) ([]int64, Mode) {
	mids := []int64{}
	mode := ModeFor(u)

	var (
		field Field
		rules []int32
	)
	switch mode {
	case ModeSerial:
		field, rules = BySerial, u.SerialNumbers
	case ModeGroup:
		field, rules = ByCG, u.CGs
	default:
		return mids, mode
	}

	for _, want := range rules {
		for _, s := range Filter(catalog, field, want) {
			mids = append(mids, s.Mid)
		}
	}
	return mids, mode
}

// Stats counts users per resolution outcome.
type Stats struct {
	Serial int
	Group  int
	None   int
	// Empty counts users that had rules but matched no store.
	Empty int
	// Stores is the total number of store mids appended.
	Stores int
}

// Apply resolves every user in place, appending to StoreMids.
func Apply(users []model.User, catalog []model.Store) Stats {
	var st Stats
	for i := range users {
		mids, mode := resolve(users[i], catalog)
		switch mode {
		case ModeSerial:
			st.Serial++
		case ModeGroup:
			st.Group++
		default:
			st.None++
		}
		if mode != ModeNone && len(mids) == 0 {
			st.Empty++
		}
		if users[i].StoreMids == nil {
			users[i].StoreMids = []int64{}
		}
		users[i].StoreMids = append(users[i].StoreMids, mids...)
		st.Stores += len(mids)
	}
	return st
}
