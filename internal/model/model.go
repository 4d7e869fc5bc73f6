// Package model holds the in-memory entities of a migration run: users read
// from tbl_users and stores read from tbl_store.
package model

// UnknownUserMid is the mid a User carries until its identity is read from
// source data.
const UnknownUserMid int64 = 3

// User is a single tbl_users row with its access rules decoded.
type User struct {
	// Name is the login name; never empty for users produced by a row source.
	Name string

	// Mid is the user's identity.
	Mid int64

	// CGs lists the consolidation groups the user may view.
	CGs []int32

	// SerialNumbers lists the store serial numbers the user may view.
	SerialNumbers []int32

	// StoreMids is computed by resolution and is empty until then.
	StoreMids []int64
}

// NewUser returns a User with the unknown-user mid and empty rule lists.
func NewUser(name string) User {
	return User{
		Name:          name,
		Mid:           UnknownUserMid,
		CGs:           []int32{},
		SerialNumbers: []int32{},
		StoreMids:     []int64{},
	}
}

// HasGroups reports whether the user has at least one consolidation group.
func (u User) HasGroups() bool { return len(u.CGs) > 0 }

// Store is a single tbl_store row.
type Store struct {
	Mid          int64
	CG           int32
	SerialNumber int32
}
