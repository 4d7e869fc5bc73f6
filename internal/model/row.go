package model

import (
	"strings"

	"usermover/internal/parser/ints"
)

// UserRow is a raw tbl_users row as returned by a row source.
type UserRow struct {
	Name       string
	CGList     string
	SerialList string
	Mid        int64
	// NullMid is set when the source mid column was NULL.
	NullMid bool
}

// Skip describes a source row that was left out of the run.
type Skip struct {
	Name   string
	Reason string
}

// Decode turns a raw row into a User. ok is false when a required string
// field is empty or the mid is NULL; the returned Skip then says why.
func (r UserRow) Decode() (u User, skip Skip, ok bool) {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return User{}, Skip{Name: r.Name, Reason: "empty username"}, false
	case r.CGList == "":
		return User{}, Skip{Name: r.Name, Reason: "empty user_cg"}, false
	case r.SerialList == "":
		return User{}, Skip{Name: r.Name, Reason: "empty user_store_sn"}, false
	case r.NullMid:
		return User{}, Skip{Name: r.Name, Reason: "empty mid"}, false
	}

	u = NewUser(r.Name)
	u.CGs = ints.ParseList(r.CGList)
	u.SerialNumbers = ints.ParseList(r.SerialList)
	u.Mid = r.Mid
	return u, Skip{}, true
}

// MalformedTokens returns the tokens of the CG and serial lists that are not
// integers and are therefore dropped by Decode.
func (r UserRow) MalformedTokens() []string {
	_, cgs := ints.ParseListReport(r.CGList)
	_, sns := ints.ParseListReport(r.SerialList)
	return append(cgs, sns...)
}
