// Package ints decodes the pipe-delimited integer lists stored in legacy
// tbl_users columns (user_cg, user_store_sn).
package ints

import (
	"strconv"
	"strings"
)

const (
	// Delimiter separates list entries, e.g. "12|7|30".
	Delimiter = "|"

	// EmptySentinel is the legacy encoding for "no entries". It is never
	// parsed as a number.
	EmptySentinel = "4"
)

// ParseList returns the integers of a pipe-delimited list in input order.
//
// The sentinel "4" and blank input yield an empty, non-nil slice. Tokens that
// are not valid 32-bit signed integers are skipped; duplicates are kept.
func ParseList(raw string) []int32 {
	out, _ := ParseListReport(raw)
	return out
}

// ParseListReport is ParseList that also returns the tokens it dropped, so
// callers can log malformed source data.
func ParseListReport(raw string) (vals []int32, dropped []string) {
	vals = []int32{}
	if raw == EmptySentinel || strings.TrimSpace(raw) == "" {
		return vals, nil
	}

	for _, tok := range strings.Split(raw, Delimiter) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseInt(tok, 10, 32)
		if err != nil {
			dropped = append(dropped, tok)
			continue
		}
		vals = append(vals, int32(n))
	}
	return vals, dropped
}
