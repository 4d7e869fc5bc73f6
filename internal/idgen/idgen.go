// Package idgen produces the surrogate row ids ("mid") written to join
// tables. A Sequence is created once per run and shared by every statement
// built during that run.
package idgen

import (
	"sync/atomic"
	"time"
)

// Generator hands out surrogate ids. No two calls on the same Generator may
// return the same value.
type Generator interface {
	Next() int64
}

// Sequence is a strictly increasing counter. It is safe for concurrent use.
type Sequence struct {
	last atomic.Int64
}

// NewSequence returns a Sequence whose first id is start.
func NewSequence(start int64) *Sequence {
	s := &Sequence{}
	s.last.Store(start - 1)
	return s
}

// Next returns the next id.
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// Peek returns the id the next call to Next will return.
func (s *Sequence) Peek() int64 {
	return s.last.Load() + 1
}

// ClockSeed derives a start value from t: microseconds since the Unix epoch.
// It leaves room for ~1e6 ids per second of wall time between runs.
func ClockSeed(t time.Time) int64 {
	return t.UnixMicro()
}

// Seed picks the start value for a run: configured wins, then one past the
// highest id already stored, then the clock.
func Seed(configured, storedMax int64, now time.Time) int64 {
	switch {
	case configured > 0:
		return configured
	case storedMax > 0:
		return storedMax + 1
	default:
		return ClockSeed(now)
	}
}
