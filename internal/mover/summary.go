package mover

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary reports what a run did.
type Summary struct {
	RunID  string
	DryRun bool

	UsersRead    int
	UsersSkipped int
	// UsersResolved counts users granted at least one store.
	UsersResolved int
	// UsersEmpty counts users granted no store; no statement is sent for them.
	UsersEmpty  int
	UsersFailed int
	Stores      int

	Statements    int
	Batches       int
	BatchesFailed int
	// RowsWritten counts rows of statements that succeeded. In a dry run it
	// counts the rows that would have been sent.
	RowsWritten  int64
	RowsAffected int64

	FirstID  int64
	Duration time.Duration
}

// Failed reports whether any user or batch failed.
func (s Summary) Failed() bool { return s.UsersFailed > 0 || s.BatchesFailed > 0 }

// RowsPerSecond is the write throughput of the run.
func (s Summary) RowsPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.RowsWritten) / s.Duration.Seconds()
}

func (s Summary) String() string {
	verb := "written"
	if s.DryRun {
		verb = "planned"
	}
	return fmt.Sprintf(
		"users read=%s skipped=%s resolved=%s empty=%s failed=%s; stores=%s; rows %s=%s in %s (%s rows/s)",
		humanize.Comma(int64(s.UsersRead)),
		humanize.Comma(int64(s.UsersSkipped)),
		humanize.Comma(int64(s.UsersResolved)),
		humanize.Comma(int64(s.UsersEmpty)),
		humanize.Comma(int64(s.UsersFailed)),
		humanize.Comma(int64(s.Stores)),
		verb,
		humanize.Comma(s.RowsWritten),
		s.Duration.Truncate(time.Millisecond),
		humanize.CommafWithDigits(s.RowsPerSecond(), 1),
	)
}
