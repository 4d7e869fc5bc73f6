// Package metrics records operational metrics of a mover run behind a small,
// backend-agnostic interface.
//
// The global backend defaults to a no-op, so instrumented code can always
// call into the package. Concrete systems live in subpackages (prompush,
// datadog) and are installed with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by all backends.
const (
	StepTotal           = "usermover_step_total"
	StepDurationSeconds = "usermover_step_duration_seconds"
	RecordsTotal        = "usermover_records_total"
	BatchesTotal        = "usermover_batches_total"
)

// Record kinds.
const (
	KindUsersRead     = "users_read"
	KindUsersSkipped  = "users_skipped"
	KindUsersResolved = "users_resolved"
	KindUsersEmpty    = "users_empty"
	KindUsersFailed   = "users_failed"
	KindStoresRead    = "stores_read"
	KindRowsWritten   = "rows_written"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a run step and records its duration,
// labelled with success or failure.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments the record counter for the given job and kind.
// Non-positive deltas are ignored.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}
