package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"usermover/internal/metrics"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func summaryCount(t *testing.T, v *prometheus.SummaryVec, step, status string) (uint64, float64) {
	t.Helper()
	m := &dto.Metric{}
	if err := v.WithLabelValues(step, status).(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("write summary: %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     string
		url     string
		wantJob string
		wantErr bool
	}{
		{name: "gateway required", job: "backfill", wantErr: true},
		{name: "default job name", url: "http://pushgateway:9091", wantJob: "usermover"},
		{name: "explicit job name", job: "storeuser-backfill", url: "http://pushgateway:9091", wantJob: "storeuser-backfill"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tt.job, tt.url)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q) = %v, %v; want nil, error", tt.job, tt.url, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend: %v", err)
			}
			if b.jobName != tt.wantJob || b.gatewayURL != tt.url {
				t.Fatalf("backend job=%q url=%q", b.jobName, b.gatewayURL)
			}
		})
	}
}

func TestBackend_RunMetrics(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("usermover", "http://example.com")
	if err != nil {
		t.Fatal(err)
	}

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"job": "j", "step": "load_users", "status": "success"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "write", "status": "failure"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.75, metrics.Labels{"step": "write", "status": "failure"})
	b.IncCounter(metrics.RecordsTotal, 4, metrics.Labels{"kind": metrics.KindRowsWritten})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": metrics.KindUsersFailed})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.IncCounter("unrelated_total", 9, nil)
	b.ObserveHistogram("unrelated_seconds", 9, nil)

	if got := counterValue(t, b.stepCounter.WithLabelValues("load_users", "success")); got != 1 {
		t.Errorf("step counter = %v, want 1", got)
	}
	if n, sum := summaryCount(t, b.stepDuration, "write", "failure"); n != 2 || sum != 1 {
		t.Errorf("write summary = %d samples, sum %v; want 2, 1", n, sum)
	}
	if got := counterValue(t, b.recordCounter.WithLabelValues(metrics.KindRowsWritten)); got != 4 {
		t.Errorf("rows_written = %v, want 4", got)
	}
	if got := counterValue(t, b.recordCounter.WithLabelValues(metrics.KindUsersFailed)); got != 1 {
		t.Errorf("users_failed = %v, want 1", got)
	}
	if got := counterValue(t, b.batchCounter); got != 2 {
		t.Errorf("batches = %v, want 2", got)
	}
}

func TestBackend_ZeroValue(t *testing.T) {
	t.Parallel()
	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "resolve", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 1, metrics.Labels{"kind": metrics.KindUsersRead})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
}

func TestFlush_PushesToGateway(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path, body string
	}
	got := make(chan pushed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- pushed{r.Method, r.URL.Path, string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("storeuser-backfill", srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.RecordsTotal, 3, metrics.Labels{"kind": metrics.KindUsersRead})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var p pushed
	select {
	case p = <-got:
	default:
		t.Fatal("Flush sent nothing to the gateway")
	}
	if p.method != http.MethodPut {
		t.Errorf("method = %s, want PUT", p.method)
	}
	if !strings.Contains(p.path, "/job/storeuser-backfill") {
		t.Errorf("path = %s, want the job grouping key", p.path)
	}
	if p.body == "" {
		t.Error("empty push body")
	}
}

func BenchmarkIncCounterRecords(b *testing.B) {
	backend, err := NewBackend("usermover", "http://example.com")
	if err != nil {
		b.Fatal(err)
	}
	labels := metrics.Labels{"kind": metrics.KindRowsWritten}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RecordsTotal, 1, labels)
	}
}
