package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"usermover/internal/config"
	"usermover/internal/metrics"
	"usermover/internal/metrics/datadog"
	"usermover/internal/metrics/prompush"
)

// setupMetrics installs the backend named by job.Metrics and returns the
// function flushing it at exit. An unknown backend leaves metrics disabled.
func setupMetrics(job config.Job, log *zap.SugaredLogger) (func(), error) {
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Warnw("metrics flush failed", "backend", job.Metrics.Backend, "error", err)
		}
	}

	jobName := job.Job
	if jobName == "" {
		jobName = "usermover"
	}

	switch strings.ToLower(strings.TrimSpace(job.Metrics.Backend)) {
	case "pushgateway", "prom", "prometheus":
		b, err := prompush.NewBackend(jobName, job.Metrics.PushgatewayURL)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		log.Infow("metrics enabled", "backend", "pushgateway", "url", job.Metrics.PushgatewayURL, "job_name", jobName)
		return flush, nil

	case "datadog", "dd":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       job.Metrics.DatadogAddr,
			GlobalTags: []string{"job:" + jobName},
		})
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		metrics.SetBackend(b)
		log.Infow("metrics enabled", "backend", "datadog", "addr", job.Metrics.DatadogAddr)
		return flush, nil

	case "", "none":
		log.Debugw("metrics disabled")
		return func() {}, nil

	default:
		log.Warnw("unknown metrics backend; metrics disabled", "backend", job.Metrics.Backend)
		return func() {}, nil
	}
}
