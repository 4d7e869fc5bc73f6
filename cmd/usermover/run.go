package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"usermover/internal/config"
	"usermover/internal/logging"
	"usermover/internal/mover"
	"usermover/internal/storage"
)

// errPartial is returned when the run finished but some users or batches
// failed.
var errPartial = errors.New("run finished with failures")

type runOptions struct {
	cfgPath        string
	dryRun         bool
	metricsBackend string
	pushgatewayURL string
	logLevel       string
	logFormat      string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.Load(opts.cfgPath)
			if err != nil {
				return err
			}
			applyOverrides(cmd.Flags(), opts, &job)
			return runJob(cmd, job)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&opts.cfgPath, "config", "job.json", "job file path (JSON)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "render and log statements without executing them")
	fs.StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides metrics.backend)")
	fs.StringVar(&opts.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides metrics.pushgateway_url)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format: console or json (overrides log.format)")
	return cmd
}

// applyOverrides copies the flags the user set onto job. Unset flags keep the
// job file and environment values.
func applyOverrides(fs *pflag.FlagSet, opts runOptions, job *config.Job) {
	if fs.Changed("dry-run") {
		job.Runtime.DryRun = opts.dryRun
	}
	if fs.Changed("metrics-backend") {
		job.Metrics.Backend = opts.metricsBackend
	}
	if fs.Changed("pushgateway-url") {
		job.Metrics.PushgatewayURL = opts.pushgatewayURL
	}
	if fs.Changed("log-level") {
		job.Log.Level = opts.logLevel
	}
	if fs.Changed("log-format") {
		job.Log.Format = opts.logFormat
	}
}

func runJob(cmd *cobra.Command, job config.Job) error {
	logger, undo, err := logging.Setup(job.Log.Level, job.Log.Format)
	if err != nil {
		return err
	}
	defer undo()
	defer func() { _ = logger.Sync() }()
	log := zap.S().Named("cli")

	warnings, err := config.Check(job)
	for _, w := range warnings {
		log.Warnw("job config", "path", w.Path, "message", w.Message)
	}
	if err != nil {
		return err
	}

	flush, err := setupMetrics(job, log)
	if err != nil {
		return err
	}
	defer flush()

	ctx := cmd.Context()
	scfg := storage.Config{
		Kind:       job.Storage.Kind,
		DSN:        job.Storage.DB.DSN,
		Table:      job.Storage.DB.Table,
		Columns:    job.Upsert.Columns,
		KeyColumns: job.Upsert.KeyColumns,
	}
	repo, err := storage.New(ctx, scfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if job.Storage.DB.AutoCreateTable {
		if err := storage.EnsureTable(ctx, scfg, job.Upsert.TimestampColumn, repo); err != nil {
			return fmt.Errorf("create %s: %w", scfg.Table, err)
		}
		log.Infow("join table ensured", "table", scfg.Table, "kind", scfg.Kind)
	}

	sum, err := mover.Run(ctx, repo, job)
	fmt.Fprintln(cmd.OutOrStdout(), sum.String())
	if err != nil {
		return err
	}
	if sum.Failed() {
		return fmt.Errorf("%w: %d users, %d batches", errPartial, sum.UsersFailed, sum.BatchesFailed)
	}
	return nil
}
