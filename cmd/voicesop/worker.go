package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/events"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/retention"
	"github.com/fyrsmithlabs/voicesop/internal/store"
	"github.com/fyrsmithlabs/voicesop/internal/telemetry"
	"github.com/fyrsmithlabs/voicesop/internal/workflows"
)

var skipRetention bool

func init() {
	workerCmd.Flags().BoolVar(&skipRetention, "no-retention", false, "do not run the webhook log retention scheduler")
	rootCmd.AddCommand(workerCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the async pipeline worker",
	Long: `Run the Temporal worker that processes queued end-of-call reports:
store the conversation, write the SOP, create the Google Doc, and deliver it
through the CRM. The worker also removes old webhook audit rows.

Requires DATABASE_URL and GOOGLE_CREDENTIALS_PATH.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	cfg, logger, cleanup, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}

	logger.Info(ctx, "voicesop worker starting",
		zap.String("version", version),
		zap.String("temporal_host", cfg.Temporal.HostPort),
		zap.String("task_queue", cfg.Temporal.TaskQueue))

	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer shutdownTelemetry(tel, logger)

	st, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cl, err := newClients(cfg, logger)
	if err != nil {
		return err
	}
	docs, err := newDocs(ctx, cfg.Google, logger)
	if err != nil {
		return fmt.Errorf("initializing google docs: %w", err)
	}

	publisher, err := events.Open(cfg.Events)
	if err != nil {
		return fmt.Errorf("opening events publisher: %w", err)
	}
	defer func() { _ = publisher.Close() }()

	m := metrics.New()

	if !skipRetention {
		sched, err := retention.NewScheduler(st, logger,
			retention.WithInterval(cfg.Retention.Interval.Duration()),
			retention.WithMaxAge(cfg.Retention.MaxAge.Duration()),
			retention.WithMetrics(m),
		)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	tc, err := workflows.Dial(cfg.Temporal, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	w := workflows.NewWorker(tc, cfg.Temporal.TaskQueue, &workflows.Activities{
		Recorder:  workflows.SessionRecorder{Store: st},
		Generator: cl.generator,
		Docs:      docs,
		CRM:       cl.ghl,
		Events:    publisher,
		Metrics:   m,
		Logger:    logger,
	})

	if err := w.Start(); err != nil {
		return fmt.Errorf("worker error: %w", err)
	}
	logger.Info(ctx, "worker started, waiting for tasks")

	<-ctx.Done()
	logger.Info(ctx, "shutdown signal received")
	w.Stop()
	logger.Info(ctx, "worker stopped gracefully")
	return nil
}
