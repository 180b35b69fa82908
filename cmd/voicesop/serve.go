package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/dedup"
	"github.com/fyrsmithlabs/voicesop/internal/events"
	apihttp "github.com/fyrsmithlabs/voicesop/internal/http"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
	"github.com/fyrsmithlabs/voicesop/internal/scrub"
	"github.com/fyrsmithlabs/voicesop/internal/store"
	"github.com/fyrsmithlabs/voicesop/internal/telemetry"
	"github.com/fyrsmithlabs/voicesop/internal/workflows"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Start the HTTP server that receives voice platform and relay webhooks.

With PIPELINE_ASYNC=true, end-of-call reports are queued on Temporal and
processed by "voicesop worker". Otherwise the pipeline runs in the request.

Examples:
  # Start with .env in the working directory
  voicesop serve

  # Use a config file
  voicesop serve --config /etc/voicesop.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	cfg, logger, cleanup, err := bootstrap(false)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info(ctx, "starting voicesop",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Bool("async", cfg.Pipeline.Async),
		zap.Bool("lindy_enabled", cfg.Lindy.Enabled()))

	tel, err := telemetry.New(ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer shutdownTelemetry(tel, logger)

	deps, err := initServeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	var redactor apihttp.Redactor
	if cfg.Server.RedactAudit {
		redactor = scrub.MustNew(nil)
	}

	srv, err := apihttp.NewServer(apihttp.Deps{
		Pipeline:    deps.orchestrator,
		Assistants:  deps.clients.vapi,
		Enqueuer:    deps.enqueuer,
		Guard:       deps.guard,
		Recorder:    deps.recorder,
		Redactor:    redactor,
		Metrics:     deps.metrics,
		HTTPMetrics: apihttp.NewHTTPMetrics(logger),
		Logger:      logger,
		LindySecret: cfg.Lindy.WebhookSecret,
		Config:      cfg.Server,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown error", zap.Error(err))
		return err
	}
	logger.Info(shutdownCtx, "server stopped gracefully")
	return nil
}

// serveDependencies holds everything the HTTP server needs.
type serveDependencies struct {
	clients      *clients
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Metrics
	guard        dedup.Guard
	enqueuer     apihttp.Enqueuer
	recorder     apihttp.Recorder
	closers      []func() error
	logger       *logging.Logger
}

// Close releases resources in reverse order of acquisition.
func (d *serveDependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn(context.Background(), "failed to release resource", zap.Error(err))
		}
	}
}

// initServeDependencies connects the optional backends: Redis for call
// dedup, the database for the audit log, the event bus, and Temporal when
// the pipeline is async.
func initServeDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *serveDependencies, err error) {
	d := &serveDependencies{metrics: metrics.New(), logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	if d.clients, err = newClients(cfg, logger); err != nil {
		return nil, err
	}

	publisher, err := events.Open(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("opening events publisher: %w", err)
	}
	d.closers = append(d.closers, publisher.Close)

	guard, closeGuard, err := dedup.Open(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	d.guard = guard
	d.closers = append(d.closers, closeGuard)

	if cfg.Database.URL != "" {
		st, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		d.recorder = st
		d.closers = append(d.closers, st.Close)
	} else {
		logger.Info(ctx, "database not configured, webhook audit log disabled")
	}

	d.orchestrator, err = pipeline.New(pipeline.Deps{
		Generator: d.clients.generator,
		Relay:     d.clients.relay,
		CRM:       d.clients.ghl,
		Events:    publisher,
		Metrics:   d.metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	if cfg.Pipeline.Async {
		tc, err := workflows.Dial(cfg.Temporal, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { tc.Close(); return nil })
		d.enqueuer = workflows.NewEnqueuer(tc, cfg.Temporal.TaskQueue, logger,
			workflows.WithReminderAfter(cfg.Pipeline.ReminderAfter.Duration()),
			workflows.WithEvents(publisher),
			workflows.WithMetrics(d.metrics),
		)
		logger.Info(ctx, "async pipeline enabled",
			zap.String("temporal_host", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue))
	}
	return d, nil
}

func shutdownTelemetry(tel *telemetry.Telemetry, logger *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
}
