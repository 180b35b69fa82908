// Voicesop turns voice-assistant call transcripts into SOP documents.
//
// The serve command answers the voice platform's end-of-call webhooks and
// either runs the pipeline inline or hands the call to the Temporal worker
// started by the worker command.
//
// Usage:
//
//	# Start the webhook server
//	voicesop serve
//
//	# Start the async worker and webhook log retention
//	voicesop worker
//
//	# Create the database schema
//	voicesop migrate
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configFile string
	envFiles   []string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voicesop",
	Short: "Voice call to SOP document service",
	Long: `voicesop receives end-of-call reports from the voice platform, writes a
Standard Operating Procedure from the transcript, and delivers it through the
automation relay and the CRM.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "voicesop by Fyrsmith Labs\n")
		fmt.Fprintf(out, "Version:    %s\n", version)
		fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
		fmt.Fprintf(out, "Build Date: %s\n", buildDate)
	},
}

// loadConfig reads configuration for a command. Commands that only talk to
// one upstream pass skipValidation and check their own keys.
func loadConfig(skipValidation bool) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		File:           configFile,
		DotEnv:         envFiles,
		SkipValidation: skipValidation,
	})
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. With telemetry enabled, entries are
// also exported through the global OpenTelemetry log provider.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	if cfg.Log.Level != "" {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	if cfg.Telemetry.ServiceName != "" {
		logCfg.Fields["service"] = cfg.Telemetry.ServiceName
	}

	if cfg.Telemetry.Enabled {
		logCfg.Output.OTEL = true
		return logging.NewLogger(logCfg, global.GetLoggerProvider())
	}
	return logging.NewLogger(logCfg, nil)
}

// bootstrap loads config and builds the logger. The returned cleanup syncs
// the logger.
func bootstrap(skipValidation bool) (*config.Config, *logging.Logger, func(), error) {
	cfg, err := loadConfig(skipValidation)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return cfg, logger, func() { _ = logger.Sync() }, nil
}

// commandContext is the context for one-shot commands.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
