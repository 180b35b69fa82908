package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"github.com/fyrsmithlabs/voicesop/internal/retention"
	"github.com/fyrsmithlabs/voicesop/internal/store"
)

var (
	dropTables bool
	pruneAge   string
)

func init() {
	migrateCmd.Flags().BoolVar(&dropTables, "drop", false, "drop every table before migrating (destroys data)")
	pruneCmd.Flags().StringVar(&pruneAge, "max-age", "", "delete webhook logs older than this (default RETENTION_MAX_AGE)")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pruneCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create or update the conversations, sop_documents, vapi_assistants and
webhook_logs tables on DATABASE_URL.

Examples:
  # Apply the schema
  DATABASE_URL=postgres://localhost/voicesop voicesop migrate

  # Recreate from scratch
  voicesop migrate --drop`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var pruneCmd = &cobra.Command{
	Use:   "prune-logs",
	Short: "Delete old webhook audit rows once",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

// storeCommand is the shared setup of commands that only need the database.
type storeCommand struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
	close  func()
}

func openStore(cmd *cobra.Command) (*storeCommand, error) {
	cfg, logger, cleanup, err := bootstrap(true)
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		cleanup()
		return nil, errors.New("DATABASE_URL is required")
	}
	st, err := store.Open(commandContext(cmd), cfg.Database, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &storeCommand{cfg: cfg, logger: logger, store: st, close: func() {
		_ = st.Close()
		cleanup()
	}}, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	sc, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer sc.close()
	st := sc.store

	if dropTables {
		if err := st.Drop(ctx); err != nil {
			return err
		}
	}
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", st.Dialect())
	return nil
}

func runPrune(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	var override config.Duration
	if pruneAge != "" {
		if err := override.UnmarshalText([]byte(pruneAge)); err != nil {
			return fmt.Errorf("invalid --max-age: %w", err)
		}
	}

	sc, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer sc.close()

	maxAge := sc.cfg.Retention.MaxAge.Duration()
	if override > 0 {
		maxAge = override.Duration()
	}
	sched, err := retention.NewScheduler(sc.store, sc.logger,
		retention.WithMaxAge(maxAge),
		retention.WithMetrics(metrics.New()),
	)
	if err != nil {
		return err
	}
	deleted, err := sched.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d webhook log rows older than %s\n", deleted, maxAge)
	return nil
}
