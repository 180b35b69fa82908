package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/lindy"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
)

var relayEventData string

func init() {
	relayEventCmd.Flags().StringVarP(&relayEventData, "data", "d", "{}", "event data as JSON")

	relayCmd.AddCommand(relayEventCmd)
	rootCmd.AddCommand(relayCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Send events to the relay webhook",
	Long: `Send events to the relay webhook.

Requires LINDY_WEBHOOK_URL. LINDY_WEBHOOK_SECRET is sent when set.

Examples:
  voicesop relay event sop.reviewed -d '{"call_id":"call_123"}'`,
}

var relayEventCmd = &cobra.Command{
	Use:   "event TYPE",
	Short: "Post a custom event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data any
		if err := json.Unmarshal([]byte(relayEventData), &data); err != nil {
			return fmt.Errorf("parsing --data: %w", err)
		}

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		if cfg.Lindy.WebhookURL == "" {
			return errors.New("LINDY_WEBHOOK_URL is required")
		}
		client := lindy.NewClient(cfg.Lindy.WebhookURL, cfg.Lindy.WebhookSecret, logging.NewNop(),
			upstream.WithTimeout(cfg.Pipeline.ClientTimeout.Duration()))

		receipt, err := client.SendCustomEvent(commandContext(cmd), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), receipt)
	},
}
