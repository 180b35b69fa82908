package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/upstream"
	"github.com/fyrsmithlabs/voicesop/internal/vapi"
)

var assistantReq vapi.CreateAssistantRequest

func init() {
	f := assistantCreateCmd.Flags()
	f.StringVar(&assistantReq.Name, "name", "", "assistant name (default \""+vapi.DefaultAssistantName+"\")")
	f.StringVar(&assistantReq.Model, "model", "", "chat model (default \""+vapi.DefaultModel+"\")")
	f.StringVar(&assistantReq.SystemPrompt, "system-prompt", "", "system prompt (default: SOP interview prompt)")
	f.StringVar(&assistantReq.VoiceProvider, "voice-provider", "", "voice provider (default \""+vapi.DefaultVoiceProvider+"\")")
	f.StringVar(&assistantReq.VoiceID, "voice-id", "", "voice id")
	f.StringVar(&assistantReq.FirstMessage, "first-message", "", "greeting spoken when the call starts")
	f.StringVar(&assistantReq.WebhookURL, "webhook-url", "", "end-of-call webhook URL (default PUBLIC_URL/webhook/vapi)")

	u := assistantUpdateCmd.Flags()
	u.String("name", "", "new assistant name")
	u.String("first-message", "", "new greeting")
	u.String("webhook-url", "", "new end-of-call webhook URL")
	u.String("system-prompt", "", "new system prompt")

	assistantCmd.AddCommand(assistantCreateCmd, assistantGetCmd, assistantUpdateCmd, assistantListCmd, assistantDeleteCmd)
	rootCmd.AddCommand(assistantCmd, callCmd)
}

var assistantCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Manage voice assistants",
	Long: `Create, inspect, update and delete assistants on the voice platform.

Only VAPI_API_KEY is required.

Examples:
  voicesop assistant create --name "Onboarding SOP" --voice-id rachel
  voicesop assistant list
  voicesop assistant update asst_123 --first-message "Hi there!"`,
}

var assistantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an assistant",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, publicURL, err := vapiClient()
		if err != nil {
			return err
		}
		if err := validator.New().Struct(assistantReq); err != nil {
			return err
		}
		if assistantReq.WebhookURL == "" && publicURL == "" {
			return errors.New("--webhook-url or PUBLIC_URL is required")
		}
		a, err := client.CreateAssistant(commandContext(cmd), assistantReq.Config(publicURL))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var assistantGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show an assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := vapiClient()
		if err != nil {
			return err
		}
		a, err := client.GetAssistant(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var assistantUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update fields of an assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := vapiClient()
		if err != nil {
			return err
		}
		ctx := commandContext(cmd)
		f := cmd.Flags()

		var patch vapi.AssistantConfig
		if f.Changed("name") {
			patch.Name, _ = f.GetString("name")
		}
		if f.Changed("first-message") {
			patch.FirstMessage, _ = f.GetString("first-message")
		}
		if f.Changed("webhook-url") {
			patch.ServerURL, _ = f.GetString("webhook-url")
		}
		if f.Changed("system-prompt") {
			// The model block is replaced as a whole, so start from the
			// current one.
			current, err := client.GetAssistant(ctx, args[0])
			if err != nil {
				return err
			}
			prompt, _ := f.GetString("system-prompt")
			patch.Model = current.Model.WithSystemPrompt(prompt)
		}
		if patch == (vapi.AssistantConfig{}) {
			return errors.New("nothing to update")
		}

		a, err := client.UpdateAssistant(ctx, args[0], patch)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), a)
	},
}

var assistantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List assistants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, _, err := vapiClient()
		if err != nil {
			return err
		}
		list, err := client.ListAssistants(commandContext(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), list)
	},
}

var assistantDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an assistant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := vapiClient()
		if err != nil {
			return err
		}
		if err := client.DeleteAssistant(commandContext(cmd), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted assistant %s\n", args[0])
		return nil
	},
}

// vapiClient builds a voice platform client from configuration and returns
// the public URL used to derive webhook URLs.
func vapiClient() (*vapi.Client, string, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, "", err
	}
	if !cfg.VAPI.APIKey.IsSet() {
		return nil, "", errors.New("VAPI_API_KEY is required")
	}
	client := vapi.NewClient(cfg.VAPI.APIKey, cfg.VAPI.BaseURL,
		upstream.WithTimeout(cfg.Pipeline.ClientTimeout.Duration()))
	return client, cfg.Server.PublicURL, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var callCmd = &cobra.Command{
	Use:   "call ID",
	Short: "Show a call recorded by the voice platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := vapiClient()
		if err != nil {
			return err
		}
		call, err := client.GetCall(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), call)
	},
}
