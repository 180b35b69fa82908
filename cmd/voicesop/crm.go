package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/ghl"
	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/upstream"
)

var contactUpdate ghl.ContactUpdate

func init() {
	u := crmUpdateContactCmd.Flags()
	u.StringVar(&contactUpdate.FirstName, "first-name", "", "first name")
	u.StringVar(&contactUpdate.LastName, "last-name", "", "last name")
	u.StringVar(&contactUpdate.Email, "email", "", "email address")
	u.StringVar(&contactUpdate.Phone, "phone", "", "phone number, normalized to E.164")
	u.StringVar(&contactUpdate.CompanyName, "company", "", "company name")

	crmCmd.AddCommand(crmContactCmd, crmUpdateContactCmd, crmTagCmd, crmTriggerWorkflowCmd)
	rootCmd.AddCommand(crmCmd)
}

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Inspect and update CRM contacts",
	Long: `Inspect and update contacts in the CRM.

Only GHL_API_KEY is required.

Examples:
  voicesop crm contact c_123
  voicesop crm update-contact c_123 --phone "(650) 253-0000"
  voicesop crm tag c_123 sop-delivered
  voicesop crm trigger-workflow c_123 wf_456`,
}

var crmContactCmd = &cobra.Command{
	Use:   "contact ID",
	Short: "Show a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := crmClient()
		if err != nil {
			return err
		}
		contact, err := client.GetContact(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), contact)
	},
}

var crmUpdateContactCmd = &cobra.Command{
	Use:   "update-contact ID",
	Short: "Update fields of a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		update := contactUpdate
		if update.Email != "" && !customer.ValidEmail(update.Email) {
			return fmt.Errorf("invalid --email %q", update.Email)
		}
		update.Phone = customer.NormalizePhone(update.Phone)
		if update.FirstName == "" && update.LastName == "" && update.Email == "" &&
			update.Phone == "" && update.CompanyName == "" {
			return errors.New("nothing to update")
		}

		client, err := crmClient()
		if err != nil {
			return err
		}
		contact, err := client.UpdateContact(commandContext(cmd), args[0], update)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), contact)
	},
}

var crmTagCmd = &cobra.Command{
	Use:   "tag ID TAG",
	Short: "Add a tag to a contact",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := crmClient()
		if err != nil {
			return err
		}
		if err := client.AddTag(commandContext(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s with %q\n", args[0], args[1])
		return nil
	},
}

var crmTriggerWorkflowCmd = &cobra.Command{
	Use:   "trigger-workflow ID WORKFLOW_ID",
	Short: "Enroll a contact in a CRM workflow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := crmClient()
		if err != nil {
			return err
		}
		if err := client.TriggerWorkflow(commandContext(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Triggered workflow %s for %s\n", args[1], args[0])
		return nil
	},
}

func crmClient() (*ghl.Client, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	if !cfg.GHL.APIKey.IsSet() {
		return nil, errors.New("GHL_API_KEY is required")
	}
	return ghl.NewClient(cfg.GHL.APIKey, cfg.GHL.BaseURL, logging.NewNop(),
		upstream.WithTimeout(cfg.Pipeline.ClientTimeout.Duration())), nil
}
