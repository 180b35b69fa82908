package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/gdocs"
)

var (
	docContentPath string
	docAppend      bool
	docShareEmail  string
	docShareRole   string
)

func init() {
	u := docUpdateCmd.Flags()
	u.StringVarP(&docContentPath, "content", "c", "", "markdown file, or - for stdin (required)")
	u.BoolVar(&docAppend, "append", false, "append instead of replacing the body")

	s := docShareCmd.Flags()
	s.StringVar(&docShareEmail, "email", "", "address to share with (required)")
	s.StringVar(&docShareRole, "role", gdocs.RoleReader, "reader, commenter or writer")
	_ = docShareCmd.MarkFlagRequired("email")

	docCmd.AddCommand(docGetCmd, docUpdateCmd, docShareCmd)
	rootCmd.AddCommand(docCmd)
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read, revise and share SOP documents",
	Long: `Work with SOP documents in Google Docs.

Requires GOOGLE_CREDENTIALS_PATH to point at a service account key.

Examples:
  voicesop doc get 1AbC...
  voicesop sop refine -i old.md -f "..." | voicesop doc update 1AbC... -c -
  voicesop doc share 1AbC... --email ana@example.com --role commenter`,
}

var docGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Print a document's text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, cleanup, err := docService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		text, err := svc.GetDocumentText(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		return writeOutput(cmd, "", text)
	},
}

var docUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Replace or append to a document's body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readInput(cmd.InOrStdin(), docContentPath, "content")
		if err != nil {
			return err
		}
		svc, cleanup, err := docService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := svc.UpdateDocument(commandContext(cmd), args[0], content, docAppend); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", gdocs.DocumentURL(args[0]))
		return nil
	},
}

var docShareCmd = &cobra.Command{
	Use:   "share ID",
	Short: "Share a document with a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !customer.ValidEmail(docShareEmail) {
			return fmt.Errorf("invalid --email %q", docShareEmail)
		}
		svc, cleanup, err := docService(cmd)
		if err != nil {
			return err
		}
		defer cleanup()
		if err := svc.ShareDocument(commandContext(cmd), args[0], docShareEmail, docShareRole); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Shared %s with %s as %s\n", args[0], docShareEmail, docShareRole)
		return nil
	},
}

func docService(cmd *cobra.Command) (*gdocs.Service, func(), error) {
	cfg, logger, cleanup, err := bootstrap(true)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newDocs(commandContext(cmd), cfg.Google, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}
