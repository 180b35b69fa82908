package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/customer"
	"github.com/fyrsmithlabs/voicesop/internal/generator"
	"github.com/fyrsmithlabs/voicesop/internal/pipeline"
)

var (
	transcriptPath string
	outputPath     string
	genCustomer    customer.Info
)

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&transcriptPath, "transcript", "t", "", "transcript file, or - for stdin (required)")
	f.StringVarP(&outputPath, "out", "o", "", "write the SOP to this file instead of stdout")
	f.StringVar(&genCustomer.Name, "name", "", "customer name")
	f.StringVar(&genCustomer.Company, "company", "", "customer company")
	f.StringVar(&genCustomer.Department, "department", "", "customer department")
	f.StringVar(&genCustomer.Email, "email", "", "customer email")
	_ = generateCmd.MarkFlagRequired("transcript")
	rootCmd.AddCommand(generateCmd)
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an SOP from a transcript file",
	Long: `Generate an SOP from a transcript without sending any notifications.

Only OPENAI_API_KEY is required.

Examples:
  voicesop generate --transcript call.txt --name "Ana" --company Acme
  cat call.txt | voicesop generate -t - -o sop.md`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	transcript, err := readTranscript(cmd.InOrStdin(), transcriptPath)
	if err != nil {
		return err
	}
	if err := genCustomer.Validate(); err != nil {
		return err
	}

	cfg, logger, cleanup, err := bootstrap(true)
	if err != nil {
		return err
	}
	defer cleanup()

	gen, err := generator.NewOpenAI(cfg.OpenAI, nil)
	if err != nil {
		return err
	}
	orch, err := pipeline.New(pipeline.Deps{Generator: gen, Logger: logger})
	if err != nil {
		return err
	}

	res, err := orch.GenerateManual(commandContext(cmd), transcript, genCustomer)
	if err != nil {
		return err
	}

	return writeOutput(cmd, outputPath, res.SOPContent)
}

// writeOutput prints content, or writes it to path when set.
func writeOutput(cmd *cobra.Command, path, content string) error {
	if path == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), content+"\n")
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d characters to %s\n", len([]rune(content)), path)
	return nil
}

// readTranscript reads path, or r when path is "-".
func readTranscript(r io.Reader, path string) (string, error) {
	return readInput(r, path, "transcript")
}

// readInput reads the file named by the --<flag> flag, or r when it is "-".
func readInput(r io.Reader, path, flag string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return "", fmt.Errorf("--%s is required", flag)
	case "-":
		data, err = io.ReadAll(r)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", flag, err)
	}
	return string(data), nil
}
