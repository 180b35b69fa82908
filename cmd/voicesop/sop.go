package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicesop/internal/generator"
)

var (
	structuredPath string
	refinePath     string
	refineFeedback string
	sopOutputPath  string
)

func init() {
	s := sopStructuredCmd.Flags()
	s.StringVarP(&structuredPath, "input", "i", "", "JSON outline file, or - for stdin (required)")
	s.StringVarP(&sopOutputPath, "out", "o", "", "write the SOP to this file instead of stdout")

	r := sopRefineCmd.Flags()
	r.StringVarP(&refinePath, "in", "i", "", "SOP markdown file, or - for stdin (required)")
	r.StringVarP(&refineFeedback, "feedback", "f", "", "what to change (required)")
	r.StringVarP(&sopOutputPath, "out", "o", "", "write the SOP to this file instead of stdout")

	sopCmd.AddCommand(sopStructuredCmd, sopRefineCmd)
	rootCmd.AddCommand(sopCmd)
}

var sopCmd = &cobra.Command{
	Use:   "sop",
	Short: "Draft or revise SOPs without a call",
	Long: `Draft an SOP from an outline, or revise an existing SOP with feedback.

Only OPENAI_API_KEY is required.

Examples:
  voicesop sop structured -i outline.json
  voicesop sop refine -i sop.md -f "Add a rollback step" -o sop.md`,
}

var sopStructuredCmd = &cobra.Command{
	Use:   "structured",
	Short: "Generate an SOP from a JSON outline",
	Long: `Generate an SOP from a JSON outline of the form:

  {"title": "...", "purpose": "...", "prerequisites": ["..."], "steps": ["..."], "notes": "..."}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := readInput(cmd.InOrStdin(), structuredPath, "input")
		if err != nil {
			return err
		}
		var in generator.StructuredInput
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			return fmt.Errorf("parsing outline: %w", err)
		}
		if err := validator.New().Struct(in); err != nil {
			return fmt.Errorf("invalid outline: %w", err)
		}

		gen, err := sopGenerator()
		if err != nil {
			return err
		}
		content, err := gen.GenerateStructured(commandContext(cmd), in)
		if err != nil {
			return err
		}
		return writeOutput(cmd, sopOutputPath, content)
	},
}

var sopRefineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Revise an SOP with feedback",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if refineFeedback == "" {
			return errors.New("--feedback is required")
		}
		content, err := readInput(cmd.InOrStdin(), refinePath, "in")
		if err != nil {
			return err
		}

		gen, err := sopGenerator()
		if err != nil {
			return err
		}
		revised, err := gen.Refine(commandContext(cmd), content, refineFeedback)
		if err != nil {
			return err
		}
		return writeOutput(cmd, sopOutputPath, revised)
	},
}

func sopGenerator() (*generator.Generator, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	if !cfg.OpenAI.APIKey.IsSet() {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	return generator.NewOpenAI(cfg.OpenAI, nil)
}
