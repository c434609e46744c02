package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/verify"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
)

var verifyFormat string

var verifyCmd = &cobra.Command{
	Use:   "verify <records.json>",
	Short: "Cross-check extracted invoice records with the generative model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("verify"); err != nil {
			return err
		}

		records, err := readRecords(args[0])
		if err != nil {
			return err
		}

		client := anthropic.NewClient(cfg.Anthropic.Key)
		verifier := verify.New(client, cfg.Anthropic.VerifyModel, cfg.Anthropic.MaxTokens, cfg.Anthropic.RPS)

		results := make([]*model.VerificationResult, len(records))
		for i := range records {
			results[i] = verifier.Verify(cmd.Context(), &records[i])
		}

		out := struct {
			Results []*model.VerificationResult `json:"results" yaml:"results"`
			Summary verify.BatchSummary         `json:"summary" yaml:"summary"`
		}{results, verify.Summarize(results)}

		return writeResult(out, verifyFormat, "")
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "json", "output format: json|yaml")
	rootCmd.AddCommand(verifyCmd)
}
