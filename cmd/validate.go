package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/validate"
)

var validateFormat string

var validateCmd = &cobra.Command{
	Use:   "validate <records.json>",
	Short: "Validate previously extracted invoice records",
	Long:  "Reads a JSON file holding one invoice record or an array of records and runs the rule-based validation passes against each.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := readRecords(args[0])
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		results := make([]model.ValidationResult, len(records))
		for i := range records {
			results[i] = validate.Validate(&records[i], now)
		}

		return writeResult(results, validateFormat, "")
	},
}

// readRecords accepts either a single record object or an array.
func readRecords(path string) ([]model.InvoiceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var records []model.InvoiceRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var single model.InvoiceRecord
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, eris.Wrapf(err, "parse records from %s", path)
	}
	return []model.InvoiceRecord{single}, nil
}

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "format", "json", "output format: json|yaml")
	rootCmd.AddCommand(validateCmd)
}
