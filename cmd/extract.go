package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/pipeline"
)

var (
	extractMethod string
	extractFormat string
	extractVerify bool
	extractOut    string
)

var extractCmd = &cobra.Command{
	Use:   "extract <invoice.pdf>",
	Short: "Extract structured data from a single PDF invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("process"); err != nil {
			return err
		}
		if extractVerify {
			if err := cfg.Validate("verify"); err != nil {
				return err
			}
		}

		p, costs, err := newProcessor(cfg)
		if err != nil {
			return err
		}

		result, err := p.Process(cmd.Context(), args[0], pipeline.Options{
			Method: extract.Method(extractMethod),
			Verify: extractVerify,
		})
		if err != nil {
			return err
		}
		if total := costs.Total(); total > 0 {
			zap.L().Info("estimated spend", zap.Float64("usd", total))
		}

		return writeResult(result, extractFormat, extractOut)
	},
}

// writeResult renders v as JSON or YAML to path, or stdout when path is empty.
func writeResult(v any, format, path string) error {
	var data []byte
	var err error
	switch format {
	case "json", "":
		data, err = json.MarshalIndent(v, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(v)
	default:
		return eris.Errorf("unknown output format %q", format)
	}
	if err != nil {
		return eris.Wrap(err, "encode result")
	}

	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}

func init() {
	extractCmd.Flags().StringVar(&extractMethod, "method", "auto", "extraction method: auto|regex|layout|generative|docparse")
	extractCmd.Flags().StringVar(&extractFormat, "format", "json", "output format: json|yaml")
	extractCmd.Flags().BoolVar(&extractVerify, "verify", false, "run the generative verification pass")
	extractCmd.Flags().StringVarP(&extractOut, "output", "o", "", "write output to file instead of stdout")
	rootCmd.AddCommand(extractCmd)
}
