package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/export"
)

var exportLimit int

var exportCmd = &cobra.Command{
	Use:   "export <report.xlsx>",
	Short: "Export stored invoices to an XLSX report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		invoices, err := s.ListInvoices(cmd.Context(), exportLimit, 0)
		if err != nil {
			return err
		}

		if err := export.WriteXLSX(args[0], invoices); err != nil {
			return err
		}
		zap.L().Info("export written",
			zap.String("path", args[0]),
			zap.Int("invoices", len(invoices)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().IntVar(&exportLimit, "limit", 1000, "maximum invoices to export")
	rootCmd.AddCommand(exportCmd)
}
