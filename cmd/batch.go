package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/internal/store"
)

var (
	batchMethod      string
	batchConcurrency int
	batchVerify      bool
	batchSave        bool
	batchFormat      string
	batchOut         string
	batchRetries     int
)

var batchCmd = &cobra.Command{
	Use:   "batch <directory>",
	Short: "Process every PDF invoice in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		p, costs, err := newProcessor(cfg)
		if err != nil {
			return err
		}

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Batch.Concurrency
		}

		opts := pipeline.Options{Method: extract.Method(batchMethod), Verify: batchVerify}
		results, err := p.ProcessDir(ctx, args[0], opts, concurrency)
		if err != nil {
			return err
		}
		results = retryFailures(ctx, p, results, opts)
		if total := costs.Total(); total > 0 {
			zap.L().Info("estimated batch spend",
				zap.Float64("usd", total),
				zap.Int("documents", len(results)),
			)
		}

		if batchSave {
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := saveResults(cmd, s, results); err != nil {
				return err
			}
		}

		return writeResult(results, batchFormat, batchOut)
	},
}

// retryFailures gives transiently failed documents additional sequential
// passes, then reports every document still stuck in the queue.
func retryFailures(ctx context.Context, p *pipeline.Processor, results []*pipeline.ProcessResult, opts pipeline.Options) []*pipeline.ProcessResult {
	dlq := resilience.NewDLQ(batchRetries)
	byPath := make(map[string]int, len(results))
	for i, r := range results {
		byPath[r.Path] = i
		if r.Error != "" {
			dlq.Record(r.Path, "process", eris.New(r.Error))
		}
	}

	for {
		retryable := dlq.Retryable()
		if len(retryable) == 0 {
			break
		}
		for _, entry := range retryable {
			result, err := p.Process(ctx, entry.Path, opts)
			if err != nil {
				dlq.Record(entry.Path, "process", err)
				// Report the newest failure, not the first pass's.
				results[byPath[entry.Path]] = &pipeline.ProcessResult{Path: entry.Path, Error: err.Error()}
				continue
			}
			dlq.Resolve(entry.Path)
			results[byPath[entry.Path]] = result
			zap.L().Info("document recovered on retry", zap.String("path", entry.Path))
		}
	}

	for _, entry := range dlq.Entries() {
		zap.L().Warn("document not recovered",
			zap.String("path", entry.Path),
			zap.String("error_type", entry.ErrorType),
			zap.Int("attempts", entry.RetryCount+1),
			zap.String("error", entry.Error),
		)
	}
	return results
}

func saveResults(cmd *cobra.Command, s store.Store, results []*pipeline.ProcessResult) error {
	invoices := make([]*store.Invoice, 0, len(results))
	for _, r := range results {
		if r.Error != "" || r.Merge == nil {
			continue
		}
		inv := &store.Invoice{
			Record:       r.Merge.Record,
			Validation:   &r.Validation,
			Verification: r.Verification,
			QualityScore: r.Merge.QualityScore,
		}
		invoices = append(invoices, inv)
	}

	n, err := s.SaveInvoices(cmd.Context(), invoices)
	if err != nil {
		return eris.Wrap(err, "save batch results")
	}
	zap.L().Info("batch persisted", zap.Int64("invoices", n))
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchMethod, "method", "auto", "extraction method: auto|regex|layout|generative|docparse")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "parallel documents (default from config)")
	batchCmd.Flags().BoolVar(&batchVerify, "verify", false, "run the generative verification pass")
	batchCmd.Flags().BoolVar(&batchSave, "save", false, "persist results to the configured store")
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "output format: json|yaml")
	batchCmd.Flags().StringVarP(&batchOut, "output", "o", "", "write output to file instead of stdout")
	batchCmd.Flags().IntVar(&batchRetries, "retries", 2, "retry passes for transient failures")
	rootCmd.AddCommand(batchCmd)
}
