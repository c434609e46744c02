package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/config"
	"github.com/sells-group/invoice-cli/internal/cost"
	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/merge"
	"github.com/sells-group/invoice-cli/internal/ocr"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/resilience"
	"github.com/sells-group/invoice-cli/internal/store"
	"github.com/sells-group/invoice-cli/internal/verify"
	"github.com/sells-group/invoice-cli/pkg/anthropic"
	"github.com/sells-group/invoice-cli/pkg/docparse"
)

// newProcessor assembles the pipeline from config. Assisted strategies are
// only wired when their credentials are present; the local ones always run.
// The returned calculator accumulates estimated spend across every external
// call the processor makes.
func newProcessor(c *config.Config) (*pipeline.Processor, *cost.Calculator, error) {
	ocrExt, err := ocr.NewExtractor(c.OCR)
	if err != nil {
		return nil, nil, err
	}
	loader := document.NewLoader(ocrExt)
	costs := cost.NewCalculator(costRates(c))
	retryCfg := resilience.FromRetryConfig(
		c.Resilience.RetryMaxAttempts,
		c.Resilience.RetryInitialBackoffMs,
		c.Resilience.RetryMaxBackoffMs,
		c.Resilience.RetryMultiplier,
		c.Resilience.RetryJitterFraction,
	)

	var generative extract.Extractor
	var verifier *verify.Verifier
	if c.Anthropic.Key != "" {
		client := anthropic.NewClient(c.Anthropic.Key)
		generative = extract.NewGenerativeExtractor(client, c.Anthropic.ExtractModel, c.Anthropic.MaxTokens, c.Anthropic.RPS).
			WithCosts(costs).
			WithRetry(retryCfg)
		verifier = verify.New(client, c.Anthropic.VerifyModel, c.Anthropic.MaxTokens, c.Anthropic.RPS).
			WithCosts(costs).
			WithRetry(retryCfg)
	}

	var parser extract.Extractor
	if c.DocParse.Key != "" {
		client := docparse.NewClient(c.DocParse.Key,
			docparse.WithBaseURL(c.DocParse.BaseURL),
			docparse.WithProcessor(c.DocParse.Processor),
		)
		parser = extract.NewDocParseExtractor(client).
			WithCosts(costs).
			WithBreaker(resilience.FromCircuitConfig(
				c.Resilience.CircuitFailureThreshold,
				c.Resilience.CircuitResetSecs,
			))
	}

	runner := extract.NewRunner(generative, parser)
	merger := merge.New(mergeThresholds(c))
	return pipeline.New(loader, runner, merger, verifier), costs, nil
}

// costRates maps configured pricing onto calculator rates, falling back to
// the built-in defaults when the config carries no pricing at all.
func costRates(c *config.Config) cost.Rates {
	if len(c.Pricing.Anthropic) == 0 {
		return cost.DefaultRates()
	}
	rates := cost.Rates{
		Anthropic: make(map[string]cost.ModelRate, len(c.Pricing.Anthropic)),
		DocParse:  cost.DocParseRate{PerPage: c.Pricing.DocParse.PerPage},
	}
	for model, p := range c.Pricing.Anthropic {
		rates.Anthropic[model] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

func mergeThresholds(c *config.Config) merge.Thresholds {
	t := merge.DefaultThresholds()
	if c.Merge.NumericDivergencePct > 0 {
		t.NumericDivergencePct = c.Merge.NumericDivergencePct
	}
	if c.Merge.TextSimilarity > 0 {
		t.TextSimilarity = c.Merge.TextSimilarity
	}
	if c.Merge.MismatchPenalty > 0 {
		t.MismatchPenalty = c.Merge.MismatchPenalty
	}
	if c.Merge.ApproveScore > 0 {
		t.ApproveScore = c.Merge.ApproveScore
	}
	if c.Merge.ReviewScore > 0 {
		t.ReviewScore = c.Merge.ReviewScore
	}
	return t
}

// openStore opens the configured store and runs migrations.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}

	var s store.Store
	var err error
	switch c.Store.Driver {
	case "sqlite":
		s, err = store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		s, err = store.NewPostgres(ctx, c.Store.DatabaseURL, store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
