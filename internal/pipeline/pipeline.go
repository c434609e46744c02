// Package pipeline wires the stages together: acquisition, parallel
// extraction, merge, validation, and the optional verification pass. Each
// stage consumes the previous stage's immutable output.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/extract"
	"github.com/sells-group/invoice-cli/internal/merge"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/validate"
	"github.com/sells-group/invoice-cli/internal/verify"
)

// DocumentLoader acquires a document from a PDF path.
type DocumentLoader interface {
	Load(ctx context.Context, path string) (*document.Document, error)
}

// Options select the extraction strategy and the optional verification pass.
type Options struct {
	Method extract.Method
	Verify bool
}

// ProcessResult is the complete outcome for one document.
type ProcessResult struct {
	Path         string                    `json:"path"`
	Merge        *model.MergeResult        `json:"merge"`
	Validation   model.ValidationResult    `json:"validation"`
	Verification *model.VerificationResult `json:"verification,omitempty"`
	Elapsed      time.Duration             `json:"elapsed_ns"`
	Error        string                    `json:"error,omitempty"`
}

// Processor runs the per-document pipeline.
type Processor struct {
	loader   DocumentLoader
	runner   *extract.Runner
	merger   *merge.Merger
	verifier *verify.Verifier // nil disables the verification pass
}

// New creates a Processor. verifier may be nil when verification is not
// configured.
func New(loader DocumentLoader, runner *extract.Runner, merger *merge.Merger, verifier *verify.Verifier) *Processor {
	return &Processor{loader: loader, runner: runner, merger: merger, verifier: verifier}
}

// Process runs one document through the pipeline. Acquisition failure is the
// only hard error; a failing extractor strategy degrades to an absent
// candidate set instead, unless it was explicitly the requested method.
func (p *Processor) Process(ctx context.Context, path string, opts Options) (*ProcessResult, error) {
	start := time.Now()

	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", path)
	}

	extractions, err := p.extract(ctx, doc, opts.Method)
	if err != nil {
		return nil, err
	}

	merged := p.merger.Merge(extractions)
	validation := validate.Validate(&merged.Record, time.Now().UTC())

	result := &ProcessResult{
		Path:       path,
		Merge:      merged,
		Validation: validation,
		Elapsed:    time.Since(start),
	}

	if opts.Verify && p.verifier != nil {
		result.Verification = p.verifier.Verify(ctx, &merged.Record)
	}

	zap.L().Info("document processed",
		zap.String("path", path),
		zap.Float64("quality", merged.QualityScore),
		zap.String("recommendation", merged.Recommendation),
		zap.Bool("valid", validation.IsValid),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// extract produces the candidate set: every configured strategy in parallel
// for auto mode, or exactly the requested one.
func (p *Processor) extract(ctx context.Context, doc *document.Document, method extract.Method) ([]*model.Extraction, error) {
	if method == "" || method == extract.MethodAuto {
		return p.runner.All(ctx, doc), nil
	}

	ext, err := p.runner.Run(ctx, doc, method)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s extraction", method)
	}
	return []*model.Extraction{ext}, nil
}
