package extract

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
)

// Runner dispatches extraction requests to the configured strategies. The
// automatic mode walks a fixed trust hierarchy: structured parser first,
// generative model second, layout plus regex last. The ordering is a
// contract, not a quality measurement.
type Runner struct {
	regex      Extractor
	layout     Extractor
	generative Extractor // nil when no model API key is configured
	docparse   Extractor // nil when the parsing service is not configured
}

// NewRunner creates a Runner. The generative and docparse extractors may be
// nil; auto mode skips unconfigured tiers.
func NewRunner(generative, docparse Extractor) *Runner {
	return &Runner{
		regex:      NewRegexExtractor(),
		layout:     NewLayoutExtractor(),
		generative: generative,
		docparse:   docparse,
	}
}

// Run executes one strategy, or the auto fallback chain. When a specific
// strategy is requested its failure propagates to the caller; there is
// nothing to degrade to.
func (r *Runner) Run(ctx context.Context, doc *document.Document, method Method) (*model.Extraction, error) {
	switch method {
	case MethodAuto:
		return r.Auto(ctx, doc)
	case MethodRegex:
		return r.regex.Extract(ctx, doc)
	case MethodLayout:
		return r.layout.Extract(ctx, doc)
	case MethodGenerative:
		if r.generative == nil {
			return nil, eris.New("extract: generative extractor not configured")
		}
		return r.generative.Extract(ctx, doc)
	case MethodDocParse:
		if r.docparse == nil {
			return nil, eris.New("extract: docparse extractor not configured")
		}
		return r.docparse.Extract(ctx, doc)
	default:
		return nil, eris.Errorf("extract: unknown method %q", method)
	}
}

// Auto applies the trust hierarchy, degrading tier by tier on failure or an
// empty result. The layout+regex tier cannot fail.
func (r *Runner) Auto(ctx context.Context, doc *document.Document) (*model.Extraction, error) {
	if r.docparse != nil {
		ext, err := r.docparse.Extract(ctx, doc)
		if err == nil && fieldCount(ext) > 0 {
			return ext, nil
		}
		if err != nil {
			zap.L().Debug("docparse extraction failed, trying next tier",
				zap.String("path", doc.Path),
				zap.Error(err),
			)
		}
	}

	if r.generative != nil {
		ext, err := r.generative.Extract(ctx, doc)
		if err == nil && fieldCount(ext) > 0 {
			return ext, nil
		}
		if err != nil {
			zap.L().Debug("generative extraction failed, trying next tier",
				zap.String("path", doc.Path),
				zap.Error(err),
			)
		}
	}

	layoutExt, _ := r.layout.Extract(ctx, doc)
	regexExt, _ := r.regex.Extract(ctx, doc)
	return combine(layoutExt, regexExt), nil
}

// All runs every configured strategy concurrently and returns the completed
// extractions for the merge engine. A failing strategy contributes nothing
// rather than aborting the rest.
func (r *Runner) All(ctx context.Context, doc *document.Document) []*model.Extraction {
	extractors := []Extractor{r.regex, r.layout}
	if r.generative != nil {
		extractors = append(extractors, r.generative)
	}
	if r.docparse != nil {
		extractors = append(extractors, r.docparse)
	}

	var mu sync.Mutex
	var results []*model.Extraction

	g, gCtx := errgroup.WithContext(ctx)
	for _, ex := range extractors {
		g.Go(func() error {
			ext, err := ex.Extract(gCtx, doc)
			if err != nil {
				zap.L().Warn("extractor failed, continuing without it",
					zap.String("strategy", ex.Name()),
					zap.String("path", doc.Path),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			results = append(results, ext)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// combine overlays the layout extraction onto the regex one, field by field.
// Layout wins wherever it produced a value.
func combine(layout, regex *model.Extraction) *model.Extraction {
	out := &model.Extraction{
		Source:     model.SourceLayout,
		Confidence: map[string]float64{},
		Notes:      []string{"combined layout and regex extraction"},
	}
	if regex != nil {
		for _, field := range model.AllFields {
			if v := regex.Record.Field(field); model.HasValue(v) {
				out.Record.SetField(field, v)
				out.Confidence[field] = regex.Confidence[field]
			}
		}
	}
	if layout != nil {
		for _, field := range model.AllFields {
			if v := layout.Record.Field(field); model.HasValue(v) {
				out.Record.SetField(field, v)
				out.Confidence[field] = layout.Confidence[field]
			}
		}
	}
	return out
}

// fieldCount reports how many canonical fields hold a value.
func fieldCount(ext *model.Extraction) int {
	if ext == nil {
		return 0
	}
	n := 0
	for _, field := range model.AllFields {
		if model.HasValue(ext.Record.Field(field)) {
			n++
		}
	}
	return n
}
