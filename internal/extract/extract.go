// Package extract implements the candidate extraction strategies. Each
// strategy independently attempts to produce a normalized invoice record with
// per-field confidence; the merge engine reconciles their outputs.
package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
)

// Extractor is one extraction strategy. Extract returns an error only for
// infrastructure failures (model timeout, service unreachable); a document it
// simply cannot read yields a sparse record with a diagnostic note instead.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, doc *document.Document) (*model.Extraction, error)
}

// Method selects an extraction strategy, or the automatic fallback chain.
type Method string

const (
	MethodAuto       Method = "auto"
	MethodRegex      Method = model.SourceRegex
	MethodLayout     Method = model.SourceLayout
	MethodGenerative Method = model.SourceGenerative
	MethodDocParse   Method = model.SourceDocParse
)

// ParseMethod validates a method string from the CLI or API surface.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAuto, MethodRegex, MethodLayout, MethodGenerative, MethodDocParse:
		return Method(s), nil
	case "":
		return MethodAuto, nil
	default:
		return "", eris.Errorf("extract: unknown method %q", s)
	}
}
