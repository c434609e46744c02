package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds simultaneous documents in a batch, capping
// concurrent model calls and local OCR load.
const DefaultConcurrency = 5

// ProcessDir runs every PDF in dir through the pipeline with bounded
// concurrency. A failing document is recorded in its result rather than
// aborting the batch; results come back in path order.
func (p *Processor) ProcessDir(ctx context.Context, dir string, opts Options, concurrency int) ([]*ProcessResult, error) {
	paths, err := listPDFs(dir)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	var mu sync.Mutex
	results := make([]*ProcessResult, 0, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, path := range paths {
		g.Go(func() error {
			result, err := p.Process(gCtx, path, opts)
			if err != nil {
				zap.L().Error("document failed",
					zap.String("path", path),
					zap.Error(err),
				)
				result = &ProcessResult{Path: path, Error: err.Error()}
			}
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: batch")
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read directory %s", dir)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}
