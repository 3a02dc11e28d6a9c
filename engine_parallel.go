package dscope

import (
	"context"
	goruntime "runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jward/dscope/internal/store"
)

// extractParallel extracts paths on a bounded worker pool. Each worker
// writes only results[i] for the path at traversal position i, so the
// slice comes back in the same order as the serial path and the fold that
// follows is unchanged. Store reads and writes stay in the serial commit
// phase.
func (e *Engine) extractParallel(ctx context.Context, root string, paths []string, known map[string]*store.File) ([]FileResult, error) {
	jobs := e.jobs
	if jobs < 1 {
		jobs = goruntime.NumCPU()
	}

	x := e.extractor()
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(paths)))

	for i, path := range paths {
		g.Go(func() error {
			r, err := e.extractFile(gctx, x, root, path, known)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
