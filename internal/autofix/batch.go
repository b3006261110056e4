package autofix

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs a session result with its transport error, if any.
type BatchResult struct {
	Result Result
	Err    error
}

// FixAll runs one independent session per input with at most jobs sessions
// in flight. Results are returned in input order.
func FixAll(ctx context.Context, f *Fixer, inputs []Input, jobs int) []BatchResult {
	out := make([]BatchResult, len(inputs))
	if len(inputs) == 0 {
		return out
	}
	if jobs <= 0 {
		jobs = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(inputs)))
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			res, err := f.Attempt(gctx, in)
			out[i] = BatchResult{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
