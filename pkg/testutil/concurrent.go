package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	dErrors "credreg/pkg/domain-errors"
)

// ConcurrentResult tracks outcomes of concurrent registry calls.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	// Rejections counts calls refused by a registry rule (duplicate id,
	// duplicate vote, invalid state, already revoked).
	Rejections int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Rejections
}

func isRejection(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeAlreadyExists, dErrors.CodeDuplicateAttestation,
		dErrors.CodeInvalidState, dErrors.CodeAlreadyRevoked:
		return true
	}
	return false
}

// RunConcurrent executes fn in parallel goroutines and buckets the results.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var wg sync.WaitGroup
	var successes, errs, rejections atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case isRejection(err):
				rejections.Add(1)
			default:
				errs.Add(1)
			}
		}(i)
	}

	wg.Wait()

	return &ConcurrentResult{
		Successes:  successes.Load(),
		Errors:     errs.Load(),
		Rejections: rejections.Load(),
	}
}

// RunConcurrentCtx executes fn in parallel goroutines with context support.
func RunConcurrentCtx(ctx context.Context, goroutines int, fn func(ctx context.Context, idx int) error) *ConcurrentResult {
	return RunConcurrent(goroutines, func(idx int) error {
		return fn(ctx, idx)
	})
}
