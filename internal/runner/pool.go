// Package runner executes independent jobs on a bounded worker pool.
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Job processes one item. The index is the item's position in the batch.
type Job func(ctx context.Context, index int) error

// PanicError reports a job that panicked instead of returning.
type PanicError struct {
	Index int
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job %d panicked: %v", e.Index, e.Value)
}

// RunPool runs job for every index in [0, n) with at most maxWorkers
// concurrently. The returned slice has one entry per index: nil on success,
// the job's error, a *PanicError, or ctx.Err() for jobs never started
// because the context was cancelled.
func RunPool(ctx context.Context, maxWorkers, n int, job Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i := 0; i < n; i++ {
		acquired := false
		if ctx.Err() == nil {
			select {
			case sem <- struct{}{}:
				acquired = true
			case <-ctx.Done():
			}
		}
		if !acquired || ctx.Err() != nil {
			if acquired {
				<-sem
			}
			for j := i; j < n; j++ {
				errs[j] = ctx.Err()
			}
			wg.Wait()
			return errs
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = runJob(ctx, i, job)
		}(i)
	}
	wg.Wait()
	return errs
}

func runJob(ctx context.Context, i int, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Index: i, Value: r, Stack: debug.Stack()}
		}
	}()
	return job(ctx, i)
}

// Failed returns the non-nil errors in index order.
func Failed(errs []error) []error {
	var out []error
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
