// Package parallel runs batches of independent jobs on a bounded number of
// goroutines and collects their errors.
package parallel

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/workerpool"
)

// DefaultWorkers is the pool size used when the caller passes a
// non-positive worker count.
const DefaultWorkers = 8

// Map runs fn(ctx, i) for every i in [0, n) on at most workers goroutines.
// All jobs run to completion regardless of individual failures; the
// resulting error aggregates every job error. A canceled context stops new
// jobs from being submitted, but jobs already running finish.
func Map(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	var mtx sync.Mutex
	var errs *multierror.Error
	record := func(err error) {
		mtx.Lock()
		defer mtx.Unlock()
		errs = multierror.Append(errs, err)
	}

	pool := workerpool.New(workers)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			record(skerr.Wrapf(err, "after %d submitted jobs", i))
			break
		}
		i := i
		pool.Go(func() {
			if err := fn(ctx, i); err != nil {
				record(skerr.Wrapf(err, "job %d", i))
			}
		})
	}
	pool.Wait()
	return errs.ErrorOrNil()
}
