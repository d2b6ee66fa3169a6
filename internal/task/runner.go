// Package task runs optimistic remote updates that nobody waits for.
package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// Runner starts one-shot background tasks. A task gets a single attempt;
// its error is logged and otherwise dropped.
type Runner struct {
	wg      sync.WaitGroup
	timeout time.Duration
	logger  *slog.Logger
}

func NewRunner(timeout time.Duration) *Runner {
	return &Runner{timeout: timeout, logger: slog.Default()}
}

// Go runs fn detached from the caller's cancellation but keeps its values.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("panic recovered in background task",
					"task", name,
					"panic", p,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		start := time.Now()
		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed", "task", name, "error", err, "duration", time.Since(start))
			return
		}
		r.logger.Debug("background task done", "task", name, "duration", time.Since(start))
	}()
}

// Wait blocks until every started task has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}
