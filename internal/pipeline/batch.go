package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs PortJobs through a Pipeline with bounded concurrency.
//
// Design decision: We use errgroup.SetLimit rather than a hand-written
// worker pool because it's simpler and errgroup handles the concurrency
// correctly. Each job gets its own goroutine, but only 'concurrency'
// goroutines run simultaneously.
type BatchProcessor struct {
	pipeline    *Pipeline
	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of jobs in flight.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor for p. The default
// concurrency is 1.
func NewBatchProcessor(p *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{pipeline: p, concurrency: 1}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessWithCallback executes jobs and calls callback for each one that
// completed. callback runs on worker goroutines and must be safe for
// concurrent use.
//
// pace, if non-nil, is called before job i is dispatched; it is used to
// space task starts. An error from pace or a cancelled ctx stops dispatch.
// Jobs already running are waited for; those that observed the
// cancellation are dropped. The returned error is the reason dispatch
// stopped, or nil when every job completed.
func (bp *BatchProcessor) ProcessWithCallback(
	ctx context.Context,
	jobs []*PortJob,
	pace func(ctx context.Context, i int) error,
	callback func(job *PortJob),
) error {
	bp.logger.Debug("starting batch", "jobs", len(jobs), "concurrency", bp.concurrency)

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	var stopErr error
	for i, job := range jobs {
		if pace != nil {
			if err := pace(ctx, i); err != nil {
				stopErr = err
				break
			}
		}
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}

		g.Go(func() error {
			if err := bp.pipeline.Execute(ctx, job); err != nil {
				bp.logger.Debug("job dropped", "port", job.Port, "error", err)
				return nil
			}
			callback(job)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never return errors
	if stopErr != nil {
		return stopErr
	}
	return ctx.Err()
}
