package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/nao1215/portscout/internal/model"
	"github.com/nao1215/portscout/internal/portscan"
)

const (
	// Source ports for SYN probes are drawn from the non-privileged range.
	minSourcePort = 1024
	maxSourcePort = 65535
)

// Orchestrator scans every port of a target and produces a report.
type Orchestrator struct {
	scanner   portscan.Scanner
	detector  ServiceDetector
	svcTime   time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	randomize bool
	workers   int
	logger    *slog.Logger

	// sleep waits between ports; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex
	rng *rand.Rand
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithServiceDetection enables fingerprinting of open ports with d, each
// detection bounded by timeout. A nil detector disables it.
func WithServiceDetection(d ServiceDetector, timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.detector = d
		o.svcTime = timeout
	}
}

// WithJitter sets the random delay range between consecutive ports. In
// pool mode the delay spaces task starts.
func WithJitter(minDelay, maxDelay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.jitterMin = max(minDelay, 0)
		o.jitterMax = max(maxDelay, o.jitterMin)
	}
}

// WithRandomOrder shuffles the port order when enabled.
func WithRandomOrder(enabled bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.randomize = enabled
	}
}

// WithWorkers sets the number of ports scanned concurrently. One (the
// default) scans sequentially.
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRand sets the random source for jitter, source ports and ordering.
func WithRand(r *rand.Rand) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rng = r
	}
}

// NewOrchestrator creates an Orchestrator probing ports with scanner.
func NewOrchestrator(scanner portscan.Scanner, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		scanner: scanner,
		workers: 1,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // scheduling, not secrets
	}
	return o
}

// Run scans target and returns the report, sorted by port. onResult, if
// non-nil, receives each result as soon as it is known; calls are
// serialized.
//
// When ctx is cancelled the remaining ports are skipped, results already
// delivered stay in the report, and the report is marked Cancelled.
func (o *Orchestrator) Run(ctx context.Context, target *model.ScanTarget, onResult func(model.PortResult)) *model.ScanReport {
	report := model.NewScanReport(target.IP, string(o.scanner.Mode()), o.detector != nil)

	var mu sync.Mutex
	emit := func(job *PortJob) {
		result := job.Result()
		mu.Lock()
		defer mu.Unlock()
		report.Add(result)
		if onResult != nil {
			onResult(result)
		}
	}

	jobs := o.jobs(target)
	p := o.pipeline()

	o.logger.Info("scan started",
		"target", target.IP,
		"ports", len(jobs),
		"mode", o.scanner.Mode(),
		"workers", o.workers,
		"steps", p.StepNames(),
	)

	var err error
	if o.workers > 1 {
		bp := NewBatchProcessor(p, WithConcurrency(o.workers), WithBatchLogger(o.logger))
		err = bp.ProcessWithCallback(ctx, jobs, o.pace, emit)
	} else {
		err = o.runSequential(ctx, p, jobs, emit)
	}

	report.Results = report.Sorted()
	report.Cancelled = err != nil
	report.Finish()

	summary := report.Summary()
	o.logger.Info("scan finished",
		"target", target.IP,
		"open", summary.Open,
		"closed", summary.Closed,
		"filtered", summary.Filtered,
		"cancelled", report.Cancelled,
		"elapsed", report.Duration(),
	)
	return report
}

func (o *Orchestrator) runSequential(ctx context.Context, p *Pipeline, jobs []*PortJob, emit func(*PortJob)) error {
	for i, job := range jobs {
		if err := o.pace(ctx, i); err != nil {
			return err
		}
		if err := p.Execute(ctx, job); err != nil {
			return err
		}
		emit(job)
	}
	return nil
}

// pipeline builds the per-port steps: state first, then detection on open
// ports when a detector is configured.
func (o *Orchestrator) pipeline() *Pipeline {
	steps := []Step{NewStateStep(o.scanner)}
	if o.detector != nil {
		steps = append(steps, NewServiceStep(o.detector, o.svcTime))
	}
	p := New(WithLogger(o.logger))
	p.AddSteps(steps...)
	return p
}

// jobs builds one job per port, in scan order, each with its own random
// source port.
func (o *Orchestrator) jobs(target *model.ScanTarget) []*PortJob {
	ports := slices.Clone(target.Ports)

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.randomize {
		o.rng.Shuffle(len(ports), func(i, j int) { ports[i], ports[j] = ports[j], ports[i] })
	}
	jobs := make([]*PortJob, len(ports))
	for i, port := range ports {
		jobs[i] = &PortJob{
			IP:      target.IP,
			Port:    port,
			SrcPort: minSourcePort + o.rng.IntN(maxSourcePort-minSourcePort+1),
		}
	}
	return jobs
}

// pace waits a jitter delay before every port but the first.
func (o *Orchestrator) pace(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	d := o.jitter()
	if d <= 0 {
		return nil
	}
	return o.sleep(ctx, d)
}

// jitter returns a delay in [jitterMin, jitterMax].
func (o *Orchestrator) jitter() time.Duration {
	if o.jitterMax <= 0 {
		return 0
	}
	span := int64(o.jitterMax - o.jitterMin)

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jitterMin + time.Duration(o.rng.Int64N(span+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
