package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/portscout/internal/model"
)

// PortJob is the unit of work for one port. Steps fill in State and
// Service as they run.
type PortJob struct {
	// IP is the target address.
	IP string

	// Port is the TCP port being scanned.
	Port int

	// SrcPort is the source port for strategies that set it.
	SrcPort int

	// State is set by the state step.
	State model.PortState

	// Service is set by the detection step; empty means not detected.
	Service string
}

// Result converts the job into its immutable result.
func (j *PortJob) Result() model.PortResult {
	return model.NewPortResult(j.Port, j.State, j.Service)
}

// Step is one stage of processing a port.
//
// Design decision: Steps report problems inside the job (as states and
// service strings) rather than as errors, because a failed probe is a scan
// result. The error return is reserved for conditions that must stop the
// pipeline.
type Step interface {
	// Do executes the step for job.
	Do(ctx context.Context, job *PortJob) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline runs its steps in order on a PortJob. A Pipeline holds no
// per-job state and may execute many jobs concurrently once built.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger that receives step failures and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates an empty Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// AddStep appends step.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends steps in order.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs every step on job. It returns the context error when the
// run was cancelled before or during any step; the job's fields are then
// incomplete and must not be reported.
func (p *Pipeline) Execute(ctx context.Context, job *PortJob) error {
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Do(ctx, job); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "port", job.Port, "error", err)
			return fmt.Errorf("%s step on port %d: %w", step.Name(), job.Port, err)
		}
		p.logger.Debug("step completed", "step", step.Name(), "port", job.Port)
	}
	// A step interrupted by cancellation reports Filtered or a timeout
	// string; neither is a real observation.
	return ctx.Err()
}

// StepNames lists the steps in execution order, for logging.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	return names
}
