package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/exitwatch/internal/model"
)

// Step is one stage of an analysis run.
type Step interface {
	// Do executes the step. Non-fatal issues are recorded as diagnostics on
	// the investigation and Do returns nil; a returned error ends the run.
	Do(ctx context.Context, inv *model.Investigation) error

	// Name returns the stage name recorded in PerformedStages.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	continueOnError bool

	// timeout bounds one Run. Zero means no limit.
	timeout time.Duration
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError keeps executing steps after a failure. The failure is
// still recorded on the investigation.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// WithTimeout bounds each Run. A run that hits the deadline is marked
// TimedOut and carries no report. Zero or negative means no limit.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence against inv.
//
// Cancellation is checked before each step; a cancelled run is marked
// TimedOut, loses its report and returns the context error. The first step
// error is recorded on inv and returned unless continueOnError is set.
func (p *Pipeline) Execute(ctx context.Context, inv *model.Investigation) error {
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"capture", inv.Capture.Path,
				"reason", ctx.Err(),
			)
			inv.TimedOut = true
			inv.Report = nil
			return ctx.Err()
		default:
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"capture", inv.Capture.Path,
		)

		if err := step.Do(ctx, inv); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"capture", inv.Capture.Path,
				"error", err,
			)

			inv.Error = err
			inv.ErrorMessage = err.Error()

			if ctx.Err() != nil {
				inv.TimedOut = true
				inv.Report = nil
				return err
			}
			if !p.continueOnError {
				return err
			}
		}

		inv.PerformedStages = append(inv.PerformedStages, step.Name())
	}

	return nil
}

// Run creates an investigation for path and executes the pipeline on it.
// The investigation is returned even when the run fails.
func (p *Pipeline) Run(ctx context.Context, path string) (*model.Investigation, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	inv := model.NewInvestigation(path)
	err := p.Execute(ctx, inv)
	return inv, err
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
