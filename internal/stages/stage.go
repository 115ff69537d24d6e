package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/metrics"
)

// Stage is one step of the pipeline. Apply reports whether the queue is
// still free of errors afterwards.
type Stage interface {
	Name() string
	Apply(ctx context.Context, jobs *Jobs) bool
}

// Meta is run-wide state settled by the namespace stage.
type Meta struct {
	// Namespace scopes selectors, element ids and the module registration.
	Namespace string

	// Signature identifies the bundle's input content.
	Signature string
}

// Jobs is the state threaded through every stage of one run.
type Jobs struct {
	Pool     *job.Pool
	Messages *diag.Queue
	Meta     Meta

	settled bool
}

// NewJobs creates run state over pool. A nil queue gets a fresh one that
// does not log.
func NewJobs(pool *job.Pool, messages *diag.Queue) *Jobs {
	if messages == nil {
		messages = diag.NewQueue(nil)
	}
	return &Jobs{Pool: pool, Messages: messages}
}

// HasNoErrors reports whether nothing at Error level or above was reported.
func (j *Jobs) HasNoErrors() bool { return !j.Messages.HasErrors() }

// Mode controls what a run does after a stage fails.
type Mode int

const (
	// ModeCollectAll runs every stage so independent fragments are still
	// rewritten and every diagnostic is reported.
	ModeCollectAll Mode = iota

	// ModeFailFast stops after the first stage that returns false.
	ModeFailFast
)

func (m Mode) String() string {
	if m == ModeFailFast {
		return "fail-fast"
	}
	return "collect-all"
}

// Pipeline runs stages in order over one Jobs value.
type Pipeline struct {
	Stages  []Stage
	Mode    Mode
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMode sets the failure mode.
func WithMode(m Mode) Option {
	return func(p *Pipeline) { p.Mode = m }
}

// WithLogger sets the logger stage progress is reported to.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.Logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.Metrics = m }
}

// New creates a pipeline over stages. The default mode is ModeCollectAll.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{Stages: stages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run applies every stage and returns the final gate: true when the run
// finished without errors. The error is non-nil only for a cancelled
// context or a panicking stage.
func (p *Pipeline) Run(ctx context.Context, jobs *Jobs) (bool, error) {
	log := p.logger()
	log.Debug("pipeline starting", "stages", len(p.Stages), "jobs", jobs.Pool.Len(), "mode", p.Mode.String())

	for _, s := range p.Stages {
		if err := ctx.Err(); err != nil {
			log.Info("pipeline stopping: context cancelled", "stage", s.Name())
			return false, &StageError{Code: ErrCodeCancelled, Stage: s.Name(), Message: "run cancelled", Err: err}
		}

		mark := jobs.Messages.Len()
		start := time.Now()
		ok, err := p.apply(ctx, s, jobs)
		elapsed := time.Since(start)
		added := jobs.Messages.Since(mark)
		p.Metrics.ObserveStage(s.Name(), elapsed, ok)
		p.Metrics.CountDiagnostics(added)
		if err != nil {
			log.Error("stage panicked", "stage", s.Name(), "error", err)
			return false, err
		}

		log.Debug("stage applied",
			"stage", s.Name(),
			"ok", ok,
			"jobs", jobs.Pool.Len(),
			"messages", len(added),
			"duration", elapsed,
		)
		if !ok && p.Mode == ModeFailFast {
			log.Info("pipeline stopping: stage failed", "stage", s.Name())
			return false, nil
		}
	}

	ok := jobs.HasNoErrors()
	log.Debug("pipeline finished", "ok", ok, "jobs", jobs.Pool.Len(), "messages", jobs.Messages.Len())
	return ok, nil
}

func (p *Pipeline) apply(ctx context.Context, s Stage, jobs *Jobs) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &StageError{Code: ErrCodePanic, Stage: s.Name(), Message: fmt.Sprint(r)}
		}
	}()
	return s.Apply(ctx, jobs), nil
}
