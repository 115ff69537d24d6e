package harness

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/stages"
	"github.com/roach88/capsule/internal/uri"
)

// Result is the outcome of compiling one scenario.
type Result struct {
	// OK is the pipeline's final gate.
	OK bool

	Namespace string
	Signature string

	// Messages holds every diagnostic in report order.
	Messages []diag.Message

	// JS is the consolidated module, CSS the namespaced stylesheets.
	JS  string
	CSS string
}

// Count returns how many messages carry code.
func (r *Result) Count(code string) int {
	n := 0
	for _, m := range r.Messages {
		if m.Type.Code == code {
			n++
		}
	}
	return n
}

type runConfig struct {
	cache  cache.Cache
	logger *slog.Logger
}

// Option configures Run.
type Option func(*runConfig)

// WithCache compiles through c instead of a cache that never hits.
func WithCache(c cache.Cache) Option {
	return func(rc *runConfig) { rc.cache = c }
}

// WithLogger reports pipeline progress and diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(rc *runConfig) { rc.logger = l }
}

// offline rewrites URIs with the default policy but never loads anything,
// so external references resolve to their inert substitutes.
type offline struct {
	*uri.Policy
}

func (offline) Load(_ context.Context, ref *url.URL, _ string) (uri.Content, error) {
	return uri.Content{}, fmt.Errorf("load %s: offline: %w", ref, uri.ErrDenied)
}

// Run compiles the scenario's inputs through the standard stages.
// An error is returned only for a scenario that cannot be set up or a
// pipeline that aborted; rejected input is reported through Result.
func Run(ctx context.Context, s *Scenario, opts ...Option) (*Result, error) {
	rc := &runConfig{}
	for _, opt := range opts {
		opt(rc)
	}

	var base *url.URL
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		base = u
	}

	q := diag.NewQueue(rc.logger)
	pool := job.NewPool()
	origins := make([]*url.URL, 0, len(s.Inputs))
	for _, in := range s.Inputs {
		ct, err := job.ParseContentType(in.File)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}

		var origin *url.URL
		if base != nil {
			origin = base.ResolveReference(&url.URL{Path: in.File})
			origins = append(origins, origin)
		} else {
			origins = append(origins, &url.URL{Scheme: "file", Path: "/" + s.Name + "/" + in.File})
		}

		t, err := ingest.Default{}.Parse(ct, in.File, []byte(in.Content))
		if err != nil {
			stages.ReportParseError(q, ct, in.File, err)
			continue
		}
		pool.AddJob(job.New(ct, t, origin, nil))
	}

	sch := schema.Default()
	c := rc.cache
	if c == nil {
		c = cache.NewStub(cache.NewKeyer(sch.Digest()))
	}

	mode := stages.ModeCollectAll
	if s.FailFast {
		mode = stages.ModeFailFast
	}
	pipelineOpts := []stages.Option{stages.WithMode(mode)}
	if rc.logger != nil {
		pipelineOpts = append(pipelineOpts, stages.WithLogger(rc.logger))
	}
	pipeline := stages.New(stages.Standard(stages.Options{
		Namespace: stages.ResolveNamespace(s.Namespace, origins),
		Schema:    sch,
		Resolver:  offline{Policy: &uri.Policy{}},
		Cache:     c,
	}), pipelineOpts...)

	jobs := stages.NewJobs(pool, q)
	ok, err := pipeline.Run(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := &Result{
		OK:        ok,
		Namespace: jobs.Meta.Namespace,
		Signature: jobs.Meta.Signature,
		Messages:  q.Messages(),
	}
	var scripts, sheets []string
	for _, env := range jobs.Pool.All() {
		switch env.ContentType() {
		case job.JS:
			scripts = append(scripts, render.Script(env.Job.Tree()))
		case job.CSS:
			if css := render.Stylesheet(env.Job.Tree()); css != "" {
				sheets = append(sheets, css)
			}
		}
	}
	result.JS = strings.Join(scripts, "\n")
	result.CSS = strings.Join(sheets, "\n")
	return result, nil
}

// RunCached compiles the scenario twice through one in-memory cache and
// returns both results. A warm run must produce the cold run's output.
func RunCached(ctx context.Context, s *Scenario, opts ...Option) (cold, warm *Result, err error) {
	mem := cache.NewMemory(cache.NewKeyer(schema.Default().Digest(), s.Name))
	opts = append(opts, WithCache(mem))

	if cold, err = Run(ctx, s, opts...); err != nil {
		return nil, nil, err
	}
	if warm, err = Run(ctx, s, opts...); err != nil {
		return nil, nil, err
	}
	if cold.JS != warm.JS || cold.CSS != warm.CSS {
		return cold, warm, fmt.Errorf("scenario %s: cached output differs from uncached output", s.Name)
	}
	return cold, warm, nil
}
