package stages

import (
	"context"
	"fmt"

	"github.com/roach88/capsule/internal/css"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/js"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
)

// rewriteCSS makes every fresh stylesheet and style attribute safe and
// scopes it to the namespace.
type rewriteCSS struct {
	schema *schema.Schema
	policy css.URIPolicy
}

func (rewriteCSS) Name() string { return "rewrite-css" }

func (s rewriteCSS) Apply(_ context.Context, jobs *Jobs) bool {
	r := css.New(s.schema, s.policy, jobs.Meta.Namespace, jobs.Messages)
	for _, env := range jobs.Pool.ByType(job.CSS) {
		if env.FromCache {
			continue
		}
		r.Rewrite(env.Job.Tree(), env.Job.Origin())
	}
	return jobs.HasNoErrors()
}

// rewriteGlobals moves top-level names of every fresh script onto
// IMPORTS___ and wraps it in the module envelope. Scripts already in the
// envelope are left alone.
type rewriteGlobals struct{}

func (rewriteGlobals) Name() string { return "rewrite-globals" }

func (rewriteGlobals) Apply(_ context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.ByType(job.JS) {
		if env.FromCache || js.IsConsolidated(env.Job.Tree()) {
			continue
		}
		if _, err := js.RewriteGlobals(env.Job.Tree()); err != nil {
			reportMalformed(jobs, env, err)
		}
	}
	return jobs.HasNoErrors()
}

// sandboxJS applies the capability rules to every fresh module.
type sandboxJS struct{}

func (sandboxJS) Name() string { return "sandbox-js" }

func (sandboxJS) Apply(_ context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.ByType(job.JS) {
		if env.FromCache || js.IsConsolidated(env.Job.Tree()) {
			continue
		}
		if _, err := js.Sandbox(env.Job.Tree(), jobs.Messages); err != nil {
			reportMalformed(jobs, env, err)
		}
	}
	return jobs.HasNoErrors()
}

func reportMalformed(jobs *Jobs, env *job.Envelope, err error) {
	t := env.Job.Tree()
	span := tree.Span{File: t.File()}
	if t.Root() != tree.NoNode {
		span = t.InferSpan(t.Root())
	}
	jobs.Messages.Report(MsgMalformedEnvelope, span, fmt.Sprintf("%s: %v", t.File(), err))
}
