package stages

import (
	"context"
	"fmt"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/js"
	"github.com/roach88/capsule/internal/tree"
)

// consolidate merges every sandboxed module, in pool order, into one
// initializer that takes the place of the first script. A bundle without
// scripts still gets an (empty) initializer.
type consolidate struct{}

func (consolidate) Name() string { return "consolidate" }

func (consolidate) Apply(_ context.Context, jobs *Jobs) bool {
	envs := jobs.Pool.ByType(job.JS)
	if len(envs) == 1 && js.IsConsolidated(envs[0].Job.Tree()) {
		return jobs.HasNoErrors()
	}

	var modules []*tree.Tree
	for _, env := range envs {
		t := env.Job.Tree()
		if !js.IsSandboxed(t) {
			reportMalformed(jobs, env, fmt.Errorf("not a sandboxed module: %w", js.ErrMalformedEnvelope))
			continue
		}
		modules = append(modules, t)
	}

	file := jobs.Meta.Namespace + ".js"
	out, err := js.Consolidate(file, jobs.Meta.Namespace, modules)
	if err != nil {
		jobs.Messages.Report(MsgMalformedEnvelope, tree.Span{File: file}, err.Error())
		out = js.Inert(file, "bundle could not be consolidated")
	}

	merged := job.Wrap(job.New(job.JS, out, nil, nil))
	if len(envs) == 0 {
		jobs.Pool.Add(merged)
		return jobs.HasNoErrors()
	}
	jobs.Pool.Replace(envs[0], merged)
	for _, env := range envs[1:] {
		jobs.Pool.Remove(env)
	}
	return jobs.HasNoErrors()
}

// checkErrors rejects documents no stage compiled and returns the final
// gate.
type checkErrors struct{}

func (checkErrors) Name() string { return "check-errors" }

func (checkErrors) Apply(_ context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.ByType(job.HTML) {
		file := env.Job.Tree().File()
		jobs.Messages.Report(MsgUnabsorbedHTML, tree.Span{File: file}, file)
	}
	return jobs.HasNoErrors()
}
