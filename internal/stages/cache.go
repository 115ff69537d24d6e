package stages

import (
	"context"
	"log/slog"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/metrics"
	"github.com/roach88/capsule/internal/tree"
)

// fetchCache replaces every input with a cache hit by the cached
// derivatives. A miss records the input's key so store-cache can file its
// derivatives under it. Meta is settled from the inputs first: keys carry
// the namespace because stored derivatives are already scoped to it.
type fetchCache struct {
	cache     cache.Cache
	namespace string
	metrics   *metrics.Metrics
}

func (fetchCache) Name() string { return "fetch-cache" }

func (s fetchCache) Apply(ctx context.Context, jobs *Jobs) bool {
	settleMeta(jobs, s.namespace)
	for _, env := range jobs.Pool.All() {
		if env.FromCache || env.NoCache {
			continue
		}
		key := cache.WithOrigin(s.cache.ForJob(env.ContentType(), env.Job.Tree()), env.Job.Origin())
		key = cache.WithNamespace(key, jobs.Meta.Namespace)
		cached, ok, err := s.cache.Fetch(ctx, key)
		if err != nil {
			s.metrics.CacheLookup(metrics.LookupError)
			jobs.Messages.Report(MsgCacheFailed, tree.Span{File: env.Job.Tree().File()}, "fetch", err)
			env.Keys = env.Keys.Union(key.Singleton())
			continue
		}
		if !ok {
			s.metrics.CacheLookup(metrics.LookupMiss)
			env.Keys = env.Keys.Union(key.Singleton())
			continue
		}

		s.metrics.CacheLookup(metrics.LookupHit)
		slog.Debug("cache hit", "job", env.Job.String(), "key", key.String(), "derivatives", len(cached))
		derivatives := make([]*job.Envelope, len(cached))
		for i, j := range cached {
			d := env.Derive(j)
			d.FromCache = true
			derivatives[i] = d
		}
		jobs.Messages.Report(MsgCacheHit, tree.Span{File: env.Job.Tree().File()}, len(cached))
		jobs.Pool.Replace(env, derivatives...)
	}
	return jobs.HasNoErrors()
}

// storeCache files the derivatives of every fresh input under the input's
// key, then clears the bookkeeping so later stages see plain jobs. A key
// shared with a NoCache derivative is not stored: external content is
// never cached. Nothing is stored once the queue holds errors.
type storeCache struct {
	cache   cache.Cache
	metrics *metrics.Metrics
}

func (storeCache) Name() string { return "store-cache" }

func (s storeCache) Apply(ctx context.Context, jobs *Jobs) bool {
	envs := jobs.Pool.All()
	if jobs.HasNoErrors() {
		s.store(ctx, jobs, envs)
	}
	for _, env := range envs {
		env.FromCache = false
		env.Keys = job.EmptyKeys()
	}
	return jobs.HasNoErrors()
}

func (s storeCache) store(ctx context.Context, jobs *Jobs, envs []*job.Envelope) {
	var order []job.Key
	groups := map[job.Key][]*job.Job{}
	poisoned := map[job.Key]bool{}
	for _, env := range envs {
		if env.FromCache {
			continue
		}
		for _, k := range env.Keys.Keys() {
			if env.NoCache {
				poisoned[k] = true
				continue
			}
			if _, seen := groups[k]; !seen {
				order = append(order, k)
			}
			groups[k] = append(groups[k], env.Job)
		}
	}

	for _, k := range order {
		if poisoned[k] {
			slog.Debug("cache store skipped: external content", "key", k.String())
			continue
		}
		if err := s.cache.Store(ctx, k, groups[k]); err != nil {
			jobs.Messages.Report(MsgCacheFailed, tree.Unknown, "store", err)
			continue
		}
		s.metrics.CacheStored(len(groups[k]))
	}
}
