package job

import "slices"

// Envelope wraps a job with pipeline bookkeeping.
//
// Keys accumulates the cache keys this job should be stored under.
// Placeholder is the slot id used to re-inline the job's output into the
// document it was extracted from. FromCache marks jobs spliced in by the
// cache fetch stage; they are never stored again and rewriting stages skip
// them. NoCache opts a job out of cache lookups entirely.
type Envelope struct {
	Job         *Job
	Keys        KeySet
	Placeholder string
	FromCache   bool
	NoCache     bool
}

// Wrap creates a fresh envelope for j.
func Wrap(j *Job) *Envelope {
	env := &Envelope{Job: j}
	if t := j.Target(); t != nil {
		env.Placeholder = t.Placeholder
	}
	return env
}

// Derive returns an envelope for a job derived from e's job. Keys,
// placeholder and the from-cache flag carry over so a derivative is stored
// under the same fingerprints as its source.
func (e *Envelope) Derive(j *Job) *Envelope {
	return &Envelope{
		Job:         j,
		Keys:        e.Keys,
		Placeholder: e.Placeholder,
		FromCache:   e.FromCache,
		NoCache:     e.NoCache,
	}
}

// ContentType is shorthand for e.Job.ContentType().
func (e *Envelope) ContentType() ContentType { return e.Job.ContentType() }

// Pool is the ordered sequence of envelopes shared by all stages.
// Order controls output determinism. A Pool is owned by one pipeline run
// and is not safe for concurrent mutation.
type Pool struct {
	envs []*Envelope
}

// NewPool creates a pool holding envs in order.
func NewPool(envs ...*Envelope) *Pool {
	return &Pool{envs: slices.Clone(envs)}
}

// Add appends envelopes.
func (p *Pool) Add(envs ...*Envelope) {
	p.envs = append(p.envs, envs...)
}

// AddJob wraps j and appends it.
func (p *Pool) AddJob(j *Job) *Envelope {
	env := Wrap(j)
	p.envs = append(p.envs, env)
	return env
}

// Len returns the number of envelopes.
func (p *Pool) Len() int { return len(p.envs) }

// All returns a snapshot of the pool. Stages iterate the snapshot while
// calling Replace/Remove on the pool.
func (p *Pool) All() []*Envelope { return slices.Clone(p.envs) }

// ByType returns a snapshot of the envelopes whose job has content type ct.
func (p *Pool) ByType(ct ContentType) []*Envelope {
	var out []*Envelope
	for _, e := range p.envs {
		if e.ContentType() == ct {
			out = append(out, e)
		}
	}
	return out
}

// Jobs returns the jobs in pool order.
func (p *Pool) Jobs() []*Job {
	out := make([]*Job, len(p.envs))
	for i, e := range p.envs {
		out[i] = e.Job
	}
	return out
}

// Remove deletes env from the pool. Returns false if it was not present.
func (p *Pool) Remove(env *Envelope) bool {
	i := slices.Index(p.envs, env)
	if i < 0 {
		return false
	}
	p.envs = slices.Delete(p.envs, i, i+1)
	return true
}

// Replace substitutes derivatives for env at env's position. An empty
// derivative list removes env. Returns false if env was not present.
func (p *Pool) Replace(env *Envelope, derivatives ...*Envelope) bool {
	i := slices.Index(p.envs, env)
	if i < 0 {
		return false
	}
	p.envs = slices.Replace(p.envs, i, i+1, derivatives...)
	return true
}

// Find returns the envelope whose job targets (placeholder, attribute), or nil.
func (p *Pool) Find(placeholder, attribute string) *Envelope {
	for _, e := range p.envs {
		if t := e.Job.Target(); t != nil && t.Placeholder == placeholder && t.Attribute == attribute {
			return e
		}
	}
	return nil
}

// Targeting returns every envelope whose job targets placeholder, in pool order.
func (p *Pool) Targeting(placeholder string) []*Envelope {
	var out []*Envelope
	for _, e := range p.envs {
		if t := e.Job.Target(); t != nil && t.Placeholder == placeholder {
			out = append(out, e)
		}
	}
	return out
}
