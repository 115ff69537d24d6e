package cache

import (
	"context"
	"sync"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// Cache is the job cache contract used by the fetch and store stages.
// Implementations must be safe for concurrent Fetch and Store.
type Cache interface {
	// ForJob fingerprints a job's content.
	ForJob(ct job.ContentType, t *tree.Tree) job.Key

	// Fetch returns the jobs stored under key. ok is false when no entry
	// exists; an entry may legitimately hold zero jobs.
	Fetch(ctx context.Context, key job.Key) (jobs []*job.Job, ok bool, err error)

	// Store records jobs under key. Storing an existing key is a no-op.
	Store(ctx context.Context, key job.Key, jobs []*job.Job) error
}

// Stub is a cache that never hits.
type Stub struct {
	*Keyer
}

// NewStub creates a stub cache.
func NewStub(k *Keyer) *Stub {
	return &Stub{Keyer: k}
}

// Fetch always misses.
func (*Stub) Fetch(context.Context, job.Key) ([]*job.Job, bool, error) {
	return nil, false, nil
}

// Store discards its input.
func (*Stub) Store(context.Context, job.Key, []*job.Job) error {
	return nil
}

// Memory is a process-wide in-memory cache.
type Memory struct {
	*Keyer

	mu      sync.RWMutex
	entries map[job.Key][]*job.Job
}

// NewMemory creates an empty in-memory cache.
func NewMemory(k *Keyer) *Memory {
	return &Memory{Keyer: k, entries: make(map[job.Key][]*job.Job)}
}

// Fetch returns deep copies of the stored jobs so callers may mutate them.
func (m *Memory) Fetch(_ context.Context, key job.Key) ([]*job.Job, bool, error) {
	m.mu.RLock()
	stored, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneJobs(stored), true, nil
}

// Store records deep copies of jobs under key unless key is already present.
func (m *Memory) Store(_ context.Context, key job.Key, jobs []*job.Job) error {
	copied := cloneJobs(jobs)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return nil
	}
	m.entries[key] = copied
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func cloneJobs(jobs []*job.Job) []*job.Job {
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}
