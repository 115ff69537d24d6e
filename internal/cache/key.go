package cache

import (
	"net/url"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// domainKey is a 32-byte BLAKE3 key. The bytes are the ASCII domain name,
// zero-padded. Changing it invalidates every stored entry.
type domainKey [32]byte

var jobDomainKey = domainKey{
	'c', 'a', 'p', 's', 'u', 'l', 'e', '.', 'c', 'a', 'c', 'h', 'e', '.', 'j', 'o',
	'b', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Keyer fingerprints jobs for one cache generation.
type Keyer struct {
	generation string
}

// NewKeyer creates a keyer whose generation salt is the NUL-joined parts.
// Every option that changes rewriting output must be one of the parts.
func NewKeyer(parts ...string) *Keyer {
	return &Keyer{generation: strings.Join(parts, "\x00")}
}

// Generation returns the salt.
func (k *Keyer) Generation() string { return k.generation }

// ForJob hashes generation, content type and the canonical tree. Spans are
// not part of the canonical form, so the same content parsed from two
// different files yields the same key.
func (k *Keyer) ForJob(ct job.ContentType, t *tree.Tree) job.Key {
	hasher, err := blake3.NewKeyed(jobDomainKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(k.generation))
	hasher.Write([]byte{0})
	hasher.Write([]byte(ct.String()))
	hasher.Write([]byte{0})
	hasher.Write(t.Canonical(t.Root()))

	var key job.Key
	copy(key[:], hasher.Sum(nil))
	return key
}

// WithOrigin folds the job's origin into k. Relative URIs resolve against
// the origin, so the same content from two origins compiles differently.
// A nil origin leaves k unchanged.
func WithOrigin(k job.Key, origin *url.URL) job.Key {
	if origin == nil {
		return k
	}
	return fold(k, 0, origin.String())
}

// WithNamespace folds the bundle namespace into k. Stored derivatives are
// already scoped to it, so two namespaces never share an entry.
func WithNamespace(k job.Key, ns string) job.Key {
	return fold(k, 1, ns)
}

func fold(k job.Key, tag byte, part string) job.Key {
	hasher, err := blake3.NewKeyed(jobDomainKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(k[:])
	hasher.Write([]byte{tag})
	hasher.Write([]byte(part))

	var out job.Key
	copy(out[:], hasher.Sum(nil))
	return out
}
