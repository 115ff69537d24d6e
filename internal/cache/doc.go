// Package cache memoizes rewriting results by content fingerprint.
//
// A Cache maps the Key of an input job to the list of jobs its rewriting
// produced. Fetch distinguishes "no entry" (ok == false) from an entry whose
// derivation legitimately produced zero jobs. Entries are write-once: the
// first Store for a key wins and later stores are ignored, so concurrent
// readers always observe an immutable value.
//
// The cache is an optimization only. Compiling with Stub produces output
// identical to compiling with Memory or SQLite.
//
// # Implementations
//
//   - Stub: always misses, never stores
//   - Memory: process-wide map, deep-copies on store and on fetch
//   - SQLite: persistent; payloads are deterministic CBOR compressed with zstd
//
// # Keys
//
// Keyer computes keys as a BLAKE3 keyed hash (domain "capsule.cache.job")
// over a generation salt, the content type and the canonical form of the
// tree. The generation salt covers everything that changes rewriting output
// (tool version, schema digest, namespace, URI policy).
package cache
