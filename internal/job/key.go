package job

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"slices"
)

// Key is an opaque content fingerprint.
type Key [32]byte

// String returns the lowercase hex form.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k == Key{} }

// Compare orders keys bytewise.
func (k Key) Compare(o Key) int { return bytes.Compare(k[:], o[:]) }

// Singleton returns the set containing only k.
func (k Key) Singleton() KeySet { return KeySet{keys: []Key{k}} }

// ParseKey parses the hex form produced by String.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("parse key: %w", err)
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("parse key: want %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// KeySet is an immutable, sorted, duplicate-free set of keys. The zero
// value is the empty set, meaning "not keyed".
type KeySet struct {
	keys []Key
}

// EmptyKeys returns the empty set.
func EmptyKeys() KeySet { return KeySet{} }

// Singleton returns the set containing only k.
func Singleton(k Key) KeySet { return k.Singleton() }

// IsEmpty reports whether the set has no keys.
func (s KeySet) IsEmpty() bool { return len(s.keys) == 0 }

// Len returns the number of keys.
func (s KeySet) Len() int { return len(s.keys) }

// Keys returns the keys in ascending order. The slice is a copy.
func (s KeySet) Keys() []Key { return slices.Clone(s.keys) }

// Contains reports whether k is in the set.
func (s KeySet) Contains(k Key) bool {
	_, ok := slices.BinarySearchFunc(s.keys, k, Key.Compare)
	return ok
}

// Union returns the set of keys in either s or o.
func (s KeySet) Union(o KeySet) KeySet {
	if o.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return o
	}
	merged := make([]Key, 0, len(s.keys)+len(o.keys))
	merged = append(merged, s.keys...)
	merged = append(merged, o.keys...)
	slices.SortFunc(merged, Key.Compare)
	return KeySet{keys: slices.Compact(merged)}
}

func (s KeySet) String() string {
	if s.IsEmpty() {
		return "{}"
	}
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k.String()[:12])
	}
	b.WriteByte('}')
	return b.String()
}
