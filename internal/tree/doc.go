// Package tree provides the artifact tree shared by every source language
// capsule compiles (HTML, CSS and JS).
//
// A Tree is an arena of nodes addressed by NodeID. Parent links are plain
// indices, never pointers, so rewriters can hold ids across mutations without
// worrying about dangling references. Node kinds form a closed enumeration per
// language; rewriters switch over them exhaustively.
//
// Key design constraints:
//   - Nodes introduced by rewriting carry Synthetic = true; nodes traceable to
//     source text carry a known Span.
//   - A known span contains the known spans of all same-file children
//     (see CheckSpans).
//   - Structural edits during a pass are recorded in a Mutation and applied
//     atomically by Execute, so a walk never observes a half-edited tree.
//   - Canonical encodings exclude spans and the synthetic flag: two trees
//     with the same content fingerprint identically.
//
// This package imports nothing internal.
package tree
