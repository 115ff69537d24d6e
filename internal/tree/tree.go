package tree

import "slices"

// NodeID addresses a node inside its Tree's arena.
type NodeID int32

// NoNode is the absent-node sentinel (no parent, no root).
const NoNode NodeID = -1

// Node is one arena slot. Children are owned: a node appears in at most one
// children list, and its Parent field names that list's owner.
type Node struct {
	Kind      Kind
	Value     string
	Aux       string
	Span      Span
	Parent    NodeID
	Children  []NodeID
	Synthetic bool
	Invalid   bool
}

// Tree is a mutable, position-tagged syntax tree stored as an arena.
//
// Detached nodes (removed or replaced) stay in the arena but are unreachable
// from the root; Clone compacts them away.
type Tree struct {
	file  string
	nodes []Node
	root  NodeID
}

// New creates an empty tree for the given source file (URI or path).
func New(file string) *Tree {
	return &Tree{file: file, root: NoNode}
}

// File returns the source file the tree was parsed from.
func (t *Tree) File() string { return t.file }

// Root returns the root node id, or NoNode for an empty tree.
func (t *Tree) Root() NodeID { return t.root }

// SetRoot makes id the root. The node is detached from any parent first.
func (t *Tree) SetRoot(id NodeID) {
	if t.valid(id) {
		t.detach(id)
	}
	t.root = id
}

// Len returns the arena size, including detached nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Add appends a node with the given children and returns its id.
// Children are detached from their previous parents.
func (t *Tree) Add(kind Kind, value string, span Span, children ...NodeID) NodeID {
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{Kind: kind, Value: value, Span: span, Parent: NoNode})
	t.SetChildren(id, children...)
	return id
}

// AddSynthetic appends a node introduced by rewriting. It has no span.
func (t *Tree) AddSynthetic(kind Kind, value string, children ...NodeID) NodeID {
	id := t.Add(kind, value, Unknown, children...)
	t.nodes[id].Synthetic = true
	return id
}

// At returns a pointer to the node slot. The pointer is invalidated by any
// subsequent Add; use it for short read/modify sequences only.
func (t *Tree) At(id NodeID) *Node {
	return &t.nodes[id]
}

// Kind returns the node's kind.
func (t *Tree) Kind(id NodeID) Kind { return t.nodes[id].Kind }

// Value returns the node's primary payload.
func (t *Tree) Value(id NodeID) string { return t.nodes[id].Value }

// SetValue replaces the node's primary payload.
func (t *Tree) SetValue(id NodeID, v string) { t.nodes[id].Value = v }

// Aux returns the node's secondary payload.
func (t *Tree) Aux(id NodeID) string { return t.nodes[id].Aux }

// SetAux replaces the node's secondary payload.
func (t *Tree) SetAux(id NodeID, v string) { t.nodes[id].Aux = v }

// Span returns the node's own span (possibly Unknown).
func (t *Tree) Span(id NodeID) Span { return t.nodes[id].Span }

// Parent returns the owning node, or NoNode.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].Parent }

// Synthetic reports whether the node was introduced by rewriting.
func (t *Tree) Synthetic(id NodeID) bool { return t.nodes[id].Synthetic }

// SetSynthetic sets the synthetic flag.
func (t *Tree) SetSynthetic(id NodeID, v bool) { t.nodes[id].Synthetic = v }

// Invalid reports whether the node carries the invalid marker.
func (t *Tree) Invalid(id NodeID) bool { return t.nodes[id].Invalid }

// SetInvalid sets the invalid marker.
func (t *Tree) SetInvalid(id NodeID, v bool) { t.nodes[id].Invalid = v }

// Children returns the node's children. The slice must not be modified.
func (t *Tree) Children(id NodeID) []NodeID { return t.nodes[id].Children }

// NumChildren returns the number of children.
func (t *Tree) NumChildren(id NodeID) int { return len(t.nodes[id].Children) }

// Child returns the i-th child, or NoNode when out of range.
func (t *Tree) Child(id NodeID, i int) NodeID {
	c := t.nodes[id].Children
	if i < 0 || i >= len(c) {
		return NoNode
	}
	return c[i]
}

// SetChildren replaces the children of id. New children are detached from
// their previous parents; old children that are not retained become detached.
func (t *Tree) SetChildren(id NodeID, children ...NodeID) {
	for _, old := range t.nodes[id].Children {
		t.nodes[old].Parent = NoNode
	}
	t.nodes[id].Children = nil
	kept := make([]NodeID, 0, len(children))
	for _, c := range children {
		if c == NoNode {
			continue
		}
		t.detach(c)
		t.nodes[c].Parent = id
		kept = append(kept, c)
	}
	t.nodes[id].Children = kept
}

// Substitute puts the node returned by build where old was and returns it.
// build may adopt old or any of its descendants. The new node inherits
// old's span when it has none of its own.
func (t *Tree) Substitute(old NodeID, build func() NodeID) NodeID {
	parent := t.nodes[old].Parent
	index := -1
	if parent != NoNode {
		index = indexOf(t.nodes[parent].Children, old)
	}
	n := build()
	if !t.nodes[n].Span.Known() {
		t.nodes[n].Span = t.nodes[old].Span
	}
	switch {
	case parent == NoNode:
		if old == t.root {
			t.SetRoot(n)
		}
	case t.nodes[old].Parent == parent:
		siblings := slices.Clone(t.nodes[parent].Children)
		siblings[indexOf(siblings, old)] = n
		t.detach(n)
		t.nodes[old].Parent = NoNode
		t.SetChildren(parent, siblings...)
	default:
		siblings := slices.Insert(slices.Clone(t.nodes[parent].Children), index, n)
		t.SetChildren(parent, siblings...)
	}
	return n
}

// IsAttached reports whether id is reachable from the root.
func (t *Tree) IsAttached(id NodeID) bool {
	for cur := id; t.valid(cur); cur = t.nodes[cur].Parent {
		if cur == t.root {
			return true
		}
	}
	return false
}

// Ancestor returns the nearest proper ancestor of id with the given kind.
func (t *Tree) Ancestor(id NodeID, kind Kind) NodeID {
	for cur := t.nodes[id].Parent; cur != NoNode; cur = t.nodes[cur].Parent {
		if t.nodes[cur].Kind == kind {
			return cur
		}
	}
	return NoNode
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children. fn must not mutate the tree structure; record
// edits in a Mutation instead.
func (t *Tree) Walk(id NodeID, fn func(id NodeID) bool) {
	if !t.valid(id) {
		return
	}
	if !fn(id) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.Walk(c, fn)
	}
}

// PostOrder visits descendants of id before id itself.
func (t *Tree) PostOrder(id NodeID, fn func(id NodeID)) {
	if !t.valid(id) {
		return
	}
	for _, c := range t.nodes[id].Children {
		t.PostOrder(c, fn)
	}
	fn(id)
}

// Find returns every node of the given kind under id, in pre-order.
func (t *Tree) Find(id NodeID, kind Kind) []NodeID {
	var out []NodeID
	t.Walk(id, func(n NodeID) bool {
		if t.nodes[n].Kind == kind {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Clone returns a compacted deep copy containing only the nodes reachable
// from the root. Node ids are renumbered.
func (t *Tree) Clone() *Tree {
	out := New(t.file)
	if t.root != NoNode {
		out.root = out.Import(t, t.root)
	}
	return out
}

// Import copies the subtree rooted at id in src into t and returns the id of
// the detached copy. Spans and flags are preserved.
func (t *Tree) Import(src *Tree, id NodeID) NodeID {
	n := src.nodes[id]
	children := make([]NodeID, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, t.Import(src, c))
	}
	nid := t.Add(n.Kind, n.Value, n.Span, children...)
	t.nodes[nid].Aux = n.Aux
	t.nodes[nid].Synthetic = n.Synthetic
	t.nodes[nid].Invalid = n.Invalid
	return nid
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// detach removes id from its parent's children list, if any.
func (t *Tree) detach(id NodeID) {
	parent := t.nodes[id].Parent
	if parent == NoNode {
		return
	}
	siblings := t.nodes[parent].Children
	if i := indexOf(siblings, id); i >= 0 {
		t.nodes[parent].Children = slices.Delete(slices.Clone(siblings), i, i+1)
	}
	t.nodes[id].Parent = NoNode
}

func indexOf(ids []NodeID, id NodeID) int {
	for i, c := range ids {
		if c == id {
			return i
		}
	}
	return -1
}
