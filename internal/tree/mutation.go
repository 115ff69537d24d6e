package tree

import (
	"fmt"
	"slices"
)

type opKind uint8

const (
	opRemove opKind = iota
	opReplace
	opInsertBefore
	opInsertAfter
	opAppend
	opPrepend
)

func (k opKind) String() string {
	switch k {
	case opRemove:
		return "remove"
	case opReplace:
		return "replace"
	case opInsertBefore:
		return "insert-before"
	case opInsertAfter:
		return "insert-after"
	case opAppend:
		return "append"
	case opPrepend:
		return "prepend"
	default:
		return fmt.Sprintf("op(%d)", k)
	}
}

type op struct {
	kind   opKind
	target NodeID // node acted upon (removed, replaced, reference sibling, or parent)
	node   NodeID // node inserted or substituted; NoNode for removals
}

// Mutation is a batch of structural edits recorded against node ids and
// applied together by Execute. Recording never touches the tree, so a pass
// can walk the tree and queue edits without invalidating its iteration.
type Mutation struct {
	t   *Tree
	ops []op
}

// Mutate starts an empty mutation batch.
func (t *Tree) Mutate() *Mutation {
	return &Mutation{t: t}
}

// Remove detaches id from its parent.
func (m *Mutation) Remove(id NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opRemove, target: id, node: NoNode})
	return m
}

// Replace substitutes replacement for old in old's parent (or as root).
func (m *Mutation) Replace(old, replacement NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opReplace, target: old, node: replacement})
	return m
}

// InsertBefore inserts node immediately before the sibling ref.
func (m *Mutation) InsertBefore(ref, node NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opInsertBefore, target: ref, node: node})
	return m
}

// InsertAfter inserts node immediately after the sibling ref.
func (m *Mutation) InsertAfter(ref, node NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opInsertAfter, target: ref, node: node})
	return m
}

// Append adds node as the last child of parent.
func (m *Mutation) Append(parent, node NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opAppend, target: parent, node: node})
	return m
}

// Prepend adds node as the first child of parent.
func (m *Mutation) Prepend(parent, node NodeID) *Mutation {
	m.ops = append(m.ops, op{kind: opPrepend, target: parent, node: node})
	return m
}

// Len returns the number of recorded edits.
func (m *Mutation) Len() int { return len(m.ops) }

// MutationError reports an edit that could not be applied.
type MutationError struct {
	Op      string
	Target  NodeID
	Node    NodeID
	Message string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("mutation %s(target=%d, node=%d): %s", e.Op, e.Target, e.Node, e.Message)
}

// Execute validates every recorded edit and then applies them in order.
// If validation fails nothing is applied. Removing a node that an earlier
// edit in the same batch already detached is a no-op.
func (m *Mutation) Execute() error {
	t := m.t
	for _, o := range m.ops {
		if !t.valid(o.target) {
			return &MutationError{Op: o.kind.String(), Target: o.target, Node: o.node, Message: "target out of range"}
		}
		if o.kind != opRemove && !t.valid(o.node) {
			return &MutationError{Op: o.kind.String(), Target: o.target, Node: o.node, Message: "node out of range"}
		}
		switch o.kind {
		case opInsertBefore, opInsertAfter:
			if t.nodes[o.target].Parent == NoNode {
				return &MutationError{Op: o.kind.String(), Target: o.target, Node: o.node, Message: "reference node has no parent"}
			}
		case opReplace:
			if t.nodes[o.target].Parent == NoNode && o.target != t.root {
				return &MutationError{Op: o.kind.String(), Target: o.target, Node: o.node, Message: "replaced node is detached"}
			}
		}
	}
	for _, o := range m.ops {
		m.apply(o)
	}
	m.ops = nil
	return nil
}

func (m *Mutation) apply(o op) {
	t := m.t
	switch o.kind {
	case opRemove:
		t.detach(o.target)
	case opReplace:
		if o.target == o.node {
			return
		}
		parent := t.nodes[o.target].Parent
		if parent == NoNode {
			if o.target == t.root {
				t.SetRoot(o.node)
			}
			return
		}
		t.detach(o.node)
		siblings := slices.Clone(t.nodes[parent].Children)
		i := indexOf(siblings, o.target)
		if i < 0 {
			return
		}
		siblings[i] = o.node
		t.nodes[parent].Children = siblings
		t.nodes[o.node].Parent = parent
		t.nodes[o.target].Parent = NoNode
	case opInsertBefore, opInsertAfter:
		parent := t.nodes[o.target].Parent
		if parent == NoNode {
			return
		}
		t.detach(o.node)
		siblings := t.nodes[parent].Children
		i := indexOf(siblings, o.target)
		if i < 0 {
			return
		}
		if o.kind == opInsertAfter {
			i++
		}
		t.nodes[parent].Children = slices.Insert(slices.Clone(siblings), i, o.node)
		t.nodes[o.node].Parent = parent
	case opAppend:
		t.detach(o.node)
		t.nodes[o.target].Children = append(slices.Clone(t.nodes[o.target].Children), o.node)
		t.nodes[o.node].Parent = o.target
	case opPrepend:
		t.detach(o.node)
		t.nodes[o.target].Children = slices.Insert(slices.Clone(t.nodes[o.target].Children), 0, o.node)
		t.nodes[o.node].Parent = o.target
	}
}
