package tree

import "fmt"

// Span is a source position range. Offsets are byte offsets into the file;
// lines are 1-based. The zero value is the "unknown" sentinel.
type Span struct {
	File      string `json:"file,omitempty" cbor:"1,keyasint,omitempty"`
	Start     int    `json:"start" cbor:"2,keyasint,omitempty"`
	End       int    `json:"end" cbor:"3,keyasint,omitempty"`
	StartLine int    `json:"start_line" cbor:"4,keyasint,omitempty"`
	EndLine   int    `json:"end_line" cbor:"5,keyasint,omitempty"`
}

// Unknown is the sentinel span for nodes with no source position.
var Unknown = Span{}

// Known reports whether the span carries a real position.
func (s Span) Known() bool {
	return s.StartLine > 0
}

// Contains reports whether o lies within s. Spans in different files never
// contain one another; unknown spans contain nothing.
func (s Span) Contains(o Span) bool {
	if !s.Known() || !o.Known() || s.File != o.File {
		return false
	}
	return s.Start <= o.Start && o.End <= s.End
}

// Join returns the smallest span covering both a and b. If either is
// unknown or they are in different files, the other is returned unchanged.
func Join(a, b Span) Span {
	if !a.Known() {
		return b
	}
	if !b.Known() || a.File != b.File {
		return a
	}
	out := a
	if b.Start < out.Start {
		out.Start = b.Start
		out.StartLine = b.StartLine
	}
	if b.End > out.End {
		out.End = b.End
		out.EndLine = b.EndLine
	}
	return out
}

// String formats the span as file:line or file:line-line.
func (s Span) String() string {
	if !s.Known() {
		if s.File != "" {
			return s.File
		}
		return "<unknown>"
	}
	if s.EndLine > s.StartLine {
		return fmt.Sprintf("%s:%d-%d", s.File, s.StartLine, s.EndLine)
	}
	return fmt.Sprintf("%s:%d", s.File, s.StartLine)
}

// SpanError reports a violation of the span containment invariant.
type SpanError struct {
	Parent     NodeID
	Child      NodeID
	ParentSpan Span
	ChildSpan  Span
	ParentKind Kind
	ChildKind  Kind
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("span of %s node %d (%s [%d,%d)) does not contain child %s node %d (%s [%d,%d))",
		e.ParentKind, e.Parent, e.ParentSpan, e.ParentSpan.Start, e.ParentSpan.End,
		e.ChildKind, e.Child, e.ChildSpan, e.ChildSpan.Start, e.ChildSpan.End)
}

// CheckSpans verifies that every known span contains the known spans of its
// same-file children. Returns the first violation found in pre-order.
func (t *Tree) CheckSpans() error {
	if t.root == NoNode {
		return nil
	}
	var violation error
	t.Walk(t.root, func(id NodeID) bool {
		if violation != nil {
			return false
		}
		parent := t.nodes[id].Span
		if !parent.Known() {
			return true
		}
		for _, c := range t.nodes[id].Children {
			child := t.nodes[c].Span
			if !child.Known() || child.File != parent.File {
				continue
			}
			if !parent.Contains(child) {
				violation = &SpanError{
					Parent:     id,
					Child:      c,
					ParentSpan: parent,
					ChildSpan:  child,
					ParentKind: t.nodes[id].Kind,
					ChildKind:  t.nodes[c].Kind,
				}
				return false
			}
		}
		return true
	})
	return violation
}

// InferSpan returns a best-effort position for id, for diagnostics only.
// A node's own known span wins; otherwise the nearest sibling with a known
// span (preceding siblings first), then the nearest ancestor with one.
// Synthetic nodes usually resolve through this path.
func (t *Tree) InferSpan(id NodeID) Span {
	if !t.valid(id) {
		return Unknown
	}
	if s := t.nodes[id].Span; s.Known() {
		return s
	}
	for cur := id; cur != NoNode; cur = t.nodes[cur].Parent {
		if s := t.nodes[cur].Span; s.Known() {
			return s
		}
		parent := t.nodes[cur].Parent
		if parent == NoNode {
			break
		}
		siblings := t.nodes[parent].Children
		idx := indexOf(siblings, cur)
		for d := 1; idx >= 0 && (idx-d >= 0 || idx+d < len(siblings)); d++ {
			if idx-d >= 0 {
				if s := t.nodes[siblings[idx-d]].Span; s.Known() {
					return s
				}
			}
			if idx+d < len(siblings) {
				if s := t.nodes[siblings[idx+d]].Span; s.Known() {
					return s
				}
			}
		}
	}
	if t.file != "" {
		return Span{File: t.file}
	}
	return Unknown
}
