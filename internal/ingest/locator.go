package ingest

import (
	"sort"
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

// locator maps byte offsets in one source file to spans.
type locator struct {
	file  string
	src   string
	lines []int // byte offset of each line start
	pos   int   // search cursor for find
}

func newLocator(file, src string) *locator {
	lines := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return &locator{file: file, src: src, lines: lines}
}

func (l *locator) line(offset int) int {
	return sort.SearchInts(l.lines, offset+1)
}

func (l *locator) span(start, end int) tree.Span {
	if start < 0 || end < start || end > len(l.src) {
		return tree.Unknown
	}
	endLine := l.line(start)
	if end > start {
		endLine = l.line(end - 1)
	}
	return tree.Span{File: l.file, Start: start, End: end, StartLine: l.line(start), EndLine: endLine}
}

func (l *locator) whole() tree.Span {
	return l.span(0, len(l.src))
}

// find locates needle at or after the cursor and advances the cursor past
// its start. Text that cannot be found gets the unknown span.
func (l *locator) find(needle string) tree.Span {
	if needle == "" || l.pos > len(l.src) {
		return tree.Unknown
	}
	i := strings.Index(l.src[l.pos:], needle)
	if i < 0 {
		return tree.Unknown
	}
	start := l.pos + i
	l.pos = start + 1
	return l.span(start, start+len(needle))
}

// findFold is find with ASCII case folding.
func (l *locator) findFold(needle string) tree.Span {
	if needle == "" || l.pos > len(l.src) {
		return tree.Unknown
	}
	i := strings.Index(strings.ToLower(l.src[l.pos:]), strings.ToLower(needle))
	if i < 0 {
		return tree.Unknown
	}
	start := l.pos + i
	l.pos = start + 1
	return l.span(start, start+len(needle))
}

// cover joins the span of id with the spans of its children.
func cover(t *tree.Tree, id tree.NodeID) {
	s := t.Span(id)
	for _, c := range t.Children(id) {
		s = tree.Join(s, t.Span(c))
	}
	t.At(id).Span = s
}
