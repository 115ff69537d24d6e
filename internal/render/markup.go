package render

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/roach88/capsule/internal/tree"
)

// SlotAttribute carries an attribute placeholder id on a rendered element.
const SlotAttribute = "data-capsule"

// Chunk is a run of static markup. Slot names the embedded placeholder that
// follows it, "" for the last chunk. Attached lists the attribute
// placeholders whose element start tag is inside the chunk.
type Chunk struct {
	HTML     string
	Slot     string
	Attached []string
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Markup renders an HTML subtree, split at embedded placeholders. There is
// always at least one chunk.
func Markup(t *tree.Tree, id tree.NodeID) []Chunk {
	m := &markupWriter{t: t}
	if id != tree.NoNode {
		m.node(id)
	}
	m.chunks = append(m.chunks, Chunk{HTML: m.b.String(), Attached: m.attached})
	return m.chunks
}

type markupWriter struct {
	t        *tree.Tree
	b        strings.Builder
	attached []string
	chunks   []Chunk
}

func (m *markupWriter) node(id tree.NodeID) {
	t := m.t
	switch t.Kind(id) {
	case tree.HTMLDocument:
		for _, c := range t.Children(id) {
			m.node(c)
		}
	case tree.HTMLText:
		m.b.WriteString(html.EscapeString(t.Value(id)))
	case tree.HTMLPlaceholder:
		if t.Aux(id) != "" {
			return
		}
		m.chunks = append(m.chunks, Chunk{HTML: m.b.String(), Slot: t.Value(id), Attached: m.attached})
		m.b.Reset()
		m.attached = nil
	case tree.HTMLElement:
		tag := t.Value(id)
		m.b.WriteString("<" + tag)
		var slots []string
		for _, c := range t.Children(id) {
			switch t.Kind(c) {
			case tree.HTMLAttrib:
				m.b.WriteString(" " + t.Value(c) + `="` + html.EscapeString(t.Aux(c)) + `"`)
			case tree.HTMLPlaceholder:
				if t.Aux(c) != "" && !slices.Contains(slots, t.Value(c)) {
					slots = append(slots, t.Value(c))
				}
			}
		}
		for _, s := range slots {
			m.b.WriteString(" " + SlotAttribute + `="` + html.EscapeString(s) + `"`)
		}
		m.attached = append(m.attached, slots...)
		m.b.WriteString(">")
		if voidElements[tag] {
			return
		}
		for _, c := range t.Children(id) {
			if t.Kind(c) != tree.HTMLAttrib {
				m.node(c)
			}
		}
		m.b.WriteString("</" + tag + ">")
	}
}
