package ingest

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/roach88/capsule/internal/tree"
)

// ParseHTML parses an HTML fragment or document into an HTMLDocument tree.
// The contents of head and body are flattened into the document's children;
// comments and doctypes are dropped.
func ParseHTML(file string, src []byte) (*tree.Tree, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(src))
	if err != nil {
		return nil, &ParseError{File: file, Message: err.Error()}
	}
	b := &htmlBuilder{t: tree.New(file), loc: newLocator(file, string(src))}
	var children []tree.NodeID
	doc.Find("head, body").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Contents().Nodes {
			if id := b.node(n); id != tree.NoNode {
				children = append(children, id)
			}
		}
	})
	root := b.t.Add(tree.HTMLDocument, "", b.loc.whole(), children...)
	b.t.SetRoot(root)
	return b.t, nil
}

type htmlBuilder struct {
	t   *tree.Tree
	loc *locator
}

func (b *htmlBuilder) node(n *html.Node) tree.NodeID {
	switch n.Type {
	case html.TextNode:
		return b.t.Add(tree.HTMLText, n.Data, tree.Unknown)
	case html.ElementNode:
		span := b.loc.findFold("<" + n.Data)
		var children []tree.NodeID
		for _, a := range n.Attr {
			if a.Namespace != "" {
				continue
			}
			id := b.t.Add(tree.HTMLAttrib, a.Key, tree.Unknown)
			b.t.SetAux(id, a.Val)
			children = append(children, id)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if id := b.node(c); id != tree.NoNode {
				children = append(children, id)
			}
		}
		id := b.t.Add(tree.HTMLElement, n.Data, span, children...)
		cover(b.t, id)
		return id
	default:
		return tree.NoNode
	}
}
