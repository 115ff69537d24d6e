package css

import (
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

// Namespace prefixes class and id literals with "<ns>-" and scopes every
// selector under the namespace class with a descendant combinator. Class
// literals in a compound selector qualified by the body element keep their
// names; ids are always prefixed. A tree is namespaced at most once.
func (r *Rewriter) Namespace(t *tree.Tree) {
	root := t.Root()
	if r.Scope == "" || root == tree.NoNode || t.Aux(root) == namespacedMarker {
		return
	}
	t.SetAux(root, namespacedMarker)
	prefix := r.Scope + "-"

	for _, sel := range t.Find(root, tree.CSSSelector) {
		for _, simple := range t.Children(sel) {
			if t.Kind(simple) != tree.CSSSimpleSelector {
				continue
			}
			bodyQualified := isBodyQualified(t, simple)
			for _, c := range t.Children(simple) {
				switch t.Kind(c) {
				case tree.CSSClassLiteral:
					if !bodyQualified {
						t.SetValue(c, prefix+t.Value(c))
					}
				case tree.CSSIDLiteral:
					t.SetValue(c, prefix+t.Value(c))
				}
			}
		}

		scope := t.AddSynthetic(tree.CSSSimpleSelector, "",
			t.AddSynthetic(tree.CSSClassLiteral, r.Scope))
		comb := t.AddSynthetic(tree.CSSCombination, " ")
		t.SetChildren(sel, append([]tree.NodeID{scope, comb}, t.Children(sel)...)...)
	}
}

func isBodyQualified(t *tree.Tree, simple tree.NodeID) bool {
	first := t.Child(simple, 0)
	return first != tree.NoNode && t.Kind(first) == tree.CSSElementName &&
		strings.EqualFold(t.Value(first), "body")
}
