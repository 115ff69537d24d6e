package css

import (
	"net/url"

	"github.com/roach88/capsule/internal/tree"
)

// TranslateURIs replaces every URI with the policy's rewritten form. A URI
// the policy rejects takes its declaration with it. It returns the number of
// declarations deleted.
func (r *Rewriter) TranslateURIs(t *tree.Tree, origin *url.URL) int {
	if t.Root() == tree.NoNode {
		return 0
	}
	var units []tree.NodeID
	for _, id := range t.Find(t.Root(), tree.CSSURI) {
		if t.Aux(id) == translatedMarker || t.Ancestor(id, tree.CSSImport) != tree.NoNode {
			continue
		}
		v := t.Value(id)
		rewritten, ok := "", false
		if r.Policy != nil {
			rewritten, ok = r.Policy.Rewrite(v, origin, uriMIME)
		}
		if ok {
			t.SetValue(id, rewritten)
			t.SetAux(id, translatedMarker)
			continue
		}
		r.report(MsgDisallowedURI, t, id, v)
		if u := removableUnit(t, id); u != tree.NoNode && u != t.Root() && !t.Invalid(u) {
			t.SetInvalid(u, true)
			units = append(units, u)
		}
	}
	touched := r.deleteUnits(t, units)
	return len(units) + r.deleteEmptied(t, touched)
}
