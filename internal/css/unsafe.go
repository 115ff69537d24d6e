package css

import (
	"net/url"
	"slices"
	"strings"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/tree"
)

// RemoveUnsafe flags unsafe constructs, propagates the flag to the
// enclosing removable unit (declaration, selector or at-rule), deletes the
// units and then deletes rule sets and media blocks the deletion emptied.
// It returns the number of units deleted.
func (r *Rewriter) RemoveUnsafe(t *tree.Tree, origin *url.URL) int {
	if t.Root() == tree.NoNode {
		return 0
	}
	r.flagIdentifiers(t)
	r.flagDisallowed(t, origin)
	units := r.propagateInvalid(t)
	touched := r.deleteUnits(t, units)
	return len(units) + r.deleteEmptied(t, touched)
}

// flagIdentifiers is sub-pass (a): the strict identifier pattern and the
// schema's known element and property names.
func (r *Rewriter) flagIdentifiers(t *tree.Tree) {
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		v := t.Value(id)
		switch t.Kind(id) {
		case tree.CSSElementName:
			if v == "*" {
				return true
			}
			if !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "element", v)
			} else if !r.Schema.IsCSSElement(strings.ToLower(v)) {
				r.flag(t, id, MsgUnknownElement, v)
			}
		case tree.CSSClassLiteral:
			if !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "class", v)
			}
		case tree.CSSIDLiteral:
			if !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "id", v)
			}
		case tree.CSSAttrib:
			if !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "attribute", v)
			}
		case tree.CSSProperty:
			if !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "property", v)
			} else if _, ok := r.Schema.Property(v); !ok {
				r.flag(t, id, MsgUnknownProperty, v)
			}
		case tree.CSSIdent:
			if t.Ancestor(id, tree.CSSAttrib) == tree.NoNode && !identPattern.MatchString(v) {
				r.flag(t, id, MsgBadIdentifier, "keyword", v)
			}
		}
		return true
	})
}

// flagDisallowed is sub-pass (b): the content property, pseudo-selectors
// outside the allow list, value functions, URIs the policy rejects and
// at-rules that cannot be scoped.
func (r *Rewriter) flagDisallowed(t *tree.Tree, origin *url.URL) {
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		if t.Invalid(id) {
			return true
		}
		v := t.Value(id)
		switch t.Kind(id) {
		case tree.CSSProperty:
			if v == "content" {
				r.flag(t, id, MsgDisallowedProperty, v)
			}
		case tree.CSSPseudo:
			if !allowedPseudo[strings.ToLower(v)] {
				r.flag(t, id, MsgDisallowedPseudo, t.Aux(id)+v)
			}
		case tree.CSSFunction:
			if !r.Schema.IsFunction(strings.ToLower(v)) {
				r.flag(t, id, MsgDisallowedFunction, v)
				// Arguments go with the function.
				return false
			}
		case tree.CSSURI:
			if t.Aux(id) == translatedMarker || t.Ancestor(id, tree.CSSImport) != tree.NoNode {
				return true
			}
			if r.Policy == nil {
				r.flag(t, id, MsgDisallowedURI, v)
			} else if _, ok := r.Policy.Rewrite(v, origin, uriMIME); !ok {
				r.flag(t, id, MsgDisallowedURI, v)
			}
		case tree.CSSImport:
			r.flag(t, id, MsgUnresolvedImport)
			return false
		case tree.CSSUnknownAtRule:
			r.flag(t, id, MsgDisallowedAtRule, "@"+v)
			return false
		case tree.CSSFontFace:
			r.flag(t, id, MsgDisallowedAtRule, "@font-face")
			return false
		}
		return true
	})
}

func (r *Rewriter) flag(t *tree.Tree, id tree.NodeID, mt *diag.MessageType, args ...any) {
	if t.Invalid(id) {
		return
	}
	t.SetInvalid(id, true)
	r.report(mt, t, id, args...)
}

// removableUnit returns the nearest node, id itself included, that is
// deleted as a whole when something inside it is unsafe.
func removableUnit(t *tree.Tree, id tree.NodeID) tree.NodeID {
	for cur := id; cur != tree.NoNode; cur = t.Parent(cur) {
		switch t.Kind(cur) {
		case tree.CSSDeclaration, tree.CSSSelector, tree.CSSImport,
			tree.CSSUnknownAtRule, tree.CSSFontFace:
			return cur
		case tree.CSSMedium:
			return t.Parent(cur)
		}
	}
	return tree.NoNode
}

// propagateInvalid is sub-pass (c). It marks each enclosing unit invalid
// and returns the units in document order.
func (r *Rewriter) propagateInvalid(t *tree.Tree) []tree.NodeID {
	var units []tree.NodeID
	seen := map[tree.NodeID]bool{}
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		if !t.Invalid(id) {
			return true
		}
		u := removableUnit(t, id)
		if u == tree.NoNode || u == t.Root() {
			// Nothing encloses it; clearing the marker keeps the pass idempotent.
			t.SetInvalid(id, false)
			return true
		}
		t.SetInvalid(u, true)
		if !seen[u] {
			seen[u] = true
			units = append(units, u)
		}
		return true
	})
	return units
}

// deleteUnits is sub-pass (d): one mutation batch removes every unit.
// It returns the rule sets and media blocks that lost a child.
func (r *Rewriter) deleteUnits(t *tree.Tree, units []tree.NodeID) []tree.NodeID {
	if len(units) == 0 {
		return nil
	}
	var touched []tree.NodeID
	m := t.Mutate()
	for _, u := range units {
		if p := t.Parent(u); p != tree.NoNode {
			if k := t.Kind(p); (k == tree.CSSRuleSet || k == tree.CSSMedia) && !slices.Contains(touched, p) {
				touched = append(touched, p)
			}
		}
		r.report(MsgRemoved, t, u, describe(t, u))
		m.Remove(u)
	}
	// Every unit was attached when recorded, so Execute cannot fail.
	_ = m.Execute()
	return touched
}

// deleteEmptied is sub-pass (e): a rule set that lost a unit and is left
// without selectors or without declarations is deleted, as is a media block
// left without rule sets. Containers that lost nothing are kept, so an
// author's empty rule set survives.
func (r *Rewriter) deleteEmptied(t *tree.Tree, touched []tree.NodeID) int {
	removed := 0
	for len(touched) > 0 {
		var next []tree.NodeID
		m := t.Mutate()
		for _, c := range touched {
			empty := false
			switch t.Kind(c) {
			case tree.CSSRuleSet:
				empty = countKind(t, c, tree.CSSSelector) == 0 || countKind(t, c, tree.CSSDeclaration) == 0
			case tree.CSSMedia:
				empty = countKind(t, c, tree.CSSRuleSet) == 0
			}
			if !empty || !t.IsAttached(c) {
				continue
			}
			if p := t.Parent(c); p != tree.NoNode && t.Kind(p) == tree.CSSMedia {
				next = append(next, p)
			}
			m.Remove(c)
		}
		removed += m.Len()
		_ = m.Execute()
		touched = next
	}
	return removed
}

func countKind(t *tree.Tree, id tree.NodeID, kind tree.Kind) int {
	n := 0
	for _, c := range t.Children(id) {
		if t.Kind(c) == kind {
			n++
		}
	}
	return n
}
