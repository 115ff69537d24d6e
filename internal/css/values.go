package css

import (
	"strconv"
	"strings"

	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
)

// QuoteLooseWords merges each maximal run of adjacent bare identifiers in a
// loose-word property (font-family) into one quoted string. A run that is a
// single generic family keyword stays bare.
func (r *Rewriter) QuoteLooseWords(t *tree.Tree) {
	var decls []tree.NodeID
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		if t.Kind(id) == tree.CSSDeclaration && r.Schema.IsLooseWordProperty(declarationProperty(t, id)) {
			decls = append(decls, id)
			return false
		}
		return true
	})

	for _, decl := range decls {
		expr := declarationExpr(t, decl)
		if expr == tree.NoNode {
			continue
		}
		var rebuilt []tree.NodeID
		var run []tree.NodeID
		flush := func() {
			switch {
			case len(run) == 0:
			case len(run) == 1 && r.Schema.IsGenericFamily(strings.ToLower(t.Value(run[0]))):
				rebuilt = append(rebuilt, run[0])
			default:
				words := make([]string, len(run))
				span := tree.Unknown
				for i, w := range run {
					words[i] = t.Value(w)
					span = tree.Join(span, t.Span(w))
				}
				joined := strings.Join(words, " ")
				s := t.AddSynthetic(tree.CSSString, joined)
				t.At(s).Span = span
				rebuilt = append(rebuilt, s)
				r.report(MsgQuotedWords, t, s, joined)
			}
			run = nil
		}
		for _, c := range t.Children(expr) {
			if t.Kind(c) == tree.CSSIdent {
				run = append(run, c)
				continue
			}
			flush()
			rebuilt = append(rebuilt, c)
		}
		flush()
		t.SetChildren(expr, rebuilt...)
	}
}

// CoerceUnits gives a px unit to unit-less non-zero numbers in properties
// that accept lengths but not plain numbers.
func (r *Rewriter) CoerceUnits(t *tree.Tree) {
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		if t.Kind(id) != tree.CSSDeclaration {
			return true
		}
		p, ok := r.Schema.Property(declarationProperty(t, id))
		if !ok || !p.Has(schema.KindLength) || p.Has(schema.KindNumber) {
			return false
		}
		expr := declarationExpr(t, id)
		if expr == tree.NoNode {
			return false
		}
		for _, c := range t.Children(expr) {
			if t.Kind(c) == tree.CSSNumber && t.Aux(c) == "" && !isZero(t.Value(c)) {
				t.SetAux(c, "px")
			}
		}
		return false
	})
}

func isZero(num string) bool {
	f, err := strconv.ParseFloat(num, 64)
	return err == nil && f == 0
}
