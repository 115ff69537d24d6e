package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/tree"
)

func mustCSS(t *testing.T, src string) *tree.Tree {
	t.Helper()
	tr, err := ParseCSS("a.css", []byte(src))
	require.NoError(t, err)
	return tr
}

// =============================================================================
// Stylesheets
// =============================================================================

func TestParseCSSRuleSet(t *testing.T) {
	tr := mustCSS(t, "p.foo { color: red }")

	root := tr.Root()
	assert.Equal(t, tree.CSSStylesheet, tr.Kind(root))
	require.Equal(t, 1, tr.NumChildren(root))
	rule := tr.Child(root, 0)
	assert.Equal(t, tree.CSSRuleSet, tr.Kind(rule))
	assert.Len(t, tr.Find(rule, tree.CSSSelector), 1)
	assert.Len(t, tr.Find(rule, tree.CSSDeclaration), 1)
	assert.Equal(t, "p.foo {\n  color: red;\n}\n", render.Stylesheet(tr))
}

func TestParseCSSSelectors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"div p", "div p"},
		{"a:hover > b.c", "a:hover > b.c"},
		{"#main", "#main"},
		{"*", "*"},
		{"ul li + li", "ul li + li"},
		{"input[type=text]", "input[type=text]"},
		{`a[href^="http"]`, `a[href^="http"]`},
		{"p::first-letter", "p::first-letter"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			tr := mustCSS(t, tt.src+" { color: red }")
			sels := tr.Find(tr.Root(), tree.CSSSelector)
			require.Len(t, sels, 1)
			assert.Equal(t, tt.want, render.CSS(tr, sels[0]))
		})
	}
}

func TestParseCSSSelectorGroup(t *testing.T) {
	tr := mustCSS(t, "h1, h2 { margin: 0 }")

	assert.Len(t, tr.Find(tr.Root(), tree.CSSSelector), 2)
	assert.Equal(t, "h1, h2 {\n  margin: 0;\n}\n", render.Stylesheet(tr))
}

func TestParseCSSValues(t *testing.T) {
	tests := []struct {
		name string
		decl string
		want string
	}{
		{"dimension", "margin: 10px 2em", "margin: 10px 2em"},
		{"negative", "margin: -5px 0", "margin: -5px 0"},
		{"percentage", "width: 50%", "width: 50%"},
		{"hash", "color: #fff", "color: #fff"},
		{"function", "color: rgb(1, 2, 3)", "color: rgb(1, 2, 3)"},
		{"uri", "background: url(a.png)", `background: url("a.png")`},
		{"string", `font-family: "Times New Roman"`, `font-family: "Times New Roman"`},
		{"words", "font-family: Times New Roman, serif", "font-family: Times New Roman, serif"},
		{"important", "color: red !important", "color: red !important"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := mustCSS(t, "p { "+tt.decl+" }")
			decls := tr.Find(tr.Root(), tree.CSSDeclaration)
			require.Len(t, decls, 1)
			assert.Equal(t, tt.want, render.CSS(tr, decls[0]))
		})
	}
}

func TestParseCSSDimensionSplitsUnit(t *testing.T) {
	tr := mustCSS(t, "p { width: 12.5em }")

	nums := tr.Find(tr.Root(), tree.CSSNumber)
	require.Len(t, nums, 1)
	assert.Equal(t, "12.5", tr.Value(nums[0]))
	assert.Equal(t, "em", tr.Aux(nums[0]))
}

func TestParseCSSAtRules(t *testing.T) {
	tr := mustCSS(t, `@import "base.css" screen;
@media print { p { color: black } }
@font-face { font-family: x }
@keyframes spin { }`)

	kinds := []tree.Kind{}
	for _, c := range tr.Children(tr.Root()) {
		kinds = append(kinds, tr.Kind(c))
	}
	assert.Equal(t, []tree.Kind{tree.CSSImport, tree.CSSMedia, tree.CSSFontFace, tree.CSSUnknownAtRule}, kinds)

	imp := tr.Child(tr.Root(), 0)
	assert.Equal(t, "base.css", tr.Value(tr.Child(imp, 0)))
	assert.Equal(t, `@import url("base.css") screen;`, render.CSS(tr, imp))

	media := tr.Child(tr.Root(), 1)
	assert.Equal(t, "@media print {\n  p {\n    color: black;\n  }\n}", render.CSS(tr, media))
}

func TestParseCSSSpans(t *testing.T) {
	tr := mustCSS(t, "a { color: red }\n\nb {\n  color: blue;\n}")

	rules := tr.Children(tr.Root())
	require.Len(t, rules, 2)
	assert.Equal(t, 1, tr.Span(rules[0]).StartLine)
	assert.Equal(t, 3, tr.Span(rules[1]).StartLine)
	assert.Equal(t, 4, tr.Span(tr.Find(rules[1], tree.CSSDeclaration)[0]).StartLine)
	assert.NoError(t, tr.CheckSpans())
}

func TestParseCSSRejectsBadSelector(t *testing.T) {
	_, err := ParseCSS("a.css", []byte("p!x { color: red }"))

	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.False(t, IsUnsupported(err))
}

// =============================================================================
// Declaration groups
// =============================================================================

func TestParseCSSDeclarations(t *testing.T) {
	tr, err := ParseCSSDeclarations("style", []byte("color: red; width: 10px"))
	require.NoError(t, err)

	assert.Equal(t, tree.CSSDeclGroup, tr.Kind(tr.Root()))
	assert.Equal(t, "color: red; width: 10px", render.CSS(tr, tr.Root()))
}

func TestUnescapeCSS(t *testing.T) {
	assert.Equal(t, "e", unescapeCSS(`\65 `))
	assert.Equal(t, "ab", unescapeCSS(`a\b`))
	assert.Equal(t, "plain", unescapeCSS("plain"))
}
