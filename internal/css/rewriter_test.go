package css

import (
	"net/url"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
	"github.com/roach88/capsule/internal/uri"
)

func newTestRewriter(ns string) *Rewriter {
	return New(schema.Default(), &uri.Policy{}, ns, diag.NewQueue(nil))
}

func parse(t *testing.T, src string) *tree.Tree {
	t.Helper()
	tr, err := ingest.ParseCSS("test.css", []byte(src))
	require.NoError(t, err)
	return tr
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}

// =============================================================================
// Full rewrite
// =============================================================================

func TestRewriteStylesheetGolden(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, `@import url(evil.css);
body.ie6 { }
p.foo, #main > a:hover { color: red; width: 10; font-family: Times New Roman, serif }
a:before { content: "x" }
@media print {
  .note { background: url(img/bg.png) no-repeat; behavior: url(x.htc) }
}
@font-face { font-family: "x" }
`)

	r.Rewrite(tr, mustURL(t, "https://example.com/css/site.css"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "rewrite_stylesheet", []byte(render.Stylesheet(tr)))

	q := r.Messages
	assert.Equal(t, 4, q.Count(diag.LevelError))
	assert.Equal(t, 1, q.Count(diag.LevelWarning))
	assert.Equal(t, 5, q.CountCode("CSS_REMOVED"))
	assert.Equal(t, 1, q.CountCode("CSS_QUOTED_WORDS"))
}

func TestRewriteNamespacesSelector(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, "p.foo {color:red}")

	r.Rewrite(tr, nil)

	assert.Equal(t, ".ns p.ns-foo {\n  color: red;\n}\n", render.Stylesheet(tr))
	assert.False(t, r.Messages.HasErrors())
}

func TestRewriteKeepsBodyQualifiedClass(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, "body.ie6 #main { }")

	r.Rewrite(tr, nil)

	assert.Equal(t, ".ns body.ie6 #ns-main {\n}\n", render.Stylesheet(tr))
}

func TestRewriteDeclarationGroup(t *testing.T) {
	r := newTestRewriter("ns")
	tr, err := ingest.ParseCSSDeclarations("style", []byte("color: red; content: 'x'; width: 5"))
	require.NoError(t, err)

	r.Rewrite(tr, nil)

	assert.Equal(t, "color: red; width: 5px", render.CSS(tr, tr.Root()))
	assert.Equal(t, 1, r.Messages.CountCode("CSS_DISALLOWED_PROPERTY"))
}

func TestRewriteWithoutNamespace(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p.foo { color: red }")

	r.Rewrite(tr, nil)

	assert.Equal(t, "p.foo {\n  color: red;\n}\n", render.Stylesheet(tr))
}

// =============================================================================
// Values
// =============================================================================

func TestQuoteLooseWords(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Times New Roman, serif", `"Times New Roman", serif`},
		{"Arial", `"Arial"`},
		{"serif", "serif"},
		{`"Already Quoted", monospace`, `"Already Quoted", monospace`},
		{"Comic Sans MS, cursive, Helvetica", `"Comic Sans MS", cursive, "Helvetica"`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r := newTestRewriter("")
			tr := parse(t, "p { font-family: "+tt.in+" }")

			r.QuoteLooseWords(tr)

			decl := tr.Find(tr.Root(), tree.CSSDeclaration)[0]
			assert.Equal(t, "font-family: "+tt.want, render.CSS(tr, decl))
		})
	}
}

func TestQuotedWordsKeepSpan(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p {\n  font-family: Times New Roman;\n}")

	r.QuoteLooseWords(tr)

	strs := tr.Find(tr.Root(), tree.CSSString)
	require.Len(t, strs, 1)
	assert.True(t, tr.Synthetic(strs[0]))
	assert.Equal(t, 2, tr.InferSpan(strs[0]).StartLine)
}

func TestCoerceUnits(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p { width: 10; line-height: 2; margin: 0 5; color: red }")

	r.CoerceUnits(tr)

	assert.Equal(t, "p {\n  width: 10px;\n  line-height: 2;\n  margin: 0 5px;\n  color: red;\n}\n", render.Stylesheet(tr))
}

// =============================================================================
// Unsafe construct removal
// =============================================================================

func TestRemoveUnsafe(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
		code string
	}{
		{"content property", "p { content: 'x'; color: red }", "p {\n  color: red;\n}\n", "CSS_DISALLOWED_PROPERTY"},
		{"pseudo", "a:hover, a:before { color: red }", "a:hover {\n  color: red;\n}\n", "CSS_DISALLOWED_PSEUDO"},
		{"function", "p { width: expression(alert(1)); color: red }", "p {\n  color: red;\n}\n", "CSS_DISALLOWED_FUNCTION"},
		{"javascript uri", "p { background: url(javascript:evil); color: red }", "p {\n  color: red;\n}\n", "CSS_DISALLOWED_URI"},
		{"bad id", "#1abc, p { color: red }", "p {\n  color: red;\n}\n", "CSS_BAD_IDENTIFIER"},
		{"unknown property", "p { colr: red; color: red }", "p {\n  color: red;\n}\n", "CSS_UNKNOWN_PROPERTY"},
		{"unknown element", "blink, p { color: red }", "p {\n  color: red;\n}\n", "CSS_UNKNOWN_ELEMENT"},
		{"unknown at-rule", "@keyframes spin { } p { color: red }", "p {\n  color: red;\n}\n", "CSS_DISALLOWED_AT_RULE"},
		{"import", "@import 'a.css'; p { color: red }", "p {\n  color: red;\n}\n", "CSS_UNRESOLVED_IMPORT"},
		{"emptied rule", "p { content: 'x' }", "", "CSS_DISALLOWED_PROPERTY"},
		{"emptied media", "@media print { p { content: 'x' } }", "", "CSS_DISALLOWED_PROPERTY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRewriter("")
			tr := parse(t, tt.src)

			removed := r.RemoveUnsafe(tr, nil)

			assert.Positive(t, removed)
			assert.Equal(t, tt.want, render.Stylesheet(tr))
			assert.Positive(t, r.Messages.CountCode(tt.code))
			assert.Positive(t, r.Messages.CountCode("CSS_REMOVED"))
		})
	}
}

func TestRemoveUnsafeSeverities(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p { colr: red; content: 'x'; color: red }")

	r.RemoveUnsafe(tr, nil)

	q := r.Messages
	assert.Equal(t, 1, q.Count(diag.LevelWarning))
	assert.Equal(t, 1, q.Count(diag.LevelError))
	assert.Equal(t, 2, q.Count(diag.LevelLint))
}

func TestRemoveUnsafeFlagsNestedFunctionOnce(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p { width: expression(alert(1)) }")

	r.RemoveUnsafe(tr, nil)

	assert.Equal(t, 1, r.Messages.Count(diag.LevelError))
	assert.Equal(t, 1, r.Messages.CountCode("CSS_DISALLOWED_FUNCTION"))
	assert.Empty(t, render.Stylesheet(tr))
}

func TestRemoveUnsafeKeepsAuthorEmptyRule(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p { }")

	assert.Zero(t, r.RemoveUnsafe(tr, nil))
	assert.Equal(t, "p {\n}\n", render.Stylesheet(tr))
}

func TestRemoveUnsafeIdempotent(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, `p.foo, a:before { color: red; content: "x"; background: url(javascript:x) }
@media print { a:visited { colr: blue } }
#1x { color: red }`)

	r.RemoveUnsafe(tr, nil)
	once := render.Stylesheet(tr)
	mark := r.Messages.Len()

	assert.Zero(t, r.RemoveUnsafe(tr, nil))
	assert.Equal(t, once, render.Stylesheet(tr))
	assert.Empty(t, r.Messages.Since(mark))
}

func TestRemoveUnsafeIdempotentAfterNamespace(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, "p.foo > a:hover, body.x { color: red }")

	r.RemoveUnsafe(tr, nil)
	r.Namespace(tr)
	mark := r.Messages.Len()

	assert.Zero(t, r.RemoveUnsafe(tr, nil))
	assert.Empty(t, r.Messages.Since(mark))
}

// =============================================================================
// Namespacing
// =============================================================================

func TestNamespaceOnce(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, "p.foo { color: red }")

	r.Namespace(tr)
	r.Namespace(tr)

	assert.Equal(t, ".ns p.ns-foo {\n  color: red;\n}\n", render.Stylesheet(tr))
}

func TestNamespaceSyntheticNodes(t *testing.T) {
	r := newTestRewriter("ns")
	tr := parse(t, "p { color: red }")

	r.Namespace(tr)

	sel := tr.Find(tr.Root(), tree.CSSSelector)[0]
	scope := tr.Child(sel, 0)
	assert.True(t, tr.Synthetic(scope))
	assert.True(t, tr.Synthetic(tr.Child(sel, 1)))
	assert.Equal(t, " ", tr.Value(tr.Child(sel, 1)))
	assert.False(t, tr.Synthetic(tr.Child(sel, 2)))
}

// =============================================================================
// URI translation
// =============================================================================

func TestTranslateURIsResolvesAgainstOrigin(t *testing.T) {
	r := newTestRewriter("")
	tr := parse(t, "p { background: url(img.png) }")

	deleted := r.TranslateURIs(tr, mustURL(t, "https://example.com/a/b.css"))

	assert.Zero(t, deleted)
	assert.Equal(t, "p {\n  background: url(\"https://example.com/a/img.png\");\n}\n", render.Stylesheet(tr))
}

func TestTranslateURIsThroughProxy(t *testing.T) {
	r := New(schema.Default(), &uri.Policy{ProxyTemplate: "https://proxy.test/?u={url}"}, "", diag.NewQueue(nil))
	tr := parse(t, "p { background: url(https://cdn.test/x.png) }")

	r.TranslateURIs(tr, nil)

	assert.Contains(t, render.Stylesheet(tr), `url("https://proxy.test/?u=https%3A%2F%2Fcdn.test%2Fx.png")`)
}

func TestTranslateURIsDeletesRejected(t *testing.T) {
	r := New(schema.Default(), &uri.Policy{AllowedHosts: []string{"cdn.test"}}, "", diag.NewQueue(nil))
	tr := parse(t, "p { background: url(https://evil.test/x.png); color: red }")

	deleted := r.TranslateURIs(tr, nil)

	assert.Equal(t, 1, deleted)
	assert.Equal(t, "p {\n  color: red;\n}\n", render.Stylesheet(tr))
	assert.Equal(t, 1, r.Messages.CountCode("CSS_DISALLOWED_URI"))
}

func TestTranslateURIsOnce(t *testing.T) {
	r := New(schema.Default(), &uri.Policy{ProxyTemplate: "https://proxy.test/?u={url}"}, "", diag.NewQueue(nil))
	tr := parse(t, "p { background: url(https://cdn.test/x.png) }")

	r.TranslateURIs(tr, nil)
	once := render.Stylesheet(tr)
	r.TranslateURIs(tr, nil)

	assert.Equal(t, once, render.Stylesheet(tr))
}
