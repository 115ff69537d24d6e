package stages

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
	"github.com/roach88/capsule/internal/uri"
)

const testBase = "https://example.com"

type source struct {
	ct   job.ContentType
	file string
	src  string
}

func newPool(t *testing.T, base string, sources ...source) *job.Pool {
	t.Helper()
	pool := job.NewPool()
	for _, s := range sources {
		tr, err := ingest.Default{}.Parse(s.ct, s.file, []byte(s.src))
		require.NoError(t, err)
		origin, err := url.Parse(base + "/" + s.file)
		require.NoError(t, err)
		pool.AddJob(job.New(s.ct, tr, origin, nil))
	}
	return pool
}

func testResolver() *uri.Resolver {
	policy := &uri.Policy{}
	return uri.NewResolver(policy, uri.NewLoader(uri.LoaderOptions{Policy: policy}))
}

func compile(t *testing.T, pool *job.Pool, opts Options, popts ...Option) (bool, *Jobs) {
	t.Helper()
	if opts.Namespace == "" {
		opts.Namespace = "ns"
	}
	jobs := NewJobs(pool, diag.NewQueue(nil))
	p := New(Standard(opts), append([]Option{WithLogger(discardLogger())}, popts...)...)
	ok, err := p.Run(context.Background(), jobs)
	require.NoError(t, err)
	return ok, jobs
}

// runStages applies a hand-picked stage list, for looking at intermediate
// pools.
func runStages(t *testing.T, pool *job.Pool, stages ...Stage) *Jobs {
	t.Helper()
	jobs := NewJobs(pool, diag.NewQueue(nil))
	_, err := New(stages, WithLogger(discardLogger())).Run(context.Background(), jobs)
	require.NoError(t, err)
	return jobs
}

func output(pool *job.Pool) string {
	var parts []string
	for _, j := range pool.Jobs() {
		switch j.ContentType() {
		case job.CSS:
			parts = append(parts, "/* css */\n"+render.Stylesheet(j.Tree()))
		case job.JS:
			parts = append(parts, "// js\n"+render.Script(j.Tree()))
		}
	}
	return strings.Join(parts, "\n")
}

func codes(q *diag.Queue) []string {
	var out []string
	for _, m := range q.Messages() {
		out = append(out, m.Type.Code)
	}
	return out
}

// statements describes the top-level statements of a program: the runtime
// entry point for ___.name(...) calls, the node kind otherwise.
func statements(tr *tree.Tree) []string {
	var out []string
	for _, s := range tr.Children(tr.Root()) {
		out = append(out, describeStatement(tr, s))
	}
	return out
}

func describeStatement(tr *tree.Tree, s tree.NodeID) string {
	if tr.Kind(s) == tree.JSExprStmt {
		call := tr.Child(s, 0)
		if tr.Kind(call) == tree.JSCall {
			callee := tr.Child(call, 0)
			if tr.Kind(callee) == tree.JSMember && tr.Value(tr.Child(callee, 0)) == "___" {
				return tr.Value(callee)
			}
		}
	}
	return tr.Kind(s).String()
}

// stringArg returns the decoded string argument i of the call in statement s.
func stringArg(tr *tree.Tree, s tree.NodeID, i int) string {
	return tr.Value(tr.Child(tr.Child(s, 0), i+1))
}

// =============================================================================
// Standard
// =============================================================================

func TestStandardOrder(t *testing.T) {
	var names []string
	for _, s := range Standard(Options{}) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"fetch-cache",
		"extract-html",
		"resolve-external",
		"namespace",
		"rewrite-css",
		"compile-templates",
		"rewrite-globals",
		"sandbox-js",
		"store-cache",
		"consolidate",
		"check-errors",
	}, names)
}

func TestCleanBundle(t *testing.T) {
	pool := newPool(t, testBase,
		source{job.CSS, "a.css", ".a { color: red }"},
		source{job.JS, "b.js", "var x = 1;"},
	)

	ok, jobs := compile(t, pool, Options{Resolver: testResolver()})

	require.True(t, ok, codes(jobs.Messages))
	require.Len(t, jobs.Pool.ByType(job.CSS), 1)
	require.Len(t, jobs.Pool.ByType(job.JS), 1)
	out := output(jobs.Pool)
	assert.Contains(t, out, ".ns .ns-a {")
	assert.Contains(t, out, "___.loadModule(")
	assert.Contains(t, out, "namespace: 'ns'")
	assert.Equal(t, "ns", jobs.Meta.Namespace)
	assert.Len(t, jobs.Meta.Signature, 32)
}

func TestEmptyBundleStillGetsInitializer(t *testing.T) {
	ok, jobs := compile(t, job.NewPool(), Options{})

	assert.True(t, ok)
	js := jobs.Pool.ByType(job.JS)
	require.Len(t, js, 1)
	assert.Contains(t, render.Script(js[0].Job.Tree()), "___.loadModule(")
}

// =============================================================================
// Partial failure
// =============================================================================

func partialFailureBundle(t *testing.T) *job.Pool {
	return newPool(t, testBase,
		source{job.CSS, "a.css", ".a { color: red }"},
		source{job.CSS, "b.css", `p { content: "x"; color: red }`},
		source{job.CSS, "c.css", ".c { color: blue }"},
	)
}

func TestCollectAllIsolatesFailingFragment(t *testing.T) {
	mem := cache.NewMemory(cache.NewKeyer("ns"))

	ok, jobs := compile(t, partialFailureBundle(t), Options{Cache: mem})

	assert.False(t, ok)
	assert.Equal(t, 1, jobs.Messages.Count(diag.LevelError), codes(jobs.Messages))
	assert.Equal(t, 0, jobs.Messages.Count(diag.LevelFatal))
	assert.Equal(t, 1, jobs.Messages.CountCode("CSS_DISALLOWED_PROPERTY"))

	sheets := jobs.Pool.ByType(job.CSS)
	require.Len(t, sheets, 3)
	assert.Contains(t, render.Stylesheet(sheets[0].Job.Tree()), ".ns .ns-a {")
	assert.NotContains(t, render.Stylesheet(sheets[1].Job.Tree()), "content")
	assert.Contains(t, render.Stylesheet(sheets[2].Job.Tree()), ".ns .ns-c {")
	assert.Len(t, jobs.Pool.ByType(job.JS), 1)
	assert.Equal(t, 0, mem.Len(), "a failing bundle never populates the cache")
}

func TestFailFastStopsAfterFailingStage(t *testing.T) {
	ok, jobs := compile(t, partialFailureBundle(t), Options{}, WithMode(ModeFailFast))

	assert.False(t, ok)
	assert.Len(t, jobs.Pool.ByType(job.CSS), 3)
	assert.Empty(t, jobs.Pool.ByType(job.JS), "consolidate never ran")
}

// =============================================================================
// Documents
// =============================================================================

func TestMultipleDocumentsAreDiagnosed(t *testing.T) {
	pool := newPool(t, testBase,
		source{job.HTML, "a.html", "<p>a</p>"},
		source{job.HTML, "b.html", "<p>b</p>"},
	)

	ok, jobs := compile(t, pool, Options{})

	assert.False(t, ok)
	assert.Equal(t, 1, jobs.Messages.CountCode("PIPELINE_MULTIPLE_HTML"))
	assert.Equal(t, 0, jobs.Messages.CountCode("PIPELINE_UNABSORBED_HTML"))
	assert.Empty(t, jobs.Pool.ByType(job.HTML))
	assert.Len(t, jobs.Pool.ByType(job.JS), 1)
}

func TestUncompiledDocumentIsFatal(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "a.html", "<p>a</p>"})

	jobs := runStages(t, pool, namespace{configured: "ns"}, consolidate{}, checkErrors{})

	assert.Equal(t, 1, jobs.Messages.CountCode("PIPELINE_UNABSORBED_HTML"))
	assert.Equal(t, diag.LevelFatal, jobs.Messages.MaxLevel())
}

func TestExtractHTML(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<p class="x" style="color: red" onclick="go(this)">Hi</p>` +
			`<style>.s { color: blue }</style><script>var y = 2;</script>` +
			`<link rel="stylesheet" href="site.css"><script src="lib.js"></script>`})

	jobs := runStages(t, pool, extractHTML{parser: ingest.Default{}})

	envs := jobs.Pool.All()
	require.Len(t, envs, 5)
	assert.Equal(t, job.HTML, envs[0].ContentType())

	ph1 := PlaceholderID("page.html", 1)
	assert.Equal(t, job.InsertionPoint{Placeholder: ph1, Attribute: "style"}, *envs[1].Job.Target())
	assert.Equal(t, job.CSS, envs[1].ContentType())
	assert.Equal(t, job.InsertionPoint{Placeholder: ph1, Attribute: "onclick"}, *envs[2].Job.Target())
	assert.Equal(t, job.JS, envs[2].ContentType())
	assert.NotEqual(t, tree.NoNode, HandlerFunction(envs[2].Job.Tree()))
	assert.Equal(t, job.InsertionPoint{Placeholder: PlaceholderID("page.html", 2)}, *envs[3].Job.Target())
	assert.Equal(t, job.CSS, envs[3].ContentType())
	assert.Equal(t, job.InsertionPoint{Placeholder: PlaceholderID("page.html", 3)}, *envs[4].Job.Target())
	assert.Equal(t, job.JS, envs[4].ContentType())
	for _, env := range envs[1:] {
		assert.Equal(t, env.Job.Target().Placeholder, env.Placeholder)
	}

	doc := envs[0].Job.Tree()
	phs := doc.Find(doc.Root(), tree.HTMLPlaceholder)
	require.Len(t, phs, 6)
	var refs []string
	for _, ph := range phs {
		if a := doc.Child(ph, 0); a != tree.NoNode {
			refs = append(refs, doc.Value(a)+"="+doc.Aux(a))
		}
	}
	assert.Equal(t, []string{"href=site.css", "src=lib.js"}, refs)
	assert.Empty(t, doc.Find(doc.Root(), tree.HTMLText)[1:], "only the paragraph text is left")
}

func TestExtractHTMLRejectsForeignScripts(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<script type="text/template"><b>x</b></script><script src=""></script><p onclick="}); (function () {">x</p>`})

	jobs := runStages(t, pool, extractHTML{parser: ingest.Default{}})

	assert.Equal(t, 1, jobs.Messages.CountCode("HTML_SCRIPT_TYPE"))
	assert.Equal(t, 1, jobs.Messages.CountCode("HTML_MISSING_REFERENCE"))
	assert.Equal(t, 1, jobs.Messages.CountCode("JS_PARSE_ERROR"))
	assert.Equal(t, 1, jobs.Pool.Len())
}

func TestCompileTemplate(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<p class="x" style="color: red" onclick="go(this)">Hi <b>there</b></p><script>var y = 2;</script>`})

	jobs := runStages(t, pool,
		extractHTML{parser: ingest.Default{}},
		namespace{configured: "ns"},
		rewriteCSS{schema: schema.Default(), policy: testResolver()},
		newCompileTemplates(schema.Default(), testResolver(), nil),
	)

	require.True(t, jobs.HasNoErrors(), codes(jobs.Messages))
	require.Equal(t, 1, jobs.Pool.Len(), "every extracted job was absorbed")
	tr := jobs.Pool.Jobs()[0].Tree()
	assert.Equal(t, job.JS, jobs.Pool.Jobs()[0].ContentType())
	assert.Equal(t, []string{"emitHtml", "applyStyle", "attachHandler", "js.vardecl"}, statements(tr))

	ph := PlaceholderID("page.html", 1)
	stmts := tr.Children(tr.Root())
	assert.Equal(t, `<p class="ns-x" data-capsule="`+ph+`">Hi <b>there</b></p>`, stringArg(tr, stmts[0], 0))
	assert.Equal(t, ph, stringArg(tr, stmts[1], 0))
	assert.Equal(t, "color: red", stringArg(tr, stmts[1], 1))
	assert.Equal(t, ph, stringArg(tr, stmts[2], 0))
	assert.Equal(t, "click", stringArg(tr, stmts[2], 1))
}

func TestCompileTemplateCleansMarkup(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<blink>x</blink><a href="javascript:alert(1)">l</a><img src="i.png" onfoo="bar()" nonsense="1">`})

	jobs := runStages(t, pool,
		extractHTML{parser: ingest.Default{}},
		namespace{configured: "ns"},
		newCompileTemplates(schema.Default(), testResolver(), nil),
	)

	assert.Equal(t, 1, jobs.Messages.CountCode("HTML_UNKNOWN_ELEMENT"))
	assert.Equal(t, 1, jobs.Messages.CountCode("HTML_DISALLOWED_URI"))
	assert.Equal(t, 2, jobs.Messages.CountCode("HTML_UNKNOWN_ATTRIBUTE"))
	require.Equal(t, 1, jobs.Pool.Len(), "the unknown handler was dropped")

	tr := jobs.Pool.Jobs()[0].Tree()
	markup := stringArg(tr, tr.Child(tr.Root(), 0), 0)
	assert.NotContains(t, markup, "blink")
	assert.NotContains(t, markup, "javascript")
	assert.NotContains(t, markup, "nonsense")
	assert.Contains(t, markup, "x")
	assert.Contains(t, markup, `src="https://example.com/i.png"`)
}

func TestCompiledDocumentIsSandboxed(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<p style="color: red" onclick="go(this)">Hi</p><script>var y = 2;</script>`})

	ok, jobs := compile(t, pool, Options{Resolver: testResolver()})

	require.True(t, ok, codes(jobs.Messages))
	out := output(jobs.Pool)
	assert.Contains(t, out, "___.emitHtml(")
	assert.Contains(t, out, "___.applyStyle(")
	assert.Contains(t, out, "___.attachHandler(")
	assert.Contains(t, out, "IMPORTS___.y")
	assert.Contains(t, out, "t___")
}

// =============================================================================
// Cache
// =============================================================================

func cacheBundle(t *testing.T) *job.Pool {
	return newPool(t, testBase,
		source{job.HTML, "page.html",
			`<p class="x" style="color: red">Hi</p><style>.s { color: blue }</style><script>var y = 2;</script>`},
		source{job.CSS, "a.css", ".a { color: red }"},
		source{job.JS, "b.js", "var x = 1; x += 2;"},
	)
}

func TestCacheIsTransparent(t *testing.T) {
	opts := Options{Resolver: testResolver()}
	ok, stub := compile(t, cacheBundle(t), opts)
	require.True(t, ok, codes(stub.Messages))
	want := output(stub.Pool)

	opts.Cache = cache.NewMemory(cache.NewKeyer("ns"))
	ok, cold := compile(t, cacheBundle(t), opts)
	require.True(t, ok)
	assert.Equal(t, want, output(cold.Pool))
	assert.Equal(t, 3, opts.Cache.(*cache.Memory).Len())
	assert.Zero(t, cold.Messages.CountCode("CACHE_HIT"))

	ok, warm := compile(t, cacheBundle(t), opts)
	require.True(t, ok)
	assert.Equal(t, want, output(warm.Pool))
	assert.Equal(t, 3, warm.Messages.CountCode("CACHE_HIT"))
	assert.Equal(t, cold.Meta.Namespace, warm.Meta.Namespace)
	assert.Equal(t, cold.Meta.Signature, warm.Meta.Signature)
	assert.Equal(t, stub.Meta.Signature, warm.Meta.Signature)

	for _, env := range warm.Pool.All() {
		assert.False(t, env.FromCache)
		assert.True(t, env.Keys.IsEmpty())
	}
}

func TestDerivedNamespaceIsStableAcrossCache(t *testing.T) {
	mem := cache.NewMemory(cache.NewKeyer("v1"))
	run := func(namespace string) *Jobs {
		t.Helper()
		jobs := NewJobs(cacheBundle(t), diag.NewQueue(nil))
		opts := Options{Namespace: namespace, Resolver: testResolver(), Cache: mem}
		ok, err := New(Standard(opts), WithLogger(discardLogger())).Run(context.Background(), jobs)
		require.NoError(t, err)
		require.True(t, ok, codes(jobs.Messages))
		return jobs
	}

	cold := run("")
	warm := run("")

	ns := cold.Meta.Namespace
	var origins []*url.URL
	for _, f := range []string{"page.html", "a.css", "b.js"} {
		u, err := url.Parse(testBase + "/" + f)
		require.NoError(t, err)
		origins = append(origins, u)
	}
	assert.Equal(t, ResolveNamespace("", origins), ns)
	assert.Equal(t, 3, warm.Messages.CountCode("CACHE_HIT"))
	assert.Equal(t, ns, warm.Meta.Namespace)
	assert.Equal(t, cold.Meta.Signature, warm.Meta.Signature)
	assert.Equal(t, output(cold.Pool), output(warm.Pool))
	assert.Contains(t, output(warm.Pool), "namespace: '"+ns+"'")
	assert.Contains(t, output(warm.Pool), "."+ns+" ."+ns+"-a {")

	other := run("other")
	assert.Zero(t, other.Messages.CountCode("CACHE_HIT"), "entries are scoped to their namespace")
	assert.Contains(t, output(other.Pool), ".other .other-a {")
}

func TestNoCacheInputsSkipLookup(t *testing.T) {
	mem := cache.NewMemory(cache.NewKeyer("ns"))
	pool := newPool(t, testBase, source{job.CSS, "a.css", ".a { color: red }"})
	pool.All()[0].NoCache = true

	ok, _ := compile(t, pool, Options{Cache: mem})

	assert.True(t, ok)
	assert.Equal(t, 0, mem.Len())
}

// =============================================================================
// External content
// =============================================================================

func TestExternalLoadFailureIsInert(t *testing.T) {
	pool := newPool(t, testBase, source{job.HTML, "page.html",
		`<script src="missing.js"></script><link rel="stylesheet" href="gone.css"><p>x</p>`})

	ok, jobs := compile(t, pool, Options{})

	assert.True(t, ok, codes(jobs.Messages))
	assert.Equal(t, 2, jobs.Messages.CountCode("URI_LOAD_FAILED"))
	assert.Contains(t, output(jobs.Pool), "failed to load https://example.com/missing.js")
	require.Len(t, jobs.Pool.ByType(job.CSS), 1)
	assert.Empty(t, render.Stylesheet(jobs.Pool.ByType(job.CSS)[0].Job.Tree()))
}

func newAssetServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExternalContentIsLoadedAndNeverCached(t *testing.T) {
	srv := newAssetServer(t, map[string]string{
		"/lib.js":   "var z = 3;",
		"/base.css": `@import "more.css"; .b { color: blue }`,
		"/more.css": ".m { color: green }",
	})
	mem := cache.NewMemory(cache.NewKeyer("ns"))
	pool := newPool(t, srv.URL, source{job.HTML, "page.html",
		`<link rel="stylesheet" href="/base.css"><script src="/lib.js"></script><p>x</p>`})

	ok, jobs := compile(t, pool, Options{Resolver: testResolver(), Cache: mem})

	require.True(t, ok, codes(jobs.Messages))
	out := output(jobs.Pool)
	assert.Contains(t, out, ".ns .ns-m {")
	assert.Contains(t, out, ".ns .ns-b {")
	assert.Contains(t, out, "IMPORTS___.z")
	assert.Equal(t, 0, mem.Len())
}

func TestImportCycleIsBroken(t *testing.T) {
	srv := newAssetServer(t, map[string]string{
		"/a.css": `@import "b.css"; .a { color: red }`,
		"/b.css": `@import "a.css"; .b { color: blue }`,
	})
	pool := newPool(t, srv.URL, source{job.CSS, "a.css", `@import "b.css"; .a { color: red }`})

	ok, jobs := compile(t, pool, Options{Resolver: testResolver()})

	require.True(t, ok, codes(jobs.Messages))
	assert.Equal(t, 1, jobs.Messages.CountCode("CSS_IMPORT_CYCLE"))
	out := render.Stylesheet(jobs.Pool.ByType(job.CSS)[0].Job.Tree())
	assert.Contains(t, out, ".ns .ns-a {")
	assert.Contains(t, out, ".ns .ns-b {")
	assert.NotContains(t, out, "@import")
}

func TestMediaRestrictedImport(t *testing.T) {
	srv := newAssetServer(t, map[string]string{
		"/base.css": ".b { color: blue }",
	})
	pool := newPool(t, srv.URL, source{job.CSS, "print.css", `@import "base.css" print;`})

	ok, jobs := compile(t, pool, Options{Resolver: testResolver()})

	require.True(t, ok, codes(jobs.Messages))
	out := render.Stylesheet(jobs.Pool.ByType(job.CSS)[0].Job.Tree())
	assert.Contains(t, out, "@media print {")
	assert.Contains(t, out, ".ns .ns-b {")
}

func TestImportDepthIsBounded(t *testing.T) {
	srv := newAssetServer(t, map[string]string{
		"/1.css": `@import "2.css"; .one { color: red }`,
		"/2.css": `@import "3.css"; .two { color: red }`,
		"/3.css": ".three { color: red }",
	})
	pool := newPool(t, srv.URL, source{job.CSS, "0.css", `@import "1.css";`})

	ok, jobs := compile(t, pool, Options{Resolver: testResolver(), MaxImportDepth: 2})

	require.True(t, ok, codes(jobs.Messages))
	assert.Equal(t, 1, jobs.Messages.CountCode("CSS_IMPORT_DEPTH"))
	out := render.Stylesheet(jobs.Pool.ByType(job.CSS)[0].Job.Tree())
	assert.Contains(t, out, "ns-one")
	assert.Contains(t, out, "ns-two")
	assert.NotContains(t, out, "ns-three")
}

// =============================================================================
// Namespace
// =============================================================================

func TestResolveNamespace(t *testing.T) {
	a, _ := url.Parse("https://example.com/a.css")
	b, _ := url.Parse("https://example.com/b.js")

	assert.Equal(t, "mine", ResolveNamespace("mine", []*url.URL{a}))
	derived := ResolveNamespace("", []*url.URL{a, b, nil})
	assert.Equal(t, derived, ResolveNamespace("", []*url.URL{b, a}))
	assert.NotEqual(t, derived, ResolveNamespace("", []*url.URL{a}))
	assert.Equal(t, derived, ResolveNamespace("", []*url.URL{a, b, a}), "duplicate origins count once")
	assert.Len(t, derived, 9)
	assert.True(t, ValidNamespace(derived))
}

func TestInvalidNamespaceFallsBack(t *testing.T) {
	pool := newPool(t, testBase, source{job.CSS, "a.css", ".a { color: red }"})

	jobs := runStages(t, pool, namespace{configured: "9 lives"})

	assert.Equal(t, 1, jobs.Messages.CountCode("PIPELINE_BAD_NAMESPACE"))
	assert.True(t, ValidNamespace(jobs.Meta.Namespace))
	assert.True(t, strings.HasPrefix(jobs.Meta.Namespace, "c"))
}

func TestPlaceholderID(t *testing.T) {
	assert.Equal(t, PlaceholderID("page.html", 1), PlaceholderID("page.html", 1))
	assert.NotEqual(t, PlaceholderID("page.html", 1), PlaceholderID("page.html", 2))
	assert.NotEqual(t, PlaceholderID("page.html", 1), PlaceholderID("other.html", 1))
}
