package cache

import (
	"net/url"
	"path/filepath"
	"testing"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// createTestSQLite opens a fresh cache database in a temp dir.
func createTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := OpenSQLite(path, NewKeyer("test"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// declTree builds `color: <value>` as a declaration group.
func declTree(file, value string, line int) *tree.Tree {
	span := func(start, end int) tree.Span {
		return tree.Span{File: file, Start: start, End: end, StartLine: line, EndLine: line}
	}
	t := tree.New(file)
	prop := t.Add(tree.CSSProperty, "color", span(0, 5))
	ident := t.Add(tree.CSSIdent, value, span(7, 7+len(value)))
	expr := t.Add(tree.CSSExpr, "", span(7, 7+len(value)), ident)
	decl := t.Add(tree.CSSDeclaration, "", span(0, 7+len(value)), prop, expr)
	t.SetRoot(t.Add(tree.CSSDeclGroup, "", span(0, 7+len(value)), decl))
	return t
}

func testJobs(t *testing.T) []*job.Job {
	t.Helper()
	origin, err := url.Parse("https://example.com/site.css")
	if err != nil {
		t.Fatal(err)
	}
	css := job.New(job.CSS, declTree("site.css", "red", 1), origin, &job.InsertionPoint{Placeholder: "p1", Attribute: "style"})

	js := tree.New("inline.js")
	ident := js.AddSynthetic(tree.JSIdent, "x")
	stmt := js.AddSynthetic(tree.JSExprStmt, "", ident)
	js.SetRoot(js.AddSynthetic(tree.JSProgram, "", stmt))
	js.SetAux(js.Root(), "sandboxed")

	return []*job.Job{css, job.New(job.JS, js, nil, nil)}
}
