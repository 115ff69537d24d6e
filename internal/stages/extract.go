package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// handlerParam is the parameter event handler bodies see.
const handlerParam = "event"

var jsTypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"text/ecmascript":        true,
	"application/ecmascript": true,
}

// PlaceholderID returns the deterministic id of the n-th placeholder
// allocated in file.
func PlaceholderID(file string, n int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("capsule:%s#%d", file, n))).String()
}

// extractHTML moves embedded content out of every document: script and
// style bodies, external script and stylesheet references, style
// attributes and on* handler attributes. Each piece becomes a job aimed at
// a placeholder left where it was.
type extractHTML struct {
	parser Parser
}

func (extractHTML) Name() string { return "extract-html" }

func (s extractHTML) Apply(_ context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.ByType(job.HTML) {
		if env.FromCache || env.Job.Tree().Root() == tree.NoNode {
			continue
		}
		x := &extractor{
			t:        env.Job.Tree(),
			env:      env,
			parser:   s.parser,
			messages: jobs.Messages,
		}
		x.run()
		jobs.Pool.Replace(env, append([]*job.Envelope{env}, x.extracted...)...)
	}
	return jobs.HasNoErrors()
}

type extractor struct {
	t         *tree.Tree
	env       *job.Envelope
	parser    Parser
	messages  *diag.Queue
	m         *tree.Mutation
	next      int
	extracted []*job.Envelope
}

func (x *extractor) run() {
	t := x.t
	x.m = t.Mutate()
	t.Walk(t.Root(), func(id tree.NodeID) bool {
		if t.Kind(id) != tree.HTMLElement {
			return true
		}
		switch strings.ToLower(t.Value(id)) {
		case "script":
			x.script(id)
			return false
		case "style":
			x.style(id)
			return false
		case "link":
			if x.link(id) {
				return false
			}
		}
		x.attributes(id)
		return true
	})
	// Every edit targets a distinct node attached at record time.
	_ = x.m.Execute()
}

func (x *extractor) placeholder() string {
	x.next++
	return PlaceholderID(x.t.File(), x.next)
}

func (x *extractor) fragment(kind string) string {
	return fmt.Sprintf("%s#%s%d", x.t.File(), kind, x.next)
}

func (x *extractor) extract(ct job.ContentType, t *tree.Tree, ph, attr string) {
	target := &job.InsertionPoint{Placeholder: ph, Attribute: attr}
	env := x.env.Derive(job.New(ct, t, x.env.Job.Origin(), target))
	env.Placeholder = ph
	x.extracted = append(x.extracted, env)
}

// external replaces el with a placeholder that remembers the reference for
// resolve-external.
func (x *extractor) external(el tree.NodeID, attr, ref string) {
	t := x.t
	if strings.TrimSpace(ref) == "" {
		x.messages.Report(MsgMissingReference, t.Span(el), t.Value(el), attr)
		x.m.Remove(el)
		return
	}
	a := t.Add(tree.HTMLAttrib, attr, t.Span(el))
	t.SetAux(a, ref)
	x.m.Replace(el, t.Add(tree.HTMLPlaceholder, x.placeholder(), t.Span(el), a))
}

func (x *extractor) script(el tree.NodeID) {
	t := x.t
	typ, _ := attribute(t, el, "type")
	typ = strings.ToLower(strings.TrimSpace(strings.Split(typ, ";")[0]))
	if !jsTypes[typ] {
		x.messages.Report(MsgScriptType, t.Span(el), typ)
		x.m.Remove(el)
		return
	}
	if src, ok := attribute(t, el, "src"); ok {
		x.external(el, "src", src)
		return
	}

	ph := x.placeholder()
	x.m.Replace(el, t.Add(tree.HTMLPlaceholder, ph, t.Span(el)))
	file := x.fragment("script")
	prog, err := x.parser.Parse(job.JS, file, []byte(textContent(t, el)))
	if err != nil {
		ReportParseError(x.messages, job.JS, file, err)
		return
	}
	x.extract(job.JS, prog, ph, "")
}

func (x *extractor) style(el tree.NodeID) {
	t := x.t
	ph := x.placeholder()
	x.m.Replace(el, t.Add(tree.HTMLPlaceholder, ph, t.Span(el)))
	file := x.fragment("style")
	sheet, err := x.parser.Parse(job.CSS, file, []byte(textContent(t, el)))
	if err != nil {
		ReportParseError(x.messages, job.CSS, file, err)
		return
	}
	x.extract(job.CSS, sheet, ph, "")
}

// link handles <link rel=stylesheet>. It reports false for other links.
func (x *extractor) link(el tree.NodeID) bool {
	rel, _ := attribute(x.t, el, "rel")
	for _, tok := range strings.Fields(strings.ToLower(rel)) {
		if tok == "stylesheet" {
			href, _ := attribute(x.t, el, "href")
			x.external(el, "href", href)
			return true
		}
	}
	return false
}

// attributes extracts style and on* attributes. All of an element's
// attribute placeholders share one id.
func (x *extractor) attributes(el tree.NodeID) {
	t := x.t
	ph := ""
	for _, a := range t.Children(el) {
		if t.Kind(a) != tree.HTMLAttrib {
			continue
		}
		name := strings.ToLower(t.Value(a))
		if name != "style" && !strings.HasPrefix(name, "on") {
			continue
		}
		if ph == "" {
			ph = x.placeholder()
		}
		p := t.Add(tree.HTMLPlaceholder, ph, t.Span(el))
		t.SetAux(p, name)
		x.m.Replace(a, p)

		if name == "style" {
			file := x.fragment("style")
			decls, err := x.parser.ParseDeclarations(file, []byte(t.Aux(a)))
			if err != nil {
				ReportParseError(x.messages, job.CSS, file, err)
				continue
			}
			x.extract(job.CSS, decls, ph, name)
			continue
		}

		file := x.fragment(name)
		src := "(function (" + handlerParam + ") {\n" + t.Aux(a) + "\n});"
		fn, err := x.parser.Parse(job.JS, file, []byte(src))
		if err != nil {
			ReportParseError(x.messages, job.JS, file, err)
			continue
		}
		if HandlerFunction(fn) == tree.NoNode {
			x.messages.Report(MsgJSParse, t.Span(el), fmt.Sprintf("%s is not a function body", name))
			continue
		}
		x.extract(job.JS, fn, ph, name)
	}
}

// HandlerFunction returns the function expression of an extracted event
// handler program, or NoNode when the program has any other shape.
func HandlerFunction(t *tree.Tree) tree.NodeID {
	root := t.Root()
	if root == tree.NoNode || t.Kind(root) != tree.JSProgram || t.NumChildren(root) != 1 {
		return tree.NoNode
	}
	stmt := t.Child(root, 0)
	if t.Kind(stmt) != tree.JSExprStmt {
		return tree.NoNode
	}
	fn := t.Child(stmt, 0)
	if fn == tree.NoNode || t.Kind(fn) != tree.JSFuncExpr || t.Aux(fn) == "arrow" {
		return tree.NoNode
	}
	return fn
}

// attribute returns the value of el's attribute name.
func attribute(t *tree.Tree, el tree.NodeID, name string) (string, bool) {
	for _, a := range t.Children(el) {
		if t.Kind(a) == tree.HTMLAttrib && strings.EqualFold(t.Value(a), name) {
			return t.Aux(a), true
		}
	}
	return "", false
}

func textContent(t *tree.Tree, el tree.NodeID) string {
	var b strings.Builder
	for _, c := range t.Children(el) {
		if t.Kind(c) == tree.HTMLText {
			b.WriteString(t.Value(c))
		}
	}
	return b.String()
}
