package stages

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/roach88/capsule/internal/css"
	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
	"github.com/roach88/capsule/internal/uri"
)

// Runtime entry points the compiled template calls.
const (
	emitHTML      = "emitHtml"
	applyStyle    = "applyStyle"
	attachHandler = "attachHandler"
)

// compileTemplates turns each document into a script that emits its
// markup. Static markup is cleaned against the schema and sanitised;
// extracted scripts are spliced in where they stood, style attributes are
// applied and event handlers attached once their element exists.
type compileTemplates struct {
	schema    *schema.Schema
	policy    css.URIPolicy
	sanitizer *bluemonday.Policy
}

func newCompileTemplates(s *schema.Schema, policy css.URIPolicy, schemes []string) compileTemplates {
	if len(schemes) == 0 {
		schemes = uri.DefaultSchemes
	}
	p := bluemonday.NewPolicy()
	p.AllowElements(s.HTML.Elements...)
	p.AllowNoAttrs().OnElements(s.HTML.Elements...)
	p.AllowAttrs(s.HTML.Attributes...).Globally()
	p.AllowAttrs(render.SlotAttribute).Globally()
	for el, attrs := range s.HTML.ElementAttributes {
		p.AllowAttrs(attrs...).OnElements(el)
	}
	p.RequireParseableURLs(true)
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes(schemes...)
	return compileTemplates{schema: s, policy: policy, sanitizer: p}
}

func (compileTemplates) Name() string { return "compile-templates" }

func (s compileTemplates) Apply(_ context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.ByType(job.HTML) {
		if env.FromCache {
			continue
		}
		c := &templateCompiler{
			compileTemplates: s,
			jobs:             jobs,
			doc:              env.Job.Tree(),
			origin:           env.Job.Origin(),
			out:              tree.New(env.Job.Tree().File()),
		}
		prog := c.compile()
		jobs.Pool.Replace(env, env.Derive(job.New(job.JS, prog, env.Job.Origin(), nil)))
	}
	return jobs.HasNoErrors()
}

type templateCompiler struct {
	compileTemplates
	jobs   *Jobs
	doc    *tree.Tree
	origin *url.URL
	out    *tree.Tree
	stmts  []tree.NodeID
}

func (c *templateCompiler) messages() *diag.Queue { return c.jobs.Messages }

func (c *templateCompiler) compile() *tree.Tree {
	if root := c.doc.Root(); root != tree.NoNode {
		c.clean(root)
		for _, chunk := range render.Markup(c.doc, root) {
			if markup := c.sanitizer.Sanitize(chunk.HTML); markup != "" {
				c.emit(c.runtime(emitHTML, c.str(markup)))
			}
			for _, ph := range chunk.Attached {
				c.attach(ph)
			}
			if chunk.Slot != "" {
				c.splice(chunk.Slot)
			}
		}
	}
	c.out.SetRoot(c.out.AddSynthetic(tree.JSProgram, "", c.stmts...))
	return c.out
}

// clean unwraps unknown elements, drops unknown attributes, namespaces
// class and id values and sends URI attributes through the policy.
func (c *templateCompiler) clean(root tree.NodeID) {
	t := c.doc
	m := t.Mutate()
	t.Walk(root, func(el tree.NodeID) bool {
		if t.Kind(el) != tree.HTMLElement {
			return true
		}
		tag := strings.ToLower(t.Value(el))
		if !c.schema.IsHTMLElement(tag) {
			c.messages().Report(MsgUnknownElement, t.Span(el), tag)
			for _, ch := range t.Children(el) {
				switch {
				case t.Kind(ch) == tree.HTMLAttrib:
				case t.Kind(ch) == tree.HTMLPlaceholder && t.Aux(ch) != "":
					c.drop(t.Value(ch), t.Aux(ch))
				default:
					m.InsertBefore(el, ch)
				}
			}
			m.Remove(el)
			return true
		}
		for _, a := range t.Children(el) {
			switch t.Kind(a) {
			case tree.HTMLAttrib:
				c.attribute(m, tag, a)
			case tree.HTMLPlaceholder:
				attr := t.Aux(a)
				if attr != "" && attr != "style" && !c.schema.IsEventAttribute(attr) {
					c.messages().Report(MsgUnknownAttribute, t.Span(el), attr, tag)
					c.drop(t.Value(a), attr)
					m.Remove(a)
				}
			}
		}
		return true
	})
	// Unwrapped children are moved before their parent is removed.
	_ = m.Execute()
}

func (c *templateCompiler) attribute(m *tree.Mutation, tag string, a tree.NodeID) {
	t := c.doc
	name := strings.ToLower(t.Value(a))
	value := t.Aux(a)
	span := t.InferSpan(a)
	if !c.schema.IsHTMLAttribute(tag, name) {
		c.messages().Report(MsgUnknownAttribute, span, name, tag)
		m.Remove(a)
		return
	}
	t.SetValue(a, name)

	prefix := ""
	if ns := c.jobs.Meta.Namespace; ns != "" {
		prefix = ns + "-"
	}
	switch {
	case name == "class":
		classes := strings.Fields(value)
		for i, cls := range classes {
			classes[i] = prefix + cls
		}
		t.SetAux(a, strings.Join(classes, " "))
	case name == "id" || name == "for":
		t.SetAux(a, prefix+strings.TrimSpace(value))
	case c.schema.IsURIAttribute(name):
		mime := "*/*"
		if tag == "img" {
			mime = "image/*"
		}
		rewritten, ok := "", false
		if c.policy != nil {
			rewritten, ok = c.policy.Rewrite(value, c.origin, mime)
		}
		if !ok {
			c.messages().Report(MsgDisallowedURI, span, value, "<"+tag+" "+name+">")
			m.Remove(a)
			return
		}
		t.SetAux(a, rewritten)
	}
}

// drop removes the job aimed at (ph, attr), if any.
func (c *templateCompiler) drop(ph, attr string) {
	if env := c.jobs.Pool.Find(ph, attr); env != nil {
		c.jobs.Pool.Remove(env)
	}
}

// attach applies the style and handler jobs of an element that the markup
// emitted so far has created.
func (c *templateCompiler) attach(ph string) {
	for _, env := range c.jobs.Pool.Targeting(ph) {
		attr := env.Job.Target().Attribute
		if attr == "" {
			continue
		}
		c.jobs.Pool.Remove(env)
		src := env.Job.Tree()
		if src.Root() == tree.NoNode {
			continue
		}
		switch env.ContentType() {
		case job.CSS:
			if decls := render.CSS(src, src.Root()); decls != "" {
				c.emit(c.runtime(applyStyle, c.str(ph), c.str(decls)))
			}
		case job.JS:
			if fn := HandlerFunction(src); fn != tree.NoNode {
				event := strings.TrimPrefix(attr, "on")
				c.emit(c.runtime(attachHandler, c.str(ph), c.str(event), c.out.Import(src, fn)))
			}
		}
	}
}

// splice inlines the scripts aimed at an embedded placeholder. Stylesheets
// aimed at it become free-standing jobs.
func (c *templateCompiler) splice(ph string) {
	for _, env := range c.jobs.Pool.Targeting(ph) {
		if env.Job.Target().Attribute != "" {
			continue
		}
		switch env.ContentType() {
		case job.JS:
			c.jobs.Pool.Remove(env)
			src := env.Job.Tree()
			if src.Root() == tree.NoNode {
				continue
			}
			for _, stmt := range slices.Clone(src.Children(src.Root())) {
				c.stmts = append(c.stmts, c.out.Import(src, stmt))
			}
		case job.CSS:
			env.Job = env.Job.WithTarget(nil)
			env.Placeholder = ""
		}
	}
}

func (c *templateCompiler) emit(stmt tree.NodeID) {
	c.stmts = append(c.stmts, stmt)
}

// runtime builds the statement ___.name(args...).
func (c *templateCompiler) runtime(name string, args ...tree.NodeID) tree.NodeID {
	t := c.out
	callee := t.AddSynthetic(tree.JSMember, name, t.AddSynthetic(tree.JSIdent, "___"))
	return t.AddSynthetic(tree.JSExprStmt, "", t.AddSynthetic(tree.JSCall, "", append([]tree.NodeID{callee}, args...)...))
}

func (c *templateCompiler) str(s string) tree.NodeID {
	return c.out.AddSynthetic(tree.JSString, s)
}
