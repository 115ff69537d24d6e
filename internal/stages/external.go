package stages

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/js"
	"github.com/roach88/capsule/internal/tree"
)

// DefaultImportDepth bounds @import nesting when Options leaves it zero.
const DefaultImportDepth = 8

var errNoBase = errors.New("relative reference with no base")

// resolveExternal loads the scripts and stylesheets documents reference and
// inlines CSS @import rules. Content that cannot be loaded is replaced by
// an inert job (a script that throws, an empty stylesheet) so the bundle
// still compiles. Everything touched here is marked NoCache.
type resolveExternal struct {
	resolver  Resolver
	parser    Parser
	localBase *url.URL
	maxDepth  int
}

func (resolveExternal) Name() string { return "resolve-external" }

func (s resolveExternal) Apply(ctx context.Context, jobs *Jobs) bool {
	for _, env := range jobs.Pool.All() {
		if env.FromCache || env.Job.Tree().Root() == tree.NoNode {
			continue
		}
		switch env.ContentType() {
		case job.HTML:
			s.document(ctx, jobs, env)
		case job.CSS:
			path := map[string]bool{}
			if o := env.Job.Origin(); o != nil {
				path[o.String()] = true
			}
			if s.inline(ctx, jobs, env.Job.Tree(), env.Job.Origin(), 1, path) {
				env.NoCache = true
			}
		}
	}
	return jobs.HasNoErrors()
}

// document loads every placeholder that still carries a src or href.
func (s resolveExternal) document(ctx context.Context, jobs *Jobs, env *job.Envelope) {
	t := env.Job.Tree()
	var loaded []*job.Envelope
	for _, ph := range t.Find(t.Root(), tree.HTMLPlaceholder) {
		ref := t.Child(ph, 0)
		if ref == tree.NoNode || t.Kind(ref) != tree.HTMLAttrib {
			continue
		}
		ct := job.JS
		if t.Value(ref) == "href" {
			ct = job.CSS
		}
		t.SetChildren(ph)

		content, origin := s.load(ctx, jobs, env.Job.Origin(), t.Aux(ref), ct, t.Span(ph))
		d := env.Derive(job.New(ct, content, origin, &job.InsertionPoint{Placeholder: t.Value(ph)}))
		d.Placeholder = t.Value(ph)
		d.NoCache = true
		loaded = append(loaded, d)
	}
	if len(loaded) > 0 {
		env.NoCache = true
		jobs.Pool.Replace(env, append([]*job.Envelope{env}, loaded...)...)
	}
}

// load fetches and parses one external resource. It always returns a tree.
func (s resolveExternal) load(ctx context.Context, jobs *Jobs, base *url.URL, ref string, ct job.ContentType, span tree.Span) (*tree.Tree, *url.URL) {
	u, err := s.resolve(base, ref)
	if err != nil {
		jobs.Messages.Report(MsgLoadFailed, span, ref, err)
		return inert(ct, ref), nil
	}
	c, err := s.resolver.Load(ctx, u, ct.MIME())
	if err != nil {
		jobs.Messages.Report(MsgLoadFailed, span, u.String(), err)
		return inert(ct, u.String()), u
	}
	t, err := s.parser.Parse(ct, u.String(), c.Data)
	if err != nil {
		ReportParseError(jobs.Messages, ct, u.String(), err)
		return inert(ct, u.String()), u
	}
	if ct == job.CSS {
		s.inline(ctx, jobs, t, u, 1, map[string]bool{u.String(): true})
	}
	return t, u
}

func (s resolveExternal) resolve(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	switch {
	case r.IsAbs():
		return r, nil
	case base != nil && base.IsAbs():
		return base.ResolveReference(r), nil
	case s.localBase != nil:
		return s.localBase.ResolveReference(r), nil
	}
	return nil, errNoBase
}

// inline replaces the top-level @import rules of t with the imported rules.
// path holds the sheets being imported along the current chain. It reports
// whether t had any @import.
func (s resolveExternal) inline(ctx context.Context, jobs *Jobs, t *tree.Tree, base *url.URL, depth int, path map[string]bool) bool {
	root := t.Root()
	if t.Kind(root) != tree.CSSStylesheet {
		return false
	}
	found := false
	m := t.Mutate()
	for _, imp := range slices.Clone(t.Children(root)) {
		if t.Kind(imp) != tree.CSSImport {
			continue
		}
		found = true
		for _, n := range s.importRule(ctx, jobs, t, imp, base, depth, path) {
			m.InsertBefore(imp, n)
		}
		m.Remove(imp)
	}
	// Each import's inserts are recorded before its removal, so Execute
	// cannot fail.
	_ = m.Execute()
	return found
}

// importRule loads the sheet one @import names and returns the nodes that
// replace the rule. Failures are warnings and drop the rule.
func (s resolveExternal) importRule(ctx context.Context, jobs *Jobs, t *tree.Tree, imp tree.NodeID, base *url.URL, depth int, path map[string]bool) []tree.NodeID {
	ref := t.Value(t.Child(imp, 0))
	span := t.InferSpan(imp)
	u, err := s.resolve(base, ref)
	if err != nil {
		jobs.Messages.Report(MsgLoadFailed, span, ref, err)
		return nil
	}
	key := u.String()
	if path[key] {
		jobs.Messages.Report(MsgImportCycle, span, key)
		return nil
	}
	if depth > s.maxDepth {
		jobs.Messages.Report(MsgImportDepth, span, key, s.maxDepth)
		return nil
	}
	c, err := s.resolver.Load(ctx, u, job.CSS.MIME())
	if err != nil {
		jobs.Messages.Report(MsgLoadFailed, span, key, err)
		return nil
	}
	sub, err := s.parser.Parse(job.CSS, key, c.Data)
	if err != nil {
		ReportParseError(jobs.Messages, job.CSS, key, err)
		return nil
	}

	path[key] = true
	s.inline(ctx, jobs, sub, u, depth+1, path)
	delete(path, key)
	s.absolutize(sub, u)
	return s.splice(jobs, t, imp, sub, key)
}

// splice copies the rules of sub into t. A media-restricted import wraps
// them in a media block, which can only hold rule sets.
func (s resolveExternal) splice(jobs *Jobs, t *tree.Tree, imp tree.NodeID, sub *tree.Tree, key string) []tree.NodeID {
	var media []tree.NodeID
	for _, c := range t.Children(imp) {
		if t.Kind(c) == tree.CSSMedium {
			media = append(media, t.Add(tree.CSSMedium, t.Value(c), t.Span(c)))
		}
	}

	var rules []tree.NodeID
	for _, c := range sub.Children(sub.Root()) {
		if len(media) > 0 && sub.Kind(c) != tree.CSSRuleSet {
			jobs.Messages.Report(MsgImportSkipped, sub.InferSpan(c), sub.Kind(c).String(), key)
			continue
		}
		rules = append(rules, t.Import(sub, c))
	}
	if len(media) == 0 {
		return rules
	}
	if len(rules) == 0 {
		return nil
	}
	return []tree.NodeID{t.Add(tree.CSSMedia, "", t.Span(imp), append(media, rules...)...)}
}

// absolutize resolves the relative URIs of an imported sheet against the
// sheet's own location.
func (s resolveExternal) absolutize(t *tree.Tree, base *url.URL) {
	for _, id := range t.Find(t.Root(), tree.CSSURI) {
		r, err := url.Parse(t.Value(id))
		if err != nil || r.IsAbs() {
			continue
		}
		t.SetValue(id, base.ResolveReference(r).String())
	}
}

func inert(ct job.ContentType, ref string) *tree.Tree {
	if ct == job.JS {
		return js.Inert(ref, "failed to load "+ref)
	}
	t := tree.New(ref)
	t.SetRoot(t.AddSynthetic(tree.CSSStylesheet, ""))
	return t
}
