package css

import (
	"net/url"
	"regexp"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/tree"
)

// URIPolicy decides what a URI in compiled output becomes.
type URIPolicy interface {
	Rewrite(ref string, base *url.URL, mime string) (string, bool)
}

// uriMIME is the media type asked of the policy for stylesheet URIs.
const uriMIME = "image/*"

// namespacedMarker is stored in the root's Aux once Namespace has run.
const namespacedMarker = "namespaced"

// translatedMarker is stored in a CSSURI's Aux once its value went through the policy.
const translatedMarker = "translated"

// identPattern is the strict ASCII identifier accepted for element names,
// classes, ids, property names and keyword values.
var identPattern = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// allowedPseudo is the fixed pseudo-selector allow list.
var allowedPseudo = map[string]bool{
	"link":         true,
	"visited":      true,
	"hover":        true,
	"active":       true,
	"first-child":  true,
	"first-letter": true,
}

// Rewriter holds the collaborators shared by every step.
type Rewriter struct {
	Schema *schema.Schema
	Policy URIPolicy

	// Scope is the namespace class every selector is scoped under. Empty
	// disables namespacing.
	Scope string

	Messages *diag.Queue
}

// New creates a rewriter.
func New(s *schema.Schema, policy URIPolicy, namespace string, messages *diag.Queue) *Rewriter {
	return &Rewriter{Schema: s, Policy: policy, Scope: namespace, Messages: messages}
}

// Rewrite runs all six steps over t. origin resolves relative URIs and may
// be nil.
func (r *Rewriter) Rewrite(t *tree.Tree, origin *url.URL) {
	if t.Root() == tree.NoNode {
		return
	}
	r.QuoteLooseWords(t)
	r.CoerceUnits(t)
	r.RemoveUnsafe(t, origin)
	r.Namespace(t)
	r.RemoveUnsafe(t, origin)
	r.TranslateURIs(t, origin)
}

func (r *Rewriter) report(mt *diag.MessageType, t *tree.Tree, id tree.NodeID, args ...any) {
	if r.Messages != nil {
		r.Messages.Report(mt, t.InferSpan(id), args...)
	}
}

// declarationProperty returns the property name of a CSSDeclaration.
func declarationProperty(t *tree.Tree, decl tree.NodeID) string {
	if p := t.Child(decl, 0); p != tree.NoNode && t.Kind(p) == tree.CSSProperty {
		return t.Value(p)
	}
	return ""
}

// declarationExpr returns the CSSExpr of a CSSDeclaration, or NoNode.
func declarationExpr(t *tree.Tree, decl tree.NodeID) tree.NodeID {
	if e := t.Child(decl, 1); e != tree.NoNode && t.Kind(e) == tree.CSSExpr {
		return e
	}
	return tree.NoNode
}
