package js

import (
	"errors"

	"github.com/roach88/capsule/internal/tree"
)

// ErrMalformedEnvelope is returned for a program that is not in module
// envelope shape (Program > Module > Block).
var ErrMalformedEnvelope = errors.New("js: program is not in module envelope shape")

// Envelope returns the module node and its body block.
func Envelope(t *tree.Tree) (module, body tree.NodeID, err error) {
	root := t.Root()
	if root == tree.NoNode || t.Kind(root) != tree.JSProgram || t.NumChildren(root) != 1 {
		return tree.NoNode, tree.NoNode, ErrMalformedEnvelope
	}
	module = t.Child(root, 0)
	if t.Kind(module) != tree.JSModule || t.NumChildren(module) != 1 {
		return tree.NoNode, tree.NoNode, ErrMalformedEnvelope
	}
	body = t.Child(module, 0)
	if t.Kind(body) != tree.JSBlock {
		return tree.NoNode, tree.NoNode, ErrMalformedEnvelope
	}
	return module, body, nil
}

// HasEnvelope reports whether t is already wrapped.
func HasEnvelope(t *tree.Tree) bool {
	root := t.Root()
	return root != tree.NoNode && t.Kind(root) == tree.JSProgram &&
		t.NumChildren(root) > 0 && t.Kind(t.Child(root, 0)) == tree.JSModule
}

// RewriteGlobals hoists top-level declarations into IMPORTS___, rewrites
// free references to go through it and wraps the program in the module
// envelope. Top-level function declarations are hoisted first, in source
// order; var initializers become assignments where they stood. It returns
// false, changing nothing, when the program is already wrapped.
func RewriteGlobals(t *tree.Tree) (bool, error) {
	root := t.Root()
	if root == tree.NoNode || t.Kind(root) != tree.JSProgram {
		return false, ErrMalformedEnvelope
	}
	if HasEnvelope(t) {
		return false, nil
	}
	g := &globals{t: t, b: builder{t: t}, scopes: Analyze(t, root)}
	g.references(root)
	hoisted := g.declarations(root)

	var stmts []tree.NodeID
	stmts = append(stmts, hoisted...)
	for _, c := range t.Children(root) {
		if t.Kind(c) == tree.JSNoop && t.Synthetic(c) {
			continue
		}
		stmts = append(stmts, c)
	}
	body := g.b.block(stmts...)
	t.At(body).Span = t.Span(root)
	module := t.AddSynthetic(tree.JSModule, "", body)
	t.SetChildren(root, module)
	return true, nil
}

type globals struct {
	t      *tree.Tree
	b      builder
	scopes *Scopes
}

// references rewrites every free identifier reference.
func (g *globals) references(root tree.NodeID) {
	t := g.t
	var free []tree.NodeID
	t.Walk(root, func(id tree.NodeID) bool {
		if t.Kind(id) == tree.JSIdent && !t.Synthetic(id) && isReference(t, id) && !g.scopes.Bound(id) {
			free = append(free, id)
		}
		return true
	})
	for _, id := range free {
		name := t.Value(id)
		t.Substitute(id, func() tree.NodeID {
			if name == "undefined" && !isWriteTarget(t, id) {
				return g.b.unary("void", g.b.number("0"))
			}
			return g.b.imports(name)
		})
	}
}

// declarations rewrites var declarations and function declarations outside
// any function. Function declarations that are direct program statements
// are detached and returned for hoisting.
func (g *globals) declarations(root tree.NodeID) []tree.NodeID {
	t := g.t
	var decls, funcs []tree.NodeID
	t.Walk(root, func(id tree.NodeID) bool {
		switch t.Kind(id) {
		case tree.JSFuncExpr:
			return false
		case tree.JSFuncDecl:
			funcs = append(funcs, id)
			return false
		case tree.JSVarDecl:
			decls = append(decls, id)
		}
		return true
	})

	for _, d := range decls {
		g.varDecl(d)
	}

	var hoisted []tree.NodeID
	for _, fn := range funcs {
		top := t.Parent(fn) == root
		stmt := t.Substitute(fn, func() tree.NodeID {
			name := t.Value(fn)
			t.At(fn).Kind = tree.JSFuncExpr
			return g.b.stmt(g.b.assign("=", g.b.imports(name), fn))
		})
		if top {
			_ = t.Mutate().Remove(stmt).Execute()
			hoisted = append(hoisted, stmt)
		}
	}
	return hoisted
}

// varDecl replaces a top-level declaration by assignments to IMPORTS___.
func (g *globals) varDecl(d tree.NodeID) {
	t := g.t
	parent := t.Parent(d)
	if t.Kind(parent) == tree.JSForIn && t.Child(parent, 0) == d {
		name := t.Value(t.Child(d, 0))
		t.Substitute(d, func() tree.NodeID { return g.b.imports(name) })
		return
	}

	var assigns []tree.NodeID
	for _, decl := range t.Children(d) {
		init := t.Child(decl, 0)
		if init == tree.NoNode {
			continue
		}
		a := g.b.assign("=", g.b.imports(t.Value(decl)), init)
		t.At(a).Span = t.Span(decl)
		assigns = append(assigns, a)
	}

	inFor := t.Kind(parent) == tree.JSFor && t.Child(parent, 0) == d
	t.Substitute(d, func() tree.NodeID {
		switch {
		case len(assigns) == 0:
			return t.AddSynthetic(tree.JSNoop, "")
		case inFor:
			return g.b.seq(assigns...)
		default:
			return g.b.stmt(g.b.seq(assigns...))
		}
	})
}

// isWriteTarget reports whether id is assigned, deleted, incremented or
// enumerated into rather than read.
func isWriteTarget(t *tree.Tree, id tree.NodeID) bool {
	p := t.Parent(id)
	if p == tree.NoNode {
		return false
	}
	switch t.Kind(p) {
	case tree.JSAssign, tree.JSForIn:
		return t.Child(p, 0) == id
	case tree.JSUnary:
		switch t.Value(p) {
		case "delete", "++", "--":
			return true
		}
	}
	return false
}
