package js

import (
	"slices"

	"github.com/roach88/capsule/internal/tree"
)

// Scope is the set of names bound by one function, or by the program for
// the top-level scope.
type Scope struct {
	Node   tree.NodeID
	Parent *Scope
	Names  map[string]bool
}

func (s *Scope) declare(name string) {
	if name != "" {
		s.Names[name] = true
	}
}

// Scopes is the result of scope analysis over one program.
type Scopes struct {
	t      *tree.Tree
	top    *Scope
	byNode map[tree.NodeID]*Scope
}

// Analyze collects the names bound by every function under root. Function
// scopes hold parameters, var, let and const declarators, nested function
// declarations, the function expression's own name and arguments. Catch
// parameters are resolved against their catch clause by Bound.
func Analyze(t *tree.Tree, root tree.NodeID) *Scopes {
	s := &Scopes{t: t, byNode: map[tree.NodeID]*Scope{}}
	s.top = s.open(nil, root)
	if root != tree.NoNode {
		for _, c := range t.Children(root) {
			s.visit(s.top, c)
		}
	}
	return s
}

func (s *Scopes) open(parent *Scope, node tree.NodeID) *Scope {
	sc := &Scope{Node: node, Parent: parent, Names: map[string]bool{}}
	s.byNode[node] = sc
	return sc
}

func (s *Scopes) visit(sc *Scope, id tree.NodeID) {
	t := s.t
	switch t.Kind(id) {
	case tree.JSFuncDecl, tree.JSFuncExpr:
		if t.Kind(id) == tree.JSFuncDecl {
			sc.declare(t.Value(id))
		}
		inner := s.open(sc, id)
		if t.Kind(id) == tree.JSFuncExpr {
			inner.declare(t.Value(id))
		}
		if t.Aux(id) != "arrow" {
			inner.declare("arguments")
		}
		for _, c := range t.Children(id) {
			s.visit(inner, c)
		}
		return
	case tree.JSDeclarator:
		sc.declare(t.Value(id))
	case tree.JSParams:
		for _, p := range t.Children(id) {
			sc.declare(t.Value(p))
		}
		return
	}
	for _, c := range t.Children(id) {
		s.visit(sc, c)
	}
}

// Top returns the program scope. Its names are the module's globals.
func (s *Scopes) Top() *Scope { return s.top }

// Function returns the scope of a function node, or nil.
func (s *Scopes) Function(id tree.NodeID) *Scope { return s.byNode[id] }

// Bound reports whether the identifier reference id resolves to a local
// binding: a function scope or a catch parameter. Names only bound at the
// top level are not local.
func (s *Scopes) Bound(id tree.NodeID) bool {
	t := s.t
	name := t.Value(id)
	for cur := t.Parent(id); cur != tree.NoNode; cur = t.Parent(cur) {
		if t.Kind(cur) == tree.JSCatch {
			if p := t.Child(cur, 0); p != id && t.Value(p) == name {
				return true
			}
		}
		if sc := s.byNode[cur]; sc != nil && sc != s.top && sc.Names[name] {
			return true
		}
	}
	return false
}

// isReference reports whether a JSIdent is used as an expression rather
// than as a parameter or catch binding.
func isReference(t *tree.Tree, id tree.NodeID) bool {
	p := t.Parent(id)
	if p == tree.NoNode {
		return true
	}
	switch t.Kind(p) {
	case tree.JSParams:
		return false
	case tree.JSCatch:
		return t.Child(p, 0) != id
	}
	return true
}

// FreeNames returns, sorted, the names referenced under root that no
// function or catch clause binds. These resolve through the module
// namespace object.
func FreeNames(t *tree.Tree, root tree.NodeID) []string {
	s := Analyze(t, root)
	seen := map[string]bool{}
	var out []string
	t.Walk(root, func(id tree.NodeID) bool {
		if t.Kind(id) != tree.JSIdent || t.Synthetic(id) || !isReference(t, id) || s.Bound(id) {
			return true
		}
		if name := t.Value(id); !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
		return true
	})
	slices.Sort(out)
	return out
}
