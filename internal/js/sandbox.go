package js

import (
	"fmt"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/tree"
)

// sandboxedMarker is stored in the module's Aux once Sandbox has run.
const sandboxedMarker = "sandboxed"

// rejectedMessage is thrown by a module the sandbox rejected.
const rejectedMessage = "module rejected by the sandbox"

// Sandbox rewrites the module body of t. Every rule in the table is tried
// on every node, in post-order, and all violations are reported before the
// walk ends. A module with violations has its body replaced by a statement
// that throws, and ok is false. A module that was already sandboxed is left
// alone.
func Sandbox(t *tree.Tree, messages *diag.Queue) (ok bool, err error) {
	module, body, err := Envelope(t)
	if err != nil {
		return false, err
	}
	if t.Aux(module) == sandboxedMarker {
		return true, nil
	}
	s := &sandboxer{
		t:        t,
		b:        builder{t: t},
		messages: messages,
		module:   module,
		valid:    true,
		temps:    map[tree.NodeID][]string{},
		aliases:  map[tree.NodeID]map[string]bool{},
	}
	var order []tree.NodeID
	t.PostOrder(body, func(id tree.NodeID) { order = append(order, id) })
	for _, id := range order {
		s.apply(id)
	}
	if s.valid {
		s.declare(body)
	} else {
		t.SetChildren(body, t.AddSynthetic(tree.JSThrow, "", s.b.str(rejectedMessage)))
	}
	t.SetAux(module, sandboxedMarker)
	return s.valid, nil
}

// IsSandboxed reports whether t is a module Sandbox has already processed.
func IsSandboxed(t *tree.Tree) bool {
	module, _, err := Envelope(t)
	return err == nil && t.Aux(module) == sandboxedMarker
}

type sandboxer struct {
	t        *tree.Tree
	b        builder
	messages *diag.Queue
	module   tree.NodeID
	valid    bool

	// Per function (or module) node, in first-use order.
	scopes  []tree.NodeID
	temps   map[tree.NodeID][]string
	aliases map[tree.NodeID]map[string]bool
}

// apply runs the rule table over one node. Checks never stop the table; a
// rewrite does, since the node it matched is gone.
func (s *sandboxer) apply(id tree.NodeID) {
	for _, r := range rules {
		if !s.t.IsAttached(id) {
			return
		}
		if r.match(s, id) {
			r.rewrite(s, id)
		}
	}
}

func (s *sandboxer) violation(mt *diag.MessageType, id tree.NodeID, args ...any) {
	s.valid = false
	if s.messages != nil {
		s.messages.Report(mt, s.t.InferSpan(id), args...)
	}
}

// scopeOf returns the nearest enclosing function, or the module.
func (s *sandboxer) scopeOf(id tree.NodeID) tree.NodeID {
	for cur := s.t.Parent(id); cur != tree.NoNode; cur = s.t.Parent(cur) {
		switch s.t.Kind(cur) {
		case tree.JSFuncDecl, tree.JSFuncExpr, tree.JSModule:
			return cur
		}
	}
	return s.module
}

// functionOf returns the nearest enclosing non-arrow function, or NoNode.
func (s *sandboxer) functionOf(id tree.NodeID) tree.NodeID {
	for cur := s.t.Parent(id); cur != tree.NoNode; cur = s.t.Parent(cur) {
		switch k := s.t.Kind(cur); {
		case (k == tree.JSFuncDecl || k == tree.JSFuncExpr) && s.t.Aux(cur) != "arrow":
			return cur
		case k == tree.JSModule:
			return tree.NoNode
		}
	}
	return tree.NoNode
}

func (s *sandboxer) use(scope tree.NodeID) {
	if _, ok := s.temps[scope]; ok {
		return
	}
	if _, ok := s.aliases[scope]; ok {
		return
	}
	s.scopes = append(s.scopes, scope)
}

// temp allocates a temporary in the scope enclosing id.
func (s *sandboxer) temp(id tree.NodeID) string {
	scope := s.scopeOf(id)
	s.use(scope)
	name := fmt.Sprintf("x%d___", len(s.temps[scope]))
	s.temps[scope] = append(s.temps[scope], name)
	return name
}

// alias records that fn needs the alias declared at entry.
func (s *sandboxer) alias(fn tree.NodeID, name string) {
	s.use(fn)
	if s.aliases[fn] == nil {
		s.aliases[fn] = map[string]bool{}
	}
	s.aliases[fn][name] = true
}

// bind makes id safe to evaluate once and reference several times. Simple
// operands are copied; anything else goes through a temporary, filled by
// the returned initializer.
func (s *sandboxer) bind(id tree.NodeID) (ref func() tree.NodeID, init tree.NodeID) {
	switch s.t.Kind(id) {
	case tree.JSIdent, tree.JSString, tree.JSNumber, tree.JSBool, tree.JSNull:
		return func() tree.NodeID { return s.b.leaf(id) }, tree.NoNode
	}
	name := s.temp(id)
	return func() tree.NodeID { return s.b.ident(name) }, s.b.assign("=", s.b.ident(name), id)
}

// declare adds the alias and temporary declarations at the top of each
// function body and of the module body.
func (s *sandboxer) declare(body tree.NodeID) {
	t := s.t
	for _, scope := range s.scopes {
		block := body
		if scope != s.module {
			block = t.Child(scope, 1)
		}
		var names []string
		inits := map[string]tree.NodeID{}
		if s.aliases[scope][thisAlias] {
			names = append(names, thisAlias)
			inits[thisAlias] = t.AddSynthetic(tree.JSThis, "")
		}
		if s.aliases[scope][argsAlias] {
			names = append(names, argsAlias)
			inits[argsAlias] = s.b.ident("arguments")
		}
		names = append(names, s.temps[scope]...)
		if len(names) == 0 {
			continue
		}
		decl := s.b.vars(names, inits)
		t.SetChildren(block, append([]tree.NodeID{decl}, t.Children(block)...)...)
	}
}
