package js

import (
	"slices"
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

// rule is one entry of the sandbox table. Checks report and leave the node
// in place; rewrites substitute it.
type rule struct {
	name    string
	match   func(s *sandboxer, id tree.NodeID) bool
	rewrite func(s *sandboxer, id tree.NodeID)
}

// rules is tried in order against every node of a module body.
var rules = []rule{
	{name: "reserved-name", match: matchReservedName, rewrite: reportReservedName},
	{name: "protected-member", match: matchProtectedMember, rewrite: reportProtectedMember},
	{name: "prototype-read", match: matchPrototypeRead, rewrite: reportPrototypeRead},
	{name: "with", match: matchWith, rewrite: reportWith},
	{name: "this", match: matchThis, rewrite: rewriteThis},
	{name: "arguments", match: matchArguments, rewrite: rewriteArguments},
	{name: "member-read", match: matchMemberRead, rewrite: rewriteMemberRead},
	{name: "index-read", match: matchIndexRead, rewrite: rewriteIndexRead},
	{name: "checked-call", match: matchCall, rewrite: rewriteCall},
	{name: "checked-set", match: matchAssign, rewrite: rewriteAssign},
	{name: "checked-delete", match: matchDelete, rewrite: rewriteDelete},
	{name: "checked-update", match: matchUpdate, rewrite: rewriteUpdate},
	{name: "in", match: matchIn, rewrite: rewriteIn},
	{name: "for-in", match: matchForIn, rewrite: rewriteForIn},
	{name: "construct", match: matchNew, rewrite: rewriteNew},
	{name: "catch", match: matchCatch, rewrite: rewriteCatch},
}

func user(t *tree.Tree, id tree.NodeID, kind tree.Kind) bool {
	return t.Kind(id) == kind && !t.Synthetic(id)
}

// isImportsMember reports whether id is a synthetic IMPORTS___.name access.
func isImportsMember(t *tree.Tree, id tree.NodeID) bool {
	if t.Kind(id) != tree.JSMember || !t.Synthetic(id) {
		return false
	}
	obj := t.Child(id, 0)
	return t.Kind(obj) == tree.JSIdent && t.Synthetic(obj) && t.Value(obj) == importsName
}

// isThisObject reports whether obj is this, before or after aliasing.
func isThisObject(t *tree.Tree, obj tree.NodeID) bool {
	switch t.Kind(obj) {
	case tree.JSThis:
		return true
	case tree.JSIdent:
		v := t.Value(obj)
		return t.Synthetic(obj) && (v == thisAlias || v == importsName)
	}
	return false
}

// isPlumbing reports whether a member is this.name_, which is accessed
// directly.
func isPlumbing(t *tree.Tree, member tree.NodeID) bool {
	return strings.HasSuffix(t.Value(member), "_") && isThisObject(t, t.Child(member, 0))
}

// isAccessor reports whether id is a property access the sandbox checks.
func isAccessor(t *tree.Tree, id tree.NodeID) bool {
	switch {
	case user(t, id, tree.JSMember):
		return !isPlumbing(t, id)
	case user(t, id, tree.JSIndex):
		return true
	}
	return false
}

// handledByParent reports whether the access at id is rewritten together
// with its parent: a call callee, an assignment target, the operand of
// delete, ++ or --, or a for-in target.
func handledByParent(t *tree.Tree, id tree.NodeID) bool {
	p := t.Parent(id)
	if p == tree.NoNode || t.Synthetic(p) {
		return false
	}
	switch t.Kind(p) {
	case tree.JSCall, tree.JSAssign, tree.JSForIn:
		return t.Child(p, 0) == id
	case tree.JSUnary:
		switch t.Value(p) {
		case "delete", "++", "--":
			return true
		}
	}
	return false
}

// key returns a fresh key expression for an accessor. For an index it
// adopts the key subtree, so it may only be called once.
func (s *sandboxer) key(accessor tree.NodeID) tree.NodeID {
	if s.t.Kind(accessor) == tree.JSMember {
		return s.b.str(s.t.Value(accessor))
	}
	return s.t.Child(accessor, 1)
}

// bindKey is bind for the key of an accessor.
func (s *sandboxer) bindKey(accessor tree.NodeID) (ref func() tree.NodeID, init tree.NodeID) {
	if s.t.Kind(accessor) == tree.JSMember {
		name := s.t.Value(accessor)
		return func() tree.NodeID { return s.b.str(name) }, tree.NoNode
	}
	return s.bind(s.t.Child(accessor, 1))
}

// =============================================================================
// Static checks
// =============================================================================

func nameOf(t *tree.Tree, id tree.NodeID) string {
	switch t.Kind(id) {
	case tree.JSIdent, tree.JSDeclarator, tree.JSFuncDecl, tree.JSFuncExpr,
		tree.JSLabeled, tree.JSBreak, tree.JSContinue, tree.JSProp, tree.JSMember:
		if t.Synthetic(id) && !isImportsMember(t, id) {
			return ""
		}
		return t.Value(id)
	}
	return ""
}

func matchReservedName(s *sandboxer, id tree.NodeID) bool {
	name := nameOf(s.t, id)
	return name != "" && isReserved(name)
}

func reportReservedName(s *sandboxer, id tree.NodeID) {
	s.violation(MsgReservedName, id, nameOf(s.t, id))
}

func matchProtectedMember(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	name := t.Value(id)
	return user(t, id, tree.JSMember) && strings.HasSuffix(name, "_") && !isReserved(name) &&
		!isThisObject(t, t.Child(id, 0))
}

func reportProtectedMember(s *sandboxer, id tree.NodeID) {
	s.violation(MsgProtectedMember, id, s.t.Value(id))
}

func matchPrototypeRead(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	if !user(t, id, tree.JSMember) || t.Value(id) != "prototype" {
		return false
	}
	p := t.Parent(id)
	return !(t.Kind(p) == tree.JSAssign && t.Value(p) == "=" && t.Child(p, 0) == id)
}

func reportPrototypeRead(s *sandboxer, id tree.NodeID) {
	s.violation(MsgPrototypeRead, id)
}

func matchWith(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSWith)
}

func reportWith(s *sandboxer, id tree.NodeID) {
	s.violation(MsgWith, id)
}

// =============================================================================
// Aliasing
// =============================================================================

func matchThis(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSThis)
}

// rewriteThis aliases this to t___ inside a function and to the module
// namespace at the top level.
func rewriteThis(s *sandboxer, id tree.NodeID) {
	fn := s.functionOf(id)
	s.t.Substitute(id, func() tree.NodeID {
		if fn == tree.NoNode {
			return s.b.ident(importsName)
		}
		s.alias(fn, thisAlias)
		return s.b.ident(thisAlias)
	})
}

func matchArguments(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	return user(t, id, tree.JSIdent) && t.Value(id) == "arguments" && isReference(t, id) &&
		s.functionOf(id) != tree.NoNode
}

func rewriteArguments(s *sandboxer, id tree.NodeID) {
	fn := s.functionOf(id)
	s.t.Substitute(id, func() tree.NodeID {
		s.alias(fn, argsAlias)
		return s.b.ident(argsAlias)
	})
}

// =============================================================================
// Property access
// =============================================================================

func matchMemberRead(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	return user(t, id, tree.JSMember) && !isPlumbing(t, id) && !handledByParent(t, id)
}

// rewriteMemberRead turns a.b into a.b_v___ ? a.b : a.v___('b').
func rewriteMemberRead(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	name := t.Value(id)
	obj := t.Child(id, 0)
	t.Substitute(id, func() tree.NodeID {
		ref, init := s.bind(obj)
		fast := b.member(ref(), name+"_v___")
		return b.seq(init, b.cond(fast, b.member(ref(), name), b.method(ref(), "v___", b.str(name))))
	})
}

func matchIndexRead(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSIndex) && !handledByParent(s.t, id)
}

func rewriteIndexRead(s *sandboxer, id tree.NodeID) {
	t := s.t
	obj, key := t.Child(id, 0), t.Child(id, 1)
	t.Substitute(id, func() tree.NodeID {
		return s.b.method(obj, "v___", key)
	})
}

func matchCall(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSCall) && isAccessor(s.t, s.t.Child(id, 0))
}

// rewriteCall turns a.b(x) into a.m___('b', [x]).
func rewriteCall(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	callee := t.Child(id, 0)
	obj := t.Child(callee, 0)
	args := slices.Clone(t.Children(id)[1:])
	t.Substitute(id, func() tree.NodeID {
		return b.method(obj, "m___", s.key(callee), b.array(args...))
	})
}

func matchAssign(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSAssign) && isAccessor(s.t, s.t.Child(id, 0))
}

// rewriteAssign turns a.b = c into a.w___('b', c). A compound assignment
// reads through v___ and writes through w___, evaluating a and the key once.
func rewriteAssign(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	op := t.Value(id)
	target, value := t.Child(id, 0), t.Child(id, 1)
	obj := t.Child(target, 0)
	t.Substitute(id, func() tree.NodeID {
		if op == "=" {
			return b.method(obj, "w___", s.key(target), value)
		}
		refO, initO := s.bind(obj)
		refK, initK := s.bindKey(target)
		read := b.method(refO(), "v___", refK())
		return b.seq(initO, initK,
			b.method(refO(), "w___", refK(), b.binary(strings.TrimSuffix(op, "="), read, value)))
	})
}

func matchDelete(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	return user(t, id, tree.JSUnary) && t.Value(id) == "delete" && isAccessor(t, t.Child(id, 0))
}

// rewriteDelete turns delete a.b into a.c___('b').
func rewriteDelete(s *sandboxer, id tree.NodeID) {
	t := s.t
	target := t.Child(id, 0)
	obj := t.Child(target, 0)
	t.Substitute(id, func() tree.NodeID {
		return s.b.method(obj, "c___", s.key(target))
	})
}

func matchUpdate(s *sandboxer, id tree.NodeID) bool {
	t := s.t
	if !user(t, id, tree.JSUnary) {
		return false
	}
	op := t.Value(id)
	return (op == "++" || op == "--") && isAccessor(t, t.Child(id, 0))
}

// rewriteUpdate turns ++a.b into a.w___('b', +a.v___('b') + 1). The postfix
// form keeps the old value in a temporary and yields it.
func rewriteUpdate(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	op := "+"
	if t.Value(id) == "--" {
		op = "-"
	}
	postfix := t.Aux(id) == "postfix"
	target := t.Child(id, 0)
	obj := t.Child(target, 0)
	t.Substitute(id, func() tree.NodeID {
		refO, initO := s.bind(obj)
		refK, initK := s.bindKey(target)
		read := b.unary("+", b.method(refO(), "v___", refK()))
		if !postfix {
			return b.seq(initO, initK, b.method(refO(), "w___", refK(), b.binary(op, read, b.number("1"))))
		}
		old := s.temp(id)
		return b.seq(initO, initK,
			b.assign("=", b.ident(old), read),
			b.method(refO(), "w___", refK(), b.binary(op, b.ident(old), b.number("1"))),
			b.ident(old))
	})
}

// =============================================================================
// Enumeration and construction
// =============================================================================

func matchIn(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSBinary) && s.t.Value(id) == "in"
}

// rewriteIn turns k in o into k in o && ___.canEnum(o, k).
func rewriteIn(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	key, obj := t.Child(id, 0), t.Child(id, 1)
	t.Substitute(id, func() tree.NodeID {
		refK, initK := s.bind(key)
		refO, initO := s.bind(obj)
		test := b.binary("&&", b.binary("in", refK(), refO()), b.runtime("canEnum", refO(), refK()))
		return b.seq(initK, initO, test)
	})
}

func matchForIn(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSForIn)
}

// rewriteForIn evaluates the object once into a temporary and skips keys
// the runtime does not let the module enumerate.
func rewriteForIn(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	target, obj, body := t.Child(id, 0), t.Child(id, 1), t.Child(id, 2)
	var key tree.NodeID
	switch {
	case t.Kind(target) == tree.JSVarDecl:
		key = b.ident(t.Value(t.Child(target, 0)))
	case t.Kind(target) == tree.JSIdent:
		key = b.leaf(target)
	case isImportsMember(t, target):
		key = b.imports(t.Value(target))
	default:
		s.violation(MsgForInTarget, target)
		return
	}
	tmp := s.temp(id)
	skip := t.AddSynthetic(tree.JSIf, "",
		b.unary("!", b.runtime("canEnum", b.ident(tmp), key)),
		t.AddSynthetic(tree.JSContinue, ""))
	t.SetChildren(id, target, b.assign("=", b.ident(tmp), obj), b.block(skip, body))
}

func matchNew(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSNew)
}

// rewriteNew turns new F(x) into ___.construct(F, [x]).
func rewriteNew(s *sandboxer, id tree.NodeID) {
	t := s.t
	callee := t.Child(id, 0)
	args := slices.Clone(t.Children(id)[1:])
	t.Substitute(id, func() tree.NodeID {
		return s.b.runtime("construct", callee, s.b.array(args...))
	})
}

// =============================================================================
// Exceptions
// =============================================================================

func matchCatch(s *sandboxer, id tree.NodeID) bool {
	return user(s.t, id, tree.JSCatch)
}

// rewriteCatch turns catch (e) { body } into
// catch (ex___) { try { throw '' + ex___; } catch (e) { body } }.
func rewriteCatch(s *sandboxer, id tree.NodeID) {
	t, b := s.t, s.b
	param, body := t.Child(id, 0), t.Child(id, 1)
	inner := t.AddSynthetic(tree.JSCatch, "", param, body)
	rethrow := t.AddSynthetic(tree.JSThrow, "", b.binary("+", b.str(""), b.ident(caughtName)))
	try := t.AddSynthetic(tree.JSTry, "", b.block(rethrow), inner)
	t.SetChildren(id, b.ident(caughtName), b.block(try))
}
