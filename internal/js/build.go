package js

import (
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

const (
	runtimeName = "___"
	importsName = "IMPORTS___"
	thisAlias   = "t___"
	argsAlias   = "a___"
	caughtName  = "ex___"
)

// isReserved reports whether name falls in the runtime's naming convention.
func isReserved(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasSuffix(name, "__")
}

// builder creates synthetic JS nodes.
type builder struct {
	t *tree.Tree
}

func (b builder) ident(name string) tree.NodeID {
	return b.t.AddSynthetic(tree.JSIdent, name)
}

func (b builder) str(s string) tree.NodeID {
	return b.t.AddSynthetic(tree.JSString, s)
}

func (b builder) number(n string) tree.NodeID {
	return b.t.AddSynthetic(tree.JSNumber, n)
}

func (b builder) member(obj tree.NodeID, name string) tree.NodeID {
	return b.t.AddSynthetic(tree.JSMember, name, obj)
}

// imports references name in the module namespace object.
func (b builder) imports(name string) tree.NodeID {
	return b.member(b.ident(importsName), name)
}

func (b builder) call(callee tree.NodeID, args ...tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSCall, "", append([]tree.NodeID{callee}, args...)...)
}

// method calls obj.name(args...).
func (b builder) method(obj tree.NodeID, name string, args ...tree.NodeID) tree.NodeID {
	return b.call(b.member(obj, name), args...)
}

// runtime calls ___.name(args...).
func (b builder) runtime(name string, args ...tree.NodeID) tree.NodeID {
	return b.method(b.ident(runtimeName), name, args...)
}

func (b builder) array(elems ...tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSArray, "", elems...)
}

func (b builder) assign(op string, target, value tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSAssign, op, target, value)
}

func (b builder) binary(op string, left, right tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSBinary, op, left, right)
}

func (b builder) unary(op string, operand tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSUnary, op, operand)
}

func (b builder) cond(test, yes, no tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSConditional, "", test, yes, no)
}

// seq joins the expressions that are not NoNode into a sequence. A single
// expression is returned as is.
func (b builder) seq(exprs ...tree.NodeID) tree.NodeID {
	kept := make([]tree.NodeID, 0, len(exprs))
	for _, e := range exprs {
		if e != tree.NoNode {
			kept = append(kept, e)
		}
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return b.t.AddSynthetic(tree.JSSequence, "", kept...)
}

func (b builder) stmt(expr tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSExprStmt, "", expr)
}

func (b builder) block(stmts ...tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSBlock, "", stmts...)
}

// vars declares each name, with its initializer when one is given.
func (b builder) vars(names []string, inits map[string]tree.NodeID) tree.NodeID {
	decls := make([]tree.NodeID, 0, len(names))
	for _, n := range names {
		var init []tree.NodeID
		if v, ok := inits[n]; ok {
			init = append(init, v)
		}
		decls = append(decls, b.t.AddSynthetic(tree.JSDeclarator, n, init...))
	}
	return b.t.AddSynthetic(tree.JSVarDecl, "var", decls...)
}

func (b builder) params(names ...string) tree.NodeID {
	ids := make([]tree.NodeID, 0, len(names))
	for _, n := range names {
		ids = append(ids, b.ident(n))
	}
	return b.t.AddSynthetic(tree.JSParams, "", ids...)
}

func (b builder) function(params, body tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(tree.JSFuncExpr, "", params, body)
}

// catchAll wraps body in try { body } catch (ex___) { handler }.
func (b builder) catchAll(body, handler tree.NodeID) tree.NodeID {
	catch := b.t.AddSynthetic(tree.JSCatch, "", b.ident(caughtName), handler)
	return b.t.AddSynthetic(tree.JSTry, "", body, catch)
}

// leaf copies a childless node as a synthetic node.
func (b builder) leaf(id tree.NodeID) tree.NodeID {
	return b.t.AddSynthetic(b.t.Kind(id), b.t.Value(id))
}
