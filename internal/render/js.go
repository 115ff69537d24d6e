package render

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/roach88/capsule/internal/tree"
)

// Binding strength of expression forms, loosest first.
const (
	precSequence = iota
	precAssign
	precConditional
	precOr
	precAnd
	precBitOr
	precBitXor
	precBitAnd
	precEquality
	precRelational
	precShift
	precAdditive
	precMultiplicative
	precExponent
	precUnary
	precPostfix
	precLHS
	precPrimary
)

func binaryPrec(op string) int {
	switch op {
	case "||", "??":
		return precOr
	case "&&":
		return precAnd
	case "|":
		return precBitOr
	case "^":
		return precBitXor
	case "&":
		return precBitAnd
	case "==", "!=", "===", "!==":
		return precEquality
	case "<", ">", "<=", ">=", "in", "instanceof":
		return precRelational
	case "<<", ">>", ">>>":
		return precShift
	case "+", "-":
		return precAdditive
	case "*", "/", "%":
		return precMultiplicative
	case "**":
		return precExponent
	default:
		panic(fmt.Sprintf("render: unknown binary operator %q", op))
	}
}

// JS renders a JS subtree. Statements render without a trailing newline; a
// JSProgram renders one top-level statement per line.
func JS(t *tree.Tree, id tree.NodeID) string {
	if id == tree.NoNode {
		return ""
	}
	p := &jsPrinter{t: t}
	switch k := t.Kind(id); {
	case k == tree.JSProgram:
		for _, c := range t.Children(id) {
			p.stmt(c)
			p.b.WriteString("\n")
		}
	case isJSStatement(k):
		p.stmt(id)
	default:
		p.expr(id, precSequence)
	}
	return p.b.String()
}

// Script renders the whole tree.
func Script(t *tree.Tree) string {
	return JS(t, t.Root())
}

func isJSStatement(k tree.Kind) bool {
	switch k {
	case tree.JSModule, tree.JSBlock, tree.JSVarDecl, tree.JSFuncDecl, tree.JSExprStmt,
		tree.JSIf, tree.JSFor, tree.JSForIn, tree.JSWhile, tree.JSDoWhile, tree.JSReturn,
		tree.JSThrow, tree.JSTry, tree.JSBreak, tree.JSContinue, tree.JSLabeled,
		tree.JSSwitch, tree.JSNoop, tree.JSWith:
		return true
	}
	return false
}

type jsPrinter struct {
	t     *tree.Tree
	b     strings.Builder
	level int
}

func (p *jsPrinter) newline() {
	p.b.WriteString("\n")
	p.b.WriteString(strings.Repeat("  ", p.level))
}

func (p *jsPrinter) write(s ...string) {
	for _, x := range s {
		p.b.WriteString(x)
	}
}

func (p *jsPrinter) stmt(id tree.NodeID) {
	t := p.t
	v := t.Value(id)
	switch t.Kind(id) {
	case tree.JSModule:
		p.stmt(t.Child(id, 0))
	case tree.JSBlock:
		p.block(t.Children(id))
	case tree.JSVarDecl:
		p.varDecl(id)
		p.write(";")
	case tree.JSFuncDecl:
		p.function(id)
	case tree.JSExprStmt:
		e := t.Child(id, 0)
		if k := t.Kind(leftmost(t, e)); k == tree.JSObject || (k == tree.JSFuncExpr && t.Aux(leftmost(t, e)) != "arrow") {
			p.write("(")
			p.expr(e, precSequence)
			p.write(")")
		} else {
			p.expr(e, precSequence)
		}
		p.write(";")
	case tree.JSIf:
		p.write("if (")
		p.expr(t.Child(id, 0), precSequence)
		p.write(") ")
		p.stmt(t.Child(id, 1))
		if alt := t.Child(id, 2); alt != tree.NoNode {
			p.write(" else ")
			p.stmt(alt)
		}
	case tree.JSFor:
		p.write("for (")
		if init := t.Child(id, 0); t.Kind(init) == tree.JSVarDecl {
			p.varDecl(init)
		} else if t.Kind(init) != tree.JSNoop {
			p.expr(init, precSequence)
		}
		p.write(";")
		for _, c := range []tree.NodeID{t.Child(id, 1), t.Child(id, 2)} {
			if t.Kind(c) != tree.JSNoop {
				p.write(" ")
				p.expr(c, precSequence)
			}
			if c == t.Child(id, 1) {
				p.write(";")
			}
		}
		p.write(") ")
		p.stmt(t.Child(id, 3))
	case tree.JSForIn:
		p.write("for (")
		if target := t.Child(id, 0); t.Kind(target) == tree.JSVarDecl {
			p.varDecl(target)
		} else {
			p.expr(target, precLHS)
		}
		p.write(" in ")
		p.expr(t.Child(id, 1), precSequence)
		p.write(") ")
		p.stmt(t.Child(id, 2))
	case tree.JSWhile:
		p.write("while (")
		p.expr(t.Child(id, 0), precSequence)
		p.write(") ")
		p.stmt(t.Child(id, 1))
	case tree.JSDoWhile:
		p.write("do ")
		p.stmt(t.Child(id, 0))
		p.write(" while (")
		p.expr(t.Child(id, 1), precSequence)
		p.write(");")
	case tree.JSReturn:
		p.write("return")
		if arg := t.Child(id, 0); arg != tree.NoNode {
			p.write(" ")
			p.expr(arg, precSequence)
		}
		p.write(";")
	case tree.JSThrow:
		p.write("throw ")
		p.expr(t.Child(id, 0), precSequence)
		p.write(";")
	case tree.JSTry:
		p.write("try ")
		for i, c := range t.Children(id) {
			if i > 0 {
				p.write(" ")
			}
			p.stmt(c)
		}
	case tree.JSCatch:
		p.write("catch (", t.Value(t.Child(id, 0)), ") ")
		p.stmt(t.Child(id, 1))
	case tree.JSFinally:
		p.write("finally ")
		p.stmt(t.Child(id, 0))
	case tree.JSBreak, tree.JSContinue:
		if t.Kind(id) == tree.JSBreak {
			p.write("break")
		} else {
			p.write("continue")
		}
		if v != "" {
			p.write(" ", v)
		}
		p.write(";")
	case tree.JSLabeled:
		p.write(v, ": ")
		p.stmt(t.Child(id, 0))
	case tree.JSSwitch:
		p.write("switch (")
		p.expr(t.Child(id, 0), precSequence)
		p.write(") {")
		p.level++
		for _, cs := range t.Children(id)[1:] {
			p.newline()
			if test := t.Child(cs, 0); t.Kind(test) == tree.JSNoop {
				p.write("default:")
			} else {
				p.write("case ")
				p.expr(test, precSequence)
				p.write(":")
			}
			p.level++
			for _, s := range t.Children(cs)[1:] {
				p.newline()
				p.stmt(s)
			}
			p.level--
		}
		p.level--
		p.newline()
		p.write("}")
	case tree.JSNoop:
		p.write(";")
	case tree.JSWith:
		p.write("with (")
		p.expr(t.Child(id, 0), precSequence)
		p.write(") ")
		p.stmt(t.Child(id, 1))
	default:
		panic(fmt.Sprintf("render: %s is not a JS statement", t.Kind(id)))
	}
}

func (p *jsPrinter) block(stmts []tree.NodeID) {
	if len(stmts) == 0 {
		p.write("{}")
		return
	}
	p.write("{")
	p.level++
	for _, s := range stmts {
		p.newline()
		p.stmt(s)
	}
	p.level--
	p.newline()
	p.write("}")
}

func (p *jsPrinter) varDecl(id tree.NodeID) {
	t := p.t
	p.write(t.Value(id), " ")
	for i, d := range t.Children(id) {
		if i > 0 {
			p.write(", ")
		}
		p.write(t.Value(d))
		if init := t.Child(d, 0); init != tree.NoNode {
			p.write(" = ")
			p.expr(init, precAssign)
		}
	}
}

// function writes a declaration or expression: keyword, name, params, body.
func (p *jsPrinter) function(id tree.NodeID) {
	t := p.t
	arrow := t.Aux(id) == "arrow"
	if !arrow {
		p.write("function")
		if name := t.Value(id); name != "" {
			p.write(" ", name)
		} else {
			p.write(" ")
		}
	}
	p.params(t.Child(id, 0))
	if arrow {
		p.write(" =>")
	}
	p.write(" ")
	p.stmt(t.Child(id, 1))
}

func (p *jsPrinter) params(id tree.NodeID) {
	p.write("(")
	for i, c := range p.t.Children(id) {
		if i > 0 {
			p.write(", ")
		}
		p.write(p.t.Value(c))
	}
	p.write(")")
}

func (p *jsPrinter) prec(id tree.NodeID) int {
	t := p.t
	switch t.Kind(id) {
	case tree.JSSequence:
		return precSequence
	case tree.JSAssign:
		return precAssign
	case tree.JSFuncExpr:
		if t.Aux(id) == "arrow" {
			return precAssign
		}
		return precPrimary
	case tree.JSConditional:
		return precConditional
	case tree.JSBinary:
		return binaryPrec(t.Value(id))
	case tree.JSUnary:
		if t.Aux(id) == "postfix" {
			return precPostfix
		}
		return precUnary
	case tree.JSMember, tree.JSIndex, tree.JSCall, tree.JSNew:
		return precLHS
	default:
		return precPrimary
	}
}

func (p *jsPrinter) expr(id tree.NodeID, min int) {
	if p.prec(id) < min {
		p.write("(")
		p.exprInner(id)
		p.write(")")
		return
	}
	p.exprInner(id)
}

func (p *jsPrinter) exprInner(id tree.NodeID) {
	t := p.t
	v := t.Value(id)
	switch t.Kind(id) {
	case tree.JSIdent:
		p.write(v)
	case tree.JSThis:
		p.write("this")
	case tree.JSString:
		p.write(QuoteJS(v))
	case tree.JSNumber:
		p.write(v)
	case tree.JSBool:
		p.write(v)
	case tree.JSNull:
		p.write("null")
	case tree.JSRegExp:
		p.write(strings.ReplaceAll(v, "</", `<\/`))
	case tree.JSArray:
		p.write("[")
		kids := t.Children(id)
		for i, c := range kids {
			if i > 0 {
				p.write(", ")
			}
			if t.Kind(c) != tree.JSNoop {
				p.expr(c, precAssign)
			}
		}
		if n := len(kids); n > 0 && t.Kind(kids[n-1]) == tree.JSNoop {
			p.write(",")
		}
		p.write("]")
	case tree.JSObject:
		kids := t.Children(id)
		if len(kids) == 0 {
			p.write("{}")
			return
		}
		p.write("{")
		for i, c := range kids {
			if i > 0 {
				p.write(",")
			}
			p.write(" ")
			key := propertyKey(t.Value(c))
			val := t.Child(c, 0)
			if acc := t.Aux(c); acc == "get" || acc == "set" {
				p.write(acc, " ", key)
				p.params(t.Child(val, 0))
				p.write(" ")
				p.stmt(t.Child(val, 1))
				continue
			}
			p.write(key, ": ")
			p.expr(val, precAssign)
		}
		p.write(" }")
	case tree.JSFuncExpr:
		p.function(id)
	case tree.JSMember:
		obj := t.Child(id, 0)
		if t.Kind(obj) == tree.JSNumber {
			p.write("(")
			p.expr(obj, precSequence)
			p.write(")")
		} else {
			p.expr(obj, precLHS)
		}
		if isIdentName(v) {
			p.write(".", v)
		} else {
			p.write("[", QuoteJS(v), "]")
		}
	case tree.JSIndex:
		p.expr(t.Child(id, 0), precLHS)
		p.write("[")
		p.expr(t.Child(id, 1), precSequence)
		p.write("]")
	case tree.JSCall:
		p.expr(t.Child(id, 0), precLHS)
		p.args(t.Children(id)[1:])
	case tree.JSNew:
		p.write("new ")
		callee := t.Child(id, 0)
		if hasCallHead(t, callee) {
			p.write("(")
			p.expr(callee, precSequence)
			p.write(")")
		} else {
			p.expr(callee, precLHS)
		}
		p.args(t.Children(id)[1:])
	case tree.JSAssign:
		p.expr(t.Child(id, 0), precLHS)
		p.write(" ", v, " ")
		p.expr(t.Child(id, 1), precAssign)
	case tree.JSBinary:
		prec := binaryPrec(v)
		left, right := prec, prec+1
		if v == "**" {
			left, right = prec+1, prec
		}
		p.expr(t.Child(id, 0), left)
		p.write(" ", v, " ")
		p.expr(t.Child(id, 1), right)
	case tree.JSUnary:
		operand := t.Child(id, 0)
		if t.Aux(id) == "postfix" {
			p.expr(operand, precPostfix)
			p.write(v)
			return
		}
		p.write(v)
		if isWordOperator(v) || startsWithSign(t, operand, v) {
			p.write(" ")
		}
		p.expr(operand, precUnary)
	case tree.JSConditional:
		p.expr(t.Child(id, 0), precOr)
		p.write(" ? ")
		p.expr(t.Child(id, 1), precAssign)
		p.write(" : ")
		p.expr(t.Child(id, 2), precAssign)
	case tree.JSSequence:
		for i, c := range t.Children(id) {
			if i > 0 {
				p.write(", ")
			}
			p.expr(c, precAssign)
		}
	default:
		panic(fmt.Sprintf("render: %s is not a JS expression", t.Kind(id)))
	}
}

func (p *jsPrinter) args(list []tree.NodeID) {
	p.write("(")
	for i, a := range list {
		if i > 0 {
			p.write(", ")
		}
		p.expr(a, precAssign)
	}
	p.write(")")
}

// leftmost returns the expression whose text starts id's rendering.
func leftmost(t *tree.Tree, id tree.NodeID) tree.NodeID {
	for {
		switch k := t.Kind(id); {
		case k == tree.JSMember || k == tree.JSIndex || k == tree.JSCall ||
			k == tree.JSAssign || k == tree.JSBinary || k == tree.JSConditional || k == tree.JSSequence:
			id = t.Child(id, 0)
		case k == tree.JSUnary && t.Aux(id) == "postfix":
			id = t.Child(id, 0)
		default:
			return id
		}
	}
}

// hasCallHead reports whether a member chain starts at a call, which would
// bind to new when rendered without parentheses.
func hasCallHead(t *tree.Tree, id tree.NodeID) bool {
	for {
		switch t.Kind(id) {
		case tree.JSCall:
			return true
		case tree.JSMember, tree.JSIndex:
			id = t.Child(id, 0)
		default:
			return false
		}
	}
}

func isWordOperator(op string) bool {
	return op == "typeof" || op == "void" || op == "delete"
}

// startsWithSign reports whether operand would render as "- -x" or "+ +x".
func startsWithSign(t *tree.Tree, operand tree.NodeID, op string) bool {
	if op != "-" && op != "+" {
		return false
	}
	if t.Kind(operand) == tree.JSUnary && t.Aux(operand) != "postfix" {
		return strings.HasPrefix(t.Value(operand), op)
	}
	return t.Kind(operand) == tree.JSNumber && strings.HasPrefix(t.Value(operand), op)
}

func isIdentName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func propertyKey(k string) string {
	if isIdentName(k) {
		return k
	}
	return QuoteJS(k)
}

// QuoteJS single-quotes s as a JS string literal. Angle brackets and line
// terminators are escaped so the literal can sit inside a script element.
func QuoteJS(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '<':
			b.WriteString(`\x3c`)
		case '>':
			b.WriteString(`\x3e`)
		case '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04x`, r)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
	return b.String()
}
