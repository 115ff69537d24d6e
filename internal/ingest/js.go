package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"

	"github.com/roach88/capsule/internal/tree"
)

// ParseJS parses a script into a JSProgram tree. Syntax outside the
// supported ES5 subset yields a *ParseError with Unsupported set.
func ParseJS(file string, src []byte) (*tree.Tree, error) {
	prog, err := parser.ParseFile(nil, file, string(src), 0)
	if err != nil {
		return nil, jsParseError(file, err)
	}
	c := &jsConverter{
		t:    tree.New(file),
		loc:  newLocator(file, string(src)),
		base: prog.File.Base(),
		file: file,
	}
	stmts := c.stmts(prog.Body)
	if c.err != nil {
		return nil, c.err
	}
	root := c.t.Add(tree.JSProgram, "", c.loc.whole(), stmts...)
	c.t.SetRoot(root)
	return c.t, nil
}

func jsParseError(file string, err error) error {
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		first := list[0]
		return &ParseError{File: file, Line: first.Position.Line, Column: first.Position.Column, Message: first.Message}
	}
	var one *parser.Error
	if errors.As(err, &one) {
		return &ParseError{File: file, Line: one.Position.Line, Column: one.Position.Column, Message: one.Message}
	}
	return &ParseError{File: file, Message: err.Error()}
}

// unsupportedNames names the ES2015+ constructs the sandbox rejects.
var unsupportedNames = map[string]string{
	"*ast.ClassLiteral":         "class",
	"*ast.ClassDeclaration":     "class",
	"*ast.TemplateLiteral":      "template literal",
	"*ast.ArrayPattern":         "destructuring",
	"*ast.ObjectPattern":        "destructuring",
	"*ast.SpreadElement":        "spread",
	"*ast.ForOfStatement":       "for-of",
	"*ast.YieldExpression":      "generator",
	"*ast.AwaitExpression":      "async function",
	"*ast.SuperExpression":      "super",
	"*ast.MetaProperty":         "meta property",
	"*ast.OptionalChain":        "optional chaining",
	"*ast.Optional":             "optional chaining",
	"*ast.PrivateDotExpression": "private field",
}

type jsConverter struct {
	t    *tree.Tree
	loc  *locator
	base int
	file string
	err  *ParseError
}

func (c *jsConverter) span(n ast.Node) tree.Span {
	start := int(n.Idx0()) - c.base
	end := int(n.Idx1()) - c.base
	if end > len(c.loc.src) {
		end = len(c.loc.src)
	}
	return c.loc.span(start, end)
}

// unsupported records the first rejected construct and returns a placeholder.
func (c *jsConverter) unsupported(n ast.Node, what string) tree.NodeID {
	if c.err == nil {
		s := c.span(n)
		c.err = &ParseError{
			File:        c.file,
			Line:        s.StartLine,
			Message:     "unsupported syntax: " + what,
			Unsupported: true,
		}
	}
	return c.t.Add(tree.JSNoop, "", tree.Unknown)
}

func (c *jsConverter) unsupportedNode(n ast.Node) tree.NodeID {
	name := fmt.Sprintf("%T", n)
	if what, ok := unsupportedNames[name]; ok {
		return c.unsupported(n, what)
	}
	return c.unsupported(n, name)
}

func (c *jsConverter) noop() tree.NodeID {
	return c.t.Add(tree.JSNoop, "", tree.Unknown)
}

func (c *jsConverter) stmts(list []ast.Statement) []tree.NodeID {
	out := make([]tree.NodeID, 0, len(list))
	for _, s := range list {
		out = append(out, c.stmt(s))
	}
	return out
}

func (c *jsConverter) block(b *ast.BlockStatement) tree.NodeID {
	return c.t.Add(tree.JSBlock, "", c.span(b), c.stmts(b.List)...)
}

func (c *jsConverter) stmtOrNoop(s ast.Statement) tree.NodeID {
	if s == nil {
		return c.noop()
	}
	return c.stmt(s)
}

func (c *jsConverter) exprOrNoop(e ast.Expression) tree.NodeID {
	if e == nil {
		return c.noop()
	}
	return c.expr(e)
}

func (c *jsConverter) stmt(s ast.Statement) tree.NodeID {
	t := c.t
	sp := c.span(s)
	switch s := s.(type) {
	case *ast.BlockStatement:
		return c.block(s)
	case *ast.ExpressionStatement:
		return t.Add(tree.JSExprStmt, "", sp, c.expr(s.Expression))
	case *ast.VariableStatement:
		return c.varDecl("var", s.List, sp)
	case *ast.LexicalDeclaration:
		return c.varDecl(s.Token.String(), s.List, sp)
	case *ast.FunctionDeclaration:
		return c.function(s.Function, tree.JSFuncDecl)
	case *ast.IfStatement:
		children := []tree.NodeID{c.expr(s.Test), c.stmt(s.Consequent)}
		if s.Alternate != nil {
			children = append(children, c.stmt(s.Alternate))
		}
		return t.Add(tree.JSIf, "", sp, children...)
	case *ast.ForStatement:
		init := c.noop()
		switch in := s.Initializer.(type) {
		case nil:
		case *ast.ForLoopInitializerExpression:
			init = c.expr(in.Expression)
		case *ast.ForLoopInitializerVarDeclList:
			init = c.varDecl("var", in.List, tree.Unknown)
		case *ast.ForLoopInitializerLexicalDecl:
			init = c.varDecl(in.LexicalDeclaration.Token.String(), in.LexicalDeclaration.List, tree.Unknown)
		default:
			return c.unsupportedNode(s)
		}
		return t.Add(tree.JSFor, "", sp, init, c.exprOrNoop(s.Test), c.exprOrNoop(s.Update), c.stmt(s.Body))
	case *ast.ForInStatement:
		var target tree.NodeID
		switch in := s.Into.(type) {
		case *ast.ForIntoVar:
			target = c.varDecl("var", []*ast.Binding{in.Binding}, tree.Unknown)
		case *ast.ForDeclaration:
			kind := "let"
			if in.IsConst {
				kind = "const"
			}
			target = c.varDecl(kind, []*ast.Binding{{Target: in.Target}}, tree.Unknown)
		case *ast.ForIntoExpression:
			target = c.expr(in.Expression)
		default:
			return c.unsupportedNode(s)
		}
		return t.Add(tree.JSForIn, "", sp, target, c.expr(s.Source), c.stmt(s.Body))
	case *ast.WhileStatement:
		return t.Add(tree.JSWhile, "", sp, c.expr(s.Test), c.stmt(s.Body))
	case *ast.DoWhileStatement:
		return t.Add(tree.JSDoWhile, "", sp, c.stmt(s.Body), c.expr(s.Test))
	case *ast.ReturnStatement:
		if s.Argument == nil {
			return t.Add(tree.JSReturn, "", sp)
		}
		return t.Add(tree.JSReturn, "", sp, c.expr(s.Argument))
	case *ast.ThrowStatement:
		return t.Add(tree.JSThrow, "", sp, c.expr(s.Argument))
	case *ast.TryStatement:
		children := []tree.NodeID{c.block(s.Body)}
		if s.Catch != nil {
			param, ok := s.Catch.Parameter.(*ast.Identifier)
			if !ok {
				return c.unsupported(s.Catch, "catch without a plain parameter")
			}
			children = append(children, t.Add(tree.JSCatch, "", c.span(s.Catch),
				t.Add(tree.JSIdent, param.Name.String(), c.span(param)),
				c.block(s.Catch.Body)))
		}
		if s.Finally != nil {
			children = append(children, t.Add(tree.JSFinally, "", c.span(s.Finally), c.block(s.Finally)))
		}
		return t.Add(tree.JSTry, "", sp, children...)
	case *ast.BranchStatement:
		label := ""
		if s.Label != nil {
			label = s.Label.Name.String()
		}
		if s.Token == token.BREAK {
			return t.Add(tree.JSBreak, label, sp)
		}
		return t.Add(tree.JSContinue, label, sp)
	case *ast.LabelledStatement:
		return t.Add(tree.JSLabeled, s.Label.Name.String(), sp, c.stmt(s.Statement))
	case *ast.SwitchStatement:
		children := []tree.NodeID{c.expr(s.Discriminant)}
		for _, cs := range s.Body {
			caseChildren := append([]tree.NodeID{c.exprOrNoop(cs.Test)}, c.stmts(cs.Consequent)...)
			children = append(children, t.Add(tree.JSCase, "", c.span(cs), caseChildren...))
		}
		return t.Add(tree.JSSwitch, "", sp, children...)
	case *ast.WithStatement:
		return t.Add(tree.JSWith, "", sp, c.expr(s.Object), c.stmt(s.Body))
	case *ast.EmptyStatement, *ast.DebuggerStatement:
		return t.Add(tree.JSNoop, "", sp)
	default:
		return c.unsupportedNode(s)
	}
}

func (c *jsConverter) varDecl(kind string, list []*ast.Binding, sp tree.Span) tree.NodeID {
	decls := make([]tree.NodeID, 0, len(list))
	for _, b := range list {
		id, ok := b.Target.(*ast.Identifier)
		if !ok {
			return c.unsupportedNode(b.Target)
		}
		var init []tree.NodeID
		if b.Initializer != nil {
			init = append(init, c.expr(b.Initializer))
		}
		d := c.t.Add(tree.JSDeclarator, id.Name.String(), c.span(id), init...)
		cover(c.t, d)
		decls = append(decls, d)
	}
	return c.t.Add(tree.JSVarDecl, kind, sp, decls...)
}

func (c *jsConverter) params(pl *ast.ParameterList) tree.NodeID {
	var ids []tree.NodeID
	if pl != nil {
		if pl.Rest != nil {
			return c.unsupported(pl.Rest, "rest parameter")
		}
		for _, b := range pl.List {
			id, ok := b.Target.(*ast.Identifier)
			if !ok {
				return c.unsupportedNode(b.Target)
			}
			if b.Initializer != nil {
				return c.unsupported(b.Initializer, "default parameter")
			}
			ids = append(ids, c.t.Add(tree.JSIdent, id.Name.String(), c.span(id)))
		}
	}
	return c.t.Add(tree.JSParams, "", tree.Unknown, ids...)
}

func (c *jsConverter) function(f *ast.FunctionLiteral, kind tree.Kind) tree.NodeID {
	name := ""
	if f.Name != nil {
		name = f.Name.Name.String()
	}
	return c.t.Add(kind, name, c.span(f), c.params(f.ParameterList), c.block(f.Body))
}

func (c *jsConverter) expr(e ast.Expression) tree.NodeID {
	t := c.t
	sp := c.span(e)
	switch e := e.(type) {
	case *ast.Identifier:
		return t.Add(tree.JSIdent, e.Name.String(), sp)
	case *ast.ThisExpression:
		return t.Add(tree.JSThis, "", sp)
	case *ast.StringLiteral:
		return t.Add(tree.JSString, e.Value.String(), sp)
	case *ast.NumberLiteral:
		return t.Add(tree.JSNumber, e.Literal, sp)
	case *ast.BooleanLiteral:
		return t.Add(tree.JSBool, strconv.FormatBool(e.Value), sp)
	case *ast.NullLiteral:
		return t.Add(tree.JSNull, "", sp)
	case *ast.RegExpLiteral:
		return t.Add(tree.JSRegExp, e.Literal, sp)
	case *ast.ArrayLiteral:
		elems := make([]tree.NodeID, 0, len(e.Value))
		for _, v := range e.Value {
			elems = append(elems, c.exprOrNoop(v))
		}
		return t.Add(tree.JSArray, "", sp, elems...)
	case *ast.ObjectLiteral:
		props := make([]tree.NodeID, 0, len(e.Value))
		for _, p := range e.Value {
			props = append(props, c.property(p))
		}
		return t.Add(tree.JSObject, "", sp, props...)
	case *ast.FunctionLiteral:
		return c.function(e, tree.JSFuncExpr)
	case *ast.ArrowFunctionLiteral:
		var body tree.NodeID
		switch b := e.Body.(type) {
		case *ast.BlockStatement:
			body = c.block(b)
		case *ast.ExpressionBody:
			bs := c.span(b.Expression)
			body = t.Add(tree.JSBlock, "", bs, t.Add(tree.JSReturn, "", bs, c.expr(b.Expression)))
		default:
			return c.unsupportedNode(e)
		}
		id := t.Add(tree.JSFuncExpr, "", sp, c.params(e.ParameterList), body)
		t.SetAux(id, "arrow")
		return id
	case *ast.DotExpression:
		return t.Add(tree.JSMember, e.Identifier.Name.String(), sp, c.expr(e.Left))
	case *ast.BracketExpression:
		return t.Add(tree.JSIndex, "", sp, c.expr(e.Left), c.expr(e.Member))
	case *ast.CallExpression:
		return t.Add(tree.JSCall, "", sp, append([]tree.NodeID{c.expr(e.Callee)}, c.exprs(e.ArgumentList)...)...)
	case *ast.NewExpression:
		return t.Add(tree.JSNew, "", sp, append([]tree.NodeID{c.expr(e.Callee)}, c.exprs(e.ArgumentList)...)...)
	case *ast.AssignExpression:
		op, ok := assignOp(e.Operator.String())
		if !ok {
			return c.unsupported(e, "logical assignment")
		}
		return t.Add(tree.JSAssign, op, sp, c.expr(e.Left), c.expr(e.Right))
	case *ast.BinaryExpression:
		return t.Add(tree.JSBinary, e.Operator.String(), sp, c.expr(e.Left), c.expr(e.Right))
	case *ast.UnaryExpression:
		id := t.Add(tree.JSUnary, e.Operator.String(), sp, c.expr(e.Operand))
		if e.Postfix {
			t.SetAux(id, "postfix")
		}
		return id
	case *ast.ConditionalExpression:
		return t.Add(tree.JSConditional, "", sp, c.expr(e.Test), c.expr(e.Consequent), c.expr(e.Alternate))
	case *ast.SequenceExpression:
		return t.Add(tree.JSSequence, "", sp, c.exprs(e.Sequence)...)
	default:
		return c.unsupportedNode(e)
	}
}

// assignOp maps the operator the parser records for an assignment to its
// source form: "=" for plain assignment, "+=" for an assignment recorded as
// "+" or "+=".
func assignOp(op string) (string, bool) {
	switch op {
	case "=":
		return op, true
	case "&&", "||", "??", "&&=", "||=", "??=":
		return "", false
	}
	if strings.HasSuffix(op, "=") {
		return op, true
	}
	return op + "=", true
}

func (c *jsConverter) exprs(list []ast.Expression) []tree.NodeID {
	out := make([]tree.NodeID, 0, len(list))
	for _, e := range list {
		out = append(out, c.expr(e))
	}
	return out
}

func (c *jsConverter) property(p ast.Property) tree.NodeID {
	t := c.t
	switch p := p.(type) {
	case *ast.PropertyKeyed:
		if p.Computed {
			return c.unsupported(p, "computed property key")
		}
		var key string
		switch k := p.Key.(type) {
		case *ast.StringLiteral:
			key = k.Value.String()
		case *ast.NumberLiteral:
			key = k.Literal
		case *ast.Identifier:
			key = k.Name.String()
		default:
			return c.unsupportedNode(p.Key)
		}
		id := t.Add(tree.JSProp, key, c.span(p), c.expr(p.Value))
		switch p.Kind {
		case ast.PropertyKindGet:
			t.SetAux(id, "get")
		case ast.PropertyKindSet:
			t.SetAux(id, "set")
		}
		return id
	case *ast.PropertyShort:
		if p.Initializer != nil {
			return c.unsupported(p, "destructuring")
		}
		name := p.Name.Name.String()
		return t.Add(tree.JSProp, name, c.span(p), t.Add(tree.JSIdent, name, c.span(&p.Name)))
	default:
		return c.unsupportedNode(p)
	}
}
