package ingest

import (
	"fmt"
	"strconv"
	"strings"

	douceur "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"github.com/gorilla/css/scanner"

	"github.com/roach88/capsule/internal/tree"
)

// ParseCSS parses a stylesheet into a CSSStylesheet tree.
func ParseCSS(file string, src []byte) (*tree.Tree, error) {
	sheet, err := parser.Parse(string(src))
	if err != nil {
		return nil, &ParseError{File: file, Message: err.Error()}
	}
	b := &cssBuilder{t: tree.New(file), loc: newLocator(file, string(src)), file: file}
	var rules []tree.NodeID
	for _, r := range sheet.Rules {
		id, err := b.rule(r)
		if err != nil {
			return nil, err
		}
		if id != tree.NoNode {
			rules = append(rules, id)
		}
	}
	root := b.t.Add(tree.CSSStylesheet, "", b.loc.whole(), rules...)
	b.t.SetRoot(root)
	return b.t, nil
}

// ParseCSSDeclarations parses a style attribute body into a CSSDeclGroup tree.
func ParseCSSDeclarations(file string, src []byte) (*tree.Tree, error) {
	decls, err := parser.ParseDeclarations(string(src))
	if err != nil {
		return nil, &ParseError{File: file, Message: err.Error()}
	}
	b := &cssBuilder{t: tree.New(file), loc: newLocator(file, string(src)), file: file}
	ids, err := b.declarations(decls)
	if err != nil {
		return nil, err
	}
	root := b.t.Add(tree.CSSDeclGroup, "", b.loc.whole(), ids...)
	b.t.SetRoot(root)
	return b.t, nil
}

type cssBuilder struct {
	t    *tree.Tree
	loc  *locator
	file string
}

func (b *cssBuilder) errorf(span tree.Span, format string, args ...any) error {
	return &ParseError{File: b.file, Line: span.StartLine, Message: fmt.Sprintf(format, args...)}
}

func (b *cssBuilder) rule(r *douceur.Rule) (tree.NodeID, error) {
	if r.Kind == douceur.QualifiedRule {
		return b.ruleSet(r)
	}

	name := strings.ToLower(strings.TrimPrefix(r.Name, "@"))
	span := b.loc.findFold("@" + name)
	var id tree.NodeID
	switch name {
	case "charset":
		return tree.NoNode, nil
	case "import":
		children, err := b.importPrelude(r.Prelude, span)
		if err != nil {
			return tree.NoNode, err
		}
		id = b.t.Add(tree.CSSImport, "", span, children...)
	case "media":
		var children []tree.NodeID
		for _, m := range strings.Split(r.Prelude, ",") {
			if m = strings.TrimSpace(m); m != "" {
				children = append(children, b.t.Add(tree.CSSMedium, strings.ToLower(m), tree.Unknown))
			}
		}
		for _, nested := range r.Rules {
			c, err := b.rule(nested)
			if err != nil {
				return tree.NoNode, err
			}
			if c != tree.NoNode {
				children = append(children, c)
			}
		}
		id = b.t.Add(tree.CSSMedia, "", span, children...)
	case "page":
		decls, err := b.declarations(r.Declarations)
		if err != nil {
			return tree.NoNode, err
		}
		id = b.t.Add(tree.CSSPage, strings.TrimSpace(r.Prelude), span, decls...)
	case "font-face":
		decls, err := b.declarations(r.Declarations)
		if err != nil {
			return tree.NoNode, err
		}
		id = b.t.Add(tree.CSSFontFace, "", span, decls...)
	default:
		id = b.t.Add(tree.CSSUnknownAtRule, name, span)
		b.t.SetAux(id, strings.TrimSpace(r.Prelude))
	}
	cover(b.t, id)
	return id, nil
}

func (b *cssBuilder) ruleSet(r *douceur.Rule) (tree.NodeID, error) {
	var children []tree.NodeID
	for _, sel := range r.Selectors {
		span := b.loc.find(sel)
		id, err := b.selector(sel, span)
		if err != nil {
			return tree.NoNode, err
		}
		children = append(children, id)
	}
	decls, err := b.declarations(r.Declarations)
	if err != nil {
		return tree.NoNode, err
	}
	id := b.t.Add(tree.CSSRuleSet, "", tree.Unknown, append(children, decls...)...)
	cover(b.t, id)
	return id, nil
}

func (b *cssBuilder) declarations(decls []*douceur.Declaration) ([]tree.NodeID, error) {
	ids := make([]tree.NodeID, 0, len(decls))
	for _, d := range decls {
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		span := b.loc.findFold(d.Property)
		if v := strings.TrimSpace(d.Value); v != "" {
			if vs := b.loc.find(v); vs.Known() {
				span = tree.Join(span, vs)
			}
		}
		expr, err := b.expr(d.Value, span)
		if err != nil {
			return nil, err
		}
		id := b.t.Add(tree.CSSDeclaration, "", span,
			b.t.Add(tree.CSSProperty, prop, tree.Unknown), expr)
		if d.Important {
			b.t.SetAux(id, "important")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// tokens scans s, dropping comments. Whitespace tokens are kept.
func tokens(s string) ([]*scanner.Token, error) {
	var out []*scanner.Token
	sc := scanner.New(s)
	for {
		tok := sc.Next()
		switch tok.Type {
		case scanner.TokenEOF:
			return out, nil
		case scanner.TokenError:
			return nil, fmt.Errorf("bad token %q", tok.Value)
		case scanner.TokenComment, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM:
			continue
		}
		out = append(out, tok)
	}
}

func (b *cssBuilder) expr(value string, span tree.Span) (tree.NodeID, error) {
	toks, err := tokens(value)
	if err != nil {
		return tree.NoNode, b.errorf(span, "value %q: %v", value, err)
	}
	p := &termParser{b: b, toks: toks, span: span}
	terms, err := p.terms(false)
	if err != nil {
		return tree.NoNode, err
	}
	return b.t.Add(tree.CSSExpr, "", tree.Unknown, terms...), nil
}

// termParser reads value terms from a token slice.
type termParser struct {
	b    *cssBuilder
	toks []*scanner.Token
	i    int
	span tree.Span
}

// terms reads until the end of input, or until ")" when nested.
func (p *termParser) terms(nested bool) ([]tree.NodeID, error) {
	t := p.b.t
	var out []tree.NodeID
	for p.i < len(p.toks) {
		tok := p.toks[p.i]
		p.i++
		switch tok.Type {
		case scanner.TokenS:
		case scanner.TokenIdent:
			out = append(out, t.Add(tree.CSSIdent, tok.Value, tree.Unknown))
		case scanner.TokenString:
			out = append(out, t.Add(tree.CSSString, unquoteCSS(tok.Value), tree.Unknown))
		case scanner.TokenNumber:
			out = append(out, t.Add(tree.CSSNumber, tok.Value, tree.Unknown))
		case scanner.TokenPercentage:
			out = append(out, t.Add(tree.CSSPercentage, strings.TrimSuffix(tok.Value, "%"), tree.Unknown))
		case scanner.TokenDimension:
			num, unit := splitDimension(tok.Value)
			id := t.Add(tree.CSSNumber, num, tree.Unknown)
			t.SetAux(id, strings.ToLower(unit))
			out = append(out, id)
		case scanner.TokenURI:
			out = append(out, t.Add(tree.CSSURI, uriValue(tok.Value), tree.Unknown))
		case scanner.TokenHash:
			out = append(out, t.Add(tree.CSSHash, strings.TrimPrefix(tok.Value, "#"), tree.Unknown))
		case scanner.TokenFunction:
			args, err := p.terms(true)
			if err != nil {
				return nil, err
			}
			name := strings.ToLower(strings.TrimSuffix(tok.Value, "("))
			out = append(out, t.Add(tree.CSSFunction, name, tree.Unknown,
				t.Add(tree.CSSExpr, "", tree.Unknown, args...)))
		case scanner.TokenChar:
			switch tok.Value {
			case ",", "/":
				out = append(out, t.Add(tree.CSSOperation, tok.Value, tree.Unknown))
			case "-", "+":
				// The scanner leaves the sign of a number as a separate token.
				if p.i < len(p.toks) {
					if n := p.toks[p.i]; n.Type == scanner.TokenNumber || n.Type == scanner.TokenDimension || n.Type == scanner.TokenPercentage {
						signed := *n
						signed.Value = tok.Value + n.Value
						p.toks[p.i] = &signed
						continue
					}
				}
				return nil, p.b.errorf(p.span, "unexpected %q in value", tok.Value)
			case ")":
				if nested {
					return out, nil
				}
				return nil, p.b.errorf(p.span, "unbalanced %q in value", tok.Value)
			default:
				return nil, p.b.errorf(p.span, "unexpected %q in value", tok.Value)
			}
		default:
			return nil, p.b.errorf(p.span, "unexpected %q in value", tok.Value)
		}
	}
	if nested {
		return nil, p.b.errorf(p.span, "unterminated function")
	}
	return out, nil
}

func (b *cssBuilder) importPrelude(prelude string, span tree.Span) ([]tree.NodeID, error) {
	toks, err := tokens(prelude)
	if err != nil {
		return nil, b.errorf(span, "@import: %v", err)
	}
	var out []tree.NodeID
	for _, tok := range toks {
		switch tok.Type {
		case scanner.TokenS:
		case scanner.TokenURI:
			if len(out) == 0 {
				out = append(out, b.t.Add(tree.CSSURI, uriValue(tok.Value), tree.Unknown))
				continue
			}
			return nil, b.errorf(span, "@import: unexpected %q", tok.Value)
		case scanner.TokenString:
			if len(out) == 0 {
				out = append(out, b.t.Add(tree.CSSURI, unquoteCSS(tok.Value), tree.Unknown))
				continue
			}
			return nil, b.errorf(span, "@import: unexpected %q", tok.Value)
		case scanner.TokenIdent:
			if len(out) == 0 {
				return nil, b.errorf(span, "@import: missing URI")
			}
			out = append(out, b.t.Add(tree.CSSMedium, strings.ToLower(tok.Value), tree.Unknown))
		case scanner.TokenChar:
			if tok.Value != "," {
				return nil, b.errorf(span, "@import: unexpected %q", tok.Value)
			}
		default:
			return nil, b.errorf(span, "@import: unexpected %q", tok.Value)
		}
	}
	if len(out) == 0 {
		return nil, b.errorf(span, "@import: missing URI")
	}
	return out, nil
}

// selector parses one complex selector.
func (b *cssBuilder) selector(text string, span tree.Span) (tree.NodeID, error) {
	toks, err := tokens(text)
	if err != nil {
		return tree.NoNode, b.errorf(span, "selector %q: %v", text, err)
	}
	t := b.t
	var parts []tree.NodeID
	var simple []tree.NodeID
	pendingSpace := false
	bad := func() error { return b.errorf(span, "unsupported selector %q", text) }
	flush := func() {
		if len(simple) > 0 {
			parts = append(parts, t.Add(tree.CSSSimpleSelector, "", tree.Unknown, simple...))
			simple = nil
		}
	}
	combine := func(c string) error {
		if len(simple) == 0 && (len(parts) == 0 || t.Kind(parts[len(parts)-1]) == tree.CSSCombination) {
			if c == " " {
				return nil
			}
			return bad()
		}
		flush()
		if last := parts[len(parts)-1]; t.Kind(last) == tree.CSSCombination {
			if c == " " {
				return nil
			}
			if t.Value(last) == " " {
				t.SetValue(last, c)
				return nil
			}
			return bad()
		}
		parts = append(parts, t.Add(tree.CSSCombination, c, tree.Unknown))
		return nil
	}

	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		if tok.Type == scanner.TokenS {
			pendingSpace = true
			continue
		}
		if pendingSpace {
			pendingSpace = false
			if !(tok.Type == scanner.TokenChar && strings.ContainsAny(tok.Value, ">+~")) {
				if err := combine(" "); err != nil {
					return tree.NoNode, err
				}
			}
		}
		next := func() *scanner.Token {
			if i+1 < len(toks) {
				i++
				return toks[i]
			}
			return nil
		}
		switch tok.Type {
		case scanner.TokenIdent:
			if len(simple) > 0 {
				return tree.NoNode, bad()
			}
			simple = append(simple, t.Add(tree.CSSElementName, strings.ToLower(tok.Value), tree.Unknown))
		case scanner.TokenHash:
			simple = append(simple, t.Add(tree.CSSIDLiteral, strings.TrimPrefix(tok.Value, "#"), tree.Unknown))
		case scanner.TokenChar:
			switch tok.Value {
			case "*":
				if len(simple) > 0 {
					return tree.NoNode, bad()
				}
				simple = append(simple, t.Add(tree.CSSElementName, "*", tree.Unknown))
			case ".":
				n := next()
				if n == nil || n.Type != scanner.TokenIdent {
					return tree.NoNode, bad()
				}
				simple = append(simple, t.Add(tree.CSSClassLiteral, n.Value, tree.Unknown))
			case ":":
				colons := ":"
				n := next()
				if n != nil && n.Type == scanner.TokenChar && n.Value == ":" {
					colons = "::"
					n = next()
				}
				if n == nil {
					return tree.NoNode, bad()
				}
				name := n.Value
				switch n.Type {
				case scanner.TokenIdent:
				case scanner.TokenFunction:
					depth := 1
					for depth > 0 {
						a := next()
						if a == nil {
							return tree.NoNode, bad()
						}
						name += a.Value
						if a.Type == scanner.TokenFunction || (a.Type == scanner.TokenChar && a.Value == "(") {
							depth++
						} else if a.Type == scanner.TokenChar && a.Value == ")" {
							depth--
						}
					}
				default:
					return tree.NoNode, bad()
				}
				id := t.Add(tree.CSSPseudo, name, tree.Unknown)
				t.SetAux(id, colons)
				simple = append(simple, id)
			case "[":
				id, err := b.attrib(toks, &i, bad)
				if err != nil {
					return tree.NoNode, err
				}
				simple = append(simple, id)
			case ">", "+", "~":
				if err := combine(tok.Value); err != nil {
					return tree.NoNode, err
				}
			default:
				return tree.NoNode, bad()
			}
		default:
			return tree.NoNode, bad()
		}
	}
	flush()
	if len(parts) == 0 || t.Kind(parts[len(parts)-1]) == tree.CSSCombination {
		return tree.NoNode, bad()
	}
	return t.Add(tree.CSSSelector, "", span, parts...), nil
}

// attrib parses "[name]" or "[name op value]"; *i is on the "[".
func (b *cssBuilder) attrib(toks []*scanner.Token, i *int, bad func() error) (tree.NodeID, error) {
	t := b.t
	var sig []*scanner.Token
	for *i++; *i < len(toks); *i++ {
		tok := toks[*i]
		if tok.Type == scanner.TokenChar && tok.Value == "]" {
			break
		}
		if tok.Type != scanner.TokenS {
			sig = append(sig, tok)
		}
	}
	if *i >= len(toks) || len(sig) == 0 || sig[0].Type != scanner.TokenIdent {
		return tree.NoNode, bad()
	}
	id := t.Add(tree.CSSAttrib, strings.ToLower(sig[0].Value), tree.Unknown)
	if len(sig) == 1 {
		return id, nil
	}
	if len(sig) != 3 {
		return tree.NoNode, bad()
	}
	op := sig[1].Value
	switch sig[1].Type {
	case scanner.TokenIncludes, scanner.TokenDashMatch, scanner.TokenPrefixMatch,
		scanner.TokenSuffixMatch, scanner.TokenSubstringMatch:
	case scanner.TokenChar:
		if op != "=" {
			return tree.NoNode, bad()
		}
	default:
		return tree.NoNode, bad()
	}
	var val tree.NodeID
	switch sig[2].Type {
	case scanner.TokenIdent:
		val = t.Add(tree.CSSIdent, sig[2].Value, tree.Unknown)
	case scanner.TokenString:
		val = t.Add(tree.CSSString, unquoteCSS(sig[2].Value), tree.Unknown)
	default:
		return tree.NoNode, bad()
	}
	t.SetAux(id, op)
	t.SetChildren(id, val)
	return id, nil
}

// splitDimension splits "12.5em" into "12.5" and "em".
func splitDimension(s string) (string, string) {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	// An exponent is part of the number only when digits follow it.
	if i+1 < len(s) && (s[i] == 'e' || s[i] == 'E') && s[i+1] >= '0' && s[i+1] <= '9' {
		i++
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
	}
	return s[:i], s[i:]
}

// uriValue extracts the reference from a url(...) token.
func uriValue(tok string) string {
	v := strings.TrimSpace(tok)
	if len(v) >= 5 && strings.EqualFold(v[:4], "url(") && strings.HasSuffix(v, ")") {
		v = strings.TrimSpace(v[4 : len(v)-1])
	}
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') {
		return unquoteCSS(v)
	}
	return unescapeCSS(v)
}

// unquoteCSS strips matching quotes and decodes escapes.
func unquoteCSS(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return unescapeCSS(s)
}

// unescapeCSS decodes backslash escapes: hex code points (with one optional
// trailing space), escaped newlines, and escaped literal characters.
func unescapeCSS(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out.WriteByte(c)
			continue
		}
		i++
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j > i {
			n, _ := strconv.ParseUint(s[i:j], 16, 32)
			if n == 0 || n > 0x10ffff {
				n = 0xfffd
			}
			out.WriteRune(rune(n))
			if j < len(s) && s[j] == ' ' {
				j++
			}
			i = j - 1
			continue
		}
		if s[i] == '\n' {
			continue
		}
		out.WriteByte(s[i])
	}
	return out.String()
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
