package tree

import "fmt"

// Lang identifies the source language a node kind belongs to.
type Lang uint8

const (
	LangNone Lang = iota
	LangCSS
	LangJS
	LangHTML
)

// String returns the lower-case language name.
func (l Lang) String() string {
	switch l {
	case LangCSS:
		return "css"
	case LangJS:
		return "js"
	case LangHTML:
		return "html"
	default:
		return "none"
	}
}

// Kind is the closed set of node kinds across all languages.
//
// Payload conventions (Value / Aux / children) are documented per kind.
// The numeric values are not stable; the canonical form uses String().
type Kind uint16

const (
	KindInvalid Kind = iota

	// CSS kinds.
	CSSStylesheet     // children: rule sets and at-rules
	CSSDeclGroup      // style attribute body; children: CSSDeclaration
	CSSRuleSet        // children: CSSSelector+, CSSDeclaration*
	CSSSelector       // one complex selector; children: CSSSimpleSelector / CSSCombination alternating
	CSSSimpleSelector // compound selector; children: [CSSElementName] then suffixes
	CSSElementName    // Value: tag name or "*"
	CSSClassLiteral   // Value: class name without the dot
	CSSIDLiteral      // Value: id without the hash
	CSSAttrib         // Value: attribute name; Aux: operator; optional child CSSString / CSSIdent
	CSSPseudo         // Value: pseudo name (functional arguments included verbatim); Aux: ":" or "::"
	CSSCombination    // Value: " ", ">", "+" or "~"
	CSSDeclaration    // Aux: "important" when flagged !important; children: CSSProperty, CSSExpr
	CSSProperty       // Value: lower-cased property name
	CSSExpr           // children: terms and CSSOperation separators
	CSSIdent          // Value: identifier
	CSSString         // Value: decoded string contents
	CSSNumber         // Value: number text (with sign); Aux: unit, "" when absent
	CSSPercentage     // Value: number text without the percent sign
	CSSURI            // Value: decoded URI reference
	CSSHash           // Value: hex color without the hash
	CSSFunction       // Value: function name; children: CSSExpr
	CSSOperation      // Value: "," or "/"
	CSSImport         // children: CSSURI, CSSMedium*
	CSSMedia          // children: CSSMedium+, then CSSRuleSet*
	CSSMedium         // Value: medium text
	CSSPage           // Value: page selector; children: CSSDeclaration*
	CSSFontFace       // children: CSSDeclaration*
	CSSUnknownAtRule  // Value: at-keyword; Aux: prelude

	// JS kinds.
	JSProgram     // children: statements
	JSModule      // module envelope; Aux: "sandboxed" once sandboxed; child: JSBlock
	JSBlock       // children: statements
	JSVarDecl     // Value: "var", "let" or "const"; children: JSDeclarator+
	JSDeclarator  // Value: name; optional child initializer
	JSFuncDecl    // Value: name; children: JSParams, JSBlock
	JSFuncExpr    // Value: optional name; Aux: "arrow" for arrow functions; children: JSParams, body
	JSParams      // children: JSIdent
	JSExprStmt    // child: expression
	JSIf          // children: test, consequent, [alternate]
	JSFor         // children: init, test, update, body (JSNoop for absent slots)
	JSForIn       // children: target (JSVarDecl or expression), object, body
	JSWhile       // children: test, body
	JSDoWhile     // children: body, test
	JSReturn      // children: [argument]
	JSThrow       // child: argument
	JSTry         // children: JSBlock, [JSCatch], [JSFinally]
	JSCatch       // children: JSIdent parameter, JSBlock
	JSFinally     // child: JSBlock
	JSBreak       // Value: optional label
	JSContinue    // Value: optional label
	JSLabeled     // Value: label; child: statement
	JSSwitch      // children: discriminant, JSCase*
	JSCase        // children: test (JSNoop for default), statements...
	JSNoop        // empty statement or absent slot
	JSWith        // children: object, body
	JSIdent       // Value: name
	JSThis        //
	JSString      // Value: decoded string
	JSNumber      // Value: numeric literal text
	JSBool        // Value: "true" or "false"
	JSNull        //
	JSRegExp      // Value: literal text including slashes and flags
	JSArray       // children: elements (JSNoop for holes)
	JSObject      // children: JSProp
	JSProp        // Value: key; Aux: "", "get" or "set"; child: value
	JSMember      // Value: property name; child: object
	JSIndex       // children: object, key
	JSCall        // children: callee, arguments...
	JSNew         // children: constructor, arguments...
	JSAssign      // Value: operator ("=", "+=", ...); children: target, value
	JSBinary      // Value: operator (including "&&", "||", "in", "instanceof"); children: left, right
	JSUnary       // Value: operator; Aux: "postfix" for x++ / x--; child: operand
	JSConditional // children: test, consequent, alternate
	JSSequence    // children: expressions

	// HTML kinds.
	HTMLDocument    // children: content nodes
	HTMLElement     // Value: lower-cased tag; children: HTMLAttrib* then content
	HTMLAttrib      // Value: lower-cased name; Aux: attribute value
	HTMLText        // Value: decoded text
	HTMLPlaceholder // Value: placeholder id; Aux: extracted attribute name, "" for embedded content; child: HTMLAttrib src or href until loaded

	kindCount
)

var kindNames = [...]string{
	KindInvalid: "invalid",

	CSSStylesheet:     "css.stylesheet",
	CSSDeclGroup:      "css.declgroup",
	CSSRuleSet:        "css.ruleset",
	CSSSelector:       "css.selector",
	CSSSimpleSelector: "css.simpleselector",
	CSSElementName:    "css.element",
	CSSClassLiteral:   "css.class",
	CSSIDLiteral:      "css.id",
	CSSAttrib:         "css.attrib",
	CSSPseudo:         "css.pseudo",
	CSSCombination:    "css.combination",
	CSSDeclaration:    "css.declaration",
	CSSProperty:       "css.property",
	CSSExpr:           "css.expr",
	CSSIdent:          "css.ident",
	CSSString:         "css.string",
	CSSNumber:         "css.number",
	CSSPercentage:     "css.percentage",
	CSSURI:            "css.uri",
	CSSHash:           "css.hash",
	CSSFunction:       "css.function",
	CSSOperation:      "css.operation",
	CSSImport:         "css.import",
	CSSMedia:          "css.media",
	CSSMedium:         "css.medium",
	CSSPage:           "css.page",
	CSSFontFace:       "css.fontface",
	CSSUnknownAtRule:  "css.unknownatrule",

	JSProgram:     "js.program",
	JSModule:      "js.module",
	JSBlock:       "js.block",
	JSVarDecl:     "js.vardecl",
	JSDeclarator:  "js.declarator",
	JSFuncDecl:    "js.funcdecl",
	JSFuncExpr:    "js.funcexpr",
	JSParams:      "js.params",
	JSExprStmt:    "js.exprstmt",
	JSIf:          "js.if",
	JSFor:         "js.for",
	JSForIn:       "js.forin",
	JSWhile:       "js.while",
	JSDoWhile:     "js.dowhile",
	JSReturn:      "js.return",
	JSThrow:       "js.throw",
	JSTry:         "js.try",
	JSCatch:       "js.catch",
	JSFinally:     "js.finally",
	JSBreak:       "js.break",
	JSContinue:    "js.continue",
	JSLabeled:     "js.labeled",
	JSSwitch:      "js.switch",
	JSCase:        "js.case",
	JSNoop:        "js.noop",
	JSWith:        "js.with",
	JSIdent:       "js.ident",
	JSThis:        "js.this",
	JSString:      "js.string",
	JSNumber:      "js.number",
	JSBool:        "js.bool",
	JSNull:        "js.null",
	JSRegExp:      "js.regexp",
	JSArray:       "js.array",
	JSObject:      "js.object",
	JSProp:        "js.prop",
	JSMember:      "js.member",
	JSIndex:       "js.index",
	JSCall:        "js.call",
	JSNew:         "js.new",
	JSAssign:      "js.assign",
	JSBinary:      "js.binary",
	JSUnary:       "js.unary",
	JSConditional: "js.conditional",
	JSSequence:    "js.sequence",

	HTMLDocument:    "html.document",
	HTMLElement:     "html.element",
	HTMLAttrib:      "html.attrib",
	HTMLText:        "html.text",
	HTMLPlaceholder: "html.placeholder",
}

// String returns the stable, language-qualified kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Lang returns the language the kind belongs to.
func (k Kind) Lang() Lang {
	switch {
	case k >= CSSStylesheet && k <= CSSUnknownAtRule:
		return LangCSS
	case k >= JSProgram && k <= JSSequence:
		return LangJS
	case k >= HTMLDocument && k <= HTMLPlaceholder:
		return LangHTML
	default:
		return LangNone
	}
}

// IsValid reports whether k is a member of the enumeration.
func (k Kind) IsValid() bool {
	return k > KindInvalid && k < kindCount
}
