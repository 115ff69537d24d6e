package render

import (
	"fmt"
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

// CSS renders a CSS subtree. A CSSStylesheet renders one rule per line
// group; a CSSDeclGroup renders as a style attribute body.
func CSS(t *tree.Tree, id tree.NodeID) string {
	if id == tree.NoNode {
		return ""
	}
	var b strings.Builder
	writeCSS(&b, t, id)
	return b.String()
}

// Stylesheet renders the whole tree.
func Stylesheet(t *tree.Tree) string {
	return CSS(t, t.Root())
}

func writeCSS(b *strings.Builder, t *tree.Tree, id tree.NodeID) {
	v := t.Value(id)
	switch t.Kind(id) {
	case tree.CSSStylesheet:
		for i, c := range t.Children(id) {
			if i > 0 {
				b.WriteString("\n")
			}
			writeCSS(b, t, c)
			b.WriteString("\n")
		}
	case tree.CSSDeclGroup:
		for i, c := range t.Children(id) {
			if i > 0 {
				b.WriteString("; ")
			}
			writeCSS(b, t, c)
		}
	case tree.CSSRuleSet:
		n := 0
		for _, c := range t.Children(id) {
			if t.Kind(c) == tree.CSSSelector {
				if n > 0 {
					b.WriteString(", ")
				}
				writeCSS(b, t, c)
				n++
			}
		}
		writeDeclBlock(b, t, id)
	case tree.CSSSelector, tree.CSSSimpleSelector:
		for _, c := range t.Children(id) {
			writeCSS(b, t, c)
		}
	case tree.CSSElementName:
		b.WriteString(v)
	case tree.CSSClassLiteral:
		b.WriteString("." + v)
	case tree.CSSIDLiteral:
		b.WriteString("#" + v)
	case tree.CSSAttrib:
		b.WriteString("[" + v)
		if op := t.Aux(id); op != "" {
			b.WriteString(op)
			if c := t.Child(id, 0); c != tree.NoNode {
				writeCSS(b, t, c)
			}
		}
		b.WriteString("]")
	case tree.CSSPseudo:
		b.WriteString(t.Aux(id) + v)
	case tree.CSSCombination:
		if v == " " {
			b.WriteString(" ")
		} else {
			b.WriteString(" " + v + " ")
		}
	case tree.CSSDeclaration:
		for i, c := range t.Children(id) {
			if i > 0 {
				b.WriteString(": ")
			}
			writeCSS(b, t, c)
		}
		if t.Aux(id) == "important" {
			b.WriteString(" !important")
		}
	case tree.CSSProperty, tree.CSSIdent:
		b.WriteString(v)
	case tree.CSSExpr:
		sep := ""
		for _, c := range t.Children(id) {
			if t.Kind(c) == tree.CSSOperation {
				if t.Value(c) == "," {
					b.WriteString(", ")
				} else {
					b.WriteString(t.Value(c))
				}
				sep = ""
				continue
			}
			b.WriteString(sep)
			writeCSS(b, t, c)
			sep = " "
		}
	case tree.CSSString:
		b.WriteString(quoteCSS(v))
	case tree.CSSNumber:
		b.WriteString(v + t.Aux(id))
	case tree.CSSPercentage:
		b.WriteString(v + "%")
	case tree.CSSURI:
		b.WriteString("url(" + quoteCSS(v) + ")")
	case tree.CSSHash:
		b.WriteString("#" + v)
	case tree.CSSFunction:
		b.WriteString(v + "(")
		for _, c := range t.Children(id) {
			writeCSS(b, t, c)
		}
		b.WriteString(")")
	case tree.CSSOperation:
		b.WriteString(v)
	case tree.CSSImport:
		b.WriteString("@import ")
		writeCSS(b, t, t.Child(id, 0))
		writeMedia(b, t, id, " ")
		b.WriteString(";")
	case tree.CSSMedia:
		b.WriteString("@media")
		writeMedia(b, t, id, " ")
		b.WriteString(" {\n")
		for _, c := range t.Children(id) {
			if t.Kind(c) == tree.CSSMedium {
				continue
			}
			b.WriteString(indent(CSS(t, c)))
			b.WriteString("\n")
		}
		b.WriteString("}")
	case tree.CSSMedium:
		b.WriteString(v)
	case tree.CSSPage:
		b.WriteString("@page")
		if v != "" {
			b.WriteString(" " + v)
		}
		writeDeclBlock(b, t, id)
	case tree.CSSFontFace:
		b.WriteString("@font-face")
		writeDeclBlock(b, t, id)
	case tree.CSSUnknownAtRule:
		b.WriteString("@" + v)
		if p := t.Aux(id); p != "" {
			b.WriteString(" " + p)
		}
		b.WriteString(";")
	default:
		panic(fmt.Sprintf("render: %s is not a CSS node", t.Kind(id)))
	}
}

// writeDeclBlock writes " {", one declaration per line, and "}".
func writeDeclBlock(b *strings.Builder, t *tree.Tree, id tree.NodeID) {
	b.WriteString(" {\n")
	for _, c := range t.Children(id) {
		if t.Kind(c) == tree.CSSDeclaration {
			b.WriteString("  ")
			writeCSS(b, t, c)
			b.WriteString(";\n")
		}
	}
	b.WriteString("}")
}

func writeMedia(b *strings.Builder, t *tree.Tree, id tree.NodeID, lead string) {
	n := 0
	for _, c := range t.Children(id) {
		if t.Kind(c) != tree.CSSMedium {
			continue
		}
		if n == 0 {
			b.WriteString(lead)
		} else {
			b.WriteString(", ")
		}
		b.WriteString(t.Value(c))
		n++
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}
	return strings.Join(lines, "\n")
}

// quoteCSS double-quotes s. Quotes, backslashes, control characters and
// angle brackets become hex escapes.
func quoteCSS(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\' || r == '<' || r == '>' || r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
