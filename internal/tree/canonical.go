package tree

import (
	"bytes"
	"encoding/json"

	"golang.org/x/text/unicode/norm"
)

// Canonical produces the canonical encoding of the subtree rooted at id.
// CRITICAL: this is the ONLY serialization used for content fingerprints.
//
// Each node encodes as a JSON object with keys in sorted order:
//
//	{"a":aux,"c":[children...],"k":kind,"v":value}
//
// "a" and "c" are omitted when empty. Strings are NFC normalized and never
// HTML-escaped. Spans, the synthetic flag and the invalid marker are
// excluded, so structurally identical trees encode identically regardless
// of where they were parsed from.
func (t *Tree) Canonical(id NodeID) []byte {
	var buf bytes.Buffer
	if t.valid(id) {
		t.writeCanonical(&buf, id)
	} else {
		buf.WriteString("null")
	}
	return buf.Bytes()
}

func (t *Tree) writeCanonical(buf *bytes.Buffer, id NodeID) {
	n := &t.nodes[id]
	buf.WriteByte('{')
	if n.Aux != "" {
		buf.WriteString(`"a":`)
		writeCanonicalString(buf, n.Aux)
		buf.WriteByte(',')
	}
	if len(n.Children) > 0 {
		buf.WriteString(`"c":[`)
		for i, c := range n.Children {
			if i > 0 {
				buf.WriteByte(',')
			}
			t.writeCanonical(buf, c)
		}
		buf.WriteString("],")
	}
	buf.WriteString(`"k":`)
	writeCanonicalString(buf, n.Kind.String())
	buf.WriteString(`,"v":`)
	writeCanonicalString(buf, n.Value)
	buf.WriteByte('}')
}

// writeCanonicalString writes s as a JSON string after NFC normalization.
// <, > and & are NOT escaped.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a plain string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))
	out := tmp.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
}
