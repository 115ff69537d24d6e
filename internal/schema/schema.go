// Package schema holds the whitelist tables the rewriters consult: known CSS
// properties and the value kinds each accepts, known elements, allowed value
// functions, and the HTML element/attribute allow lists.
//
// Tables are written in CUE. The embedded default.cue is used unless a
// replacement file is loaded; every file is unified with defs.cue so a
// malformed table is rejected before any compilation starts.
package schema

import (
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/zeebo/blake3"
)

//go:embed defs.cue
var defsCUE []byte

//go:embed default.cue
var defaultCUE []byte

// ValueKind is one category of CSS value term.
type ValueKind string

const (
	KindLength     ValueKind = "length"
	KindNumber     ValueKind = "number"
	KindPercentage ValueKind = "percentage"
	KindColor      ValueKind = "color"
	KindIdent      ValueKind = "ident"
	KindString     ValueKind = "string"
	KindURI        ValueKind = "uri"
	KindFunction   ValueKind = "function"
)

// Property describes one known CSS property.
type Property struct {
	Kinds []ValueKind `json:"kinds"`
}

// Has reports whether the property accepts values of kind k.
func (p Property) Has(k ValueKind) bool {
	return slices.Contains(p.Kinds, k)
}

// CSS is the stylesheet half of the schema.
type CSS struct {
	Properties          map[string]Property `json:"properties"`
	Elements            []string            `json:"elements"`
	Functions           []string            `json:"functions"`
	LooseWordProperties []string            `json:"looseWordProperties"`
	GenericFamilies     []string            `json:"genericFamilies"`
}

// HTML is the markup half of the schema.
type HTML struct {
	Elements          []string            `json:"elements"`
	Attributes        []string            `json:"attributes"`
	ElementAttributes map[string][]string `json:"elementAttributes"`
	URIAttributes     []string            `json:"uriAttributes"`
	EventAttributes   []string            `json:"eventAttributes"`
}

// Schema is a decoded, validated table set. It is immutable after loading.
type Schema struct {
	CSS  CSS  `json:"css"`
	HTML HTML `json:"html"`

	digest string
	sets   map[string]map[string]bool
}

// LoadError reports a schema file that failed to compile or validate.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
)

// Default returns the embedded schema. It panics if the embedded tables do
// not validate, which only a broken build can cause.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Parse("default.cue", defaultCUE)
		if err != nil {
			panic("schema: embedded default does not validate: " + err.Error())
		}
		defaultSchema = s
	})
	return defaultSchema
}

// Load reads and validates a replacement schema file.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(path, data)
}

// Parse compiles CUE source, unifies it with the definitions and decodes it.
func Parse(filename string, src []byte) (*Schema, error) {
	ctx := cuecontext.New()

	defs := ctx.CompileBytes(defsCUE, cue.Filename("defs.cue"))
	if err := defs.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}

	unified := defs.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(filename, err)
	}

	s := &Schema{}
	if err := unified.LookupPath(cue.ParsePath("css")).Decode(&s.CSS); err != nil {
		return nil, formatCUEError(filename, err)
	}
	if err := unified.LookupPath(cue.ParsePath("html")).Decode(&s.HTML); err != nil {
		return nil, formatCUEError(filename, err)
	}
	if len(s.CSS.Properties) == 0 {
		return nil, &LoadError{File: filename, Message: "css.properties must not be empty"}
	}

	s.index()
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(file string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: file, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{File: file, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

func (s *Schema) index() {
	s.sets = map[string]map[string]bool{
		"css.elements":    toSet(s.CSS.Elements),
		"css.functions":   toSet(s.CSS.Functions),
		"css.loose":       toSet(s.CSS.LooseWordProperties),
		"css.generic":     toSet(s.CSS.GenericFamilies),
		"html.elements":   toSet(s.HTML.Elements),
		"html.attributes": toSet(s.HTML.Attributes),
		"html.uri":        toSet(s.HTML.URIAttributes),
		"html.event":      toSet(s.HTML.EventAttributes),
	}

	// encoding/json sorts map keys, so equal tables hash equally.
	raw, _ := json.Marshal(s)
	sum := blake3.Sum256(raw)
	s.digest = hex.EncodeToString(sum[:])
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}

// Digest identifies the table contents. It is part of the cache generation.
func (s *Schema) Digest() string { return s.digest }

// Property looks up a CSS property by lowercase name.
func (s *Schema) Property(name string) (Property, bool) {
	p, ok := s.CSS.Properties[name]
	return p, ok
}

// IsCSSElement reports whether name is a known element for selectors.
func (s *Schema) IsCSSElement(name string) bool { return s.sets["css.elements"][name] }

// IsFunction reports whether name is an allowed CSS value function.
func (s *Schema) IsFunction(name string) bool { return s.sets["css.functions"][name] }

// IsLooseWordProperty reports whether bare words in the property's value
// are merged into one quoted string.
func (s *Schema) IsLooseWordProperty(name string) bool { return s.sets["css.loose"][name] }

// IsGenericFamily reports whether name is a generic font family keyword.
func (s *Schema) IsGenericFamily(name string) bool { return s.sets["css.generic"][name] }

// IsHTMLElement reports whether the element may appear in static markup.
func (s *Schema) IsHTMLElement(name string) bool { return s.sets["html.elements"][name] }

// IsHTMLAttribute reports whether attr is allowed on element.
func (s *Schema) IsHTMLAttribute(element, attr string) bool {
	if s.sets["html.attributes"][attr] {
		return true
	}
	return slices.Contains(s.HTML.ElementAttributes[element], attr)
}

// IsURIAttribute reports whether attr holds a URI.
func (s *Schema) IsURIAttribute(attr string) bool { return s.sets["html.uri"][attr] }

// IsEventAttribute reports whether attr is an event handler attribute.
func (s *Schema) IsEventAttribute(attr string) bool { return s.sets["html.event"][attr] }
