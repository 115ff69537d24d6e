package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoads(t *testing.T) {
	s := Default()

	p, ok := s.Property("width")
	require.True(t, ok)
	assert.True(t, p.Has(KindLength))
	assert.False(t, p.Has(KindNumber))

	lh, ok := s.Property("line-height")
	require.True(t, ok)
	assert.True(t, lh.Has(KindNumber))

	_, ok = s.Property("behavior")
	assert.False(t, ok)

	assert.True(t, s.IsCSSElement("body"))
	assert.True(t, s.IsCSSElement("p"))
	assert.False(t, s.IsCSSElement("script"))
	assert.True(t, s.IsFunction("rgb"))
	assert.False(t, s.IsFunction("expression"))
	assert.True(t, s.IsLooseWordProperty("font-family"))
	assert.True(t, s.IsGenericFamily("sans-serif"))
}

func TestDefaultHTMLTables(t *testing.T) {
	s := Default()

	assert.True(t, s.IsHTMLElement("div"))
	assert.False(t, s.IsHTMLElement("script"))
	assert.False(t, s.IsHTMLElement("iframe"))
	assert.True(t, s.IsHTMLAttribute("div", "class"))
	assert.True(t, s.IsHTMLAttribute("a", "href"))
	assert.False(t, s.IsHTMLAttribute("div", "href"))
	assert.True(t, s.IsURIAttribute("src"))
	assert.True(t, s.IsEventAttribute("onclick"))
	assert.False(t, s.IsEventAttribute("class"))
}

func TestDigestIsStable(t *testing.T) {
	a, err := Parse("a.cue", defaultCUE)
	require.NoError(t, err)

	assert.Equal(t, Default().Digest(), a.Digest())
	assert.Len(t, a.Digest(), 64)
}

const minimal = `
css: {
	properties: color: kinds: ["color", "ident"]
	elements: ["p"]
	functions: []
	looseWordProperties: []
	genericFamilies: []
}
html: {
	elements: ["p"]
	attributes: ["class"]
	elementAttributes: {}
	uriAttributes: []
	eventAttributes: []
}
`

func TestLoadReplacementFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.cue")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	s, err := Load(path)

	require.NoError(t, err)
	_, ok := s.Property("width")
	assert.False(t, ok)
	assert.True(t, s.IsCSSElement("p"))
	assert.NotEqual(t, Default().Digest(), s.Digest())
}

func TestParseRejectsUnknownValueKind(t *testing.T) {
	bad := `
css: {
	properties: color: kinds: ["colour"]
	elements: []
	functions: []
	looseWordProperties: []
	genericFamilies: []
}
html: {
	elements: []
	attributes: []
	elementAttributes: {}
	uriAttributes: []
	eventAttributes: []
}
`
	_, err := Parse("bad.cue", []byte(bad))

	var le *LoadError
	require.ErrorAs(t, err, &le)
}

func TestParseRejectsSyntaxError(t *testing.T) {
	_, err := Parse("broken.cue", []byte("css: {"))

	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.cue"))

	assert.Error(t, err)
}
