package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Loading
// ============================================================================

func TestLoadScenario(t *testing.T) {
	s := loadScenario(t, "markup")
	assert.Equal(t, "markup", s.Name)
	assert.Equal(t, "app", s.Namespace)
	assert.Equal(t, "https://example.com/site/", s.BaseURL)
	require.Len(t, s.Inputs, 1)
	assert.Equal(t, "page.html", s.Inputs[0].File)
	assert.Len(t, s.Assertions, 5)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "d"
inptus: []
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inptus")
}

// ============================================================================
// Validation
// ============================================================================

func TestParseScenarioValidation(t *testing.T) {
	const input = "inputs:\n  - file: a.css\n    content: 'p { color: red }'\n"
	const accepted = "assertions:\n  - type: accepted\n"

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "description: d\n" + input + accepted, "name is required"},
		{"missing description", "name: n\n" + input + accepted, "description is required"},
		{"relative base", "name: n\ndescription: d\nbase_url: site/\n" + input + accepted, "must be an absolute URL"},
		{"no inputs", "name: n\ndescription: d\n" + accepted, "inputs list is required"},
		{"unknown input type", "name: n\ndescription: d\ninputs:\n  - file: notes.txt\n" + accepted, "inputs[0]"},
		{"no assertions", "name: n\ndescription: d\n" + input, "assertions list is required"},
		{"unknown assertion", "name: n\ndescription: d\n" + input + "assertions:\n  - type: maybe\n", `unknown assertion type "maybe"`},
		{"count without code", "name: n\ndescription: d\n" + input + "assertions:\n  - type: diagnostic_count\n", "code is required"},
		{"bad output", "name: n\ndescription: d\n" + input + "assertions:\n  - type: output_contains\n    output: html\n    text: x\n", "output must be js or css"},
		{"missing text", "name: n\ndescription: d\n" + input + "assertions:\n  - type: output_absent\n    output: js\n", "text is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
