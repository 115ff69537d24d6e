package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/config"
)

// writeInputs creates files in a fresh directory and returns their paths
// in argument order.
func writeInputs(t *testing.T, files ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i := 0; i < len(files); i += 2 {
		path := filepath.Join(dir, files[i])
		require.NoError(t, os.WriteFile(path, []byte(files[i+1]), 0o644))
		paths = append(paths, path)
	}
	return dir, paths
}

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.PathEnv, "")
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

type compileResponse struct {
	Status      string        `json:"status"`
	Data        CompileResult `json:"data"`
	Error       *CLIError     `json:"error"`
	Diagnostics []Diagnostic  `json:"diagnostics"`
}

func countCode(diags []Diagnostic, code string) int {
	n := 0
	for _, d := range diags {
		if d.Code == code {
			n++
		}
	}
	return n
}

// ============================================================================
// Successful compilation
// ============================================================================

func TestCompileWritesOutputs(t *testing.T) {
	dir, inputs := writeInputs(t,
		"style.css", ".card { color: red }",
		"app.js", "var n = 1;",
	)
	prefix := filepath.Join(dir, "out")

	args := append([]string{"compile", "--cache", "none", "-n", "app", "-o", prefix}, inputs...)
	stdout, _, err := execute(t, args...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Compiled namespace app")
	assert.Contains(t, stdout, "Wrote "+prefix+".js")
	assert.Contains(t, stdout, "Wrote "+prefix+".css")

	js, err := os.ReadFile(prefix + ".js")
	require.NoError(t, err)
	assert.Contains(t, string(js), "___.loadModule(")
	assert.Contains(t, string(js), "namespace: 'app'")

	css, err := os.ReadFile(prefix + ".css")
	require.NoError(t, err)
	assert.Contains(t, string(css), ".app .app-card {")
}

func TestCompilePrintsToStdout(t *testing.T) {
	_, inputs := writeInputs(t, "style.css", ".card { color: red }")

	stdout, _, err := execute(t, append([]string{"compile", "--cache", "none", "-n", "app"}, inputs...)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "___.loadModule(")
	assert.Contains(t, stdout, "/* app.css */")
	assert.Contains(t, stdout, ".app .app-card {")
}

func TestCompileJSON(t *testing.T) {
	_, inputs := writeInputs(t,
		"page.html", `<p class="note" onclick="go(event)">Hi</p>`,
	)

	stdout, _, err := execute(t, append([]string{"--format", "json", "compile", "--cache", "none", "-n", "app"}, inputs...)...)
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "app", resp.Data.Namespace)
	assert.Len(t, resp.Data.Signature, 32)
	assert.Contains(t, resp.Data.JS, "emitHtml")
	assert.Contains(t, resp.Data.JS, "attachHandler")
	assert.Empty(t, resp.Data.CSS)
}

func TestCompileDerivesNamespace(t *testing.T) {
	_, inputs := writeInputs(t, "style.css", ".card { color: red }")

	stdout, _, err := execute(t, append([]string{"--format", "json", "compile", "--cache", "none"}, inputs...)...)
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	ns := resp.Data.Namespace
	require.Len(t, ns, 9)
	assert.True(t, strings.HasPrefix(ns, "c"))
	assert.Contains(t, resp.Data.CSS, "."+ns+" ."+ns+"-card {")
}

func TestCompileReadsConfigFile(t *testing.T) {
	dir, inputs := writeInputs(t, "style.css", ".card { color: red }")
	cfgPath := filepath.Join(dir, "capsule.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("namespace: fromfile\ncache:\n  mode: none\n"), 0o644))

	stdout, _, err := execute(t, append([]string{"--format", "json", "--config", cfgPath, "compile"}, inputs...)...)
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "fromfile", resp.Data.Namespace)
}

func TestCompileWritesMetrics(t *testing.T) {
	dir, inputs := writeInputs(t, "style.css", ".card { color: red }")
	metricsPath := filepath.Join(dir, "capsule.prom")

	_, _, err := execute(t, append([]string{"compile", "--cache", "none", "-n", "app", "--metrics-out", metricsPath}, inputs...)...)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `capsule_stage_duration_seconds_count{stage="rewrite-css"} 1`)
}

// ============================================================================
// Rejected input and command errors
// ============================================================================

func TestCompileRejectsUnsafeInput(t *testing.T) {
	_, inputs := writeInputs(t, "style.css", `p { content: "x"; color: red }`)

	stdout, stderr, err := execute(t, append([]string{"compile", "--cache", "none", "-n", "app"}, inputs...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ compilation failed with 1 error(s)")
	assert.Contains(t, stderr, "ERROR CSS_DISALLOWED_PROPERTY")
}

func TestCompileRejectsUnsafeInputJSON(t *testing.T) {
	_, inputs := writeInputs(t, "style.css", `p { content: "x" }`)

	stdout, _, err := execute(t, append([]string{"--format", "json", "compile", "--cache", "none", "-n", "app"}, inputs...)...)
	require.Error(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRejected, resp.Error.Code)
	assert.Equal(t, 1, countCode(resp.Diagnostics, "CSS_DISALLOWED_PROPERTY"))
}

func TestCompileReportsParseErrors(t *testing.T) {
	_, inputs := writeInputs(t, "broken.js", "var = ;")

	_, stderr, err := execute(t, append([]string{"compile", "--cache", "none", "-n", "app"}, inputs...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, "JS_PARSE_ERROR")
}

func TestCompileUnknownInputType(t *testing.T) {
	_, inputs := writeInputs(t, "notes.txt", "hello")

	stdout, _, err := execute(t, append([]string{"compile", "--cache", "none"}, inputs...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E004]")
}

func TestCompileInvalidNamespaceFlag(t *testing.T) {
	_, inputs := writeInputs(t, "style.css", ".a { color: red }")

	stdout, _, err := execute(t, append([]string{"compile", "--cache", "none", "-n", "9lives"}, inputs...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E002]")
	assert.Contains(t, stdout, "namespace")
}

// ============================================================================
// Persistent cache
// ============================================================================

func TestCompileReusesSQLiteCache(t *testing.T) {
	dir, inputs := writeInputs(t,
		"style.css", ".card { color: red }",
		"app.js", "var n = 1;",
	)
	dbPath := filepath.Join(dir, "cache", "capsule.db")
	args := append([]string{"--format", "json", "compile", "--cache", "sqlite", "--cache-path", dbPath, "-n", "app"}, inputs...)

	first, _, err := execute(t, args...)
	require.NoError(t, err)
	second, _, err := execute(t, args...)
	require.NoError(t, err)

	var cold, warm compileResponse
	require.NoError(t, json.Unmarshal([]byte(first), &cold))
	require.NoError(t, json.Unmarshal([]byte(second), &warm))
	assert.Zero(t, countCode(cold.Diagnostics, "CACHE_HIT"))
	assert.Equal(t, 2, countCode(warm.Diagnostics, "CACHE_HIT"))
	assert.Equal(t, cold.Data.JS, warm.Data.JS)
	assert.Equal(t, cold.Data.CSS, warm.Data.CSS)

	stats, _, err := execute(t, "cache", "stats", "--path", dbPath)
	require.NoError(t, err)
	assert.Contains(t, stats, "Entries: 2")

	cleared, _, err := execute(t, "--format", "json", "cache", "clear", "--path", dbPath)
	require.NoError(t, err)
	var resp struct {
		Status string      `json:"status"`
		Data   ClearResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(cleared), &resp))
	assert.Equal(t, int64(2), resp.Data.Removed)

	store, err := cache.OpenSQLite(dbPath, cache.NewKeyer())
	require.NoError(t, err)
	defer store.Close()
	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}

func TestCacheStatsMissingFile(t *testing.T) {
	stdout, _, err := execute(t, "cache", "stats", "--path", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [E006]")
	assert.Contains(t, stdout, "cache not found")
}

func TestCacheStatsNeedsSQLiteMode(t *testing.T) {
	t.Setenv("CAPSULE_CACHE_MODE", "memory")

	stdout, _, err := execute(t, "cache", "stats")
	require.Error(t, err)
	assert.Contains(t, stdout, ErrCodeCacheDisabled)
}
