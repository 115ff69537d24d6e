package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capsule.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// ============================================================================
// Loading
// ============================================================================

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnv, "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, CacheSQLite, cfg.Cache.Mode)
	assert.Equal(t, []string{"http", "https"}, cfg.URI.AllowedSchemes)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.Nil(t, cfg.Origin())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
namespace: widget
cache:
  mode: memory
uri:
  allowedHosts: ["cdn.example.com"]
  baseURL: https://example.com/app/
  timeout: 3s
failFast: true
logLevel: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "widget", cfg.Namespace)
	assert.Equal(t, CacheMemory, cfg.Cache.Mode)
	assert.Equal(t, []string{"cdn.example.com"}, cfg.URI.AllowedHosts)
	assert.Equal(t, 3*time.Second, cfg.URI.Timeout)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	require.NotNil(t, cfg.Origin())
	assert.Equal(t, "example.com", cfg.Origin().Host)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, 2, cfg.URI.Retries)
	assert.Equal(t, []string{"http", "https"}, cfg.URI.AllowedSchemes)
}

func TestLoadFileFromEnvironment(t *testing.T) {
	t.Setenv(PathEnv, writeConfig(t, "namespace: fromfile\n"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.Namespace)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "namespcae: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespcae")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "namespace: fromfile\ncache:\n  mode: memory\n")
	t.Setenv("CAPSULE_NAMESPACE", "fromenv")
	t.Setenv("CAPSULE_CACHE_MODE", "none")
	t.Setenv("CAPSULE_URI_ALLOWED_SCHEMES", "https,data")
	t.Setenv("CAPSULE_URI_MAX_BYTES", "4096")
	t.Setenv("CAPSULE_URI_RATE_LIMIT", "2.5")
	t.Setenv("CAPSULE_FAIL_FAST", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Namespace)
	assert.Equal(t, CacheNone, cfg.Cache.Mode)
	assert.Equal(t, []string{"https", "data"}, cfg.URI.AllowedSchemes)
	assert.Equal(t, int64(4096), cfg.URI.MaxBytes)
	assert.Equal(t, 2.5, cfg.URI.RateLimit)
	assert.True(t, cfg.FailFast)
}

func TestEnvironmentMalformedValue(t *testing.T) {
	t.Setenv("CAPSULE_URI_RETRIES", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "environment")
}

// ============================================================================
// Validation
// ============================================================================

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Namespace = "1bad"
	cfg.Cache.Mode = "disk"
	cfg.URI.AllowedSchemes = []string{"HTTP", "javascript"}
	cfg.URI.BaseURL = "relative/path"
	cfg.URI.Retries = -1
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	var fields []string
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ve *ValidationError
		require.True(t, errors.As(e, &ve))
		fields = append(fields, ve.Field)
	}
	assert.Equal(t, []string{
		"namespace",
		"cache.mode",
		"uri.allowedSchemes",
		"uri.allowedSchemes",
		"uri.baseURL",
		"uri.retries",
		"logLevel",
	}, fields)
}

func TestValidateSQLiteNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Cache.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cache.path: required for sqlite mode")

	cfg.Cache.Mode = CacheMemory
	assert.NoError(t, cfg.Validate())
}

// ============================================================================
// Collaborators
// ============================================================================

func TestPolicyFromConfig(t *testing.T) {
	cfg := Default()
	cfg.URI.AllowedHosts = []string{"*.example.com"}
	cfg.URI.ProxyTemplate = "https://proxy.test/?u={url}"

	p := cfg.Policy()
	out, ok := p.Rewrite("https://img.example.com/a.png", nil, "image/*")
	require.True(t, ok)
	assert.Equal(t, "https://proxy.test/?u=https%3A%2F%2Fimg.example.com%2Fa.png", out)

	_, ok = p.Rewrite("https://evil.test/a.png", nil, "image/*")
	assert.False(t, ok)

	// The policy owns its slices.
	cfg.URI.AllowedHosts[0] = "evil.test"
	_, ok = p.Rewrite("https://evil.test/a.png", nil, "image/*")
	assert.False(t, ok)
}

func TestResolverSharesPolicy(t *testing.T) {
	cfg := Default()
	cfg.URI.AllowedSchemes = []string{"https"}

	r := cfg.Resolver(nil)
	require.NotNil(t, r.Policy)
	require.NotNil(t, r.Loader)

	_, ok := r.Rewrite("http://example.com/x.css", nil, "text/css")
	assert.False(t, ok)
}
