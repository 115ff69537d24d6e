// Package config loads compiler settings from defaults, an optional YAML
// file and CAPSULE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/capsule/internal/stages"
	"github.com/roach88/capsule/internal/uri"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "CAPSULE"

	// PathEnv names the config file when no path is given explicitly.
	PathEnv = "CAPSULE_CONFIG"
)

// Cache modes.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
)

var (
	cacheModes = []string{CacheNone, CacheMemory, CacheSQLite}
	logLevels  = []string{"debug", "info", "warn", "error"}
)

// Config holds every setting of a compilation.
type Config struct {
	// Namespace scopes the output. Empty derives one from the inputs.
	Namespace string `yaml:"namespace" split_words:"true"`

	// Schema is a CUE file replacing the embedded schema tables.
	Schema string `yaml:"schema" split_words:"true"`

	Cache CacheConfig `yaml:"cache" split_words:"true"`
	URI   URIConfig   `yaml:"uri" split_words:"true"`

	FailFast       bool   `yaml:"failFast" split_words:"true"`
	MaxImportDepth int    `yaml:"maxImportDepth" split_words:"true"`
	LogLevel       string `yaml:"logLevel" split_words:"true"`
}

// CacheConfig selects the job cache.
type CacheConfig struct {
	Mode string `yaml:"mode" split_words:"true"`
	Path string `yaml:"path" split_words:"true"`
}

// URIConfig controls which URIs output may reference and how external
// content is loaded.
type URIConfig struct {
	AllowedSchemes []string `yaml:"allowedSchemes" split_words:"true"`
	AllowedHosts   []string `yaml:"allowedHosts" split_words:"true"`
	ProxyTemplate  string   `yaml:"proxyTemplate" split_words:"true"`

	// BaseURL is the origin of the inputs. Empty leaves relative
	// references relative.
	BaseURL string `yaml:"baseURL" split_words:"true"`

	// BaseDir confines file: loads. Empty disables them.
	BaseDir string `yaml:"baseDir" split_words:"true"`

	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
	Retries  int           `yaml:"retries" split_words:"true"`
	MaxBytes int64         `yaml:"maxBytes" split_words:"true"`

	// RateLimit caps remote loads per second. Zero means unlimited.
	RateLimit float64 `yaml:"rateLimit" split_words:"true"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Mode: CacheSQLite,
			Path: DefaultCachePath(),
		},
		URI: URIConfig{
			AllowedSchemes: slices.Clone(uri.DefaultSchemes),
			Timeout:        10 * time.Second,
			Retries:        2,
			MaxBytes:       1 << 20,
		},
		MaxImportDepth: stages.DefaultImportDepth,
		LogLevel:       "warn",
	}
}

// DefaultCachePath is the SQLite cache location under the user cache
// directory, or in the working directory when there is none.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".capsule-cache.db"
	}
	return filepath.Join(dir, "capsule", "cache.db")
}

// Load builds the configuration. path names a YAML file; when empty the
// CAPSULE_CONFIG variable is consulted and, failing that, no file is read.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readFile decodes path over c. Unknown keys are errors.
func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// Validate checks every setting and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Namespace != "" && !stages.ValidNamespace(c.Namespace) {
		invalid("namespace", "%q is not a valid identifier", c.Namespace)
	}
	if !slices.Contains(cacheModes, c.Cache.Mode) {
		invalid("cache.mode", "%q must be one of %v", c.Cache.Mode, cacheModes)
	}
	if c.Cache.Mode == CacheSQLite && c.Cache.Path == "" {
		invalid("cache.path", "required for sqlite mode")
	}
	for _, s := range c.URI.AllowedSchemes {
		if s == "" || s != strings.ToLower(s) {
			invalid("uri.allowedSchemes", "%q must be a lowercase scheme", s)
		}
		if s == "javascript" {
			invalid("uri.allowedSchemes", "javascript cannot be allowed")
		}
	}
	if c.URI.BaseURL != "" {
		if u, err := url.Parse(c.URI.BaseURL); err != nil || !u.IsAbs() {
			invalid("uri.baseURL", "%q is not an absolute URL", c.URI.BaseURL)
		}
	}
	if c.URI.Timeout < 0 {
		invalid("uri.timeout", "must not be negative")
	}
	if c.URI.Retries < 0 {
		invalid("uri.retries", "must not be negative")
	}
	if c.URI.MaxBytes < 0 {
		invalid("uri.maxBytes", "must not be negative")
	}
	if c.URI.RateLimit < 0 {
		invalid("uri.rateLimit", "must not be negative")
	}
	if c.MaxImportDepth < 0 {
		invalid("maxImportDepth", "must not be negative")
	}
	if !slices.Contains(logLevels, c.LogLevel) {
		invalid("logLevel", "%q must be one of %v", c.LogLevel, logLevels)
	}
	return errors.Join(errs...)
}

// Level converts LogLevel for slog.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Origin parses BaseURL; nil when unset.
func (c *Config) Origin() *url.URL {
	if c.URI.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.URI.BaseURL)
	if err != nil {
		return nil
	}
	return u
}

// Policy builds the URI rewrite policy.
func (c *Config) Policy() *uri.Policy {
	return &uri.Policy{
		AllowedSchemes: slices.Clone(c.URI.AllowedSchemes),
		AllowedHosts:   slices.Clone(c.URI.AllowedHosts),
		ProxyTemplate:  c.URI.ProxyTemplate,
	}
}

// Resolver builds the policy and a loader sharing it.
func (c *Config) Resolver(logger *slog.Logger) *uri.Resolver {
	p := c.Policy()
	return uri.NewResolver(p, uri.NewLoader(uri.LoaderOptions{
		BaseDir:   c.URI.BaseDir,
		Timeout:   c.URI.Timeout,
		Retries:   c.URI.Retries,
		MaxBytes:  c.URI.MaxBytes,
		RateLimit: c.URI.RateLimit,
		Policy:    p,
		Logger:    logger,
	}))
}
