package uri

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

var (
	// ErrDenied marks references the loader refuses to fetch.
	ErrDenied = errors.New("resource denied")

	// ErrUnavailable marks references that could not be fetched.
	ErrUnavailable = errors.New("resource unavailable")
)

// Content is a loaded external resource.
type Content struct {
	URL  *url.URL
	MIME string
	Data []byte
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// BaseDir confines file: references. Empty denies file: entirely.
	BaseDir string

	Timeout  time.Duration
	Retries  int
	MaxBytes int64

	// RateLimit caps http(s) requests per second. Zero means unlimited.
	RateLimit float64

	// Policy gates http(s) references. Nil allows every http(s) URI.
	Policy *Policy

	Logger *slog.Logger
}

// Loader fetches external scripts and stylesheets.
type Loader struct {
	baseDir  string
	maxBytes int64
	policy   *Policy
	client   *retryablehttp.Client
	limiter  *rate.Limiter
}

// NewLoader creates a loader. A zero timeout means 10s and a zero size
// limit means 1 MiB.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 1 << 20
	}

	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = retryablehttp.LeveledLogger(opts.Logger)
	}

	baseDir := opts.BaseDir
	if baseDir != "" {
		if abs, err := filepath.Abs(baseDir); err == nil {
			baseDir = abs
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}

	return &Loader{
		baseDir:  baseDir,
		maxBytes: opts.MaxBytes,
		policy:   opts.Policy,
		client:   client,
		limiter:  limiter,
	}
}

// Load fetches ref. The error wraps ErrDenied or ErrUnavailable.
func (l *Loader) Load(ctx context.Context, ref *url.URL, mime string) (Content, error) {
	switch strings.ToLower(ref.Scheme) {
	case "file":
		return l.loadFile(ref, mime)
	case "http", "https":
		return l.loadHTTP(ctx, ref, mime)
	default:
		return Content{}, fmt.Errorf("load %s: scheme %q: %w", ref, ref.Scheme, ErrDenied)
	}
}

func (l *Loader) loadFile(ref *url.URL, mime string) (Content, error) {
	if l.baseDir == "" {
		return Content{}, fmt.Errorf("load %s: file access disabled: %w", ref, ErrDenied)
	}
	path := filepath.Clean(filepath.FromSlash(ref.Path))
	rel, err := filepath.Rel(l.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Content{}, fmt.Errorf("load %s: outside %s: %w", ref, l.baseDir, ErrDenied)
	}

	f, err := os.Open(path)
	if err != nil {
		return Content{}, fmt.Errorf("load %s: %v: %w", ref, err, ErrUnavailable)
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return Content{}, fmt.Errorf("load %s: %w", ref, err)
	}
	if err := checkText(data); err != nil {
		return Content{}, fmt.Errorf("load %s: %w", ref, err)
	}
	return Content{URL: ref, MIME: mime, Data: data}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, ref *url.URL, mime string) (Content, error) {
	if l.policy != nil {
		if _, ok := l.policy.Rewrite(ref.String(), nil, mime); !ok {
			return Content{}, fmt.Errorf("load %s: %w", ref, ErrDenied)
		}
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return Content{}, fmt.Errorf("load %s: %v: %w", ref, err, ErrUnavailable)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, ref.String(), nil)
	if err != nil {
		return Content{}, fmt.Errorf("load %s: %v: %w", ref, err, ErrUnavailable)
	}
	req.Header.Set("Accept", mime)

	resp, err := l.client.Do(req)
	if err != nil {
		return Content{}, fmt.Errorf("load %s: %v: %w", ref, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Content{}, fmt.Errorf("load %s: status %d: %w", ref, resp.StatusCode, ErrUnavailable)
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return Content{}, fmt.Errorf("load %s: %w", ref, err)
	}
	if err := checkText(data); err != nil {
		return Content{}, fmt.Errorf("load %s: %w", ref, err)
	}
	got := resp.Header.Get("Content-Type")
	if got == "" {
		got = mime
	}
	return Content{URL: ref, MIME: got, Data: data}, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read: %v: %w", err, ErrUnavailable)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("larger than %d bytes: %w", l.maxBytes, ErrUnavailable)
	}
	return data, nil
}

// checkText rejects payloads that sniff as binary. Scripts and
// stylesheets are always text, whatever the server claims.
func checkText(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return nil
		}
	}
	return fmt.Errorf("content sniffed as %s: %w", detected.String(), ErrUnavailable)
}

// Resolver bundles the policy and the loader for pipeline stages.
type Resolver struct {
	*Policy
	*Loader
}

// NewResolver pairs a policy with a loader.
func NewResolver(p *Policy, l *Loader) *Resolver {
	return &Resolver{Policy: p, Loader: l}
}
