package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/config"
	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/metrics"
	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/schema"
	"github.com/roach88/capsule/internal/stages"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output     string // output path prefix; .js and .css are appended
	Namespace  string
	BaseURL    string
	CacheMode  string
	CachePath  string
	FailFast   bool
	MetricsOut string
}

// CompileResult is the JSON payload of a successful compilation.
type CompileResult struct {
	Namespace string   `json:"namespace"`
	Signature string   `json:"signature"`
	JS        string   `json:"js"`
	CSS       string   `json:"css,omitempty"`
	Files     []string `json:"files,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <file>...",
		Short: "Compile HTML, CSS and JavaScript into a sandboxed module",
		Long: `Compile a bundle of .html, .css and .js files into one sandboxed
JavaScript module and one namespaced stylesheet.

Problems found in the inputs are reported as diagnostics. With the default
collect-all mode every stage runs and the offending fragments are dropped;
--fail-fast stops after the first stage that reports an error.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output path prefix (writes <prefix>.js and <prefix>.css)")
	cmd.Flags().StringVarP(&opts.Namespace, "namespace", "n", "", "namespace for scoping (derived from inputs when empty)")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "absolute URL the inputs are served from")
	cmd.Flags().StringVar(&opts.CacheMode, "cache", "", "cache mode (none|memory|sqlite)")
	cmd.Flags().StringVar(&opts.CachePath, "cache-path", "", "SQLite cache file")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop after the first stage that reports an error")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics to this file")

	return cmd
}

func runCompile(opts *CompileOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := compileConfig(opts, cmd)
	if err != nil {
		return outputCommandError(formatter, ErrCodeConfig, err)
	}

	var queueLogger *slog.Logger
	if opts.Verbose {
		queueLogger = slog.Default()
	}
	q := diag.NewQueue(queueLogger)

	origin := cfg.Origin()
	pool, origins, err := readInputs(files, origin, q)
	if err != nil {
		return outputCommandError(formatter, ErrCodeReadFailed, err)
	}
	formatter.VerboseLog("Read %d input file(s)", len(files))

	sch := schema.Default()
	if cfg.Schema != "" {
		if sch, err = schema.Load(cfg.Schema); err != nil {
			return outputCommandError(formatter, ErrCodeSchema, err)
		}
	}

	localBase, baseDir, err := localRoot(files[0])
	if err != nil {
		return outputCommandError(formatter, ErrCodeReadFailed, err)
	}
	if cfg.URI.BaseDir == "" {
		cfg.URI.BaseDir = baseDir
	}
	resolver := cfg.Resolver(slog.Default())

	ns := stages.ResolveNamespace(cfg.Namespace, origins)
	keyer := cache.NewKeyer(Version, sch.Digest(), resolver.Policy.Fingerprint(), ns)
	c, closeCache, err := openCache(cfg.Cache, keyer)
	if err != nil {
		return outputCommandError(formatter, ErrCodeCache, err)
	}
	defer closeCache()
	formatter.VerboseLog("Namespace %s, cache %s", ns, cfg.Cache.Mode)

	m := metrics.New()
	mode := stages.ModeCollectAll
	if cfg.FailFast {
		mode = stages.ModeFailFast
	}
	pipeline := stages.New(stages.Standard(stages.Options{
		Namespace:      ns,
		Schema:         sch,
		Resolver:       resolver,
		LocalBase:      localBase,
		Cache:          c,
		MaxImportDepth: cfg.MaxImportDepth,
		URLSchemes:     cfg.URI.AllowedSchemes,
		Metrics:        m,
	}), stages.WithMode(mode), stages.WithLogger(slog.Default()), stages.WithMetrics(m))

	jobs := stages.NewJobs(pool, q)
	ok, runErr := pipeline.Run(cmd.Context(), jobs)

	if opts.MetricsOut != "" {
		if err := m.WriteToTextfile(opts.MetricsOut); err != nil {
			slog.Warn("failed to write metrics", "path", opts.MetricsOut, "error", err)
		}
	}

	msgs := q.Messages()
	formatter.Diagnostics(msgs)

	if runErr != nil {
		return outputCompileFailure(formatter, ErrCodePipeline, runErr.Error(), msgs, ExitCommandError)
	}
	if !ok {
		n := q.Count(diag.LevelError) + q.Count(diag.LevelFatal)
		return outputCompileFailure(formatter, ErrCodeRejected,
			fmt.Sprintf("compilation failed with %d error(s)", n), msgs, ExitFailure)
	}

	result := collectOutput(jobs)
	if opts.Output != "" {
		written, err := writeOutputs(result, opts.Output)
		if err != nil {
			return outputCommandError(formatter, ErrCodeWriteFailed, err)
		}
		result.Files = written
	}
	return outputCompileSuccess(formatter, result, msgs)
}

// compileConfig loads the configuration and applies flags set on the
// command line.
func compileConfig(opts *CompileOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("namespace") {
		cfg.Namespace = opts.Namespace
	}
	if flags.Changed("base-url") {
		cfg.URI.BaseURL = opts.BaseURL
	}
	if flags.Changed("cache") {
		cfg.Cache.Mode = opts.CacheMode
	}
	if flags.Changed("cache-path") {
		cfg.Cache.Path = opts.CachePath
	}
	if flags.Changed("fail-fast") {
		cfg.FailFast = opts.FailFast
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !opts.Verbose {
		slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg.Level()))
	}
	return cfg, nil
}

// readInputs parses every file into a job. Parse failures become
// diagnostics; unreadable files and unknown types are command errors.
// The returned origins identify the bundle for namespace derivation.
func readInputs(files []string, base *url.URL, q *diag.Queue) (*job.Pool, []*url.URL, error) {
	pool := job.NewPool()
	origins := make([]*url.URL, 0, len(files))
	for _, path := range files {
		ct, err := job.ParseContentType(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}

		name := filepath.ToSlash(filepath.Base(path))
		var origin *url.URL
		if base != nil {
			origin = base.ResolveReference(&url.URL{Path: name})
			origins = append(origins, origin)
		} else {
			abs, err := filepath.Abs(path)
			if err != nil {
				return nil, nil, err
			}
			origins = append(origins, fileURL(abs))
		}

		t, err := ingest.Default{}.Parse(ct, name, src)
		if err != nil {
			stages.ReportParseError(q, ct, name, err)
			continue
		}
		pool.AddJob(job.New(ct, t, origin, nil))
	}
	return pool, origins, nil
}

// localRoot returns the directory of the first input as a file: URL and
// as a path. Relative references of origin-less inputs load from there.
func localRoot(first string) (*url.URL, string, error) {
	abs, err := filepath.Abs(filepath.Dir(first))
	if err != nil {
		return nil, "", err
	}
	u := fileURL(abs)
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, abs, nil
}

func fileURL(abs string) *url.URL {
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
}

// openCache builds the configured cache. The returned func releases it.
func openCache(cc config.CacheConfig, keyer *cache.Keyer) (cache.Cache, func(), error) {
	switch cc.Mode {
	case config.CacheMemory:
		return cache.NewMemory(keyer), func() {}, nil
	case config.CacheSQLite:
		if err := os.MkdirAll(filepath.Dir(cc.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		s, err := cache.OpenSQLite(cc.Path, keyer)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				slog.Warn("failed to close cache", "path", cc.Path, "error", err)
			}
		}, nil
	default:
		return cache.NewStub(keyer), func() {}, nil
	}
}

// collectOutput renders the consolidated module and the stylesheets left
// in the pool.
func collectOutput(jobs *stages.Jobs) *CompileResult {
	result := &CompileResult{
		Namespace: jobs.Meta.Namespace,
		Signature: jobs.Meta.Signature,
	}
	var scripts, sheets []string
	for _, env := range jobs.Pool.All() {
		switch env.ContentType() {
		case job.JS:
			scripts = append(scripts, render.Script(env.Job.Tree()))
		case job.CSS:
			if css := render.Stylesheet(env.Job.Tree()); css != "" {
				sheets = append(sheets, css)
			}
		}
	}
	result.JS = strings.Join(scripts, "\n")
	result.CSS = strings.Join(sheets, "\n")
	return result
}

// writeOutputs writes prefix.js and, when there is CSS, prefix.css.
func writeOutputs(result *CompileResult, prefix string) ([]string, error) {
	outputs := []struct{ path, body string }{
		{prefix + ".js", result.JS},
		{prefix + ".css", result.CSS},
	}
	var written []string
	for _, o := range outputs {
		if o.body == "" {
			continue
		}
		if err := os.WriteFile(o.path, []byte(o.body), 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", o.path, err)
		}
		written = append(written, o.path)
	}
	return written, nil
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompileResult, msgs []diag.Message) error {
	if formatter.Format == "json" {
		return jsonResponse(formatter, CLIResponse{
			Status:      "ok",
			Data:        result,
			Diagnostics: NewDiagnostics(msgs),
		})
	}

	if len(result.Files) == 0 {
		fmt.Fprint(formatter.Writer, result.JS)
		if result.CSS != "" {
			fmt.Fprintf(formatter.Writer, "\n/* %s.css */\n%s", result.Namespace, result.CSS)
		}
		return nil
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled namespace %s (%s)\n", result.Namespace, result.Signature)
	for _, f := range result.Files {
		fmt.Fprintf(formatter.Writer, "Wrote %s\n", f)
	}
	return nil
}

func outputCompileFailure(formatter *OutputFormatter, code, message string, msgs []diag.Message, exit int) error {
	if formatter.Format == "json" {
		if err := jsonResponse(formatter, CLIResponse{
			Status:      "error",
			Error:       &CLIError{Code: code, Message: message},
			Diagnostics: NewDiagnostics(msgs),
		}); err != nil {
			return err
		}
		return NewExitError(exit, message)
	}

	fmt.Fprintf(formatter.Writer, "✗ %s\n", message)
	return NewExitError(exit, message)
}

// outputCommandError reports a failure to set up or finish the command.
func outputCommandError(formatter *OutputFormatter, code string, err error) error {
	message := err.Error()
	var ve *config.ValidationError
	if errors.As(err, &ve) {
		message = strings.ReplaceAll(message, "\n", "; ")
	}
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, code, err)
}
