package stages

import (
	"net/url"

	"github.com/roach88/capsule/internal/cache"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/metrics"
	"github.com/roach88/capsule/internal/schema"
)

// Options are the collaborators of the standard stages. Every field is
// optional.
type Options struct {
	// Namespace scopes the output. Empty derives one from the input origins.
	Namespace string

	// Schema defaults to schema.Default().
	Schema *schema.Schema

	// Resolver decides output URIs and loads external content. Nil denies
	// every URI and every load.
	Resolver Resolver

	// LocalBase resolves relative references of jobs that have no origin.
	LocalBase *url.URL

	// Cache defaults to a stub that never hits.
	Cache cache.Cache

	// Parser defaults to ingest.Default.
	Parser Parser

	// MaxImportDepth bounds @import nesting; zero means DefaultImportDepth.
	MaxImportDepth int

	// URLSchemes are the schemes sanitised markup may link to; empty means
	// uri.DefaultSchemes.
	URLSchemes []string

	Metrics *metrics.Metrics
}

// Standard returns the stages in their fixed order.
func Standard(opts Options) []Stage {
	if opts.Schema == nil {
		opts.Schema = schema.Default()
	}
	if opts.Resolver == nil {
		opts.Resolver = denyAll{}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewStub(cache.NewKeyer(opts.Schema.Digest()))
	}
	if opts.Parser == nil {
		opts.Parser = ingest.Default{}
	}
	if opts.MaxImportDepth <= 0 {
		opts.MaxImportDepth = DefaultImportDepth
	}

	return []Stage{
		fetchCache{cache: opts.Cache, namespace: opts.Namespace, metrics: opts.Metrics},
		extractHTML{parser: opts.Parser},
		resolveExternal{
			resolver:  opts.Resolver,
			parser:    opts.Parser,
			localBase: opts.LocalBase,
			maxDepth:  opts.MaxImportDepth,
		},
		namespace{configured: opts.Namespace},
		rewriteCSS{schema: opts.Schema, policy: opts.Resolver},
		newCompileTemplates(opts.Schema, opts.Resolver, opts.URLSchemes),
		rewriteGlobals{},
		sandboxJS{},
		// store-cache runs before consolidate: the merge erases the
		// per-fragment key sets.
		storeCache{cache: opts.Cache, metrics: opts.Metrics},
		consolidate{},
		checkErrors{},
	}
}
