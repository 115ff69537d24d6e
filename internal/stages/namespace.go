package stages

import (
	"context"
	"encoding/hex"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// namespacePattern accepts names usable both as a CSS class and inside a
// JS string literal.
var namespacePattern = regexp.MustCompile(`^[_a-zA-Z][_a-zA-Z0-9-]*$`)

// ResolveNamespace returns configured when set, else a name derived from
// the input origins so the same inputs always get the same namespace.
func ResolveNamespace(configured string, origins []*url.URL) string {
	if configured != "" {
		return configured
	}
	names := make([]string, 0, len(origins))
	for _, o := range origins {
		if o != nil {
			names = append(names, o.String())
		}
	}
	slices.Sort(names)
	names = slices.Compact(names)
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("capsule:"+strings.Join(names, "\n")))
	return "c" + strings.ReplaceAll(id.String(), "-", "")[:8]
}

// ValidNamespace reports whether ns can scope CSS and name a module.
func ValidNamespace(ns string) bool { return namespacePattern.MatchString(ns) }

// namespace settles Meta: the namespace, falling back to a derived one
// when the configured name is invalid, and the signature over the pool's
// content. It also rejects bundles with more than one document. In the
// standard order fetch-cache has already settled Meta from the inputs, so
// this stage only settles a hand-picked stage list.
type namespace struct {
	configured string
}

func (namespace) Name() string { return "namespace" }

func (s namespace) Apply(_ context.Context, jobs *Jobs) bool {
	settleMeta(jobs, s.configured)
	return jobs.HasNoErrors()
}

// settleMeta fills Meta from the pool as it stands, once per run. Called on
// the input pool, before cache hits or extraction add jobs, it gives a warm
// run the namespace and signature of the cold one.
func settleMeta(jobs *Jobs, configured string) {
	if jobs.settled {
		return
	}
	jobs.settled = true

	var origins []*url.URL
	for _, env := range jobs.Pool.All() {
		origins = append(origins, env.Job.Origin())
	}

	ns := ResolveNamespace(configured, origins)
	if !ValidNamespace(ns) {
		jobs.Messages.Report(MsgBadNamespace, tree.Unknown, ns)
		ns = ResolveNamespace("", origins)
	}
	jobs.Meta.Namespace = ns
	jobs.Meta.Signature = signature(ns, jobs.Pool)

	if docs := jobs.Pool.ByType(job.HTML); len(docs) > 1 {
		span := tree.Span{File: docs[1].Job.Tree().File()}
		jobs.Messages.Report(MsgMultipleHTML, span, len(docs))
	}
}

// signature hashes the namespace and the canonical form of every job in
// pool order.
func signature(ns string, pool *job.Pool) string {
	h := blake3.New()
	_, _ = h.Write([]byte(ns))
	for _, j := range pool.Jobs() {
		_, _ = h.Write([]byte{0, byte(j.ContentType())})
		if t := j.Tree(); t.Root() != tree.NoNode {
			_, _ = h.Write(t.Canonical(t.Root()))
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
