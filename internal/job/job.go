// Package job defines the unit of pipeline work and the ordered pool that
// every stage consumes.
//
// A Job pairs a parsed tree with its content type and provenance. Jobs are
// immutable once created: a rewrite produces a new Job (WithTree) and the
// pool's envelope is replaced, never mutated into a different content type.
package job

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/roach88/capsule/internal/tree"
)

// ContentType is the language of a job's tree.
type ContentType uint8

const (
	ContentUnknown ContentType = iota
	CSS
	JS
	HTML
)

func (c ContentType) String() string {
	switch c {
	case CSS:
		return "css"
	case JS:
		return "js"
	case HTML:
		return "html"
	default:
		return fmt.Sprintf("content(%d)", uint8(c))
	}
}

// MIME returns the media type used when resolving external resources.
func (c ContentType) MIME() string {
	switch c {
	case CSS:
		return "text/css"
	case JS:
		return "text/javascript"
	case HTML:
		return "text/html"
	default:
		return "application/octet-stream"
	}
}

// ParseContentType accepts a type name ("css"), a media type ("text/css")
// or a file name / extension ("style.css", ".css").
func ParseContentType(s string) (ContentType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	switch v {
	case "css", "text/css":
		return CSS, nil
	case "js", "javascript", "text/javascript", "application/javascript", "application/x-javascript":
		return JS, nil
	case "html", "text/html":
		return HTML, nil
	}
	switch path.Ext(v) {
	case ".css":
		return CSS, nil
	case ".js", ".mjs":
		return JS, nil
	case ".html", ".htm":
		return HTML, nil
	}
	return ContentUnknown, fmt.Errorf("unknown content type %q", s)
}

// InsertionPoint names where a job's compiled output is spliced back into
// the job it was extracted from. Attribute is empty for element content
// (a script or style body) and names the attribute otherwise ("style",
// "onclick").
type InsertionPoint struct {
	Placeholder string
	Attribute   string
}

func (p InsertionPoint) String() string {
	if p.Attribute == "" {
		return p.Placeholder
	}
	return p.Placeholder + "@" + p.Attribute
}

// Job is one parsed artifact flowing through the pipeline.
type Job struct {
	contentType ContentType
	tree        *tree.Tree
	origin      *url.URL
	target      *InsertionPoint
}

// New creates a job. origin and target may be nil.
func New(contentType ContentType, t *tree.Tree, origin *url.URL, target *InsertionPoint) *Job {
	return &Job{contentType: contentType, tree: t, origin: origin, target: target}
}

// ContentType returns the job's language.
func (j *Job) ContentType() ContentType { return j.contentType }

// Tree returns the job's tree.
func (j *Job) Tree() *tree.Tree { return j.tree }

// Origin returns the URI the job was loaded from, or nil.
func (j *Job) Origin() *url.URL { return j.origin }

// Target returns the splice target, or nil for top-level jobs.
func (j *Job) Target() *InsertionPoint { return j.target }

// WithTree returns a job with the same identity and a replacement tree.
func (j *Job) WithTree(t *tree.Tree) *Job {
	out := *j
	out.tree = t
	return &out
}

// WithTarget returns a job with the same tree and a new splice target.
func (j *Job) WithTarget(target *InsertionPoint) *Job {
	out := *j
	out.target = target
	return &out
}

// Clone deep-copies the job, including its tree.
func (j *Job) Clone() *Job {
	out := *j
	if j.tree != nil {
		out.tree = j.tree.Clone()
	}
	if j.origin != nil {
		u := *j.origin
		out.origin = &u
	}
	if j.target != nil {
		tp := *j.target
		out.target = &tp
	}
	return &out
}

func (j *Job) String() string {
	var b strings.Builder
	b.WriteString(j.contentType.String())
	if j.origin != nil {
		b.WriteString(" ")
		b.WriteString(j.origin.String())
	}
	if j.target != nil {
		b.WriteString(" -> ")
		b.WriteString(j.target.String())
	}
	return b.String()
}
