package stages

import (
	"context"
	"errors"
	"net/url"

	"github.com/roach88/capsule/internal/diag"
	"github.com/roach88/capsule/internal/ingest"
	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
	"github.com/roach88/capsule/internal/uri"
)

// Parser turns source text into trees. ingest.Default implements it.
type Parser interface {
	Parse(ct job.ContentType, file string, src []byte) (*tree.Tree, error)
	ParseDeclarations(file string, src []byte) (*tree.Tree, error)
}

// Resolver decides what URIs in output become and loads external content.
// *uri.Resolver implements it.
type Resolver interface {
	Rewrite(ref string, base *url.URL, mime string) (string, bool)
	Load(ctx context.Context, ref *url.URL, mime string) (uri.Content, error)
}

// denyAll is the resolver used when none is configured.
type denyAll struct{}

func (denyAll) Rewrite(string, *url.URL, string) (string, bool) { return "", false }

func (denyAll) Load(_ context.Context, ref *url.URL, _ string) (uri.Content, error) {
	return uri.Content{}, uri.ErrDenied
}

// ReportParseError records err, as returned by a Parser for content of type
// ct, on q.
func ReportParseError(q *diag.Queue, ct job.ContentType, file string, err error) {
	mt := parseMessage(ct)
	span := tree.Span{File: file}
	text := err.Error()
	var pe *ingest.ParseError
	if errors.As(err, &pe) {
		span = tree.Span{File: pe.File, StartLine: pe.Line, EndLine: pe.Line}
		text = pe.Message
		if pe.Unsupported {
			mt = MsgJSUnsupported
		}
	}
	q.Report(mt, span, text)
}

func parseMessage(ct job.ContentType) *diag.MessageType {
	switch ct {
	case job.CSS:
		return MsgCSSParse
	case job.HTML:
		return MsgHTMLParse
	default:
		return MsgJSParse
	}
}
