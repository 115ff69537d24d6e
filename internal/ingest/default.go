package ingest

import (
	"fmt"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// Default parses every content type with the adapters in this package.
type Default struct{}

// Parse dispatches on the content type.
func (Default) Parse(ct job.ContentType, file string, src []byte) (*tree.Tree, error) {
	switch ct {
	case job.CSS:
		return ParseCSS(file, src)
	case job.JS:
		return ParseJS(file, src)
	case job.HTML:
		return ParseHTML(file, src)
	default:
		return nil, &ParseError{File: file, Message: fmt.Sprintf("no parser for content type %s", ct)}
	}
}

// ParseDeclarations parses a style attribute body.
func (Default) ParseDeclarations(file string, src []byte) (*tree.Tree, error) {
	return ParseCSSDeclarations(file, src)
}
