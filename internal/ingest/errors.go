package ingest

import (
	"errors"
	"fmt"
)

// ParseError reports source text that could not be turned into a tree.
// Unsupported is set when the text is well-formed but uses syntax the
// sandbox does not accept.
type ParseError struct {
	File        string
	Line        int
	Column      int
	Message     string
	Unsupported bool
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsUnsupported checks if an error is a ParseError for unsupported syntax.
func IsUnsupported(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) && pe.Unsupported
}
