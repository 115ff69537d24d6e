// Package ingest turns source text into artifact trees.
//
// HTML is parsed with goquery over golang.org/x/net/html, stylesheets with
// douceur for structure and the gorilla/css scanner for selectors and
// values, and scripts with the goja parser. Every parser returns a
// *ParseError for input it cannot represent; callers report it as a
// diagnostic and drop the artifact.
package ingest
