// Package render serializes artifact trees back to source text.
//
// Output is deterministic: the same tree always renders to the same bytes,
// so rendered artifacts can be compared against golden files. String
// literals are escaped so that rendered CSS and JS can be embedded in an
// HTML document without closing the enclosing element.
package render
