// Package stages runs a bundle of CSS, JS and HTML jobs through the ordered
// compilation pipeline.
//
// A pipeline run owns its job pool: stages rewrite job trees in place,
// replace envelopes with their derivatives and report problems with the
// untrusted input to the shared diagnostics queue. Go errors are reserved
// for the pipeline itself (a panicking stage, a cancelled context).
//
// Standard returns the fixed stage order:
//
//	fetch-cache        splice in cached derivatives for unchanged inputs
//	extract-html       pull scripts, styles and handler attributes out of markup
//	resolve-external   load <script src>, <link href> and CSS @import targets
//	namespace          settle the namespace and module signature
//	rewrite-css        make every stylesheet safe and scope it to the namespace
//	compile-templates  turn the document into a JS job that emits its markup
//	rewrite-globals    move top-level names onto IMPORTS___
//	sandbox-js         apply the capability rules
//	store-cache        remember the derivatives of each fresh input
//	consolidate        merge every module into one initializer
//	check-errors       reject markup that was never compiled
package stages
