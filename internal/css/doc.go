// Package css rewrites stylesheets so they cannot escape their container.
//
// Rewrite runs six steps in a fixed order over one CSSStylesheet or
// CSSDeclGroup tree:
//
//  1. QuoteLooseWords merges runs of bare words (font family names) into
//     one quoted string.
//  2. CoerceUnits gives unit-less non-zero lengths a px unit.
//  3. RemoveUnsafe flags and deletes unsafe constructs.
//  4. Namespace prefixes class and id literals and scopes every selector
//     under the namespace class.
//  5. RemoveUnsafe again, over the selectors namespacing produced.
//  6. TranslateURIs passes every URI through the policy.
//
// Safety violations are reported as LevelError diagnostics and the
// offending declaration, selector or at-rule is deleted; the rest of the
// stylesheet survives. RemoveUnsafe is idempotent: a second run over its own
// output deletes nothing and reports nothing.
package css
