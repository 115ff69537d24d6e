package js

import (
	"fmt"

	"github.com/roach88/capsule/internal/tree"
)

// consolidatedMarker is stored in the program's Aux of a consolidated tree.
const consolidatedMarker = "consolidated"

// IsConsolidated reports whether t is the output of Consolidate.
func IsConsolidated(t *tree.Tree) bool {
	root := t.Root()
	return root != tree.NoNode && t.Kind(root) == tree.JSProgram && t.Aux(root) == consolidatedMarker
}

// Consolidate merges module trees, in order, into one program:
//
//	___.loadModule({ namespace: 'ns', instantiate: function (___, IMPORTS___) {
//	  'use strict';
//	  try { ... } catch (ex___) { ___.reportError(ex___); }
//	} });
//
// Each module body gets its own try block so an exception escaping one
// module does not stop the rest. The body runs in strict mode, so the this
// alias of a plainly called function is undefined rather than the host
// global. Every tree must be in envelope shape.
func Consolidate(file, namespace string, modules []*tree.Tree) (*tree.Tree, error) {
	out := tree.New(file)
	b := builder{t: out}
	sections := []tree.NodeID{b.stmt(b.str("use strict"))}
	for i, m := range modules {
		_, body, err := Envelope(m)
		if err != nil {
			return nil, fmt.Errorf("module %d (%s): %w", i, m.File(), err)
		}
		var stmts []tree.NodeID
		for _, s := range m.Children(body) {
			stmts = append(stmts, out.Import(m, s))
		}
		report := b.stmt(b.runtime("reportError", b.ident(caughtName)))
		sections = append(sections, b.catchAll(b.block(stmts...), b.block(report)))
	}

	instantiate := b.function(b.params(runtimeName, importsName), b.block(sections...))
	spec := out.AddSynthetic(tree.JSObject, "",
		out.AddSynthetic(tree.JSProp, "namespace", b.str(namespace)),
		out.AddSynthetic(tree.JSProp, "instantiate", instantiate))
	root := out.AddSynthetic(tree.JSProgram, "", b.stmt(b.runtime("loadModule", spec)))
	out.SetAux(root, consolidatedMarker)
	out.SetRoot(root)
	return out, nil
}

// Inert returns a program that only throws message. It stands in for a
// script that could not be loaded.
func Inert(file, message string) *tree.Tree {
	t := tree.New(file)
	b := builder{t: t}
	root := t.AddSynthetic(tree.JSProgram, "", t.AddSynthetic(tree.JSThrow, "", b.str(message)))
	t.SetRoot(root)
	return t
}
