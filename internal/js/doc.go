// Package js rewrites scripts so that every interaction with objects goes
// through runtime capability checks.
//
// A script passes through three steps, each run by its own pipeline stage:
//
//  1. RewriteGlobals moves top-level declarations and free references into
//     the module namespace object IMPORTS___ and wraps the program in the
//     module envelope (Program > Module > Block).
//  2. Sandbox applies the rule table in post-order over the module body.
//  3. Consolidate merges every module into one initializer.
//
// Names ending in ___ belong to the runtime and may only appear in
// synthetic nodes. The runtime contract the output relies on:
//
//	o.v___(k)             read property k
//	o.w___(k, v)          set property k, returns v
//	o.m___(k, args)       call method k with the argument array
//	o.c___(k)             delete property k
//	o.k_v___              true when k may be read directly
//	___.construct(F, a)   construct F with the argument array
//	___.canEnum(o, k)     whether k is visible to for-in and in
//	___.loadModule(m)     instantiate a consolidated module
//	___.reportError(e)    report an exception escaping a module
package js
