// Package diag is the diagnostics channel shared by every pipeline stage.
//
// Untrusted input never produces a Go error. A bad selector, a reserved
// identifier or an unreachable stylesheet becomes a leveled Message appended
// to the Queue, and the compilation as a whole is accepted only when no
// message at or above LevelError was recorded.
//
// Levels are ordered:
//
//	Log < Lint < Warning < Error < Fatal
//
// Message types are declared as package-level vars next to the code that
// emits them (css, js, stages) so every condition has one stable code.
package diag
