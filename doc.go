// Package dscope statically analyzes a corpus of Denizen script files. It
// extracts facts from each file line by line, folds them into
// cross-reference indices and runs diagnostic rules over the result.
//
// # Pipeline
//
// One analysis pass has three phases:
//
//  1. Extract: each discovered file is read and scanned by the pattern
//     matchers in internal/extract. Unchanged files are reused from the
//     SQLite store when one is configured.
//
//  2. Fold: the per-file fact sets are added to an xref.Builder in
//     traversal order (sorted path, then line) and frozen into an index.
//
//  3. Diagnose: the built-in rules, then any Risor rule scripts, run over
//     the frozen index and produce an ordered list of warnings.
//
// # Usage
//
//	e, err := dscope.New(".dscope/index.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	a, err := e.Analyze(ctx, "path/to/scripts")
//	err = a.Encode(os.Stdout, dscope.FormatJSON)
//
//	q, err := e.Query()
//	callers, err := q.Callers("give_starting_skills")
//
// Passing an empty database path runs the pass in memory only; [Engine.Query]
// then returns [ErrNoStore].
//
// # Determinism
//
// Two passes over the same corpus produce byte-identical output. This holds
// with [WithParallel], which only changes how files are extracted, and when
// facts are reused from the store.
package dscope
