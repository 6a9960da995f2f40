// Package document defines the DocumentAssembler external-collaborator
// boundary (spec.md §4.10/§6) and a stub used by tests and local runs
// without a real Word renderer wired in.
package document

import "context"

// Options carries the assembly-time toggles named in spec.md §4.10.
type Options struct {
	UseChartEnhancement    bool
	UseContentOptimization bool
}

// Result is the assembler's output.
type Result struct {
	Bytes        []byte
	FriendlyName string
}

// Assembler is the external collaborator the pipeline invokes in Phase 6.
// Implementations are expected to perform text-run substitution, table and
// chart insertion, and the optional content-optimization rewrite pass,
// preserving original run-level formatting on every exit path (spec.md
// §4.10). The core never prescribes Word-file internals.
type Assembler interface {
	Assemble(ctx context.Context, templateRef string, renderMap map[string]any, opts Options) (Result, error)
}
