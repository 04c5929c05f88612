// Package domain defines the core entities for testctx.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - CodeDocument: A source file snapshot identified by path and module
//   - Symbol: A function, class, method or import found in a document
//   - Chunk: A bounded, independently retrievable slice of a document
//   - VersionRecord: An append-only snapshot of a document's symbols
//   - ChangeRecord: The derived difference between two adjacent versions
//   - ContextBundle: The ranked, size-bounded output of context assembly
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
