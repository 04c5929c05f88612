// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - LanguageExtractor: Parses source text into symbols for one or more languages
//   - ExtractorRegistry: Selects a LanguageExtractor by language tag
//   - PostProcessor: Turns a version snapshot into chunks (chunking, annotation)
//   - VersionStore: Append-only version history, the source of truth
//   - ChunkStore: Chunker output per version
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex: Chunk embedding storage and cosine search. Without it,
//     context assembly ranks by keyword overlap.
//   - EmbeddingService: Generates vector embeddings. Without it, VectorIndex is
//     never written and queries use keyword ranking.
//   - SchedulerStore: Persists background task state.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, extractor, or post-processor package
package driven
