// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database connection:
//
//   - VersionStore: Append-only version history
//   - ChunkStore: Chunker output per document version
//   - VectorIndex: Persisted chunk embeddings with in-memory search
//   - SchedulerStore: Background task state and history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.testctx/data/testctx.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Version commits read the latest version and insert the
// next one inside a single immediate transaction.
package sqlite
