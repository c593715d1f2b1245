// Package storage provides the persisted key-value collaborator backing the
// L2 cache tier and cost-guard snapshots.
//
// # Backends
//
// Two backends are provided:
//
//   - MemoryStore: map-backed, no persistence, byte accounting
//   - SQLiteStore: durable single-file store (modernc.org/sqlite, WAL mode)
//
// Both implement the KeyValue interface and are safe for concurrent use.
//
// # Failure Semantics
//
// Callers must tolerate Set failures: the engine treats the store as
// best-effort and degrades to in-memory-only behavior when writes fail.
// Storage errors are logged by their callers and never propagated to lookup
// callers.
package storage
