// Package store provides SQLite-backed storage for synchronized assets on
// the consumer side.
//
// The store holds:
//   - Assets: wire bytes of checksum nodes, keyed by checksum
//   - Sync sessions: one record per completed pull of a solution root
//
// # Invariants
//
// Content addressing
//   - Inserts use ON CONFLICT DO NOTHING; writing the same checksum twice
//     is a no-op because equal checksums imply equal bytes
//
// Subtree closure
//   - Callers write children before parents, so the presence of a
//     collection implies the presence of everything it references
//
// Logical time
//   - Sessions are ordered by seq INTEGER, never by timestamps
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// Store implements materialize.Fetcher, so a local snapshot is
// reconstructed straight from disk.
package store
