// Package engine is the entry point of the synchronization core.
//
// A producer calls BuildScope with an immutable solution state. The engine
// builds (or reuses) its checksum tree, pins it under a fresh scope handle
// and returns the handle with the root checksum. A consumer then pulls the
// nodes it is missing through ResolveOne/ResolveMany, usually via a
// transport sitting directly on top of those calls, and reconstructs typed
// info with MaterializeSnapshot. DisposeScope ends the exchange.
//
// Global assets (AddGlobalAsset/RemoveGlobalAsset) are resolvable from
// every scope and live until removed.
//
// Error taxonomy:
//   - contract violations (IsContractViolation): duplicate, unknown or
//     retired scope handles, checksum mismatches on idempotent inserts, unsupported
//     kinds. These are caller bugs and abort the operation.
//   - expected misses: a checksum that cannot be resolved is absent from
//     the result, never an error. When the caller's context was cancelled
//     the context error is returned alongside the partial result.
//   - absorbed I/O: unreadable reference files and unavailable text blobs
//     become explicit "missing" values inside the serializer.
//
// Handles come from a logical clock. They are unique for the life of the
// engine and are never reused.
package engine
