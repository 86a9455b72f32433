// Package replica keeps a consumer-side copy of producer snapshots.
//
// A Syncer walks a producer tree from its root, one level at a time. At
// each level it asks the local store which checksums it already has; those
// subtrees are skipped, because the store only ever holds a collection
// once everything beneath it is stored. The rest are requested from the
// Transport in batches, verified, and queued. When the walk finishes the
// queued nodes are written in one transaction, deepest level first.
//
// After a sync the snapshot can be reconstructed from the local store alone.
package replica
