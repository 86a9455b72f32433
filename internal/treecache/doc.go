// Package treecache maps immutable state objects, by pointer identity, to
// the checksum nodes already built for them.
//
// The table holds weak pointers: an entry lives exactly as long as the
// state object it describes, and is evicted by a runtime cleanup once that
// object is collected. Pinning is therefore a matter of holding the state
// (and the root Entry) strongly, which is what a registry scope does.
//
// Each Entry stores at most one node per kind. The first three kinds live in
// inline slots; further kinds spill into a map. Adding a node for a kind that
// already has one is a no-op when the checksums agree and fails with
// ErrChecksumMismatch otherwise: equal identity must always produce an equal
// checksum.
//
// Entries form a tree through their ChildScope, which links a composite's
// entry to the entries of the objects it is built from. Find and FindMany
// walk that tree depth first.
package treecache
