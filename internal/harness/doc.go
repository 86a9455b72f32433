// Package harness runs sync scenarios against a real engine and replica.
//
// A scenario names a set of solution manifests (snapshots), drives the
// producer engine and a replica through a sequence of steps, and then
// evaluates assertions on the recorded trace and the final replica.
//
// # Scenario Format
//
//	name: edit_one_document
//	description: "An edit transfers only the changed subtree"
//	session_tokens: [session-1, session-2]
//	snapshots:
//	  base: manifests/base.yaml
//	  edited: manifests/edited.yaml
//	steps:
//	  - sync: base
//	  - sync: edited
//	    expect: { skipped: 3 }
//	  - dispose: base
//	assertions:
//	  - type: different_root
//	    snapshots: [base, edited]
//	  - type: fewer_transfers
//	    steps: [0, 1]
//	  - type: replica_contains
//	    snapshot: edited
//	    projects: 2
//	    documents: 2
//
// Snapshot paths are relative to the scenario file.
//
// # Step Types
//
//   - build: build the snapshot's tree in the producer engine
//   - sync: build if needed, then pull the tree into the replica
//   - dispose: release the snapshot's scope in the producer
//
// # Assertion Types
//
//   - same_root / different_root: compare the roots of two snapshots
//   - fewer_transfers: the second sync step requested fewer checksums than the first
//   - replica_contains: the replica reconstructs the snapshot with the given counts
//   - session_count: the replica recorded exactly N sessions
//
// # Deterministic Testing
//
// Each run uses a fresh in-memory SQLite replica, a fresh engine and the
// scenario's fixed session tokens, so traces are reproducible and can be
// compared against golden files with RunWithGolden.
package harness
