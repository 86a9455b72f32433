// Package ir provides the immutable state model synchronized by assetsync.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps the state model the
// foundational layer with no circular dependencies.
//
// Two families of types live here:
//   - State types (SolutionState, ProjectState, DocumentState) form the
//     producer-side immutable tree. They are never mutated after
//     construction; the With* methods return new states that share every
//     unchanged sub-tree. Pointer identity of a state object is what the
//     identity cache keys on.
//   - Info types (SolutionInfo, ProjectInfo, DocumentInfo) are plain value
//     records produced on the consumer side by reconstruction.
//
// Key design constraints:
//   - NO float types in option values - use int64 for numbers
//   - Version stamps are logical counters, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
