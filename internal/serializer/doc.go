// Package serializer implements the serialization registry: a dispatch
// table from a data kind to the encode/decode functions for its payload.
//
// Contract for every registered codec:
//   - round trip: Decode(Encode(v)) is value-equal to v
//   - determinism: logically equal values encode to identical bytes, so that
//     they hash identically
//
// An unregistered kind passed to Encode, Decode or Checksum fails with
// ErrUnsupportedKind. That is a configuration error, not a runtime condition
// callers are expected to recover from.
//
// Large source text may be stored out of line in a BlobStorage. The choice
// is recorded in the stream as a one-byte tag so decoding dispatches
// correctly, and the text checksum is computed from the logical content so
// it never depends on which representation was chosen.
//
// Reference kinds (metadata and analyzer references) fingerprint the file
// they point at. An unreadable file is not an error: it contributes the Null
// checksum and a warning is logged.
package serializer
