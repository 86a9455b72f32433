// Package checksum provides the fixed-size content fingerprint used to
// address every node of a synchronized state tree.
//
// A Checksum is a SHA-256 digest computed with domain separation:
//
//	SHA256("assetsync/checksum/v1" + 0x00 + data)
//
// The version suffix on the domain enables future algorithm migration
// without colliding with fingerprints produced by older producers.
//
// Checksum is a comparable value type. It can be used directly as a map key;
// equality is byte equality.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
)

// Size is the length in bytes of every checksum.
const Size = sha256.Size

// Domain is the hashing domain prefix for all checksums.
const Domain = "assetsync/checksum/v1"

// ErrInvalidLength is returned when raw bytes do not form a checksum.
var ErrInvalidLength = errors.New("checksum: invalid length")

// Checksum is an immutable content fingerprint.
// The zero value is Null, which represents "absent".
type Checksum struct {
	data [Size]byte
}

// Null is the distinguished absent checksum.
var Null Checksum

// IsNull reports whether c is the Null checksum.
func (c Checksum) IsNull() bool {
	return c == Null
}

// Bytes returns a copy of the raw checksum bytes.
func (c Checksum) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, c.data[:])
	return b
}

// String returns the lowercase hex encoding.
func (c Checksum) String() string {
	return hex.EncodeToString(c.data[:])
}

// Short returns the first 12 hex characters, for logs.
func (c Checksum) Short() string {
	return c.String()[:12]
}

// MarshalText implements encoding.TextMarshaler.
func (c Checksum) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Checksum) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// FromBytes builds a checksum from exactly Size raw bytes.
func FromBytes(b []byte) (Checksum, error) {
	var c Checksum
	if len(b) != Size {
		return c, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidLength, len(b), Size)
	}
	copy(c.data[:], b)
	return c, nil
}

// Parse decodes a hex string produced by String.
func Parse(s string) (Checksum, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Null, fmt.Errorf("parse checksum: %w", err)
	}
	return FromBytes(b)
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constants known to be valid.
func MustParse(s string) Checksum {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// newHasher returns a SHA-256 hash already primed with the domain prefix.
// The null byte separator prevents domain/data boundary ambiguity.
func newHasher() hash.Hash {
	h := sha256.New()
	h.Write([]byte(Domain))
	h.Write([]byte{0x00})
	return h
}

func sum(h hash.Hash) Checksum {
	var c Checksum
	h.Sum(c.data[:0])
	return c
}

// Create hashes a canonical byte sequence.
func Create(data []byte) Checksum {
	h := newHasher()
	h.Write(data)
	return sum(h)
}

// CreateFromStream hashes everything readable from r.
func CreateFromStream(r io.Reader) (Checksum, error) {
	h := newHasher()
	if _, err := io.Copy(h, r); err != nil {
		return Null, fmt.Errorf("checksum stream: %w", err)
	}
	return sum(h), nil
}

// CreateForKind hashes a leaf payload together with its kind discriminator.
// Format: kind byte, then the payload bytes.
func CreateForKind(kind uint8, payload []byte) Checksum {
	h := newHasher()
	h.Write([]byte{kind})
	h.Write(payload)
	return sum(h)
}

// Combine is the Merkle combination step: it hashes the kind discriminator
// followed by every child checksum in order.
//
// CRITICAL: order matters. Callers must pass children in the fixed field
// order of the parent node, or logically identical content will produce
// different checksums.
func Combine(kind uint8, children ...Checksum) Checksum {
	h := newHasher()
	h.Write([]byte{kind})
	for i := range children {
		h.Write(children[i].data[:])
	}
	return sum(h)
}

// Set is an unordered collection of checksums.
type Set map[Checksum]struct{}

// NewSet builds a set from the given checksums.
func NewSet(cs ...Checksum) Set {
	s := make(Set, len(cs))
	for _, c := range cs {
		s[c] = struct{}{}
	}
	return s
}

// Add inserts c.
func (s Set) Add(c Checksum) { s[c] = struct{}{} }

// Has reports membership.
func (s Set) Has(c Checksum) bool {
	_, ok := s[c]
	return ok
}

// Remove deletes c.
func (s Set) Remove(c Checksum) { delete(s, c) }

// Slice returns the members in an unspecified order.
func (s Set) Slice() []Checksum {
	out := make([]Checksum, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	return out
}
