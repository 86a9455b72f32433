package engine

import (
	"errors"

	"github.com/roach88/assetsync/internal/registry"
	"github.com/roach88/assetsync/internal/serializer"
	"github.com/roach88/assetsync/internal/treecache"
)

// IsContractViolation reports whether err is a programmer error: a scope
// lifecycle violation, a checksum mismatch on an idempotent insert, or an
// unsupported or mistyped serialization kind. Uses errors.As/Is so wrapped
// errors classify correctly.
func IsContractViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *registry.ScopeError
	return errors.As(err, &se) ||
		errors.Is(err, treecache.ErrChecksumMismatch) ||
		errors.Is(err, serializer.ErrUnsupportedKind) ||
		errors.Is(err, serializer.ErrTypeMismatch)
}
