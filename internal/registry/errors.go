package registry

import (
	"errors"
	"fmt"
)

// ScopeErrorCode categorizes scope lifecycle violations.
type ScopeErrorCode string

const (
	// ErrCodeDuplicateScope indicates a handle was registered twice.
	ErrCodeDuplicateScope ScopeErrorCode = "DUPLICATE_SCOPE"

	// ErrCodeUnknownScope indicates an unregistered handle was disposed.
	ErrCodeUnknownScope ScopeErrorCode = "UNKNOWN_SCOPE"

	// ErrCodeRetiredScope indicates an unregistered handle was registered
	// again.
	ErrCodeRetiredScope ScopeErrorCode = "RETIRED_SCOPE"
)

// ScopeError reports a scope lifecycle violation. These are caller bugs:
// a handle moves from unregistered to registered to unregistered, once.
type ScopeError struct {
	Code    ScopeErrorCode
	Handle  Handle
	Message string
}

// Error implements the error interface.
func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s: %s (handle=%d)", e.Code, e.Message, e.Handle)
}

// IsDuplicateScopeError reports whether err is a duplicate registration.
func IsDuplicateScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se) && se.Code == ErrCodeDuplicateScope
}

// IsUnknownScopeError reports whether err is a disposal of an unknown handle.
func IsUnknownScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se) && se.Code == ErrCodeUnknownScope
}

// IsRetiredScopeError reports whether err is a registration of a handle that
// was already unregistered.
func IsRetiredScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se) && se.Code == ErrCodeRetiredScope
}
