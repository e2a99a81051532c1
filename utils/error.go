package utils

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ledger engine.
var (
	ErrBadNumber       = errors.New("bad number")
	ErrOutOfRange      = errors.New("value out of range")
	ErrDuplicateSource = errors.New("source event already projected")
	ErrNotFound        = errors.New("record not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("serialization conflict, retries exhausted")
	ErrUpstream        = errors.New("upstream collaborator failed")
	ErrInternal        = errors.New("internal invariant violation")
	ErrInvalidInput    = errors.New("invalid input")
)

// ErrTenantNotFound narrows ErrNotFound to unknown tenants; errors.Is matches both.
var ErrTenantNotFound = fmt.Errorf("tenant %w", ErrNotFound)

// UpstreamError wraps an error returned by an external collaborator query.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

func NewUpstreamError(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Collaborator: collaborator, Err: err}
}

// InternalError reports an invariant that did not hold after a write.
type InternalError struct {
	Invariant string
	Detail    string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal: %s violated: %s", e.Invariant, e.Detail)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// KindOf maps an error onto its surface category name.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInternal):
		return "Internal"
	case errors.Is(err, ErrOutOfRange):
		return "OutOfRange"
	case errors.Is(err, ErrBadNumber):
		return "BadNumber"
	case errors.Is(err, ErrDuplicateSource):
		return "DuplicateSource"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrUpstream):
		return "Upstream"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	default:
		return "Unknown"
	}
}
