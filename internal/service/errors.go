// Package service implements the table reservation engine: the overlap
// checker, the reservation allocator, table management and the
// reconciliation scheduler that promotes tables ahead of a booking.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/table-reservation/internal/repository"
)

// Error kinds. Every domain failure returned by this package wraps exactly
// one of them, so callers branch with errors.Is. Anything else is an
// infrastructure failure.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// DomainError is a recoverable failure with a message meant for the caller.
type DomainError struct {
	Kind    error
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Unwrap() error { return e.Kind }

// ConflictError reports an overlap between the candidate interval and an
// active reservation on one of the requested tables.
type ConflictError struct {
	TableID       string
	TableCode     string
	ReservationID string
	Message       string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }

func notFoundf(format string, args ...any) error {
	return &DomainError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return &DomainError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &DomainError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func forbiddenf(format string, args ...any) error {
	return &DomainError{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

// ErrorKind returns a stable label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "infrastructure"
	}
}

// IsDomain reports whether err is one of the four recoverable kinds.
func IsDomain(err error) bool {
	k := ErrorKind(err)
	return k != "ok" && k != "infrastructure"
}

// fromStore converts repository sentinels that escaped a transaction into
// domain errors. what names the entity for ErrNotFound.
func fromStore(err error, what string) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	var ce *ConflictError
	if errors.As(err, &de) || errors.As(err, &ce) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrLockConflict):
		return conflictf("%s was modified concurrently, retry the request", what)
	case errors.Is(err, repository.ErrNotFound):
		return notFoundf("%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return conflictf("%s already exists", what)
	}
	return err
}
