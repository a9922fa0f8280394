package streamserver

import (
	"errors"
	"fmt"

	"github.com/harborctl/harborctl/internal/coordinator"
	"github.com/harborctl/harborctl/internal/store"
)

// Error kinds attached to command.failed envelopes so
// clients can distinguish retryable conditions from permanent ones.
const (
	kindMalformed     = "malformed"
	kindUnauthenticated = "unauthenticated"
	kindNotFound      = "not-found"
	kindConflict      = "conflict"
	kindInvalid       = "invalid"
	kindTransient     = "transient"
)

// errNotFound is a generic not-found error for entities the command
// handlers name explicitly (e.g. "session not found").
type errNotFound struct{ what string }

func (e errNotFound) Error() string { return e.what + " not found" }

func notFound(what string) error { return errNotFound{what: what} }

// classifyErr maps an error returned by the store/coordinator layer to one
// of the command.failed envelope's error kinds.
func classifyErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrNotFound):
		return kindNotFound
	case errors.Is(err, store.ErrConflict):
		return kindConflict
	case errors.Is(err, store.ErrInvalidTransition):
		return kindInvalid
	case errors.As(err, new(*coordinator.ErrControllerConflict)):
		return kindConflict
	case errors.As(err, new(*coordinator.ErrConflict)):
		return kindConflict
	case errors.As(err, new(errNotFound)):
		return kindNotFound
	case errors.Is(err, coordinator.ErrNotFoundSession):
		return kindNotFound
	case errors.As(err, new(*invalidError)):
		return kindInvalid
	default:
		return kindTransient
	}
}

// invalidf builds a kindInvalid error with a formatted message, for argument
// shape/range violations detected at parse time.
func invalidf(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

type invalidError struct{ msg string }

func (e *invalidError) Error() string { return e.msg }
