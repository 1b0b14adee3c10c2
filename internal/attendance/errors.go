package attendance

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of them.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("expired")
	ErrAuthorization   = errors.New("not authorized")
	ErrInvalidState    = errors.New("invalid state")
	ErrUnauthenticated = errors.New("not authenticated")
)

// ErrNoActiveSession is returned by session-scoped operations when no academic session is active.
var ErrNoActiveSession = errors.New("no active academic session")

// Error is a classified failure whose Message is safe to show to users.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) error { return newError(ErrValidation, format, args...) }

func forbidden(format string, args ...any) error { return newError(ErrAuthorization, format, args...) }

func notFound(what string) error { return newError(ErrNotFound, "%s not found", what) }
