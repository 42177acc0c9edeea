package auth

import (
	"errors"
	"time"
)

// Kind classifies a failure so the transport layer can map it to a status code
type Kind string

const (
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is the failure type returned by AuthService operations.
// Message is safe to show to clients; Cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind, so errors.Is(err, ErrUnauthorized) holds for any unauthorized failure
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrConflict     = &Error{Kind: KindConflict, Message: "conflict"}
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrValidation   = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInternal     = &Error{Kind: KindInternal, Message: "internal error"}

	// ErrInvalidToken is returned by the token signer for bad signature, malformed payload or expiry
	ErrInvalidToken = errors.New("invalid token")
)

const (
	msgInvalidCredentials = "invalid username or password"
	msgInvalidRefresh     = "invalid refresh token"
	msgUsernameTaken      = "username already exists"
	msgAccountLocked      = "account is temporarily locked"
	msgAccountDisabled    = "account is disabled"
	msgAccountNotFound    = "account not found"
	msgInternal           = "internal error"
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// LockedError is the forbidden failure returned while an account is locked out
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return msgAccountLocked
}

// Unwrap exposes the forbidden kind to errors.Is and errors.As
func (e *LockedError) Unwrap() error {
	return newError(KindForbidden, msgAccountLocked)
}

// KindOf returns the kind of err, or KindInternal when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return msgInternal
}
