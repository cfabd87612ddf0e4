package service

import (
	"errors"
	"fmt"

	"masterhand/internal/database"
)

// Kind classifies a service failure for callers.
type Kind string

const (
	KindInternal          Kind = "internal"
	KindNotFound          Kind = "not_found"
	KindInvalidState      Kind = "invalid_state"
	KindProviderFailure   Kind = "provider_failure"
	KindSignatureInvalid  Kind = "signature_invalid"
	KindValidationFailure Kind = "validation_failure"
)

// Error is a typed business failure. Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is checks by kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrProviderFailure   = &Error{Kind: KindProviderFailure}
	ErrSignatureInvalid  = &Error{Kind: KindSignatureInvalid}
	ErrValidationFailure = &Error{Kind: KindValidationFailure}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind that carries no message, so
// errors.Is(err, ErrNotFound) works for every not-found failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of a service error, or KindInternal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of a service error.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}

func notFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func validation(format string, args ...any) error {
	return &Error{Kind: KindValidationFailure, Message: fmt.Sprintf(format, args...)}
}

func providerFailure(msg string, err error) error {
	return &Error{Kind: KindProviderFailure, Message: msg, Err: err}
}

// lookup maps a repository read failure to NotFound, passing other errors through.
func lookup(err error, format string, args ...any) error {
	if errors.Is(err, database.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...), Err: err}
	}
	return err
}
