// Package common defines shared sentinel errors and the error kinds surfaced
// across the storage and authentication layers. Callers should use errors.Is
// to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrorValidation = errors.New("validation error")

	// Token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Kind enumerates the failure classes reported to callers of the core.
type Kind int

const (
	KindUnknown Kind = iota
	KindBackendInitialization
	KindAuthenticationFailed
	KindAuthorizationDenied
)

func (k Kind) String() string {
	switch k {
	case KindBackendInitialization:
		return "backend initialization failure"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindAuthorizationDenied:
		return "authorization denied"
	default:
		return "unknown error"
	}
}

// Error carries a Kind, a human-readable cause and, optionally, the
// underlying error.
type Error struct {
	Kind  Kind
	Cause string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Cause != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Cause, e.Err)
	case e.Cause != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a bare kind sentinel (such as
// ErrAuthenticationFailed) with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Cause == "" && t.Err == nil
}

// Kind sentinels, matched with errors.Is.
var (
	ErrBackendInitialization = &Error{Kind: KindBackendInitialization}
	ErrAuthenticationFailed  = &Error{Kind: KindAuthenticationFailed}
	ErrAuthorizationDenied   = &Error{Kind: KindAuthorizationDenied}
)

// NewError builds an *Error of the given kind.
func NewError(kind Kind, cause string, err error) *Error {
	return &Error{Kind: kind, Cause: cause, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
