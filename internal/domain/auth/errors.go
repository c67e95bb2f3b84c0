package auth

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes failures reported by the identity provider.
type ErrorKind string

const (
	KindInvalidEmail       ErrorKind = "invalid_email"
	KindWrongPassword      ErrorKind = "wrong_password"
	KindAccountDisabled    ErrorKind = "account_disabled"
	KindNoSuchAccount      ErrorKind = "no_such_account"
	KindTooManyAttempts    ErrorKind = "too_many_attempts"
	KindNetworkUnavailable ErrorKind = "network_unavailable"
	KindEmailInUse         ErrorKind = "email_in_use"
	KindNoActivePrincipal  ErrorKind = "no_active_principal"
	KindUnknown            ErrorKind = "unknown"
)

// Sentinels for errors.Is matching against an IdentityError of the same kind.
var (
	ErrInvalidEmail       = &IdentityError{Kind: KindInvalidEmail}
	ErrWrongPassword      = &IdentityError{Kind: KindWrongPassword}
	ErrAccountDisabled    = &IdentityError{Kind: KindAccountDisabled}
	ErrNoSuchAccount      = &IdentityError{Kind: KindNoSuchAccount}
	ErrTooManyAttempts    = &IdentityError{Kind: KindTooManyAttempts}
	ErrNetworkUnavailable = &IdentityError{Kind: KindNetworkUnavailable}
	ErrEmailInUse         = &IdentityError{Kind: KindEmailInUse}
	ErrNoActivePrincipal  = &IdentityError{Kind: KindNoActivePrincipal}
)

// IdentityError is the discriminated error surfaced by identity operations.
// The UI maps Kind to a user-facing message; nothing in the core interprets it further.
type IdentityError struct {
	Kind ErrorKind
	// Op names the identity operation that failed (e.g., "sign_in").
	Op  string
	Err error
}

// NewIdentityError builds an IdentityError for op wrapping cause.
func NewIdentityError(kind ErrorKind, op string, cause error) *IdentityError {
	return &IdentityError{Kind: kind, Op: op, Err: cause}
}

func (e *IdentityError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *IdentityError) Unwrap() error { return e.Err }

// Is matches any IdentityError carrying the same kind.
func (e *IdentityError) Is(target error) bool {
	var t *IdentityError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the identity error kind from err, or KindUnknown when err is not an IdentityError.
func KindOf(err error) ErrorKind {
	var ie *IdentityError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}
