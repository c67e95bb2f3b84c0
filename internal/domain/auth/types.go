package auth

// Package auth contains domain-level types for identity, credentials and session state.
// It is pure and free of framework/adapter concerns.

import "strings"

// Principal represents the authenticated identity as known to the identity provider.
// The application only ever holds a read-only snapshot.
type Principal struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	// SessionHandle is opaque to the application (e.g., provider session id).
	SessionHandle string `json:"-"`
}

// IsZero reports whether p carries no identity.
func (p Principal) IsZero() bool { return p.UserID == "" }

// Credential is a short-lived bearer token. Its encoded expiry is only understood by
// the identity provider; the application re-mints before use instead of parsing it.
type Credential string

// String redacts the token so a credential never ends up in logs by accident.
func (c Credential) String() string {
	if c == "" {
		return ""
	}
	return "[redacted]"
}

// Token returns the raw bearer token with surrounding whitespace stripped.
func (c Credential) Token() string { return strings.TrimSpace(string(c)) }

// IsEmpty reports whether c holds no usable token.
func (c Credential) IsEmpty() bool { return c.Token() == "" }

// SessionState is the application's tri-state view of login status.
type SessionState int

const (
	// SessionUnknown is the initial state before the first principal notification.
	SessionUnknown SessionState = iota
	// SessionAuthenticated means a non-null principal was observed.
	SessionAuthenticated
	// SessionUnauthenticated means a null principal was observed or logout completed.
	SessionUnauthenticated
)

func (s SessionState) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Resolved reports whether the state is no longer unknown.
func (s SessionState) Resolved() bool { return s != SessionUnknown }
