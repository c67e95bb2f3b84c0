// Package ports defines interfaces (hexagonal ports) for identity, credential and navigation behavior.
// Implementations live in internal/adapters; orchestration in internal/service.
package ports

import (
	"context"

	domainauth "github.com/target/companion-client/internal/domain/auth"
)

// Subscription is the cancellation handle of a long-lived principal subscription.
// Cancel is idempotent: a second call is a no-op.
type Subscription interface {
	Cancel()
}

// PrincipalHandler receives principal changes. A nil principal means "signed out".
type PrincipalHandler func(p *domainauth.Principal)

// IdentityProvider is the only component permitted to talk to the external identity capability.
type IdentityProvider interface {
	// SignUp creates an account and signs it in.
	SignUp(ctx context.Context, email, password, displayName string) (domainauth.Principal, error)

	// SignIn authenticates with email and password.
	SignIn(ctx context.Context, email, password string) (domainauth.Principal, error)

	// SignOut ends the session. Local provider state is cleared even when the remote call fails;
	// the returned error only reports the remote failure.
	SignOut(ctx context.Context) error

	// RequestPasswordReset asks the identity service to send a reset message.
	RequestPasswordReset(ctx context.Context, email string) error

	// ObservePrincipal fires onChange at least once with the resolved initial principal
	// (possibly nil) and again on every session transition.
	ObservePrincipal(onChange PrincipalHandler, onError func(error)) Subscription

	// MintFreshCredential returns a credential for the current principal. When forcedRefresh is
	// true any cached token is bypassed and the identity service is contacted.
	MintFreshCredential(ctx context.Context, forcedRefresh bool) (domainauth.Credential, error)

	// CurrentPrincipal reports the principal currently known to the provider.
	CurrentPrincipal() (domainauth.Principal, bool)
}

// CredentialMirror is durable storage for the last-known bearer credential.
// It is a fallback for restarts; it is never authoritative.
type CredentialMirror interface {
	Save(ctx context.Context, sealed string) error
	// Load returns "" with a nil error when nothing is stored.
	Load(ctx context.Context) (string, error)
	Remove(ctx context.Context) error
}

// CredentialSource is the read/write surface the request pipeline needs from the credential store.
type CredentialSource interface {
	Set(ctx context.Context, cred domainauth.Credential)
	Get() (domainauth.Credential, bool)
	Clear(ctx context.Context)
}

// Navigator abstracts the UI location so the pipeline can redirect to the login entry point.
type Navigator interface {
	Location() string
	Navigate(path string)
}
