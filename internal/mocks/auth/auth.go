package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"

	"github.com/target/companion-client/internal/core"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.Navigator        = (*RecordingNavigator)(nil)
)

// FakeIdentityProvider simulates the identity capability with a real PrincipalFeed, so
// notifications are asynchronous exactly as they are in production adapters.
//
// Each operation can be overridden with a func field; otherwise the fake signs in DefaultUser
// and mints numbered credentials ("cred-1", "cred-2", ...).
type FakeIdentityProvider struct {
	SignUpFunc        func(ctx context.Context, email, password, displayName string) (domainauth.Principal, error)
	SignInFunc        func(ctx context.Context, email, password string) (domainauth.Principal, error)
	SignOutFunc       func(ctx context.Context) error
	ResetFunc         func(ctx context.Context, email string) error
	MintFunc          func(ctx context.Context, forced bool) (domainauth.Credential, error)
	CredentialPrefix  string
	DefaultUser       domainauth.Principal
	PublishOnSignIn   bool
	PublishOnSignOut  bool
	Feed              *core.PrincipalFeed
	mu                sync.Mutex
	mintCalls         int
	forcedMintCalls   int
	signOutCalls      int
	resetCalls        []string
	principalOverride *domainauth.Principal
}

// NewFakeIdentityProvider creates a fake whose sign-in and sign-out publish notifications.
func NewFakeIdentityProvider() *FakeIdentityProvider {
	return &FakeIdentityProvider{
		CredentialPrefix: "cred",
		DefaultUser: domainauth.Principal{
			UserID:      "fake-user-1",
			Email:       "fake.user@example.com",
			DisplayName: "Fake User",
		},
		PublishOnSignIn:  true,
		PublishOnSignOut: true,
		Feed:             core.NewPrincipalFeed(),
	}
}

// Emit publishes a principal notification as if the identity capability changed state.
func (f *FakeIdentityProvider) Emit(p *domainauth.Principal) {
	f.mu.Lock()
	if p == nil {
		f.principalOverride = nil
	} else {
		cp := *p
		f.principalOverride = &cp
	}
	f.mu.Unlock()
	f.Feed.Publish(p)
}

// EmitError forwards an observation failure to subscribers.
func (f *FakeIdentityProvider) EmitError(err error) {
	f.Feed.PublishError(err)
}

func (f *FakeIdentityProvider) SignUp(ctx context.Context, email, password, displayName string) (domainauth.Principal, error) {
	if f.SignUpFunc != nil {
		return f.SignUpFunc(ctx, email, password, displayName)
	}
	p := f.DefaultUser
	p.Email = email
	p.DisplayName = displayName
	if f.PublishOnSignIn {
		f.Emit(&p)
	}
	return p, nil
}

func (f *FakeIdentityProvider) SignIn(ctx context.Context, email, password string) (domainauth.Principal, error) {
	if f.SignInFunc != nil {
		return f.SignInFunc(ctx, email, password)
	}
	p := f.DefaultUser
	if f.PublishOnSignIn {
		f.Emit(&p)
	}
	return p, nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	f.mu.Unlock()

	var err error
	if f.SignOutFunc != nil {
		err = f.SignOutFunc(ctx)
	}
	if f.PublishOnSignOut {
		f.Emit(nil)
	}
	return err
}

func (f *FakeIdentityProvider) RequestPasswordReset(ctx context.Context, email string) error {
	f.mu.Lock()
	f.resetCalls = append(f.resetCalls, email)
	f.mu.Unlock()
	if f.ResetFunc != nil {
		return f.ResetFunc(ctx, email)
	}
	return nil
}

//nolint:ireturn // the subscription handle is intentionally opaque.
func (f *FakeIdentityProvider) ObservePrincipal(onChange ports.PrincipalHandler, onError func(error)) ports.Subscription {
	return f.Feed.Subscribe(onChange, onError)
}

func (f *FakeIdentityProvider) MintFreshCredential(ctx context.Context, forced bool) (domainauth.Credential, error) {
	f.mu.Lock()
	f.mintCalls++
	if forced {
		f.forcedMintCalls++
	}
	n := f.mintCalls
	f.mu.Unlock()

	if f.MintFunc != nil {
		return f.MintFunc(ctx, forced)
	}
	prefix := f.CredentialPrefix
	if prefix == "" {
		prefix = "cred"
	}
	return domainauth.Credential(fmt.Sprintf("%s-%d", prefix, n)), nil
}

func (f *FakeIdentityProvider) CurrentPrincipal() (domainauth.Principal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.principalOverride == nil {
		return domainauth.Principal{}, false
	}
	return *f.principalOverride, true
}

// MintCalls reports how many mints were requested and how many of them were forced.
func (f *FakeIdentityProvider) MintCalls() (total, forced int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mintCalls, f.forcedMintCalls
}

// SignOutCalls reports how many times SignOut was called.
func (f *FakeIdentityProvider) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// ResetCalls returns the emails passed to RequestPasswordReset.
func (f *FakeIdentityProvider) ResetCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resetCalls...)
}

// Close stops the notification feed.
func (f *FakeIdentityProvider) Close() {
	f.Feed.Close()
}

// RecordingNavigator is a ports.Navigator that records navigations.
type RecordingNavigator struct {
	mu       sync.Mutex
	location string
	visits   []string
}

// NewRecordingNavigator starts at location.
func NewRecordingNavigator(location string) *RecordingNavigator {
	return &RecordingNavigator{location: location}
}

func (n *RecordingNavigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *RecordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = path
	n.visits = append(n.visits, path)
}

// Visits returns every navigation in order.
func (n *RecordingNavigator) Visits() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.visits...)
}
