package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/companion-client/internal/core"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	mocks "github.com/target/companion-client/internal/mocks/auth"
	"github.com/target/companion-client/internal/observability/statsd"
)

type sessionFixture struct {
	provider *mocks.FakeIdentityProvider
	store    *core.CredentialStore
	metrics  *statsd.Recorder
	ctrl     *SessionController
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	provider := mocks.NewFakeIdentityProvider()
	store := core.NewCredentialStore(core.CredentialStoreOptions{})
	rec := &statsd.Recorder{}
	ctrl := NewSessionController(SessionControllerOptions{
		Provider:    provider,
		Credentials: store,
		Metrics:     rec,
		MintTimeout: time.Second,
	})
	t.Cleanup(func() {
		ctrl.Close()
		provider.Close()
	})
	return &sessionFixture{provider: provider, store: store, metrics: rec, ctrl: ctrl}
}

func waitFor(t *testing.T, ctrl *SessionController, want domainauth.SessionState) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := ctrl.WaitForState(ctx, func(s domainauth.SessionState) bool { return s == want })
	require.NoError(t, err, "state stayed %s", got)
}

func TestSessionController_StartsUnknown(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Start()

	assert.Equal(t, domainauth.SessionUnknown, f.ctrl.State())
	_, ok := f.ctrl.Principal()
	assert.False(t, ok)
}

func TestSessionController_NullNotificationClearsStore(t *testing.T) {
	f := newSessionFixture(t)
	f.store.Set(context.Background(), "stale")
	f.ctrl.Start()

	f.provider.Emit(nil)
	waitFor(t, f.ctrl, domainauth.SessionUnauthenticated)

	_, ok := f.store.Get()
	assert.False(t, ok)
}

func TestSessionController_LoginStoresCredentialAndNotificationFlipsState(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Start()
	f.provider.Emit(nil)
	waitFor(t, f.ctrl, domainauth.SessionUnauthenticated)

	ok, err := f.ctrl.Login(context.Background(), "fake.user@example.com", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	cred, has := f.store.Get()
	require.True(t, has)
	assert.NotEmpty(t, cred.Token())

	waitFor(t, f.ctrl, domainauth.SessionAuthenticated)
	principal, has := f.ctrl.Principal()
	require.True(t, has)
	assert.Equal(t, "fake-user-1", principal.UserID)

	// One forced mint from Login and one from the sign-in notification.
	require.Eventually(t, func() bool {
		_, forced := f.provider.MintCalls()
		return forced == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, int64(1), f.metrics.Total("session.transition", map[string]string{
		"from": domainauth.SessionUnauthenticated.String(),
		"to":   domainauth.SessionAuthenticated.String(),
	}))
	assert.Equal(t, int64(1), f.metrics.Total("credential.mint", map[string]string{"trigger": "login", "result": "success"}))
}

func TestSessionController_LoginReturnsProviderErrorUnchanged(t *testing.T) {
	f := newSessionFixture(t)
	want := domainauth.NewIdentityError(domainauth.KindWrongPassword, "sign_in", nil)
	f.provider.SignInFunc = func(context.Context, string, string) (domainauth.Principal, error) {
		return domainauth.Principal{}, want
	}
	f.ctrl.Start()

	ok, err := f.ctrl.Login(context.Background(), "a@example.com", "nope")
	assert.False(t, ok)
	assert.Same(t, want, err)

	total, _ := f.provider.MintCalls()
	assert.Zero(t, total, "no mint after a failed sign-in")
	_, has := f.store.Get()
	assert.False(t, has)
}

func TestSessionController_LoginMintFailure(t *testing.T) {
	f := newSessionFixture(t)
	mintErr := domainauth.NewIdentityError(domainauth.KindNetworkUnavailable, "mint_credential", errors.New("offline"))
	f.provider.MintFunc = func(context.Context, bool) (domainauth.Credential, error) { return "", mintErr }
	f.ctrl.Start()

	ok, err := f.ctrl.Login(context.Background(), "a@example.com", "pw")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domainauth.ErrNetworkUnavailable)
}

func TestSessionController_RegisterMirrorsLogin(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Start()

	ok, err := f.ctrl.Register(context.Background(), "new@example.com", "pw", "Newcomer")
	require.NoError(t, err)
	assert.True(t, ok)

	waitFor(t, f.ctrl, domainauth.SessionAuthenticated)
	principal, _ := f.ctrl.Principal()
	assert.Equal(t, "Newcomer", principal.DisplayName)
	_, has := f.store.Get()
	assert.True(t, has)

	f.provider.SignUpFunc = func(context.Context, string, string, string) (domainauth.Principal, error) {
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindEmailInUse, "sign_up", nil)
	}
	ok, err = f.ctrl.Register(context.Background(), "new@example.com", "pw", "")
	assert.False(t, ok)
	assert.ErrorIs(t, err, domainauth.ErrEmailInUse)
}

func TestSessionController_NotificationMintFailureKeepsPreviousCredential(t *testing.T) {
	f := newSessionFixture(t)
	f.store.Set(context.Background(), "previous")
	f.provider.MintFunc = func(context.Context, bool) (domainauth.Credential, error) {
		return "", errors.New("refresh failed")
	}
	f.ctrl.Start()

	f.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	waitFor(t, f.ctrl, domainauth.SessionAuthenticated)
	require.Eventually(t, func() bool {
		total, _ := f.provider.MintCalls()
		return total == 1
	}, time.Second, 5*time.Millisecond)
	f.ctrl.Close()

	cred, ok := f.store.Get()
	require.True(t, ok)
	assert.Equal(t, domainauth.Credential("previous"), cred)
	assert.Equal(t, int64(1), f.metrics.Total("credential.mint", map[string]string{"trigger": "notification", "result": "error"}))
}

func TestSessionController_LateMintDoesNotResurrectClearedSession(t *testing.T) {
	f := newSessionFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.provider.MintFunc = func(context.Context, bool) (domainauth.Credential, error) {
		entered <- struct{}{}
		<-release
		return "late", nil
	}
	f.ctrl.Start()

	f.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	<-entered
	f.provider.Emit(nil)
	waitFor(t, f.ctrl, domainauth.SessionUnauthenticated)

	close(release)
	f.ctrl.Close()

	_, ok := f.store.Get()
	assert.False(t, ok)
}

func TestSessionController_Logout(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Start()
	ctx := context.Background()

	_, err := f.ctrl.Login(ctx, "a@example.com", "pw")
	require.NoError(t, err)
	waitFor(t, f.ctrl, domainauth.SessionAuthenticated)

	assert.True(t, f.ctrl.Logout(ctx))
	_, has := f.store.Get()
	assert.False(t, has)
	waitFor(t, f.ctrl, domainauth.SessionUnauthenticated)
}

func TestSessionController_LogoutRemoteFailureStillClears(t *testing.T) {
	f := newSessionFixture(t)
	f.provider.SignOutFunc = func(context.Context) error { return errors.New("network down") }
	f.provider.PublishOnSignOut = false
	f.store.Set(context.Background(), "cred")
	f.ctrl.Start()

	assert.False(t, f.ctrl.Logout(context.Background()))
	_, has := f.store.Get()
	assert.False(t, has)
	assert.Equal(t, 1, f.provider.SignOutCalls())
}

func TestSessionController_ResetPassword(t *testing.T) {
	f := newSessionFixture(t)
	require.NoError(t, f.ctrl.ResetPassword(context.Background(), "a@example.com"))
	assert.Equal(t, []string{"a@example.com"}, f.provider.ResetCalls())

	f.provider.ResetFunc = func(context.Context, string) error {
		return domainauth.NewIdentityError(domainauth.KindNoSuchAccount, "password_reset", nil)
	}
	assert.ErrorIs(t, f.ctrl.ResetPassword(context.Background(), "x@example.com"), domainauth.ErrNoSuchAccount)
}

func TestSessionController_SubscribeReceivesTransitions(t *testing.T) {
	f := newSessionFixture(t)

	var mu sync.Mutex
	var seen []domainauth.SessionState
	cancel := f.ctrl.Subscribe(func(s domainauth.SessionState) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	f.ctrl.Start()

	f.provider.Emit(nil)
	f.provider.Emit(nil) // no transition
	f.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	waitFor(t, f.ctrl, domainauth.SessionAuthenticated)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []domainauth.SessionState{domainauth.SessionUnauthenticated, domainauth.SessionAuthenticated}, seen)
	mu.Unlock()

	cancel()
	cancel()
	f.provider.Emit(nil)
	waitFor(t, f.ctrl, domainauth.SessionUnauthenticated)
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
}

func TestSessionController_WaitForStateHonorsContext(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state, err := f.ctrl.WaitForState(ctx, func(s domainauth.SessionState) bool { return s.Resolved() })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domainauth.SessionUnknown, state)
}

func TestSessionController_CloseIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	f.ctrl.Close()
	f.ctrl.Close()

	g := newSessionFixture(t)
	g.ctrl.Start()
	g.ctrl.Close()
	g.ctrl.Close()

	g.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domainauth.SessionUnknown, g.ctrl.State(), "no notifications after Close")
}

func TestSessionController_SubscribeSignInFiresWhileAuthenticated(t *testing.T) {
	f := newSessionFixture(t)

	var mu sync.Mutex
	var users []string
	cancel := f.ctrl.SubscribeSignIn(func(p domainauth.Principal) {
		mu.Lock()
		users = append(users, p.UserID)
		mu.Unlock()
	})
	f.ctrl.Start()

	f.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	f.provider.Emit(nil)
	f.provider.Emit(&domainauth.Principal{UserID: "u-1"})
	f.provider.Emit(&domainauth.Principal{UserID: "u-2"}) // no state transition

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(users) == 3
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"u-1", "u-1", "u-2"}, users)
	mu.Unlock()

	cancel()
	f.provider.Emit(&domainauth.Principal{UserID: "u-3"})
	require.Eventually(t, func() bool {
		p, ok := f.ctrl.Principal()
		return ok && p.UserID == "u-3"
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Len(t, users, 3)
	mu.Unlock()
}

// blockingStore holds Clear until released.
type blockingStore struct {
	*core.CredentialStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) Clear(ctx context.Context) {
	s.entered <- struct{}{}
	<-s.release
	s.CredentialStore.Clear(ctx)
}

func TestSessionController_SlowStoreDoesNotBlockStateReaders(t *testing.T) {
	provider := mocks.NewFakeIdentityProvider()
	store := &blockingStore{
		CredentialStore: core.NewCredentialStore(core.CredentialStoreOptions{}),
		entered:         make(chan struct{}, 1),
		release:         make(chan struct{}),
	}
	store.Set(context.Background(), "stale")
	ctrl := NewSessionController(SessionControllerOptions{Provider: provider, Credentials: store, MintTimeout: time.Second})
	t.Cleanup(func() {
		ctrl.Close()
		provider.Close()
	})
	ctrl.Start()

	provider.Emit(nil)
	<-store.entered

	done := make(chan domainauth.SessionState, 1)
	go func() {
		cancel := ctrl.Subscribe(func(domainauth.SessionState) {})
		cancel()
		done <- ctrl.State()
	}()
	select {
	case state := <-done:
		assert.Equal(t, domainauth.SessionUnknown, state, "state flips only after the store is cleared")
	case <-time.After(time.Second):
		t.Fatal("State blocked on credential store I/O")
	}

	close(store.release)
	waitFor(t, ctrl, domainauth.SessionUnauthenticated)
	_, ok := store.Get()
	assert.False(t, ok)
}
