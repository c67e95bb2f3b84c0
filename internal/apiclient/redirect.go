package apiclient

import (
	"log/slog"
	"strings"
	"sync/atomic"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
)

// DefaultLoginPath is the login entry point used when none is configured.
const DefaultLoginPath = "/login"

// SessionSubscriber is the part of the session controller the redirector listens to.
type SessionSubscriber interface {
	SubscribeSignIn(fn func(domainauth.Principal)) (cancel func())
}

// LoginRedirector navigates to the login entry point at most once per lost session.
//
// Concurrent 401 responses all call Trigger; only the first navigates. The redirector is re-armed
// by every sign-in notification, since a 401 leaves the identity session authenticated.
type LoginRedirector struct {
	nav       ports.Navigator
	loginPath string
	logger    *slog.Logger
	fired     atomic.Bool
}

// NewLoginRedirector builds a redirector for nav. An empty loginPath uses DefaultLoginPath.
func NewLoginRedirector(nav ports.Navigator, loginPath string, logger *slog.Logger) *LoginRedirector {
	loginPath = strings.TrimSpace(loginPath)
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if logger != nil {
		logger = logger.With("component", "login_redirector")
	}
	return &LoginRedirector{nav: nav, loginPath: loginPath, logger: logger}
}

// LoginPath returns the configured login entry point.
func (r *LoginRedirector) LoginPath() string { return r.loginPath }

// Trigger navigates to the login entry point unless the navigator is already there or a redirect
// already happened for this session. It reports whether it navigated.
func (r *LoginRedirector) Trigger() bool {
	if r == nil || r.nav == nil {
		return false
	}
	if r.atLogin() {
		return false
	}
	if !r.fired.CompareAndSwap(false, true) {
		return false
	}
	if r.logger != nil {
		r.logger.Info("redirecting to login", "path", r.loginPath)
	}
	r.nav.Navigate(r.loginPath)
	return true
}

// Rearm allows the next Trigger to navigate again.
func (r *LoginRedirector) Rearm() {
	if r != nil {
		r.fired.Store(false)
	}
}

// WatchSession re-arms the redirector on every sign-in notification.
func (r *LoginRedirector) WatchSession(sessions SessionSubscriber) (cancel func()) {
	return sessions.SubscribeSignIn(func(domainauth.Principal) {
		r.Rearm()
	})
}

func (r *LoginRedirector) atLogin() bool {
	loc := strings.TrimSpace(r.nav.Location())
	if i := strings.IndexAny(loc, "?#"); i >= 0 {
		loc = loc[:i]
	}
	return strings.TrimSuffix(loc, "/") == strings.TrimSuffix(r.loginPath, "/")
}
