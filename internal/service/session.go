package service

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/observability/metrics"
	"github.com/target/companion-client/internal/observability/statsd"
	"github.com/target/companion-client/internal/ports"
)

// SessionControllerOptions groups dependencies for SessionController.
type SessionControllerOptions struct {
	Provider    ports.IdentityProvider
	Credentials ports.CredentialSource
	Metrics     statsd.Sink
	Logger      *slog.Logger
	// MintTimeout bounds the background mint after a sign-in notification. Defaults to 30s.
	MintTimeout time.Duration
}

// SessionController owns the session state machine: unknown, then authenticated or unauthenticated.
//
// State changes only in response to principal notifications. Login and Register do not set state
// themselves; the provider's notification does.
type SessionController struct {
	provider    ports.IdentityProvider
	creds       ports.CredentialSource
	metrics     statsd.Sink
	logger      *slog.Logger
	mintTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once
	sub       ports.Subscription

	// storeMu orders credential store writes from notifications and background mints.
	// It is never held together with mu, so store I/O does not block state readers.
	storeMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	state     domainauth.SessionState
	principal *domainauth.Principal
	// epoch advances on every notification; a background mint stores only if it is unchanged.
	epoch     uint64
	changed   chan struct{}
	listeners map[uint64]func(domainauth.SessionState)
	signIns   map[uint64]func(domainauth.Principal)
	nextID    uint64
}

// NewSessionController constructs a controller in the unknown state. Call Start to begin observing.
func NewSessionController(opts SessionControllerOptions) *SessionController {
	timeout := opts.MintTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "session_controller")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionController{
		provider:    opts.Provider,
		creds:       opts.Credentials,
		metrics:     opts.Metrics,
		logger:      logger,
		mintTimeout: timeout,
		ctx:         ctx,
		cancel:      cancel,
		changed:     make(chan struct{}),
		listeners:   make(map[uint64]func(domainauth.SessionState)),
		signIns:     make(map[uint64]func(domainauth.Principal)),
	}
}

// Start subscribes to principal notifications. Calling it again has no effect.
func (c *SessionController) Start() {
	c.startOnce.Do(func() {
		sub := c.provider.ObservePrincipal(c.onPrincipal, c.onObserveError)
		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
	})
}

// Close cancels the subscription and waits for background mints. It is safe to call twice.
func (c *SessionController) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		sub := c.sub
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		c.cancel()
		c.bg.Wait()
	})
}

// State returns the current session state.
func (c *SessionController) State() domainauth.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Principal returns the principal of the last notification, if any.
func (c *SessionController) Principal() (domainauth.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return domainauth.Principal{}, false
	}
	return *c.principal, true
}

// Subscribe registers fn for state changes. fn runs on the notification goroutine.
func (c *SessionController) Subscribe(fn func(domainauth.SessionState)) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SubscribeSignIn registers fn for every signed-in notification, including one that arrives
// while the session is already authenticated. fn runs on the notification goroutine.
func (c *SessionController) SubscribeSignIn(fn func(domainauth.Principal)) (cancel func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.signIns[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.signIns, id)
			c.mu.Unlock()
		})
	}
}

// WaitForState blocks until pred accepts the current state or ctx is done.
func (c *SessionController) WaitForState(ctx context.Context, pred func(domainauth.SessionState) bool) (domainauth.SessionState, error) {
	for {
		c.mu.Lock()
		state, changed := c.state, c.changed
		c.mu.Unlock()
		if pred(state) {
			return state, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Login signs in and stores a freshly minted credential. Provider errors are returned unchanged.
func (c *SessionController) Login(ctx context.Context, email, password string) (bool, error) {
	if _, err := c.provider.SignIn(ctx, email, password); err != nil {
		return false, err
	}
	if err := c.mintAndStore(ctx, metrics.TriggerLogin); err != nil {
		return false, err
	}
	return true, nil
}

// Register creates an account, signs it in and stores a freshly minted credential.
func (c *SessionController) Register(ctx context.Context, email, password, displayName string) (bool, error) {
	if _, err := c.provider.SignUp(ctx, email, password, displayName); err != nil {
		return false, err
	}
	if err := c.mintAndStore(ctx, metrics.TriggerRegister); err != nil {
		return false, err
	}
	return true, nil
}

// Logout signs out and always clears the credential store. It reports false only when the
// remote sign-out failed.
func (c *SessionController) Logout(ctx context.Context) bool {
	err := c.provider.SignOut(ctx)
	c.creds.Clear(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "remote sign-out failed", "error", err)
		}
		return false
	}
	return true
}

// ResetPassword delegates to the identity provider.
func (c *SessionController) ResetPassword(ctx context.Context, email string) error {
	return c.provider.RequestPasswordReset(ctx, email)
}

func (c *SessionController) mintAndStore(ctx context.Context, trigger string) error {
	start := time.Now()
	cred, err := c.provider.MintFreshCredential(ctx, true)
	c.emitMint(trigger, time.Since(start), err)
	if err != nil {
		return err
	}
	c.creds.Set(ctx, cred)
	return nil
}

func (c *SessionController) onPrincipal(p *domainauth.Principal) {
	next := domainauth.SessionUnauthenticated
	if p != nil {
		next = domainauth.SessionAuthenticated
	}

	// Advance the epoch first so an in-flight background mint cannot store after this point.
	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	// The store is cleared before the new state is visible, so a reader that observes
	// unauthenticated never sees a stale credential.
	if p == nil {
		c.storeMu.Lock()
		c.creds.Clear(c.ctx)
		c.storeMu.Unlock()
	}

	c.mu.Lock()
	prev := c.state
	c.state = next
	if p == nil {
		c.principal = nil
	} else {
		cp := *p
		c.principal = &cp
	}
	close(c.changed)
	c.changed = make(chan struct{})
	var notify []func(domainauth.SessionState)
	if prev != next {
		notify = sortedByID(c.listeners)
	}
	var signIns []func(domainauth.Principal)
	if p != nil {
		signIns = sortedByID(c.signIns)
	}
	spawn := p != nil && !c.closed
	if spawn {
		c.bg.Add(1)
	}
	c.mu.Unlock()

	if prev != next {
		metrics.EmitSessionTransition(c.metrics, prev, next)
		if c.logger != nil {
			c.logger.Info("session state changed", "from", prev.String(), "to", next.String())
		}
	}
	for _, fn := range notify {
		fn(next)
	}
	for _, fn := range signIns {
		fn(*p)
	}

	if spawn {
		go c.refreshAfterNotification(epoch)
	}
}

// refreshAfterNotification mints a fresh credential for a newly observed principal. Failure keeps
// the previous credential; the request pipeline's 401 handling decides when the session is over.
func (c *SessionController) refreshAfterNotification(epoch uint64) {
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(c.ctx, c.mintTimeout)
	defer cancel()

	start := time.Now()
	cred, err := c.provider.MintFreshCredential(ctx, true)
	c.emitMint(metrics.TriggerNotification, time.Since(start), err)
	if err != nil {
		if c.logger != nil {
			c.logger.WarnContext(ctx, "credential refresh after sign-in notification failed", "error", err)
		}
		return
	}

	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	c.mu.Lock()
	current := c.epoch
	c.mu.Unlock()
	if current != epoch {
		return
	}
	c.creds.Set(ctx, cred)
}

func (c *SessionController) onObserveError(err error) {
	if c.logger != nil {
		c.logger.Warn("principal observation failed", "error", err)
	}
}

// sortedByID returns the callbacks in registration order. The caller holds c.mu.
func sortedByID[F any](m map[uint64]F) []F {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]F, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (c *SessionController) emitMint(trigger string, d time.Duration, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitCredentialMint(c.metrics, metrics.MintMetric{
		Trigger:  trigger,
		Forced:   true,
		Result:   result,
		Duration: d,
		Err:      err,
	})
}
