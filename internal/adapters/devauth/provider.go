// Package devauth provides an in-process identity provider for local development and tests.
package devauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/target/companion-client/internal/core"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// Account seeds a user known to the dev provider.
type Account struct {
	Email       string
	Password    string
	DisplayName string
	Disabled    bool
}

// Config controls the dev provider behavior.
type Config struct {
	Accounts []Account
	// SigningKey signs issued credentials. A random key is generated when empty.
	SigningKey []byte
	// CredentialTTL defaults to 15m when zero.
	CredentialTTL time.Duration
	// MaxFailedAttempts before the account is locked. Defaults to 5.
	MaxFailedAttempts int
	// LockoutDuration defaults to 1m when zero.
	LockoutDuration time.Duration
	// MinPasswordLength for SignUp. Defaults to 6.
	MinPasswordLength int

	Feed   *core.PrincipalFeed
	Logger *slog.Logger
	Now    func() time.Time
}

// Provider implements ports.IdentityProvider with bcrypt-hashed accounts held in memory.
// Credentials are HS256 JWTs that VerifyCredential can check.
type Provider struct {
	key         []byte
	ttl         time.Duration
	maxFailures int
	lockout     time.Duration
	minPassword int
	feed        *core.PrincipalFeed
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	accounts map[string]*account
	session  *session
	resets   []string
}

var _ ports.IdentityProvider = (*Provider)(nil)

type account struct {
	userID      string
	email       string
	displayName string
	hash        []byte
	disabled    bool
	failures    int
	lockedUntil time.Time
}

type session struct {
	principal  domainauth.Principal
	credential domainauth.Credential
	expiresAt  time.Time
}

// credentialClaims is the payload of an issued credential.
type credentialClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	SID   string `json:"sid"`
	jwt.RegisteredClaims
}

const issuer = "companion-devauth"

// NewProvider constructs a dev provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	key := cfg.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	p := &Provider{
		key:         key,
		ttl:         cfg.CredentialTTL,
		maxFailures: cfg.MaxFailedAttempts,
		lockout:     cfg.LockoutDuration,
		minPassword: cfg.MinPasswordLength,
		feed:        cfg.Feed,
		now:         cfg.Now,
		accounts:    make(map[string]*account),
	}
	if p.ttl <= 0 {
		p.ttl = 15 * time.Minute
	}
	if p.maxFailures <= 0 {
		p.maxFailures = 5
	}
	if p.lockout <= 0 {
		p.lockout = time.Minute
	}
	if p.minPassword <= 0 {
		p.minPassword = 6
	}
	if p.feed == nil {
		p.feed = core.NewPrincipalFeed()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if cfg.Logger != nil {
		p.logger = cfg.Logger.With("component", "devauth_provider")
	}

	for _, a := range cfg.Accounts {
		acct, err := p.newAccount(a.Email, a.Password, a.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("seed account %q: %w", a.Email, err)
		}
		acct.disabled = a.Disabled
		p.accounts[acct.email] = acct
	}
	return p, nil
}

// Restore publishes the initial principal. Dev sessions do not survive a restart, so it is always nil.
func (p *Provider) Restore(_ context.Context) error {
	p.feed.Publish(nil)
	return nil
}

func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (domainauth.Principal, error) {
	const op = "sign_up"
	key, err := normalizeEmail(op, email)
	if err != nil {
		return domainauth.Principal{}, err
	}
	if len(password) < p.minPassword {
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindUnknown, op,
			fmt.Errorf("password must be at least %d characters", p.minPassword))
	}

	p.mu.Lock()
	if _, exists := p.accounts[key]; exists {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindEmailInUse, op, nil)
	}
	acct, err := p.newAccount(key, password, displayName)
	if err != nil {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
	}
	p.accounts[key] = acct
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.InfoContext(ctx, "account registered", "user_id", acct.userID)
	}
	return p.SignIn(ctx, email, password)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (domainauth.Principal, error) {
	const op = "sign_in"
	key, err := normalizeEmail(op, email)
	if err != nil {
		return domainauth.Principal{}, err
	}

	p.mu.Lock()
	acct, ok := p.accounts[key]
	if !ok {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindNoSuchAccount, op, nil)
	}
	if acct.disabled {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindAccountDisabled, op, nil)
	}
	now := p.now()
	if now.Before(acct.lockedUntil) {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindTooManyAttempts, op,
			fmt.Errorf("locked until %s", acct.lockedUntil.Format(time.RFC3339)))
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		acct.failures++
		if acct.failures >= p.maxFailures {
			acct.failures = 0
			acct.lockedUntil = now.Add(p.lockout)
			if p.logger != nil {
				p.logger.WarnContext(ctx, "account locked after repeated failures", "user_id", acct.userID)
			}
		}
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindWrongPassword, op, nil)
	}
	acct.failures = 0

	principal := domainauth.Principal{
		UserID:        acct.userID,
		Email:         acct.email,
		DisplayName:   acct.displayName,
		SessionHandle: uuid.NewString(),
	}
	sess, err := p.issue(principal)
	if err != nil {
		p.mu.Unlock()
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
	}
	p.session = sess
	p.mu.Unlock()

	p.feed.Publish(&principal)
	return principal, nil
}

func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.feed.Publish(nil)
	return nil
}

// RequestPasswordReset records the request; ResetRequests exposes them.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "password_reset"
	key, err := normalizeEmail(op, email)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[key]; !ok {
		return domainauth.NewIdentityError(domainauth.KindNoSuchAccount, op, nil)
	}
	p.resets = append(p.resets, key)
	if p.logger != nil {
		p.logger.InfoContext(ctx, "password reset requested")
	}
	return nil
}

// ResetRequests returns the emails that requested a reset, oldest first.
func (p *Provider) ResetRequests() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resets...)
}

//nolint:ireturn // the subscription handle is intentionally opaque.
func (p *Provider) ObservePrincipal(onChange ports.PrincipalHandler, onError func(error)) ports.Subscription {
	return p.feed.Subscribe(onChange, onError)
}

func (p *Provider) CurrentPrincipal() (domainauth.Principal, bool) {
	return p.feed.Current()
}

// MintFreshCredential returns the session credential, issuing a new one when forced or expired.
// A session whose account was disabled meanwhile is ended.
func (p *Provider) MintFreshCredential(ctx context.Context, forcedRefresh bool) (domainauth.Credential, error) {
	const op = "mint_credential"
	p.mu.Lock()
	sess := p.session
	if sess == nil {
		p.mu.Unlock()
		return "", domainauth.NewIdentityError(domainauth.KindNoActivePrincipal, op, nil)
	}
	if acct, ok := p.accounts[strings.ToLower(sess.principal.Email)]; !ok || acct.disabled {
		p.session = nil
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.InfoContext(ctx, "account disabled, ending session")
		}
		p.feed.Publish(nil)
		return "", domainauth.NewIdentityError(domainauth.KindAccountDisabled, op, nil)
	}
	if !forcedRefresh && p.now().Before(sess.expiresAt) {
		p.mu.Unlock()
		return sess.credential, nil
	}
	fresh, err := p.issue(sess.principal)
	if err != nil {
		p.mu.Unlock()
		return "", domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
	}
	p.session = fresh
	p.mu.Unlock()
	return fresh.credential, nil
}

// VerifyCredential checks a credential issued by this provider and returns its principal.
func (p *Provider) VerifyCredential(raw string) (domainauth.Principal, error) {
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return domainauth.Principal{}, fmt.Errorf("verify credential: %w", err)
	}
	return domainauth.Principal{
		UserID:        claims.Subject,
		Email:         claims.Email,
		DisplayName:   claims.Name,
		SessionHandle: claims.SID,
	}, nil
}

// Disable marks an account disabled. Its active session ends on the next mint.
func (p *Provider) Disable(email string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[strings.ToLower(strings.TrimSpace(email))]
	if ok {
		acct.disabled = true
	}
	return ok
}

// Close stops principal notifications.
func (p *Provider) Close() {
	p.feed.Close()
}

func (p *Provider) newAccount(email, password, displayName string) (*account, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &account{
		userID:      uuid.NewString(),
		email:       strings.ToLower(addr.Address),
		displayName: displayName,
		hash:        hash,
	}, nil
}

// issue must be called with p.mu held.
func (p *Provider) issue(principal domainauth.Principal) (*session, error) {
	now := p.now()
	exp := now.Add(p.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{
		Email: principal.Email,
		Name:  principal.DisplayName,
		SID:   principal.SessionHandle,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   principal.UserID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(p.key)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	return &session{principal: principal, credential: domainauth.Credential(signed), expiresAt: exp}, nil
}

func normalizeEmail(op, email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return "", domainauth.NewIdentityError(domainauth.KindInvalidEmail, op, err)
	}
	return strings.ToLower(addr.Address), nil
}
