// Package oidc provides the OIDC/OAuth2 identity provider adapter for the companion client.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/target/companion-client/internal/core"
	"github.com/target/companion-client/internal/data/cryptoutil"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/ports"
	"golang.org/x/oauth2"
)

// Provider implements ports.IdentityProvider against an OIDC issuer.
//
// Sign-in uses the resource-owner password grant, credentials are verified ID tokens
// (the access token when the issuer returns no ID token), and refresh tokens re-mint them.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier

	registrationURL  string
	passwordResetURL string
	revocationURL    string

	feed   *core.PrincipalFeed
	vault  ports.CredentialMirror
	sealer cryptoutil.Sealer
	logger *slog.Logger

	mu    sync.Mutex
	token *oauth2.Token
	// gen increments on every sign-in/sign-out so a refresh that raced a transition is discarded.
	gen uint64
}

var _ ports.IdentityProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string

	// Account endpoints outside the OIDC protocol. Empty disables the operation.
	RegistrationURL  string
	PasswordResetURL string
	// RevocationURL overrides the discovered revocation_endpoint.
	RevocationURL string

	// SessionVault persists the refresh token so a restart can restore the session. Optional.
	SessionVault ports.CredentialMirror
	Sealer       cryptoutil.Sealer

	Feed       *core.PrincipalFeed // Optional, created when nil
	HTTPClient *http.Client        // Optional, defaults to a 30s client
	Logger     *slog.Logger
}

// DefaultScope requests an ID token and a refresh token.
const DefaultScope = "openid profile email offline_access"

// NewProvider creates a new OIDC provider. It performs discovery against the issuer.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	feed := config.Feed
	if feed == nil {
		feed = core.NewPrincipalFeed()
	}
	sealer := config.Sealer
	if sealer == nil {
		sealer = cryptoutil.PlainSealer{}
	}
	var logger *slog.Logger
	if config.Logger != nil {
		logger = config.Logger.With("component", "oidc_provider")
	}

	p := &Provider{
		httpClient:       httpClient,
		registrationURL:  config.RegistrationURL,
		passwordResetURL: config.PasswordResetURL,
		revocationURL:    config.RevocationURL,
		feed:             feed,
		vault:            config.SessionVault,
		sealer:           sealer,
		logger:           logger,
	}

	// Single discovery fetch; the key set keeps using this client.
	ctx := gooidc.ClientContext(context.Background(), httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	if p.revocationURL == "" {
		var extra struct {
			RevocationEndpoint string `json:"revocation_endpoint"`
		}
		if claimsErr := op.Claims(&extra); claimsErr == nil {
			p.revocationURL = extra.RevocationEndpoint
		}
	}

	scope := config.Scope
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       strings.Fields(scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// Restore re-establishes a persisted session and resolves the initial principal.
// It always publishes exactly one initial notification, nil when nothing could be restored.
func (p *Provider) Restore(ctx context.Context) error {
	snap, err := p.loadSnapshot(ctx)
	if err != nil || snap.RefreshToken == "" || snap.Principal.IsZero() {
		p.feed.Publish(nil)
		return err
	}

	p.mu.Lock()
	p.gen++
	p.token = &oauth2.Token{RefreshToken: snap.RefreshToken}
	p.mu.Unlock()

	principal := snap.Principal
	p.feed.Publish(&principal)
	return nil
}

// SignUp registers an account through the registration endpoint and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) (domainauth.Principal, error) {
	const op = "sign_up"
	if err := validateEmail(op, email); err != nil {
		return domainauth.Principal{}, err
	}
	if p.registrationURL == "" {
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindUnknown, op,
			errors.New("registration endpoint not configured"))
	}

	body := map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}
	if err := p.postAccount(ctx, op, p.registrationURL, body); err != nil {
		return domainauth.Principal{}, err
	}
	return p.signIn(ctx, op, email, password)
}

// SignIn authenticates with the password grant.
func (p *Provider) SignIn(ctx context.Context, email, password string) (domainauth.Principal, error) {
	const op = "sign_in"
	if err := validateEmail(op, email); err != nil {
		return domainauth.Principal{}, err
	}
	return p.signIn(ctx, op, email, password)
}

func (p *Provider) signIn(ctx context.Context, op, email, password string) (domainauth.Principal, error) {
	tok, err := p.config.PasswordCredentialsToken(p.clientContext(ctx), email, password)
	if err != nil {
		return domainauth.Principal{}, classify(op, err)
	}

	principal, _, err := p.principalFromToken(ctx, tok)
	if err != nil {
		return domainauth.Principal{}, domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
	}

	p.mu.Lock()
	p.gen++
	p.token = tok
	p.mu.Unlock()

	p.saveSnapshot(ctx, tok.RefreshToken, principal)
	p.feed.Publish(&principal)
	return principal, nil
}

// SignOut clears local session state, then revokes the refresh token. The remote failure, if any,
// is logged and returned for reporting only.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	tok := p.token
	p.token = nil
	p.gen++
	p.mu.Unlock()

	p.removeSnapshot(ctx)
	p.feed.Publish(nil)

	if tok == nil || p.revocationURL == "" {
		return nil
	}
	token, hint := tok.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = tok.AccessToken, "access_token"
	}
	if token == "" {
		return nil
	}
	if err := p.revoke(ctx, token, hint); err != nil {
		if p.logger != nil {
			p.logger.WarnContext(ctx, "token revocation failed", "error", err)
		}
		return classify("sign_out", err)
	}
	return nil
}

// RequestPasswordReset asks the password reset endpoint to send a reset message.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "password_reset"
	if err := validateEmail(op, email); err != nil {
		return err
	}
	if p.passwordResetURL == "" {
		return domainauth.NewIdentityError(domainauth.KindUnknown, op,
			errors.New("password reset endpoint not configured"))
	}
	return p.postAccount(ctx, op, p.passwordResetURL, map[string]string{"email": email})
}

// ObservePrincipal subscribes to principal changes.
//
//nolint:ireturn // the subscription handle is intentionally opaque.
func (p *Provider) ObservePrincipal(onChange ports.PrincipalHandler, onError func(error)) ports.Subscription {
	return p.feed.Subscribe(onChange, onError)
}

// CurrentPrincipal reports the signed-in principal.
func (p *Provider) CurrentPrincipal() (domainauth.Principal, bool) {
	return p.feed.Current()
}

// MintFreshCredential returns the current credential, refreshing it when forced or expired.
// A refresh rejected with invalid_grant ends the session and publishes a nil principal.
func (p *Provider) MintFreshCredential(ctx context.Context, forcedRefresh bool) (domainauth.Credential, error) {
	const op = "mint_credential"

	p.mu.Lock()
	tok, gen := p.token, p.gen
	p.mu.Unlock()

	if tok == nil {
		return "", domainauth.NewIdentityError(domainauth.KindNoActivePrincipal, op, nil)
	}
	if !forcedRefresh && tok.Valid() {
		if cred := credentialFrom(tok); !cred.IsEmpty() {
			return cred, nil
		}
	}
	if tok.RefreshToken == "" {
		return "", domainauth.NewIdentityError(domainauth.KindNoActivePrincipal, op,
			errors.New("no refresh token"))
	}

	fresh, err := p.config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
	if err != nil {
		if isInvalidGrant(err) {
			p.endSession(ctx, gen)
			return "", domainauth.NewIdentityError(domainauth.KindNoActivePrincipal, op, err)
		}
		return "", classify(op, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}

	principal, cred, err := p.principalFromToken(ctx, fresh)
	if err != nil {
		return "", domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
	}

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return "", domainauth.NewIdentityError(domainauth.KindNoActivePrincipal, op,
			errors.New("session changed during refresh"))
	}
	p.token = fresh
	p.mu.Unlock()

	if fresh.RefreshToken != tok.RefreshToken {
		p.saveSnapshot(ctx, fresh.RefreshToken, principal)
	}
	return cred, nil
}

// endSession drops local state after the issuer revoked the refresh token.
func (p *Provider) endSession(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.token = nil
	p.gen++
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.InfoContext(ctx, "refresh token rejected by issuer, ending session")
	}
	p.removeSnapshot(ctx)
	p.feed.Publish(nil)
}

// Close stops principal notifications.
func (p *Provider) Close() {
	p.feed.Close()
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// idClaims represents the subset of ID token / userinfo claims we map into a Principal.
type idClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	SessionID         string `json:"sid"`
}

// principalFromToken verifies the ID token (or queries userinfo) and returns the principal and
// the credential to attach to backend calls.
func (p *Provider) principalFromToken(ctx context.Context, tok *oauth2.Token) (domainauth.Principal, domainauth.Credential, error) {
	if rawID, ok := tok.Extra("id_token").(string); ok && rawID != "" {
		idTok, err := p.verifier.Verify(gooidc.ClientContext(ctx, p.httpClient), rawID)
		if err != nil {
			return domainauth.Principal{}, "", fmt.Errorf("verify id_token: %w", err)
		}
		var c idClaims
		if err := idTok.Claims(&c); err != nil {
			return domainauth.Principal{}, "", fmt.Errorf("parse id_token claims: %w", err)
		}
		return principalFromClaims(c), domainauth.Credential(rawID), nil
	}

	ui, err := p.oidcProvider.UserInfo(gooidc.ClientContext(ctx, p.httpClient), oauth2.StaticTokenSource(tok))
	if err != nil {
		return domainauth.Principal{}, "", fmt.Errorf("fetch user info: %w", err)
	}
	var c idClaims
	if err := ui.Claims(&c); err != nil {
		return domainauth.Principal{}, "", fmt.Errorf("decode user info: %w", err)
	}
	return principalFromClaims(c), domainauth.Credential(tok.AccessToken), nil
}

func principalFromClaims(c idClaims) domainauth.Principal {
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	return domainauth.Principal{
		UserID:        c.Sub,
		Email:         c.Email,
		DisplayName:   name,
		SessionHandle: c.SessionID,
	}
}

func credentialFrom(tok *oauth2.Token) domainauth.Credential {
	if rawID, ok := tok.Extra("id_token").(string); ok && rawID != "" {
		return domainauth.Credential(rawID)
	}
	return domainauth.Credential(tok.AccessToken)
}

func validateEmail(op, email string) error {
	if _, err := mail.ParseAddress(strings.TrimSpace(email)); err != nil {
		return domainauth.NewIdentityError(domainauth.KindInvalidEmail, op, err)
	}
	return nil
}

// sessionSnapshot is what the vault persists between runs.
type sessionSnapshot struct {
	RefreshToken string               `json:"refresh_token"`
	Principal    domainauth.Principal `json:"principal"`
}

func (p *Provider) loadSnapshot(ctx context.Context) (sessionSnapshot, error) {
	var snap sessionSnapshot
	if p.vault == nil {
		return snap, nil
	}
	sealed, err := p.vault.Load(ctx)
	if err != nil {
		return snap, fmt.Errorf("load session: %w", err)
	}
	if sealed == "" {
		return snap, nil
	}
	raw, err := p.sealer.Open(sealed)
	if err == nil {
		err = json.Unmarshal(raw, &snap)
	}
	if err != nil {
		p.removeSnapshot(ctx)
		return sessionSnapshot{}, fmt.Errorf("decode session: %w", err)
	}
	return snap, nil
}

func (p *Provider) saveSnapshot(ctx context.Context, refreshToken string, principal domainauth.Principal) {
	if p.vault == nil || refreshToken == "" {
		return
	}
	raw, err := json.Marshal(sessionSnapshot{RefreshToken: refreshToken, Principal: principal})
	if err != nil {
		p.warn(ctx, "encode session failed", err)
		return
	}
	sealed, err := p.sealer.Seal(raw)
	if err != nil {
		p.warn(ctx, "seal session failed", err)
		return
	}
	if err := p.vault.Save(ctx, sealed); err != nil {
		p.warn(ctx, "persist session failed", err)
	}
}

func (p *Provider) removeSnapshot(ctx context.Context) {
	if p.vault == nil {
		return
	}
	if err := p.vault.Remove(ctx); err != nil {
		p.warn(ctx, "remove persisted session failed", err)
	}
}

func (p *Provider) warn(ctx context.Context, msg string, err error) {
	if p.logger != nil {
		p.logger.WarnContext(ctx, msg, "error", err)
	}
}
