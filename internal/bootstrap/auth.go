package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/companion-client/config"
	"github.com/target/companion-client/internal/adapters/devauth"
	"github.com/target/companion-client/internal/adapters/filemirror"
	"github.com/target/companion-client/internal/adapters/oidc"
	"github.com/target/companion-client/internal/data/cryptoutil"
	"github.com/target/companion-client/internal/ports"
)

// IdentityProvider is an identity adapter the application owns for its lifetime.
type IdentityProvider interface {
	ports.IdentityProvider
	// Restore publishes the initial principal, re-establishing a persisted session when possible.
	Restore(ctx context.Context) error
	Close()
}

var (
	_ IdentityProvider = (*oidc.Provider)(nil)
	_ IdentityProvider = (*devauth.Provider)(nil)
)

// IdentityConfig contains configuration for the identity provider.
type IdentityConfig struct {
	Identity   config.IdentityConfig
	Sealer     cryptoutil.Sealer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewIdentityProvider creates the identity provider for the configured mode without restoring a session.
//
//nolint:ireturn // callers choose between adapters at runtime.
func NewIdentityProvider(cfg IdentityConfig) (IdentityProvider, error) {
	switch cfg.Identity.Mode {
	case config.AuthModeMock:
		prov, err := buildDevAuthProvider(cfg)
		if err != nil {
			return nil, err
		}
		return prov, nil
	case config.AuthModeOAuth:
		prov, err := buildOAuthProvider(cfg)
		if err != nil {
			return nil, err
		}
		return prov, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Identity.Mode)
	}
}

// BuildIdentityProvider creates the identity provider and restores its session.
//
//nolint:ireturn // callers choose between adapters at runtime.
func BuildIdentityProvider(ctx context.Context, cfg IdentityConfig) (IdentityProvider, error) {
	prov, err := NewIdentityProvider(cfg)
	if err != nil {
		return nil, err
	}

	if err := prov.Restore(ctx); err != nil {
		prov.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}
	return prov, nil
}

func buildDevAuthProvider(cfg IdentityConfig) (*devauth.Provider, error) {
	dev := cfg.Identity.DevAuth
	users, err := dev.ParsedUsers()
	if err != nil {
		return nil, err
	}
	accounts := make([]devauth.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, devauth.Account{
			Email:       u.Email,
			Password:    u.Password,
			DisplayName: u.DisplayName,
		})
	}

	if cfg.Logger != nil {
		cfg.Logger.Warn("using dev identity provider; do not use in production", "accounts", len(accounts))
	}

	prov, err := devauth.NewProvider(devauth.Config{
		Accounts:          accounts,
		SigningKey:        []byte(dev.SigningKey),
		CredentialTTL:     dev.CredentialTTL,
		MaxFailedAttempts: dev.MaxFailedAttempts,
		LockoutDuration:   dev.LockoutDuration,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create dev identity provider: %w", err)
	}
	return prov, nil
}

func buildOAuthProvider(cfg IdentityConfig) (*oidc.Provider, error) {
	oauth := cfg.Identity.OAuth
	if oauth.DiscoveryURL == "" || oauth.ClientID == "" {
		if cfg.Logger != nil {
			cfg.Logger.Warn("AuthModeOAuth selected but required config missing",
				"discovery_url_empty", oauth.DiscoveryURL == "",
				"client_id_empty", oauth.ClientID == "",
			)
		}
		return nil, errors.New("oauth identity requires OAUTH_DISCOVERY_URL and OAUTH_CLIENT_ID")
	}

	var vault ports.CredentialMirror
	if oauth.SessionFile != "" {
		m, err := filemirror.New(oauth.SessionFile)
		if err != nil {
			return nil, fmt.Errorf("session file: %w", err)
		}
		vault = m
	}

	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:         oauth.ClientID,
		ClientSecret:     oauth.ClientSecret,
		Scope:            oauth.Scope,
		DiscoveryURL:     oauth.DiscoveryURL,
		RegistrationURL:  oauth.RegistrationURL,
		PasswordResetURL: oauth.PasswordResetURL,
		RevocationURL:    oauth.RevocationURL,
		SessionVault:     vault,
		Sealer:           cfg.Sealer,
		HTTPClient:       cfg.HTTPClient,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider: %w", err)
	}
	return prov, nil
}
