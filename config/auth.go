package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the identity provider the client talks to.
type AuthMode string

const (
	// AuthModeOAuth uses an OAuth/OIDC issuer.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses the in-process dev identity provider (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"companion-cli"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`

	// Account endpoints outside the OIDC protocol.
	RegistrationURL  string `env:"REGISTRATION_URL"`
	PasswordResetURL string `env:"PASSWORD_RESET_URL"`
	// RevocationURL overrides the discovered revocation endpoint.
	RevocationURL string `env:"REVOCATION_URL"`

	// SessionFile persists the sealed refresh token between runs. Empty keeps sessions in memory.
	SessionFile string `env:"SESSION_FILE"`
}

// DevAuthConfig controls the dev identity provider.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	// Users seeds accounts as email:password[:display name] entries separated by ';'.
	Users             []string      `env:"USERS"               envDefault:"dev@example.com:devpassword:Dev Learner" envSeparator:";"`
	SigningKey        string        `env:"SIGNING_KEY"`
	CredentialTTL     time.Duration `env:"CREDENTIAL_TTL"      envDefault:"15m"`
	MaxFailedAttempts int           `env:"MAX_FAILED_ATTEMPTS" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION"    envDefault:"1m"`
}

// DevUser is one parsed DevAuthConfig.Users entry.
type DevUser struct {
	Email       string
	Password    string
	DisplayName string
}

// ParsedUsers splits the Users entries. Malformed entries are reported together.
func (c DevAuthConfig) ParsedUsers() ([]DevUser, error) {
	out := make([]DevUser, 0, len(c.Users))
	var bad []string
	for _, raw := range c.Users {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || parts[1] == "" {
			bad = append(bad, raw)
			continue
		}
		u := DevUser{Email: strings.TrimSpace(parts[0]), Password: parts[1]}
		if len(parts) == 3 {
			u.DisplayName = strings.TrimSpace(parts[2])
		}
		out = append(out, u)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid dev users (want email:password[:name]): %s", strings.Join(bad, ", "))
	}
	return out, nil
}

// IdentityConfig groups all identity-related configuration.
type IdentityConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims URLs and fills defaults.
func (c *IdentityConfig) Sanitize() {
	c.OAuth.DiscoveryURL = strings.TrimSpace(c.OAuth.DiscoveryURL)
	c.OAuth.RegistrationURL = strings.TrimSpace(c.OAuth.RegistrationURL)
	c.OAuth.PasswordResetURL = strings.TrimSpace(c.OAuth.PasswordResetURL)
	c.OAuth.RevocationURL = strings.TrimSpace(c.OAuth.RevocationURL)
	c.OAuth.SessionFile = strings.TrimSpace(c.OAuth.SessionFile)
	if c.Mode == "" {
		c.Mode = AuthModeOAuth
	}
	if c.DevAuth.MaxFailedAttempts < 1 {
		c.DevAuth.MaxFailedAttempts = 5
	}
}
