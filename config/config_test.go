package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Identity.Mode != AuthModeOAuth {
		t.Fatalf("expected oauth mode by default, got %q", cfg.Identity.Mode)
	}
	if cfg.API.PathPrefix != "/api/v1" {
		t.Fatalf("expected /api/v1 prefix, got %q", cfg.API.PathPrefix)
	}
	if cfg.API.LoginPath != "/login" {
		t.Fatalf("expected /login, got %q", cfg.API.LoginPath)
	}
	if cfg.API.CoalesceRefresh {
		t.Fatalf("expected refresh coalescing to be off by default")
	}
	if cfg.CredentialCache.Backend != CacheBackendFile {
		t.Fatalf("expected file backend, got %q", cfg.CredentialCache.Backend)
	}
	if cfg.Observability.Logging.SlogLevel() != slog.LevelInfo {
		t.Fatalf("expected info level")
	}
}

func TestAppConfig_ParseIdentityEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "OAUTH")
	t.Setenv("OAUTH_CLIENT_ID", "companion-web")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_DISCOVERY_URL", " https://login.example.com/.well-known/openid-configuration ")
	t.Setenv("OAUTH_SCOPE", "openid email offline_access")
	t.Setenv("OAUTH_REGISTRATION_URL", "https://login.example.com/accounts/register")
	t.Setenv("OAUTH_PASSWORD_RESET_URL", "https://login.example.com/accounts/reset")
	t.Setenv("OAUTH_SESSION_FILE", "/tmp/companion/session")
	t.Setenv("DEV_AUTH_USERS", "a@example.com:pw1;b@example.com:pw2:Bee")
	t.Setenv("DEV_AUTH_CREDENTIAL_TTL", "5m")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	expected := OAuthConfig{
		ClientID:         "companion-web",
		ClientSecret:     "super-secret",
		Scope:            "openid email offline_access",
		DiscoveryURL:     "https://login.example.com/.well-known/openid-configuration",
		RegistrationURL:  "https://login.example.com/accounts/register",
		PasswordResetURL: "https://login.example.com/accounts/reset",
		SessionFile:      "/tmp/companion/session",
	}
	if cfg.Identity.Mode != AuthModeOAuth {
		t.Fatalf("expected oauth mode, got %q", cfg.Identity.Mode)
	}
	if !reflect.DeepEqual(cfg.Identity.OAuth, expected) {
		t.Fatalf("unexpected oauth configuration:\nexpected: %#v\ngot:      %#v", expected, cfg.Identity.OAuth)
	}
	if cfg.Identity.DevAuth.CredentialTTL != 5*time.Minute {
		t.Fatalf("expected 5m credential ttl, got %s", cfg.Identity.DevAuth.CredentialTTL)
	}

	users, err := cfg.Identity.DevAuth.ParsedUsers()
	if err != nil {
		t.Fatalf("parse users: %v", err)
	}
	wantUsers := []DevUser{
		{Email: "a@example.com", Password: "pw1"},
		{Email: "b@example.com", Password: "pw2", DisplayName: "Bee"},
	}
	if !reflect.DeepEqual(users, wantUsers) {
		t.Fatalf("unexpected users: %#v", users)
	}
}

func TestAppConfig_InvalidEnums(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "auth mode", key: "AUTH_MODE", val: "saml"},
		{name: "cache backend", key: "CREDENTIAL_CACHE_BACKEND", val: "etcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			var cfg AppConfig
			if err := env.Parse(&cfg); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestDevAuthConfig_ParsedUsersRejectsMalformed(t *testing.T) {
	cfg := DevAuthConfig{Users: []string{"ok@example.com:pw", "missing-password", ":pw", " "}}
	if _, err := cfg.ParsedUsers(); err == nil {
		t.Fatalf("expected malformed entries to fail")
	}
}

func TestAPIConfig_Sanitize(t *testing.T) {
	cfg := APIConfig{
		BaseURL:   " https://api.example.com/ ",
		Timeout:   -1,
		LoginPath: "signin",
	}
	cfg.Sanitize()

	if cfg.BaseURL != "https://api.example.com" {
		t.Fatalf("expected trimmed base url, got %q", cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.Timeout)
	}
	if cfg.LoginPath != "/signin" {
		t.Fatalf("expected rooted login path, got %q", cfg.LoginPath)
	}
}

func TestCredentialCacheConfig_Sanitize(t *testing.T) {
	cfg := CredentialCacheConfig{RedisKey: " ", TTL: -time.Second}
	cfg.Sanitize()

	if cfg.Backend != CacheBackendFile {
		t.Fatalf("expected file backend, got %q", cfg.Backend)
	}
	if cfg.RedisKey != "companion:credential" {
		t.Fatalf("expected default key, got %q", cfg.RedisKey)
	}
	if cfg.TTL != 0 {
		t.Fatalf("expected ttl clamped to zero, got %s", cfg.TTL)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " ",
	}

	cfg.Sanitize()

	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}
	if cfg.Prefix != "companion" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
	}

	cfg.Sanitize()

	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected address to be trimmed, got %q", cfg.StatsdAddress)
	}
}

func TestObservabilityLoggingConfig_Sanitize(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := ObservabilityLoggingConfig{Level: tt.in}
		cfg.Sanitize()
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("level %q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}
