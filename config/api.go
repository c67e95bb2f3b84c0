package config

import (
	"strings"
	"time"
)

// APIConfig contains backend API client configuration.
type APIConfig struct {
	// BaseURL is the backend origin, e.g. https://companion.example.com.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8000"`

	// PathPrefix is the versioned API prefix joined to every request path.
	PathPrefix string `env:"PATH_PREFIX" envDefault:"/api/v1"`

	// Timeout bounds each backend request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`

	// LoginPath is the login entry point redirected to on 401.
	LoginPath string `env:"LOGIN_PATH" envDefault:"/login"`

	// ErrorMessageExpr is a JMESPath expression that extracts a message from error bodies.
	ErrorMessageExpr string `env:"ERROR_MESSAGE_EXPR" envDefault:"detail[0].msg || detail || message || error"`

	// CoalesceRefresh shares one in-flight credential mint between concurrent requests.
	CoalesceRefresh bool `env:"COALESCE_REFRESH" envDefault:"false"`
}

// Sanitize applies guardrails to API configuration values.
func (c *APIConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.PathPrefix = strings.TrimSpace(c.PathPrefix)
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LoginPath = strings.TrimSpace(c.LoginPath); c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if !strings.HasPrefix(c.LoginPath, "/") {
		c.LoginPath = "/" + c.LoginPath
	}
	c.ErrorMessageExpr = strings.TrimSpace(c.ErrorMessageExpr)
}
