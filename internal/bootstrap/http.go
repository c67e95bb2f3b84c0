package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/companion-client/config"
	"github.com/target/companion-client/internal/apiclient"
	"github.com/target/companion-client/internal/ports"
	"github.com/target/companion-client/internal/observability/statsd"
)

// APIClientConfig contains dependencies for the backend API client.
type APIClientConfig struct {
	API         config.APIConfig
	Provider    ports.IdentityProvider
	Credentials ports.CredentialSource
	Navigator   ports.Navigator
	Metrics     statsd.Sink
	// Base is the underlying round tripper. Defaults to http.DefaultTransport.
	Base   http.RoundTripper
	Logger *slog.Logger
}

// BuildAPIClient wires the authorized request pipeline and the client on top of it.
func BuildAPIClient(cfg APIClientConfig) (*apiclient.Client, *apiclient.LoginRedirector, error) {
	if cfg.Navigator == nil {
		return nil, nil, errors.New("navigator is required")
	}

	redirector := apiclient.NewLoginRedirector(cfg.Navigator, cfg.API.LoginPath, cfg.Logger)
	transport, err := apiclient.NewTransport(apiclient.TransportOptions{
		Base:        cfg.Base,
		Provider:    cfg.Provider,
		Credentials: cfg.Credentials,
		Redirector:  redirector,
		Coalesce:    cfg.API.CoalesceRefresh,
		Metrics:     cfg.Metrics,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create api transport: %w", err)
	}

	client, err := apiclient.NewClient(apiclient.ClientOptions{
		BaseURL:          cfg.API.BaseURL,
		PathPrefix:       cfg.API.PathPrefix,
		Transport:        transport,
		Timeout:          cfg.API.Timeout,
		ErrorMessageExpr: cfg.API.ErrorMessageExpr,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create api client: %w", err)
	}
	return client, redirector, nil
}
