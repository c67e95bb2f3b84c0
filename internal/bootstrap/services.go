package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/target/companion-client/config"
	"github.com/target/companion-client/internal/apiclient"
	"github.com/target/companion-client/internal/core"
	"github.com/target/companion-client/internal/observability/statsd"
	"github.com/target/companion-client/internal/ports"
	"github.com/target/companion-client/internal/service"
)

// App holds the wired client components for one application lifetime.
type App struct {
	Config      config.AppConfig
	Logger      *slog.Logger
	Identity    IdentityProvider
	Credentials *core.CredentialStore
	Sessions    *service.SessionController
	Redirector  *apiclient.LoginRedirector
	API         *apiclient.Client
	Metrics     statsd.Sink

	metricsClient *statsd.Client
	redisClient   redis.UniversalClient
	unwatch       func()
}

// AppDeps groups dependencies for NewApp.
type AppDeps struct {
	Config    config.AppConfig
	Navigator ports.Navigator
	Logger    *slog.Logger
	// HTTPClient is used for identity provider calls. Optional.
	HTTPClient *http.Client
	// APITransport is the round tripper beneath the request pipeline. Optional.
	APITransport http.RoundTripper
}

// NewApp builds every component and starts the session controller.
func NewApp(ctx context.Context, deps AppDeps) (*App, error) {
	cfg := deps.Config
	logger := deps.Logger
	app := &App{Config: cfg, Logger: logger}

	app.metricsClient = buildMetrics(logger, cfg)
	if app.metricsClient != nil {
		app.Metrics = app.metricsClient
	}

	sealer := CreateSealer(cfg.CredentialCache.EncryptionKey, logger)

	if cfg.CredentialCache.Backend == config.CacheBackendRedis {
		client, err := ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, errors.Join(err, app.Close())
		}
		app.redisClient = client
	}

	store, err := BuildCredentialStore(ctx, CredentialStoreConfig{
		Cache:       cfg.CredentialCache,
		RedisClient: app.redisClient,
		Sealer:      sealer,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Credentials = store

	// Restore runs after the session controller subscribes.
	identity, err := NewIdentityProvider(IdentityConfig{
		Identity:   cfg.Identity,
		Sealer:     sealer,
		HTTPClient: deps.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.Identity = identity

	app.Sessions = service.NewSessionController(service.SessionControllerOptions{
		Provider:    identity,
		Credentials: store,
		Metrics:     app.Metrics,
		Logger:      logger,
	})

	api, redirector, err := BuildAPIClient(APIClientConfig{
		API:         cfg.API,
		Provider:    identity,
		Credentials: store,
		Navigator:   deps.Navigator,
		Metrics:     app.Metrics,
		Base:        deps.APITransport,
		Logger:      logger,
	})
	if err != nil {
		return nil, errors.Join(err, app.Close())
	}
	app.API = api
	app.Redirector = redirector
	app.unwatch = redirector.WatchSession(app.Sessions)

	app.Sessions.Start()
	if err := identity.Restore(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("restore session: %w", err), app.Close())
	}
	return app, nil
}

// Close tears the application down. It is safe to call on a partially built App.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.unwatch != nil {
		a.unwatch()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Identity != nil {
		a.Identity.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis client: %w", err))
		}
	}
	if a.metricsClient != nil {
		if err := a.metricsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildMetrics(logger *slog.Logger, cfg config.AppConfig) *statsd.Client {
	mc := cfg.Observability.Metrics
	if !mc.IsEnabled() {
		return nil
	}
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: mc.StatsdAddress,
		Prefix:  mc.Prefix,
		Logger:  obsLogger,
		GlobalTags: map[string]string{
			"auth_mode":     string(cfg.Identity.Mode),
			"cache_backend": string(cfg.CredentialCache.Backend),
		},
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}
