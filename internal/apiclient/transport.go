// Package apiclient is the authorized request pipeline for the learning-companion backend.
//
// Transport attaches a bearer credential to every outbound request and reacts to 401 responses by
// clearing the credential store and redirecting to login. Client layers JSON helpers and typed
// endpoint wrappers on top of it.
package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/observability/metrics"
	"github.com/target/companion-client/internal/observability/statsd"
	"github.com/target/companion-client/internal/ports"
)

// TransportOptions groups dependencies for Transport.
type TransportOptions struct {
	// Base performs the actual round trip. Defaults to http.DefaultTransport.
	Base        http.RoundTripper
	Provider    ports.IdentityProvider
	Credentials ports.CredentialSource
	// Redirector handles 401 responses. Nil disables navigation; the store is still cleared.
	Redirector *LoginRedirector
	// Coalesce shares one in-flight mint between concurrent requests.
	Coalesce bool
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// Transport is an http.RoundTripper that runs the request and response phases of the pipeline.
// It never retries.
type Transport struct {
	base       http.RoundTripper
	provider   ports.IdentityProvider
	creds      ports.CredentialSource
	redirector *LoginRedirector
	coalesce   bool
	group      singleflight.Group
	metrics    statsd.Sink
	logger     *slog.Logger
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport validates opts and builds a Transport.
func NewTransport(opts TransportOptions) (*Transport, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "api_transport")
	}
	return &Transport{
		base:       base,
		provider:   opts.Provider,
		creds:      opts.Credentials,
		redirector: opts.Redirector,
		coalesce:   opts.Coalesce,
		metrics:    opts.Metrics,
		logger:     logger,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	out := req.Clone(ctx)

	cred, source := t.credentialFor(ctx)
	metrics.EmitRequestAuth(t.metrics, source)
	if token := cred.Token(); token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		t.onUnauthorized(ctx, req)
	}
	return resp, nil
}

// credentialFor resolves the credential for one request: a fresh mint when a principal is known,
// then the store's last value, then nothing.
func (t *Transport) credentialFor(ctx context.Context) (domainauth.Credential, string) {
	if _, ok := t.provider.CurrentPrincipal(); ok {
		cred, err := t.mint(ctx)
		if err == nil && !cred.IsEmpty() {
			t.creds.Set(ctx, cred)
			return cred, metrics.SourceMinted
		}
		if err != nil && t.logger != nil {
			t.logger.DebugContext(ctx, "request mint failed, using stored credential", "error", err)
		}
	}
	if cred, ok := t.creds.Get(); ok {
		return cred, metrics.SourceStored
	}
	return "", metrics.SourceNone
}

func (t *Transport) mint(ctx context.Context) (domainauth.Credential, error) {
	start := time.Now()
	var (
		cred domainauth.Credential
		err  error
	)
	if t.coalesce {
		var v any
		v, err, _ = t.group.Do("mint", func() (any, error) {
			// Detach from the first caller so its cancellation does not fail the others.
			return t.provider.MintFreshCredential(context.WithoutCancel(ctx), true)
		})
		if err == nil {
			cred, _ = v.(domainauth.Credential)
		}
	} else {
		cred, err = t.provider.MintFreshCredential(ctx, true)
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitCredentialMint(t.metrics, metrics.MintMetric{
		Trigger:  metrics.TriggerRequest,
		Forced:   true,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	})
	return cred, err
}

func (t *Transport) onUnauthorized(ctx context.Context, req *http.Request) {
	t.creds.Clear(ctx)
	redirected := t.redirector.Trigger()
	metrics.EmitUnauthorized(t.metrics, redirected)
	if t.logger != nil {
		t.logger.InfoContext(ctx, "backend rejected credential",
			"method", req.Method,
			"path", req.URL.Path,
			"redirected", redirected,
		)
	}
}
