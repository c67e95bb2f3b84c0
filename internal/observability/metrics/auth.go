// Package metrics emits the client's authentication metrics to a statsd.Sink.
package metrics

import (
	"strconv"
	"time"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	obserrors "github.com/target/companion-client/internal/observability/errors"
	"github.com/target/companion-client/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Mint triggers.
const (
	TriggerLogin        = "login"
	TriggerRegister     = "register"
	TriggerNotification = "notification"
	TriggerRequest      = "request"
)

// Credential sources for outbound requests.
const (
	SourceMinted = "minted"
	SourceStored = "stored"
	SourceNone   = "none"
)

// MintMetric captures one credential mint attempt.
type MintMetric struct {
	Trigger  string
	Forced   bool
	Result   string
	Duration time.Duration
	Err      error
}

// EmitCredentialMint emits credential.mint and its duration.
func EmitCredentialMint(sink statsd.Sink, in MintMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"trigger": in.Trigger,
		"forced":  strconv.FormatBool(in.Forced),
		"result":  in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("credential.mint", 1, tags)
	if in.Duration > 0 {
		sink.Timing("credential.mint.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRequestAuth records which credential source an outbound request used.
func EmitRequestAuth(sink statsd.Sink, source string) {
	if sink == nil {
		return
	}
	sink.Count("request.auth", 1, map[string]string{"source": source})
}

// EmitUnauthorized records a backend authorization failure.
func EmitUnauthorized(sink statsd.Sink, redirected bool) {
	if sink == nil {
		return
	}
	sink.Count("response.unauthorized", 1, map[string]string{"redirected": strconv.FormatBool(redirected)})
}

// EmitSessionTransition records a session state change.
func EmitSessionTransition(sink statsd.Sink, from, to domainauth.SessionState) {
	if sink == nil {
		return
	}
	sink.Count("session.transition", 1, map[string]string{
		"from": from.String(),
		"to":   to.String(),
	})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
