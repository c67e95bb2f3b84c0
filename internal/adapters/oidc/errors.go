package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/target/companion-client/internal/domain/auth"
	"golang.org/x/oauth2"
)

// accountError is the JSON error body returned by the account endpoints and by most issuers.
type accountError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// classify maps a transport or OAuth2 failure onto an identity error kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *domainauth.IdentityError
	if errors.As(err, &ie) {
		return err
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return domainauth.NewIdentityError(kindFor(status, re.ErrorCode, re.ErrorDescription), op, err)
	}

	if isNetworkError(err) {
		return domainauth.NewIdentityError(domainauth.KindNetworkUnavailable, op, err)
	}
	return domainauth.NewIdentityError(domainauth.KindUnknown, op, err)
}

// kindFor decides the kind from an HTTP status, an error code and its description.
// Codes follow RFC 6749 plus the account-endpoint vocabulary; descriptions cover issuers that
// report every password-grant failure as invalid_grant.
func kindFor(status int, code, description string) domainauth.ErrorKind {
	code = strings.ToLower(strings.TrimSpace(code))
	desc := strings.ToLower(description)

	switch code {
	case "email_in_use", "email_exists", "user_exists":
		return domainauth.KindEmailInUse
	case "invalid_email":
		return domainauth.KindInvalidEmail
	case "user_not_found", "account_not_found", "no_such_account":
		return domainauth.KindNoSuchAccount
	case "account_disabled", "user_disabled":
		return domainauth.KindAccountDisabled
	case "too_many_attempts", "slow_down":
		return domainauth.KindTooManyAttempts
	case "invalid_grant":
		switch {
		case strings.Contains(desc, "disabled"):
			return domainauth.KindAccountDisabled
		case strings.Contains(desc, "locked"), strings.Contains(desc, "too many"):
			return domainauth.KindTooManyAttempts
		case strings.Contains(desc, "not found"), strings.Contains(desc, "no such"):
			return domainauth.KindNoSuchAccount
		default:
			return domainauth.KindWrongPassword
		}
	case "invalid_request":
		if strings.Contains(desc, "email") || strings.Contains(desc, "username") {
			return domainauth.KindInvalidEmail
		}
	}

	switch status {
	case http.StatusTooManyRequests:
		return domainauth.KindTooManyAttempts
	case http.StatusConflict:
		return domainauth.KindEmailInUse
	case http.StatusNotFound:
		return domainauth.KindNoSuchAccount
	case http.StatusForbidden:
		return domainauth.KindAccountDisabled
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domainauth.KindNetworkUnavailable
	}
	return domainauth.KindUnknown
}

func isInvalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re) && strings.EqualFold(re.ErrorCode, "invalid_grant")
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// postAccount sends a JSON request to an account endpoint and maps failures to identity errors.
func (p *Provider) postAccount(ctx context.Context, op, endpoint string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domainauth.NewIdentityError(domainauth.KindUnknown, op, fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domainauth.NewIdentityError(domainauth.KindUnknown, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.config.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	return responseError(op, resp)
}

// revoke calls the RFC 7009 revocation endpoint.
func (p *Provider) revoke(ctx context.Context, token, hint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", hint)
	if p.config.ClientSecret == "" {
		form.Set("client_id", p.config.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.config.ClientSecret != "" {
		req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return responseError("sign_out", resp)
}

func responseError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var ae accountError
	_ = json.Unmarshal(raw, &ae)

	cause := fmt.Errorf("%s returned %d", op, resp.StatusCode)
	if ae.Code != "" {
		cause = fmt.Errorf("%s returned %d: %s", op, resp.StatusCode, ae.Code)
	}
	return domainauth.NewIdentityError(kindFor(resp.StatusCode, ae.Code, ae.Description), op, cause)
}
