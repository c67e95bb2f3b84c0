package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultPathPrefix is the versioned API prefix.
	DefaultPathPrefix = "/api/v1"
	// DefaultErrorMessageExpr extracts a message from FastAPI-style and generic error bodies.
	DefaultErrorMessageExpr = "detail[0].msg || detail || message || error"

	requestIDHeader = "X-Request-ID"
	maxErrorBody    = 64 << 10
)

// ClientOptions configures Client.
type ClientOptions struct {
	BaseURL string
	// PathPrefix is joined between BaseURL and every request path. Defaults to DefaultPathPrefix.
	PathPrefix string
	// Transport is usually the pipeline's *Transport.
	Transport http.RoundTripper
	Timeout   time.Duration
	// ErrorMessageExpr is a JMESPath expression evaluated against JSON error bodies.
	ErrorMessageExpr string
	Logger           *slog.Logger
}

// Client issues requests through the authorized request pipeline.
type Client struct {
	baseURL    *url.URL
	prefix     string
	http       *http.Client
	messageExp string
	logger     *slog.Logger
}

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// IsUnauthorized reports whether err is a 401 APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// NewClient validates opts and builds a Client with a cookie jar.
func NewClient(opts ClientOptions) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("api base url must be http or https, got %q", base.Scheme)
	}

	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	expr := strings.TrimSpace(opts.ErrorMessageExpr)
	if expr == "" {
		expr = DefaultErrorMessageExpr
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("compile error message expression: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	rt := opts.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "api_client")
	}

	return &Client{
		baseURL:    base,
		prefix:     prefix,
		http:       &http.Client{Transport: rt, Timeout: timeout, Jar: jar},
		messageExp: expr,
		logger:     logger,
	}, nil
}

// Do sends req through the pipeline. It has the same contract as http.Client.Do.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
	return c.http.Do(req)
}

// URL resolves an API path against the base URL and prefix.
func (c *Client) URL(path string) string {
	u := *c.baseURL
	rel, query, _ := strings.Cut(path, "?")
	u.Path = strings.TrimSuffix(u.Path, "/") + c.prefix + "/" + strings.TrimPrefix(rel, "/")
	u.RawQuery = query
	return u.String()
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON encodes in, performs a POST and decodes the JSON response into out. out may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp, req.Header.Get(requestIDHeader))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response, requestID string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       raw,
		RequestID:  requestID,
		Message:    c.errorMessage(raw),
	}
	if c.logger != nil {
		c.logger.Debug("api request failed",
			"status", resp.StatusCode,
			"request_id", requestID,
			"message", apiErr.Message,
		)
	}
	return apiErr
}

// errorMessage extracts a human-readable message from a JSON error body.
func (c *Client) errorMessage(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return strings.TrimSpace(string(raw))
	}
	res, err := jmespath.Search(c.messageExp, data)
	if err != nil || res == nil {
		return ""
	}
	switch v := res.(type) {
	case string:
		return v
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(buf)
	}
}
