// Package ado is a client for the Azure DevOps REST API: work items,
// pull requests, comment threads and repository items.
package ado

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

// APIVersion is the REST API version sent with every request.
const APIVersion = "7.0"

// Client talks to the Azure DevOps REST API with a personal access token.
type Client struct {
	baseURL    string
	pat        string
	httpClient *http.Client
	retry      shiperrors.RetryConfig
	verbose    bool
	logger     *slog.Logger
}

// ClientOption is a functional option for configuring Client.
type ClientOption func(*Client)

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryConfig overrides the 429/5xx retry policy.
func WithRetryConfig(rc shiperrors.RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = rc
	}
}

// NewClient creates an Azure DevOps client. pat is the resolved token
// (see credentials.ResolveADOToken); cfg supplies the API base URL.
func NewClient(cfg *config.ADOConfig, pat string, verbose bool, opts ...ClientOption) (*Client, error) {
	if pat == "" {
		return nil, shiperrors.NewConfigError("ado.pat", "Azure DevOps PAT is required (set ADO_PAT or run 'shipwright auth login')")
	}

	base := "https://dev.azure.com"
	if cfg != nil && cfg.BaseURL != "" {
		base = cfg.BaseURL
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		pat:        pat,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      shiperrors.DefaultRetryConfig(),
		verbose:    verbose,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// projectURL builds {base}/{org}/{project}/_apis/{path}?api-version=7.0&{query}.
func (c *Client) projectURL(org, project, path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", APIVersion)
	return c.baseURL + "/" + url.PathEscape(org) + "/" + url.PathEscape(project) + "/_apis/" + path + "?" + query.Encode()
}

// request describes a single REST call.
type request struct {
	operation   string
	resource    string
	method      string
	url         string
	body        any
	contentType string
}

// do executes req, retrying rate-limited and transient failures, and
// decodes a successful JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
	}

	body, err := shiperrors.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		return c.send(ctx, req, payload)
	})
	if err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return shiperrors.NewADOErrorWithCause(req.operation, req.resource, "failed to parse response", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req request, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	// Basic auth with an empty user name: base64(":" + pat)
	auth := base64.StdEncoding.EncodeToString([]byte(":" + c.pat))
	httpReq.Header.Set("Authorization", "Basic "+auth)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		ct := req.contentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("Content-Type", ct)
	}

	c.logDebug("azure devops request", "operation", req.operation, "method", req.method, "url", req.url)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, shiperrors.NewADOErrorWithCause(req.operation, req.resource, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, shiperrors.NewADOErrorWithCause(req.operation, req.resource, "failed to read response body", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	adoErr := handleHTTPError(req.operation, req.resource, resp.StatusCode, body)
	if resp.StatusCode == http.StatusTooManyRequests {
		adoErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logDebug("rate limited", "operation", req.operation, "retry_after", adoErr.RetryAfter)
	}
	return nil, adoErr
}

// handleHTTPError maps a non-2xx response to an ADOError.
func handleHTTPError(operation, resource string, statusCode int, body []byte) *shiperrors.ADOError {
	var msg string
	switch statusCode {
	case http.StatusUnauthorized:
		msg = "authentication failed: check your ADO_PAT token"
	case http.StatusForbidden:
		msg = "access denied: check your ADO_PAT token permissions"
	case http.StatusNotFound:
		msg = "not found: check the organization, project and ID"
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded"
	default:
		var errResp struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			msg = errResp.Message
		} else {
			msg = http.StatusText(statusCode)
		}
	}
	return shiperrors.NewADOErrorWithStatus(operation, resource, statusCode, msg)
}

// parseRetryAfter extracts the delay from a Retry-After header.
// Returns 0 if the header is absent or invalid.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}

	return 0
}

func (c *Client) logDebug(msg string, args ...any) {
	if c.verbose {
		c.logger.Debug(msg, args...)
	}
}
