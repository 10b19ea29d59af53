// Package api is the bearer-authenticated client for the generation backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/sitegen/internal/logging"
	"github.com/raysh454/sitegen/internal/webclient"
)

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultGenerateTimeout = 300 * time.Second
)

// Client talks to the backend REST API through a webclient.WebClient. The
// web client is expected to attach the bearer token (see webclient "oauth2").
type Client struct {
	baseURL string
	wc      webclient.WebClient
	logger  logging.Logger

	requestTimeout  time.Duration
	generateTimeout time.Duration
}

// Option customizes the client.
type Option func(*Client)

// WithRequestTimeout bounds every call except GenerateWebsite.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithGenerateTimeout bounds GenerateWebsite (300s by default).
func WithGenerateTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.generateTimeout = d
		}
	}
}

// New constructs a Client for baseURL.
func New(baseURL string, wc webclient.WebClient, logger logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		wc:              wc,
		logger:          logger.With(logging.Field{Key: "component", Value: "api"}),
		requestTimeout:  defaultRequestTimeout,
		generateTimeout: defaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
// Any other outcome is returned as an *apperr.Error.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, query url.Values, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &webclient.Request{
		Method:  method,
		URL:     c.endpoint(path, query),
		Headers: http.Header{"Accept": []string{"application/json"}},
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		req.Body = body
		req.Headers.Set("Content-Type", "application/json")
	}

	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		classified := classifyTransportError(ctx, err, timeout)
		c.logger.Warn("request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "path", Value: path},
			logging.Err(classified))
		return classified
	}

	if !resp.OK() {
		apiErr := errorFromResponse(resp)
		c.logger.Info("backend returned error",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "message", Value: apiErr.Message})
		return apiErr
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
