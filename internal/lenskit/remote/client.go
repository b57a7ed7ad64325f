// Package remote implements the lenskit runtime interfaces against a lens
// runtime provider reachable over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/smazurov/lensnode/internal/lenskit"
	"github.com/smazurov/lensnode/internal/logging"
	"github.com/smazurov/lensnode/internal/version"
)

// Client talks to the runtime provider. It implements lenskit.Bootstrapper.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetryMax sets how many times a failed call is retried. GET, PUT and
// DELETE retry on 5xx and transport errors; POST only when the connection
// could not be made, since the provider may already have acted on it.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

// NewClient creates a client for the provider at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	logger := logging.GetLogger("runtime")

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type methodKey struct{}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if method, _ := ctx.Value(methodKey{}).(string); method == http.MethodPost {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		var opErr *net.OpError
		return errors.As(err, &opErr) && opErr.Op == "dial", nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type bootstrapResponse struct {
	RuntimeID string `json:"runtime_id"`
}

// Bootstrap exchanges the API token for a runtime.
func (c *Client) Bootstrap(ctx context.Context, apiToken string) (lenskit.Runtime, error) {
	if apiToken == "" {
		return nil, fmt.Errorf("bootstrap: empty api token: %w", lenskit.ErrUnauthorized)
	}

	var resp bootstrapResponse
	if err := c.do(ctx, apiToken, http.MethodPost, "/v1/runtime", nil, &resp); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	c.logger.Info("Runtime bootstrapped", "runtime_id", resp.RuntimeID)
	return &runtime{client: c, token: apiToken, id: resp.RuntimeID}, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	ctx = context.WithValue(ctx, methodKey{}, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

type errorBody struct {
	Message string `json:"message"`
}

func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&eb)
	msg := eb.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", lenskit.ErrUnauthorized, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", lenskit.ErrNotFound, msg)
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
}

func escape(id string) string {
	return url.PathEscape(id)
}
