// Package client provides the HTTP client for the document analysis backend.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitwang05/lexreview/internal/logging"
	"github.com/vitwang05/lexreview/internal/metrics"
	"github.com/vitwang05/lexreview/pkg/protocol"
	"github.com/vitwang05/lexreview/pkg/retry"
)

// TokenSource yields the bearer token of the active session, or "" when logged out.
// It is consulted for every request, never cached by the client.
type TokenSource interface {
	CurrentToken() string
}

// Client talks to the analysis backend.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	timeout     time.Duration
	longTimeout time.Duration
	tokens      TokenSource
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	// Timeout bounds listing, delete and login calls.
	Timeout time.Duration
	// LongTimeout bounds upload, analysis and export calls.
	LongTimeout time.Duration
	RetryConfig retry.Config
	Tokens      TokenSource
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.LongTimeout == 0 {
		cfg.LongTimeout = 15 * time.Minute
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		timeout:     cfg.Timeout,
		longTimeout: cfg.LongTimeout,
		tokens:      cfg.Tokens,
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ErrNoSession is returned by calls that need an authenticated session when none is active.
var ErrNoSession = errors.New("no active session")

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Detail, e.StatusCode)
	}
	return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
}

// AsStatus checks if an error is a StatusError and returns it.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsNotFound reports a 404 from the backend.
func IsNotFound(err error) bool {
	se, ok := AsStatus(err)
	return ok && se.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports a missing session or a 401/403 from the backend.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrNoSession) {
		return true
	}
	se, ok := AsStatus(err)
	return ok && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden)
}

// Detail returns the backend's detail message carried by err, if any.
func Detail(err error) string {
	if se, ok := AsStatus(err); ok {
		return se.Detail
	}
	return ""
}

func (c *Client) currentToken() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.CurrentToken()
}

// requireSession fails fast for calls that must not reach the backend anonymously.
func (c *Client) requireSession(op string) error {
	if c.currentToken() == "" {
		return fmt.Errorf("%s: %w", op, ErrNoSession)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Accept", "application/json")
	if token := c.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and returns the response for 2xx statuses. Any other status is turned
// into a StatusError and the body is closed.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(op, "error", time.Since(start))
		logging.Debug("request failed",
			zap.String("op", op),
			zap.String("request_id", req.Header.Get("X-Request-ID")),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordRequest(op, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))
	logging.Debug("request completed",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &StatusError{Op: op, StatusCode: resp.StatusCode}
	var errResp protocol.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil {
		se.Detail = errResp.Message()
	}
	return nil, se
}

// transient marks transport failures and 5xx responses for another attempt.
func transient(err error) error {
	if se, ok := AsStatus(err); ok && se.StatusCode < 500 {
		return err
	}
	return retry.Transient(err)
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := retry.Do(ctx, c.retryConfig, func() (struct{}, error) {
		req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			return struct{}{}, err
		}
		resp, err := c.do(op, req)
		if err != nil {
			return struct{}{}, transient(err)
		}
		defer resp.Body.Close()

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("%s: decode response: %w", op, err)
		}
		return struct{}{}, nil
	})
	return err
}

// cancelOnClose releases a request context once the caller is done with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
