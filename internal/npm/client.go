// Package npm is a token-authenticated JSON/HTTP client for the proxy manager's REST API: proxy hosts,
// streams, certificates, access lists, redirection hosts, and dead hosts (§4.4, §6).
package npm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// tokenTTL is kept shorter than the proxy manager's own token expiry so the cache never hands out a token
// the server is about to reject (§4.4).
const tokenTTL = 23 * time.Hour

// RequestTimeout bounds every individual HTTP call per §5's "recommend 30s default".
const RequestTimeout = 30 * time.Second

// Client is a Proxy-Manager API client with a cached auth token and retrying transport.
type Client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client

	tokenMu sync.Mutex
	token   string
	expires time.Time

	certCache certCache
}

// NewClient creates a Client for the proxy manager at baseURL (expected to already be normalized via
// NormalizeURL).
func NewClient(baseURL, email, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		email:    email,
		password: password,
		http: &http.Client{
			Transport: &retryRoundTripper{
				base: http.DefaultTransport,
				newBackoff: func() backoff.BackOff {
					return backoff.NewExponentialBackOff(
						backoff.WithInitialInterval(200*time.Millisecond),
						backoff.WithMaxInterval(2*time.Second),
						backoff.WithMaxElapsedTime(10*time.Second),
					)
				},
			},
		},
	}
}

// retryRoundTripper retries requests that fail with a network-level error (not on HTTP status codes, which
// are the caller's business) using an exponential backoff policy. Grounded on
// github.com/psviderski/uncloud/internal/corrosion's RetryRoundTripper.
type retryRoundTripper struct {
	base       http.RoundTripper
	newBackoff func() backoff.BackOff
}

func (rt *retryRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	roundTrip := func() (*http.Response, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			var opErr *net.OpError
			if isNetOpError(err, &opErr) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}
	boff := backoff.WithContext(rt.newBackoff(), req.Context())
	return backoff.RetryWithData(roundTrip, boff)
}

func isNetOpError(err error, target **net.OpError) bool {
	for err != nil {
		if opErr, ok := err.(*net.OpError); ok {
			*target = opErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = notFoundErr{}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

// ConflictError represents a proxy-manager 4xx response indicating a duplicate domain name or listening
// port (§1, §7 "Upstream conflict").
type ConflictError struct {
	Status int
	Body   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("proxy manager rejected request (status %d): %s", e.Status, e.Body)
}

// authenticate ensures the client holds a non-expired token, refreshing it under a mutex with a
// double-checked expiry so concurrent readers never trigger more than one refresh (§4.4, §5).
func (c *Client) authenticate(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"identity": c.email,
		"secret":   c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tokens", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authenticate: unexpected status %d: %s", resp.StatusCode, respBody)
	}

	var tokenResp struct {
		Token   string `json:"token"`
		Expires string `json:"expires"`
	}
	if err = json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}

	c.token = tokenResp.Token
	c.expires = time.Now().Add(tokenTTL)
	return c.token, nil
}

// do sends an authenticated JSON request and decodes the response body into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	token, err := c.authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("marshal request body: %w", mErr)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return &ConflictError{Status: resp.StatusCode, Body: string(respBody)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err = json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
