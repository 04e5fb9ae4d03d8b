// Package apiclient implements the authenticated HTTP client for the
// ISP-Compare API. It attaches the stored bearer credential to every
// request and transparently recovers a single authorization failure per
// request through a single-flight credential refresh: concurrent 401s
// share one refresh call and are replayed in arrival order once it
// settles.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ispcompare/tariff-agent/internal/agent"
	"github.com/ispcompare/tariff-agent/internal/credentials"
	"github.com/ispcompare/tariff-agent/internal/telemetry"
)

// Config controls Client behavior.
type Config struct {
	// BaseURL is the API root, e.g. "https://compare.example.com/api".
	BaseURL string
	// Timeout bounds each individual HTTP attempt. Zero means the
	// transport default.
	Timeout time.Duration
	// OnAuthExpired is invoked once per failed refresh, after the stored
	// credential has been cleared. The application uses it to route the
	// user back to the login entry point.
	OnAuthExpired func()
	// Logger is optional; a no-op logger is used when nil.
	Logger *zap.Logger
}

// Client issues authenticated requests and owns the refresh state
// machine. Safe for concurrent use.
type Client struct {
	baseURL       string
	http          *http.Client
	creds         *credentials.Holder
	onAuthExpired func()
	logger        *zap.Logger

	mu         sync.Mutex
	refreshing bool
	pending    []*pendingCall
}

// call is a replayable request descriptor.
type call struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	retried bool
}

// pendingCall parks a 401-failed request until the in-flight refresh
// settles. The buffered channel lets the refresh owner deliver the
// outcome even if the waiter already gave up on its context.
type pendingCall struct {
	call *call
	ctx  context.Context
	done chan callResult
}

type callResult struct {
	status  int
	payload []byte
	err     error
}

// New constructs a Client. The cookie jar carries the http-only refresh
// cookie issued at login, which the refresh endpoint relies on.
func New(cfg Config, creds *credentials.Holder) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api base url must be set")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	telemetry.Init()
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		creds:         creds,
		onAuthExpired: cfg.OnAuthExpired,
		logger:        logger,
	}, nil
}

// Get issues an authenticated GET and decodes the 2xx body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch issues an authenticated PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}
	cl := &call{method: method, path: path, query: query, body: encoded}

	status, payload, err := c.send(ctx, cl)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		status, payload, err = c.recover401(ctx, cl)
		if err != nil {
			return err
		}
	}
	return decodeResponse(status, payload, out)
}

// send performs one HTTP attempt with the current credential attached.
func (c *Client) send(ctx context.Context, cl *call) (int, []byte, error) {
	u := c.baseURL + cl.path
	if len(cl.query) > 0 {
		u += "?" + cl.query.Encode()
	}
	var reader io.Reader
	if cl.body != nil {
		reader = bytes.NewReader(cl.body)
	}
	req, err := http.NewRequestWithContext(ctx, cl.method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.creds.Token(ctx)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{URL: u, Err: err}
	}
	telemetry.ObserveAPIRequest(cl.method, resp.StatusCode, time.Since(start))
	return resp.StatusCode, payload, nil
}

// recover401 handles an authorization failure for a request that has not
// been retried yet: join the in-flight refresh queue, or become the
// refresh owner. At most one refresh is ever in flight.
func (c *Client) recover401(ctx context.Context, cl *call) (int, []byte, error) {
	if cl.retried {
		return 0, nil, &AuthError{Detail: "request rejected again after credential refresh"}
	}

	c.mu.Lock()
	if c.refreshing {
		p := &pendingCall{call: cl, ctx: ctx, done: make(chan callResult, 1)}
		c.pending = append(c.pending, p)
		c.mu.Unlock()
		telemetry.ObserveRefreshQueueWait()
		select {
		case res := <-p.done:
			return res.status, res.payload, res.err
		case <-ctx.Done():
			// Abandon the wait; the refresh runs to completion for the
			// remaining waiters.
			return 0, nil, fmt.Errorf("waiting for credential refresh: %w", ctx.Err())
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	// The refresh outcome is shared with every queued waiter, so it runs
	// to completion even if the owner's context is cancelled mid-flight.
	refreshErr := c.refresh(context.WithoutCancel(ctx))

	c.mu.Lock()
	queued := c.pending
	c.pending = nil
	c.refreshing = false
	c.mu.Unlock()

	if refreshErr != nil {
		telemetry.ObserveTokenRefresh("failure")
		c.logger.Warn("credential refresh failed", zap.Error(refreshErr))
		if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
			c.logger.Error("clear credential after failed refresh", zap.Error(err))
		}
		authErr := &AuthError{Detail: "credential refresh failed", Err: refreshErr}
		for _, p := range queued {
			p.done <- callResult{err: authErr}
		}
		if c.onAuthExpired != nil {
			c.onAuthExpired()
		}
		return 0, nil, authErr
	}

	telemetry.ObserveTokenRefresh("success")
	c.logger.Debug("credential refreshed", zap.Int("queued", len(queued)))

	cl.retried = true
	status, payload, err := c.send(ctx, cl)
	c.release(queued)
	if err != nil {
		return 0, nil, err
	}
	if status == http.StatusUnauthorized {
		return 0, nil, &AuthError{Detail: "request rejected again after credential refresh"}
	}
	return status, payload, nil
}

// release replays queued requests serially in FIFO arrival order with
// the refreshed credential and delivers each outcome to its waiter.
func (c *Client) release(queued []*pendingCall) {
	for _, p := range queued {
		if p.ctx.Err() != nil {
			p.done <- callResult{err: fmt.Errorf("queued request abandoned: %w", p.ctx.Err())}
			continue
		}
		p.call.retried = true
		status, payload, err := c.send(p.ctx, p.call)
		if err == nil && status == http.StatusUnauthorized {
			p.done <- callResult{err: &AuthError{Detail: "request rejected again after credential refresh"}}
			continue
		}
		p.done <- callResult{status: status, payload: payload, err: err}
	}
}

// refresh exchanges the http-only refresh cookie for a new credential
// and stores it. No bearer header is attached.
func (c *Client) refresh(ctx context.Context) error {
	u := c.baseURL + "/auth/refresh"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{URL: u, Err: err}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{URL: u, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("refresh rejected with status %d: %s", resp.StatusCode, parseDetail(payload))
	}
	var tok agent.TokenResponse
	if err := json.Unmarshal(payload, &tok); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("refresh response carried no access token")
	}
	return c.creds.Set(context.WithoutCancel(ctx), tok.AccessToken)
}

// decodeResponse maps a settled non-401 response onto the error
// taxonomy, decoding 2xx bodies into out.
func decodeResponse(status int, payload []byte, out any) error {
	switch {
	case status >= 200 && status < 300:
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode response body: %w", err)
		}
		return nil
	case status == http.StatusUnprocessableEntity:
		return parseValidationError(payload)
	default:
		return &HTTPError{StatusCode: status, Detail: parseDetail(payload)}
	}
}
