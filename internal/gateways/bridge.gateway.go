package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/valyala/fasthttp"
)

// BridgeConfig points at the platform bridge, a sidecar that holds the actual
// messaging platform protocol client and exposes it over HTTP.
type BridgeConfig struct {
	URL             string
	Timeout         time.Duration
	ConnectRetries  int
	RetryDelay      time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int

	// Dial overrides the transport, mainly for in-memory listeners in tests.
	Dial fasthttp.DialFunc
}

type BridgeDialer struct {
	config  BridgeConfig
	client  *fasthttp.Client
	metrics *BridgeMetrics
}

func NewBridgeDialer(config BridgeConfig) (*BridgeDialer, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: bridge url is required", ErrInvalidConfig)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.ConnectRetries < 0 {
		config.ConnectRetries = 0
	}

	client := &fasthttp.Client{
		MaxConnsPerHost:     config.MaxConns,
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxIdleConnDuration: 60 * time.Second,
		ReadBufferSize:      config.ReadBufferSize,
		WriteBufferSize:     config.WriteBufferSize,
		Dial:                config.Dial,
	}

	logger.Info("Bridge dialer initialized", "url", config.URL, "timeout", config.Timeout, "connect_retries", config.ConnectRetries)

	return &BridgeDialer{
		config:  config,
		client:  client,
		metrics: NewBridgeMetrics(),
	}, nil
}

func (d *BridgeDialer) Dial(session Session) Conn {
	return &BridgeConn{dialer: d, session: session}
}

func (d *BridgeDialer) Metrics() *BridgeMetrics {
	return d.metrics
}

// Ping checks the bridge health endpoint.
func (d *BridgeDialer) Ping(ctx context.Context) error {
	_, err := d.do(ctx, fasthttp.MethodGet, "/health", nil)
	return err
}

// BridgeConn is one bridge-side connection. It is not safe for use by more
// than one fulfillment run.
type BridgeConn struct {
	dialer  *BridgeDialer
	session Session

	mu           sync.Mutex
	connectionID string
}

type openConnectionRequest struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneNumber string `json:"phone_number"`
	Session     string `json:"session,omitempty"`
}

type openConnectionResponse struct {
	ConnectionID string `json:"connection_id"`
}

// Connect opens the bridge connection, retrying transient failures up to
// ConnectRetries extra times.
func (c *BridgeConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connectionID != "" {
		return nil
	}

	body, err := json.Marshal(openConnectionRequest{
		APIID:       c.session.APIID,
		APIHash:     c.session.APIHash,
		PhoneNumber: c.session.PhoneNumber,
		Session:     c.session.Handle,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.dialer.config.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.dialer.config.RetryDelay):
			}
		}

		response, err := c.dialer.do(ctx, fasthttp.MethodPost, "/v1/connections", body)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return err
			}
			logger.Warn("Bridge connect failed, retrying", "error", err, "attempt", attempt+1)
			continue
		}

		var resp openConnectionResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if resp.ConnectionID == "" {
			return fmt.Errorf("%w: empty connection id", ErrTransient)
		}

		c.connectionID = resp.ConnectionID
		logger.Debug("Bridge connection opened", "connection_id", resp.ConnectionID, "phone", c.session.PhoneNumber)
		return nil
	}

	return fmt.Errorf("connect failed after %d attempts: %w", c.dialer.config.ConnectRetries+1, lastErr)
}

func (c *BridgeConn) SendCode(ctx context.Context) (string, error) {
	var resp struct {
		PhoneCodeHash string `json:"phone_code_hash"`
	}
	if err := c.call(ctx, "/code", nil, &resp); err != nil {
		return "", err
	}
	return resp.PhoneCodeHash, nil
}

func (c *BridgeConn) SignIn(ctx context.Context, phoneCodeHash, code string) (string, error) {
	req := map[string]string{"phone_code_hash": phoneCodeHash, "code": code}
	var resp struct {
		Session string `json:"session"`
	}
	if err := c.call(ctx, "/sign-in", req, &resp); err != nil {
		return "", err
	}
	return resp.Session, nil
}

func (c *BridgeConn) CreateChannel(ctx context.Context, title string, megagroup bool) (*Channel, error) {
	req := map[string]any{"title": title, "megagroup": megagroup}
	var resp Channel
	if err := c.call(ctx, "/channels", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *BridgeConn) ExportInvite(ctx context.Context, handle string) (string, error) {
	req := map[string]string{"handle": handle}
	var resp struct {
		Link string `json:"link"`
	}
	if err := c.call(ctx, "/invites", req, &resp); err != nil {
		return "", err
	}
	return resp.Link, nil
}

func (c *BridgeConn) SendMessage(ctx context.Context, target, body string) error {
	req := map[string]string{"target": target, "body": body}
	return c.call(ctx, "/messages", req, nil)
}

// Disconnect is idempotent; a never-connected conn is a no-op.
func (c *BridgeConn) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	id := c.connectionID
	c.connectionID = ""
	c.mu.Unlock()

	if id == "" {
		return nil
	}

	_, err := c.dialer.do(ctx, fasthttp.MethodDelete, "/v1/connections/"+id, nil)
	return err
}

func (c *BridgeConn) call(ctx context.Context, action string, req, resp any) error {
	c.mu.Lock()
	id := c.connectionID
	c.mu.Unlock()

	if id == "" {
		return ErrNotConnected
	}

	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	response, err := c.dialer.do(ctx, fasthttp.MethodPost, "/v1/connections/"+id+action, body)
	if err != nil {
		return err
	}

	if resp == nil {
		return nil
	}
	if err := json.Unmarshal(response, resp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// do performs one request and maps the outcome onto the gateway error set.
func (d *BridgeDialer) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.config.URL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(d.config.Timeout)
	}

	start := time.Now()
	if err := d.client.DoDeadline(req, resp, deadline); err != nil {
		err = fmt.Errorf("%w: %v", ErrTransient, err)
		d.metrics.RecordFailure(err)
		return nil, err
	}

	if err := statusError(resp); err != nil {
		d.metrics.RecordFailure(err)
		return nil, err
	}
	d.metrics.RecordSuccess(time.Since(start).Milliseconds())

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func statusError(resp *fasthttp.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == fasthttp.StatusTooManyRequests:
		if retryAfter := string(resp.Header.Peek("Retry-After")); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil {
				return &RateLimitError{RetryAfter: time.Duration(seconds) * time.Second}
			}
		}
		return ErrRateLimited
	case code == fasthttp.StatusUnauthorized || code == fasthttp.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, resp.Body())
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrTransient, code)
	default:
		return fmt.Errorf("%w: status %d, body: %s", ErrRejected, code, resp.Body())
	}
}

// RateLimitError carries the platform's flood-wait hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter extracts the flood-wait hint from err, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
