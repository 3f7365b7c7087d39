package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"siem-console/system"
)

// Backend endpoints
const (
	EndpointLogin     = "/api/auth/login"
	EndpointVerify    = "/api/auth/verify"
	EndpointDashboard = "/api/dashboard"
	EndpointLogs      = "/api/dashboard/logs"
	EndpointHealth    = "/api/health"
)

// TokenSource gives the gateway read-only access to the current token
type TokenSource interface {
	Token() string
}

// GatewayConfig configures a Gateway
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	// OnUnauthorized runs when a request that carried a bearer token is
	// answered with 401, before the error is returned.
	OnUnauthorized func()
	// Transport overrides the HTTP transport (tests)
	Transport http.RoundTripper
}

// Gateway is the only component that talks to the backend. It attaches the
// bearer token, enforces the request timeout and maps failures onto the
// error taxonomy. It never retries.
type Gateway struct {
	baseURL        string
	timeout        time.Duration
	tokens         TokenSource
	onUnauthorized func()
	client         *http.Client
	log            *zap.SugaredLogger
}

// NewGateway creates a Gateway
func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = system.DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Gateway{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		timeout:        timeout,
		tokens:         cfg.Tokens,
		onUnauthorized: cfg.OnUnauthorized,
		// Deadline comes from the request context so that a timeout can
		// be told apart from other transport errors.
		client: &http.Client{Transport: transport},
		log:    system.Named("gateway"),
	}
}

// SetTokenSource wires the credential store after construction
func (g *Gateway) SetTokenSource(t TokenSource) { g.tokens = t }

// SetUnauthorizedHandler wires the session's logout after construction
func (g *Gateway) SetUnauthorizedHandler(fn func()) { g.onUnauthorized = fn }

// Timeout returns the per-request timeout
func (g *Gateway) Timeout() time.Duration { return g.timeout }

type requestOptions struct {
	bearer    string
	setBearer bool
	query     map[string]string
}

// RequestOption tweaks a single request
type RequestOption func(*requestOptions)

// WithBearer presents the given token instead of the stored one
func WithBearer(token string) RequestOption {
	return func(o *requestOptions) {
		o.bearer = token
		o.setBearer = true
	}
}

// WithQuery adds query parameters; empty values are skipped
func WithQuery(params map[string]string) RequestOption {
	return func(o *requestOptions) {
		o.query = params
	}
}

// Request issues one call and returns the raw JSON body on success
func (g *Gateway) Request(ctx context.Context, method, endpoint string, body any, opts ...RequestOption) (json.RawMessage, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: "request body could not be encoded", Err: err}
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reader)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid request", Err: err}
	}
	if len(o.query) > 0 {
		q := req.URL.Query()
		for k, v := range o.query {
			if v != "" {
				q.Set(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	token := o.bearer
	if !o.setBearer && g.tokens != nil {
		token = g.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			g.log.Warnw("request timed out", "method", method, "endpoint", endpoint, "request_id", requestID, "timeout", g.timeout)
			return nil, &Error{Kind: KindTimeout, Message: fmt.Sprintf("Request timed out after %s", g.timeout), Err: err}
		}
		g.log.Warnw("request failed", "method", method, "endpoint", endpoint, "request_id", requestID, "error", err)
		return nil, &Error{Kind: KindNetwork, Message: "Network error. Please check if the backend server is running.", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "Failed to read response from backend", Err: err}
	}

	g.log.Debugw("request completed", "method", method, "endpoint", endpoint, "status", resp.StatusCode,
		"request_id", requestID, "latency", time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		// a refusal of a token that has since been replaced says nothing
		// about the current session
		if g.tokens != nil && g.tokens.Token() == token {
			g.log.Infow("bearer token refused, invalidating session", "endpoint", endpoint, "request_id", requestID)
			if g.onUnauthorized != nil {
				g.onUnauthorized()
			}
		} else {
			g.log.Infow("refused bearer token is no longer current, session kept", "endpoint", endpoint, "request_id", requestID)
		}
		return nil, &Error{Kind: KindAuthExpired, Status: resp.StatusCode, Message: "Session expired. Please login again."}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(data)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
			if msg == "" {
				msg = "An error occurred"
			}
		}
		kind := KindServer
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			kind = KindAuthRejected
		}
		return nil, &Error{Kind: kind, Status: resp.StatusCode, Message: msg}
	}

	if !json.Valid(data) {
		return nil, &Error{Kind: KindServer, Status: resp.StatusCode, Message: "Backend returned a malformed response"}
	}
	return json.RawMessage(data), nil
}

// Do issues a request and decodes a successful body into out
func (g *Gateway) Do(ctx context.Context, method, endpoint string, body, out any, opts ...RequestOption) error {
	raw, err := g.Request(ctx, method, endpoint, body, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: KindServer, Message: "Backend response has an unexpected shape", Err: err}
	}
	return nil
}

// Health probes GET /api/health, which needs no auth
func (g *Gateway) Health(ctx context.Context) error {
	_, err := g.Request(ctx, http.MethodGet, EndpointHealth, nil, WithBearer(""))
	return err
}

// serverMessage pulls "message" or "error" out of an error payload
func serverMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
