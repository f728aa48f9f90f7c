// Package chzzk is the Chzzk Open API client used for login.
//
// It covers the three calls the login flow needs: authorization-code
// exchange, the authenticated user's profile, and channel details.
package chzzk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the Chzzk Open API origin.
	DefaultBaseURL = "https://openapi.chzzk.naver.com"

	tokenPath   = "/auth/v1/token"
	profilePath = "/open/v1/users/me"
	channelPath = "/open/v1/channels"

	maxBodyBytes   = 1 << 20
	maxErrBodyLogs = 512

	defaultTimeout = 5 * time.Second
)

// Operation names used for spans, metrics and errors.
const (
	OpExchangeCode = "exchange_code"
	OpFetchProfile = "fetch_profile"
	OpFetchChannel = "fetch_channel"
)

// Config holds the client credentials and endpoint.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	// Timeout bounds each remote call, including reading the body.
	Timeout time.Duration
}

// Client talks to the Chzzk Open API. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
}

// Option configures optional client dependencies.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records per-call latency and outcome.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		tracer:     otel.Tracer("github.com/popop098/chzzk-login-example/cmd/internal/chzzk"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// ExchangeCode exchanges an authorization code for an access/refresh token pair.
func (c *Client) ExchangeCode(ctx context.Context, code, state string) (Token, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType:    "authorization_code",
		Code:         code,
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		State:        state,
	})
	if err != nil {
		return Token{}, fmt.Errorf("chzzk: encode token request: %w", err)
	}

	tok, err := call[Token](ctx, c, OpExchangeCode, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+tokenPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return Token{}, err
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return Token{}, fmt.Errorf("%w: empty access token", ErrMalformedResponse)
	}
	if tok.ExpiresIn <= 0 {
		return Token{}, fmt.Errorf("%w: non-positive expiresIn %d", ErrMalformedResponse, tok.ExpiresIn)
	}
	return tok, nil
}

// FetchProfile returns the profile of the user owning accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	p, err := call[Profile](ctx, c, OpFetchProfile, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+profilePath, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return Profile{}, err
	}
	if strings.TrimSpace(p.ChannelID) == "" {
		return Profile{}, fmt.Errorf("%w: empty channelId", ErrMalformedResponse)
	}
	return p, nil
}

// FetchChannel returns channel details. Authenticated with client credentials.
func (c *Client) FetchChannel(ctx context.Context, channelID string) (Channel, error) {
	list, err := call[channelList](ctx, c, OpFetchChannel, func(ctx context.Context) (*http.Request, error) {
		q := url.Values{"channelIds": {channelID}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+channelPath+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Client-Id", c.cfg.ClientID)
		req.Header.Set("Client-Secret", c.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return Channel{}, err
	}
	if len(list.Data) == 0 {
		return Channel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, channelID)
	}
	ch := list.Data[0]
	if ch.FollowerCount < 0 {
		ch.FollowerCount = 0
	}
	return ch, nil
}

// call runs one bounded request and decodes the envelope content into T.
func call[T any](ctx context.Context, c *Client, op string, build func(context.Context) (*http.Request, error)) (out T, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "chzzk."+op, trace.WithSpanKind(trace.SpanKindClient))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = outcomeOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		c.metrics.ObserveRemote(op, outcome, time.Since(start))
	}()

	req, err := build(ctx)
	if err != nil {
		return out, fmt.Errorf("chzzk: %s: create request: %w", op, err)
	}
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("chzzk: %s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("chzzk: %s: read body: %w", op, err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body), maxErrBodyLogs)}
		if decodeErr == nil {
			apiErr.Code = env.Code
			if env.Message != nil {
				apiErr.Message = *env.Message
			}
		}
		return out, apiErr
	}
	if decodeErr != nil {
		return out, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, decodeErr)
	}
	if env.Code != 0 && (env.Code < 200 || env.Code >= 300) {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Code: env.Code, Body: truncate(string(body), maxErrBodyLogs)}
		if env.Message != nil {
			apiErr.Message = *env.Message
		}
		return out, apiErr
	}
	return env.Content, nil
}

func outcomeOf(err error) string {
	var apiErr *APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
