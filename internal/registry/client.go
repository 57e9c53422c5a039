// Package registry provides the HTTP client for the backend notification
// registry consumed by the channel managers and the coordinator.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/channel"
	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/platform"
)

// TokenSource supplies the bearer token for authenticated registry calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource wrapping a fixed token string.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

const defaultTimeout = 10 * time.Second

// Client calls the registry REST API. All calls run through a circuit
// breaker so a dead registry fails fast instead of stacking timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
}

// NewClient creates a registry client. tokens may be nil when only the
// unauthenticated endpoints are used.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	settings := gobreaker.Settings{
		Name:        "notification-registry",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("registry circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// envelope is the registry's uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

type subscribeRequest struct {
	Subscription *platform.Subscription `json:"subscription"`
	UserAgent    string                 `json:"userAgent"`
	Timestamp    string                 `json:"timestamp"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

type identifyRequest struct {
	PlayerID string `json:"onesignal_player_id"`
}

type testRequest struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// RegisterSubscription persists a web-push subscription server-side.
func (c *Client) RegisterSubscription(ctx context.Context, sub *platform.Subscription, userAgent string, at time.Time) error {
	return c.post(ctx, "/api/v1/notifications/subscribe", subscribeRequest{
		Subscription: sub,
		UserAgent:    userAgent,
		Timestamp:    at.UTC().Format(time.RFC3339),
	}, false)
}

// RemoveSubscription deletes the server-side record keyed by endpoint.
func (c *Client) RemoveSubscription(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/api/v1/notifications/unsubscribe", unsubscribeRequest{Endpoint: endpoint}, false)
}

// IdentifyPlayer associates the authenticated caller with a OneSignal
// player ID.
func (c *Client) IdentifyPlayer(ctx context.Context, playerID string) error {
	return c.post(ctx, "/api/v1/onesignal/user/identify", identifyRequest{PlayerID: playerID}, true)
}

// SendTest triggers a server-side test dispatch on the given channel.
func (c *Client) SendTest(ctx context.Context, ch channel.Channel, message, kind string) error {
	path := "/api/v1/notifications/test"
	if ch == channel.OneSignal {
		path = "/api/v1/onesignal/test"
	}
	return c.post(ctx, path, testRequest{Message: message, Type: kind}, true)
}

// VAPIDPublicKey fetches the server's VAPID public key.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var payload struct {
		PublicKey string `json:"publicKey"`
	}
	err := c.execute(ctx, func() error {
		env, err := c.do(ctx, http.MethodGet, "/api/v1/notifications/vapid-public-key", nil, false)
		if err != nil {
			return err
		}
		return json.Unmarshal(env.Data, &payload)
	})
	if err != nil {
		return "", err
	}
	return payload.PublicKey, nil
}

func (c *Client) post(ctx context.Context, path string, body any, authenticated bool) error {
	return c.execute(ctx, func() error {
		_, err := c.do(ctx, http.MethodPost, path, body, authenticated)
		return err
	})
}

// execute runs fn through the circuit breaker, translating an open circuit
// into a distinguished unavailable error.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.Unavailable(apperrors.CodeRegistrySyncFailed,
			"notification registry unavailable (circuit open)")
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, authenticated bool) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		if c.tokens == nil {
			return nil, apperrors.Unauthorized(apperrors.CodeUnauthorized, "no token source configured")
		}
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	env := &envelope{}
	if len(raw) > 0 {
		// A non-envelope body (proxy error page) is tolerated; the status
		// code decides the outcome.
		_ = json.Unmarshal(raw, env)
	}

	if resp.StatusCode >= 400 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &apperrors.AppError{
			Code:       apperrors.CodeRegistrySyncFailed,
			Message:    fmt.Sprintf("registry %s %s: %s", method, path, msg),
			HTTPStatus: resp.StatusCode,
		}
	}
	return env, nil
}

var _ channel.Registry = (*Client)(nil)
