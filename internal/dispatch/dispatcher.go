// Package dispatch delivers notifications server-side: web-push sends signed
// with the VAPID key pair, OneSignal REST sends, per-user rate limiting and
// message templates.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
)

// Message is a rendered notification ready for delivery.
type Message struct {
	Title string
	Body  string
	Tag   string
	URL   string
}

// Sender delivers a message to all of a user's registrations on one channel.
type Sender interface {
	SendToUser(ctx context.Context, userID string, msg Message) (int, error)
	Configured() bool
}

// LimitConfig bounds per-user notification volume.
type LimitConfig struct {
	// PerMinute is the sustained rate; Burst the bucket depth.
	PerMinute float64
	Burst     int
}

// Dispatcher routes notifications to channel senders, applying templates and
// per-user rate limits. Test sends bypass the limiter so operators can
// always verify delivery.
type Dispatcher struct {
	webpush   Sender
	onesignal Sender
	templates *Templates
	limits    LimitConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // key: user ID
}

// NewDispatcher wires the channel senders.
func NewDispatcher(webpushSender, onesignalSender Sender, templates *Templates, limits LimitConfig) *Dispatcher {
	if limits.PerMinute <= 0 {
		limits.PerMinute = 1
	}
	if limits.Burst <= 0 {
		limits.Burst = 5
	}
	return &Dispatcher{
		webpush:   webpushSender,
		onesignal: onesignalSender,
		templates: templates,
		limits:    limits,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Request describes one dispatch.
type Request struct {
	UserID  string
	Channel string // "vapid" or "onesignal"
	Kind    string // template key
	Body    string
	// Test marks operator-triggered verification sends, exempt from rate
	// limiting.
	Test bool
}

// Dispatch renders and delivers one notification, returning the number of
// endpoints or players reached.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (int, error) {
	if !req.Test && !d.allow(req.UserID) {
		return 0, apperrors.New(apperrors.CodeRateLimited,
			"notification rate limit exceeded for user", 429)
	}

	tpl := d.templates.Resolve(req.Kind)
	msg := Message{
		Title: tpl.Title,
		Body:  req.Body,
		Tag:   tpl.Tag,
		URL:   tpl.URL,
	}

	switch req.Channel {
	case "vapid":
		return d.webpush.SendToUser(ctx, req.UserID, msg)
	case "onesignal":
		return d.onesignal.SendToUser(ctx, req.UserID, msg)
	default:
		return 0, apperrors.BadRequest(apperrors.CodeValidationFailed, "unknown dispatch channel")
	}
}

// allow consumes one token from the user's limiter.
func (d *Dispatcher) allow(userID string) bool {
	d.mu.Lock()
	limiter, ok := d.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(d.limits.PerMinute/60.0), d.limits.Burst)
		d.limiters[userID] = limiter
	}
	d.mu.Unlock()
	return limiter.Allow()
}
