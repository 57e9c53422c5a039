package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/pkg/worker"
	"pushgate.io/pushgate/internal/store"
)

// webPushTTL is how long push services hold an undelivered message.
const webPushTTL = 24 * 60 * 60 // seconds

// VAPIDKeys is the server key pair used to sign web-push requests.
type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	// Subscriber is the contact address push services may use; webpush-go
	// prefixes mailto: itself.
	Subscriber string
}

// payload is the JSON body handed to the service worker.
type payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Tag     string `json:"tag,omitempty"`
	URL     string `json:"url,omitempty"`
	SentAt  string `json:"sentAt"`
	Channel string `json:"channel"`
}

// WebPushSender delivers notifications to web-push subscriptions, fanning
// sends out over the dispatch pool. Push-service 404/410 responses prune the
// dead subscription from the store.
type WebPushSender struct {
	keys  VAPIDKeys
	store store.Store
	pools *worker.Pools

	// send is swappable for tests.
	send func(message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// NewWebPushSender creates the sender. pools may be nil; sends then run
// sequentially on the caller's goroutine.
func NewWebPushSender(keys VAPIDKeys, st store.Store, pools *worker.Pools) *WebPushSender {
	return &WebPushSender{
		keys:  keys,
		store: st,
		pools: pools,
		send:  webpush.SendNotification,
	}
}

// Configured reports whether the VAPID key pair is present.
func (s *WebPushSender) Configured() bool {
	return s.keys.PublicKey != "" && s.keys.PrivateKey != ""
}

// SendToUser delivers one notification to every subscription of a user.
// Individual endpoint failures are logged, not propagated; the returned
// count is the number of successful deliveries.
func (s *WebPushSender) SendToUser(ctx context.Context, userID string, msg Message) (int, error) {
	if !s.Configured() {
		logger.Warn("web push dispatch skipped: VAPID keys not configured")
		return 0, nil
	}

	subs, err := s.store.SubscriptionsByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		logger.Debug("web push dispatch: no subscriptions", zap.String("user_id", userID))
		return 0, nil
	}

	body, err := json.Marshal(payload{
		Title:   msg.Title,
		Body:    msg.Body,
		Tag:     msg.Tag,
		URL:     msg.URL,
		SentAt:  time.Now().UTC().Format(time.RFC3339),
		Channel: "vapid",
	})
	if err != nil {
		return 0, err
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for _, sub := range subs {
		sub := sub
		task := func(context.Context) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if s.sendOne(ctx, sub, body) {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}
		wg.Add(1)
		if s.pools != nil {
			// Queue admission is decoupled from the request context: the
			// pool skips a queued task when its submission context is
			// cancelled, which would strand the WaitGroup. The task checks
			// ctx itself before sending, so Done always runs.
			if err := s.pools.Dispatch.Submit(context.WithoutCancel(ctx), task); err != nil {
				wg.Done()
				logger.Warn("dispatch pool submit failed", zap.Error(err))
			}
			continue
		}
		task(ctx)
	}
	wg.Wait()
	return delivered, nil
}

// sendOne pushes to a single endpoint, pruning it on a gone response.
func (s *WebPushSender) sendOne(ctx context.Context, sub store.Subscription, body []byte) bool {
	resp, err := s.send(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.keys.Subscriber,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             webPushTTL,
	})
	if err != nil {
		logger.Warn("web push send failed",
			zap.String("endpoint", sub.Endpoint),
			zap.Error(err),
		)
		return false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// The push service no longer knows this endpoint.
		logger.Info("pruning dead subscription",
			zap.String("endpoint", sub.Endpoint),
			zap.Int("status", resp.StatusCode),
		)
		s.pruneSubscription(ctx, sub.Endpoint)
		return false
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true
	default:
		logger.Warn("web push unexpected status",
			zap.String("endpoint", sub.Endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}
}

// pruneSubscription deletes a dead endpoint. The delete runs detached from
// the triggering request so a cancelled dispatch still completes the prune.
func (s *WebPushSender) pruneSubscription(ctx context.Context, endpoint string) {
	prune := func(ctx context.Context) {
		if err := s.store.DeleteSubscription(ctx, endpoint); err != nil {
			logger.Warn("dead subscription prune failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
		}
	}
	if s.pools != nil {
		if err := s.pools.SubmitDetached("general", prune); err == nil {
			return
		}
	}
	prune(context.WithoutCancel(ctx))
}
