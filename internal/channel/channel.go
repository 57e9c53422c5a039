// Package channel implements the push-notification subscription lifecycle
// for the two delivery channels: VAPID web push and OneSignal.
//
// Each channel is owned by a manager holding a per-channel status record.
// Managers receive their platform collaborators (browser, vendor SDK
// bridge, registry client) by injection and never touch global state.
package channel

import (
	"context"
	"sync"
	"time"

	"pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/platform"
)

// Channel identifies a delivery channel. Values double as the wire tag in
// registry test requests.
type Channel string

const (
	VAPID     Channel = "vapid"
	OneSignal Channel = "onesignal"
)

// State is the coarse lifecycle state derived from a status record.
type State string

const (
	StateUnsupported   State = "unsupported"
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateInitialized   State = "initialized"
	StateReady         State = "ready"
	StateSubscribing   State = "subscribing"
	StateSubscribed    State = "subscribed"
	StateUnsubscribing State = "unsubscribing"
	StateError         State = "error"
)

// Probe reports whether the minimum browser capability set for a channel is
// present. No side effects, idempotent; absence of a capability yields
// false, never an error.
func Probe(caps platform.Capabilities, ch Channel) bool {
	switch ch {
	case VAPID:
		return caps.ServiceWorker && caps.Notifications && caps.PushManager
	case OneSignal:
		return caps.ServiceWorker && caps.Notifications
	default:
		return false
	}
}

// Registry is the slice of the backend notification registry the channel
// managers call. Implemented by registry.Client.
type Registry interface {
	// RegisterSubscription persists a web-push subscription server-side.
	RegisterSubscription(ctx context.Context, sub *platform.Subscription, userAgent string, at time.Time) error

	// RemoveSubscription deletes the server-side record keyed by endpoint.
	RemoveSubscription(ctx context.Context, endpoint string) error

	// IdentifyPlayer associates the caller with a OneSignal player ID.
	IdentifyPlayer(ctx context.Context, playerID string) error
}

// Status is a point-in-time snapshot of one channel's lifecycle record.
//
// Identity is channel-specific: the subscription endpoint for VAPID, the
// player ID for OneSignal. Supported is set once at construction and never
// recomputed.
type Status struct {
	Channel     Channel `json:"channel"`
	Supported   bool    `json:"supported"`
	Initialized bool    `json:"initialized,omitempty"`
	Subscribed  bool    `json:"subscribed"`
	Loading     bool    `json:"loading"`
	Error       string  `json:"error,omitempty"`
	Identity    string  `json:"identity,omitempty"`
}

// statusRecord is the mutable per-channel state shared between a manager's
// operations and Status() readers. Operations mutate it only through the
// begin/finish/fail helpers; readers get copies.
type statusRecord struct {
	mu sync.Mutex
	s  Status
}

func newStatusRecord(ch Channel, supported bool) *statusRecord {
	return &statusRecord{s: Status{Channel: ch, Supported: supported}}
}

// begin marks an operation in flight. A second call while one is
// outstanding is rejected, never queued; callers retry after the in-flight
// operation completes. The error field is cleared at operation start.
func (r *statusRecord) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.Loading {
		return errors.ErrOperationInFlight(string(r.s.Channel))
	}
	r.s.Loading = true
	r.s.Error = ""
	return nil
}

// finish clears the in-flight flag, applying mutations under the lock.
func (r *statusRecord) finish(mutate func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mutate != nil {
		mutate(&r.s)
	}
	r.s.Loading = false
}

// fail records a failure and clears the in-flight flag.
func (r *statusRecord) fail(err error) {
	msg := err.Error()
	if appErr, ok := errors.IsAppError(err); ok {
		msg = appErr.Message
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Error = msg
	r.s.Loading = false
}

// update applies mutations without touching the loading flag.
func (r *statusRecord) update(mutate func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	mutate(&r.s)
}

// snapshot returns a copy of the record.
func (r *statusRecord) snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
