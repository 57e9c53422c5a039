// Package store persists push subscriptions and OneSignal player
// registrations for the registry service.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("store: not found")

// Subscription is a persisted web-push subscription. Endpoint is the natural
// key: one browser installation, one endpoint.
type Subscription struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"userId"`
	Endpoint   string    `json:"endpoint"`
	P256dh     string    `json:"p256dh"`
	Auth       string    `json:"auth"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// Player is a persisted OneSignal device registration.
type Player struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"userId"`
	PlayerID  string    `json:"playerId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is the persistence contract consumed by handlers, dispatch and jobs.
type Store interface {
	// UpsertSubscription inserts or refreshes a subscription keyed by
	// endpoint. Re-subscribing updates keys, user agent and last-seen time
	// without creating a duplicate row.
	UpsertSubscription(ctx context.Context, sub Subscription) (*Subscription, error)

	// DeleteSubscription removes the record with the given endpoint.
	// Deleting an absent endpoint is a no-op.
	DeleteSubscription(ctx context.Context, endpoint string) error

	// SubscriptionsByUser lists a user's subscriptions, newest first.
	SubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error)

	// PruneSubscriptionsBefore deletes subscriptions last seen before the
	// cutoff, returning the number removed.
	PruneSubscriptionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// UpsertPlayer inserts or reassigns a player ID to a user.
	UpsertPlayer(ctx context.Context, userID, playerID string) (*Player, error)

	// PlayersByUser lists a user's OneSignal registrations.
	PlayersByUser(ctx context.Context, userID string) ([]Player, error)

	// DeletePlayer removes a player registration. Absent IDs are a no-op.
	DeletePlayer(ctx context.Context, playerID string) error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}
