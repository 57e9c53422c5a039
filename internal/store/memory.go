package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded in-memory Store for tests and local
// development without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]Subscription // key: endpoint
	players       map[string]Player       // key: player ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]Subscription),
		players:       make(map[string]Player),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) UpsertSubscription(_ context.Context, sub Subscription) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.subscriptions[sub.Endpoint]; ok {
		existing.UserID = sub.UserID
		existing.P256dh = sub.P256dh
		existing.Auth = sub.Auth
		existing.UserAgent = sub.UserAgent
		existing.LastSeenAt = now
		s.subscriptions[sub.Endpoint] = existing
		return &existing, nil
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.LastSeenAt = now
	s.subscriptions[sub.Endpoint] = sub
	return &sub, nil
}

func (s *MemoryStore) DeleteSubscription(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, endpoint)
	return nil
}

func (s *MemoryStore) SubscriptionsByUser(_ context.Context, userID string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *MemoryStore) PruneSubscriptionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for endpoint, sub := range s.subscriptions {
		if sub.LastSeenAt.Before(cutoff) {
			delete(s.subscriptions, endpoint)
			pruned++
		}
	}
	return pruned, nil
}

func (s *MemoryStore) UpsertPlayer(_ context.Context, userID, playerID string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.players[playerID]; ok {
		existing.UserID = userID
		s.players[playerID] = existing
		return &existing, nil
	}

	p := Player{
		ID:        uuid.New(),
		UserID:    userID,
		PlayerID:  playerID,
		CreatedAt: time.Now().UTC(),
	}
	s.players[playerID] = p
	return &p, nil
}

func (s *MemoryStore) PlayersByUser(_ context.Context, userID string) ([]Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []Player
	for _, p := range s.players {
		if p.UserID == userID {
			players = append(players, p)
		}
	}
	return players, nil
}

func (s *MemoryStore) DeletePlayer(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, playerID)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
