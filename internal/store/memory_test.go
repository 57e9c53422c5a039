package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_UpsertSubscriptionIsIdempotentByEndpoint(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.UpsertSubscription(ctx, Subscription{
		UserID:   "user-1",
		Endpoint: "https://push.example/a",
		P256dh:   "key-1",
		Auth:     "auth-1",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := s.UpsertSubscription(ctx, Subscription{
		UserID:   "user-1",
		Endpoint: "https://push.example/a",
		P256dh:   "key-2",
		Auth:     "auth-2",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if second.ID != first.ID {
		t.Error("re-subscribe created a new record, want same ID")
	}
	if second.P256dh != "key-2" || second.Auth != "auth-2" {
		t.Error("re-subscribe did not refresh key material")
	}
	if !second.LastSeenAt.After(first.CreatedAt) && !second.LastSeenAt.Equal(first.LastSeenAt) {
		t.Error("re-subscribe did not touch last-seen time")
	}

	subs, err := s.SubscriptionsByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
}

func TestMemoryStore_DeleteSubscriptionIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.UpsertSubscription(ctx, Subscription{UserID: "u", Endpoint: "https://push.example/a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeleteSubscription(ctx, "https://push.example/a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Absent endpoint: still a no-op success.
	if err := s.DeleteSubscription(ctx, "https://push.example/a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.DeleteSubscription(ctx, "https://push.example/never-existed"); err != nil {
		t.Fatalf("delete of unknown endpoint: %v", err)
	}

	subs, _ := s.SubscriptionsByUser(ctx, "u")
	if len(subs) != 0 {
		t.Fatalf("subscriptions = %d, want 0", len(subs))
	}
}

func TestMemoryStore_PruneSubscriptionsBefore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stale, err := s.UpsertSubscription(ctx, Subscription{UserID: "u", Endpoint: "https://push.example/stale"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertSubscription(ctx, Subscription{UserID: "u", Endpoint: "https://push.example/fresh"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Age the stale record directly.
	s.mu.Lock()
	aged := s.subscriptions[stale.Endpoint]
	aged.LastSeenAt = time.Now().UTC().Add(-200 * 24 * time.Hour)
	s.subscriptions[stale.Endpoint] = aged
	s.mu.Unlock()

	pruned, err := s.PruneSubscriptionsBefore(ctx, time.Now().UTC().Add(-180*24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}

	subs, _ := s.SubscriptionsByUser(ctx, "u")
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/fresh" {
		t.Fatalf("remaining = %v, want only the fresh endpoint", subs)
	}
}

func TestMemoryStore_UpsertPlayerReassignsUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.UpsertPlayer(ctx, "user-1", "player-a")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := s.UpsertPlayer(ctx, "user-2", "player-a")
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Error("player re-identify created a new record")
	}
	if second.UserID != "user-2" {
		t.Errorf("UserID = %q, want user-2", second.UserID)
	}

	former, _ := s.PlayersByUser(ctx, "user-1")
	if len(former) != 0 {
		t.Errorf("former user still owns %d players, want 0", len(former))
	}
	current, _ := s.PlayersByUser(ctx, "user-2")
	if len(current) != 1 {
		t.Errorf("current user owns %d players, want 1", len(current))
	}
}

func TestMemoryStore_DeletePlayer(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.UpsertPlayer(ctx, "u", "player-a"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DeletePlayer(ctx, "player-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeletePlayer(ctx, "player-a"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	players, _ := s.PlayersByUser(ctx, "u")
	if len(players) != 0 {
		t.Fatalf("players = %d, want 0", len(players))
	}
}
