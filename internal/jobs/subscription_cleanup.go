package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/store"
)

// DefaultSubscriptionRetention is how long an unseen subscription survives
// before the periodic cleanup removes it. Dead endpoints found at dispatch
// time are pruned earlier.
const DefaultSubscriptionRetention = 180 * 24 * time.Hour

// SubscriptionCleanupArgs is the periodic maintenance job that removes
// subscriptions not seen within the retention window.
type SubscriptionCleanupArgs struct{}

// Kind returns the job kind identifier for periodic subscription cleanup.
func (SubscriptionCleanupArgs) Kind() string { return "subscription_cleanup" }

// InsertOpts ensures at most one cleanup job is enqueued within the same day.
func (SubscriptionCleanupArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: 24 * time.Hour,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// SubscriptionCleanupWorker prunes subscriptions past the retention window.
type SubscriptionCleanupWorker struct {
	river.WorkerDefaults[SubscriptionCleanupArgs]
	store     store.Store
	retention time.Duration
}

// NewSubscriptionCleanupWorker creates a cleanup worker. Non-positive
// retention falls back to the 180-day default.
func NewSubscriptionCleanupWorker(st store.Store, retention time.Duration) *SubscriptionCleanupWorker {
	if retention <= 0 {
		retention = DefaultSubscriptionRetention
	}
	return &SubscriptionCleanupWorker{store: st, retention: retention}
}

// Work removes expired subscription rows.
func (w *SubscriptionCleanupWorker) Work(ctx context.Context, _ *river.Job[SubscriptionCleanupArgs]) error {
	if w == nil || w.store == nil {
		return fmt.Errorf("subscription cleanup worker is not initialized")
	}

	cutoff := time.Now().UTC().Add(-w.retention)
	pruned, err := w.store.PruneSubscriptionsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune subscriptions before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info("subscription cleanup completed",
		zap.Int64("pruned_rows", pruned),
		zap.String("cutoff", cutoff.Format(time.RFC3339)),
		zap.Duration("retention", w.retention),
	)
	return nil
}
