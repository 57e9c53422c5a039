// Package jobs defines River Queue job types for async processing.
package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/dispatch"
	"pushgate.io/pushgate/internal/pkg/logger"
)

// PushDispatchArgs carries one user-facing notification to deliver
// asynchronously.
type PushDispatchArgs struct {
	UserID      string `json:"user_id"`
	Channel     string `json:"channel"` // "vapid" or "onesignal"
	MessageKind string `json:"kind"`
	Body        string `json:"body"`
	Test        bool   `json:"test,omitempty"`
}

// Kind returns the job kind identifier for push dispatch.
func (PushDispatchArgs) Kind() string { return "push_dispatch" }

// InsertOpts returns default insert options for dispatch jobs.
func (PushDispatchArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "push_dispatch",
		MaxAttempts: 3,
	}
}

// PushDispatchWorker delivers queued notifications through the dispatcher.
type PushDispatchWorker struct {
	river.WorkerDefaults[PushDispatchArgs]
	dispatcher *dispatch.Dispatcher
}

// NewPushDispatchWorker creates the worker.
func NewPushDispatchWorker(d *dispatch.Dispatcher) *PushDispatchWorker {
	return &PushDispatchWorker{dispatcher: d}
}

// Work delivers the notification. Validation failures cancel the job rather
// than retrying; transient delivery failures retry up to MaxAttempts.
func (w *PushDispatchWorker) Work(ctx context.Context, job *river.Job[PushDispatchArgs]) error {
	if w == nil || w.dispatcher == nil {
		return fmt.Errorf("push dispatch worker is not initialized")
	}
	args := job.Args
	if args.UserID == "" {
		return river.JobCancel(fmt.Errorf("push dispatch job without user id"))
	}

	reached, err := w.dispatcher.Dispatch(ctx, dispatch.Request{
		UserID:  args.UserID,
		Channel: args.Channel,
		Kind:    args.MessageKind,
		Body:    args.Body,
		Test:    args.Test,
	})
	if err != nil {
		return fmt.Errorf("dispatch %s notification for user %s: %w", args.Channel, args.UserID, err)
	}

	logger.Info("push dispatch completed",
		zap.String("user_id", args.UserID),
		zap.String("channel", args.Channel),
		zap.String("kind", args.MessageKind),
		zap.Int("reached", reached),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}
