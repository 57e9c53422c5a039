// Package coordinator aggregates the two channel managers behind a single
// operator-facing surface: combined status and hybrid test sends.
package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pushgate.io/pushgate/internal/channel"
	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
)

// TestSender triggers a server-side test dispatch on one channel.
// Implemented by registry.Client.
type TestSender interface {
	SendTest(ctx context.Context, ch channel.Channel, message, kind string) error
}

// Overview is the combined status of both channels plus the shared test-send
// gate.
type Overview struct {
	VAPID     channel.Status `json:"vapid"`
	OneSignal channel.Status `json:"onesignal"`
	Sending   bool           `json:"sending"`
}

// Coordinator owns the dual-channel test surface. Test sends on either
// channel share one gate: a VAPID test blocks an overlapping OneSignal test
// and vice versa.
type Coordinator struct {
	vapid     *channel.VAPIDManager
	onesignal *channel.OneSignalManager
	sender    TestSender

	mu      sync.Mutex
	sending bool
}

// New wires the coordinator over both managers and the registry test sender.
func New(vapid *channel.VAPIDManager, onesignal *channel.OneSignalManager, sender TestSender) *Coordinator {
	return &Coordinator{
		vapid:     vapid,
		onesignal: onesignal,
		sender:    sender,
	}
}

// Overview returns a snapshot of both channel records and the sending gate.
func (c *Coordinator) Overview() Overview {
	c.mu.Lock()
	sending := c.sending
	c.mu.Unlock()
	return Overview{
		VAPID:     c.vapid.Status(),
		OneSignal: c.onesignal.Status(),
		Sending:   sending,
	}
}

// VAPID exposes the web-push manager.
func (c *Coordinator) VAPID() *channel.VAPIDManager { return c.vapid }

// OneSignal exposes the vendor-channel manager.
func (c *Coordinator) OneSignal() *channel.OneSignalManager { return c.onesignal }

// SendTest asks the registry to dispatch a test notification on the given
// channel. The send is a plain POST with no local subscription precondition;
// the registry resolves the caller's registered targets, so a test can
// verify delivery to endpoints registered in an earlier session. Sends are
// serialized across both channels through one gate; an overlapping call is
// rejected rather than queued.
func (c *Coordinator) SendTest(ctx context.Context, ch channel.Channel, message, kind string) error {
	switch ch {
	case channel.VAPID, channel.OneSignal:
	default:
		return apperrors.BadRequest(apperrors.CodeValidationFailed, "unknown channel")
	}

	if err := c.acquireSendGate(); err != nil {
		return err
	}
	defer c.releaseSendGate()

	if err := c.sender.SendTest(ctx, ch, message, kind); err != nil {
		logger.Warn("test dispatch failed",
			zap.String("channel", string(ch)),
			zap.Error(err),
		)
		return err
	}
	logger.Info("test dispatch requested", zap.String("channel", string(ch)))
	return nil
}

func (c *Coordinator) acquireSendGate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending {
		return apperrors.ErrOperationInFlight("test send")
	}
	c.sending = true
	return nil
}

func (c *Coordinator) releaseSendGate() {
	c.mu.Lock()
	c.sending = false
	c.mu.Unlock()
}
