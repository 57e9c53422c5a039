package channel

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/platform"
)

// VAPIDOptions configures the web-push channel manager.
type VAPIDOptions struct {
	// PublicKey is the base64url-encoded VAPID application server key.
	PublicKey string

	// WorkerScript and WorkerScope locate the service worker. The scope is
	// fixed: subscriptions always live at one registration.
	WorkerScript string
	WorkerScope  string
}

// VAPIDManager owns the web-push subscription lifecycle: permission
// request, service-worker registration lookup, push subscription
// creation or reuse, and synchronization with the backend registry.
type VAPIDManager struct {
	browser  platform.Browser
	registry Registry
	opts     VAPIDOptions

	status *statusRecord

	mu  sync.Mutex
	sub *platform.Subscription
}

// NewVAPIDManager creates the manager and probes platform support once.
func NewVAPIDManager(browser platform.Browser, reg Registry, opts VAPIDOptions) *VAPIDManager {
	if opts.WorkerScript == "" {
		opts.WorkerScript = "/sw.js"
	}
	if opts.WorkerScope == "" {
		opts.WorkerScope = "/"
	}
	return &VAPIDManager{
		browser:  browser,
		registry: reg,
		opts:     opts,
		status:   newStatusRecord(VAPID, Probe(browser.Capabilities(), VAPID)),
	}
}

// Status returns a snapshot of the channel record.
func (m *VAPIDManager) Status() Status { return m.status.snapshot() }

// State derives the coarse lifecycle state.
func (m *VAPIDManager) State() State {
	s := m.status.snapshot()
	switch {
	case !s.Supported:
		return StateUnsupported
	case s.Error != "":
		return StateError
	case s.Loading && s.Subscribed:
		return StateUnsubscribing
	case s.Loading:
		return StateSubscribing
	case s.Subscribed:
		return StateSubscribed
	default:
		return StateReady
	}
}

// Subscription returns the live subscription object, or nil.
func (m *VAPIDManager) Subscription() *platform.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub
}

func (m *VAPIDManager) setSubscription(sub *platform.Subscription) {
	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()
}

// RequestPermission invokes the platform permission prompt and reports
// whether permission ended up granted. The platform deduplicates prompts
// for an already-decided permission.
func (m *VAPIDManager) RequestPermission(ctx context.Context) bool {
	if !m.status.snapshot().Supported {
		m.status.update(func(s *Status) { s.Error = apperrors.ErrChannelUnsupported(string(VAPID)).Message })
		return false
	}

	perm, err := m.browser.RequestPermission(ctx)
	if err != nil {
		logger.Warn("notification permission prompt failed", zap.Error(err))
		m.status.update(func(s *Status) { s.Error = err.Error() })
		return false
	}
	if perm != platform.PermissionGranted {
		m.status.update(func(s *Status) { s.Error = apperrors.ErrPermissionDenied().Message })
		return false
	}
	m.status.update(func(s *Status) { s.Error = "" })
	return true
}

// Subscribe establishes a push subscription and registers it server-side.
//
// An existing platform subscription is reused, making re-subscribe
// idempotent. When the platform subscription succeeds but the registry POST
// fails, local state keeps the subscription (the browser is the system of
// record) and the registry error is surfaced; the divergence persists until
// a later registration attempt.
func (m *VAPIDManager) Subscribe(ctx context.Context) (*platform.Subscription, error) {
	if !m.status.snapshot().Supported {
		return nil, apperrors.ErrChannelUnsupported(string(VAPID))
	}

	// The in-flight guard comes before any platform or network call so an
	// overlapping attempt is rejected without side effects.
	if err := m.status.begin(); err != nil {
		return nil, err
	}

	if m.browser.Permission() != platform.PermissionGranted {
		err := apperrors.ErrPermissionDenied()
		m.status.fail(err)
		return nil, err
	}

	if m.opts.PublicKey == "" {
		err := apperrors.ErrConfigMissing("VAPID public key")
		m.status.fail(err)
		return nil, err
	}
	serverKey, err := DecodeApplicationServerKey(m.opts.PublicKey)
	if err != nil {
		appErr := apperrors.Wrap(err, apperrors.CodeConfigMissing, "VAPID public key is not valid base64url", 500)
		m.status.fail(appErr)
		return nil, appErr
	}

	sub, err := m.establishSubscription(ctx, serverKey)
	if err != nil {
		m.status.fail(err)
		return nil, err
	}
	m.setSubscription(sub)

	// Persist to the registry. A failure here leaves the platform
	// subscription live; subscribed still flips locally and the error is
	// surfaced for the operator.
	if err := m.registry.RegisterSubscription(ctx, sub, m.browser.UserAgent(), time.Now().UTC()); err != nil {
		syncErr := apperrors.Wrap(err, apperrors.CodeRegistrySyncFailed,
			"subscription created but registry sync failed", 502)
		logger.Error("registry subscribe sync failed",
			zap.String("endpoint", sub.Endpoint),
			zap.Error(err),
		)
		m.status.finish(func(st *Status) {
			st.Subscribed = true
			st.Identity = sub.Endpoint
			st.Error = syncErr.Message
		})
		return sub, syncErr
	}

	m.status.finish(func(st *Status) {
		st.Subscribed = true
		st.Identity = sub.Endpoint
	})
	logger.Info("push subscription registered", zap.String("endpoint", sub.Endpoint))
	return sub, nil
}

// establishSubscription runs the platform half of Subscribe: registration
// lookup or install, ready wait, subscription reuse or creation.
func (m *VAPIDManager) establishSubscription(ctx context.Context, serverKey []byte) (*platform.Subscription, error) {
	reg, err := m.browser.Registration(ctx, m.opts.WorkerScope)
	if err != nil {
		return nil, classifyWorkerError(err)
	}
	if reg == nil {
		if _, err := m.browser.Register(ctx, m.opts.WorkerScript, m.opts.WorkerScope); err != nil {
			return nil, classifyWorkerError(err)
		}
	}

	// The ready wait has no timeout of its own; the platform resolves it
	// when the worker activates. Cancellation comes from ctx.
	reg, err = m.browser.Ready(ctx, m.opts.WorkerScope)
	if err != nil {
		return nil, classifyWorkerError(err)
	}

	existing, err := reg.Subscription(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sub, err := reg.Subscribe(ctx, platform.SubscribeOptions{
		UserVisibleOnly:      true,
		ApplicationServerKey: serverKey,
	})
	if err != nil {
		return nil, classifyWorkerError(err)
	}
	return sub, nil
}

// Unsubscribe revokes the platform subscription and deletes the server-side
// record. Local-first: local state is cleared even when the registry delete
// fails, keeping the visible state consistent with the browser's.
func (m *VAPIDManager) Unsubscribe(ctx context.Context) error {
	sub := m.Subscription()
	if sub == nil {
		logger.Debug("unsubscribe called without an active subscription")
		return nil
	}
	if err := m.status.begin(); err != nil {
		return err
	}

	endpoint := sub.Endpoint

	reg, err := m.browser.Registration(ctx, m.opts.WorkerScope)
	if err == nil && reg != nil {
		if err := reg.Unsubscribe(ctx, endpoint); err != nil {
			logger.Warn("platform unsubscribe failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}

	if err := m.registry.RemoveSubscription(ctx, endpoint); err != nil {
		logger.Warn("registry unsubscribe sync failed; local state cleared anyway",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}

	m.setSubscription(nil)
	m.status.finish(func(st *Status) {
		st.Subscribed = false
		st.Identity = ""
	})
	return nil
}

// ToggleSubscription flips the subscription state: unsubscribe when
// subscribed; otherwise acquire permission first if still undecided, then
// subscribe only when permission was granted.
func (m *VAPIDManager) ToggleSubscription(ctx context.Context) error {
	if m.status.snapshot().Subscribed {
		return m.Unsubscribe(ctx)
	}
	if m.browser.Permission() != platform.PermissionGranted {
		if !m.RequestPermission(ctx) {
			return apperrors.ErrPermissionDenied()
		}
	}
	_, err := m.Subscribe(ctx)
	return err
}

// classifyWorkerError distinguishes the deployment defect where the worker
// script is served with the wrong content type (the platform rejects it
// with a MIME-type message) from transient platform failures.
func classifyWorkerError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "mime type") || strings.Contains(msg, "text/html") {
		return apperrors.Wrap(err, apperrors.CodeWorkerAssetInvalid,
			"service worker script served with wrong content type; check deployment", 500)
	}
	return err
}
