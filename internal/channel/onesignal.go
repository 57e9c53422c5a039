package channel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/pkg/logger"
	"pushgate.io/pushgate/internal/platform"
)

// Defaults for the vendor SDK readiness poll and the post-init settling
// delay: 100ms × 50 attempts gives a 5-second ceiling.
const (
	DefaultSDKPollInterval = 100 * time.Millisecond
	DefaultSDKPollAttempts = 50
	DefaultInitSettleDelay = time.Second
)

// OneSignalOptions configures the vendor channel manager.
type OneSignalOptions struct {
	// AppID is the OneSignal application identifier. Its absence is a hard
	// configuration error that aborts initialization before any SDK poll.
	AppID string

	PollInterval time.Duration
	PollAttempts int
	SettleDelay  time.Duration
}

// OneSignalManager owns the vendor-SDK initialization lifecycle:
// asynchronous script-ready polling, init handshake, player-ID retrieval,
// and subscription toggling, synchronized with the backend registry.
type OneSignalManager struct {
	browser  platform.Browser
	bridge   platform.SDKBridge
	registry Registry
	opts     OneSignalOptions

	status *statusRecord

	mu       sync.Mutex
	playerID string
}

// NewOneSignalManager creates the manager and probes platform support once.
// The OneSignal channel needs service workers and the Notification API; the
// Push API is the vendor script's concern.
func NewOneSignalManager(browser platform.Browser, bridge platform.SDKBridge, reg Registry, opts OneSignalOptions) *OneSignalManager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultSDKPollInterval
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultSDKPollAttempts
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultInitSettleDelay
	}
	return &OneSignalManager{
		browser:  browser,
		bridge:   bridge,
		registry: reg,
		opts:     opts,
		status:   newStatusRecord(OneSignal, Probe(browser.Capabilities(), OneSignal)),
	}
}

// Status returns a snapshot of the channel record.
func (m *OneSignalManager) Status() Status { return m.status.snapshot() }

// State derives the coarse lifecycle state.
func (m *OneSignalManager) State() State {
	s := m.status.snapshot()
	switch {
	case !s.Supported:
		return StateUnsupported
	case s.Error != "":
		return StateError
	case s.Loading && !s.Initialized:
		return StateInitializing
	case s.Loading:
		return StateSubscribing
	case s.Subscribed:
		return StateSubscribed
	case s.Initialized:
		return StateInitialized
	default:
		return StateUninitialized
	}
}

// PlayerID returns the vendor device identifier discovered so far.
func (m *OneSignalManager) PlayerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerID
}

func (m *OneSignalManager) setPlayerID(id string) {
	m.mu.Lock()
	m.playerID = id
	m.mu.Unlock()
}

// Initialize loads and configures the vendor SDK.
//
// The SDK global is polled on a fixed interval with a bounded attempt
// count; reaching the ceiling is a distinguished load-timeout failure so
// the operator checks script delivery rather than credentials. The vendor's
// init call gives no completion signal, so a fixed settling delay stands in
// for one. Identity and subscription-state discovery after init is
// best-effort and cannot fail the call.
func (m *OneSignalManager) Initialize(ctx context.Context) error {
	s := m.status.snapshot()
	if !s.Supported {
		return apperrors.ErrChannelUnsupported(string(OneSignal))
	}
	if s.Initialized {
		logger.Debug("onesignal already initialized")
		return nil
	}

	// Missing app ID aborts before the first poll attempt.
	if m.opts.AppID == "" {
		err := apperrors.ErrConfigMissing("OneSignal app ID")
		m.status.update(func(st *Status) { st.Error = err.Message })
		return err
	}

	if err := m.status.begin(); err != nil {
		return err
	}

	if err := m.awaitSDK(ctx); err != nil {
		m.status.fail(err)
		return err
	}

	if err := m.bridge.Init(ctx, platform.InitConfig{
		AppID:             m.opts.AppID,
		AutoPrompt:        false,
		AutoRegister:      false,
		LocalhostAsSecure: true,
	}); err != nil {
		m.status.fail(err)
		return err
	}

	// Settling delay in lieu of a completion signal from the vendor queue.
	select {
	case <-ctx.Done():
		m.status.fail(ctx.Err())
		return ctx.Err()
	case <-time.After(m.opts.SettleDelay):
	}

	// Best-effort discovery; prior values survive failures.
	playerID, subscribed := m.discover(ctx)

	m.status.finish(func(st *Status) {
		st.Initialized = true
		if playerID != "" {
			st.Identity = playerID
		}
		if subscribed {
			st.Subscribed = true
		}
	})
	logger.Info("onesignal initialized",
		zap.String("app_id", m.opts.AppID),
		zap.Bool("subscribed", subscribed),
	)
	return nil
}

// awaitSDK polls for the vendor SDK global with a bounded attempt count.
func (m *OneSignalManager) awaitSDK(ctx context.Context) error {
	for attempt := 1; attempt <= m.opts.PollAttempts; attempt++ {
		if m.bridge.Available() {
			logger.Debug("onesignal sdk available", zap.Int("attempt", attempt))
			return nil
		}
		if attempt == m.opts.PollAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.opts.PollInterval):
		}
	}
	return apperrors.ErrSDKLoadTimeout(m.opts.PollAttempts)
}

// discover fetches the player ID and subscription state from the vendor
// SDK. Failures are logged and swallowed.
func (m *OneSignalManager) discover(ctx context.Context) (playerID string, subscribed bool) {
	id, err := m.bridge.PlayerID(ctx)
	if err != nil {
		logger.Warn("onesignal player id discovery failed", zap.Error(err))
	} else if id != "" {
		m.setPlayerID(id)
		playerID = id
	}

	enabled, err := m.bridge.PushEnabled(ctx)
	if err != nil {
		logger.Warn("onesignal subscription state discovery failed", zap.Error(err))
		return playerID, false
	}
	return playerID, enabled
}

// Subscribe requests notification permission directly from the platform
// (vendor auto-registration stays disabled), shows the vendor's native
// prompt, and forwards the player ID to the registry when the vendor
// reports push enabled.
//
// The permission grant and the push-enabled query are independent vendor
// operations with no mutual ordering guarantee; they are issued
// sequentially and whatever interleaving the vendor queue produces is
// accepted.
func (m *OneSignalManager) Subscribe(ctx context.Context) error {
	s := m.status.snapshot()
	if !s.Supported {
		return apperrors.ErrChannelUnsupported(string(OneSignal))
	}
	if !s.Initialized {
		err := apperrors.New(apperrors.CodeNotInitialized, "OneSignal SDK is not initialized", 409)
		m.status.update(func(st *Status) { st.Error = err.Message })
		return err
	}

	if err := m.status.begin(); err != nil {
		return err
	}

	perm, err := m.browser.RequestPermission(ctx)
	if err != nil {
		m.status.fail(err)
		return err
	}
	if perm != platform.PermissionGranted {
		err := apperrors.ErrPermissionDenied()
		m.status.fail(err)
		return err
	}

	if err := m.bridge.ShowNativePrompt(ctx); err != nil {
		m.status.fail(err)
		return err
	}

	enabled, err := m.bridge.PushEnabled(ctx)
	if err != nil {
		m.status.fail(err)
		return err
	}
	if !enabled {
		logger.Debug("onesignal push not yet enabled after prompt")
		m.status.finish(nil)
		return nil
	}

	playerID, err := m.bridge.PlayerID(ctx)
	if err != nil {
		m.status.fail(err)
		return err
	}
	m.setPlayerID(playerID)

	// Registry identify is best-effort: a sync failure is logged and does
	// not undo the vendor-side subscription.
	if err := m.registry.IdentifyPlayer(ctx, playerID); err != nil {
		logger.Warn("onesignal registry identify failed",
			zap.String("player_id", playerID),
			zap.Error(err),
		)
	}

	m.status.finish(func(st *Status) {
		st.Subscribed = true
		st.Identity = playerID
	})
	logger.Info("onesignal subscription active", zap.String("player_id", playerID))
	return nil
}
