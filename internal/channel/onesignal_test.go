package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/platform"
)

// fastOptions keeps poll and settle timings negligible for tests.
func fastOptions(appID string) OneSignalOptions {
	return OneSignalOptions{
		AppID:        appID,
		PollInterval: time.Millisecond,
		PollAttempts: 5,
		SettleDelay:  time.Millisecond,
	}
}

func newOneSignalTestManager(t *testing.T, opts OneSignalOptions) (*OneSignalManager, *platform.MockBrowser, *platform.MockSDKBridge, *fakeRegistry) {
	t.Helper()
	browser := platform.NewMockBrowser()
	bridge := platform.NewMockSDKBridge()
	reg := &fakeRegistry{}
	return NewOneSignalManager(browser, bridge, reg, opts), browser, bridge, reg
}

func TestOneSignal_InitializeHappyPath(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))
	bridge.PlayerIDValue = "player-abc"
	bridge.PushEnabledValue = true

	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	s := mgr.Status()
	if !s.Initialized {
		t.Error("Initialized = false, want true")
	}
	if !s.Subscribed {
		t.Error("Subscribed = false, want true (discovery reported enabled)")
	}
	if s.Identity != "player-abc" {
		t.Errorf("Identity = %q, want player-abc", s.Identity)
	}
	if bridge.InitCalls != 1 {
		t.Errorf("init calls = %d, want 1", bridge.InitCalls)
	}

	// Auto-prompt and auto-register stay off; localhost counts as secure.
	cfg := bridge.LastInit
	if cfg.AppID != "app-123" {
		t.Errorf("init app id = %q, want app-123", cfg.AppID)
	}
	if cfg.AutoPrompt || cfg.AutoRegister {
		t.Error("auto prompt/register enabled, want both disabled")
	}
	if !cfg.LocalhostAsSecure {
		t.Error("LocalhostAsSecure = false, want true")
	}
}

func TestOneSignal_InitializeIsIdempotent(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))

	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize() error = %v", err)
	}
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize() error = %v", err)
	}
	if bridge.InitCalls != 1 {
		t.Errorf("init calls = %d, want 1 (second call is a no-op)", bridge.InitCalls)
	}
}

func TestOneSignal_MissingAppIDAbortsBeforePolling(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions(""))

	err := mgr.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() without app ID: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeConfigMissing {
		t.Fatalf("error = %v, want CONFIG_MISSING", err)
	}
	if bridge.AvailableCalls() != 0 {
		t.Errorf("sdk polls = %d, want 0 (abort before first poll)", bridge.AvailableCalls())
	}
	if s := mgr.Status(); s.Error == "" {
		t.Error("Error is empty, want configuration failure description")
	}
}

func TestOneSignal_SDKLoadTimeout(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))
	bridge.AvailableOnAttempt = 0 // never loads

	err := mgr.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() with missing SDK: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeSDKLoadTimeout {
		t.Fatalf("error = %v, want SDK_LOAD_TIMEOUT", err)
	}
	if bridge.AvailableCalls() != 5 {
		t.Errorf("sdk polls = %d, want 5 (bounded attempts)", bridge.AvailableCalls())
	}
	if bridge.InitCalls != 0 {
		t.Errorf("init calls = %d, want 0 after timeout", bridge.InitCalls)
	}
	if mgr.State() != StateError {
		t.Errorf("State() = %q, want error", mgr.State())
	}
}

func TestOneSignal_SDKAvailableOnLaterAttempt(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))
	bridge.AvailableOnAttempt = 3

	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if bridge.AvailableCalls() != 3 {
		t.Errorf("sdk polls = %d, want 3", bridge.AvailableCalls())
	}
	if !mgr.Status().Initialized {
		t.Error("Initialized = false, want true")
	}
}

func TestOneSignal_InitializeCancelledDuringPoll(t *testing.T) {
	opts := fastOptions("app-123")
	opts.PollInterval = 50 * time.Millisecond
	mgr, _, bridge, _ := newOneSignalTestManager(t, opts)
	bridge.AvailableOnAttempt = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := mgr.Initialize(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Initialize() error = %v, want deadline exceeded", err)
	}
}

func TestOneSignal_DiscoveryFailureDoesNotFailInit(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))
	bridge.PlayerIDErr = errors.New("sdk internal error")
	bridge.PushEnabledErr = errors.New("sdk internal error")

	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v (discovery is best-effort)", err)
	}

	s := mgr.Status()
	if !s.Initialized {
		t.Error("Initialized = false, want true")
	}
	if s.Subscribed {
		t.Error("Subscribed = true, want false (discovery failed)")
	}
	if s.Error != "" {
		t.Errorf("Error = %q, want empty (init succeeded)", s.Error)
	}
}

func TestOneSignal_SubscribeRequiresInitialization(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))

	err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() before Initialize(): expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeNotInitialized {
		t.Fatalf("error = %v, want NOT_INITIALIZED", err)
	}
	if bridge.PromptCalls != 0 {
		t.Errorf("prompt calls = %d, want 0", bridge.PromptCalls)
	}
}

func TestOneSignal_SubscribeHappyPath(t *testing.T) {
	mgr, browser, bridge, reg := newOneSignalTestManager(t, fastOptions("app-123"))
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	browser.PermissionResponse = platform.PermissionGranted
	bridge.PushEnabledValue = true
	bridge.PlayerIDValue = "player-xyz"

	if err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	s := mgr.Status()
	if !s.Subscribed {
		t.Error("Subscribed = false, want true")
	}
	if s.Identity != "player-xyz" {
		t.Errorf("Identity = %q, want player-xyz", s.Identity)
	}
	if mgr.PlayerID() != "player-xyz" {
		t.Errorf("PlayerID() = %q, want player-xyz", mgr.PlayerID())
	}
	if bridge.PromptCalls != 1 {
		t.Errorf("prompt calls = %d, want 1", bridge.PromptCalls)
	}
	if reg.identifyCalls != 1 {
		t.Errorf("registry identify calls = %d, want 1", reg.identifyCalls)
	}
	if reg.lastPlayerID != "player-xyz" {
		t.Errorf("identified player = %q, want player-xyz", reg.lastPlayerID)
	}
}

func TestOneSignal_SubscribeDeniedPermission(t *testing.T) {
	mgr, browser, bridge, reg := newOneSignalTestManager(t, fastOptions("app-123"))
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	browser.PermissionResponse = platform.PermissionDenied

	err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() with denied permission: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodePermissionDenied {
		t.Fatalf("error = %v, want PERMISSION_DENIED", err)
	}
	if bridge.PromptCalls != 0 {
		t.Errorf("prompt calls = %d, want 0 after denial", bridge.PromptCalls)
	}
	if reg.identifyCalls != 0 {
		t.Errorf("registry identify calls = %d, want 0", reg.identifyCalls)
	}
}

func TestOneSignal_SubscribePushNotEnabledIsNotAnError(t *testing.T) {
	mgr, _, bridge, reg := newOneSignalTestManager(t, fastOptions("app-123"))
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	bridge.PushEnabledValue = false

	if err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v, want nil (vendor not yet enabled)", err)
	}
	if mgr.Status().Subscribed {
		t.Error("Subscribed = true, want false")
	}
	if reg.identifyCalls != 0 {
		t.Errorf("registry identify calls = %d, want 0", reg.identifyCalls)
	}
}

func TestOneSignal_IdentifyFailureIsBestEffort(t *testing.T) {
	mgr, _, bridge, reg := newOneSignalTestManager(t, fastOptions("app-123"))
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	bridge.PushEnabledValue = true
	bridge.PlayerIDValue = "player-xyz"
	reg.identifyErr = errors.New("http 500")

	if err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v (identify is best-effort)", err)
	}
	if !mgr.Status().Subscribed {
		t.Error("Subscribed = false, want true despite identify failure")
	}
}

func TestOneSignal_PlayerIDReadableDuringLifecycle(t *testing.T) {
	mgr, browser, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))
	if err := mgr.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	browser.PermissionResponse = platform.PermissionGranted
	bridge.PushEnabledValue = true

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				_ = mgr.PlayerID()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		bridge.PlayerIDValue = "player-xyz"
		if err := mgr.Subscribe(context.Background()); err != nil {
			t.Fatalf("Subscribe() iteration %d: %v", i, err)
		}
	}
	close(stop)
	<-done

	if mgr.PlayerID() != "player-xyz" {
		t.Errorf("PlayerID() = %q, want player-xyz", mgr.PlayerID())
	}
}

func TestOneSignal_InitializeWhileLoadingIsRejected(t *testing.T) {
	mgr, _, bridge, _ := newOneSignalTestManager(t, fastOptions("app-123"))

	if err := mgr.status.begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}

	err := mgr.Initialize(context.Background())
	if err == nil {
		t.Fatal("Initialize() while loading: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeOperationInFlight {
		t.Fatalf("error = %v, want OPERATION_IN_FLIGHT", err)
	}
	if bridge.InitCalls != 0 {
		t.Errorf("init calls = %d, want 0", bridge.InitCalls)
	}
}

func TestOneSignal_UnsupportedBrowser(t *testing.T) {
	browser := platform.NewMockBrowser()
	browser.SetCapabilities(platform.Capabilities{PushManager: true}) // no SW, no notifications
	mgr := NewOneSignalManager(browser, platform.NewMockSDKBridge(), &fakeRegistry{}, fastOptions("app-123"))

	if mgr.State() != StateUnsupported {
		t.Fatalf("State() = %q, want unsupported", mgr.State())
	}
	if err := mgr.Initialize(context.Background()); err == nil {
		t.Fatal("Initialize() on unsupported platform: expected error")
	}
}
