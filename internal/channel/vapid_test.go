package channel

import (
	"context"
	"errors"
	"testing"

	apperrors "pushgate.io/pushgate/internal/pkg/errors"
	"pushgate.io/pushgate/internal/platform"
)

const testVAPIDKey = "BGSDSV-nFQgxb060QUDjogGfL6sUEQCnzNO4x4ozffRY3kgmbGUv4e8nB1o72qP9veRl3sfmNclC5l--L--_WK4"

func newVAPIDTestManager(t *testing.T) (*VAPIDManager, *platform.MockBrowser, *fakeRegistry) {
	t.Helper()
	browser := platform.NewMockBrowser()
	reg := &fakeRegistry{}
	mgr := NewVAPIDManager(browser, reg, VAPIDOptions{
		PublicKey:    testVAPIDKey,
		WorkerScript: "/sw.js",
		WorkerScope:  "/",
	})
	return mgr, browser, reg
}

func TestVAPID_UnsupportedBrowser(t *testing.T) {
	browser := platform.NewMockBrowser()
	browser.SetCapabilities(platform.Capabilities{ServiceWorker: true, Notifications: true}) // no PushManager
	mgr := NewVAPIDManager(browser, &fakeRegistry{}, VAPIDOptions{PublicKey: testVAPIDKey})

	if mgr.Status().Supported {
		t.Fatal("Supported = true, want false")
	}
	if mgr.State() != StateUnsupported {
		t.Fatalf("State() = %q, want unsupported", mgr.State())
	}
	if _, err := mgr.Subscribe(context.Background()); err == nil {
		t.Fatal("Subscribe() on unsupported channel: expected error")
	}
}

func TestVAPID_SubscribeHappyPath(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	sub, err := mgr.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub == nil || sub.Endpoint == "" {
		t.Fatal("Subscribe() returned empty subscription")
	}

	s := mgr.Status()
	if !s.Subscribed {
		t.Error("Subscribed = false, want true")
	}
	if s.Identity == "" {
		t.Error("Identity is empty, want endpoint")
	}
	if s.Loading {
		t.Error("Loading = true after completion")
	}
	if reg.registerCalls != 1 {
		t.Errorf("registry register calls = %d, want 1", reg.registerCalls)
	}
	if browser.RegisterCalls != 1 {
		t.Errorf("worker register calls = %d, want 1", browser.RegisterCalls)
	}
	if mgr.State() != StateSubscribed {
		t.Errorf("State() = %q, want subscribed", mgr.State())
	}
}

func TestVAPID_SubscribeReusesExistingSubscription(t *testing.T) {
	mgr, browser, _ := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	reg, err := browser.Register(context.Background(), "/sw.js", "/")
	if err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	existing := &platform.Subscription{
		Endpoint: "https://push.example/existing",
		Keys:     platform.SubscriptionKeys{P256dh: "k", Auth: "a"},
	}
	reg.(*platform.MockRegistration).Seed(existing)

	sub, err := mgr.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Endpoint != existing.Endpoint {
		t.Errorf("endpoint = %q, want reused %q", sub.Endpoint, existing.Endpoint)
	}
	if calls := reg.(*platform.MockRegistration).SubscribeCalls; calls != 0 {
		t.Errorf("platform subscribe calls = %d, want 0 (reuse)", calls)
	}
}

func TestVAPID_SubscribeWithoutPermission(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionDenied)

	_, err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() without permission: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodePermissionDenied {
		t.Fatalf("error = %v, want PERMISSION_DENIED", err)
	}
	if reg.registerCalls != 0 {
		t.Errorf("registry calls = %d, want 0", reg.registerCalls)
	}
}

func TestVAPID_SubscribeWhileLoadingIsRejected(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	// Simulate an in-flight operation.
	if err := mgr.status.begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}

	_, err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() while loading: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeOperationInFlight {
		t.Fatalf("error = %v, want OPERATION_IN_FLIGHT", err)
	}

	// No platform or network interaction happened.
	if browser.RegisterCalls != 0 || browser.ReadyCalls != 0 {
		t.Error("platform calls issued despite loading guard")
	}
	if reg.registerCalls != 0 {
		t.Error("registry call issued despite loading guard")
	}
}

func TestVAPID_RegistrySyncFailureKeepsLocalSubscription(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)
	reg.registerErr = errors.New("http 500: internal")

	sub, err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() with failing registry: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeRegistrySyncFailed {
		t.Fatalf("error = %v, want REGISTRY_SYNC_FAILED", err)
	}
	if sub == nil {
		t.Fatal("platform subscription should be returned despite sync failure")
	}

	// Local state reflects the platform's view.
	s := mgr.Status()
	if !s.Subscribed {
		t.Error("Subscribed = false, want true (platform subscription exists)")
	}
	if s.Identity == "" {
		t.Error("Identity is empty, want endpoint")
	}
	if s.Error == "" {
		t.Error("Error is empty, want registry failure description")
	}
}

func TestVAPID_UnsubscribeLocalFirst(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	if _, err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Registry delete fails; local state must be cleared anyway.
	reg.removeErr = errors.New("http 503")
	if err := mgr.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("Unsubscribe() error = %v (local-first must not fail)", err)
	}

	s := mgr.Status()
	if s.Subscribed {
		t.Error("Subscribed = true after unsubscribe, want false")
	}
	if s.Identity != "" {
		t.Errorf("Identity = %q after unsubscribe, want empty", s.Identity)
	}
	if reg.removeCalls != 1 {
		t.Errorf("registry remove calls = %d, want 1", reg.removeCalls)
	}
}

func TestVAPID_UnsubscribeWithoutSubscriptionIsNoop(t *testing.T) {
	mgr, _, reg := newVAPIDTestManager(t)

	if err := mgr.Unsubscribe(context.Background()); err != nil {
		t.Fatalf("Unsubscribe() error = %v, want nil no-op", err)
	}
	if reg.removeCalls != 0 {
		t.Errorf("registry remove calls = %d, want 0", reg.removeCalls)
	}
}

func TestVAPID_ToggleWhenSubscribed(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	if _, err := mgr.Subscribe(context.Background()); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	registerCallsBefore := reg.registerCalls

	if err := mgr.ToggleSubscription(context.Background()); err != nil {
		t.Fatalf("ToggleSubscription() error = %v", err)
	}

	// Exactly one unsubscribe, zero additional subscribes.
	if reg.removeCalls != 1 {
		t.Errorf("remove calls = %d, want 1", reg.removeCalls)
	}
	if reg.registerCalls != registerCallsBefore {
		t.Errorf("register calls = %d, want unchanged %d", reg.registerCalls, registerCallsBefore)
	}
	if mgr.Status().Subscribed {
		t.Error("Subscribed = true after toggle, want false")
	}
}

func TestVAPID_TogglePromptsBeforeSubscribe(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	// Permission undecided; prompt resolves to granted.
	browser.PermissionResponse = platform.PermissionGranted

	if err := mgr.ToggleSubscription(context.Background()); err != nil {
		t.Fatalf("ToggleSubscription() error = %v", err)
	}
	if browser.RequestPermissionCalls != 1 {
		t.Errorf("permission prompts = %d, want 1", browser.RequestPermissionCalls)
	}
	if reg.registerCalls != 1 {
		t.Errorf("register calls = %d, want 1", reg.registerCalls)
	}
	if !mgr.Status().Subscribed {
		t.Error("Subscribed = false after toggle, want true")
	}
}

func TestVAPID_ToggleStopsOnDeniedPermission(t *testing.T) {
	mgr, browser, reg := newVAPIDTestManager(t)
	browser.PermissionResponse = platform.PermissionDenied

	if err := mgr.ToggleSubscription(context.Background()); err == nil {
		t.Fatal("ToggleSubscription() with denied permission: expected error")
	}
	if browser.RequestPermissionCalls != 1 {
		t.Errorf("permission prompts = %d, want 1", browser.RequestPermissionCalls)
	}
	if reg.registerCalls != 0 {
		t.Errorf("register calls = %d, want 0 (no subscribe after denial)", reg.registerCalls)
	}
}

func TestVAPID_WorkerAssetMisconfigurationIsDistinguished(t *testing.T) {
	mgr, browser, _ := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)
	browser.RegisterErr = errors.New(`the script has an unsupported MIME type ('text/html')`)

	_, err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() with broken worker asset: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeWorkerAssetInvalid {
		t.Fatalf("error = %v, want WORKER_ASSET_MISCONFIGURED", err)
	}
}

func TestVAPID_SubscriptionReadableDuringLifecycle(t *testing.T) {
	mgr, browser, _ := newVAPIDTestManager(t)
	browser.SetPermission(platform.PermissionGranted)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				_ = mgr.Subscription()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		if _, err := mgr.Subscribe(context.Background()); err != nil {
			t.Fatalf("Subscribe() iteration %d: %v", i, err)
		}
		if err := mgr.Unsubscribe(context.Background()); err != nil {
			t.Fatalf("Unsubscribe() iteration %d: %v", i, err)
		}
	}
	close(stop)
	<-done

	if mgr.Subscription() != nil {
		t.Error("Subscription() non-nil after final unsubscribe")
	}
}

func TestVAPID_MissingPublicKeyIsConfigError(t *testing.T) {
	browser := platform.NewMockBrowser()
	browser.SetPermission(platform.PermissionGranted)
	mgr := NewVAPIDManager(browser, &fakeRegistry{}, VAPIDOptions{})

	_, err := mgr.Subscribe(context.Background())
	if err == nil {
		t.Fatal("Subscribe() without key: expected error")
	}
	appErr, ok := apperrors.IsAppError(err)
	if !ok || appErr.Code != apperrors.CodeConfigMissing {
		t.Fatalf("error = %v, want CONFIG_MISSING", err)
	}
}
