package platform

import (
	"context"
	"fmt"
	"sync"
)

// MockBrowser implements Browser for testing without a real user agent.
type MockBrowser struct {
	mu sync.RWMutex

	caps       Capabilities
	permission Permission
	// PermissionResponse is what RequestPermission resolves to.
	PermissionResponse Permission
	// RequestPermissionErr makes the permission prompt itself fail.
	RequestPermissionErr error
	// RegisterErr makes worker registration fail (e.g. with a MIME-type
	// deployment error).
	RegisterErr error
	// SubscribeErr makes push subscription creation fail.
	SubscribeErr error

	userAgent     string
	registrations map[string]*MockRegistration // key: scope

	// Call counters for interaction assertions.
	RequestPermissionCalls int
	RegisterCalls          int
	ReadyCalls             int
}

// NewMockBrowser creates a browser fake with the full capability set and an
// undecided permission.
func NewMockBrowser() *MockBrowser {
	return &MockBrowser{
		caps: Capabilities{
			ServiceWorker: true,
			PushManager:   true,
			Notifications: true,
		},
		permission:         PermissionDefault,
		PermissionResponse: PermissionGranted,
		userAgent:          "pushgate-mock/1.0",
		registrations:      make(map[string]*MockRegistration),
	}
}

// SetCapabilities overrides the probed capability set.
func (b *MockBrowser) SetCapabilities(caps Capabilities) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps = caps
}

// SetPermission sets the already-decided permission state.
func (b *MockBrowser) SetPermission(p Permission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.permission = p
}

// Reset clears all registrations and counters.
func (b *MockBrowser) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations = make(map[string]*MockRegistration)
	b.permission = PermissionDefault
	b.RequestPermissionCalls = 0
	b.RegisterCalls = 0
	b.ReadyCalls = 0
}

func (b *MockBrowser) Capabilities() Capabilities {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.caps
}

func (b *MockBrowser) Permission() Permission {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.permission
}

func (b *MockBrowser) RequestPermission(_ context.Context) (Permission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RequestPermissionCalls++
	if b.RequestPermissionErr != nil {
		return PermissionDefault, b.RequestPermissionErr
	}
	// The platform deduplicates: a decided permission is sticky.
	if b.permission == PermissionDefault {
		b.permission = b.PermissionResponse
	}
	return b.permission, nil
}

func (b *MockBrowser) Registration(_ context.Context, scope string) (Registration, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	reg, ok := b.registrations[scope]
	if !ok {
		return nil, nil
	}
	return reg, nil
}

func (b *MockBrowser) Register(_ context.Context, script, scope string) (Registration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.RegisterCalls++
	if b.RegisterErr != nil {
		return nil, b.RegisterErr
	}
	reg := &MockRegistration{scope: scope, script: script, parent: b}
	b.registrations[scope] = reg
	return reg, nil
}

func (b *MockBrowser) Ready(_ context.Context, scope string) (Registration, error) {
	b.mu.Lock()
	b.ReadyCalls++
	reg, ok := b.registrations[scope]
	b.mu.Unlock()
	if !ok {
		return nil, ErrNoRegistration
	}
	return reg, nil
}

func (b *MockBrowser) UserAgent() string { return b.userAgent }

// MockRegistration is the registration handle produced by MockBrowser.
type MockRegistration struct {
	mu     sync.Mutex
	scope  string
	script string
	sub    *Subscription
	parent *MockBrowser

	SubscribeCalls   int
	UnsubscribeCalls int
}

func (r *MockRegistration) Scope() string { return r.scope }

// Seed installs a pre-existing subscription (idempotent re-subscribe path).
func (r *MockRegistration) Seed(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sub = sub
}

func (r *MockRegistration) Subscription(_ context.Context) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub, nil
}

func (r *MockRegistration) Subscribe(_ context.Context, opts SubscribeOptions) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SubscribeCalls++
	if r.parent != nil && r.parent.SubscribeErr != nil {
		return nil, r.parent.SubscribeErr
	}
	if len(opts.ApplicationServerKey) == 0 {
		return nil, fmt.Errorf("applicationServerKey is empty")
	}
	r.sub = &Subscription{
		Endpoint: fmt.Sprintf("https://push.example/%s/%d", r.scope, r.SubscribeCalls),
		Keys: SubscriptionKeys{
			P256dh: "BMockP256dhKey",
			Auth:   "mock-auth",
		},
	}
	return r.sub, nil
}

func (r *MockRegistration) Unsubscribe(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UnsubscribeCalls++
	if r.sub == nil || r.sub.Endpoint != endpoint {
		return fmt.Errorf("no subscription with endpoint %s", endpoint)
	}
	r.sub = nil
	return nil
}

// compile-time checks
var (
	_ Browser      = (*MockBrowser)(nil)
	_ Registration = (*MockRegistration)(nil)
)

// MockSDKBridge implements SDKBridge for testing the OneSignal channel
// manager without the vendor script.
type MockSDKBridge struct {
	mu sync.Mutex

	// AvailableOnAttempt makes Available() return true starting from the
	// Nth call (1-based). Zero means never available.
	AvailableOnAttempt int
	availableCalls     int

	// InitErr makes the init enqueue fail.
	InitErr error
	// PlayerIDValue / PlayerIDErr control identity discovery.
	PlayerIDValue string
	PlayerIDErr   error
	// PushEnabledValue / PushEnabledErr control subscription-state discovery.
	PushEnabledValue bool
	PushEnabledErr   error
	// PromptErr makes the native prompt enqueue fail.
	PromptErr error

	InitCalls   int
	PromptCalls int
	LastInit    InitConfig
}

// NewMockSDKBridge creates a bridge fake that is available immediately.
func NewMockSDKBridge() *MockSDKBridge {
	return &MockSDKBridge{AvailableOnAttempt: 1}
}

func (s *MockSDKBridge) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availableCalls++
	return s.AvailableOnAttempt > 0 && s.availableCalls >= s.AvailableOnAttempt
}

// AvailableCalls returns how many times Available was polled.
func (s *MockSDKBridge) AvailableCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableCalls
}

func (s *MockSDKBridge) Init(_ context.Context, cfg InitConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitCalls++
	s.LastInit = cfg
	return s.InitErr
}

func (s *MockSDKBridge) PlayerID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PlayerIDErr != nil {
		return "", s.PlayerIDErr
	}
	return s.PlayerIDValue, nil
}

func (s *MockSDKBridge) PushEnabled(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PushEnabledErr != nil {
		return false, s.PushEnabledErr
	}
	return s.PushEnabledValue, nil
}

func (s *MockSDKBridge) ShowNativePrompt(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PromptCalls++
	return s.PromptErr
}

var _ SDKBridge = (*MockSDKBridge)(nil)
