// Package platform defines the notification-platform capability interfaces
// consumed by the channel managers.
//
// The browser APIs (Notification permission model, Service Worker lifecycle,
// Push API) and the OneSignal vendor SDK are global singletons in a real
// user agent. They are modeled here as injected collaborators so the
// managers never touch global mutable state and tests can substitute fakes.
package platform

import (
	"context"
	"errors"
)

// Permission is the platform notification permission state.
type Permission string

// Permission values mirror the Notification API permission model.
const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ErrNoRegistration is returned by Ready when no service worker was
// registered for the requested scope.
var ErrNoRegistration = errors.New("no service worker registration for scope")

// Capabilities is the set of platform features probed at channel start.
type Capabilities struct {
	ServiceWorker bool
	PushManager   bool
	Notifications bool
}

// SubscriptionKeys carries the encryption key material of a push
// subscription (base64url-encoded, as the platform hands them out).
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is a platform-issued push subscription: an endpoint URL plus
// encryption keys identifying one browser installation.
type Subscription struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SubscribeOptions parameterizes push subscription creation.
type SubscribeOptions struct {
	// UserVisibleOnly must be true; push services reject silent push.
	UserVisibleOnly bool

	// ApplicationServerKey is the decoded VAPID public key.
	ApplicationServerKey []byte
}

// Registration is a handle to a service-worker registration at one scope.
type Registration interface {
	// Scope returns the registration scope.
	Scope() string

	// Subscription returns the existing push subscription, or (nil, nil)
	// when none exists.
	Subscription(ctx context.Context) (*Subscription, error)

	// Subscribe creates a new push subscription.
	Subscribe(ctx context.Context, opts SubscribeOptions) (*Subscription, error)

	// Unsubscribe revokes the subscription with the given endpoint.
	Unsubscribe(ctx context.Context, endpoint string) error
}

// Browser models the slice of the user agent the channel managers interact
// with. Implementations bridge to a real browser context; the in-memory
// fake in this package serves tests and the operator CLI.
type Browser interface {
	// Capabilities reports which platform features are present. Stable for
	// the lifetime of the browser context.
	Capabilities() Capabilities

	// Permission returns the current notification permission without
	// prompting.
	Permission() Permission

	// RequestPermission shows the platform permission prompt. The platform
	// itself deduplicates prompts once a decision is recorded.
	RequestPermission(ctx context.Context) (Permission, error)

	// Registration looks up an existing registration at scope, returning
	// (nil, nil) when absent.
	Registration(ctx context.Context, scope string) (Registration, error)

	// Register installs the worker script at scope.
	Register(ctx context.Context, script, scope string) (Registration, error)

	// Ready blocks until the registration at scope is active. The platform
	// gives no completion bound; cancellation is the caller's context.
	Ready(ctx context.Context, scope string) (Registration, error)

	// UserAgent returns the user-agent string reported to the registry.
	UserAgent() string
}

// InitConfig is the fixed configuration enqueued into the vendor SDK.
type InitConfig struct {
	AppID string

	// AutoPrompt and AutoRegister stay false: the manager drives the
	// permission prompt and registration itself.
	AutoPrompt   bool
	AutoRegister bool

	// LocalhostAsSecure treats localhost as a secure origin in development.
	LocalhostAsSecure bool
}

// SDKBridge models the OneSignal vendor SDK's command queue. The vendor
// dispatches enqueued commands asynchronously; Init returning nil means the
// command was accepted, not that initialization completed. Callers that
// need a settled SDK must wait out the settling delay documented by the
// channel manager.
type SDKBridge interface {
	// Available reports whether the vendor script has loaded and the SDK
	// global exists.
	Available() bool

	// Init enqueues the SDK initialization command.
	Init(ctx context.Context, cfg InitConfig) error

	// PlayerID returns the vendor's device identifier, or "" when the
	// device is not yet registered.
	PlayerID(ctx context.Context) (string, error)

	// PushEnabled reports whether the vendor considers push enabled for
	// this installation.
	PushEnabled(ctx context.Context) (bool, error)

	// ShowNativePrompt enqueues the vendor's native permission prompt.
	ShowNativePrompt(ctx context.Context) error
}
