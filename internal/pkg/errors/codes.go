package errors

import "net/http"

// Error code constants. Errors carry code + message; the dashboard maps
// codes to localized copy, backend logs stay in English.

// Channel lifecycle error codes (agent side).
const (
	CodeChannelUnsupported = "CHANNEL_UNSUPPORTED"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeConfigMissing      = "CONFIG_MISSING"
	CodeSDKLoadTimeout     = "SDK_LOAD_TIMEOUT"
	CodeWorkerAssetInvalid = "WORKER_ASSET_MISCONFIGURED"
	CodeRegistrySyncFailed = "REGISTRY_SYNC_FAILED"
	CodeOperationInFlight  = "OPERATION_IN_FLIGHT"
	CodeSubscribeFailed    = "SUBSCRIBE_FAILED"
	CodeNotInitialized     = "NOT_INITIALIZED"
)

// Registry service error codes.
const (
	CodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	CodePlayerNotFound       = "PLAYER_NOT_FOUND"
	CodeDispatchFailed       = "DISPATCH_FAILED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeChannelNotConfigured = "CHANNEL_NOT_CONFIGURED"
)

// Auth / validation error codes.
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Convenience constructors using predefined codes.

// ErrChannelUnsupported reports a missing browser capability set.
func ErrChannelUnsupported(channel string) *AppError {
	return &AppError{
		Code:       CodeChannelUnsupported,
		Message:    "required platform capabilities are missing for channel " + channel,
		HTTPStatus: http.StatusPreconditionFailed,
	}
}

// ErrPermissionDenied reports a declined notification permission prompt.
func ErrPermissionDenied() *AppError {
	return &AppError{
		Code:       CodePermissionDenied,
		Message:    "notification permission was denied",
		HTTPStatus: http.StatusForbidden,
	}
}

// ErrConfigMissing reports an absent build-time identifier (VAPID key,
// OneSignal app ID). Distinguishable from runtime failures.
func ErrConfigMissing(what string) *AppError {
	return &AppError{
		Code:       CodeConfigMissing,
		Message:    what + " is not configured",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// ErrSDKLoadTimeout reports that the vendor SDK never became available
// within the bounded poll window. Points the operator at script loading
// or network, not credentials.
func ErrSDKLoadTimeout(attempts int) *AppError {
	return &AppError{
		Code:       CodeSDKLoadTimeout,
		Message:    "OneSignal SDK failed to load",
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// ErrOperationInFlight reports a rejected overlapping channel operation.
func ErrOperationInFlight(channel string) *AppError {
	return &AppError{
		Code:       CodeOperationInFlight,
		Message:    "an operation is already in flight on channel " + channel,
		HTTPStatus: http.StatusConflict,
	}
}
