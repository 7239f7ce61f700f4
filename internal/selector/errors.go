// Package selector implements the provider selector with failover (C4):
// it turns a resolved canonical model into an ordered plan of provider
// bindings and executes a caller-supplied dispatch function across that
// plan, applying health-aware retry.
package selector

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed error-kind enum from SPEC_FULL §8.
type ErrorKind string

const (
	KindUnknownModel                  ErrorKind = "unknown_model"
	KindNoAvailableProvider           ErrorKind = "no_available_provider"
	KindProviderTransient             ErrorKind = "provider_transient"
	KindProviderCredentialOrAvailable ErrorKind = "provider_credential_or_availability"
	KindProviderClient                ErrorKind = "provider_client"
	KindDeadlineExceeded              ErrorKind = "deadline_exceeded"
	KindCancelled                     ErrorKind = "cancelled"
	KindPricingMissing                ErrorKind = "pricing_missing"
)

const rawMessageTruncateAt = 500

// Error is the typed error every provider-adapter failure is normalized
// into before it reaches the selector or the caller.
type Error struct {
	Kind       ErrorKind
	Provider   string
	NativeID   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: provider=%s status=%d: %s", e.Kind, e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError constructs an Error, truncating the raw message per the
// attempts-list propagation policy in SPEC_FULL §8.
func NewError(kind ErrorKind, provider, nativeID string, status int, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > rawMessageTruncateAt {
		msg = msg[:rawMessageTruncateAt]
	}
	return &Error{Kind: kind, Provider: provider, NativeID: nativeID, StatusCode: status, Message: msg, Cause: cause}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is
// a *Error; otherwise it classifies network/unknown errors as
// ProviderTransient, matching "retry on transport errors" in SPEC_FULL §5.3.
func KindOf(err error) ErrorKind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindProviderTransient
}

// ClassifyHTTPStatus maps a provider HTTP status code to an ErrorKind per
// SPEC_FULL §8.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch status {
	case 401, 403, 404:
		return KindProviderCredentialOrAvailable
	case 400, 422:
		return KindProviderClient
	case 408, 425, 429, 500, 502, 503, 504:
		return KindProviderTransient
	default:
		switch {
		case status >= 500:
			return KindProviderTransient
		case status >= 400:
			return KindProviderClient
		default:
			return KindProviderTransient
		}
	}
}

// Retryable reports whether the selector should try the next binding in
// the plan after an error of this kind.
func Retryable(kind ErrorKind) bool {
	switch kind {
	case KindProviderTransient, KindProviderCredentialOrAvailable:
		return true
	default:
		return false
	}
}
