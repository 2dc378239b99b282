// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies every failure a caller can observe.
type Kind string

const (
	KindRateLimited   Kind = "rate_limit_exceeded"
	KindUpstream      Kind = "upstream_api_error"
	KindInternal      Kind = "internal_error"
	KindNoCredentials Kind = "no_session_credentials"
	KindProtocol      Kind = "protocol_error"
)

// Messages shown to callers for kinds that carry no upstream detail.
const (
	MsgRateLimited   = "Rate limit exceeded"
	MsgInternal      = "An unexpected error occurred"
	MsgNoCredentials = "No twitter client for this session"
)

// Error is the single error shape surfaced by the social client and the
// tool layer.
type Error struct {
	Kind    Kind
	Message string
	// Code is the upstream error code when Kind is KindUpstream, otherwise the kind.
	Code   string
	Status int
	// Detail holds the raw upstream error body, if any.
	Detail []byte
	cause  error
}

func (e *Error) Error() string {
	if e.Code != "" && e.Code != string(e.Kind) {
		return fmt.Sprintf("%s: %s (code %s)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// RateLimited returns the error for a call denied by local pacing.
func RateLimited(endpoint string) *Error {
	return &Error{
		Kind:    KindRateLimited,
		Message: MsgRateLimited,
		Code:    string(KindRateLimited),
		Status:  http.StatusTooManyRequests,
		cause:   fmt.Errorf("endpoint %s paced", endpoint),
	}
}

// Upstream returns an error carrying the API's own message and code.
func Upstream(status int, code, message string, detail []byte) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindUpstream, Message: message, Code: code, Status: status, Detail: detail}
}

// NoCredentials returns the error for a dispatch without a bound token pair.
func NoCredentials() *Error {
	return &Error{
		Kind:    KindNoCredentials,
		Message: MsgNoCredentials,
		Code:    string(KindNoCredentials),
		Status:  http.StatusUnauthorized,
	}
}

// Internal wraps err without exposing its text to callers.
func Internal(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: MsgInternal,
		Code:    string(KindInternal),
		Status:  http.StatusInternalServerError,
		cause:   err,
	}
}

// Normalize maps any failure onto the taxonomy. Errors that already carry a
// kind pass through unchanged; everything else becomes KindInternal.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// IsKind reports whether err normalizes to kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return Normalize(err).Kind == kind
}
