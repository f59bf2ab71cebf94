package errs

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure classes raised by the external platform and market clients.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrivacy
	KindConfiguration
	KindRateLimit
	KindBadRequest
	KindServer
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindPrivacy:
		return "PRIVACY"
	case KindConfiguration:
		return "CONFIGURATION"
	case KindRateLimit:
		return "RATE_LIMITED"
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindServer:
		return "SERVER_ERROR"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Status reasons persisted on an account that ended a run in the error state.
const (
	CategoryPrivacy       = "PRIVACY_ERROR"
	CategoryConfiguration = "CONFIGURATION_ERROR"
	CategoryRateLimit     = "RATE_LIMIT_ERROR"
	CategoryBadRequest    = "BAD_REQUEST_ERROR"
	CategoryUnknown       = "UNKNOWN_ERROR"
)

// Error is a classified failure with structured fields.
type Error struct {
	Kind   Kind
	Status int    // HTTP status when the failure came from a response, 0 otherwise
	Reason string // machine reason, e.g. PRIVATE_INVENTORY
	Detail string
	Err    error
}

// E builds a classified error.
func E(kind Kind, status int, reason, detail string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Reason: reason, Detail: detail, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" && e.Reason != msg {
		msg += "/" + e.Reason
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (http %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindServer, KindTimeout:
		return true
	default:
		return false
	}
}

// Category maps the kind onto the status reason stored with the account.
func (e *Error) Category() string {
	switch e.Kind {
	case KindPrivacy:
		return CategoryPrivacy
	case KindConfiguration:
		return CategoryConfiguration
	case KindRateLimit:
		return CategoryRateLimit
	case KindBadRequest:
		return CategoryBadRequest
	default:
		return CategoryUnknown
	}
}

// As extracts a classified error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CategoryOf returns the status reason for any error; unclassified errors are UNKNOWN_ERROR.
func CategoryOf(err error) string {
	if e, ok := As(err); ok {
		return e.Category()
	}
	return CategoryUnknown
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}
