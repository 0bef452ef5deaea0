package apperr

import (
	"errors"
	"fmt"

	"github.com/mitchellbreust/mockwise/internal/reliability"
)

// Kind categorizes failures that cross a component boundary.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindUpstream       Kind = "upstream_service_error"
	KindNegotiation    Kind = "negotiation_error"
	KindTransport      Kind = "transport_error"
)

// Error is a typed failure surfaced to callers of the realtime core.
type Error struct {
	Kind    Kind
	Message string
	// Status is the upstream HTTP status when one was received.
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil && e.Detail == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a user-initiated retry can reasonably succeed.
// Nothing in the core retries on its own.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUpstream:
		if e.Status == 0 {
			return true
		}
		return reliability.IsRetryableHTTPStatus(e.Status)
	case KindNegotiation, KindTransport:
		return true
	default:
		return false
	}
}

// Details returns the most specific diagnostic text available.
func (e *Error) Details() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Authentication(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// Upstream wraps a failed call to an external service. status may be zero for
// network-level failures.
func Upstream(message string, status int, detail string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: message, Status: status, Detail: detail, Err: err}
}

func Negotiation(message string, err error) *Error {
	return &Error{Kind: KindNegotiation, Message: message, Err: err}
}

func Transport(message string, err error) *Error {
	return &Error{Kind: KindTransport, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
