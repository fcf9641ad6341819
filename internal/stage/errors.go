package stage

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a stage error so the orchestrator can decide
// retry-vs-fail mechanically, without inspecting messages.
type Kind int

const (
	// KindInput marks malformed or empty input. Fatal, never retried.
	KindInput Kind = iota
	// KindTransient marks timeouts and rate limits. Retried per policy.
	KindTransient
	// KindPermanent marks malformed collaborator responses and
	// unsupported content. Fatal, never retried.
	KindPermanent
	// KindStorage marks result-store failures. Fatal for the owning stage.
	KindStorage
	// KindDelivery marks callback transport failures. Retried then
	// dead-lettered, never fatal to the job.
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindStorage:
		return "storage"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error. Code and Message are safe to expose
// to callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Constructors for each kind.

func Input(code, message string) *Error {
	return &Error{Kind: KindInput, Code: code, Message: message}
}

func Transient(code, message string, err error) *Error {
	return &Error{Kind: KindTransient, Code: code, Message: message, Err: err}
}

func Permanent(code, message string, err error) *Error {
	return &Error{Kind: KindPermanent, Code: code, Message: message, Err: err}
}

func Storage(code, message string, err error) *Error {
	return &Error{Kind: KindStorage, Code: code, Message: message, Err: err}
}

func Delivery(code, message string, err error) *Error {
	return &Error{Kind: KindDelivery, Code: code, Message: message, Err: err}
}

// KindOf extracts the classification of err. Deadline expiry counts as
// transient; anything unclassified is treated as permanent so unknown
// failures halt the pipeline instead of looping.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindPermanent
}

// Retryable reports whether err is eligible for another attempt.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// CodeOf returns the stable error code for err, or fallback when err
// carries none.
func CodeOf(err error, fallback string) string {
	var se *Error
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "COLLABORATOR_TIMEOUT"
	}
	return fallback
}

// MessageOf returns the caller-safe message for err, or fallback.
func MessageOf(err error, fallback string) string {
	var se *Error
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
