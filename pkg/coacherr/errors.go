// Package coacherr defines the error taxonomy shared by all components.
// Errors carry a short machine-readable kind plus the component that raised
// them; lower-layer errors are wrapped, never masked.
package coacherr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the machine-readable error classification.
type Kind string

// Error kinds. The HTTP mapping lives in pkg/api.
const (
	KindImageFetch            Kind = "image_fetch"
	KindProviderAuth          Kind = "llm_provider_auth"
	KindProviderThrottled     Kind = "llm_provider_throttled"
	KindParseExhausted        Kind = "json_parse_exhausted"
	KindValidationRange       Kind = "validation_range"
	KindModerationReject      Kind = "moderation_reject"
	KindModerationUnavailable Kind = "moderation_service_unavailable"
	KindRetryExhausted        Kind = "retry_exhausted"
	KindRaceInvalid           Kind = "race_both_arms_invalid"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindTimeout               Kind = "timeout"
	KindInvalidRequest        Kind = "invalid_request"
	KindInternal              Kind = "internal"
)

// Error is a classified error raised by a component.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Component, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a message.
func New(kind Kind, component, message string) error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap classifies an underlying error. A nil err returns nil.
func Wrap(kind Kind, component, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// KindOf extracts the classification of err, or KindInternal when it carries
// none. Context deadline errors classify as KindTimeout.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
