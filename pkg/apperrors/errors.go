package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the services layer matches exactly one
// of these with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrConfiguration     = errors.New("configuration error")
	ErrUpstream          = errors.New("upstream error")
	ErrMalformedResponse = errors.New("malformed response")
	ErrUnreadableImage   = errors.New("unreadable image")
	ErrInvalidAnalysis   = errors.New("invalid analysis response")
	ErrStorage           = errors.New("storage error")
)

// Error carries an error kind together with a human-readable message and the
// underlying cause. errors.Is matches both the kind and anything in the cause chain.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// New creates an error of the given kind without a cause.
func New(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around cause.
// If cause already carries a kind it is returned unchanged so kinds never stack.
func Wrap(kind error, message string, cause error) error {
	if cause == nil {
		return New(kind, message)
	}
	if KindOf(cause) != nil {
		return cause
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound reports a missing entity by type and identifier.
func NotFound(entity, id string) *Error {
	return New(ErrNotFound, fmt.Sprintf("%s %q", entity, id))
}

// Storage wraps a driver error as a storage failure.
func Storage(op string, cause error) error {
	return Wrap(ErrStorage, op, cause)
}

var kinds = []error{
	ErrNotFound,
	ErrValidation,
	ErrConfiguration,
	ErrUpstream,
	ErrMalformedResponse,
	ErrUnreadableImage,
	ErrInvalidAnalysis,
	ErrStorage,
}

// KindOf returns the kind carried by err, or nil if err has none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message returns the message of the outermost *Error in the chain, falling
// back to err.Error().
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

var codes = map[error]string{
	ErrNotFound:          "not_found",
	ErrValidation:        "validation_error",
	ErrConfiguration:     "configuration_error",
	ErrUpstream:          "upstream_error",
	ErrMalformedResponse: "malformed_response",
	ErrUnreadableImage:   "unreadable_image",
	ErrInvalidAnalysis:   "invalid_analysis_response",
	ErrStorage:           "storage_error",
}

// Code returns a stable snake_case code for the kind carried by err, or
// "internal_error" when err has no kind.
func Code(err error) string {
	if c, ok := codes[KindOf(err)]; ok {
		return c
	}
	return "internal_error"
}
