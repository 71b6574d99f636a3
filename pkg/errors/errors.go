// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed error taxonomy shared by every layer of
// the credential pipeline.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrConfiguration is returned when no authentication method can be
	// resolved from the given inputs. Not retryable.
	ErrConfiguration = "configuration"

	// ErrValidation is returned when a per-operation credential bundle is
	// malformed. Not retryable.
	ErrValidation = "validation"

	// ErrAuthentication is returned when a structurally valid credential was
	// rejected, expired without refresh, or failed to refresh.
	ErrAuthentication = "authentication"

	// ErrUpstream is returned for network and 5xx failures while talking to
	// the token or identity endpoints. Safe to retry with backoff.
	ErrUpstream = "upstream"

	// ErrCancelled is returned when the enclosing operation was cancelled or
	// timed out while a refresh or validation call was in flight.
	ErrCancelled = "cancelled"
)

// StatusClientClosedRequest is the non-standard status used for cancelled operations.
const StatusClientClosedRequest = 499

// Error represents an error in the credential pipeline
type Error struct {
	// Type is the error type
	Type string

	// Service is the backing service the error relates to, if known
	Service string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	prefix := e.Type
	if e.Service != "" {
		prefix = fmt.Sprintf("%s (%s)", e.Type, e.Service)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %s", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithService returns a copy of the error tagged with the given service.
// An existing service tag is kept.
func (e *Error) WithService(service string) *Error {
	c := *e
	if c.Service == "" {
		c.Service = service
	}
	return &c
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *Error {
	return NewError(ErrValidation, message, cause)
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, cause error) *Error {
	return NewError(ErrAuthentication, message, cause)
}

// NewUpstreamError creates a new upstream error
func NewUpstreamError(message string, cause error) *Error {
	return NewError(ErrUpstream, message, cause)
}

// NewCancelledError creates a new cancelled error
func NewCancelledError(message string, cause error) *Error {
	return NewError(ErrCancelled, message, cause)
}

// FromContext returns a cancelled error if ctx is done, nil otherwise.
func FromContext(ctx context.Context, message string) *Error {
	if err := ctx.Err(); err != nil {
		return NewCancelledError(message, err)
	}
	return nil
}

// TypeOf returns the type of the first *Error in err's chain, or "" if none.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return TypeOf(err) == ErrConfiguration
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return TypeOf(err) == ErrValidation
}

// IsAuthentication checks if the error is an authentication error
func IsAuthentication(err error) bool {
	return TypeOf(err) == ErrAuthentication
}

// IsUpstream checks if the error is an upstream error
func IsUpstream(err error) bool {
	return TypeOf(err) == ErrUpstream
}

// IsCancelled checks if the error is a cancelled error or a bare context error
func IsCancelled(err error) bool {
	if TypeOf(err) == ErrCancelled {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Retryable reports whether the caller may retry the failed operation with
// the same credential.
func Retryable(err error) bool {
	return IsUpstream(err)
}

// HTTPStatus maps the error taxonomy to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsCancelled(err):
		return StatusClientClosedRequest
	case IsValidation(err):
		return http.StatusBadRequest
	case IsAuthentication(err):
		return http.StatusUnauthorized
	case IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
