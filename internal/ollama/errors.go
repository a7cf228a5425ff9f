// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"errors"
	"fmt"

	"github.com/jeranaias/codeassist/internal/transport"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeHTTP
	ErrTypeAPI
	ErrTypeMalformedResponse
	ErrTypeMissingCredential
	ErrTypeEmptyBody
)

// String returns a stable label, also used as a metrics outcome.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeConnection:
		return "connection"
	case ErrTypeHTTP:
		return "http"
	case ErrTypeAPI:
		return "api"
	case ErrTypeMalformedResponse:
		return "malformed_response"
	case ErrTypeMissingCredential:
		return "missing_credential"
	case ErrTypeEmptyBody:
		return "empty_body"
	default:
		return "unknown"
	}
}

// ClientError represents a normalized error from the inference client.
// Timeouts are not ClientErrors; they surface as *transport.TimeoutError.
type ClientError struct {
	Type    ErrorType
	Message string

	// StatusCode, Status and Body are set for ErrTypeHTTP and ErrTypeAPI.
	StatusCode int
	Status     string
	Body       string

	Cause error
}

func (e *ClientError) Error() string {
	msg := e.Message
	switch e.Type {
	case ErrTypeHTTP:
		msg = fmt.Sprintf("%s: HTTP %d: %s", e.Message, e.StatusCode, e.Status)
	case ErrTypeAPI:
		msg = fmt.Sprintf("%s: %d %s", e.Message, e.StatusCode, e.Status)
		if e.Body != "" {
			msg += " - " + e.Body
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ModelListError wraps every non-timeout failure of ListModels.
type ModelListError struct {
	Err error
}

func (e *ModelListError) Error() string {
	return "failed to list models: " + e.Err.Error()
}

func (e *ModelListError) Unwrap() error {
	return e.Err
}

// missingCredentialError is returned in third-party mode when no API key is
// set. Callers test for it with IsMissingCredential.
func missingCredentialError() *ClientError {
	return &ClientError{
		Type:    ErrTypeMissingCredential,
		Message: "third-party API key is not configured",
	}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// normalizeError funnels every failure into the caller-facing kinds.
// Timeouts and already-normalized errors pass through unchanged; a raw network
// failure becomes ErrTypeConnection. Classification is by type, never by text.
func normalizeError(mode BackendMode, err error) error {
	if err == nil {
		return nil
	}
	if transport.IsTimeout(err) {
		return err
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return err
	}
	if transport.IsNetwork(err) {
		return &ClientError{Type: ErrTypeConnection, Message: unreachableMessage(mode), Cause: err}
	}
	return &ClientError{Type: ErrTypeUnknown, Message: "request failed", Cause: err}
}

func unreachableMessage(mode BackendMode) string {
	if mode == ModeThirdParty {
		return "cannot connect to the third-party API, the service appears unreachable"
	}
	return "cannot connect to the Ollama service, make sure Ollama is running"
}

func apiErrorPrefix(mode BackendMode) string {
	if mode == ModeThirdParty {
		return "third-party API request failed"
	}
	return "API request failed"
}

// =============================================================================
// PREDICATES
// =============================================================================

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == t
	}
	return false
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	return transport.IsTimeout(err)
}

// IsConnection checks if an error indicates the backend could not be reached.
func IsConnection(err error) bool {
	return hasType(err, ErrTypeConnection)
}

// IsAPIError checks if an error carries a non-2xx HTTP status.
func IsAPIError(err error) bool {
	return hasType(err, ErrTypeAPI) || hasType(err, ErrTypeHTTP)
}

// IsMalformed checks if a response was missing an expected field.
func IsMalformed(err error) bool {
	return hasType(err, ErrTypeMalformedResponse)
}

// IsMissingCredential checks if the third-party API key was absent.
func IsMissingCredential(err error) bool {
	return hasType(err, ErrTypeMissingCredential)
}

// IsModelListError checks if an error came from ListModels.
func IsModelListError(err error) bool {
	var listErr *ModelListError
	return errors.As(err, &listErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}

// outcome labels err for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if transport.IsTimeout(err) {
		return "timeout"
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type.String()
	}
	return "error"
}
