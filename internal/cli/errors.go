// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jeranaias/codeassist/internal/commands"
	"github.com/jeranaias/codeassist/internal/config"
	"github.com/jeranaias/codeassist/internal/ollama"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates a missing or rejected credential
	ExitAuthError = 4
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
	// ExitAPIError indicates the backend answered with an error status
	ExitAPIError = 6
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// ConfigError marks a failure to load or apply configuration.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UsageError marks invalid arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// GetExitCode determines the exit code for an error. Classification uses
// error types only.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var configErr *ConfigError
	var validateErrs config.ValidateErrors

	switch {
	case errors.As(err, &usageErr), errors.Is(err, commands.ErrEmptyInput), errors.Is(err, commands.ErrUnknownCommand):
		return ExitUsageError
	case errors.As(err, &configErr), errors.As(err, &validateErrs):
		return ExitConfigError
	case ollama.IsTimeout(err):
		return ExitTimeoutError
	case ollama.IsMissingCredential(err):
		return ExitAuthError
	case ollama.IsConnection(err), errors.Is(err, commands.ErrNotConnected):
		return ExitNetworkError
	case ollama.IsAPIError(err):
		if code := ollama.StatusCode(err); code == http.StatusUnauthorized || code == http.StatusForbidden {
			return ExitAuthError
		}
		return ExitAPIError
	default:
		return ExitGeneralError
	}
}

// DisplayError prints err in a consistent format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// errorHint suggests a next step for common failures.
func errorHint(err error) string {
	switch {
	case ollama.IsMissingCredential(err):
		return "Set third_party.api_key in the config file or CODEASSIST_API_KEY."
	case ollama.IsConnection(err) && !ollama.IsModelListError(err):
		return "Run 'codeassist health' for diagnostics."
	case ollama.IsTimeout(err):
		return "Raise local.timeout_ms or CODEASSIST_TIMEOUT_MS if the model is slow to start."
	default:
		return ""
	}
}
