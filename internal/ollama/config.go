// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// BACKEND MODE
// =============================================================================

// BackendMode selects which protocol a request uses.
type BackendMode int

const (
	// ModeLocal talks to an Ollama-compatible server.
	ModeLocal BackendMode = iota
	// ModeThirdParty talks to an OpenAI chat-completions-compatible server.
	ModeThirdParty
)

// String returns the config spelling of the mode.
func (m BackendMode) String() string {
	switch m {
	case ModeThirdParty:
		return "third_party"
	default:
		return "local"
	}
}

// ParseBackendMode accepts "local" or "third_party" (also "third-party", "thirdparty").
func ParseBackendMode(s string) (BackendMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local", "ollama":
		return ModeLocal, nil
	case "third_party", "third-party", "thirdparty", "openai":
		return ModeThirdParty, nil
	default:
		return ModeLocal, fmt.Errorf("unknown backend mode %q", s)
	}
}

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

const (
	// DefaultBaseURL uses an explicit IPv4 address to avoid IPv6 resolution of localhost.
	DefaultBaseURL = "http://127.0.0.1:11434"

	// DefaultModel is used when neither the config nor the request names a model.
	DefaultModel = "llama3"

	// DefaultTimeout bounds the wait for response headers.
	DefaultTimeout = 60 * time.Second
)

// ClientConfig holds everything one request needs. It is treated as a value:
// the client never mutates a stored config, it replaces it.
type ClientConfig struct {
	// BaseURL of the local server. Never ends in "/" once normalized.
	BaseURL string

	// DefaultModel for local requests without a model override.
	DefaultModel string

	// Timeout for each request; must be > 0.
	Timeout time.Duration

	// Mode selects the backend protocol.
	Mode BackendMode

	// ThirdPartyURL is the full chat-completions endpoint URL.
	ThirdPartyURL string

	// ThirdPartyAPIKey is sent as a bearer token. Never logged.
	ThirdPartyAPIKey string

	// ThirdPartyModel is sent as the model for every third-party request.
	ThirdPartyModel string
}

// DefaultConfig returns the local-mode defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL:      DefaultBaseURL,
		DefaultModel: DefaultModel,
		Timeout:      DefaultTimeout,
		Mode:         ModeLocal,
	}
}

// normalized fills zero values with defaults and strips trailing slashes.
func (c ClientConfig) normalized() ClientConfig {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.DefaultModel = strings.TrimSpace(c.DefaultModel)
	if c.DefaultModel == "" {
		c.DefaultModel = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.ThirdPartyURL = strings.TrimSpace(c.ThirdPartyURL)
	c.ThirdPartyAPIKey = strings.TrimSpace(c.ThirdPartyAPIKey)
	c.ThirdPartyModel = strings.TrimSpace(c.ThirdPartyModel)
	return c
}

// KeyFingerprint returns a short SHA-256 prefix of the API key for logs.
// SECURITY: Never exposes key material.
func (c ClientConfig) KeyFingerprint() string {
	if c.ThirdPartyAPIKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(c.ThirdPartyAPIKey))
	return hex.EncodeToString(sum[:])[:8]
}
