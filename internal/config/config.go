// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/codeassist/internal/logging"
	"github.com/jeranaias/codeassist/internal/ollama"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete codeassist configuration.
type Config struct {
	// Local (Ollama) configuration
	Local LocalConfig `toml:"local"`

	// Third-party (chat completions) configuration
	ThirdParty ThirdPartyConfig `toml:"third_party"`

	// Outbound request shaping
	Transport TransportConfig `toml:"transport"`

	// Logging configuration
	Log LogConfig `toml:"log"`
}

// LocalConfig contains local Ollama configuration.
type LocalConfig struct {
	// BaseURL is the URL of the Ollama server
	BaseURL string `toml:"base_url"`
	// Model is the default model to use with Ollama
	Model string `toml:"model"`
	// TimeoutMs bounds each request, in milliseconds
	TimeoutMs int `toml:"timeout_ms"`
}

// ThirdPartyConfig contains the OpenAI-compatible backend configuration.
type ThirdPartyConfig struct {
	// Enabled switches every request to the third-party backend
	Enabled bool `toml:"enabled"`
	// URL is the full chat completions endpoint
	URL string `toml:"url"`
	// APIKey is sent as a bearer token
	APIKey string `toml:"api_key"`
	// Model is sent with every third-party request
	Model string `toml:"model"`
}

// TransportConfig limits the outbound request rate. Zero disables the limit.
type TransportConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// LogConfig controls where and how much is logged.
type LogConfig struct {
	// Level is one of debug, info, warn, error, off
	Level string `toml:"level"`
	// Format is "json" or "console"
	Format string `toml:"format"`
	// File enables rotated file output; empty logs to stderr
	File string `toml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Local: LocalConfig{
			BaseURL:   ollama.DefaultBaseURL,
			Model:     ollama.DefaultModel,
			TimeoutMs: int(ollama.DefaultTimeout / time.Millisecond),
		},
		ThirdParty: ThirdPartyConfig{
			URL:   "https://api.openai.com/v1/chat/completions",
			Model: "gpt-4o-mini",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the codeassist configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".codeassist"), nil
}

// ConfigPath returns the path to the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the default config file, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return finish(Default())
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file with full validation.
// Keys absent from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// Permissions might not be fixable on all systems.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return finish(cfg)
}

// finish applies environment overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg as TOML to path, or to ConfigPath when path is empty.
// SECURITY: The file is written with 0600 permissions.
// RELIABILITY: Written to a temp file, synced, then renamed into place.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# codeassist configuration file\n")
	buf.WriteString("# Generated by codeassist - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync config to disk: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Update applies mutate to the file at path and saves it. Environment
// overrides are not applied, so they never leak into the file. A missing
// file starts from defaults.
func Update(path string, mutate func(*Config)) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	mutate(cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return Save(cfg, path)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateHTTPURL(c.Local.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "local.base_url", Message: err.Error()})
	}
	if c.Local.TimeoutMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "local.timeout_ms",
			Message: fmt.Sprintf("must be positive, got %d", c.Local.TimeoutMs),
		})
	}

	// The API key is checked per request so a missing key surfaces as a
	// client error rather than a startup failure.
	if c.ThirdParty.Enabled {
		if err := validateHTTPURL(c.ThirdParty.URL); err != nil {
			errs = append(errs, ValidationError{Field: "third_party.url", Message: err.Error()})
		}
		if strings.TrimSpace(c.ThirdParty.Model) == "" {
			errs = append(errs, ValidationError{Field: "third_party.model", Message: "must not be empty"})
		}
	}

	if c.Transport.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "transport.requests_per_second", Message: "must not be negative"})
	}
	if c.Transport.Burst < 0 {
		errs = append(errs, ValidationError{Field: "transport.burst", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "off", "disabled":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error, off", c.Log.Level),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: json, console", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL '%s', scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL '%s', missing host", raw)
	}
	return nil
}

// SetDefaults fills empty values and normalizes the rest.
func (c *Config) SetDefaults() {
	defaults := Default()

	c.Local.BaseURL = strings.TrimRight(strings.TrimSpace(c.Local.BaseURL), "/")
	if c.Local.BaseURL == "" {
		c.Local.BaseURL = defaults.Local.BaseURL
	}
	if strings.TrimSpace(c.Local.Model) == "" {
		c.Local.Model = defaults.Local.Model
	}
	if c.Local.TimeoutMs == 0 {
		c.Local.TimeoutMs = defaults.Local.TimeoutMs
	}
	if c.ThirdParty.URL == "" {
		c.ThirdParty.URL = defaults.ThirdParty.URL
	}
	if c.ThirdParty.Model == "" {
		c.ThirdParty.Model = defaults.ThirdParty.Model
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - CODEASSIST_OLLAMA_URL: overrides local.base_url
//   - CODEASSIST_MODEL: overrides local.model
//   - CODEASSIST_TIMEOUT_MS: overrides local.timeout_ms
//   - CODEASSIST_THIRD_PARTY: overrides third_party.enabled
//   - CODEASSIST_THIRD_PARTY_URL: overrides third_party.url
//   - CODEASSIST_API_KEY: overrides third_party.api_key
//   - CODEASSIST_THIRD_PARTY_MODEL: overrides third_party.model
//   - CODEASSIST_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CODEASSIST_OLLAMA_URL"); v != "" {
		c.Local.BaseURL = v
	}
	if v := os.Getenv("CODEASSIST_MODEL"); v != "" {
		c.Local.Model = v
	}
	if v := os.Getenv("CODEASSIST_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Local.TimeoutMs = ms
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring CODEASSIST_TIMEOUT_MS=%q: not an integer\n", v)
		}
	}
	if v := os.Getenv("CODEASSIST_THIRD_PARTY"); v != "" {
		c.ThirdParty.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CODEASSIST_THIRD_PARTY_URL"); v != "" {
		c.ThirdParty.URL = v
	}
	if v := os.Getenv("CODEASSIST_API_KEY"); v != "" {
		c.ThirdParty.APIKey = v
	}
	if v := os.Getenv("CODEASSIST_THIRD_PARTY_MODEL"); v != "" {
		c.ThirdParty.Model = v
	}
	if v := os.Getenv("CODEASSIST_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ClientConfig converts the file layout into the client's whole-config value.
func (c *Config) ClientConfig() ollama.ClientConfig {
	mode := ollama.ModeLocal
	if c.ThirdParty.Enabled {
		mode = ollama.ModeThirdParty
	}
	return ollama.ClientConfig{
		BaseURL:          c.Local.BaseURL,
		DefaultModel:     c.Local.Model,
		Timeout:          time.Duration(c.Local.TimeoutMs) * time.Millisecond,
		Mode:             mode,
		ThirdPartyURL:    c.ThirdParty.URL,
		ThirdPartyAPIKey: c.ThirdParty.APIKey,
		ThirdPartyModel:  c.ThirdParty.Model,
	}
}

// LogOptions converts the [log] section for logging.New.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		File:   c.Log.File,
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a TOML rendering for debugging.
// SECURITY: The API key is redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.ThirdParty.APIKey != "" {
		safe.ThirdParty.APIKey = "[REDACTED]"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(safe); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
