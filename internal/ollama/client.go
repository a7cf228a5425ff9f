// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/codeassist/internal/transport"
)

const (
	// maxErrorBodySize caps how much of a failed response is kept in an error.
	maxErrorBodySize = 64 * 1024

	// streamChanBuffer is the capacity of the channel returned by StreamChan.
	streamChanBuffer = 16
)

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the inference backend.
//
// The Client is safe for concurrent use. It places no limit on concurrent
// calls and performs no retries. Each operation loads one ClientConfig
// snapshot when it starts and uses only that snapshot.
//
// Example:
//
//	client := ollama.NewClient(cfg)
//	if !client.CheckHealth(ctx) {
//	    log.Fatal("Ollama not available")
//	}
//	text, err := client.Generate(ctx, ollama.GenerateRequest{Prompt: "hi"})
type Client struct {
	config    atomic.Pointer[ClientConfig]
	transport *transport.Transport
	log       zerolog.Logger
}

// NewClient creates a client with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		transport: transport.New(),
		log:       zerolog.Nop(),
	}
	normalized := cfg.normalized()
	c.config.Store(&normalized)
	return c
}

// WithTransport replaces the transport (rate limits, custom HTTP client).
func (c *Client) WithTransport(t *transport.Transport) *Client {
	if t != nil {
		c.transport = t
	}
	return c
}

// WithLogger sets the logger for client events.
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log.With().Str("component", "ollama").Logger()
	return c
}

// UpdateConfig replaces the whole configuration. Requests issued afterwards
// use cfg; requests already in flight keep their snapshot.
func (c *Client) UpdateConfig(cfg ClientConfig) {
	normalized := cfg.normalized()
	c.config.Store(&normalized)
	c.log.Info().
		Str("base_url", normalized.BaseURL).
		Str("model", normalized.DefaultModel).
		Str("mode", normalized.Mode.String()).
		Dur("timeout", normalized.Timeout).
		Str("key_fingerprint", normalized.KeyFingerprint()).
		Msg("configuration updated")
}

// Config returns a copy of the current configuration.
func (c *Client) Config() ClientConfig {
	return *c.config.Load()
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckHealth reports whether the local server answers GET /api/tags with 200.
// Every failure maps to false; it never returns an error. Health is not
// defined for third-party mode, which is assumed reachable.
func (c *Client) CheckHealth(ctx context.Context) bool {
	cfg := c.Config()
	if cfg.Mode == ModeThirdParty {
		return true
	}

	start := time.Now()
	resp, err := c.send(ctx, cfg, http.MethodGet, cfg.BaseURL+"/api/tags", nil, nil)
	if err != nil {
		observe("health", cfg.Mode, start, err)
		c.log.Debug().Err(err).Msg("health check failed")
		return false
	}
	defer resp.Close()

	observe("health", cfg.Mode, start, nil)
	return resp.StatusCode == http.StatusOK
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels returns the model names reported by /api/tags in server order.
// Timeouts pass through; every other failure is a *ModelListError.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	cfg := c.Config()
	start := time.Now()

	models, err := c.listModels(ctx, cfg)
	observe("list_models", cfg.Mode, start, err)
	if err != nil {
		c.log.Warn().Err(err).Msg("list models failed")
	}
	return models, err
}

func (c *Client) listModels(ctx context.Context, cfg ClientConfig) ([]string, error) {
	resp, err := c.send(ctx, cfg, http.MethodGet, cfg.BaseURL+"/api/tags", nil, nil)
	if err != nil {
		if transport.IsTimeout(err) {
			return nil, err
		}
		return nil, &ModelListError{Err: &ClientError{
			Type:    ErrTypeConnection,
			Message: "cannot reach the Ollama service",
			Cause:   err,
		}}
	}
	defer resp.Close()

	if !resp.OK() {
		return nil, &ModelListError{Err: &ClientError{
			Type:       ErrTypeHTTP,
			Message:    "unexpected response",
			StatusCode: resp.StatusCode,
			Status:     resp.StatusText(),
		}}
	}

	data, err := io.ReadAll(resp.Body)
	if err == nil && !gjson.ValidBytes(data) {
		err = &ClientError{Type: ErrTypeMalformedResponse, Message: "invalid JSON in model list"}
	}
	list := gjson.GetBytes(data, "models")
	if err == nil && truthy(list) && !list.IsArray() {
		err = &ClientError{Type: ErrTypeMalformedResponse, Message: "model list is not an array"}
	}
	if err != nil {
		if transport.IsTimeout(err) {
			return nil, err
		}
		return nil, &ModelListError{Err: &ClientError{
			Type:    ErrTypeConnection,
			Message: "cannot reach the Ollama service",
			Cause:   err,
		}}
	}

	models := []string{}
	if !list.IsArray() {
		return models, nil
	}
	list.ForEach(func(_, model gjson.Result) bool {
		models = append(models, model.Get("name").String())
		return true
	})
	return models, nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate sends a non-streaming request and returns the full response text.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	cfg := c.Config()
	start := time.Now()

	var (
		text string
		err  error
	)
	if cfg.Mode == ModeThirdParty {
		text, err = c.generateThirdParty(ctx, cfg, req)
	} else {
		text, err = c.generateLocal(ctx, cfg, req)
	}

	err = normalizeError(cfg.Mode, err)
	observe("generate", cfg.Mode, start, err)
	if err != nil {
		c.log.Warn().Err(err).Str("mode", cfg.Mode.String()).Msg("generate failed")
	}
	return text, err
}

func (c *Client) generateLocal(ctx context.Context, cfg ClientConfig, req GenerateRequest) (string, error) {
	body := generateBody{
		Model:  modelFor(cfg, req),
		Prompt: req.Prompt,
		Stream: false,
		System: req.System,
	}

	resp, err := c.send(ctx, cfg, http.MethodPost, cfg.BaseURL+"/api/generate", nil, body)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	if !resp.OK() {
		return "", apiError(cfg.Mode, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(data) {
		return "", &ClientError{Type: ErrTypeMalformedResponse, Message: "malformed response: invalid JSON"}
	}
	response := gjson.GetBytes(data, "response")
	if response.Type != gjson.String || response.Str == "" {
		return "", &ClientError{Type: ErrTypeMalformedResponse, Message: "malformed response: missing response field"}
	}
	return response.Str, nil
}

// =============================================================================
// STREAMING GENERATION
// =============================================================================

// GenerateStream sends a streaming request and calls onChunk for each fragment,
// synchronously and in the order received. It returns the accumulated text
// when the backend signals completion or the connection closes.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, onChunk StreamCallback) (string, error) {
	cfg := c.Config()
	start := time.Now()

	var (
		text string
		err  error
	)
	if cfg.Mode == ModeThirdParty {
		text, err = c.streamThirdParty(ctx, cfg, req, onChunk)
	} else {
		text, err = c.streamLocal(ctx, cfg, req, onChunk)
	}

	err = normalizeError(cfg.Mode, err)
	observe("generate_stream", cfg.Mode, start, err)
	if err != nil {
		c.log.Warn().Err(err).Str("mode", cfg.Mode.String()).Msg("stream failed")
	}
	return text, err
}

func (c *Client) streamLocal(ctx context.Context, cfg ClientConfig, req GenerateRequest, onChunk StreamCallback) (string, error) {
	body := generateBody{
		Model:  modelFor(cfg, req),
		Prompt: req.Prompt,
		Stream: true,
		System: req.System,
	}

	resp, err := c.send(ctx, cfg, http.MethodPost, cfg.BaseURL+"/api/generate", nil, body)
	if err != nil {
		return "", err
	}
	defer resp.Close()

	if !resp.OK() {
		return "", apiError(cfg.Mode, resp)
	}
	if !resp.HasBody() {
		return "", &ClientError{Type: ErrTypeEmptyBody, Message: "response body is empty"}
	}

	reader := NewNDJSONReader(resp.Body)
	err = reader.Process(onChunk)
	observeStream(cfg.Mode, reader.Chunks(), reader.Skipped())
	return reader.Accumulated(), err
}

// StreamChan runs GenerateStream in a goroutine and delivers chunks over a
// buffered channel. The chunk channel is closed when the stream ends; the
// error channel then yields at most one error.
func (c *Client) StreamChan(ctx context.Context, req GenerateRequest) (<-chan string, <-chan error) {
	chunks := make(chan string, streamChanBuffer)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(chunks)

		_, err := c.GenerateStream(ctx, req, func(chunk string) {
			select {
			case chunks <- chunk:
			case <-ctx.Done():
			}
		})
		if err != nil {
			errc <- err
		}
	}()

	return chunks, errc
}

// =============================================================================
// HELPERS
// =============================================================================

// send marshals payload and issues the request through the transport.
func (c *Client) send(ctx context.Context, cfg ClientConfig, method, url string, header http.Header, payload any) (*transport.Response, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeUnknown, Message: "failed to marshal request", Cause: err}
		}
	}

	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "application/json")

	return c.transport.Do(ctx, transport.Request{
		Method: method,
		URL:    url,
		Header: header,
		Body:   body,
	}, cfg.Timeout)
}

// apiError reads a bounded part of a failed response into an ErrTypeAPI error.
func apiError(mode BackendMode, resp *transport.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	return &ClientError{
		Type:       ErrTypeAPI,
		Message:    apiErrorPrefix(mode),
		StatusCode: resp.StatusCode,
		Status:     resp.StatusText(),
		Body:       strings.TrimSpace(string(data)),
	}
}

// modelFor picks the request override or the configured default.
func modelFor(cfg ClientConfig, req GenerateRequest) string {
	if model := strings.TrimSpace(req.Model); model != "" {
		return model
	}
	return cfg.DefaultModel
}
