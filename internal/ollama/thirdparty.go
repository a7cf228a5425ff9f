// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

// =============================================================================
// THIRD-PARTY (CHAT COMPLETIONS) BACKEND
// =============================================================================

// thirdPartyHeader builds the bearer auth header.
// SECURITY: the key is only ever placed in the header, never logged.
func thirdPartyHeader(cfg ClientConfig) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.ThirdPartyAPIKey)
	return header
}

func (c *Client) generateThirdParty(ctx context.Context, cfg ClientConfig, req GenerateRequest) (string, error) {
	if cfg.ThirdPartyAPIKey == "" {
		return "", missingCredentialError()
	}

	body := chatBody{
		Model:    cfg.ThirdPartyModel,
		Messages: buildMessages(req),
	}

	resp, err := c.send(ctx, cfg, http.MethodPost, cfg.ThirdPartyURL, thirdPartyHeader(cfg), body)
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
	return chatContent(gjson.ParseBytes(data)), nil
}

// chatContent extracts choices[0].message.content, falling back to
// choices[0].text, then to "".
func chatContent(obj gjson.Result) string {
	if content := obj.Get("choices.0.message.content").String(); content != "" {
		return content
	}
	return obj.Get("choices.0.text").String()
}

func (c *Client) streamThirdParty(ctx context.Context, cfg ClientConfig, req GenerateRequest, onChunk StreamCallback) (string, error) {
	if cfg.ThirdPartyAPIKey == "" {
		return "", missingCredentialError()
	}

	body := chatBody{
		Model:    cfg.ThirdPartyModel,
		Messages: buildMessages(req),
		Stream:   true,
	}

	resp, err := c.send(ctx, cfg, http.MethodPost, cfg.ThirdPartyURL, thirdPartyHeader(cfg), body)
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

	reader := NewSSEReader(resp.Body)
	err = reader.Process(onChunk)
	observeStream(cfg.Mode, reader.Chunks(), reader.Skipped())
	return reader.Accumulated(), err
}
