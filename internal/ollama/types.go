// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GenerateRequest is one stateless generation call.
type GenerateRequest struct {
	// Prompt is the user text.
	Prompt string

	// System is an optional system prompt.
	System string

	// Model overrides the configured local model. Third-party mode always uses
	// ClientConfig.ThirdPartyModel.
	Model string
}

// StreamCallback receives output fragments in the order they arrive.
type StreamCallback func(chunk string)

// generateBody is the request body for /api/generate.
type generateBody struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	System string `json:"system,omitempty"`
}

// ChatMessage is one entry of a chat-completions messages array.
type ChatMessage struct {
	Role    string `json:"role"`    // "system" or "user"
	Content string `json:"content"` // The message content
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// chatBody is the request body for the chat-completions endpoint.
type chatBody struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// buildMessages puts the optional system prompt before the user prompt.
func buildMessages(req GenerateRequest) []ChatMessage {
	messages := make([]ChatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, NewSystemMessage(req.System))
	}
	return append(messages, NewUserMessage(req.Prompt))
}
