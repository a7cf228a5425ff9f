// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the streaming inference client used by the editor
// assistant.
//
// The client talks to one of two backends per request:
//
//   - Local mode: an Ollama-compatible server (/api/tags, /api/generate) that
//     streams newline-delimited JSON.
//   - Third-party mode: an OpenAI chat-completions-compatible endpoint reached
//     with a bearer token that streams Server-Sent Events.
//
// # Key Types
//
//   - Client: health check, model listing, one-shot and streaming generation
//   - ClientConfig: immutable per-request configuration snapshot
//   - NDJSONReader / SSEReader: line-buffered stream decoders
//   - ClientError: normalized error with an ErrorType kind
//
// # Usage
//
//	client := ollama.NewClient(ollama.DefaultConfig())
//	text, err := client.Generate(ctx, ollama.GenerateRequest{Prompt: "hi"})
//
// For streaming responses:
//
//	_, err := client.GenerateStream(ctx, req, func(chunk string) {
//	    fmt.Print(chunk)
//	})
//
// Every call is stateless. UpdateConfig swaps the whole configuration; a request
// already in flight keeps the snapshot it loaded when it started.
package ollama
