// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands maps command identifiers to handlers that drive the
// inference client.
//
// Every command has a stable ID (checkConnection, listModels, askQuestion,
// explainCode, refactorCode, generateCode, setModel) used by the CLI, and a
// slash name used by the REPL.
//
// # Key Types
//
//   - Registry: ID and slash-name lookup with Dispatch
//   - Env: the client and output a handler works against
//   - Input: free text plus an optional language tag
//   - Parser: splits a REPL line into a command and its raw argument
//   - Completer: prefix completion for slash names
//
// # Usage
//
//	registry := commands.NewRegistry()
//	err := registry.Dispatch(ctx, commands.AskQuestion, env, commands.Input{Text: "what is a closure?"})
package commands
