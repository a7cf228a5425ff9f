// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the codeassist command-line interface.
//
// Every subcommand maps to one entry of the commands registry, so the CLI and
// the interactive REPL share the same handlers.
//
// # Commands Overview
//
//   - health: check the connection to the backend
//   - models: list installed models
//   - ask: ask a question
//   - explain: explain the code in a file (or stdin)
//   - refactor: refactor the code in a file (or stdin)
//   - generate: generate code from a description
//   - set-model: switch and persist the default model
//   - repl: interactive session with history and config hot reload
//
// # Usage
//
//	os.Exit(cli.Execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
package cli
