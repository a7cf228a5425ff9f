// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for codeassist.
//
// Configuration is stored as TOML, with sensible defaults, environment
// variable overrides, validation and a file watcher for hot reload.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CODEASSIST_*)
//   - ~/.codeassist/config.toml (or the path given with --config)
//   - Built-in defaults
//
// # Usage
//
// Load configuration and build a client from it:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := ollama.NewClient(cfg.ClientConfig())
//
// Follow edits to the file:
//
//	err := config.Watch(ctx, path, func(cfg *config.Config) {
//	    client.UpdateConfig(cfg.ClientConfig())
//	}, nil)
package config
