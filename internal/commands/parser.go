// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// ParseResult contains the result of parsing a REPL line.
type ParseResult struct {
	// IsCommand is true if the input starts with /
	IsCommand bool

	// Command is the matched command (nil if not found)
	Command *Command

	// CommandName is the raw command name (e.g., "/ask")
	CommandName string

	// RawArgs is everything after the command name, trimmed
	RawArgs string

	// RawInput is the trimmed input line
	RawInput string
}

// Parser handles parsing of slash commands.
type Parser struct {
	registry *Registry
}

// NewParser creates a new parser with the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse splits input into a command name and its raw argument text.
// Arguments are not tokenized: questions and descriptions are free text.
func (p *Parser) Parse(input string) ParseResult {
	input = strings.TrimSpace(input)
	result := ParseResult{RawInput: input}

	if !IsCommand(input) {
		return result
	}
	result.IsCommand = true

	end := strings.IndexFunc(input, unicode.IsSpace)
	if end < 0 {
		result.CommandName = input
	} else {
		result.CommandName = input[:end]
		result.RawArgs = strings.TrimSpace(input[end:])
	}
	result.Command = p.registry.Lookup(result.CommandName)
	return result
}

// IsCommand checks if input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}
