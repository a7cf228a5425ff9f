// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"github.com/jeranaias/codeassist/internal/ollama"
)

// Command identifiers.
const (
	CheckConnection = "checkConnection"
	ListModels      = "listModels"
	AskQuestion     = "askQuestion"
	ExplainCode     = "explainCode"
	RefactorCode    = "refactorCode"
	GenerateCode    = "generateCode"
	SetModel        = "setModel"
)

var (
	// ErrUnknownCommand is returned by Dispatch for an unregistered ID.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrEmptyInput is returned when a command needs text and got none.
	ErrEmptyInput = errors.New("input is empty")
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Input is what the user supplied to a command.
type Input struct {
	// Text is the question, code selection, description or model name.
	Text string

	// Language tags code for prompts, e.g. "go" or "python".
	Language string
}

// Env is what a handler works against.
type Env struct {
	Client *ollama.Client
	Out    io.Writer

	// Stream prints answers chunk by chunk for commands that support it.
	Stream bool

	// Render formats a complete answer before printing. Nil prints it as is.
	Render func(text string) string

	// SaveModel persists a model chosen with setModel. Nil skips persistence.
	SaveModel func(model string) error

	Log zerolog.Logger
}

// Handler runs a command.
type Handler func(ctx context.Context, env *Env, in Input) error

// Command represents a command that can be executed.
type Command struct {
	// ID is the stable identifier (e.g., "askQuestion")
	ID string

	// Name is the REPL slash name (e.g., "/ask")
	Name string

	// Aliases are alternative slash names (e.g., "/q")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/ask <question>")
	Usage string

	Handler Handler
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	byID    map[string]*Command
	byName  map[string]*Command
	aliases map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		byID:    make(map[string]*Command),
		byName:  make(map[string]*Command),
		aliases: make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry, replacing one with the same ID.
func (r *Registry) Register(cmd *Command) {
	r.byID[cmd.ID] = cmd
	if cmd.Name != "" {
		r.byName[cmd.Name] = cmd
	}
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by ID.
func (r *Registry) Get(id string) *Command {
	return r.byID[id]
}

// Lookup retrieves a command by slash name or alias.
func (r *Registry) Lookup(name string) *Command {
	if cmd, ok := r.byName[name]; ok {
		return cmd
	}
	return r.aliases[name]
}

// All returns all registered commands sorted by slash name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.byID))
	for _, cmd := range r.byID {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Dispatch runs the command registered under id.
func (r *Registry) Dispatch(ctx context.Context, id string, env *Env, in Input) error {
	cmd := r.Get(id)
	if cmd == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, id)
	}
	env.Log.Debug().Str("command", id).Msg("dispatch")
	return cmd.Handler(ctx, env, in)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		ID:          CheckConnection,
		Name:        "/health",
		Aliases:     []string{"/check"},
		Description: "Check the connection to the backend",
		Usage:       "/health",
		Handler:     handleCheckConnection,
	})
	r.Register(&Command{
		ID:          ListModels,
		Name:        "/models",
		Description: "List models installed on the local server",
		Usage:       "/models",
		Handler:     handleListModels,
	})
	r.Register(&Command{
		ID:          AskQuestion,
		Name:        "/ask",
		Aliases:     []string{"/q"},
		Description: "Ask a question",
		Usage:       "/ask <question>",
		Handler:     handleAskQuestion,
	})
	r.Register(&Command{
		ID:          ExplainCode,
		Name:        "/explain",
		Description: "Explain the code in a file",
		Usage:       "/explain <file>",
		Handler:     handleExplainCode,
	})
	r.Register(&Command{
		ID:          RefactorCode,
		Name:        "/refactor",
		Description: "Refactor the code in a file",
		Usage:       "/refactor <file>",
		Handler:     handleRefactorCode,
	})
	r.Register(&Command{
		ID:          GenerateCode,
		Name:        "/generate",
		Aliases:     []string{"/gen"},
		Description: "Generate code from a description",
		Usage:       "/generate <description>",
		Handler:     handleGenerateCode,
	})
	r.Register(&Command{
		ID:          SetModel,
		Name:        "/model",
		Description: "Switch the default model",
		Usage:       "/model <name>",
		Handler:     handleSetModel,
	})
}
