// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/jeranaias/codeassist/internal/commands"
	"github.com/jeranaias/codeassist/internal/config"
	"github.com/jeranaias/codeassist/internal/ollama"
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// lineEditor provides input history and line editing for the REPL.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(completer *commands.Completer) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completer.Values)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{
		line:        line,
		historyFile: filepath.Join(dir, "repl_history"),
	}
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
	return e
}

func (e *lineEditor) readLine(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (e *lineEditor) Close() {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			e.line.WriteHistory(f)
			f.Close()
		}
	}
	e.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl executes slash commands and plain questions against the app.
type repl struct {
	app       *App
	parser    *commands.Parser
	completer *commands.Completer
}

func newREPL(app *App) *repl {
	return &repl{
		app:       app,
		parser:    commands.NewParser(app.registry),
		completer: commands.NewCompleter(app.registry),
	}
}

// runREPL reads lines until /exit, Ctrl+C at the prompt or EOF.
func (a *App) runREPL(ctx context.Context) error {
	r := newREPL(a)
	session, end := a.startSession(ctx)
	defer end()

	editor := newLineEditor(r.completer)
	defer editor.Close()

	cfg := a.client.Config()
	model := cfg.DefaultModel
	if cfg.Mode == ollama.ModeThirdParty {
		model = cfg.ThirdPartyModel
	}
	fmt.Fprintf(a.out, "%s %s\n", TitleStyle.Render("codeassist"), DimStyle.Render("("+cfg.Mode.String()+", model "+model+")"))
	fmt.Fprintln(a.out, DimStyle.Render("Type /help for commands, /exit to quit. Plain text asks a question."))

	for {
		input, err := editor.readLine(PromptStyle.Render("codeassist> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out)
				return nil
			}
			return err
		}

		// Ctrl+C during a request cancels only that request.
		reqCtx, stop := signal.NotifyContext(session, os.Interrupt)
		quit, err := r.handle(reqCtx, input)
		cancelled := reqCtx.Err() != nil
		stop()

		if err != nil {
			if cancelled {
				fmt.Fprintln(a.errOut, "\n"+WarningStyle.Render("[Cancelled]"))
			} else {
				DisplayError(a.errOut, err)
			}
		}
		if quit {
			return nil
		}
	}
}

// handle runs one line of input. It reports true when the session should end.
func (r *repl) handle(ctx context.Context, input string) (bool, error) {
	result := r.parser.Parse(input)
	if result.RawInput == "" {
		return false, nil
	}

	if !result.IsCommand {
		return false, r.app.registry.Dispatch(ctx, commands.AskQuestion, r.app.env(), commands.Input{Text: result.RawInput})
	}

	switch result.CommandName {
	case "/exit", "/quit":
		return true, nil
	case "/help", "/?":
		r.printHelp()
		return false, nil
	}

	if result.Command == nil {
		msg := fmt.Sprintf("unknown command %s", result.CommandName)
		if suggestions := r.completer.Values(result.CommandName); len(suggestions) > 0 {
			msg += " (did you mean " + strings.Join(suggestions, ", ") + "?)"
		}
		return false, &UsageError{Msg: msg}
	}

	in := commands.Input{Text: result.RawArgs}
	switch result.Command.ID {
	case commands.ExplainCode, commands.RefactorCode:
		if result.RawArgs == "" {
			return false, &UsageError{Msg: "usage: " + result.Command.Usage}
		}
		code, err := r.app.readSource(result.RawArgs)
		if err != nil {
			return false, err
		}
		in = commands.Input{Text: code, Language: commands.LanguageForPath(result.RawArgs)}
	}

	return false, r.app.registry.Dispatch(ctx, result.Command.ID, r.app.env(), in)
}

func (r *repl) printHelp() {
	out := r.app.out
	fmt.Fprintln(out, TitleStyle.Render("Commands"))
	for _, cmd := range r.app.registry.All() {
		name := cmd.Usage
		if name == "" {
			name = cmd.Name
		}
		printHelpLine(out, name, cmd.Description)
	}
	printHelpLine(out, "/help", "Show this help")
	printHelpLine(out, "/exit", "Leave the session")
}

const helpColumnWidth = 28

func printHelpLine(out io.Writer, name, description string) {
	fmt.Fprintf(out, "  %s %s\n", runewidth.FillRight(name, helpColumnWidth), DimStyle.Render(description))
}

// startSession returns the context a REPL session runs on, with config hot
// reload attached. It is detached from ctx, whose interrupt handling also sees
// the Ctrl+C aimed at a single request; end stops the session.
func (a *App) startSession(ctx context.Context) (session context.Context, end context.CancelFunc) {
	session, end = context.WithCancel(context.WithoutCancel(ctx))
	a.watchConfig(session)
	return session, end
}

// watchConfig applies config file edits to the running client.
func (a *App) watchConfig(ctx context.Context) {
	if a.cfgPath == "" {
		return
	}
	if _, err := os.Stat(a.cfgPath); err != nil {
		return
	}

	err := config.Watch(ctx, a.cfgPath,
		func(cfg *config.Config) {
			a.client.UpdateConfig(cfg.ClientConfig())
			a.log.Info().Str("model", cfg.Local.Model).Msg("config reloaded")
		},
		func(err error) {
			a.log.Warn().Err(err).Msg("config reload failed, keeping previous settings")
		},
	)
	if err != nil {
		a.log.Warn().Err(err).Msg("config watch unavailable")
	}
}
