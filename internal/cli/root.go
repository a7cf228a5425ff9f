// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/codeassist/internal/commands"
)

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string, in io.Reader, out, errOut io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := NewApp(in, out, errOut)
	root := NewRootCmd(app)
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		DisplayError(errOut, err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// NewRootCmd constructs the command tree bound to app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "codeassist",
		Short:         "Coding assistant for local Ollama and OpenAI-compatible backends",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "completion" || (cmd.Parent() != nil && cmd.Parent().Name() == "completion") {
				return nil
			}
			return app.init()
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Msg: err.Error()}
	})

	root.PersistentFlags().StringVar(&app.ConfigPath, "config", "", "Config file (default ~/.codeassist/config.toml)")
	root.PersistentFlags().StringVar(&app.LogLevel, "log-level", "", "Log level: debug|info|warn|error|off (overrides config)")
	root.PersistentFlags().BoolVar(&app.Stream, "stream", true, "Print answers as they are generated")

	// dispatch runs a registry command with the app environment.
	dispatch := func(cmd *cobra.Command, id string, in commands.Input) error {
		return app.registry.Dispatch(cmd.Context(), id, app.env(), in)
	}

	healthCmd := &cobra.Command{
		Use:     "health",
		Aliases: []string{"check"},
		Short:   "Check the connection to the backend",
		Args:    usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd, commands.CheckConnection, commands.Input{})
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List models installed on the local server",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd, commands.ListModels, commands.Input{})
		},
	}

	askCmd := &cobra.Command{
		Use:     "ask <question...>",
		Short:   "Ask a question",
		Example: "  codeassist ask what is a closure?",
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd, commands.AskQuestion, commands.Input{Text: strings.Join(args, " ")})
		},
	}

	var explainLang string
	explainCmd := &cobra.Command{
		Use:     "explain [file|-]",
		Short:   "Explain the code in a file, or stdin",
		Example: "  codeassist explain main.go\n  git show HEAD:main.go | codeassist explain --lang go",
		Args:    usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.codeInput(args, explainLang)
			if err != nil {
				return err
			}
			return dispatch(cmd, commands.ExplainCode, in)
		},
	}
	explainCmd.Flags().StringVar(&explainLang, "lang", "", "Language of the code (default: from file extension)")

	var refactorLang string
	refactorCmd := &cobra.Command{
		Use:   "refactor [file|-]",
		Short: "Refactor the code in a file, or stdin, and print the result",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := app.codeInput(args, refactorLang)
			if err != nil {
				return err
			}
			return dispatch(cmd, commands.RefactorCode, in)
		},
	}
	refactorCmd.Flags().StringVar(&refactorLang, "lang", "", "Language of the code (default: from file extension)")

	var generateLang string
	generateCmd := &cobra.Command{
		Use:     "generate <description...>",
		Aliases: []string{"gen"},
		Short:   "Generate code from a description",
		Example: "  codeassist generate --lang go a function that reverses a slice",
		Args:    usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd, commands.GenerateCode, commands.Input{
				Text:     strings.Join(args, " "),
				Language: generateLang,
			})
		},
	}
	generateCmd.Flags().StringVar(&generateLang, "lang", "", "Target language (default javascript)")

	setModelCmd := &cobra.Command{
		Use:   "set-model <name>",
		Short: "Switch the default model and save it to the config file",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatch(cmd, commands.SetModel, commands.Input{Text: args[0]})
		},
	}

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive session",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runREPL(cmd.Context())
		},
	}

	root.AddCommand(healthCmd, modelsCmd, askCmd, explainCmd, refactorCmd, generateCmd, setModelCmd, replCmd)
	return root
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &UsageError{Msg: err.Error()}
		}
		return nil
	}
}

// codeInput reads the code for explain or refactor.
func (a *App) codeInput(args []string, lang string) (commands.Input, error) {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	code, err := a.readSource(path)
	if err != nil {
		return commands.Input{}, err
	}
	if lang == "" && path != "" && path != "-" {
		lang = commands.LanguageForPath(path)
	}
	return commands.Input{Text: code, Language: lang}, nil
}
