// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/jeranaias/codeassist/internal/commands"
	"github.com/jeranaias/codeassist/internal/config"
	"github.com/jeranaias/codeassist/internal/logging"
	"github.com/jeranaias/codeassist/internal/ollama"
	"github.com/jeranaias/codeassist/internal/transport"
)

// App holds everything a subcommand needs. It is built once per invocation
// after flags are parsed.
type App struct {
	// Flags
	ConfigPath string
	LogLevel   string
	Stream     bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      *config.Config
	cfgPath  string
	log      zerolog.Logger
	client   *ollama.Client
	registry *commands.Registry
}

// NewApp creates an App bound to the given streams.
func NewApp(in io.Reader, out, errOut io.Writer) *App {
	return &App{
		in:       in,
		out:      out,
		errOut:   errOut,
		log:      zerolog.Nop(),
		registry: commands.NewRegistry(),
	}
}

// init loads configuration and builds the logger, transport and client.
func (a *App) init() error {
	path := a.ConfigPath
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
		path, _ = config.ConfigPath()
	}
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}

	opts := cfg.LogOptions()
	opts.Stderr = a.errOut
	log, err := logging.New(opts)
	if err != nil {
		fmt.Fprintf(a.errOut, "%s log file unavailable, logging to stderr: %v\n", WarningStyle.Render("[WARN]"), err)
	}

	a.cfg = cfg
	a.cfgPath = path
	a.log = log
	a.client = ollama.NewClient(cfg.ClientConfig()).
		WithTransport(a.newTransport(cfg)).
		WithLogger(a.log)

	log.Debug().
		Str("config", path).
		Str("mode", a.client.Config().Mode.String()).
		Msg("initialized")
	return nil
}

func (a *App) newTransport(cfg *config.Config) *transport.Transport {
	return transport.New().
		WithLogger(a.log).
		WithRateLimit(cfg.Transport.RequestsPerSecond, cfg.Transport.Burst)
}

// env builds the handler environment for one command.
func (a *App) env() *commands.Env {
	return &commands.Env{
		Client:    a.client,
		Out:       a.out,
		Stream:    a.Stream,
		Render:    markdownRenderer(a.out),
		SaveModel: a.saveModel,
		Log:       a.log,
	}
}

// saveModel persists a model choice to the config file.
func (a *App) saveModel(model string) error {
	return config.Update(a.cfgPath, func(cfg *config.Config) {
		cfg.Local.Model = model
	})
}

// readSource returns the contents of path, or of stdin when path is "" or "-".
func (a *App) readSource(path string) (string, error) {
	if path == "" || path == "-" {
		if f, ok := a.in.(*os.File); ok && isTerminal(f) {
			return "", &UsageError{Msg: "no file given and stdin is a terminal"}
		}
		data, err := io.ReadAll(a.in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}
