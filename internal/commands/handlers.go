// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jeranaias/codeassist/internal/ollama"
)

var (
	// ErrNotConnected is returned by checkConnection when the backend is down.
	ErrNotConnected = errors.New("backend is not reachable")

	// ErrNoModels is returned by setModel when the server has no models.
	ErrNoModels = errors.New("no models available, pull one with \"ollama pull <model>\"")
)

const (
	explainSystemPrompt  = "You are a professional code explanation assistant. Explain in detail what the code does and how it works."
	refactorSystemPrompt = "You are a professional code refactoring assistant. Provide improved code that keeps the original behavior."
	generateSystemPrompt = "You are a professional code generation assistant. Generate clear, efficient code that follows best practices."

	// defaultCodeLanguage tags a selection whose language is unknown.
	defaultCodeLanguage = "plaintext"

	// defaultGenerateLanguage is used by generateCode when no language is given.
	defaultGenerateLanguage = "javascript"
)

// =============================================================================
// PROMPTS
// =============================================================================

// ExplainPrompt builds the explainCode prompt.
func ExplainPrompt(language, code string) string {
	return fmt.Sprintf("Explain in detail what the following %s code does, how it works and its key concepts:\n\n```%s\n%s\n```",
		language, language, code)
}

// RefactorPrompt builds the refactorCode prompt.
func RefactorPrompt(language, code string) string {
	return fmt.Sprintf("Refactor the following %s code to make it clearer, more efficient and easier to maintain. Return only the refactored code without extra explanation:\n\n```%s\n%s\n```",
		language, language, code)
}

// GeneratePrompt builds the generateCode prompt.
func GeneratePrompt(language, description string) string {
	return fmt.Sprintf("Generate %s code that implements: %s\n\nReturn only the code, formatted as a code block.",
		language, description)
}

var codeBlockRe = regexp.MustCompile("```[\\w]*\\n([\\s\\S]*?)\\n```")

// ExtractCodeBlock returns the body of the first fenced code block in text,
// or the trimmed text when there is none.
func ExtractCodeBlock(text string) string {
	text = strings.TrimSpace(text)
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return text
}

// LanguageForPath guesses a language tag from a file extension.
func LanguageForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".jsx":
		return "javascriptreact"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cc", ".cpp", ".hpp", ".cxx":
		return "cpp"
	case ".cs":
		return "csharp"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".sh", ".bash":
		return "shellscript"
	case ".sql":
		return "sql"
	case ".md":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return defaultCodeLanguage
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func handleCheckConnection(ctx context.Context, env *Env, _ Input) error {
	cfg := env.Client.Config()

	if cfg.Mode == ollama.ModeThirdParty {
		fmt.Fprintf(env.Out, "Mode: third-party (%s)\n", cfg.ThirdPartyURL)
		fmt.Fprintf(env.Out, "Model: %s\n", cfg.ThirdPartyModel)
		fmt.Fprintln(env.Out, "Health is not checked for third-party backends.")
		return nil
	}

	fmt.Fprintf(env.Out, "Checking connection to %s ...\n", cfg.BaseURL)
	if !env.Client.CheckHealth(ctx) {
		fmt.Fprintln(env.Out, "✗ Connection failed")
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, "Possible causes:")
		fmt.Fprintln(env.Out, "  1. The Ollama service is not running")
		fmt.Fprintln(env.Out, "  2. The base URL is misconfigured")
		fmt.Fprintln(env.Out, "  3. A network problem")
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, "Try:")
		fmt.Fprintln(env.Out, "  1. Start Ollama: ollama serve")
		fmt.Fprintln(env.Out, "  2. Check local.base_url in the config file")
		fmt.Fprintf(env.Out, "  3. Open %s/api/tags in a browser\n", cfg.BaseURL)
		return fmt.Errorf("%w: %s", ErrNotConnected, cfg.BaseURL)
	}

	fmt.Fprintln(env.Out, "✓ Connection OK")
	fmt.Fprintln(env.Out)
	if err := printModels(ctx, env, cfg.DefaultModel); err != nil {
		// The server answered the health check, so a listing failure is not fatal.
		fmt.Fprintf(env.Out, "  ⚠ %v\n", err)
	}
	return nil
}

func handleListModels(ctx context.Context, env *Env, _ Input) error {
	return printModels(ctx, env, env.Client.Config().DefaultModel)
}

// printModels lists models with a marker on the current one.
func printModels(ctx context.Context, env *Env, current string) error {
	models, err := env.Client.ListModels(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Out, "Available models (%d):\n", len(models))
	if len(models) == 0 {
		fmt.Fprintln(env.Out, "  (none, pull one with \"ollama pull <model>\")")
		return nil
	}
	for i, m := range models {
		if m == current {
			fmt.Fprintf(env.Out, "→ %d. %s (current)\n", i+1, m)
		} else {
			fmt.Fprintf(env.Out, "  %d. %s\n", i+1, m)
		}
	}
	return nil
}

func handleAskQuestion(ctx context.Context, env *Env, in Input) error {
	question := strings.TrimSpace(in.Text)
	if question == "" {
		return ErrEmptyInput
	}
	_, err := answer(ctx, env, ollama.GenerateRequest{Prompt: question}, env.Stream)
	return err
}

func handleExplainCode(ctx context.Context, env *Env, in Input) error {
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInput
	}
	lang := languageOr(in.Language, defaultCodeLanguage)
	_, err := answer(ctx, env, ollama.GenerateRequest{
		Prompt: ExplainPrompt(lang, in.Text),
		System: explainSystemPrompt,
	}, env.Stream)
	return err
}

func handleRefactorCode(ctx context.Context, env *Env, in Input) error {
	if strings.TrimSpace(in.Text) == "" {
		return ErrEmptyInput
	}
	lang := languageOr(in.Language, defaultCodeLanguage)
	return printCode(ctx, env, ollama.GenerateRequest{
		Prompt: RefactorPrompt(lang, in.Text),
		System: refactorSystemPrompt,
	})
}

func handleGenerateCode(ctx context.Context, env *Env, in Input) error {
	description := strings.TrimSpace(in.Text)
	if description == "" {
		return ErrEmptyInput
	}
	lang := languageOr(in.Language, defaultGenerateLanguage)
	return printCode(ctx, env, ollama.GenerateRequest{
		Prompt: GeneratePrompt(lang, description),
		System: generateSystemPrompt,
	})
}

func handleSetModel(ctx context.Context, env *Env, in Input) error {
	models, err := env.Client.ListModels(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return ErrNoModels
	}

	name := strings.TrimSpace(in.Text)
	if name == "" {
		if err := printModels(ctx, env, env.Client.Config().DefaultModel); err != nil {
			return err
		}
		return fmt.Errorf("%w: model name required", ErrEmptyInput)
	}
	if !slices.Contains(models, name) {
		return fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(models, ", "))
	}

	// The whole config is replaced, never patched in place.
	cfg := env.Client.Config()
	cfg.DefaultModel = name
	env.Client.UpdateConfig(cfg)

	if env.SaveModel != nil {
		if err := env.SaveModel(name); err != nil {
			return fmt.Errorf("model switched but not saved: %w", err)
		}
	}
	fmt.Fprintf(env.Out, "Switched to model: %s\n", name)
	return nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// answer runs a generation and prints it, streamed or whole.
func answer(ctx context.Context, env *Env, req ollama.GenerateRequest, stream bool) (string, error) {
	if stream {
		text, err := env.Client.GenerateStream(ctx, req, func(chunk string) {
			fmt.Fprint(env.Out, chunk)
		})
		if text != "" {
			fmt.Fprintln(env.Out)
		}
		return text, err
	}

	text, err := env.Client.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if env.Render != nil {
		fmt.Fprint(env.Out, env.Render(text))
	} else {
		fmt.Fprintln(env.Out, text)
	}
	return text, nil
}

// printCode generates a whole answer and prints only the code it contains.
func printCode(ctx context.Context, env *Env, req ollama.GenerateRequest) error {
	text, err := env.Client.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(env.Out, ExtractCodeBlock(text))
	return nil
}

func languageOr(lang, fallback string) string {
	if lang = strings.TrimSpace(lang); lang != "" {
		return lang
	}
	return fallback
}
