// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/codeassist/internal/commands"
	"github.com/jeranaias/codeassist/internal/config"
	"github.com/jeranaias/codeassist/internal/ollama"
	"github.com/jeranaias/codeassist/internal/transport"
)

// =============================================================================
// HELPERS
// =============================================================================

// backend is a minimal local server: /api/tags and /api/generate.
type backend struct {
	mu     sync.Mutex
	models []string
	reply  string
	bodies []string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/tags":
		var sb strings.Builder
		sb.WriteString(`{"models":[`)
		for i, m := range b.models {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(`{"name":` + jsonString(m) + `}`)
		}
		sb.WriteString(`]}`)
		io.WriteString(w, sb.String())
	case "/api/generate":
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.bodies = append(b.bodies, string(body))
		b.mu.Unlock()
		if gjson.GetBytes(body, "stream").Bool() {
			for _, part := range strings.SplitAfter(b.reply, " ") {
				io.WriteString(w, `{"response":`+jsonString(part)+`}`+"\n")
			}
			io.WriteString(w, `{"done":true}`+"\n")
			return
		}
		io.WriteString(w, `{"response":`+jsonString(b.reply)+`}`)
	default:
		http.NotFound(w, r)
	}
}

func (b *backend) lastBody() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bodies) == 0 {
		return ""
	}
	return b.bodies[len(b.bodies)-1]
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"CODEASSIST_OLLAMA_URL", "CODEASSIST_MODEL", "CODEASSIST_TIMEOUT_MS",
		"CODEASSIST_THIRD_PARTY", "CODEASSIST_THIRD_PARTY_URL", "CODEASSIST_API_KEY",
		"CODEASSIST_THIRD_PARTY_MODEL", "CODEASSIST_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

// writeConfig writes a config pointing at baseURL and returns its path.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf("[local]\nbase_url = %q\nmodel = \"llama3\"\ntimeout_ms = 2000\n\n[log]\nlevel = \"off\"\n", baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func startBackend(t *testing.T, b *backend) string {
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)
	return server.URL
}

func refusedURL(t *testing.T) string {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()
	return url
}

// run executes the CLI and returns the exit code and both output streams.
func run(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

// =============================================================================
// COMMAND TESTS
// =============================================================================

func TestHealth_Connected(t *testing.T) {
	path := writeConfig(t, startBackend(t, &backend{models: []string{"llama3", "mistral"}}))

	code, out, _ := run(t, "", "--config", path, "health")

	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "✓ Connection OK")
	assert.Contains(t, out, "→ 1. llama3 (current)")
	assert.Contains(t, out, "  2. mistral")
}

func TestHealth_Unreachable(t *testing.T) {
	path := writeConfig(t, refusedURL(t))

	code, out, errOut := run(t, "", "--config", path, "health")

	assert.Equal(t, ExitNetworkError, code)
	assert.Contains(t, out, "✗ Connection failed")
	assert.Contains(t, errOut, "[ERROR]")
}

func TestModels_Unreachable(t *testing.T) {
	path := writeConfig(t, refusedURL(t))

	code, _, errOut := run(t, "", "--config", path, "models")

	assert.Equal(t, ExitNetworkError, code)
	assert.Contains(t, errOut, "failed to list models")
}

func TestAsk_Streams(t *testing.T) {
	b := &backend{reply: "a closure captures variables"}
	path := writeConfig(t, startBackend(t, b))

	code, out, _ := run(t, "", "--config", path, "ask", "what", "is", "a", "closure?")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "a closure captures variables\n", out)
	assert.Equal(t, "what is a closure?", gjson.Get(b.lastBody(), "prompt").String())
	assert.True(t, gjson.Get(b.lastBody(), "stream").Bool())
}

func TestAsk_NoStream(t *testing.T) {
	b := &backend{reply: "answer"}
	path := writeConfig(t, startBackend(t, b))

	code, out, _ := run(t, "", "--config", path, "--stream=false", "ask", "q")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "answer\n", out)
	assert.False(t, gjson.Get(b.lastBody(), "stream").Bool())
}

func TestAsk_MissingArgsIsUsageError(t *testing.T) {
	code, _, errOut := run(t, "", "ask")

	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, errOut, "[ERROR]")
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	code, _, _ := run(t, "", "health", "--bogus")
	assert.Equal(t, ExitUsageError, code)
}

func TestExplain_FromStdin(t *testing.T) {
	b := &backend{reply: "it prints"}
	path := writeConfig(t, startBackend(t, b))

	code, out, _ := run(t, "fmt.Println(1)", "--config", path, "explain", "--lang", "go")

	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "it prints")
	prompt := gjson.Get(b.lastBody(), "prompt").String()
	assert.Contains(t, prompt, "fmt.Println(1)")
	assert.Contains(t, prompt, "go")
	assert.NotEmpty(t, gjson.Get(b.lastBody(), "system").String())
}

func TestRefactor_FromFileUsesExtension(t *testing.T) {
	b := &backend{reply: "Here:\n```python\nprint(2)\n```\ndone"}
	path := writeConfig(t, startBackend(t, b))
	src := filepath.Join(t.TempDir(), "script.py")
	require.NoError(t, os.WriteFile(src, []byte("print(1)"), 0600))

	code, out, _ := run(t, "", "--config", path, "refactor", src)

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "print(2)\n", out)
	assert.Contains(t, gjson.Get(b.lastBody(), "prompt").String(), "python")
}

func TestRefactor_MissingFile(t *testing.T) {
	path := writeConfig(t, startBackend(t, &backend{}))

	code, _, errOut := run(t, "", "--config", path, "refactor", filepath.Join(t.TempDir(), "nope.go"))

	assert.Equal(t, ExitGeneralError, code)
	assert.Contains(t, errOut, "failed to read")
}

func TestGenerate_Language(t *testing.T) {
	b := &backend{reply: "```go\nfunc f() {}\n```"}
	path := writeConfig(t, startBackend(t, b))

	code, out, _ := run(t, "", "--config", path, "generate", "--lang", "go", "an", "empty", "function")

	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "func f() {}\n", out)
	assert.Contains(t, gjson.Get(b.lastBody(), "prompt").String(), "an empty function")
}

func TestSetModel_Persists(t *testing.T) {
	path := writeConfig(t, startBackend(t, &backend{models: []string{"llama3", "mistral"}}))

	code, out, _ := run(t, "", "--config", path, "set-model", "mistral")

	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, out, "Switched to model: mistral")

	cfg, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Local.Model)
}

func TestSetModel_Unknown(t *testing.T) {
	path := writeConfig(t, startBackend(t, &backend{models: []string{"llama3"}}))

	code, _, errOut := run(t, "", "--config", path, "set-model", "gpt")

	assert.Equal(t, ExitGeneralError, code)
	assert.Contains(t, errOut, "available: llama3")
}

func TestInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[local]\ntimeout_ms = -1\n"), 0600))

	code, _, errOut := run(t, "", "--config", path, "health")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, errOut, "timeout_ms")
}

// =============================================================================
// EXIT CODE TESTS
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Msg: "bad"}, ExitUsageError},
		{"empty input", fmt.Errorf("wrapped: %w", commands.ErrEmptyInput), ExitUsageError},
		{"config", &ConfigError{Path: "x", Err: errors.New("bad")}, ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "f", Message: "m"}}, ExitConfigError},
		{"timeout", &transport.TimeoutError{Method: "POST", URL: "u"}, ExitTimeoutError},
		{"connection", &ollama.ClientError{Type: ollama.ErrTypeConnection}, ExitNetworkError},
		{"not connected", commands.ErrNotConnected, ExitNetworkError},
		{"missing key", &ollama.ClientError{Type: ollama.ErrTypeMissingCredential}, ExitAuthError},
		{"unauthorized", &ollama.ClientError{Type: ollama.ErrTypeAPI, StatusCode: http.StatusUnauthorized}, ExitAuthError},
		{"api", &ollama.ClientError{Type: ollama.ErrTypeAPI, StatusCode: http.StatusInternalServerError}, ExitAPIError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

// =============================================================================
// REPL TESTS
// =============================================================================

func newTestREPL(t *testing.T, b *backend) (*repl, *bytes.Buffer) {
	t.Helper()
	path := writeConfig(t, startBackend(t, b))
	var out bytes.Buffer
	app := NewApp(strings.NewReader(""), &out, io.Discard)
	app.ConfigPath = path
	app.Stream = true
	require.NoError(t, app.init())
	return newREPL(app), &out
}

func TestREPL_PlainTextAsks(t *testing.T) {
	b := &backend{reply: "yes"}
	r, out := newTestREPL(t, b)

	quit, err := r.handle(context.Background(), "is Go fun?")

	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, "yes\n", out.String())
	assert.Equal(t, "is Go fun?", gjson.Get(b.lastBody(), "prompt").String())
}

func TestREPL_Exit(t *testing.T) {
	r, _ := newTestREPL(t, &backend{})

	for _, in := range []string{"/exit", "/quit"} {
		quit, err := r.handle(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, quit, in)
	}
}

func TestREPL_BlankLine(t *testing.T) {
	b := &backend{}
	r, out := newTestREPL(t, b)

	quit, err := r.handle(context.Background(), "   ")

	require.NoError(t, err)
	assert.False(t, quit)
	assert.Empty(t, out.String())
	assert.Empty(t, b.lastBody())
}

func TestREPL_UnknownCommandSuggests(t *testing.T) {
	r, _ := newTestREPL(t, &backend{})

	_, err := r.handle(context.Background(), "/mod")

	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
	assert.Contains(t, usageErr.Msg, "/model")
}

func TestREPL_ExplainNeedsFile(t *testing.T) {
	r, _ := newTestREPL(t, &backend{})

	_, err := r.handle(context.Background(), "/explain")

	var usageErr *UsageError
	require.ErrorAs(t, err, &usageErr)
	assert.Contains(t, usageErr.Msg, "/explain <file>")
}

func TestREPL_ExplainReadsFile(t *testing.T) {
	b := &backend{reply: "ok"}
	r, _ := newTestREPL(t, b)
	src := filepath.Join(t.TempDir(), "main.rs")
	require.NoError(t, os.WriteFile(src, []byte("fn main() {}"), 0600))

	_, err := r.handle(context.Background(), "/explain "+src)

	require.NoError(t, err)
	prompt := gjson.Get(b.lastBody(), "prompt").String()
	assert.Contains(t, prompt, "fn main() {}")
	assert.Contains(t, prompt, "rust")
}

func TestREPLSession_ReloadSurvivesInterrupt(t *testing.T) {
	r, _ := newTestREPL(t, &backend{})

	root, interrupt := context.WithCancel(context.Background())
	session, end := r.app.startSession(root)
	defer end()

	// Ctrl+C reaches both the root context and the request context.
	req, cancelReq := context.WithCancel(session)
	interrupt()
	cancelReq()
	require.Error(t, req.Err())
	require.NoError(t, session.Err())

	require.NoError(t, config.Update(r.app.cfgPath, func(cfg *config.Config) {
		cfg.Local.Model = "mistral"
	}))
	assert.Eventually(t, func() bool {
		return r.app.client.Config().DefaultModel == "mistral"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestREPLSession_EndStopsSession(t *testing.T) {
	r, _ := newTestREPL(t, &backend{})

	session, end := r.app.startSession(context.Background())
	end()

	assert.ErrorIs(t, session.Err(), context.Canceled)
}

func TestREPL_Help(t *testing.T) {
	r, out := newTestREPL(t, &backend{})

	_, err := r.handle(context.Background(), "/help")

	require.NoError(t, err)
	for _, name := range []string{"/ask <question>", "/models", "/model <name>", "/exit"} {
		assert.Contains(t, out.String(), name)
	}
}

// =============================================================================
// INPUT TESTS
// =============================================================================

func TestReadSource(t *testing.T) {
	app := NewApp(strings.NewReader("from stdin"), io.Discard, io.Discard)

	got, err := app.readSource("-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0600))
	got, err = app.readSource(path)
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = app.readSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
