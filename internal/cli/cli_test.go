// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/config"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/settings"
	"github.com/jeranaias/nova/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

// isolate points HOME at a temp dir and clears every variable the CLI reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{
		"NOVA_DATA_DIR", "NOVA_ADDR", "NOVA_LOG_LEVEL", "NOVA_REQUEST_TIMEOUT",
		"NOVA_HOSTED_MODEL", "NOVA_HOSTED_API_KEY", "GEMINI_API_KEY", "API_KEY",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("NOVA_STORAGE", "file")
	return home
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes one nova invocation with the given stdin.
func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	cmd, opts := newRootCommand()
	defer opts.close()

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// upstream is an OpenAI-compatible endpoint that answers every request.
func upstream(t *testing.T, reply string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	auth := &atomic.Value{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, auth
}

// configure stores working AI settings pointing at baseURL.
func configure(t *testing.T, baseURL string) {
	t.Helper()
	res := run(t, "sk-test-1234\n", "settings", "ai",
		"--model", "gpt-test", "--base-url", baseURL, "--api-key")
	require.NoError(t, res.err, res.stderr)
}

func decodeEnvelope(t *testing.T, out string, data any) JSONResponse {
	t.Helper()
	var env JSONResponse
	env.Data = data
	require.NoError(t, json.Unmarshal([]byte(out), &env), out)
	return env
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_NotConfigured(t *testing.T) {
	isolate(t)

	res := run(t, "", "ask", "hello there")
	require.Error(t, res.err)
	assert.True(t, errors.Is(res.err, cloud.ErrConfiguration))
	assert.Equal(t, ExitConfigError, ExitCode(res.err))
	assert.Contains(t, res.stderr, "saved in chat")

	// The user message stays recorded.
	var rows []chatSummary
	res = run(t, "", "chats", "list", "--json")
	require.NoError(t, res.err)
	env := decodeEnvelope(t, res.stdout, &rows)
	assert.True(t, env.Success)
	require.Len(t, rows, 1)
	assert.Equal(t, "hello there", rows[0].Title)
	assert.Equal(t, 1, rows[0].Messages)
	assert.True(t, rows[0].Active)
}

func TestAsk_UserProvider(t *testing.T) {
	isolate(t)
	srv, auth := upstream(t, "Hello from upstream")
	configure(t, srv.URL)

	res := run(t, "", "ask", "hi")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "Hello from upstream\n", res.stdout, "piped output is not rendered")
	assert.Equal(t, "Bearer sk-test-1234", auth.Load())
}

func TestAsk_JSON(t *testing.T) {
	isolate(t)
	srv, _ := upstream(t, "pong")
	configure(t, srv.URL)

	var got askResult
	res := run(t, "", "ask", "--json", "ping")
	require.NoError(t, res.err, res.stderr)
	env := decodeEnvelope(t, res.stdout, &got)
	assert.True(t, env.Success)
	assert.Equal(t, "ask", env.Command)
	assert.Equal(t, "pong", got.Reply)
	assert.True(t, got.Created)
	assert.NotEmpty(t, got.ChatID)
}

func TestAsk_ContinuesActiveChat(t *testing.T) {
	isolate(t)
	srv, _ := upstream(t, "ok")
	configure(t, srv.URL)

	require.NoError(t, run(t, "", "ask", "first").err)
	require.NoError(t, run(t, "", "ask", "--active", "second").err)

	var rows []chatSummary
	decodeEnvelope(t, run(t, "", "chats", "list", "--json").stdout, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, 4, rows[0].Messages)
}

func TestAsk_Stdin(t *testing.T) {
	isolate(t)
	srv, _ := upstream(t, "read it")
	configure(t, srv.URL)

	res := run(t, "question from a pipe\n", "ask")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "read it\n", res.stdout)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	isolate(t)

	res := run(t, "   \n", "ask")
	require.Error(t, res.err)
	assert.Equal(t, ExitUsageError, ExitCode(res.err))
}

func TestAsk_UnknownChat(t *testing.T) {
	isolate(t)

	res := run(t, "", "ask", "--chat", "missing", "hi")
	require.Error(t, res.err)
	assert.Equal(t, ExitNotFoundError, ExitCode(res.err))
}

// =============================================================================
// CHAT (scripted)
// =============================================================================

func TestChat_ScriptedInput(t *testing.T) {
	isolate(t)
	srv, _ := upstream(t, "scripted reply")
	configure(t, srv.URL)

	res := run(t, "/new Scripted\nhello\n/list\n/quit\nnever sent\n", "chat")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "New chat: Scripted")
	assert.Contains(t, res.stdout, "scripted reply")
	assert.Contains(t, res.stdout, "(2 messages)")
	assert.NotContains(t, res.stdout, "never sent")
}

// =============================================================================
// CHATS
// =============================================================================

func TestChats_RenameShowDelete(t *testing.T) {
	isolate(t)
	run(t, "", "ask", "original title")

	var rows []chatSummary
	decodeEnvelope(t, run(t, "", "chats", "list", "--json").stdout, &rows)
	require.Len(t, rows, 1)
	id := rows[0].ID

	require.NoError(t, run(t, "", "chats", "rename", id, "Better", "title").err)
	res := run(t, "", "chats", "show", id)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Better title")
	assert.Contains(t, res.stdout, "original title")

	require.NoError(t, run(t, "", "chats", "delete", id).err)
	res = run(t, "", "chats", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "No chats yet")
}

func TestChats_Export(t *testing.T) {
	isolate(t)
	run(t, "", "ask", "export me")

	var rows []chatSummary
	decodeEnvelope(t, run(t, "", "chats", "list", "--json").stdout, &rows)
	require.Len(t, rows, 1)

	res := run(t, "", "chats", "export", rows[0].ID)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "# export me")

	dir := t.TempDir()
	res = run(t, "", "chats", "export", rows[0].ID, "--format", "json", "--dir", dir)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, dir)

	res = run(t, "", "chats", "export", rows[0].ID, "--format", "pdf")
	assert.Equal(t, ExitUsageError, ExitCode(res.err))
}

func TestChats_Errors(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"rename missing", []string{"chats", "rename", "nope", "title"}, ExitNotFoundError},
		{"rename without title", []string{"chats", "rename", "nope"}, ExitUsageError},
		{"delete missing", []string{"chats", "delete", "nope"}, ExitNotFoundError},
		{"select missing", []string{"chats", "select", "nope"}, ExitNotFoundError},
		{"show extra args", []string{"chats", "show", "a", "b"}, ExitUsageError},
		{"unknown flag", []string{"chats", "list", "--bogus"}, ExitUsageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, "", tt.args...)
			require.Error(t, res.err)
			assert.Equal(t, tt.want, ExitCode(res.err), res.err.Error())
		})
	}
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestSettingsAI_MasksKey(t *testing.T) {
	isolate(t)
	configure(t, "https://api.example.test/v1")

	res := run(t, "", "settings", "ai")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "********1234")
	assert.NotContains(t, res.stdout, "sk-test-1234")
	assert.Contains(t, res.stdout, "gpt-test")

	var view aiSettingsView
	res = run(t, "", "settings", "ai", "--json")
	require.NoError(t, res.err)
	decodeEnvelope(t, res.stdout, &view)
	assert.True(t, view.Configured)
	assert.Equal(t, "user", view.Route)
	assert.Equal(t, "********1234", view.APIKey)
}

func TestSettingsAI_ClearKeyAndValidation(t *testing.T) {
	isolate(t)
	configure(t, "https://api.example.test/v1")

	var view aiSettingsView
	res := run(t, "", "settings", "ai", "--clear-key", "--json")
	require.NoError(t, res.err)
	decodeEnvelope(t, res.stdout, &view)
	assert.False(t, view.Configured)
	assert.Empty(t, view.APIKey)

	res = run(t, "\n", "settings", "ai", "--api-key")
	assert.Equal(t, ExitUsageError, ExitCode(res.err), "an empty key is rejected")

	res = run(t, "", "settings", "ai", "--context-length", "-1")
	assert.Equal(t, ExitUsageError, ExitCode(res.err))
}

func TestSettingsInterface(t *testing.T) {
	isolate(t)

	var got model.InterfaceSettings
	res := run(t, "", "settings", "interface", "--ui-opacity", "1.7", "--glass", "clear", "--wallpaper", "https://img.test/a.png", "--json")
	require.NoError(t, res.err, res.stderr)
	decodeEnvelope(t, res.stdout, &got)
	assert.Equal(t, 1.0, got.UIOpacity, "clamped")
	assert.Equal(t, model.GlassClear, got.GlassType)
	require.NotNil(t, got.Wallpaper)

	res = run(t, "", "settings", "interface", "--glass", "smoky")
	assert.Equal(t, ExitUsageError, ExitCode(res.err))
}

func TestSettingsPreambleAndSidebar(t *testing.T) {
	isolate(t)

	require.NoError(t, run(t, "", "settings", "preamble", "Answer", "briefly.").err)
	res := run(t, "", "settings", "preamble")
	assert.Equal(t, "Answer briefly.\n", res.stdout)
	require.NoError(t, run(t, "", "settings", "preamble", "--clear").err)
	assert.Contains(t, run(t, "", "settings", "preamble").stdout, "No preamble")

	res = run(t, "", "settings", "sidebar", "320")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "320px")

	for _, bad := range []string{"0", "wide"} {
		res = run(t, "", "settings", "sidebar", bad)
		assert.Equal(t, ExitUsageError, ExitCode(res.err), bad)
	}
}

// =============================================================================
// CONFIG / VERSION
// =============================================================================

func TestConfig_InitSetGet(t *testing.T) {
	isolate(t)

	res := run(t, "", "config", "init")
	require.NoError(t, res.err, res.stderr)
	res = run(t, "", "config", "init")
	assert.Equal(t, ExitUsageError, ExitCode(res.err), "init refuses to overwrite")

	require.NoError(t, run(t, "", "config", "set", "server.addr", "127.0.0.1:9999").err)
	res = run(t, "", "config", "get", "server.addr")
	require.NoError(t, res.err)
	assert.Equal(t, "127.0.0.1:9999\n", res.stdout)

	res = run(t, "", "config", "get", "server.nope")
	assert.Equal(t, ExitUsageError, ExitCode(res.err))

	res = run(t, "", "config", "set", "provider.request_timeout", "1h")
	assert.Equal(t, ExitConfigError, ExitCode(res.err), "exceeds the timeout cap")
}

func TestConfig_Path(t *testing.T) {
	home := isolate(t)

	res := run(t, "", "config", "path")
	require.NoError(t, res.err)
	assert.Equal(t, home+"/.nova/config.toml\n", res.stdout)

	res = run(t, "", "--config", "/tmp/other.toml", "config", "path")
	assert.Equal(t, "/tmp/other.toml\n", res.stdout)
}

func TestVersion_JSON(t *testing.T) {
	isolate(t)

	var info VersionInfo
	res := run(t, "", "version", "--json")
	require.NoError(t, res.err)
	env := decodeEnvelope(t, res.stdout, &info)
	assert.True(t, env.Success)
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestTUI_RequiresTerminal(t *testing.T) {
	isolate(t)

	res := run(t, "")
	require.Error(t, res.err)
	assert.Equal(t, ExitUsageError, ExitCode(res.err))
}

// =============================================================================
// REPL
// =============================================================================

type stubDispatcher struct {
	reply string
	err   error
	got   []model.OutboundMessage
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ model.AISettings, msgs []model.OutboundMessage) (string, error) {
	d.got = msgs
	return d.reply, d.err
}

func newTestREPL(d session.Dispatcher) (*repl, *bytes.Buffer, *bytes.Buffer) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	sess := session.New(conversation.Load(ctx, kv, nil), settings.Load(ctx, kv, nil), d)
	var out, errOut bytes.Buffer
	return &repl{sess: sess, out: &out, errOut: &errOut, raw: true}, &out, &errOut
}

func TestREPL_SlashCommands(t *testing.T) {
	d := &stubDispatcher{reply: "sure"}
	r, out, errOut := newTestREPL(d)
	ctx := context.Background()

	assert.False(t, r.handle(ctx, "/new Ideas"))
	assert.False(t, r.handle(ctx, "/new Other"))
	assert.False(t, r.handle(ctx, "/switch 2"))
	active, ok := r.sess.Chats().Active()
	require.True(t, ok)
	assert.Equal(t, "Ideas", active.Title)

	assert.False(t, r.handle(ctx, "/preamble Be brief."))
	assert.Equal(t, "Be brief.", r.sess.Settings().Preamble())

	assert.False(t, r.handle(ctx, "what next?"))
	assert.Contains(t, out.String(), "sure")
	require.Len(t, d.got, 2, "preamble plus the user message")
	assert.Equal(t, model.RoleSystem, d.got[0].Role)

	assert.False(t, r.handle(ctx, "/rename Plans"))
	active, _ = r.sess.Chats().Active()
	assert.Equal(t, "Plans", active.Title)

	out.Reset()
	assert.False(t, r.handle(ctx, "/list"))
	assert.Contains(t, out.String(), "* ")
	assert.Contains(t, out.String(), "Plans")

	assert.False(t, r.handle(ctx, "/delete"))
	assert.Equal(t, 1, r.sess.Chats().Len())

	assert.False(t, r.handle(ctx, "/switch 9"))
	assert.Contains(t, errOut.String(), "chat not found")

	assert.False(t, r.handle(ctx, "/bogus"))
	assert.Contains(t, errOut.String(), "unknown command")

	assert.True(t, r.handle(ctx, "/quit"))
	assert.True(t, r.handle(ctx, "exit"))
}

func TestREPL_SendErrors(t *testing.T) {
	r, _, errOut := newTestREPL(cloud.NewDispatcher())

	r.handle(context.Background(), "hello")

	assert.Contains(t, errOut.String(), cloud.ConfigurationMessage)
	assert.Contains(t, errOut.String(), "nova settings ai")
	chat, ok := r.sess.Chats().Active()
	require.True(t, ok)
	assert.Len(t, chat.Messages, 1)
}

func TestREPL_Cancelled(t *testing.T) {
	r, _, errOut := newTestREPL(&stubDispatcher{err: context.Canceled})

	r.handle(context.Background(), "hello")

	assert.Contains(t, errOut.String(), "[Cancelled]")
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"configuration", &cloud.Error{Kind: cloud.KindConfiguration, Message: "x"}, ExitConfigError},
		{"network", fmt.Errorf("wrapped: %w", &cloud.Error{Kind: cloud.KindNetwork, Message: "x"}), ExitNetworkError},
		{"provider", &cloud.Error{Kind: cloud.KindProvider, Message: "x"}, ExitProviderError},
		{"not found", fmt.Errorf("get: %w", conversation.ErrChatNotFound), ExitNotFoundError},
		{"not found type", &NotFoundError{Resource: "chat", ID: "3"}, ExitNotFoundError},
		{"empty input", session.ErrEmptyInput, ExitUsageError},
		{"validation", &ValidationError{Field: "f", Reason: "r"}, ExitUsageError},
		{"config validation", config.ValidateErrors{{Field: "server.addr", Message: "bad"}}, ExitConfigError},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &cloud.Error{Kind: cloud.KindConfiguration, Message: "raw"})
	assert.Contains(t, buf.String(), cloud.ConfigurationMessage)

	buf.Reset()
	DisplayError(&buf, errors.New("first\nsecond"))
	assert.Contains(t, buf.String(), "first")
	assert.Contains(t, buf.String(), "second")
}
