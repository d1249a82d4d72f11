// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nova/internal/cloud"
	"github.com/jeranaias/nova/internal/conversation"
	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/session"
	"github.com/jeranaias/nova/internal/settings"
	"github.com/jeranaias/nova/internal/storage"
)

// stubDispatcher answers every dispatch with reply or err.
type stubDispatcher struct {
	reply string
	err   error
}

func (s *stubDispatcher) Dispatch(context.Context, model.AISettings, []model.OutboundMessage) (string, error) {
	return s.reply, s.err
}

func newTestServer(t *testing.T, d session.Dispatcher) (*Server, *session.Session) {
	t.Helper()
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	log, _ := test.NewNullLogger()
	sess := session.New(conversation.Load(ctx, kv, log), settings.Load(ctx, kv, log), d).WithLogger(log)
	srv := NewServer("", sess).
		WithLogger(log).
		WithGatherer(prometheus.NewRegistry()).
		WithVersion("test")
	return srv, sess
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decodeBody(t, rec, &body)
	return body.Error.Kind
}

// =============================================================================
// HEALTH / METRICS
// =============================================================================

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{})
	srv.WithRoutes(cloud.NewDispatcher())

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "none", body.Route)
	assert.False(t, body.ProviderAvailable)
}

func TestHandleHealth_HostedRoute(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{})
	srv.WithRoutes(cloud.NewDispatcher().WithHostedKey("k"))

	var body healthResponse
	decodeBody(t, do(t, srv.Handler(), http.MethodGet, "/health", ""), &body)
	assert.Equal(t, "hosted", body.Route)
	assert.True(t, body.ProviderAvailable)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := cloud.NewMetrics(reg)
	d := cloud.NewDispatcher().WithMetrics(metrics)

	srv, _ := newTestServer(t, d)
	srv.WithGatherer(reg)
	h := srv.Handler()

	// An unconfigured dispatch still counts.
	rec := do(t, h, http.MethodPost, "/api/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nova_dispatch_total{outcome="configuration",route="none"} 1`)
}

// =============================================================================
// CHATS
// =============================================================================

func TestChatsCRUD(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/chats", `{"title":"Plans"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var chat model.Chat
	decodeBody(t, rec, &chat)
	assert.Equal(t, "Plans", chat.Title)
	assert.Equal(t, chat.ID, sess.Chats().ActiveID(), "new chat becomes active")

	// Empty body gets the default title.
	rec = do(t, h, http.MethodPost, "/api/chats", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var second model.Chat
	decodeBody(t, rec, &second)
	assert.Equal(t, model.DefaultChatTitle, second.Title)

	var list chatListResponse
	decodeBody(t, do(t, h, http.MethodGet, "/api/chats", ""), &list)
	require.Len(t, list.Chats, 2)
	assert.Equal(t, second.ID, list.Chats[0].ID, "newest first")
	assert.Equal(t, second.ID, list.ActiveChatID)

	rec = do(t, h, http.MethodPatch, "/api/chats/"+chat.ID, `{"title":"  Renamed  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed model.Chat
	decodeBody(t, rec, &renamed)
	assert.Equal(t, "Renamed", renamed.Title)

	rec = do(t, h, http.MethodPatch, "/api/chats/"+chat.ID, `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/chats/"+chat.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/chats/"+chat.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/chats/"+chat.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	rec = do(t, h, http.MethodDelete, "/api/chats/"+chat.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportChat(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{reply: "A **bold** answer"})
	h := srv.Handler()
	_, err := sess.Send(context.Background(), "", "Question")
	require.NoError(t, err)
	id := sess.Chats().ActiveID()

	rec := do(t, h, http.MethodGet, "/api/chats/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".md")
	assert.Contains(t, rec.Body.String(), "A **bold** answer")

	rec = do(t, h, http.MethodGet, "/api/chats/"+id+"/export?format=json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chat model.Chat
	decodeBody(t, rec, &chat)
	assert.Equal(t, id, chat.ID)
	assert.Len(t, chat.Messages, 2)

	rec = do(t, h, http.MethodGet, "/api/chats/"+id+"/export?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/chats/missing/export", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveChat(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()
	a := sess.Chats().Create("a")
	sess.Chats().Create("b")

	rec := do(t, h, http.MethodPut, "/api/active", `{"id":"`+a.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body activeBody
	decodeBody(t, do(t, h, http.MethodGet, "/api/active", ""), &body)
	assert.Equal(t, a.ID, body.ID)

	rec = do(t, h, http.MethodPut, "/api/active", `{"id":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/active", `{"id":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", sess.Chats().ActiveID())
}

// =============================================================================
// MESSAGES
// =============================================================================

func TestSend_ActiveChatCreated(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{reply: "Hello back"})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/messages", `{"content":"Hello there"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var turn turnResponse
	decodeBody(t, rec, &turn)
	assert.True(t, turn.Created)
	assert.Equal(t, "Hello there", turn.User.Content)
	require.NotNil(t, turn.Assistant)
	assert.Equal(t, "Hello back", turn.Assistant.Content)

	chat, err := sess.Chats().Get(turn.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", chat.Title)
	assert.Len(t, chat.Messages, 2)
}

func TestSend_NamedChat(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{reply: "ok"})
	chat := sess.Chats().Create("x")
	sess.Chats().Create("y")

	rec := do(t, srv.Handler(), http.MethodPost, "/api/chats/"+chat.ID+"/messages", `{"content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, chat.ID, sess.Chats().ActiveID())

	rec = do(t, srv.Handler(), http.MethodPost, "/api/chats/nope/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"configuration", &cloud.Error{Kind: cloud.KindConfiguration, Message: "configure me"}, http.StatusPreconditionFailed, "configuration"},
		{"provider", &cloud.Error{Kind: cloud.KindProvider, Message: "Invalid API key"}, http.StatusBadGateway, "provider"},
		{"network", &cloud.Error{Kind: cloud.KindNetwork, Message: "could not reach host"}, http.StatusGatewayTimeout, "network"},
		{"unknown", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, sess := newTestServer(t, &stubDispatcher{err: tt.err})
			rec := do(t, srv.Handler(), http.MethodPost, "/api/messages", `{"content":"hi"}`)
			require.Equal(t, tt.status, rec.Code)

			var body errorBody
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.kind, body.Error.Kind)
			assert.NotEmpty(t, body.Error.Message)
			assert.NotEmpty(t, body.ChatID, "failed turn still names its chat")

			chat, err := sess.Chats().Get(body.ChatID)
			require.NoError(t, err)
			require.Len(t, chat.Messages, 1, "user message kept, no reply")
			assert.Equal(t, model.RoleUser, chat.Messages[0].Role)
		})
	}
}

func TestSend_BadInput(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{reply: "x"})
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/messages", `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", errorKind(t, rec))

	rec = do(t, h, http.MethodPost, "/api/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/messages", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, 0, sess.Chats().Len(), "nothing recorded")
}

func TestSend_BodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{reply: "x"})
	big := `{"content":"` + strings.Repeat("a", MaxRequestBodySize) + `"}`

	rec := do(t, srv.Handler(), http.MethodPost, "/api/messages", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSend_EndToEndCompatible(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-1234", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Hi!"}}]}`)
	}))
	defer upstream.Close()

	srv, sess := newTestServer(t, cloud.NewDispatcher().WithHTTPClient(upstream.Client()))
	sess.Settings().SetAI(model.AISettings{
		Model:         "m",
		APIKey:        "sk-test-1234",
		BaseURL:       upstream.URL + "/v1",
		ContextLength: 10,
	})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/messages", `{"content":"Hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var turn turnResponse
	decodeBody(t, rec, &turn)
	require.NotNil(t, turn.Assistant)
	assert.Equal(t, "Hi!", turn.Assistant.Content)
}

func TestSend_ClientDisconnectKeepsReply(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"late reply"}}]}`)
	}))
	defer upstream.Close()

	srv, sess := newTestServer(t, cloud.NewDispatcher().WithHTTPClient(upstream.Client()))
	sess.Settings().SetAI(model.AISettings{
		Model:         "m",
		APIKey:        "sk-test-1234",
		BaseURL:       upstream.URL + "/v1",
		ContextLength: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"content":"Hello"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	chat, ok := sess.Chats().Active()
	require.True(t, ok)
	require.Len(t, chat.Messages, 2)
	assert.Equal(t, "late reply", chat.Messages[1].Content)
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestAISettings_MaskedAndMerged(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPut, "/api/settings/ai",
		`{"model":"gpt-x","apiKey":"sk-abcdefgh1234","baseUrl":"https://api.example.com/v1","contextLength":6}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got aiSettingsResponse
	decodeBody(t, rec, &got)
	assert.Equal(t, "********1234", got.APIKey)
	assert.True(t, got.Configured)
	assert.NotContains(t, rec.Body.String(), "sk-abcdefgh1234")

	// Sending the masked key back keeps the stored one.
	rec = do(t, h, http.MethodPut, "/api/settings/ai", `{"apiKey":"********1234","model":"gpt-y"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ai := sess.Settings().AI()
	assert.Equal(t, "sk-abcdefgh1234", ai.APIKey)
	assert.Equal(t, "gpt-y", ai.Model)
	assert.Equal(t, 6, ai.ContextLength)

	rec = do(t, h, http.MethodPut, "/api/settings/ai", `{"contextLength":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterfaceSettings(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()

	var got model.InterfaceSettings
	decodeBody(t, do(t, h, http.MethodGet, "/api/settings/interface", ""), &got)
	assert.Equal(t, model.DefaultInterfaceSettings(), got)

	rec := do(t, h, http.MethodPut, "/api/settings/interface", `{"uiOpacity":3,"uiGlassType":"clear"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &got)
	assert.Equal(t, 1.0, got.UIOpacity, "clamped")
	assert.Equal(t, 0.5, got.CompOpacity, "default kept")
	assert.Equal(t, model.GlassClear, got.GlassType)
}

func TestPreambleAndSidebar(t *testing.T) {
	srv, sess := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()

	rec := do(t, h, http.MethodPut, "/api/preamble", `{"preamble":"Be brief."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Be brief.", sess.Settings().Preamble())

	var p preambleBody
	decodeBody(t, do(t, h, http.MethodGet, "/api/preamble", ""), &p)
	assert.Equal(t, "Be brief.", p.Preamble)

	var sb sidebarBody
	decodeBody(t, do(t, h, http.MethodGet, "/api/layout/sidebar", ""), &sb)
	assert.Equal(t, settings.DefaultSidebarWidth, sb.Width)

	rec = do(t, h, http.MethodPut, "/api/layout/sidebar", `{"width":320}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 320, sess.Settings().SidebarWidth())

	rec = do(t, h, http.MethodPut, "/api/layout/sidebar", `{"width":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ROUTING
// =============================================================================

func TestUnknownRouteAndMethod(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{})
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorKind(t, rec))

	rec = do(t, h, http.MethodDelete, "/api/preamble", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t, &stubDispatcher{})
	srv.addr = "127.0.0.1:0"

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	require.Eventually(t, func() bool {
		return srv.Addr() != "127.0.0.1:0"
	}, testTimeout, testTick)

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, <-errc)
}
