// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessage(t *testing.T) {
	msg := NewUserMessage("hello")
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())

	other := NewAssistantMessage("hi")
	assert.NotEqual(t, msg.ID, other.ID)
	assert.Equal(t, RoleAssistant, other.Role)
}

func TestMessage_JSONUsesMillis(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	msg := Message{ID: "m1", Role: RoleUser, Content: "x", Timestamp: ts}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","role":"user","content":"x","timestamp":1700000000123}`, string(data))

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Timestamp.Equal(ts))
}

func TestMessage_Preview(t *testing.T) {
	msg := Message{Content: "héllo wörld"}
	assert.Equal(t, "héllo wörld", msg.Preview(20))
	assert.Equal(t, "héll...", msg.Preview(7))
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
	assert.Equal(t, "You", RoleUser.DisplayName())
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestNewChat_DefaultTitle(t *testing.T) {
	chat := NewChat("")
	assert.Equal(t, DefaultChatTitle, chat.Title)
	assert.NotNil(t, chat.Messages)
	assert.Nil(t, chat.LastMessage())
}

func TestTitleFromText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "short"},
		{strings.Repeat("a", 45), strings.Repeat("a", 30)},
		{"   ", DefaultChatTitle},
		// decomposed é (e + combining acute) normalises to one rune
		{"cafe\u0301 " + strings.Repeat("b", 40), "caf\u00e9 " + strings.Repeat("b", 25)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleFromText(tt.in))
	}
}

func TestChat_CloneIsDeep(t *testing.T) {
	chat := NewChat("c")
	chat.Messages = append(chat.Messages, NewUserMessage("one"))

	cp := chat.Clone()
	cp.Messages[0].Content = "changed"
	cp.Messages = append(cp.Messages, NewUserMessage("two"))

	assert.Equal(t, "one", chat.Messages[0].Content)
	assert.Len(t, chat.Messages, 1)
}

func TestChat_JSONRoundTrip(t *testing.T) {
	raw := `{"id":"c1","title":"T","messages":[{"id":"m","role":"assistant","content":"a","timestamp":5}],"createdAt":1000}`
	var chat Chat
	require.NoError(t, json.Unmarshal([]byte(raw), &chat))
	assert.Equal(t, "c1", chat.ID)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, RoleAssistant, chat.Messages[0].Role)
	assert.Equal(t, int64(1000), chat.CreatedAt.UnixMilli())

	out, err := json.Marshal(chat)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestChat_NilMessagesMarshalAsArray(t *testing.T) {
	out, err := json.Marshal(Chat{ID: "x"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"messages":[]`)
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestAISettings_Configured(t *testing.T) {
	s := DefaultAISettings()
	assert.False(t, s.Configured())

	s.APIKey = "sk-1"
	s.Model = "  "
	assert.False(t, s.Configured(), "blank model")

	s.Model = "gpt-4o"
	assert.True(t, s.Configured())

	s.BaseURL = ""
	assert.False(t, s.Configured())
}

func TestAISettings_EffectiveContextLength(t *testing.T) {
	assert.Equal(t, 10, AISettings{}.EffectiveContextLength())
	assert.Equal(t, 10, AISettings{ContextLength: -3}.EffectiveContextLength())
	assert.Equal(t, 4, AISettings{ContextLength: 4}.EffectiveContextLength())
}

func TestAISettings_UnmarshalFillsDefaults(t *testing.T) {
	var s AISettings
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","apiKey":"k"}`), &s))
	assert.Equal(t, DefaultBaseURL, s.BaseURL)
	assert.Equal(t, DefaultContextLength, s.ContextLength)
	assert.Equal(t, "m", s.Model)
}

func TestAISettings_MaskedKey(t *testing.T) {
	assert.Equal(t, "", AISettings{}.MaskedKey())
	assert.Equal(t, "***", AISettings{APIKey: "abc"}.MaskedKey())
	assert.Equal(t, "********wxyz", AISettings{APIKey: "sk-123wxyz"}.MaskedKey())
}

func TestInterfaceSettings_Merge(t *testing.T) {
	var s InterfaceSettings
	require.NoError(t, json.Unmarshal([]byte(`{"uiOpacity":0.3}`), &s))
	assert.Equal(t, 0.3, s.UIOpacity)
	assert.Equal(t, DefaultCompOpacity, s.CompOpacity)
	assert.Equal(t, GlassFrosted, s.GlassType)
	assert.Nil(t, s.Wallpaper)
}

func TestInterfaceSettings_Normalize(t *testing.T) {
	var s InterfaceSettings
	require.NoError(t, json.Unmarshal([]byte(`{"uiOpacity":4,"compOpacity":-1,"uiGlassType":"tinted","wallpaper":"data:x"}`), &s))
	assert.Equal(t, 1.0, s.UIOpacity)
	assert.Equal(t, 0.0, s.CompOpacity)
	assert.Equal(t, GlassFrosted, s.GlassType)
	require.NotNil(t, s.Wallpaper)
	assert.Equal(t, "data:x", *s.Wallpaper)
}
