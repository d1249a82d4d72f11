// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/storage"
)

func TestLoad_Defaults(t *testing.T) {
	s := Load(context.Background(), storage.NewMemoryKV(), nil)

	ai := s.AI()
	assert.Equal(t, model.DefaultBaseURL, ai.BaseURL)
	assert.Equal(t, 10, ai.ContextLength)
	assert.False(t, ai.Configured())

	iface := s.Interface()
	assert.Equal(t, 0.8, iface.UIOpacity)
	assert.Equal(t, 0.5, iface.CompOpacity)
	assert.Equal(t, model.GlassFrosted, iface.GlassType)
	assert.Nil(t, iface.Wallpaper)

	assert.Equal(t, "", s.Preamble())
	assert.Equal(t, DefaultSidebarWidth, s.SidebarWidth())
}

func TestLoad_EachKeyIndependent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.KeyAISettings, "garbage"))
	require.NoError(t, kv.Set(ctx, storage.KeyInterface, `{"compOpacity":0.2}`))
	require.NoError(t, kv.Set(ctx, storage.KeyPreamble, "Be brief. "))
	require.NoError(t, kv.Set(ctx, storage.KeySidebarWidth, "-4"))

	s := Load(ctx, kv, nil)
	assert.Equal(t, model.DefaultAISettings(), s.AI())
	assert.Equal(t, 0.2, s.Interface().CompOpacity)
	assert.Equal(t, 0.8, s.Interface().UIOpacity, "missing field merged from default")
	assert.Equal(t, "Be brief. ", s.Preamble())
	assert.Equal(t, DefaultSidebarWidth, s.SidebarWidth())
}

func TestLoad_PartialAISettings(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, storage.KeyAISettings, `{"apiKey":"sk-1","model":"gpt-4o"}`))

	ai := Load(ctx, kv, nil).AI()
	assert.Equal(t, model.DefaultBaseURL, ai.BaseURL)
	assert.True(t, ai.Configured())
}

func TestSetters_Persist(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	s := Load(ctx, kv, nil)

	s.SetAI(model.AISettings{Model: "m", APIKey: "k", BaseURL: "https://x/v1", ContextLength: 3})
	wall := "data:image/png;base64,AAAA"
	s.SetInterface(model.InterfaceSettings{UIOpacity: 2, CompOpacity: 0.4, Wallpaper: &wall, GlassType: model.GlassClear})
	s.SetPreamble("You are terse. ")
	require.NoError(t, s.SetSidebarWidth(400))
	assert.ErrorIs(t, s.SetSidebarWidth(0), ErrInvalidSidebarWidth)

	reloaded := Load(ctx, kv, nil)
	assert.Equal(t, 3, reloaded.AI().ContextLength)
	assert.Equal(t, "k", reloaded.AI().APIKey)
	assert.Equal(t, 1.0, reloaded.Interface().UIOpacity, "clamped")
	assert.Equal(t, model.GlassClear, reloaded.Interface().GlassType)
	require.NotNil(t, reloaded.Interface().Wallpaper)
	assert.Equal(t, wall, *reloaded.Interface().Wallpaper)
	assert.Equal(t, "You are terse. ", reloaded.Preamble())
	assert.Equal(t, 400, reloaded.SidebarWidth())
}

func TestInterface_ReturnsCopy(t *testing.T) {
	s := Load(context.Background(), storage.NewMemoryKV(), nil)
	wall := "a"
	s.SetInterface(model.InterfaceSettings{UIOpacity: 0.5, Wallpaper: &wall, GlassType: model.GlassFrosted})

	got := s.Interface()
	*got.Wallpaper = "changed"
	assert.Equal(t, "a", *s.Interface().Wallpaper)
}
