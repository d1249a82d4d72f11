// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// AI SETTINGS
// =============================================================================

const (
	// DefaultBaseURL is the endpoint pre-filled for a fresh install.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultContextLength is the number of recent messages sent per request.
	DefaultContextLength = 10
)

// AISettings is the user-supplied provider configuration.
type AISettings struct {
	Model         string `json:"model"`
	APIKey        string `json:"apiKey"`
	BaseURL       string `json:"baseUrl"`
	ContextLength int    `json:"contextLength"`
}

// DefaultAISettings returns the settings used when nothing is stored.
func DefaultAISettings() AISettings {
	return AISettings{
		BaseURL:       DefaultBaseURL,
		ContextLength: DefaultContextLength,
	}
}

// Configured reports whether the user-configured route can be used:
// key, base URL and model must all be non-blank.
func (s AISettings) Configured() bool {
	return strings.TrimSpace(s.APIKey) != "" &&
		strings.TrimSpace(s.BaseURL) != "" &&
		strings.TrimSpace(s.Model) != ""
}

// EffectiveContextLength returns ContextLength, or the default when unset.
func (s AISettings) EffectiveContextLength() int {
	if s.ContextLength < 1 {
		return DefaultContextLength
	}
	return s.ContextLength
}

// MaskedKey returns the API key with all but the last four characters hidden.
func (s AISettings) MaskedKey() string {
	key := strings.TrimSpace(s.APIKey)
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}

// UnmarshalJSON fills fields missing from data with their defaults.
func (s *AISettings) UnmarshalJSON(data []byte) error {
	type plain AISettings
	p := plain(DefaultAISettings())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = AISettings(p)
	return nil
}

// =============================================================================
// INTERFACE SETTINGS
// =============================================================================

// GlassType selects the panel rendering style of the browser client.
type GlassType string

const (
	GlassFrosted GlassType = "frosted"
	GlassClear   GlassType = "clear"
)

// Valid reports whether g is a known glass type.
func (g GlassType) Valid() bool {
	return g == GlassFrosted || g == GlassClear
}

const (
	DefaultUIOpacity   = 0.8
	DefaultCompOpacity = 0.5
)

// InterfaceSettings holds appearance state. Wallpaper is an opaque string
// (data URL or URL) passed through untouched; nil means none.
type InterfaceSettings struct {
	UIOpacity   float64   `json:"uiOpacity"`
	CompOpacity float64   `json:"compOpacity"`
	Wallpaper   *string   `json:"wallpaper"`
	GlassType   GlassType `json:"uiGlassType"`
}

// DefaultInterfaceSettings returns the appearance used when nothing is stored.
func DefaultInterfaceSettings() InterfaceSettings {
	return InterfaceSettings{
		UIOpacity:   DefaultUIOpacity,
		CompOpacity: DefaultCompOpacity,
		GlassType:   GlassFrosted,
	}
}

// Normalize clamps opacities to [0,1] and replaces an unknown glass type.
func (s InterfaceSettings) Normalize() InterfaceSettings {
	s.UIOpacity = clamp01(s.UIOpacity)
	s.CompOpacity = clamp01(s.CompOpacity)
	if !s.GlassType.Valid() {
		s.GlassType = GlassFrosted
	}
	return s
}

// UnmarshalJSON merges data over the defaults field by field.
func (s *InterfaceSettings) UnmarshalJSON(data []byte) error {
	type plain InterfaceSettings
	p := plain(DefaultInterfaceSettings())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = InterfaceSettings(p).Normalize()
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
