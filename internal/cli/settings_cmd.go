// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/nova/internal/model"
	"github.com/jeranaias/nova/internal/settings"
)

func newSettingsCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change provider and appearance settings",
	}
	cmd.AddCommand(
		newSettingsAICommand(g),
		newSettingsInterfaceCommand(g),
		newSettingsPreambleCommand(g),
		newSettingsSidebarCommand(g),
	)
	return cmd
}

// =============================================================================
// AI
// =============================================================================

// aiSettingsView is the displayed form of the AI settings. The key is never
// shown in full.
type aiSettingsView struct {
	Model         string `json:"model"`
	BaseURL       string `json:"baseUrl"`
	ContextLength int    `json:"contextLength"`
	APIKey        string `json:"apiKey"`
	Configured    bool   `json:"configured"`
	Route         string `json:"route"`
}

type aiOptions struct {
	model         string
	baseURL       string
	contextLength int
	readKey       bool
	clearKey      bool
	json          bool
}

func newSettingsAICommand(g *globalOptions) *cobra.Command {
	o := &aiOptions{}
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Show or change the OpenAI-compatible provider",
		Long: `Show or change the OpenAI-compatible provider.

With no flags the current settings are shown with the key masked. The key
is read from the terminal without echo (or from stdin when piped) so it
never appears in shell history.`,
		Example: `  nova settings ai --model gpt-4o-mini --base-url https://api.openai.com/v1 --api-key
  echo "$OPENROUTER_KEY" | nova settings ai --api-key --base-url https://openrouter.ai/api/v1`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSettingsAI(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.model, "model", "", "model name")
	f.StringVar(&o.baseURL, "base-url", "", "chat completions base URL")
	f.IntVar(&o.contextLength, "context-length", 0, "recent messages sent per request (0 for the default)")
	f.BoolVar(&o.readKey, "api-key", false, "prompt for the API key")
	f.BoolVar(&o.clearKey, "clear-key", false, "remove the stored API key")
	f.BoolVar(&o.json, "json", false, "print as JSON")
	cmd.MarkFlagsMutuallyExclusive("api-key", "clear-key")
	return cmd
}

func runSettingsAI(cmd *cobra.Command, g *globalOptions, o *aiOptions) error {
	app, err := g.App(cmd)
	if err != nil {
		return err
	}
	prefs := app.Session.Settings()
	ai := prefs.AI()

	flags := cmd.Flags()
	changed := false
	if flags.Changed("model") {
		ai.Model = strings.TrimSpace(o.model)
		changed = true
	}
	if flags.Changed("base-url") {
		ai.BaseURL = strings.TrimSpace(o.baseURL)
		changed = true
	}
	if flags.Changed("context-length") {
		if o.contextLength < 0 {
			return &ValidationError{Field: "context length", Value: strconv.Itoa(o.contextLength), Reason: "must not be negative"}
		}
		ai.ContextLength = o.contextLength
		changed = true
	}
	if o.clearKey {
		ai.APIKey = ""
		changed = true
	}
	if o.readKey {
		key, err := promptKey(cmd)
		if err != nil {
			return err
		}
		ai.APIKey = key
		changed = true
	}
	if changed {
		prefs.SetAI(ai)
	}

	view := aiSettingsView{
		Model:         ai.Model,
		BaseURL:       ai.BaseURL,
		ContextLength: ai.EffectiveContextLength(),
		APIKey:        ai.MaskedKey(),
		Configured:    ai.Configured(),
		Route:         app.Dispatcher.RouteFor(ai).String(),
	}
	if o.json {
		return NewJSONResponse("settings ai", view).Print(cmd.OutOrStdout())
	}

	out := cmd.OutOrStdout()
	if changed {
		fmt.Fprintln(out, SuccessStyle.Render("Saved"))
	}
	printAISettings(out, view)
	return nil
}

func printAISettings(w io.Writer, v aiSettingsView) {
	orNone := func(s string) string {
		if s == "" {
			return DimStyle.Render("(not set)")
		}
		return s
	}
	fmt.Fprintln(w, formatKeyValue("Model", orNone(v.Model)))
	fmt.Fprintln(w, formatKeyValue("Base URL", orNone(v.BaseURL)))
	fmt.Fprintln(w, formatKeyValue("Context length", strconv.Itoa(v.ContextLength)))
	fmt.Fprintln(w, formatKeyValue("API key", orNone(v.APIKey)))
	fmt.Fprintln(w, formatKeyValue("Route", v.Route))
}

// promptKey reads the API key. An empty answer is rejected so a stray
// Enter does not wipe the key; use --clear-key for that.
func promptKey(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if isTerminal(in) {
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
	}
	key, err := ReadSecret(in)
	if isTerminal(in) {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", &ValidationError{Field: "API key", Reason: "empty", Example: "nova settings ai --clear-key"}
	}
	return key, nil
}

// =============================================================================
// INTERFACE
// =============================================================================

type interfaceOptions struct {
	uiOpacity      float64
	compOpacity    float64
	glass          string
	wallpaper      string
	clearWallpaper bool
	json           bool
}

func newSettingsInterfaceCommand(g *globalOptions) *cobra.Command {
	o := &interfaceOptions{}
	cmd := &cobra.Command{
		Use:   "interface",
		Short: "Show or change appearance settings shared with the browser client",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSettingsInterface(cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.Float64Var(&o.uiOpacity, "ui-opacity", 0, "panel opacity, 0 to 1")
	f.Float64Var(&o.compOpacity, "comp-opacity", 0, "component opacity, 0 to 1")
	f.StringVar(&o.glass, "glass", "", "glass style: frosted or clear")
	f.StringVar(&o.wallpaper, "wallpaper", "", "wallpaper URL or data URL")
	f.BoolVar(&o.clearWallpaper, "clear-wallpaper", false, "remove the wallpaper")
	f.BoolVar(&o.json, "json", false, "print as JSON")
	cmd.MarkFlagsMutuallyExclusive("wallpaper", "clear-wallpaper")
	return cmd
}

func runSettingsInterface(cmd *cobra.Command, g *globalOptions, o *interfaceOptions) error {
	app, err := g.App(cmd)
	if err != nil {
		return err
	}
	prefs := app.Session.Settings()
	iface := prefs.Interface()

	flags := cmd.Flags()
	changed := false
	if flags.Changed("ui-opacity") {
		iface.UIOpacity = o.uiOpacity
		changed = true
	}
	if flags.Changed("comp-opacity") {
		iface.CompOpacity = o.compOpacity
		changed = true
	}
	if flags.Changed("glass") {
		glass := model.GlassType(strings.ToLower(o.glass))
		if !glass.Valid() {
			return &ValidationError{Field: "glass", Value: o.glass, Reason: "unknown style", Example: "--glass clear"}
		}
		iface.GlassType = glass
		changed = true
	}
	if flags.Changed("wallpaper") {
		w := o.wallpaper
		iface.Wallpaper = &w
		changed = true
	}
	if o.clearWallpaper {
		iface.Wallpaper = nil
		changed = true
	}
	if changed {
		prefs.SetInterface(iface)
		iface = prefs.Interface()
	}

	if o.json {
		return NewJSONResponse("settings interface", iface).Print(cmd.OutOrStdout())
	}
	out := cmd.OutOrStdout()
	wallpaper := DimStyle.Render("(none)")
	if iface.Wallpaper != nil {
		wallpaper = truncateMiddle(*iface.Wallpaper, 48)
	}
	fmt.Fprintln(out, formatKeyValue("UI opacity", strconv.FormatFloat(iface.UIOpacity, 'g', -1, 64)))
	fmt.Fprintln(out, formatKeyValue("Comp opacity", strconv.FormatFloat(iface.CompOpacity, 'g', -1, 64)))
	fmt.Fprintln(out, formatKeyValue("Glass", string(iface.GlassType)))
	fmt.Fprintln(out, formatKeyValue("Wallpaper", wallpaper))
	return nil
}

// truncateMiddle shortens long values such as data URLs for display.
func truncateMiddle(s string, limit int) string {
	if len(s) <= limit || limit < 8 {
		return s
	}
	half := (limit - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}

// =============================================================================
// PREAMBLE / SIDEBAR
// =============================================================================

func newSettingsPreambleCommand(g *globalOptions) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "preamble [text]",
		Short: "Show or set the system preamble sent before each chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			prefs := app.Session.Settings()
			out := cmd.OutOrStdout()
			switch {
			case remove:
				prefs.SetPreamble("")
				fmt.Fprintln(out, SuccessStyle.Render("Preamble cleared"))
			case len(args) > 0:
				prefs.SetPreamble(strings.Join(args, " "))
				fmt.Fprintln(out, SuccessStyle.Render("Preamble set"))
			default:
				if p := prefs.Preamble(); p != "" {
					fmt.Fprintln(out, p)
				} else {
					fmt.Fprintln(out, DimStyle.Render("No preamble set."))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remove, "clear", false, "remove the preamble")
	return cmd
}

func newSettingsSidebarCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sidebar [width]",
		Short: "Show or set the sidebar width in pixels",
		Args:  rangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.App(cmd)
			if err != nil {
				return err
			}
			prefs := app.Session.Settings()
			if len(args) == 1 {
				px, err := strconv.Atoi(args[0])
				if err != nil {
					return &ValidationError{Field: "width", Value: args[0], Reason: "not a number", Example: strconv.Itoa(settings.DefaultSidebarWidth)}
				}
				if err := prefs.SetSidebarWidth(px); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatKeyValue("Sidebar width", strconv.Itoa(prefs.SidebarWidth())+"px"))
			return nil
		},
	}
}
