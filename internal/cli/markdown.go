// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/jeranaias/nova/internal/ui/styles"
)

var (
	markdownRenderer     *glamour.TermRenderer
	markdownRendererOnce sync.Once
)

// renderMarkdown renders content for the terminal, falling back to the raw
// text if the renderer cannot be built.
func renderMarkdown(content string) string {
	markdownRendererOnce.Do(func() {
		theme := styles.NewThemeFor(termenv.HasDarkBackground(), GetColorProfile())
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(theme.GlamourStyle()),
			glamour.WithWordWrap(GetTerminalWidth()-4),
		)
		if err == nil {
			markdownRenderer = r
		}
	})
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse writes a reply. Markdown is rendered only when w is a
// terminal so piped output stays untouched.
func displayResponse(w io.Writer, response string, raw bool) {
	if !raw && isTerminal(w) {
		fmt.Fprint(w, renderMarkdown(response))
		return
	}
	fmt.Fprint(w, response)
	if !strings.HasSuffix(response, "\n") {
		fmt.Fprintln(w)
	}
}
