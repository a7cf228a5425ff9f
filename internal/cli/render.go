// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer builds a renderer for answers printed to w. It returns nil
// when w is not a terminal, so piped output stays raw markdown.
func markdownRenderer(w io.Writer) func(string) string {
	if !isTerminal(w) {
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth(w)-2),
	)
	if err != nil {
		return nil
	}

	return func(content string) string {
		out, err := renderer.Render(content)
		if err != nil {
			return content + "\n"
		}
		return out
	}
}
