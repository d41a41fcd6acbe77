package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#54A0FF"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FECA57"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF8787"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#73F59F"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8787"))
)

// renderTable writes rows as aligned columns under a styled header.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(cells []string, style *lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			pad := ""
			if i < len(cells)-1 {
				pad = strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			if style != nil {
				cell = style.Render(cell)
			}
			parts[i] = cell + pad
		}
		return strings.Join(parts, "  ")
	}

	fmt.Fprintln(w, line(headers, &headerStyle))
	for _, row := range rows {
		fmt.Fprintln(w, line(row, nil))
	}
}

// summary renders "label: value" pairs on one line.
func summary(pairs ...any) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString(mutedStyle.Render(" · "))
		}
		fmt.Fprintf(&b, "%v %v", pairs[i+1], mutedStyle.Render(fmt.Sprint(pairs[i])))
	}
	return b.String()
}
