// Package ui provides terminal styling for etlguard CLI output.
package ui

import (
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Semantic colors; adaptive so they read on light and dark terminals.
var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#86C06C"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#F07178"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#EF6C00", Dark: "#FFCB6B"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#82AAFF"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8A8A8A"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

var profileOnce sync.Once

// Init picks the color profile: plain ASCII when noColor is set, NO_COLOR is
// present, or stdout is not a terminal.
func Init(noColor bool) {
	profileOnce.Do(func() {
		if noColor || os.Getenv("NO_COLOR") != "" || !IsTerminal() {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	})
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// IsInteractive reports whether both stdin and stdout are terminals, so a
// prompt can be shown.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && IsTerminal()
}

// RenderPass renders s as a success marker.
func RenderPass(s string) string { return PassStyle.Render(s) }

// RenderFail renders s as a failure marker.
func RenderFail(s string) string { return FailStyle.Render(s) }

// RenderWarn renders s as a warning marker.
func RenderWarn(s string) string { return WarnStyle.Render(s) }

// RenderAccent renders s as a highlight.
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderMuted renders s dimmed.
func RenderMuted(s string) string { return MutedStyle.Render(s) }

// RenderBold renders s in bold.
func RenderBold(s string) string { return BoldStyle.Render(s) }

// RenderStatus renders a switch status: on in the pass color, anything else
// as a warning.
func RenderStatus(status string) string {
	if status == "on" {
		return RenderPass(status)
	}
	return RenderWarn(status)
}

// Table renders rows as left-aligned columns with a bold header row.
// Widths are measured with lipgloss so styled cells line up.
func Table(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string, style func(string) string) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(style(cell))
			if i < len(cells)-1 {
				sb.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(header, RenderBold)
	for _, row := range rows {
		writeRow(row, func(s string) string { return s })
	}
	return sb.String()
}
