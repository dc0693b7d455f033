package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func TestMain(m *testing.M) {
	lipgloss.SetColorProfile(termenv.Ascii)
	m.Run()
}

func TestRenderPlain(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
	}{
		{"pass", RenderPass},
		{"fail", RenderFail},
		{"warn", RenderWarn},
		{"accent", RenderAccent},
		{"muted", RenderMuted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn("✓ done"); got != "✓ done" {
				t.Errorf("expected unstyled text with the ascii profile, got %q", got)
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	if RenderStatus("on") != "on" || RenderStatus("off") != "off" {
		t.Error("status text should pass through unchanged")
	}
}

func TestTable(t *testing.T) {
	out := Table(
		[]string{"DESTINATION", "STATUS"},
		[][]string{{"example", "on"}, {"orders-archive", "off"}},
	)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out)
	}

	col := strings.Index(lines[0], "STATUS")
	if col < 0 {
		t.Fatalf("missing header: %q", lines[0])
	}
	for _, line := range lines[1:] {
		if len(line) <= col || (line[col:col+1] != "o") {
			t.Errorf("status column misaligned: %q", line)
		}
	}
}
