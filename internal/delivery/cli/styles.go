package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
)

// styler renders through lipgloss only when the writer is a terminal, so
// piped output stays plain.
type styler struct {
	enabled bool
	width   int
}

func newStyler(w io.Writer) styler {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return styler{}
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		width = 0
	}
	return styler{enabled: true, width: width}
}

func (s styler) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

// wrap folds text to the terminal width minus indent
func (s styler) wrap(text string, indent int) string {
	if !s.enabled || s.width <= indent+20 {
		return text
	}
	return lipgloss.NewStyle().Width(s.width - indent).Render(text)
}

func levelStyle(level string) lipgloss.Style {
	switch level {
	case "excellent":
		return successStyle
	case "good":
		return titleStyle
	default:
		return warningStyle
	}
}
