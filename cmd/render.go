package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	shiperrors "thoreinstein.com/shipwright/pkg/errors"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var severityStyles = map[string]lipgloss.Style{
	"critical": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	"high":     lipgloss.NewStyle().Foreground(lipgloss.Color("202")),
	"medium":   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	"low":      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	"info":     lipgloss.NewStyle().Faint(true),
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderMarkdown renders md for a terminal and returns it unchanged for
// pipes and files.
func renderMarkdown(w io.Writer, md string) string {
	if !isTerminal(w) {
		return md
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func heading(w io.Writer, text string) {
	fmt.Fprintln(w, headingStyle.Render(text))
}

func field(w io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label+":"), value)
}

func severityLabel(s string) string {
	style, ok := severityStyles[s]
	if !ok {
		return "[" + s + "]"
	}
	return style.Render("[" + s + "]")
}

// printError writes the user-facing rendering of err, with guidance where
// the error type carries any.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, errStyle.Render(strings.TrimSpace(shiperrors.FormatUserError(err))))
}
