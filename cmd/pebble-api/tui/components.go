package tui

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marshallshelly/pebble-api/pkg/logging"
)

// ConfirmationDialog represents a yes/no confirmation dialog
type ConfirmationDialog struct {
	Title       string
	Message     string
	YesSelected bool
	OnConfirm   func() tea.Cmd
	OnCancel    func() tea.Cmd
}

// NewConfirmationDialog creates a new confirmation dialog
func NewConfirmationDialog(title, message string) ConfirmationDialog {
	return ConfirmationDialog{Title: title, Message: message}
}

// Update handles confirmation dialog updates
func (d *ConfirmationDialog) Update(msg tea.Msg) tea.Cmd {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return nil
	}
	switch key.String() {
	case "left", "h", "y":
		d.YesSelected = true
		if key.String() == "y" && d.OnConfirm != nil {
			return d.OnConfirm()
		}
	case "right", "l":
		d.YesSelected = false
	case "enter":
		if d.YesSelected && d.OnConfirm != nil {
			return d.OnConfirm()
		}
		if !d.YesSelected && d.OnCancel != nil {
			return d.OnCancel()
		}
	}
	return nil
}

// View renders the confirmation dialog
func (d ConfirmationDialog) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(d.Title))
	b.WriteString("\n")
	b.WriteString(d.Message)
	b.WriteString("\n\n")

	yesButton := inactiveButtonStyle.Render("Yes")
	noButton := inactiveButtonStyle.Render("No")
	if d.YesSelected {
		yesButton = activeButtonStyle.Render("Yes")
	} else {
		noButton = activeButtonStyle.Render("No")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, yesButton, "  ", noButton))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(FormatKey("←/→", "navigate") + " • " + FormatKey("enter", "confirm") + " • " + FormatKey("esc", "cancel")))

	return activeBoxStyle.Render(b.String())
}

// LogView displays the most recent server log entries
type LogView struct {
	Entries []logging.Entry
	MaxLen  int
}

// NewLogView creates a new log view
func NewLogView(maxLen int) LogView {
	return LogView{MaxLen: maxLen}
}

// SetEntries replaces the shown entries, keeping the newest MaxLen.
func (l *LogView) SetEntries(entries []logging.Entry) {
	if len(entries) > l.MaxLen {
		entries = entries[len(entries)-l.MaxLen:]
	}
	l.Entries = entries
}

// View renders the log view
func (l LogView) View(width int) string {
	if len(l.Entries) == 0 {
		return boxStyle.Width(width).Render(mutedStyle.Render("No logs"))
	}

	var b strings.Builder
	for i, e := range l.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(mutedStyle.Render(e.Time.Format("15:04:05")))
		b.WriteString(" ")
		b.WriteString(FormatLevel(e.Level))
		b.WriteString(" ")
		b.WriteString(e.Message)
		if len(e.Fields) > 0 {
			b.WriteString(" ")
			b.WriteString(mutedStyle.Render(formatFields(e.Fields)))
		}
	}
	return boxStyle.Width(width).Render(b.String())
}

func formatFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
