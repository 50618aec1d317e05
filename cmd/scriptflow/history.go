package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hpungsan/scriptflow/internal/chat"
	"github.com/hpungsan/scriptflow/internal/ops"
	"github.com/hpungsan/scriptflow/internal/project"
)

// Chat history colors
var historyTheme = struct {
	User     lipgloss.Color
	Model    lipgloss.Color
	Muted    lipgloss.Color
	Bookmark lipgloss.Color
}{
	User:     lipgloss.Color("#5fafff"),
	Model:    lipgloss.Color("#af87ff"),
	Muted:    lipgloss.Color("#808080"),
	Bookmark: lipgloss.Color("#d7af5f"),
}

var roleStyle = map[project.Role]lipgloss.Style{
	project.RoleUser:  lipgloss.NewStyle().Bold(true).Foreground(historyTheme.User),
	project.RoleModel: lipgloss.NewStyle().Bold(true).Foreground(historyTheme.Model),
}

var (
	timeStyle     = lipgloss.NewStyle().Foreground(historyTheme.Muted)
	messageStyle  = lipgloss.NewStyle().PaddingLeft(2).Width(80)
	bookmarkStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(historyTheme.Bookmark).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(historyTheme.Bookmark).
			PaddingLeft(1)
)

// renderHistory formats chat view blocks for the terminal.
func renderHistory(blocks []ops.ChatViewBlock) string {
	if len(blocks) == 0 {
		return timeStyle.Render("No messages yet.") + "\n"
	}

	var b strings.Builder
	for _, block := range blocks {
		if block.Kind == chat.BlockBookmark {
			b.WriteString(bookmarkStyle.Render(block.Label))
			b.WriteString("\n\n")
			continue
		}

		m := block.Message
		header := lipgloss.JoinHorizontal(lipgloss.Top,
			roleLabel(m.Role),
			" ",
			timeStyle.Render(time.UnixMilli(m.Timestamp).Local().Format("Jan 2 15:04")),
		)
		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(messageStyle.Render(m.Text()))
		b.WriteString("\n\n")
	}
	return b.String()
}

func roleLabel(r project.Role) string {
	style, ok := roleStyle[r]
	if !ok {
		return string(r)
	}
	label := "You"
	if r == project.RoleModel {
		label = "AI"
	}
	return style.Render(label)
}
