package render

import (
	"strings"
	"time"

	"github.com/harunnryd/kiki/internal/action"
	"github.com/harunnryd/kiki/internal/chat"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

// Tasks lists the task queue, one row per task.
func (f *TableFormatter) Tasks(tasks []chat.Task) string {
	if len(tasks) == 0 {
		return "No tasks yet"
	}

	t := f.newTable("Action", "Status", "Params", "Result")
	for _, task := range tasks {
		t.Row(
			task.Action,
			StatusStyle(task.Status).Render(string(task.Status)),
			truncateString(compactJSON(task.Params), 30),
			truncateString(oneLine(taskOutcome(task)), 40),
		)
	}
	return t.String()
}

func (f *TableFormatter) Transcript(messages []chat.Message) string {
	if len(messages) == 0 {
		return "No messages"
	}

	t := f.newTable("Time", "Role", "Text")
	for _, m := range messages {
		t.Row(
			m.Timestamp.Local().Format(time.DateTime),
			string(m.Role),
			truncateString(oneLine(m.Text), 60),
		)
	}
	return t.String()
}

func (f *TableFormatter) Actions(descriptors []action.Descriptor) string {
	if len(descriptors) == 0 {
		return "No actions registered"
	}

	t := f.newTable("Name", "Aliases", "Description")
	for _, d := range descriptors {
		t.Row(
			d.Name,
			truncateString(strings.Join(d.Aliases, ", "), 25),
			truncateString(d.Description, 60),
		)
	}
	return t.String()
}

func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
