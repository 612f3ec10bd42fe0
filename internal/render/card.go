package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/kiki/internal/chat"

	"charm.land/lipgloss/v2"
)

var (
	runningColor   = lipgloss.Color("33")
	completedColor = lipgloss.Color("35")
	errorColor     = lipgloss.Color("196")
	mutedColor     = lipgloss.Color("245")
	userColor      = lipgloss.Color("99")
	assistantColor = lipgloss.Color("37")
)

// StatusStyle colours a task status: running blue, completed green, error red.
func StatusStyle(status chat.TaskStatus) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	switch status {
	case chat.TaskCompleted:
		return style.Foreground(completedColor)
	case chat.TaskError:
		return style.Foreground(errorColor)
	default:
		return style.Foreground(runningColor)
	}
}

func statusIcon(status chat.TaskStatus) string {
	switch status {
	case chat.TaskCompleted:
		return "✓"
	case chat.TaskError:
		return "✗"
	default:
		return "…"
	}
}

// TaskCard renders one task with its action, status, params and outcome.
func TaskCard(task chat.Task) string {
	status := StatusStyle(task.Status)
	muted := lipgloss.NewStyle().Foreground(mutedColor)

	lines := []string{
		status.Render(statusIcon(task.Status)+" "+task.Action) + "  " + muted.Render(string(task.Status)),
	}
	if len(task.Params) > 0 {
		lines = append(lines, muted.Render("params: ")+compactJSON(task.Params))
	}
	if task.Status.Terminal() {
		lines = append(lines, taskOutcome(task))
	}

	border := runningColor
	switch task.Status {
	case chat.TaskCompleted:
		border = completedColor
	case chat.TaskError:
		border = errorColor
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}

// MessageLine renders a transcript entry prefixed by its role.
func MessageLine(m chat.Message) string {
	var label lipgloss.Style
	var prefix string
	switch m.Role {
	case chat.RoleUser:
		label, prefix = lipgloss.NewStyle().Foreground(userColor).Bold(true), "you"
	case chat.RoleError:
		label, prefix = lipgloss.NewStyle().Foreground(errorColor).Bold(true), "error"
	default:
		label, prefix = lipgloss.NewStyle().Foreground(assistantColor).Bold(true), "kiki"
	}

	stamp := lipgloss.NewStyle().Foreground(mutedColor).Render(m.Timestamp.Local().Format(time.TimeOnly))
	return fmt.Sprintf("%s %s %s", stamp, label.Render(prefix+">"), m.Text)
}

func taskOutcome(task chat.Task) string {
	switch task.Status {
	case chat.TaskError:
		return task.Error
	case chat.TaskCompleted:
		return chat.FormatResult(task.Result)
	default:
		return ""
	}
}

func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
