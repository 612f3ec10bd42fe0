// Package chat defines the conversation data model shared by the assistant runtime.
package chat

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError:
		return true
	default:
		return false
	}
}

// Message is one entry of the transcript. It is never modified after it has been appended.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskError     TaskStatus = "error"
)

func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskError
}

// Task tracks one action dispatch.
type Task struct {
	ID     string         `json:"id"`
	Action string         `json:"action"`
	Params map[string]any `json:"params"`
	Status TaskStatus     `json:"status"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Clone returns a copy whose params map can be read without holding the owner's lock.
func (t Task) Clone() Task {
	params := make(map[string]any, len(t.Params))
	for k, v := range t.Params {
		params[k] = v
	}
	t.Params = params
	return t
}

// Snapshot is the export artifact of a conversation.
type Snapshot struct {
	Messages []Message `json:"messages" yaml:"messages"`
	Exported time.Time `json:"exported" yaml:"exported"`
	App      string    `json:"app" yaml:"app"`
}

// ExportFileName returns the conventional file name for a snapshot taken at t.
func ExportFileName(t time.Time) string {
	return "kiki-chat-" + t.UTC().Format(time.DateOnly) + ".json"
}

// FormatResult renders an action result for display. Strings are used verbatim,
// anything else is pretty printed as JSON.
func FormatResult(result any) string {
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "<unprintable result>"
	}
	return string(data)
}
