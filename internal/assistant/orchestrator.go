// Package assistant turns user utterances into transcript updates and, when the language
// backend asks for one, an executed action.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/conversation"
	kerrors "github.com/harunnryd/kiki/internal/errors"
	"github.com/harunnryd/kiki/internal/logger"
	"github.com/harunnryd/kiki/internal/taskqueue"
	"github.com/harunnryd/kiki/internal/voice"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

const (
	ConnectionErrorPrefix = "❌ I'm having trouble connecting right now. "
	ServerErrorText       = "The AI service is temporarily unavailable. Please try again in a moment."
	NetworkErrorText      = "Please check your internet connection and try again."
	GenericErrorText      = "Please try again."
	DefaultReplyText      = "Sorry, I couldn't generate a response."

	ExecutingPrefix   = "🔄 Executing: "
	CompletedPrefix   = "✅ Action completed!\n\n"
	FailedPrefix      = "⚠️ Action failed!\n\n"
	SpokenCompleted   = "Action completed: "
	SpokenFailed      = "Action failed: "
	exportPermissions = 0o644
)

// Executor runs a named action. It is satisfied by *action.Runner.
type Executor interface {
	Run(ctx context.Context, name string, params map[string]any) (any, error)
}

// State is an immutable view of the assistant published to observers.
type State struct {
	Messages     []chat.Message
	Tasks        []chat.Task
	Composing    bool
	Connected    bool
	VoiceEnabled bool
}

type Options struct {
	Conversation *conversation.Store
	Tasks        *taskqueue.Queue
	Backend      backend.Chatter
	Executor     Executor
	Speaker      voice.Speaker
	VoiceEnabled bool
	Now          func() time.Time
}

// Orchestrator exclusively owns the conversation store and the task queue. All methods
// are safe for concurrent use.
type Orchestrator struct {
	conv     *conversation.Store
	tasks    *taskqueue.Queue
	backend  backend.Chatter
	executor Executor
	speaker  voice.Speaker
	now      func() time.Time

	mu           sync.RWMutex
	composing    int
	connected    bool
	voiceEnabled bool
	observers    []func(State)
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Conversation == nil {
		return nil, kerrors.InvalidInput("conversation store is required")
	}
	if opts.Backend == nil {
		return nil, kerrors.InvalidInput("chat backend is required")
	}
	if opts.Executor == nil {
		return nil, kerrors.InvalidInput("action executor is required")
	}
	if opts.Tasks == nil {
		opts.Tasks = taskqueue.New()
	}
	if opts.Speaker == nil {
		opts.Speaker = voice.NullSpeaker{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Orchestrator{
		conv:         opts.Conversation,
		tasks:        opts.Tasks,
		backend:      opts.Backend,
		executor:     opts.Executor,
		speaker:      opts.Speaker,
		now:          opts.Now,
		connected:    true,
		voiceEnabled: opts.VoiceEnabled,
	}, nil
}

// HandleSend processes one user utterance. Blank input is ignored. Failures never escape:
// they are reported in the transcript as error messages.
func (o *Orchestrator) HandleSend(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ctx = logger.WithTraceID(ctx, ulid.Make().String())
	o.appendMessage(chat.RoleUser, text)

	o.beginSend()
	defer o.endSend()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Send panicked", append(logger.Attrs(ctx), "panic", r, "stack", string(debug.Stack()))...)
			o.setConnected(false)
			o.appendMessage(chat.RoleError, ConnectionErrorPrefix+GenericErrorText)
		}
	}()

	slog.Info("Sending transcript to chat backend", append(logger.Attrs(ctx), "messages", o.conv.Len())...)

	resp, err := o.backend.Chat(ctx, o.conv.Messages())
	if err != nil {
		slog.Warn("Chat backend request failed", append(logger.Attrs(ctx), "error", err, "category", kerrors.Category(err))...)
		o.setConnected(false)
		o.appendMessage(chat.RoleError, ConnectionErrorPrefix+failureText(err))
		return
	}

	if resp.IsFallback {
		slog.Warn("Chat backend answered in fallback mode", logger.Attrs(ctx)...)
		o.setConnected(false)
		o.appendMessage(chat.RoleAssistant, replyText(resp))
		return
	}

	reply := chat.ParseReply(replyText(resp))
	if reply.IsAction() {
		o.runAction(ctx, *reply.Action)
		return
	}

	o.appendMessage(chat.RoleAssistant, reply.Text)
	o.speak(reply.Text)
}

func (o *Orchestrator) runAction(ctx context.Context, req chat.ActionRequest) {
	o.appendMessage(chat.RoleAssistant, ExecutingPrefix+req.Action)

	task, err := o.tasks.Enqueue(chat.Task{
		ID:     ulid.Make().String(),
		Action: req.Action,
		Params: req.Params,
	})
	if err != nil {
		slog.Error("Failed to enqueue task", append(logger.Attrs(ctx), "action", req.Action, "error", err)...)
		o.appendMessage(chat.RoleAssistant, FailedPrefix+err.Error())
		return
	}
	o.notify()

	actx := logger.WithSessionID(ctx, task.ID)
	result, runErr := o.execute(actx, req.Action, task.Params)

	if _, err := o.tasks.Settle(task.ID, taskqueue.Outcome{Result: result, Err: runErr}); err != nil {
		slog.Error("Failed to settle task", append(logger.Attrs(actx), "action", req.Action, "error", err)...)
	}

	if runErr != nil {
		o.appendMessage(chat.RoleAssistant, FailedPrefix+runErr.Error())
		o.speak(SpokenFailed + req.Action)
		return
	}

	o.appendMessage(chat.RoleAssistant, CompletedPrefix+chat.FormatResult(result))
	o.speak(SpokenCompleted + req.Action)
}

// execute runs the action and turns an executor panic into an execution error so the
// task still settles.
func (o *Orchestrator) execute(ctx context.Context, name string, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Action executor panicked", append(logger.Attrs(ctx), "action", name, "panic", r, "stack", string(debug.Stack()))...)
			result = nil
			err = kerrors.Execution(fmt.Sprintf("%s panicked: %v", name, r))
		}
	}()
	return o.executor.Run(ctx, name, params)
}

// failureText picks the user-facing explanation for a failed backend call.
func failureText(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrServer):
		return ServerErrorText
	case errors.Is(err, kerrors.ErrNetwork):
		return NetworkErrorText
	default:
		return GenericErrorText
	}
}

func replyText(resp *backend.Response) string {
	if text := resp.Text(); text != "" {
		return text
	}
	return DefaultReplyText
}

// Clear empties the transcript, the task queue and the durable history.
func (o *Orchestrator) Clear() {
	o.conv.Clear()
	o.tasks.Clear()
	o.notify()
}

func (o *Orchestrator) Export() chat.Snapshot {
	return o.conv.Export(o.now())
}

// ExportFile writes the snapshot as indented JSON into dir and returns the file path.
func (o *Orchestrator) ExportFile(dir string) (string, error) {
	snapshot := o.Export()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", kerrors.Wrap(err, "encode conversation snapshot")
	}

	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, chat.ExportFileName(snapshot.Exported))
	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Chmod(path, exportPermissions); err != nil {
		slog.Debug("Failed to relax export permissions", "path", path, "error", err)
	}
	return path, nil
}

func (o *Orchestrator) SetVoiceEnabled(enabled bool) {
	o.mu.Lock()
	o.voiceEnabled = enabled
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) VoiceEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.voiceEnabled
}

// State returns a snapshot of the transcript, the tasks and the indicators.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	composing, connected, voiceEnabled := o.composing > 0, o.connected, o.voiceEnabled
	o.mu.RUnlock()

	return State{
		Messages:     o.conv.Messages(),
		Tasks:        o.tasks.Tasks(),
		Composing:    composing,
		Connected:    connected,
		VoiceEnabled: voiceEnabled,
	}
}

// Watch registers fn to receive a fresh State after every mutation. fn is called
// synchronously and must not call back into mutating methods.
func (o *Orchestrator) Watch(fn func(State)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.observers = append(o.observers, fn)
	o.mu.Unlock()
}

func (o *Orchestrator) appendMessage(role chat.Role, text string) {
	o.conv.Append(chat.Message{Role: role, Text: text, Timestamp: o.now()})
	o.notify()
}

func (o *Orchestrator) beginSend() {
	o.mu.Lock()
	o.composing++
	o.connected = true
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) endSend() {
	o.mu.Lock()
	o.composing--
	o.mu.Unlock()
	o.notify()
}

func (o *Orchestrator) setConnected(connected bool) {
	o.mu.Lock()
	o.connected = connected
	o.mu.Unlock()
}

func (o *Orchestrator) speak(text string) {
	if o.VoiceEnabled() {
		o.speaker.Speak(text)
	}
}

func (o *Orchestrator) notify() {
	o.mu.RLock()
	observers := make([]func(State), len(o.observers))
	copy(observers, o.observers)
	o.mu.RUnlock()

	if len(observers) == 0 {
		return
	}
	state := o.State()
	for _, fn := range observers {
		fn(state)
	}
}
