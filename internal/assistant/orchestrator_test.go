package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/conversation"
	kerrors "github.com/harunnryd/kiki/internal/errors"
	"github.com/harunnryd/kiki/internal/logger"
	"github.com/harunnryd/kiki/internal/store"
	"github.com/harunnryd/kiki/internal/taskqueue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSlot = "kiki_chat_history_v1"

type fakeBackend struct {
	mu      sync.Mutex
	calls   [][]chat.Message
	respond func(messages []chat.Message) (*backend.Response, error)
}

func (b *fakeBackend) Chat(ctx context.Context, messages []chat.Message) (*backend.Response, error) {
	b.mu.Lock()
	b.calls = append(b.calls, messages)
	b.mu.Unlock()
	return b.respond(messages)
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func replyWith(text string) func([]chat.Message) (*backend.Response, error) {
	return func([]chat.Message) (*backend.Response, error) {
		return &backend.Response{Output: text}, nil
	}
}

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	params []map[string]any
	traces []string
	run    func(name string, params map[string]any) (any, error)
}

func (e *fakeExecutor) Run(ctx context.Context, name string, params map[string]any) (any, error) {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.params = append(e.params, params)
	e.traces = append(e.traces, logger.GetTraceID(ctx))
	e.mu.Unlock()
	if e.run == nil {
		return nil, nil
	}
	return e.run(name, params)
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSpeaker) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *recordingSpeaker) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type harness struct {
	orch     *Orchestrator
	backend  *fakeBackend
	executor *fakeExecutor
	speaker  *recordingSpeaker
	worker   *store.Worker
	conv     *conversation.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	w, err := store.NewWorker(t.TempDir(), store.RuntimeConfig{})
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)

	conv := conversation.New(w, conversation.Options{
		Slot:    testSlot,
		App:     "Cogniview AI Interview",
		Welcome: "Hi! I'm Kiki.",
	})
	conv.Load()

	h := &harness{
		backend:  &fakeBackend{respond: replyWith("ok")},
		executor: &fakeExecutor{},
		speaker:  &recordingSpeaker{},
		worker:   w,
		conv:     conv,
	}
	h.orch, err = New(Options{
		Conversation: conv,
		Tasks:        taskqueue.New(),
		Backend:      h.backend,
		Executor:     h.executor,
		Speaker:      h.speaker,
		Now:          func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return h
}

func tail(messages []chat.Message, n int) []chat.Message {
	return messages[len(messages)-n:]
}

func TestHandleSendPlainReply(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith("4")

	h.orch.HandleSend(context.Background(), "What's 2+2?")

	state := h.orch.State()
	require.Len(t, state.Messages, 3)
	last := tail(state.Messages, 2)
	assert.Equal(t, chat.RoleUser, last[0].Role)
	assert.Equal(t, "What's 2+2?", last[0].Text)
	assert.Equal(t, chat.RoleAssistant, last[1].Role)
	assert.Equal(t, "4", last[1].Text)
	assert.Empty(t, state.Tasks)
	assert.True(t, state.Connected)
	assert.False(t, state.Composing)
	assert.Empty(t, h.executor.calls)
}

func TestHandleSendForwardsFullTranscript(t *testing.T) {
	h := newHarness(t)

	h.orch.HandleSend(context.Background(), "first")
	h.orch.HandleSend(context.Background(), "second")

	require.Equal(t, 2, h.backend.callCount())
	sent := h.backend.calls[1]
	require.Len(t, sent, 4)
	assert.Equal(t, "Hi! I'm Kiki.", sent[0].Text)
	assert.Equal(t, "first", sent[1].Text)
	assert.Equal(t, "ok", sent[2].Text)
	assert.Equal(t, "second", sent[3].Text)
}

func TestHandleSendIgnoresBlankInput(t *testing.T) {
	h := newHarness(t)

	h.orch.HandleSend(context.Background(), "   \n\t")

	assert.Equal(t, 0, h.backend.callCount())
	assert.Len(t, h.orch.State().Messages, 1)
}

func TestHandleSendTrimsInput(t *testing.T) {
	h := newHarness(t)

	h.orch.HandleSend(context.Background(), "  hello  ")

	assert.Equal(t, "hello", h.orch.State().Messages[1].Text)
}

func TestHandleSendFallbackResponse(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) {
		return &backend.Response{IsFallback: true, Output: `{"type":"action","action":"getWeather","params":{}}`}, nil
	}

	h.orch.HandleSend(context.Background(), "weather?")

	state := h.orch.State()
	require.Len(t, state.Messages, 3)
	assert.Equal(t, chat.RoleAssistant, state.Messages[2].Role)
	assert.Equal(t, `{"type":"action","action":"getWeather","params":{}}`, state.Messages[2].Text)
	assert.False(t, state.Connected)
	assert.Empty(t, state.Tasks)
	assert.Empty(t, h.executor.calls)
}

func TestHandleSendFallbackBusyScenario(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) {
		return &backend.Response{IsFallback: true, Output: "Service busy, try later"}, nil
	}

	h.orch.HandleSend(context.Background(), "hello")

	state := h.orch.State()
	assert.Equal(t, "Service busy, try later", state.Messages[len(state.Messages)-1].Text)
	assert.False(t, state.Connected)
}

func TestHandleSendFailureCategories(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"server", fmt.Errorf("chat backend returned 503: %w", kerrors.ErrServer), ServerErrorText},
		{"network", fmt.Errorf("dial tcp: connection refused: %w", kerrors.ErrNetwork), NetworkErrorText},
		{"malformed", fmt.Errorf("decode: %w", kerrors.ErrMalformedResponse), GenericErrorText},
		{"status", fmt.Errorf("chat backend returned 404: %w", kerrors.ErrStatus), GenericErrorText},
		{"unknown", errors.New("boom"), GenericErrorText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.backend.respond = func([]chat.Message) (*backend.Response, error) { return nil, tc.err }

			h.orch.HandleSend(context.Background(), "hello")

			state := h.orch.State()
			require.Len(t, state.Messages, 3)
			last := state.Messages[2]
			assert.Equal(t, chat.RoleError, last.Role)
			assert.Equal(t, ConnectionErrorPrefix+tc.want, last.Text)
			assert.False(t, state.Connected)
			assert.False(t, state.Composing)
		})
	}
}

func TestHandleSendRecoversConnection(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) { return nil, kerrors.ErrNetwork }
	h.orch.HandleSend(context.Background(), "hello")
	require.False(t, h.orch.State().Connected)

	h.backend.respond = replyWith("back online")
	h.orch.HandleSend(context.Background(), "hello again")
	assert.True(t, h.orch.State().Connected)
}

func TestHandleSendDefaultReply(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) { return &backend.Response{}, nil }

	h.orch.HandleSend(context.Background(), "hello")

	msgs := h.orch.State().Messages
	assert.Equal(t, DefaultReplyText, msgs[len(msgs)-1].Text)
}

func TestHandleSendUsesContentField(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) {
		return &backend.Response{Content: "from content"}, nil
	}

	h.orch.HandleSend(context.Background(), "hello")

	msgs := h.orch.State().Messages
	assert.Equal(t, "from content", msgs[len(msgs)-1].Text)
}

func TestHandleSendRunsAction(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","action":"getWeather","params":{"city":"Paris"}}`)
	h.executor.run = func(name string, params map[string]any) (any, error) {
		return map[string]any{"city": "Paris", "temp_c": 18.0}, nil
	}

	h.orch.HandleSend(context.Background(), "Weather in Paris?")

	state := h.orch.State()
	require.Len(t, state.Tasks, 1)
	task := state.Tasks[0]
	assert.Equal(t, "getWeather", task.Action)
	assert.Equal(t, chat.TaskCompleted, task.Status)
	assert.Equal(t, map[string]any{"city": "Paris"}, task.Params)
	assert.Equal(t, map[string]any{"city": "Paris", "temp_c": 18.0}, task.Result)

	require.Len(t, state.Messages, 4)
	assert.Equal(t, ExecutingPrefix+"getWeather", state.Messages[2].Text)
	assert.Equal(t, CompletedPrefix+"{\n  \"city\": \"Paris\",\n  \"temp_c\": 18\n}", state.Messages[3].Text)

	require.Equal(t, []string{"getWeather"}, h.executor.calls)
	assert.Equal(t, map[string]any{"city": "Paris"}, h.executor.params[0])
	assert.NotEmpty(t, h.executor.traces[0])
}

func TestHandleSendActionStringResult(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","action":"getTime"}`)
	h.executor.run = func(string, map[string]any) (any, error) { return "12:00", nil }

	h.orch.HandleSend(context.Background(), "time?")

	msgs := h.orch.State().Messages
	assert.Equal(t, CompletedPrefix+"12:00", msgs[len(msgs)-1].Text)
}

func TestHandleSendActionFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","action":"getRepository","params":{"repo":"nobody/nothing"}}`)
	h.executor.run = func(string, map[string]any) (any, error) {
		return nil, kerrors.NotFound("repository nobody/nothing")
	}

	h.orch.HandleSend(context.Background(), "analyze repo")

	state := h.orch.State()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, chat.TaskError, state.Tasks[0].Status)
	assert.Contains(t, state.Tasks[0].Error, "repository nobody/nothing")
	assert.Equal(t, "repository nobody/nothing: not found", state.Tasks[0].Result)

	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, chat.RoleAssistant, last.Role)
	assert.Equal(t, FailedPrefix+"repository nobody/nothing: not found", last.Text)
	assert.True(t, state.Connected)
}

func TestHandleSendExecutorPanicSettlesTask(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","action":"calculate","params":{"expression":"1/0"}}`)
	h.executor.run = func(string, map[string]any) (any, error) { panic("boom") }

	h.orch.HandleSend(context.Background(), "divide by zero")

	state := h.orch.State()
	require.Len(t, state.Tasks, 1)
	assert.Equal(t, chat.TaskError, state.Tasks[0].Status)
	assert.Contains(t, state.Tasks[0].Result, "calculate panicked: boom")
	assert.False(t, state.Composing)
	assert.True(t, state.Connected)

	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, chat.RoleAssistant, last.Role)
	assert.Equal(t, FailedPrefix+"calculate panicked: boom: action failed", last.Text)
	assert.NotContains(t, last.Text, ConnectionErrorPrefix)
}

func TestHandleSendMalformedActionIsPlainText(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","params":{}}`)

	h.orch.HandleSend(context.Background(), "hello")

	state := h.orch.State()
	assert.Empty(t, state.Tasks)
	assert.Equal(t, `{"type":"action","params":{}}`, state.Messages[len(state.Messages)-1].Text)
}

func TestHandleSendVoiceNarration(t *testing.T) {
	h := newHarness(t)
	h.orch.SetVoiceEnabled(true)

	h.backend.respond = replyWith("Hello there")
	h.orch.HandleSend(context.Background(), "hi")

	h.backend.respond = replyWith(`{"type":"action","action":"calculate","params":{"expression":"2+2"}}`)
	h.executor.run = func(string, map[string]any) (any, error) { return map[string]any{"result": 4.0}, nil }
	h.orch.HandleSend(context.Background(), "2+2")

	h.executor.run = func(string, map[string]any) (any, error) { return nil, errors.New("bad expression") }
	h.orch.HandleSend(context.Background(), "2+")

	assert.Equal(t, []string{"Hello there", "Action completed: calculate", "Action failed: calculate"}, h.speaker.said())

	h.orch.SetVoiceEnabled(false)
	h.backend.respond = replyWith("quiet")
	h.orch.HandleSend(context.Background(), "hi")
	assert.Len(t, h.speaker.said(), 3)
}

func TestHandleSendSurvivesPanickingBackend(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func([]chat.Message) (*backend.Response, error) { panic("backend crashed") }

	assert.NotPanics(t, func() { h.orch.HandleSend(context.Background(), "hello") })

	state := h.orch.State()
	assert.False(t, state.Composing)
	assert.False(t, state.Connected)
	assert.Equal(t, chat.RoleError, state.Messages[len(state.Messages)-1].Role)
}

func TestComposingIndicator(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	h.backend.respond = func([]chat.Message) (*backend.Response, error) {
		close(entered)
		<-release
		return &backend.Response{Output: "done"}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.orch.HandleSend(context.Background(), "slow")
	}()

	<-entered
	assert.True(t, h.orch.State().Composing)
	close(release)
	<-done
	assert.False(t, h.orch.State().Composing)
}

func TestConcurrentSendsKeepTranscriptConsistent(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = func(messages []chat.Message) (*backend.Response, error) {
		return &backend.Response{Output: "re: " + messages[len(messages)-1].Text}, nil
	}

	const senders = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.orch.HandleSend(context.Background(), fmt.Sprintf("msg-%d", i))
		}(i)
	}
	wg.Wait()

	state := h.orch.State()
	require.Len(t, state.Messages, 1+2*senders)
	assert.False(t, state.Composing)

	ids := make(map[string]struct{}, len(state.Messages))
	for i, m := range state.Messages {
		ids[m.ID] = struct{}{}
		if i > 0 {
			assert.False(t, m.Timestamp.Before(state.Messages[i-1].Timestamp))
		}
	}
	assert.Len(t, ids, len(state.Messages))

	// Every reply comes after the user message that produced it.
	position := make(map[string]int)
	for i, m := range state.Messages {
		position[m.Text] = i
	}
	for i := 0; i < senders; i++ {
		user := fmt.Sprintf("msg-%d", i)
		if reply, ok := position["re: "+user]; ok {
			assert.Less(t, position[user], reply)
		}
	}

	persisted, err := h.worker.ReadSlot(testSlot)
	require.NoError(t, err)
	var stored []chat.Message
	require.NoError(t, json.Unmarshal(persisted, &stored))
	assert.Len(t, stored, len(state.Messages))
}

func TestClearResetsEverything(t *testing.T) {
	h := newHarness(t)
	h.backend.respond = replyWith(`{"type":"action","action":"manageTodo","params":{"operation":"list"}}`)
	h.orch.HandleSend(context.Background(), "todos")
	require.NotEmpty(t, h.orch.State().Tasks)

	h.orch.Clear()

	state := h.orch.State()
	assert.Empty(t, state.Messages)
	assert.Empty(t, state.Tasks)
	_, err := h.worker.ReadSlot(testSlot)
	assert.ErrorIs(t, err, kerrors.ErrNotFound)

	h.orch.Clear()
	assert.Empty(t, h.orch.State().Messages)

	reloaded := conversation.New(h.worker, conversation.Options{Slot: testSlot, Welcome: "Hi! I'm Kiki."})
	messages := reloaded.Load()
	require.Len(t, messages, 1)
	assert.Equal(t, "Hi! I'm Kiki.", messages[0].Text)
}

func TestExportFile(t *testing.T) {
	h := newHarness(t)
	h.orch.HandleSend(context.Background(), "hello")

	dir := filepath.Join(t.TempDir(), "exports")
	path, err := h.orch.ExportFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kiki-chat-2025-03-09.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snapshot chat.Snapshot
	require.NoError(t, json.Unmarshal(data, &snapshot))
	assert.Equal(t, "Cogniview AI Interview", snapshot.App)
	assert.Len(t, snapshot.Messages, 3)
	assert.Equal(t, time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC), snapshot.Exported)

	assert.Len(t, h.orch.State().Messages, 3)
}

func TestWatchReceivesStates(t *testing.T) {
	h := newHarness(t)

	var mu sync.Mutex
	var states []State
	h.orch.Watch(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	h.orch.HandleSend(context.Background(), "hello")

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)

	sawComposing := false
	for _, s := range states {
		if s.Composing {
			sawComposing = true
		}
	}
	assert.True(t, sawComposing)

	final := states[len(states)-1]
	assert.False(t, final.Composing)
	assert.Len(t, final.Messages, 3)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)
}
