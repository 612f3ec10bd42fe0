package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/kiki/internal/action"
	_ "github.com/harunnryd/kiki/internal/action/builtin"
	"github.com/harunnryd/kiki/internal/assistant"
	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/config"
	"github.com/harunnryd/kiki/internal/conversation"
	"github.com/harunnryd/kiki/internal/store"
	"github.com/harunnryd/kiki/internal/taskqueue"
	"github.com/harunnryd/kiki/internal/voice"
)

type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config *config.Config

	StoreWorker  *store.Worker
	Conversation *conversation.Store
	Tasks        *taskqueue.Queue

	ActionRegistry *action.Registry
	ActionRunner   *action.Runner

	Backend   backend.Chatter
	Speaker   voice.Speaker
	Listener  voice.Listener
	Assistant *assistant.Orchestrator
}

// NewRuntimeComponents wires the store, transcript, action catalog, chat backend and voice
// channels into an assistant. A nil chatter means the HTTP client from cfg.Backend.
func NewRuntimeComponents(ctx context.Context, cfg *config.Config, chatter backend.Chatter) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &RuntimeComponents{
		Ctx:    ctx,
		Cancel: cancel,
		Config: cfg,
	}

	storeCfg, err := store.RuntimeConfigFrom(cfg.Store)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init store config: %w", err)
	}
	worker, err := store.NewWorker(cfg.Store.WorkspacePath, storeCfg)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init store worker: %w", err)
	}
	worker.Start()
	components.StoreWorker = worker

	components.Conversation = conversation.New(worker, conversation.Options{
		Slot:    orDefault(cfg.App.HistorySlot, config.DefaultAppHistorySlot),
		App:     orDefault(cfg.App.Name, config.DefaultAppName),
		Welcome: orDefault(cfg.App.WelcomeMessage, config.DefaultAppWelcomeMessage),
	})
	components.Conversation.Load()
	components.Tasks = taskqueue.New()

	builtinOpts, err := action.OptionsFromConfig(cfg)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init actions: %w", err)
	}
	components.ActionRegistry = action.NewRegistry()
	if _, err := action.InstantiateBuiltins(components.ActionRegistry, builtinOpts); err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init actions: %w", err)
	}
	components.ActionRunner = action.NewRunner(components.ActionRegistry)

	if chatter == nil {
		client, err := backend.NewClientFromConfig(cfg.Backend)
		if err != nil {
			components.cleanup()
			return nil, fmt.Errorf("init chat backend: %w", err)
		}
		chatter = client
	}
	components.Backend = chatter

	speaker, listener, err := voice.New(cfg.Voice)
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init voice: %w", err)
	}
	components.Speaker = speaker
	components.Listener = listener

	orch, err := assistant.New(assistant.Options{
		Conversation: components.Conversation,
		Tasks:        components.Tasks,
		Backend:      components.Backend,
		Executor:     components.ActionRunner,
		Speaker:      components.Speaker,
		VoiceEnabled: cfg.Voice.Enabled,
	})
	if err != nil {
		components.cleanup()
		return nil, fmt.Errorf("init assistant: %w", err)
	}
	components.Assistant = orch

	slog.Debug("Runtime components ready",
		"workspace", worker.Path(),
		"actions", len(components.ActionRegistry.Descriptors()),
		"voice", cfg.Voice.Enabled)

	return components, nil
}

func (r *RuntimeComponents) Stop() {
	slog.Debug("Stopping runtime components...")

	if r.Listener != nil {
		r.Listener.StopListening()
	}

	if r.ActionRegistry != nil {
		if err := r.ActionRegistry.Close(); err != nil {
			slog.Warn("Failed to close actions", "error", err)
		}
	}

	if r.StoreWorker != nil {
		r.StoreWorker.Stop()
	}

	if r.Cancel != nil {
		r.Cancel()
	}
}

func (r *RuntimeComponents) cleanup() {
	r.Stop()
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
