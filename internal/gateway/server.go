// Package gateway serves the chat request boundary: it accepts a transcript, asks a
// language model for the next reply and answers in the shape the assistant expects.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/action"
	"github.com/harunnryd/kiki/internal/backend"
	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/concurrency"
	"github.com/harunnryd/kiki/internal/config"
	"github.com/harunnryd/kiki/internal/logger"
	"github.com/harunnryd/kiki/internal/model"
	"github.com/harunnryd/kiki/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

const maxRequestBytes = 1 << 20

type Options struct {
	Router       model.ModelRouter
	Model        string
	SystemPrompt string
	FallbackText string
	Path         string
	Actions      []action.Descriptor
}

type Server struct {
	router       model.ModelRouter
	model        string
	systemPrompt string
	fallbackText string
	path         string

	mu          sync.Mutex
	server      *http.Server
	shutdownTTL time.Duration
	started     bool
}

func New(opts Options) *Server {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = config.DefaultGatewayPath
	}
	fallbackText := strings.TrimSpace(opts.FallbackText)
	if fallbackText == "" {
		fallbackText = config.DefaultGatewayFallbackText
	}

	return &Server{
		router:       opts.Router,
		model:        opts.Model,
		systemPrompt: BuildSystemPrompt(opts.SystemPrompt, opts.Actions),
		fallbackText: fallbackText,
		path:         path,
	}
}

// Handler returns the HTTP routes of the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Listen binds the configured address and serves in the background.
func (s *Server) Listen(cfg config.ServerConfig) (net.Addr, error) {
	readTimeout, err := config.DurationOrDefault(cfg.ReadTimeout, config.DefaultServerReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server read timeout: %w", err)
	}
	writeTimeout, err := config.DurationOrDefault(cfg.WriteTimeout, config.DefaultServerWriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server write timeout: %w", err)
	}
	idleTimeout, err := config.DurationOrDefault(cfg.IdleTimeout, config.DefaultServerIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server idle timeout: %w", err)
	}
	shutdownTimeout, err := config.DurationOrDefault(cfg.ShutdownTimeout, config.DefaultServerShutdownTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse server shutdown timeout: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, fmt.Errorf("gateway already started")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.shutdownTTL = shutdownTimeout
	s.started = true

	server := s.server
	concurrency.Go("gateway.serve", func() {
		slog.Info("Gateway listening", "addr", listener.Addr().String(), "path", s.path)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Gateway server failed", "error", err)
		}
	}, nil)

	return listener.Addr(), nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTTL)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Gateway shutdown error", "error", err)
		return err
	}

	s.started = false
	slog.Info("Gateway stopped")
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req backend.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	messages := toProviderMessages(req.Messages)
	if len(messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must contain at least one user or assistant message")
		return
	}

	ctx := logger.WithTraceID(r.Context(), ulid.Make().String())
	completion := contract.CompletionRequest{
		Model:     s.model,
		System:    s.systemPrompt,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	temperature := req.Temperature
	completion.Temperature = &temperature

	resp, err := s.router.Route(ctx, s.model, completion)
	if err != nil {
		slog.Warn("All model providers failed, answering in fallback mode", append(logger.Attrs(ctx), "error", err)...)
		writeJSON(w, http.StatusOK, backend.Response{IsFallback: true, Output: s.fallbackText})
		return
	}

	writeJSON(w, http.StatusOK, backend.Response{Output: strings.TrimSpace(resp.Content)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	status := "ok"
	if err := s.router.Health(r.Context()); err != nil {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": status,
		"model":  s.model,
		"models": s.router.ListModels(),
	})
}

// toProviderMessages keeps the user and assistant turns of a transcript, starting at the
// first user turn since providers reject conversations opened by the model. Error messages
// are local diagnostics and never reach the model.
func toProviderMessages(messages []chat.Message) []contract.Message {
	out := make([]contract.Message, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		switch m.Role {
		case chat.RoleUser:
			out = append(out, contract.Message{Role: contract.RoleUser, Content: m.Text})
		case chat.RoleAssistant:
			if len(out) == 0 {
				continue
			}
			out = append(out, contract.Message{Role: contract.RoleAssistant, Content: m.Text})
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
