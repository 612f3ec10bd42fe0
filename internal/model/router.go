package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/config"
	kerrors "github.com/harunnryd/kiki/internal/errors"
	"github.com/harunnryd/kiki/internal/logger"
	"github.com/harunnryd/kiki/internal/model/contract"
	anthropicProvider "github.com/harunnryd/kiki/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/kiki/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/kiki/internal/model/providers/openai"
)

// DefaultModelRouter implements ModelRouter interface
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	errMapper kerrors.ErrorMapper
	mu        sync.RWMutex
}

// NewModelRouter creates a new model router. Registry entries that cannot be built, for
// example because no API key is configured, are skipped with a warning.
func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
		errMapper: kerrors.NewDefaultErrorMapper(),
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// NewModelRouterWithProviders builds a router over already constructed providers.
func NewModelRouterWithProviders(cfg config.ModelsConfig, providers map[string]Provider) *DefaultModelRouter {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
		errMapper: kerrors.NewDefaultErrorMapper(),
	}
	for name, p := range providers {
		router.providers[name] = p
	}
	return router
}

// Route routes a completion request to the appropriate provider
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	traceID := logger.GetTraceID(ctx)

	slog.Info("Routing completion request", "model", model, "trace_id", traceID)

	provider, resolved, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.executeWithFallback(ctx, resolved, provider, req, traceID)
}

// ListModels returns all registered model names, sorted
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return kerrors.Transient("no model providers available")
	}

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return kerrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

// initProviders initializes all providers from configuration
func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := r.createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Info("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	return nil
}

// resolveProvider resolves a provider by model name with fallback
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (Provider, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", kerrors.Wrap(ctx.Err(), "provider resolution cancelled")
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, exists := r.providers[model]; exists {
		return provider, model, nil
	}

	slog.Warn("Model not found", "model", model)

	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallbackProvider, ok := r.providers[r.cfg.Fallback]; ok {
			slog.Info("Using fallback model", "model", model, "fallback", r.cfg.Fallback)
			return fallbackProvider, r.cfg.Fallback, nil
		}
	}

	return nil, "", kerrors.NotFound(fmt.Sprintf("model %s not found", model))
}

// executeWithFallback executes a request, switching to the fallback model on failure
func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, traceID string) (*contract.CompletionResponse, error) {
	maxAttempts := r.cfg.MaxFallbackAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultModelMaxFallback
	}

	currentModel := model
	currentProvider := provider

	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, kerrors.Wrap(ctx.Err(), "request execution cancelled")
		default:
		}

		start := time.Now()
		attemptReq := req
		attemptReq.Model = currentModel

		resp, err := currentProvider.Generate(ctx, attemptReq)
		if err == nil {
			slog.Info("Request completed", "model", currentModel, "attempt", attempt+1, "duration", time.Since(start), "trace_id", traceID)
			return resp, nil
		}

		mapped := r.errMapper.MapError(err)
		slog.Error("Provider request failed",
			"model", currentModel,
			"attempt", attempt+1,
			"error", err,
			"category", r.errMapper.Category(mapped),
			"retryable", r.errMapper.IsRetryable(mapped),
			"trace_id", traceID)

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback {
			return nil, kerrors.WrapWithCategory(err, "provider request failed", kerrors.ErrServer)
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			return nil, kerrors.WrapWithCategory(err, fmt.Sprintf("provider request failed, fallback model %s not available", r.cfg.Fallback), kerrors.ErrServer)
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback, "trace_id", traceID)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, fmt.Errorf("fallback exhausted: %w", kerrors.ErrServer)
}

// createProvider creates a provider instance based on registry entry
func (r *DefaultModelRouter) createProvider(entry config.ModelRegistry) (Provider, error) {
	requestTimeout, err := config.DurationOrDefault(entry.RequestTimeout, "0s")
	if err != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("invalid request_timeout for model %s: %v", entry.Name, err))
	}

	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenAIBaseURL
		}

		if entry.APIKey == "" {
			return nil, kerrors.InvalidInput("API key required for OpenAI provider")
		}

		return &ProviderAdapter{
			provider:       openaiProvider.New(entry.APIKey, baseURL, entry.Name),
			name:           entry.Name,
			providerType:   "openai",
			requestTimeout: requestTimeout,
		}, nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return &ProviderAdapter{
			provider:       openaiProvider.New(apiKey, baseURL, entry.Name),
			name:           entry.Name,
			providerType:   "ollama",
			requestTimeout: requestTimeout,
		}, nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, kerrors.InvalidInput("API key required for Anthropic provider")
		}

		return &ProviderAdapter{
			provider:       anthropicProvider.New(entry.APIKey),
			name:           entry.Name,
			providerType:   "anthropic",
			requestTimeout: requestTimeout,
		}, nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, kerrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey)
		if err != nil {
			return nil, kerrors.WrapWithCategory(err, "failed to create Gemini provider", kerrors.ErrInternal)
		}

		return &ProviderAdapter{
			provider:       provider,
			name:           entry.Name,
			providerType:   "gemini",
			requestTimeout: requestTimeout,
		}, nil

	default:
		return nil, kerrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
