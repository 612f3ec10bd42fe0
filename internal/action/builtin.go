package action

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/config"
)

// BuiltinOptions carries runtime dependencies needed by builtin action factories.
type BuiltinOptions struct {
	WeatherBaseURL string
	WeatherTimeout time.Duration
	GitHubBaseURL  string
	GitHubToken    string
	GitHubTimeout  time.Duration
	TodoDBPath     string
	HTTPClient     *http.Client
	Now            func() time.Time
}

const DefaultBuiltinHTTPTimeout = 10 * time.Second

// OptionsFromConfig resolves builtin options from the actions config section.
func OptionsFromConfig(cfg *config.Config) (BuiltinOptions, error) {
	if cfg == nil {
		return BuiltinOptions{}, fmt.Errorf("config cannot be nil")
	}

	weatherTimeout, err := config.DurationOrDefault(cfg.Actions.Weather.Timeout, config.DefaultWeatherActionTimeout)
	if err != nil {
		return BuiltinOptions{}, fmt.Errorf("parse actions.weather.timeout: %w", err)
	}
	githubTimeout, err := config.DurationOrDefault(cfg.Actions.GitHub.Timeout, config.DefaultGitHubActionTimeout)
	if err != nil {
		return BuiltinOptions{}, fmt.Errorf("parse actions.github.timeout: %w", err)
	}

	return BuiltinOptions{
		WeatherBaseURL: orDefault(cfg.Actions.Weather.BaseURL, config.DefaultWeatherActionBaseURL),
		WeatherTimeout: weatherTimeout,
		GitHubBaseURL:  orDefault(cfg.Actions.GitHub.BaseURL, config.DefaultGitHubActionBaseURL),
		GitHubToken:    strings.TrimSpace(cfg.Actions.GitHub.Token),
		GitHubTimeout:  githubTimeout,
		TodoDBPath:     cfg.TodoDBPath(),
	}, nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

// Client returns the injected HTTP client or a new one with the given timeout.
func (o BuiltinOptions) Client(timeout time.Duration) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	if timeout <= 0 {
		timeout = DefaultBuiltinHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o BuiltinOptions) Clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

type BuiltinFactory func(options BuiltinOptions) (Action, error)

var builtinCatalog = struct {
	mu        sync.RWMutex
	factories map[string]BuiltinFactory
}{
	factories: map[string]BuiltinFactory{},
}

// RegisterBuiltin registers a builtin action factory. Intended to be called in init().
func RegisterBuiltin(name string, factory BuiltinFactory) {
	normalized := NormalizeName(name)
	if normalized == "" {
		panic("action: builtin name cannot be empty")
	}
	if factory == nil {
		panic(fmt.Sprintf("action: builtin factory cannot be nil (%s)", name))
	}

	builtinCatalog.mu.Lock()
	defer builtinCatalog.mu.Unlock()

	if _, exists := builtinCatalog.factories[normalized]; exists {
		panic(fmt.Sprintf("action: builtin already registered: %s", name))
	}
	builtinCatalog.factories[normalized] = factory
}

// BuiltinNames returns all registered builtin keys in deterministic order.
func BuiltinNames() []string {
	builtinCatalog.mu.RLock()
	defer builtinCatalog.mu.RUnlock()

	names := make([]string, 0, len(builtinCatalog.factories))
	for name := range builtinCatalog.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstantiateBuiltins constructs all builtin actions and registers them.
func InstantiateBuiltins(registry *Registry, options BuiltinOptions) ([]Action, error) {
	builtinCatalog.mu.RLock()
	factories := make(map[string]BuiltinFactory, len(builtinCatalog.factories))
	for name, factory := range builtinCatalog.factories {
		factories[name] = factory
	}
	builtinCatalog.mu.RUnlock()

	actions := make([]Action, 0, len(factories))
	for _, name := range BuiltinNames() {
		factory, ok := factories[name]
		if !ok {
			continue
		}

		a, err := factory(options)
		if err != nil {
			return nil, fmt.Errorf("instantiate builtin %q: %w", name, err)
		}
		if registry != nil {
			if err := registry.Register(a); err != nil {
				return nil, err
			}
		}
		actions = append(actions, a)
	}

	return actions, nil
}
