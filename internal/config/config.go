package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	App     AppConfig     `koanf:"app"`
	Backend BackendConfig `koanf:"backend"`
	Store   StoreConfig   `koanf:"store"`
	Voice   VoiceConfig   `koanf:"voice"`
	Actions ActionsConfig `koanf:"actions"`
	Models  ModelsConfig  `koanf:"models"`
	Gateway GatewayConfig `koanf:"gateway"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

// AppConfig carries the user-facing identity of the assistant.
type AppConfig struct {
	Name           string `koanf:"name"`
	WelcomeMessage string `koanf:"welcome_message"`
	HistorySlot    string `koanf:"history_slot"`
	ExportDir      string `koanf:"export_dir"`
}

type BackendConfig struct {
	URL         string  `koanf:"url"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	Timeout     string  `koanf:"timeout"`
}

type StoreConfig struct {
	WorkspacePath string `koanf:"workspace_path"`
	LockTimeout   string `koanf:"lock_timeout"`
	LockRetry     string `koanf:"lock_retry"`
	LockMaxRetry  int    `koanf:"lock_max_retry"`
	InboxSize     int    `koanf:"inbox_size"`
}

type VoiceConfig struct {
	Enabled       bool   `koanf:"enabled"`
	SpeakCommand  string `koanf:"speak_command"`
	ListenCommand string `koanf:"listen_command"`
}

type ActionsConfig struct {
	Weather WeatherActionConfig `koanf:"weather"`
	GitHub  GitHubActionConfig  `koanf:"github"`
	Todo    TodoActionConfig    `koanf:"todo"`
}

type WeatherActionConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"`
}

type GitHubActionConfig struct {
	BaseURL string `koanf:"base_url"`
	Token   string `koanf:"token"`
	Timeout string `koanf:"timeout"`
}

type TodoActionConfig struct {
	DBPath string `koanf:"db_path"`
}

type ModelsConfig struct {
	Default             string          `koanf:"default"`
	Fallback            string          `koanf:"fallback"`
	MaxFallbackAttempts int             `koanf:"max_fallback_attempts"`
	Registry            []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name           string `koanf:"name"`
	Provider       string `koanf:"provider"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	RequestTimeout string `koanf:"request_timeout"`
}

// GatewayConfig configures the server side of the chat request boundary.
type GatewayConfig struct {
	Path         string `koanf:"path"`
	SystemPrompt string `koanf:"system_prompt"`
	FallbackText string `koanf:"fallback_text"`
}

const (
	DefaultServerPort            = 8080
	DefaultServerLogLevel        = "info"
	DefaultServerReadTimeout     = "10s"
	DefaultServerWriteTimeout    = "60s"
	DefaultServerIdleTimeout     = "60s"
	DefaultServerShutdownTimeout = "5s"
	DefaultAppName               = "Cogniview AI Interview"
	DefaultAppWelcomeMessage     = "👋 Hi! I'm Kiki, your AI assistant for Cogniview! I can help you with:\n\n• Interview preparation and tips\n• GitHub repository analysis\n• Weather updates\n• Todo management\n• Calculations\n• Time zones\n• Career advice and job search strategies\n\nWhat would you like to know about today?"
	DefaultAppHistorySlot        = "kiki_chat_history_v1"
	DefaultAppExportDir          = "."
	DefaultBackendURL            = "http://localhost:8080/api/chat/gemini"
	DefaultBackendMaxTokens      = 1000
	DefaultBackendTemperature    = 0.7
	DefaultBackendTimeout        = "0s"
	DefaultStoreLockTimeout      = "30s"
	DefaultStoreLockRetry        = "100ms"
	DefaultStoreLockMaxRetry     = 300
	DefaultStoreInboxSize        = 100
	DefaultVoiceEnabled          = false
	DefaultWeatherActionBaseURL  = "https://wttr.in"
	DefaultWeatherActionTimeout  = "10s"
	DefaultGitHubActionBaseURL   = "https://api.github.com"
	DefaultGitHubActionTimeout   = "10s"
	DefaultTodoDBFile            = "todo.db"
	DefaultModelDefault          = "gemini-2.0-flash"
	DefaultModelFallback         = "gpt-4o-mini"
	DefaultModelMaxFallback      = 2
	DefaultOpenAIBaseURL         = "https://api.openai.com/v1"
	DefaultOllamaBaseURL         = "http://localhost:11434/v1"
	DefaultOllamaAPIKey          = "ollama"
	DefaultGatewayPath           = "/api/chat/gemini"
	DefaultGatewaySystemPrompt   = "You are Kiki, a friendly assistant inside Cogniview, an AI mock-interview app. Help with interview preparation, career advice and job search strategies. Keep answers concise."
	DefaultGatewayFallbackText   = "I'm running in offline mode right now, so I can only give limited help. Try asking again in a moment."
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	home := os.Getenv("HOME")
	defaults := map[string]interface{}{
		"server.port":                  DefaultServerPort,
		"server.log_level":             DefaultServerLogLevel,
		"server.read_timeout":          DefaultServerReadTimeout,
		"server.write_timeout":         DefaultServerWriteTimeout,
		"server.idle_timeout":          DefaultServerIdleTimeout,
		"server.shutdown_timeout":      DefaultServerShutdownTimeout,
		"app.name":                     DefaultAppName,
		"app.welcome_message":          DefaultAppWelcomeMessage,
		"app.history_slot":             DefaultAppHistorySlot,
		"app.export_dir":               DefaultAppExportDir,
		"backend.url":                  DefaultBackendURL,
		"backend.max_tokens":           DefaultBackendMaxTokens,
		"backend.temperature":          DefaultBackendTemperature,
		"backend.timeout":              DefaultBackendTimeout,
		"store.workspace_path":         filepath.Join(home, ".kiki", "workspace"),
		"store.lock_timeout":           DefaultStoreLockTimeout,
		"store.lock_retry":             DefaultStoreLockRetry,
		"store.lock_max_retry":         DefaultStoreLockMaxRetry,
		"store.inbox_size":             DefaultStoreInboxSize,
		"voice.enabled":                DefaultVoiceEnabled,
		"actions.weather.base_url":     DefaultWeatherActionBaseURL,
		"actions.weather.timeout":      DefaultWeatherActionTimeout,
		"actions.github.base_url":      DefaultGitHubActionBaseURL,
		"actions.github.timeout":       DefaultGitHubActionTimeout,
		"models.default":               DefaultModelDefault,
		"models.fallback":              DefaultModelFallback,
		"models.max_fallback_attempts": DefaultModelMaxFallback,
		"models.registry": []ModelRegistry{
			{Name: DefaultModelDefault, Provider: "gemini"},
			{Name: DefaultModelFallback, Provider: "openai"},
			{Name: "claude-3-5-haiku-latest", Provider: "anthropic"},
			{Name: "local-llama", Provider: "ollama", BaseURL: DefaultOllamaBaseURL},
		},
		"gateway.path":          DefaultGatewayPath,
		"gateway.system_prompt": DefaultGatewaySystemPrompt,
		"gateway.fallback_text": DefaultGatewayFallbackText,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if userHome, err := os.UserHomeDir(); err == nil {
		globalPath := filepath.Join(userHome, ".kiki", "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	k.Load(env.Provider("KIKI_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KIKI_")), "_", ".", -1)
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i, m := range cfg.Models.Registry {
		if m.Provider == "" {
			cfg.Models.Registry[i].Provider = "openai"
		}
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	injectAPIKey(&cfg, "openai", os.Getenv("OPENAI_API_KEY"))
	injectAPIKey(&cfg, "anthropic", os.Getenv("ANTHROPIC_API_KEY"))
	injectAPIKey(&cfg, "gemini", os.Getenv("GEMINI_API_KEY"))
	if cfg.Actions.GitHub.Token == "" {
		cfg.Actions.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	}

	return &cfg, nil
}

// TodoDBPath returns the configured todo database, defaulting to a file inside the
// workspace so it shares the workspace lock.
func (c *Config) TodoDBPath() string {
	if p := strings.TrimSpace(c.Actions.Todo.DBPath); p != "" {
		return p
	}
	if c.Store.WorkspacePath == "" {
		return ""
	}
	return filepath.Join(c.Store.WorkspacePath, DefaultTodoDBFile)
}

func injectAPIKey(cfg *Config, provider, key string) {
	if key == "" {
		return
	}
	for i, m := range cfg.Models.Registry {
		if m.Provider == provider && m.APIKey == "" {
			cfg.Models.Registry[i].APIKey = key
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	for _, field := range []*string{
		&cfg.Store.WorkspacePath,
		&cfg.Actions.Todo.DBPath,
		&cfg.App.ExportDir,
	} {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		if expanded != "" {
			*field = expanded
		}
	}

	return nil
}
