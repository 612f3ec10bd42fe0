package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/kiki/internal/action"
	_ "github.com/harunnryd/kiki/internal/action/builtin"
	"github.com/harunnryd/kiki/internal/config"
	"github.com/harunnryd/kiki/internal/gateway"
	"github.com/harunnryd/kiki/internal/model"

	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve the chat endpoint backed by the configured models",
	Long:  `Run the HTTP chat endpoint that the assistant posts transcripts to, routing each request through the model registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadedCfg, err := loadConfigForCommand(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		server, err := newGatewayServer(loadedCfg)
		if err != nil {
			return err
		}

		if _, err := server.Listen(loadedCfg.Server); err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
		slog.Info("Routing chat requests", "model", loadedCfg.Models.Default, "fallback", loadedCfg.Models.Fallback)

		signals := NewSignalHandler(cmd.Context())
		signals.Start()
		defer signals.Stop()
		<-signals.Context().Done()

		return server.Stop(context.Background())
	},
}

// newGatewayServer builds the model router and advertises the builtin action catalog in
// the system prompt.
func newGatewayServer(cfg *config.Config) (*gateway.Server, error) {
	router, err := model.NewModelRouter(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("failed to init model router: %w", err)
	}

	builtinOpts, err := action.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	registry := action.NewRegistry()
	if _, err := action.InstantiateBuiltins(registry, builtinOpts); err != nil {
		return nil, fmt.Errorf("failed to init actions: %w", err)
	}
	descriptors := registry.Descriptors()
	if err := registry.Close(); err != nil {
		slog.Warn("Failed to close actions", "error", err)
	}

	return gateway.New(gateway.Options{
		Router:       router,
		Model:        cfg.Models.Default,
		SystemPrompt: cfg.Gateway.SystemPrompt,
		FallbackText: cfg.Gateway.FallbackText,
		Path:         cfg.Gateway.Path,
		Actions:      descriptors,
	}), nil
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}
