package main

import (
	"context"
	"fmt"

	"github.com/harunnryd/kiki/cmd/kiki/runtime"

	"github.com/spf13/cobra"
)

func executeWithRuntime(cmd *cobra.Command, fn func(*runtime.RuntimeComponents) error) error {
	loadedCfg, err := loadConfigForCommand(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	components, err := runtime.NewRuntimeBuilder().
		WithContext(ctx).
		WithConfig(loadedCfg).
		WithWorkspace(runtime.ResolveWorkspacePath(cmd, loadedCfg)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer components.Stop()

	return fn(components)
}
