package runtime

import (
	"github.com/harunnryd/kiki/internal/config"

	"github.com/spf13/cobra"
)

// ResolveWorkspacePath returns the --workspace flag when set, else the configured store path.
func ResolveWorkspacePath(cmd *cobra.Command, cfg *config.Config) string {
	if cmd != nil {
		if path, _ := cmd.Flags().GetString("workspace"); path != "" {
			if expanded, err := config.ExpandPath(path); err == nil {
				return expanded
			}
			return path
		}
	}
	if cfg == nil {
		return ""
	}
	return cfg.Store.WorkspacePath
}
