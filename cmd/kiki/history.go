package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kiki/cmd/kiki/runtime"

	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/render"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the saved conversation",
	Long:  `Show, export and clear the conversation persisted in the workspace.`,
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			out, err := render.Snapshot(r.Assistant.Export(), format)
			if err != nil {
				return fmt.Errorf("failed to render conversation: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the saved conversation to a file",
	Long:  `Write the conversation to kiki-chat-<date>.json (or .yaml) in the target directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}
		if format == render.OutputFormatTable {
			return fmt.Errorf("export supports json and yaml only")
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = r.Config.App.ExportDir
			}

			var path string
			if format == render.OutputFormatJSON {
				path, err = r.Assistant.ExportFile(dir)
			} else {
				path, err = exportYAML(r.Assistant.Export(), dir)
			}
			if err != nil {
				return fmt.Errorf("failed to export conversation: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Conversation exported to %s\n", path)
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the conversation to the welcome message",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			r.Assistant.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		})
	},
}

func exportYAML(snapshot chat.Snapshot, dir string) (string, error) {
	out, err := render.Snapshot(snapshot, render.OutputFormatYAML)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	name := strings.TrimSuffix(chat.ExportFileName(snapshot.Exported), ".json") + ".yaml"
	path := filepath.Join(dir, name)
	if err := atomic.WriteFile(path, strings.NewReader(out+"\n")); err != nil {
		return "", err
	}
	return path, nil
}

func formatFlag(cmd *cobra.Command) (render.OutputFormat, error) {
	raw, _ := cmd.Flags().GetString("format")
	return render.ParseOutputFormat(raw)
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyShowCmd.Flags().String("format", string(render.OutputFormatTable), "output format (table, json, yaml)")
	historyExportCmd.Flags().String("format", string(render.OutputFormatJSON), "file format (json, yaml)")
	historyExportCmd.Flags().String("dir", "", "target directory (default is app.export_dir)")
}
