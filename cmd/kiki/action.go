package main

import (
	"encoding/json"
	"fmt"

	"github.com/harunnryd/kiki/cmd/kiki/runtime"

	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/render"

	"github.com/spf13/cobra"
)

var actionCmd = &cobra.Command{
	Use:   "action",
	Short: "Inspect and run actions",
	Long:  `List the action catalog and run an action directly, without the chat backend.`,
}

var actionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List available actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := formatFlag(cmd)
		if err != nil {
			return err
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			out, err := render.Actions(r.ActionRunner.Descriptors(), format)
			if err != nil {
				return fmt.Errorf("failed to render actions: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		})
	},
}

var actionRunCmd = &cobra.Command{
	Use:   "run <name> [params-json]",
	Short: "Run an action with JSON params",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		if len(args) == 2 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return fmt.Errorf("params must be a JSON object: %w", err)
			}
		}

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			result, err := r.ActionRunner.Run(r.Ctx, args[0], params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), chat.FormatResult(result))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(actionCmd)
	actionCmd.AddCommand(actionLsCmd)
	actionCmd.AddCommand(actionRunCmd)

	actionLsCmd.Flags().String("format", string(render.OutputFormatTable), "output format (table, json, yaml)")
}
