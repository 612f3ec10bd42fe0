package main

import (
	"os"

	"github.com/harunnryd/kiki/cmd/kiki/runtime"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with Kiki",
	RunE: func(cmd *cobra.Command, args []string) error {
		signals := NewSignalHandler(cmd.Context())
		signals.Start()
		defer signals.Stop()
		cmd.SetContext(signals.Context())

		return executeWithRuntime(cmd, func(r *runtime.RuntimeComponents) error {
			if voice, _ := cmd.Flags().GetBool("voice"); voice {
				r.Assistant.SetVoiceEnabled(true)
			}
			return runtime.NewREPL(r, os.Stdin, os.Stdout).Start()
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("voice", false, "speak replies aloud")
}
