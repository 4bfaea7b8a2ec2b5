package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root arunika-worker command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "arunika-worker",
		Short:         "Arunika inference worker",
		Long:          "arunika-worker serves one pipeline stage (stt, router, llm or tts)\nover HTTP and keeps itself registered with the core.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newTokenCmd(),
	)

	return cmd
}
