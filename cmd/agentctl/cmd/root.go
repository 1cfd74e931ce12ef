// Package cmd implements agentctl's cobra CLI surface: the serve subcommand
// that runs the ACP agent loop, and version. Grounded on term-llm's cobra
// layout (persistent flags wired in init, subcommands self-registering via
// AddCommand).
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file")
}

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Bridge an ACP editor client to a local Claude CLI subprocess",
	Long: `agentctl speaks the Agent Client Protocol on stdin/stdout and drives a
Claude CLI child process per session, translating between the two wire
formats.

  agentctl serve                 # run the agent loop (stdio); also the default
  agentctl version                # print build info`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
