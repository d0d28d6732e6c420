package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Real-time chat fan-out and presence server",
	Long: `huddle runs the chat socket server and ships a small client for poking at it.

Available commands:
  serve      Start the HTTP and WebSocket server
  tail       Connect as a user, resync history and print live events
  topics     List the pub/sub topics the server uses
  version    Print the version

Use "huddle [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
