package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	envFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "pagelens",
	Short: "Background coordinator for the pagelens shopping assistant",
	Long: `pagelens routes commands from the popup and page scanners to the AI
client, the per-tab session store and the credential vault.

Running without a subcommand starts the server.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, sessionsCmd)
}
