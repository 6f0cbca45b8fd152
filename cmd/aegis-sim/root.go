package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "aegis-sim",
	Short: "Emergency fleet digital twin toolkit",
	Long:  "aegis-sim simulates a fleet of emergency-vehicle digital twins and the coordination core that dispatches them.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sink endpoints and broker credentials come from the
		// environment; a .env next to the binary is enough for dev runs.
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(replayCmd)
}
