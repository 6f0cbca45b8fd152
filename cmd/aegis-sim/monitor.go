package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"aegis-sim/internal/config"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/monitor"
)

var (
	monConfigPath string
	monSchemaPath string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Attach a live terminal view to the fleet",
	Long:  "monitor subscribes to the broker and renders the telemetry feed, open alerts, dispatch activity, and fleet status in a terminal UI. Emergencies can be raised from inside the view.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("monitor needs an interactive terminal; pipe aegis-sim orchestrate --json instead")
		}
		cfg, err := config.Load(monConfigPath, monSchemaPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logging.NewWithLevel(logLevel))

		b, closeBus, err := connectBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBus()

		m := monitor.New(cfg, b)
		defer m.Close()
		return m.Run(ctx)
	},
}

func init() {
	monitorCmd.Flags().StringVar(&monConfigPath, "config", "config.yaml", "Path to simulation configuration YAML")
	monitorCmd.Flags().StringVar(&monSchemaPath, "schema", "schema.cue", "Path to CUE schema file")
}
