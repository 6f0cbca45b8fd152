package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aegis-sim/internal/admin"
	"aegis-sim/internal/config"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/orchestrator"
	"aegis-sim/internal/scenario"
	"aegis-sim/internal/sim"
)

var (
	simConfigPath string
	simSchemaPath string
	simScenario   string
	simChaos      bool
	simVerbose    bool
	simJSON       bool
	simLogFile    string
	simAdminAddr  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the vehicle fleet simulation",
	Long:  "simulate starts one agent per configured vehicle, emitting telemetry, alerts, and emergencies to the broker. With the in-process broker the coordination core runs alongside so dispatches happen in the same run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(simConfigPath, simSchemaPath)
		if err != nil {
			return err
		}
		if simScenario != "" {
			cfg.Scenario = simScenario
		}
		if simChaos {
			cfg.Chaos = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := logging.NewWithLevel(logLevel)
		ctx = logging.NewContext(ctx, log)

		b, closeBus, err := connectBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBus()

		script, err := resolveScenario(cfg.Scenario)
		if err != nil {
			return err
		}

		history, cleanup, err := newHistoryWriter(ctx, cfg, simJSON, simLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		h, err := sim.New(cfg, b, sim.Options{
			Script:           script,
			Chaos:            cfg.Chaos,
			Verbose:          simVerbose,
			TelemetryHistory: history,
			AlertHistory:     history,
			StateHistory:     history,
		})
		if err != nil {
			return err
		}

		// A simulation against the in-process broker would publish into
		// the void; host the coordination core in the same process.
		if cfg.Broker.Mode != "redis" {
			orc := orchestrator.New(cfg, b, orchestrator.Options{DispatchHistory: history})
			go func() {
				if err := orc.Run(ctx); err != nil {
					log.Error("orchestrator stopped", "error", err)
				}
			}()
			srv := admin.NewServer(orc)
			go func() {
				if err := srv.Start(ctx, simAdminAddr); err != nil && err != http.ErrServerClosed {
					log.Error("admin server failed", "error", err)
				}
			}()
		}

		h.Run(ctx)
		return nil
	},
}

// resolveScenario accepts a built-in scenario name or a YAML path.
func resolveScenario(name string) (*scenario.Scenario, error) {
	if name == "" {
		return nil, nil
	}
	if s, ok := scenario.BuiltIn()[name]; ok {
		return &s, nil
	}
	s, err := scenario.Load(name)
	if err != nil {
		return nil, fmt.Errorf("scenario %q is neither built in nor loadable: %w", name, err)
	}
	return s, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simConfigPath, "config", "config.yaml", "Path to simulation configuration YAML")
	simulateCmd.Flags().StringVar(&simSchemaPath, "schema", "schema.cue", "Path to CUE schema file")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Scenario name (rush-hour, station-blackout, mass-casualty) or YAML path")
	simulateCmd.Flags().BoolVar(&simChaos, "chaos", false, "Enable random failure injection")
	simulateCmd.Flags().BoolVar(&simVerbose, "verbose", false, "Log every local rule decision")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Force JSONL stdout output even on a terminal")
	simulateCmd.Flags().StringVar(&simLogFile, "log-file", "", "Path to export history streams (JSONL)")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin-addr", ":8080", "Admin API address for in-process coordination")
}
