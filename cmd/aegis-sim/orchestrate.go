package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"aegis-sim/internal/admin"
	"aegis-sim/internal/config"
	"aegis-sim/internal/logging"
	"aegis-sim/internal/orchestrator"
)

var (
	orcConfigPath string
	orcSchemaPath string
	orcAdminAddr  string
	orcJSON       bool
	orcLogFile    string
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run the fleet coordination core",
	Long:  "orchestrate consumes the fleet's broker streams, maintains the roster and alert ledger, dispatches units to emergencies, and serves the admin API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(orcConfigPath, orcSchemaPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := logging.NewWithLevel(logLevel)
		ctx = logging.NewContext(ctx, log)

		if cfg.Broker.Mode != "redis" {
			log.Warn("in-process broker has no external publishers; expecting a co-hosted simulation")
		}
		b, closeBus, err := connectBus(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeBus()

		history, cleanup, err := newHistoryWriter(ctx, cfg, orcJSON, orcLogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := orchestrator.Options{DispatchHistory: history}
		if cfg.Broker.Mode == "redis" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Broker.RedisAddr,
				Password: os.Getenv("REDIS_PASSWORD"),
			})
			defer client.Close()
			ttl := 2 * time.Duration(cfg.Intervals.LivenessTimeoutSeconds) * time.Second
			opts.Cache = orchestrator.NewStateCache(client, ttl)
		}

		orc := orchestrator.New(cfg, b, opts)
		srv := admin.NewServer(orc)
		go func() {
			if err := srv.Start(ctx, orcAdminAddr); err != nil && err != http.ErrServerClosed {
				log.Error("admin server failed", "error", err)
			}
		}()

		return orc.Run(ctx)
	},
}

func init() {
	orchestrateCmd.Flags().StringVar(&orcConfigPath, "config", "config.yaml", "Path to simulation configuration YAML")
	orchestrateCmd.Flags().StringVar(&orcSchemaPath, "schema", "schema.cue", "Path to CUE schema file")
	orchestrateCmd.Flags().StringVar(&orcAdminAddr, "admin-addr", ":8080", "Admin API listen address")
	orchestrateCmd.Flags().BoolVar(&orcJSON, "json", false, "Force JSONL stdout output even on a terminal")
	orchestrateCmd.Flags().StringVar(&orcLogFile, "log-file", "", "Path to export history streams (JSONL)")
}
