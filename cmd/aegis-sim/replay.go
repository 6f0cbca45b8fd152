package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"aegis-sim/internal/logging"
	"aegis-sim/internal/sink"
)

var (
	replayInput string
	replaySpeed float64
	replayJSON  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded telemetry log",
	Long:  "replay feeds telemetry snapshots from a JSONL log back into a history sink at a configurable speed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logging.NewWithLevel(logLevel))

		writer, cleanup, err := newReplayWriter(ctx, replayJSON)
		if err != nil {
			return err
		}
		defer cleanup()
		return sink.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to telemetry log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Force JSONL stdout output")
	_ = replayCmd.MarkFlagRequired("input")
}
