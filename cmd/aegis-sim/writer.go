package main

import (
	"context"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"aegis-sim/internal/config"
	"aegis-sim/internal/rules"
	"aegis-sim/internal/sink"
	"aegis-sim/internal/telemetry"
)

// historyWriter is the full sink surface every backend provides.
type historyWriter interface {
	sink.TelemetryWriter
	sink.AlertWriter
	sink.DispatchEventWriter
	sink.StateWriter
}

// newHistoryWriter picks the sink stack from the environment:
// TIMESCALE_DSN wins, then GREPTIMEDB_ENDPOINT, then stdout. A log
// file adds a JSONL copy of every stream on top.
func newHistoryWriter(ctx context.Context, cfg *config.Config, jsonOut bool, logFile string) (historyWriter, func(), error) {
	base, closeBase, err := baseHistoryWriter(ctx, cfg, jsonOut)
	if err != nil {
		return nil, nil, err
	}
	if logFile == "" {
		return base, closeBase, nil
	}

	fw, err := sink.NewFileWriter(logFile, logFile+".alerts", logFile+".dispatch", logFile+".state")
	if err != nil {
		closeBase()
		return nil, nil, err
	}
	mw := sink.NewMultiWriter(
		[]sink.TelemetryWriter{base, fw},
		[]sink.AlertWriter{base, fw},
		[]sink.DispatchEventWriter{base, fw},
		[]sink.StateWriter{base, fw},
	)
	cleanup := func() {
		_ = fw.Close()
		closeBase()
	}
	return mw, cleanup, nil
}

// baseHistoryWriter chooses the underlying sink. Without a database
// endpoint it falls back to stdout: colorized on a terminal, JSONL
// when piped. A nil cfg (replay) always gets JSONL.
func baseHistoryWriter(ctx context.Context, cfg *config.Config, jsonOut bool) (historyWriter, func(), error) {
	noop := func() {}

	if dsn := os.Getenv("TIMESCALE_DSN"); dsn != "" {
		w, err := sink.NewTimescaleWriter(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	}

	if endpoint := os.Getenv("GREPTIMEDB_ENDPOINT"); endpoint != "" {
		w, err := sink.NewGreptimeDBWriter(endpoint,
			envOr("GREPTIMEDB_DATABASE", "public"),
			telemetry.TelemetryTableName,
			rules.AlertTableName,
			envOr("DISPATCH_EVENT_TABLE", "dispatch_events"),
			envOr("SIMULATION_STATE_TABLE", "simulation_state"))
		if err != nil {
			return nil, nil, err
		}
		return w, noop, nil
	}

	if jsonOut || cfg == nil || !term.IsTerminal(int(os.Stdout.Fd())) {
		return sink.NewJSONWriter(), noop, nil
	}
	return sink.NewColorWriter(fleetLabel(cfg), totalVehicles(cfg),
		time.Duration(cfg.Intervals.TickSeconds)*time.Second), noop, nil
}

// newReplayWriter creates a telemetry sink for replaying logs.
func newReplayWriter(ctx context.Context, jsonOut bool) (sink.TelemetryWriter, func(), error) {
	return baseHistoryWriter(ctx, nil, jsonOut)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fleetLabel(cfg *config.Config) string {
	ids := make([]string, len(cfg.Fleets))
	for i, f := range cfg.Fleets {
		ids[i] = f.ID
	}
	return strings.Join(ids, ",")
}

func totalVehicles(cfg *config.Config) int {
	n := 0
	for _, f := range cfg.Fleets {
		for _, u := range f.Units {
			n += u.Count
		}
	}
	return n
}
