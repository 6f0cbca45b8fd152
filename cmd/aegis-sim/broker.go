package main

import (
	"context"
	"os"
	"strconv"

	"aegis-sim/internal/bus"
	"aegis-sim/internal/config"
)

// connectBus builds the broker the config asks for. The returned
// cleanup closes the connection; it is safe to call after the
// subscribers have drained.
func connectBus(ctx context.Context, cfg *config.Config) (bus.Bus, func(), error) {
	if cfg.Broker.Mode == "redis" {
		db := 0
		if raw := os.Getenv("REDIS_DB"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				db = n
			}
		}
		rb, err := bus.NewRedisBus(ctx, bus.RedisOptions{
			Addr:     cfg.Broker.RedisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		})
		if err != nil {
			return nil, nil, err
		}
		return rb, func() { _ = rb.Close() }, nil
	}
	inp := bus.NewInProc()
	return inp, func() { _ = inp.Close() }, nil
}
