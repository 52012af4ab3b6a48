// v1
// cmd/unitsim/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vmcpilot/engine/internal/config"
	"vmcpilot/engine/internal/logging"
	"vmcpilot/engine/internal/sim"
)

func main() {
	cfg, err := config.LoadSim()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("config", slog.Any("err", err))
		os.Exit(1)
	}

	log, closeLog := logging.Init(cfg.LogFilePath)
	defer closeLog()
	log.Info("unitsim starting",
		slog.String("unit", cfg.UnitID),
		slog.Float64("initialTempC", cfg.InitialTempC),
		slog.Float64("initialHumidityPct", cfg.InitialHumidity))

	runner, err := sim.NewRunner(cfg, log)
	if err != nil {
		log.Error("runner", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("simulator exited", slog.Any("err", err))
		}
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("loops did not drain before the shutdown timeout")
	}
	runner.Close()
	log.Info("unitsim stopped")
}
