// v1
// cmd/engine/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/actuator"
	"vmcpilot/engine/internal/api"
	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/config"
	"vmcpilot/engine/internal/history"
	"vmcpilot/engine/internal/journal"
	"vmcpilot/engine/internal/logging"
	"vmcpilot/engine/internal/loop"
	"vmcpilot/engine/internal/metrics"
	"vmcpilot/engine/internal/predict"
	"vmcpilot/engine/internal/setpoints"
	"vmcpilot/engine/internal/telemetry"
)

const breakerStateInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("config", slog.Any("err", err))
		os.Exit(1)
	}

	log, closeLog := logging.Init(cfg.LogFilePath)
	defer closeLog()
	log.Info("vmc engine starting",
		slog.String("listen", cfg.ListenAddress),
		slog.String("units", strings.Join(cfg.Units, ",")),
		slog.String("brokers", strings.Join(cfg.KafkaBrokers, ",")),
		slog.Duration("cycleInterval", cfg.CycleInterval))

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)

	probe := kafkaProbe(cfg.KafkaBrokers)
	consumerGuard := breaker.NewGuard("engine-telemetry-consumer", cfg.Breaker, probe, log)
	commandGuard := breaker.NewGuard("engine-command-writer", cfg.Breaker, probe, log)
	ackGuard := breaker.NewGuard("engine-ack-consumer", cfg.Breaker, probe, log)
	setpointGuard := breaker.NewGuard("engine-setpoint-writer", cfg.Breaker, probe, log)

	hist := history.NewStore(cfg.HistoryMaxSamples, cfg.HistoryWindow, log)

	consumer, err := telemetry.NewConsumer(telemetry.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.TelemetryTopic,
		GroupID: cfg.ConsumerGroup,
	}, hist, consumerGuard, log)
	if err != nil {
		log.Error("telemetry consumer", slog.Any("err", err))
		os.Exit(1)
	}

	var forecaster predict.Predictor
	if cfg.PredictorURL != "" {
		forecaster = predict.NewRemote(cfg.PredictorURL, cfg.PredictorTimeout, log)
		log.Info("using remote forecaster", slog.String("url", cfg.PredictorURL))
	} else {
		forecaster = predict.NewTrend(cfg.ForecastMinSamples, log)
		log.Info("using trend forecaster", slog.Int("minSamples", cfg.ForecastMinSamples))
	}

	jnl, err := journal.Open(cfg.JournalPath, log)
	if err != nil {
		log.Error("journal", slog.Any("err", err))
		os.Exit(1)
	}

	sink, err := actuator.NewKafkaSink(actuator.SinkConfig{
		Brokers:      cfg.KafkaBrokers,
		CommandTopic: cfg.CommandTopic,
		AckTopic:     cfg.AckTopic,
		GroupID:      cfg.ConsumerGroup + "-acks",
		AckTimeout:   cfg.AckTimeout,
	}, commandGuard, ackGuard, log)
	if err != nil {
		log.Error("actuator sink", slog.Any("err", err))
		os.Exit(1)
	}

	defaults := make(map[string]setpoints.Targets, len(cfg.Units))
	for _, unit := range cfg.Units {
		defaults[unit] = cfg.TargetsFor(unit)
	}
	targets, err := setpoints.NewStore(cfg.Units, defaults)
	if err != nil {
		log.Error("setpoints", slog.Any("err", err))
		os.Exit(1)
	}
	publisher, err := setpoints.NewPublisher(cfg.KafkaBrokers, cfg.SetpointTopic, setpointGuard, log)
	if err != nil {
		log.Error("setpoint publisher", slog.Any("err", err))
		os.Exit(1)
	}

	driver, err := loop.NewDriver(loop.Config{
		Units:        cfg.Units,
		Interval:     cfg.CycleInterval,
		CycleTimeout: cfg.CycleTimeout,
		Horizon:      cfg.ForecastHorizon,
	}, hist, forecaster, sink, jnl, met, log)
	if err != nil {
		log.Error("control loop", slog.Any("err", err))
		os.Exit(1)
	}

	var ready atomic.Bool
	h := &api.Handlers{
		Log:       log,
		Cfg:       cfg,
		Loop:      driver,
		Hist:      hist,
		Journal:   jnl,
		Targets:   targets,
		Publisher: publisher,
		Breakers:  []*breaker.Guard{consumerGuard, commandGuard, ackGuard, setpointGuard},
		Ready:     ready.Load,
		StartedAt: time.Now(),
	}
	srv := api.NewServer(cfg.ListenAddress, h, reg, os.Stdout, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("telemetry consumer exited", slog.Any("err", err))
		}
	}()
	go func() {
		if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("control loop exited", slog.Any("err", err))
		}
	}()
	go watchBreakers(ctx, met, consumerGuard, commandGuard, ackGuard, setpointGuard)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", slog.Any("err", err))
		}
	}()

	ready.Store(true)
	log.Info("vmc engine ready")

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	cancel()
	sh, release := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer release()
	if err := srv.Stop(sh); err != nil {
		log.Error("http shutdown", slog.Any("err", err))
	}
	if err := consumer.Close(); err != nil {
		log.Error("consumer close", slog.Any("err", err))
	}
	sink.Close()
	if err := publisher.Close(); err != nil {
		log.Error("publisher close", slog.Any("err", err))
	}
	if err := jnl.Close(); err != nil {
		log.Error("journal close", slog.Any("err", err))
	}
	log.Info("vmc engine stopped")
}

// kafkaProbe dials the first bootstrap broker to test whether the cluster is
// reachable again while a breaker sits half-open.
func kafkaProbe(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// watchBreakers exports each guard's breaker state so an open Kafka path is
// visible on the metrics endpoint.
func watchBreakers(ctx context.Context, met *metrics.Metrics, guards ...*breaker.Guard) {
	ticker := time.NewTicker(breakerStateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, g := range guards {
				b := g.Breaker()
				if b == nil {
					continue
				}
				met.BreakerState.WithLabelValues(b.Name()).Set(float64(b.State()))
			}
		}
	}
}
