// v1
// internal/sim/runner.go
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/actuator"
	"vmcpilot/engine/internal/config"
	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/setpoints"
	"vmcpilot/engine/internal/telemetry"
)

const (
	physicsStep   = time.Second
	commitTimeout = 2 * time.Second
	fetchBackoff  = time.Second
)

// Runner hosts one simulated unit on the wire: it publishes telemetry at the
// sample interval, consumes engine commands and acknowledges each one, and
// consumes operator setpoint pushes. An MQTT broker, when configured, gets a
// read-only mirror of every reading.
type Runner struct {
	cfg  config.SimConfig
	unit *Unit
	log  *slog.Logger

	telWriter *kafka.Writer
	ackWriter *kafka.Writer
	cmdReader *kafka.Reader
	spReader  *kafka.Reader
	mirror    mqtt.Client
}

// NewRunner connects the unit to its brokers. The MQTT mirror connects
// eagerly so a bad broker address fails startup instead of the first sample.
func NewRunner(cfg config.SimConfig, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	if strings.TrimSpace(cfg.UnitID) == "" {
		return nil, errors.New("unit id must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	for _, topic := range []string{cfg.TelemetryTopic, cfg.CommandTopic, cfg.AckTopic, cfg.SetpointTopic} {
		if strings.TrimSpace(topic) == "" {
			return nil, errors.New("all four topics must be set")
		}
	}
	if cfg.SampleInterval <= 0 {
		return nil, errors.New("sample interval must be positive")
	}

	var mirror mqtt.Client
	if cfg.MQTTBroker != "" {
		opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker)
		opts.SetClientID("unitsim-" + cfg.UnitID)
		mirror = mqtt.NewClient(opts)
		if token := mirror.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, token.Error())
		}
		logger.Info("mqtt mirror connected",
			slog.String("broker", cfg.MQTTBroker),
			slog.String("topicPrefix", cfg.MQTTTopicPrefix))
	}

	r := &Runner{
		cfg:  cfg,
		unit: NewUnit(cfg.UnitID, cfg.InitialTempC, cfg.InitialHumidity, cfg.OutdoorBaseC, cfg.OutdoorSwingC, logger),
		log:  logger,
		telWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.TelemetryTopic,
			Balancer:     &kafka.Hash{}, // partition by key (unitId)
			RequiredAcks: kafka.RequireAll,
		},
		ackWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.AckTopic,
			Balancer:     &kafka.Hash{}, // partition by key (unitId)
			RequiredAcks: kafka.RequireAll,
		},
		cmdReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     "unitsim-" + cfg.UnitID,
			Topic:       cfg.CommandTopic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		spReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     "unitsim-" + cfg.UnitID + "-setpoints",
			Topic:       cfg.SetpointTopic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		mirror: mirror,
	}
	return r, nil
}

// Unit exposes the simulated state, mainly for tests and local tooling.
func (r *Runner) Unit() *Unit { return r.unit }

// Run drives all four loops until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("unit simulator started",
		slog.String("unit", r.cfg.UnitID),
		slog.String("brokers", strings.Join(r.cfg.KafkaBrokers, ",")),
		slog.Duration("sampleInterval", r.cfg.SampleInterval))
	defer r.log.Info("unit simulator stopped", slog.String("unit", r.cfg.UnitID))

	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); r.physicsLoop(ctx) }()
	go func() { defer wg.Done(); r.telemetryLoop(ctx) }()
	go func() { defer wg.Done(); r.commandLoop(ctx) }()
	go func() { defer wg.Done(); r.setpointLoop(ctx) }()
	wg.Wait()
	return ctx.Err()
}

// Close releases all broker connections. Safe after a cancelled Run.
func (r *Runner) Close() {
	if r.telWriter != nil {
		if err := r.telWriter.Close(); err != nil {
			r.log.Warn("telemetry writer close", slog.Any("err", err))
		}
	}
	if r.ackWriter != nil {
		if err := r.ackWriter.Close(); err != nil {
			r.log.Warn("ack writer close", slog.Any("err", err))
		}
	}
	if r.cmdReader != nil {
		if err := r.cmdReader.Close(); err != nil {
			r.log.Warn("command reader close", slog.Any("err", err))
		}
	}
	if r.spReader != nil {
		if err := r.spReader.Close(); err != nil {
			r.log.Warn("setpoint reader close", slog.Any("err", err))
		}
	}
	if r.mirror != nil {
		r.mirror.Disconnect(250)
	}
}

func (r *Runner) physicsLoop(ctx context.Context) {
	ticker := time.NewTicker(physicsStep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.unit.Step(now)
		}
	}
}

func (r *Runner) telemetryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.publishReading(ctx, now)
		}
	}
}

func (r *Runner) publishReading(ctx context.Context, now time.Time) {
	snap := r.unit.Snapshot(now)
	env := telemetry.Encode(snap)
	b, err := json.Marshal(env)
	if err != nil {
		r.log.Error("encode reading", slog.Any("err", err))
		return
	}
	msg := kafka.Message{Key: []byte(r.cfg.UnitID), Value: b, Time: env.Timestamp}
	if err := r.telWriter.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn("telemetry publish failed", slog.Any("err", err))
		return
	}
	if r.mirror != nil {
		topic := r.cfg.MQTTTopicPrefix + "/" + r.cfg.UnitID + "/reading"
		if token := r.mirror.Publish(topic, 0, false, b); token.Wait() && token.Error() != nil {
			r.log.Warn("mqtt mirror publish failed", slog.Any("err", token.Error()))
		}
	}
	r.log.Debug("reading published",
		slog.String("unit", snap.UnitID),
		slog.Float64("ambientTemperatureC", snap.AmbientTemperatureC),
		slog.Float64("ambientHumidityPct", snap.AmbientHumidityPct),
		slog.String("dewPointAlarm", string(snap.DewPointAlarm)))
}

func (r *Runner) commandLoop(ctx context.Context) {
	for {
		msg, ok := r.fetch(ctx, r.cmdReader, "command")
		if !ok {
			return
		}

		var env actuator.CommandEnvelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			r.log.Warn("command message skipped", slog.Any("err", err), slog.Int64("offset", msg.Offset))
			r.commit(ctx, r.cmdReader, msg)
			continue
		}
		switch {
		case env.SchemaVersion != actuator.CommandSchemaV1:
			r.log.Warn("command schema skipped", slog.String("schemaVersion", env.SchemaVersion))
		case env.UnitID != r.cfg.UnitID:
			// Shared topic; other units' commands are not ours to ack.
		default:
			r.handleCommand(ctx, env)
		}
		r.commit(ctx, r.cmdReader, msg)
	}
}

func (r *Runner) handleCommand(ctx context.Context, env actuator.CommandEnvelope) {
	ack := actuator.AckEnvelope{
		SchemaVersion: actuator.AckSchemaV1,
		CommandID:     env.CommandID,
		UnitID:        r.cfg.UnitID,
		At:            time.Now().UTC(),
		Status:        actuator.StatusApplied,
	}
	if err := r.unit.Apply(env.Actions); err != nil {
		ack.Status = actuator.StatusRejected
		ack.Reason = err.Error()
		var ie *domain.InvalidInputError
		if errors.As(err, &ie) {
			ack.Component = ie.Component
		}
		r.log.Warn("command rejected",
			slog.String("commandId", env.CommandID),
			slog.String("component", ack.Component),
			slog.Any("err", err))
	}

	b, err := json.Marshal(ack)
	if err != nil {
		r.log.Error("encode ack", slog.Any("err", err))
		return
	}
	msg := kafka.Message{Key: []byte(r.cfg.UnitID), Value: b, Time: ack.At}
	if err := r.ackWriter.WriteMessages(ctx, msg); err != nil && ctx.Err() == nil {
		r.log.Error("ack publish failed",
			slog.String("commandId", env.CommandID),
			slog.Any("err", err))
	}
}

func (r *Runner) setpointLoop(ctx context.Context) {
	for {
		msg, ok := r.fetch(ctx, r.spReader, "setpoint")
		if !ok {
			return
		}

		var env setpoints.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			r.log.Warn("setpoint message skipped", slog.Any("err", err), slog.Int64("offset", msg.Offset))
			r.commit(ctx, r.spReader, msg)
			continue
		}
		switch {
		case env.SchemaVersion != setpoints.SchemaVersionV1:
			r.log.Warn("setpoint schema skipped", slog.String("schemaVersion", env.SchemaVersion))
		case env.UnitID != r.cfg.UnitID:
		default:
			if err := r.unit.SetTargets(env.Targets); err != nil {
				r.log.Warn("setpoint push rejected", slog.Any("err", err))
			}
		}
		r.commit(ctx, r.spReader, msg)
	}
}

// fetch blocks on the reader and classifies the failure modes shared by both
// consumer loops. A false return means the loop should exit.
func (r *Runner) fetch(ctx context.Context, reader *kafka.Reader, stream string) (kafka.Message, bool) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err == nil {
			return msg, true
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return kafka.Message{}, false
		}
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
			return kafka.Message{}, false
		}
		r.log.Error(stream+" fetch error", slog.Any("err", err))
		select {
		case <-ctx.Done():
			return kafka.Message{}, false
		case <-time.After(fetchBackoff):
		}
	}
}

func (r *Runner) commit(ctx context.Context, reader *kafka.Reader, msg kafka.Message) {
	commitCtx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := reader.CommitMessages(commitCtx, msg); err != nil {
		if ctx.Err() == nil {
			r.log.Warn("commit failed", slog.Int64("offset", msg.Offset), slog.Any("err", err))
		}
	}
}
