// v1
// internal/setpoints/publisher.go
package setpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/breaker"
)

// SchemaVersionV1 tags setpoint envelopes on the wire.
const SchemaVersionV1 = "vmc.setpoints.v1"

// Envelope is the message pushed to a unit when its operator targets change.
// Units apply the whole Targets block at once and echo the values back in
// telemetry, which is how the engine confirms the handoff.
type Envelope struct {
	SchemaVersion string    `json:"schemaVersion"`
	UnitID        string    `json:"unitId"`
	Timestamp     time.Time `json:"timestamp"`
	Targets       Targets   `json:"targets"`
}

// setpointWriter is the subset of kafka.Writer the publisher needs.
type setpointWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher pushes accepted targets onto the setpoint topic.
type Publisher struct {
	writer setpointWriter
	closer io.Closer
	log    *slog.Logger
}

// NewPublisher connects a publisher to the broker fleet. When the guard is
// enabled every write runs under its breaker policy.
func NewPublisher(brokers []string, topic string, guard *breaker.Guard, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(brokers) == 0 {
		return nil, errors.New("setpoints: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("setpoints: empty topic")
	}
	raw := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // partition by key (unitId)
		RequiredAcks: kafka.RequireAll,
	}
	p := &Publisher{writer: raw, closer: raw, log: logger}
	if guard != nil && guard.Enabled() {
		p.writer = breaker.NewWriter(raw, guard)
	}
	return p, nil
}

// Publish sends the unit's new targets keyed by unit id.
func (p *Publisher) Publish(ctx context.Context, unitID string, t Targets) error {
	if unitID == "" {
		return errors.New("setpoints: empty unitId")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	env := Envelope{
		SchemaVersion: SchemaVersionV1,
		UnitID:        unitID,
		Timestamp:     time.Now().UTC(),
		Targets:       t,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode setpoints: %w", err)
	}
	msg := kafka.Message{Key: []byte(unitID), Value: b, Time: env.Timestamp}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish setpoints for %s: %w", unitID, err)
	}
	p.log.Info("setpoints published",
		slog.String("unit", unitID),
		slog.Float64("temperatureC", t.TemperatureC),
		slog.Float64("humidityPct", t.HumidityPct),
		slog.Float64("dewPointC", t.DewPointC))
	return nil
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
