// v1
// internal/actuator/kafka.go
package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/domain"
)

// Wire schemas for the command and ack streams.
const (
	CommandSchemaV1 = "vmc.commands.v1"
	AckSchemaV1     = "vmc.acks.v1"
)

// Statuses a unit may answer a command with.
const (
	StatusApplied  = "APPLIED"
	StatusRejected = "REJECTED"
)

const (
	commitTimeout   = 2 * time.Second
	ackFetchBackoff = 500 * time.Millisecond
)

// CommandEnvelope carries one cycle's action set to a unit. CommandID is the
// correlation handle the ack must echo.
type CommandEnvelope struct {
	SchemaVersion string           `json:"schemaVersion"`
	CommandID     string           `json:"commandId"`
	UnitID        string           `json:"unitId"`
	IssuedAt      time.Time        `json:"issuedAt"`
	Actions       domain.ActionSet `json:"actions"`
}

// AckEnvelope is the unit's answer. Component and Reason are filled only on
// rejection.
type AckEnvelope struct {
	SchemaVersion string    `json:"schemaVersion"`
	CommandID     string    `json:"commandId"`
	UnitID        string    `json:"unitId"`
	At            time.Time `json:"at"`
	Status        string    `json:"status"`
	Component     string    `json:"component,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// commandWriter is the subset of kafka.Writer the sink needs.
type commandWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ackFetcher is the subset of kafka.Reader the sink needs for acks.
type ackFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

// SinkConfig wires the Kafka sink to the broker fleet.
type SinkConfig struct {
	Brokers      []string
	CommandTopic string
	AckTopic     string
	GroupID      string
	AckTimeout   time.Duration
}

// KafkaSink publishes action sets on the command topic and blocks until the
// unit confirms on the ack topic. It implements Sink.
//
// Units cycle concurrently, so a single goroutine owns the ack reader and
// routes each envelope to the waiter registered under its commandId. Apply
// never touches the reader itself; it only waits on its own channel.
type KafkaSink struct {
	cfg        SinkConfig
	writer     commandWriter
	rawWriter  *kafka.Writer
	reader     *kafka.Reader
	fetcher    ackFetcher
	log        *slog.Logger
	ackTimeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan AckEnvelope

	pumpCtx    context.Context
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}
}

// NewKafkaSink builds the sink and starts its ack router. Guards, when
// enabled, put the command writes and ack fetches under breaker policy.
func NewKafkaSink(cfg SinkConfig, writeGuard, ackGuard *breaker.Guard, logger *slog.Logger) (*KafkaSink, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("actuator: no brokers configured")
	}
	if cfg.CommandTopic == "" || cfg.AckTopic == "" {
		return nil, errors.New("actuator: command and ack topics are required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("actuator: empty consumer group")
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}

	rawWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{}, // partition by key (unitId)
		RequiredAcks: kafka.RequireAll,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.AckTopic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	s := &KafkaSink{
		cfg:        cfg,
		writer:     rawWriter,
		rawWriter:  rawWriter,
		reader:     reader,
		fetcher:    reader,
		log:        logger,
		ackTimeout: cfg.AckTimeout,
	}
	if writeGuard != nil && writeGuard.Enabled() {
		s.writer = breaker.NewWriter(rawWriter, writeGuard)
	}
	if ackGuard != nil && ackGuard.Enabled() {
		s.fetcher = breaker.NewReader(reader, ackGuard)
	}
	s.startPump()
	return s, nil
}

func (s *KafkaSink) startPump() {
	s.waiters = make(map[string]chan AckEnvelope)
	s.pumpCtx, s.pumpCancel = context.WithCancel(context.Background())
	s.pumpDone = make(chan struct{})
	go s.pumpAcks()
}

// Close stops the ack router and releases the writer and the reader.
func (s *KafkaSink) Close() {
	if s.pumpCancel != nil {
		s.pumpCancel()
	}
	if s.rawWriter != nil {
		if err := s.rawWriter.Close(); err != nil {
			s.log.Warn("command writer close", slog.String("error", err.Error()))
		}
	}
	if s.reader != nil {
		if err := s.reader.Close(); err != nil {
			s.log.Warn("ack reader close", slog.String("error", err.Error()))
		}
	}
	if s.pumpDone != nil {
		<-s.pumpDone
	}
}

// Apply publishes the action set and waits for the unit's ack. A rejection
// surfaces as *RejectedError; delivery or ack-wait failures wrap
// ErrUnreachable so the driver holds the last known good state.
func (s *KafkaSink) Apply(ctx context.Context, unitID string, actions domain.ActionSet) error {
	if unitID == "" {
		return errors.New("actuator: empty unitId")
	}
	if err := actions.Validate(); err != nil {
		return err
	}
	env := CommandEnvelope{
		SchemaVersion: CommandSchemaV1,
		CommandID:     uuid.NewString(),
		UnitID:        unitID,
		IssuedAt:      time.Now().UTC(),
		Actions:       actions,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	// Register before the write so a fast ack cannot slip past the router.
	ch := s.register(env.CommandID)
	defer s.unregister(env.CommandID)

	msg := kafka.Message{Key: []byte(unitID), Value: b, Time: env.IssuedAt}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: command write for %s: %v", ErrUnreachable, unitID, err)
	}
	s.log.Info("command published",
		slog.String("unit", unitID),
		slog.String("commandId", env.CommandID),
		slog.String("season", string(actions.Season)),
		slog.String("dehumidificationRequest", string(actions.DehumidificationRequest)))
	return s.awaitAck(ctx, env, ch)
}

func (s *KafkaSink) register(commandID string) chan AckEnvelope {
	ch := make(chan AckEnvelope, 1)
	s.mu.Lock()
	s.waiters[commandID] = ch
	s.mu.Unlock()
	return ch
}

func (s *KafkaSink) unregister(commandID string) {
	s.mu.Lock()
	delete(s.waiters, commandID)
	s.mu.Unlock()
}

func (s *KafkaSink) awaitAck(ctx context.Context, cmd CommandEnvelope, ch <-chan AckEnvelope) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	defer cancel()
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: no ack for command %s within %s", ErrUnreachable, cmd.CommandID, s.ackTimeout)
		case ack := <-ch:
			if ack.UnitID != cmd.UnitID {
				s.log.Warn("ack unit mismatch skipped",
					slog.String("want", cmd.UnitID),
					slog.String("got", ack.UnitID),
					slog.String("commandId", cmd.CommandID))
				continue
			}
			switch ack.Status {
			case StatusApplied:
				s.log.Info("command applied",
					slog.String("unit", cmd.UnitID),
					slog.String("commandId", cmd.CommandID))
				return nil
			case StatusRejected:
				return &RejectedError{Component: ack.Component, Reason: ack.Reason}
			default:
				return fmt.Errorf("unknown ack status %q for command %s", ack.Status, cmd.CommandID)
			}
		}
	}
}

// pumpAcks is the single consumer of the ack topic. Every fetched envelope is
// committed and handed to the waiter registered under its commandId; acks
// nobody waits for are retries from before a restart and get dropped.
func (s *KafkaSink) pumpAcks() {
	defer close(s.pumpDone)
	for {
		msg, err := s.fetcher.FetchMessage(s.pumpCtx)
		if err != nil {
			switch {
			case s.pumpCtx.Err() != nil:
				return
			case errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return
			case errors.Is(err, context.DeadlineExceeded):
				continue
			default:
				s.log.Warn("ack fetch failed", slog.String("error", err.Error()))
				select {
				case <-s.pumpCtx.Done():
					return
				case <-time.After(ackFetchBackoff):
				}
				continue
			}
		}
		s.commit(msg)

		var ack AckEnvelope
		if err := json.Unmarshal(msg.Value, &ack); err != nil {
			s.log.Warn("bad ack json skipped", slog.String("error", err.Error()))
			continue
		}
		if ack.SchemaVersion != AckSchemaV1 {
			s.log.Warn("unsupported ack schema skipped", slog.String("schemaVersion", ack.SchemaVersion))
			continue
		}
		s.mu.Lock()
		ch, ok := s.waiters[ack.CommandID]
		s.mu.Unlock()
		if !ok {
			s.log.Debug("stale ack skipped",
				slog.String("unit", ack.UnitID),
				slog.String("commandId", ack.CommandID))
			continue
		}
		select {
		case ch <- ack:
		default:
			s.log.Warn("duplicate ack dropped", slog.String("commandId", ack.CommandID))
		}
	}
}

// commit advances the group offset past a consumed ack. Stale acks are
// committed too so restarts do not replay them.
func (s *KafkaSink) commit(msg kafka.Message) {
	if s.reader == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := s.reader.CommitMessages(cctx, msg); err != nil {
		s.log.Warn("ack commit failed", slog.String("error", err.Error()))
	}
}
