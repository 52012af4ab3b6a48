// v1
// internal/telemetry/consumer.go
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/history"
)

// ConsumerConfig captures the runtime tunables required to consume the
// telemetry stream. All fields must be populated by the caller.
type ConsumerConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// fetcher captures the read capability shared by the raw Kafka reader and
// the circuit breaker wrapper.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

// Consumer streams unit readings from Kafka into the history store. Partial
// envelopes are not buffered; they flag the unit so the historian reports
// partial data instead of silently serving stale state.
type Consumer struct {
	cfg     ConsumerConfig
	reader  *kafka.Reader
	fetcher fetcher
	store   *history.Store
	log     *slog.Logger
	poll    time.Duration
}

func NewConsumer(cfg ConsumerConfig, store *history.Store, guard *breaker.Guard, log *slog.Logger) (*Consumer, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	if store == nil {
		return nil, errors.New("history store must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("telemetry topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})

	var f fetcher = reader
	if guard != nil && guard.Enabled() {
		f = breaker.NewReader(reader, guard)
		log.Info("telemetry consumer breaker enabled")
	}

	return &Consumer{cfg: cfg, reader: reader, fetcher: f, store: store, log: log, poll: poll}, nil
}

// Close shuts down the underlying Kafka reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until the context is cancelled or the reader is closed,
// consuming readings and updating the history buffers.
func (c *Consumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("nil consumer")
	}

	c.log.Info("telemetry consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
		slog.String("brokers", strings.Join(c.cfg.Brokers, ",")),
		slog.Duration("pollTimeout", c.poll))
	defer c.log.Info("telemetry consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.fetcher.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("telemetry fetch error", slog.Any("err", err))
			continue
		}

		if err := c.ingest(msg.Value); err != nil {
			c.log.Warn("telemetry message skipped",
				slog.Any("err", err),
				slog.Int64("offset", msg.Offset))
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error("telemetry commit error", slog.Any("err", err))
			}
		}
		commitCancel()
	}
}

func (c *Consumer) ingest(raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode telemetry payload: %w", err)
	}
	snap, missing, err := env.Decode()
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		c.store.NotePartial(snap.UnitID, snap.TakenAt)
		c.log.Warn("partial reading",
			slog.String("unit", snap.UnitID),
			slog.Time("takenAt", snap.TakenAt),
			slog.String("missing", strings.Join(missing, ",")))
		return nil
	}
	c.store.Append(snap)
	return nil
}
