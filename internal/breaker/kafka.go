// v1
// internal/breaker/kafka.go
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Settings carries the guard tunables. The zero value disables the guard,
// so an unconfigured deployment runs Kafka calls straight through.
type Settings struct {
	Enabled          bool
	FailureThreshold int
	SuccessesToClose int
	OpenInterval     time.Duration
	AttemptTimeout   time.Duration
	Backoff          time.Duration
}

// Guard wraps Kafka producer/consumer calls with a breaker plus a bounded
// retry loop. While the breaker is open the guard backs off and retries
// until the caller's context expires.
type Guard struct {
	enabled          bool
	failureThreshold int
	timeout          time.Duration
	backoff          time.Duration
	breaker          *Breaker
}

func NewGuard(name string, s Settings, probe func(ctx context.Context) error, logger *slog.Logger) *Guard {
	g := &Guard{
		enabled:          s.Enabled,
		failureThreshold: s.FailureThreshold,
		timeout:          s.AttemptTimeout,
		backoff:          s.Backoff,
	}
	if g.failureThreshold < 1 {
		g.failureThreshold = 5
	}
	if s.Enabled {
		cfg := Config{
			MaxFailures:      s.FailureThreshold,
			ResetTimeout:     s.OpenInterval,
			SuccessesToClose: s.SuccessesToClose,
		}
		g.breaker = New(name, cfg, probe, logger)
	}
	return g
}

func (g *Guard) Enabled() bool {
	return g != nil && g.enabled && g.breaker != nil
}

// Breaker exposes the underlying breaker for inspection and metrics.
func (g *Guard) Breaker() *Breaker {
	if g == nil {
		return nil
	}
	return g.breaker
}

func (g *Guard) do(ctx context.Context, op func(ctx context.Context) error) error {
	if !g.Enabled() {
		return op(ctx)
	}
	attempts := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		attempts++
		attemptCtx, cancel := g.withAttemptContext(ctx)
		err := g.breaker.Execute(attemptCtx, op)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrOpen) {
			if waitErr := g.waitBackoff(ctx); waitErr != nil {
				return waitErr
			}
			continue
		}
		if attempts >= g.failureThreshold {
			return err
		}
		if waitErr := g.waitBackoff(ctx); waitErr != nil {
			return waitErr
		}
	}
}

func (g *Guard) withAttemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Guard) waitBackoff(ctx context.Context) error {
	if g.backoff <= 0 {
		return nil
	}
	timer := time.NewTimer(g.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// messageWriter mirrors the subset of kafka.Writer the guard wraps.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// messageReader mirrors the subset of kafka.Reader the guard wraps.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
}

// Writer is a kafka.Writer front guarded by the breaker policy.
type Writer struct {
	guard  *Guard
	writer messageWriter
}

func NewWriter(w messageWriter, g *Guard) *Writer {
	return &Writer{writer: w, guard: g}
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w == nil || w.writer == nil {
		return errors.New("nil kafka writer")
	}
	if !w.guard.Enabled() {
		return w.writer.WriteMessages(ctx, msgs...)
	}
	return w.guard.do(ctx, func(execCtx context.Context) error {
		return w.writer.WriteMessages(execCtx, msgs...)
	})
}

// Reader is a kafka.Reader front guarded by the breaker policy.
type Reader struct {
	guard  *Guard
	reader messageReader
}

func NewReader(r messageReader, g *Guard) *Reader {
	return &Reader{reader: r, guard: g}
}

func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r == nil || r.reader == nil {
		return kafka.Message{}, errors.New("nil kafka reader")
	}
	if !r.guard.Enabled() {
		return r.reader.FetchMessage(ctx)
	}
	var msg kafka.Message
	err := r.guard.do(ctx, func(execCtx context.Context) error {
		var innerErr error
		msg, innerErr = r.reader.FetchMessage(execCtx)
		return innerErr
	})
	return msg, err
}
