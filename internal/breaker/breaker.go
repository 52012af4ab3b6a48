// v1
// internal/breaker/breaker.go
package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

var ErrOpen = errors.New("circuit breaker is open; fast-fail")

type Config struct {
	MaxFailures      int
	ResetTimeout     time.Duration
	SuccessesToClose int
}

func (c Config) withDefaults() Config {
	if c.MaxFailures < 1 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.SuccessesToClose < 1 {
		c.SuccessesToClose = 1
	}
	return c
}

// Breaker guards an unreliable dependency. Repeated failures trip it open,
// after which calls fast-fail until the reset timeout elapses; the first
// call after that runs the probe and, on success, the breaker counts
// successes in half-open until it may close again.
type Breaker struct {
	name  string
	cfg   Config
	log   *slog.Logger
	probe func(ctx context.Context) error

	mu          sync.Mutex
	state       State
	recentFails int
	halfOpenOK  int
	openedAt    time.Time
}

func New(name string, cfg Config, probe func(ctx context.Context) error, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	b := &Breaker{name: name, cfg: cfg, log: logger, probe: probe, state: Closed}
	b.log.Info("breaker created",
		slog.String("name", name),
		slog.Int("maxFailures", cfg.MaxFailures),
		slog.String("resetTimeout", cfg.ResetTimeout.String()),
		slog.Int("successesToClose", cfg.SuccessesToClose))
	return b
}

type gate int

const (
	gateProceed gate = iota
	gateReject
	gateProbe
)

func (b *Breaker) admit() gate {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return gateReject
		}
		b.state = HalfOpen
		b.halfOpenOK = 0
		return gateProbe
	default:
		return gateProceed
	}
}

// Execute runs op under the breaker policy. While open it returns ErrOpen
// without calling op; a failure that trips the breaker also surfaces as
// ErrOpen so callers can tell policy rejections from plain op errors.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	switch b.admit() {
	case gateReject:
		b.log.Warn("breaker fast-fail", slog.String("name", b.name))
		return ErrOpen
	case gateProbe:
		b.log.Info("breaker probing", slog.String("name", b.name))
		if b.probe != nil {
			if err := b.probe(ctx); err != nil {
				b.reopen("probe failed", err)
				return ErrOpen
			}
		}
	}
	if err := op(ctx); err != nil {
		b.onFailure(err)
		if b.State() == Open {
			return ErrOpen
		}
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.SuccessesToClose {
			b.state = Closed
			b.recentFails = 0
			b.log.Info("breaker closed", slog.String("name", b.name))
		}
	case Closed:
		b.recentFails = 0
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		b.log.Warn("breaker reopened",
			slog.String("name", b.name),
			slog.String("error", err.Error()))
		return
	}
	b.recentFails++
	b.log.Warn("operation failure",
		slog.String("name", b.name),
		slog.Int("failures", b.recentFails),
		slog.String("error", err.Error()))
	if b.recentFails >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = time.Now()
		b.log.Error("breaker opened",
			slog.String("name", b.name),
			slog.Int("maxFailures", b.cfg.MaxFailures))
	}
}

func (b *Breaker) reopen(reason string, err error) {
	b.mu.Lock()
	b.state = Open
	b.openedAt = time.Now()
	b.mu.Unlock()
	b.log.Warn("breaker reopened",
		slog.String("name", b.name),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Name() string { return b.name }
