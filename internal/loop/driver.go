// v2
// internal/loop/driver.go
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vmcpilot/engine/internal/actuator"
	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/journal"
	"vmcpilot/engine/internal/metrics"
	"vmcpilot/engine/internal/predict"
	"vmcpilot/engine/internal/psychro"
	"vmcpilot/engine/internal/rules"
	"vmcpilot/engine/internal/validate"
)

// ErrCycleInFlight is returned when a cycle is requested for a unit that is
// already mid-cycle. Ticker-driven cycles drop the tick instead.
var ErrCycleInFlight = errors.New("cycle already in flight")

// ErrUnknownUnit is returned for units the driver does not manage.
var ErrUnknownUnit = errors.New("unknown unitId")

const (
	phaseIdle int32 = iota
	phaseCycling
)

// HistorySource is the read side the driver cycles against: the freshest
// snapshot for decisions plus the recent window for forecasting.
type HistorySource interface {
	GetSnapshot(ctx context.Context, unitID string, asOf time.Time) (domain.Snapshot, error)
	History(unitID string, n int) []domain.Snapshot
}

// decisionLog is the journal subset the driver writes each cycle outcome to.
type decisionLog interface {
	Append(e *journal.Entry) (*journal.Entry, error)
	LastApplied(unitID string) (*journal.Entry, error)
}

// Config sizes the control loop.
type Config struct {
	Units        []string
	Interval     time.Duration
	CycleTimeout time.Duration
	Horizon      time.Duration
	HistoryDepth int
}

// UnitStatus is the driver's view of one unit for the status endpoint.
type UnitStatus struct {
	UnitID      string            `json:"unitId"`
	Phase       string            `json:"phase"`
	Season      domain.Season     `json:"season,omitempty"`
	LastGood    *domain.ActionSet `json:"lastGood,omitempty"`
	LastCycle   time.Time         `json:"lastCycle"`
	LastOutcome string            `json:"lastOutcome,omitempty"`
	LastError   string            `json:"lastError,omitempty"`
	Cycles      int64             `json:"cycles"`
	Dropped     int64             `json:"droppedTicks"`
}

type unitState struct {
	id    string
	phase atomic.Int32

	mu          sync.Mutex
	season      domain.Season
	lastGood    *domain.ActionSet
	lastCycle   time.Time
	lastOutcome string
	lastError   string
	cycles      int64
	dropped     int64
}

// Driver runs the periodic decide-validate-apply cycle for every managed
// unit. Each unit cycles single-flight: a tick that lands while the previous
// cycle still runs is dropped and counted, never queued.
type Driver struct {
	cfg   Config
	hist  HistorySource
	pred  predict.Predictor
	sink  actuator.Sink
	jnl   decisionLog
	met   *metrics.Metrics
	log   *slog.Logger
	order []string
	units map[string]*unitState
}

// NewDriver wires the loop. Season memory is recovered from the journal so a
// restart resumes with the season the engine last commanded.
func NewDriver(cfg Config, hist HistorySource, pred predict.Predictor, sink actuator.Sink, jnl decisionLog, met *metrics.Metrics, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(cfg.Units) == 0 {
		return nil, errors.New("loop: no units configured")
	}
	if hist == nil || pred == nil || sink == nil || jnl == nil || met == nil {
		return nil, errors.New("loop: missing dependency")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 3 * time.Second
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 10 * time.Minute
	}
	if cfg.HistoryDepth <= 0 {
		cfg.HistoryDepth = 30
	}

	d := &Driver{
		cfg:   cfg,
		hist:  hist,
		pred:  pred,
		sink:  sink,
		jnl:   jnl,
		met:   met,
		log:   logger,
		order: append([]string(nil), cfg.Units...),
		units: make(map[string]*unitState, len(cfg.Units)),
	}
	for _, id := range cfg.Units {
		u := &unitState{id: id}
		if last, err := jnl.LastApplied(id); err == nil && last.Season.Automatic() {
			u.season = last.Season
			logger.Info("season recovered from journal",
				slog.String("unit", id),
				slog.String("season", string(last.Season)))
			if last.Actions != nil {
				actions := *last.Actions
				u.lastGood = &actions
			}
		}
		d.units[id] = u
	}
	return d, nil
}

// Run ticks the loop until the context is cancelled. Every unit cycles in its
// own goroutine so one slow unit cannot starve the others.
func (d *Driver) Run(ctx context.Context) error {
	d.log.Info("control loop starting",
		slog.Duration("interval", d.cfg.Interval),
		slog.Duration("cycleTimeout", d.cfg.CycleTimeout),
		slog.Int("units", len(d.order)))
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("control loop exiting")
			return ctx.Err()
		case <-ticker.C:
			for _, id := range d.order {
				go d.tick(ctx, d.units[id])
			}
		}
	}
}

func (d *Driver) tick(ctx context.Context, u *unitState) {
	if !u.phase.CompareAndSwap(phaseIdle, phaseCycling) {
		u.mu.Lock()
		u.dropped++
		u.mu.Unlock()
		d.met.DroppedTicks.WithLabelValues(u.id).Inc()
		d.log.Warn("tick dropped, previous cycle still running", slog.String("unit", u.id))
		return
	}
	defer u.phase.Store(phaseIdle)
	d.cycle(ctx, u)
}

// Cycle runs one on-demand cycle for the unit, refusing when one is already
// in flight.
func (d *Driver) Cycle(ctx context.Context, unitID string) (*journal.Entry, error) {
	u, ok := d.units[unitID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUnit, unitID)
	}
	if !u.phase.CompareAndSwap(phaseIdle, phaseCycling) {
		return nil, fmt.Errorf("%w: unit %s", ErrCycleInFlight, unitID)
	}
	defer u.phase.Store(phaseIdle)
	return d.cycle(ctx, u)
}

func (d *Driver) cycle(ctx context.Context, u *unitState) (*journal.Entry, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	cctx, cancel := context.WithTimeout(ctx, d.cfg.CycleTimeout)
	defer cancel()

	snap, err := d.hist.GetSnapshot(cctx, u.id, start)
	if err != nil {
		return d.finish(u, start, &journal.Entry{
			CycleID: cycleID,
			UnitID:  u.id,
			Outcome: journal.OutcomeFailed,
			Reason:  fmt.Sprintf("snapshot: %v", err),
		}, err)
	}
	d.observeAmbient(u.id, snap, start)

	window := d.hist.History(u.id, d.cfg.HistoryDepth)
	pred, err := d.pred.Forecast(cctx, window, d.cfg.Horizon)
	if err != nil {
		return d.finish(u, start, &journal.Entry{
			CycleID:     cycleID,
			UnitID:      u.id,
			Outcome:     journal.OutcomeFailed,
			Reason:      fmt.Sprintf("forecast: %v", err),
			SnapshotRef: d.refFor(snap),
		}, err)
	}

	prev := d.previousSeason(u, snap)
	actions, err := rules.Evaluate(snap, pred, prev)
	if err != nil {
		return d.finish(u, start, &journal.Entry{
			CycleID:     cycleID,
			UnitID:      u.id,
			Outcome:     journal.OutcomeFailed,
			Reason:      fmt.Sprintf("evaluate: %v", err),
			SnapshotRef: d.refFor(snap),
		}, err)
	}

	validated, corrections, err := validate.Validate(actions, snap)
	if err != nil {
		return d.finish(u, start, &journal.Entry{
			CycleID:     cycleID,
			UnitID:      u.id,
			Outcome:     journal.OutcomeFailed,
			Reason:      fmt.Sprintf("validate: %v", err),
			SnapshotRef: d.refFor(snap),
		}, err)
	}
	for _, c := range corrections {
		d.met.CorrectionsTotal.WithLabelValues(u.id, c.Component).Inc()
		d.log.Warn("action corrected",
			slog.String("unit", u.id),
			slog.String("component", c.Component),
			slog.String("from", c.From),
			slog.String("to", c.To),
			slog.String("reason", c.Reason))
	}

	reason := rules.Reason(snap, pred, validated)
	if err := d.sink.Apply(cctx, u.id, validated); err != nil {
		outcome := journal.OutcomeFailed
		var rej *actuator.RejectedError
		if errors.As(err, &rej) {
			outcome = journal.OutcomeRejected
		}
		return d.finish(u, start, &journal.Entry{
			CycleID:     cycleID,
			UnitID:      u.id,
			Outcome:     outcome,
			Actions:     &validated,
			Corrections: corrections,
			Reason:      err.Error(),
			SnapshotRef: d.refFor(snap),
		}, err)
	}

	u.mu.Lock()
	u.season = validated.Season
	applied := validated
	u.lastGood = &applied
	u.mu.Unlock()

	d.met.SeasonState.WithLabelValues(u.id).Set(metrics.SeasonValue(validated.Season))
	d.met.Dehumidification.WithLabelValues(u.id).Set(metrics.ToggleValue(validated.DehumidificationRequest))

	entry, err := d.finish(u, start, &journal.Entry{
		CycleID:     cycleID,
		UnitID:      u.id,
		Outcome:     journal.OutcomeApplied,
		Season:      validated.Season,
		Actions:     &applied,
		Corrections: corrections,
		Reason:      reason,
		SnapshotRef: d.refFor(snap),
	}, nil)
	if err == nil {
		d.log.Info("cycle applied",
			slog.String("unit", u.id),
			slog.String("cycleId", cycleID),
			slog.String("season", string(validated.Season)),
			slog.String("dehumidificationRequest", string(validated.DehumidificationRequest)),
			slog.String("reason", reason))
	}
	return entry, err
}

// finish seals the cycle: journal entry, metrics and per-unit status. On any
// non-applied outcome the unit keeps its last known good command set.
func (d *Driver) finish(u *unitState, start time.Time, e *journal.Entry, cause error) (*journal.Entry, error) {
	elapsed := time.Since(start)
	d.met.CyclesTotal.WithLabelValues(u.id, e.Outcome).Inc()
	d.met.CycleDuration.WithLabelValues(u.id).Observe(elapsed.Seconds())

	stored, jerr := d.jnl.Append(e)
	if jerr != nil {
		d.log.Error("journal append failed",
			slog.String("unit", u.id),
			slog.String("outcome", e.Outcome),
			slog.String("error", jerr.Error()))
		stored = e
	}

	u.mu.Lock()
	u.cycles++
	u.lastCycle = start
	u.lastOutcome = e.Outcome
	if cause != nil {
		u.lastError = cause.Error()
	} else {
		u.lastError = ""
	}
	held := u.season
	u.mu.Unlock()

	if cause != nil {
		d.log.Warn("cycle held last known good",
			slog.String("unit", u.id),
			slog.String("outcome", e.Outcome),
			slog.String("season", string(held)),
			slog.String("error", cause.Error()))
		return stored, cause
	}
	return stored, nil
}

// previousSeason answers rule 3's tie case: the journal-recovered memory
// first, then the unit's own reported season, winter as the cold-start
// default.
func (d *Driver) previousSeason(u *unitState, snap domain.Snapshot) domain.Season {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.season.Automatic() {
		return u.season
	}
	if snap.Season.Automatic() {
		return snap.Season
	}
	return domain.SeasonWinter
}

func (d *Driver) observeAmbient(unitID string, snap domain.Snapshot, now time.Time) {
	dew := psychro.DewPoint(snap.AmbientTemperatureC, snap.AmbientHumidityPct)
	d.met.DewPointC.WithLabelValues(unitID).Set(dew)
	d.met.HeatIndexC.WithLabelValues(unitID).Set(psychro.HeatIndex(snap.AmbientTemperatureC, snap.AmbientHumidityPct))
	d.met.DewPointAlarm.WithLabelValues(unitID).Set(metrics.ToggleValue(snap.DewPointAlarm))
	d.met.TelemetryLag.WithLabelValues(unitID).Set(now.Sub(snap.TakenAt).Seconds())
}

func (d *Driver) refFor(snap domain.Snapshot) string {
	ref, err := journal.SnapshotRef(snap)
	if err != nil {
		d.log.Warn("snapshot digest failed", slog.String("error", err.Error()))
		return ""
	}
	return ref
}

// Units lists the managed unit ids in configuration order.
func (d *Driver) Units() []string {
	return append([]string(nil), d.order...)
}

// LastGood returns the unit's last applied action set.
func (d *Driver) LastGood(unitID string) (domain.ActionSet, bool) {
	u, ok := d.units[unitID]
	if !ok {
		return domain.ActionSet{}, false
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.lastGood == nil {
		return domain.ActionSet{}, false
	}
	return *u.lastGood, true
}

// Status reports every unit's loop state in configuration order.
func (d *Driver) Status() []UnitStatus {
	out := make([]UnitStatus, 0, len(d.order))
	for _, id := range d.order {
		u := d.units[id]
		phase := "IDLE"
		if u.phase.Load() == phaseCycling {
			phase = "CYCLING"
		}
		u.mu.Lock()
		st := UnitStatus{
			UnitID:      id,
			Phase:       phase,
			Season:      u.season,
			LastCycle:   u.lastCycle,
			LastOutcome: u.lastOutcome,
			LastError:   u.lastError,
			Cycles:      u.cycles,
			Dropped:     u.dropped,
		}
		if u.lastGood != nil {
			actions := *u.lastGood
			st.LastGood = &actions
		}
		u.mu.Unlock()
		out = append(out, st)
	}
	return out
}
