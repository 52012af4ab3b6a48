// v1
// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/config"
	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/history"
	"vmcpilot/engine/internal/journal"
	"vmcpilot/engine/internal/loop"
	"vmcpilot/engine/internal/psychro"
	"vmcpilot/engine/internal/setpoints"
)

const (
	defaultJournalLimit = 20
	maxJournalLimit     = 200

	// window the comfort report folds into its trailing figures
	comfortHistoryDepth = 288
)

// controlLoop is the driver subset the HTTP surface queries and triggers.
type controlLoop interface {
	Units() []string
	Status() []loop.UnitStatus
	LastGood(unitID string) (domain.ActionSet, bool)
	Cycle(ctx context.Context, unitID string) (*journal.Entry, error)
}

// snapshotSource is the historian subset behind the snapshot endpoints.
type snapshotSource interface {
	GetSnapshot(ctx context.Context, unitID string, asOf time.Time) (domain.Snapshot, error)
	History(unitID string, n int) []domain.Snapshot
}

// decisionReader is the journal subset behind the journal endpoints.
type decisionReader interface {
	Tail(unitID string, n int) []journal.Entry
	Len() int
}

// targetPublisher pushes accepted setpoints to the unit. A nil publisher
// keeps the store-only behavior for deployments without the push topic.
type targetPublisher interface {
	Publish(ctx context.Context, unitID string, t setpoints.Targets) error
}

// Handlers carries the HTTP dependencies.
type Handlers struct {
	Log       *slog.Logger
	Cfg       config.Config
	Loop      controlLoop
	Hist      snapshotSource
	Journal   decisionReader
	Targets   *setpoints.Store
	Publisher targetPublisher
	Breakers  []*breaker.Guard
	Ready     func() bool
	StartedAt time.Time
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": time.Now().UTC()})
}

func (h *Handlers) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

func (h *Handlers) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	if h.Ready != nil && !h.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type breakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type statusResponse struct {
	Service        string                       `json:"service"`
	Uptime         string                       `json:"uptime"`
	Units          []loop.UnitStatus            `json:"units"`
	Setpoints      map[string]setpoints.Targets `json:"setpoints"`
	Breakers       []breakerStatus              `json:"breakers"`
	JournalEntries int                          `json:"journalEntries"`
}

func (h *Handlers) Status(w http.ResponseWriter, _ *http.Request) {
	breakers := make([]breakerStatus, 0, len(h.Breakers))
	for _, g := range h.Breakers {
		b := g.Breaker()
		if b == nil {
			continue
		}
		breakers = append(breakers, breakerStatus{Name: b.Name(), State: b.State().String()})
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Service:        "vmc-engine",
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		Units:          h.Loop.Status(),
		Setpoints:      h.Targets.All(),
		Breakers:       breakers,
		JournalEntries: h.Journal.Len(),
	})
}

func (h *Handlers) Config(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Cfg)
}

func (h *Handlers) Units(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"units": h.Loop.Units()})
}

func (h *Handlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	if !h.knownUnit(id) {
		h.notFound(w, "unknown unitId")
		return
	}
	snap, err := h.Hist.GetSnapshot(r.Context(), id, time.Now())
	switch {
	case errors.Is(err, history.ErrPartialData):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, history.ErrUnavailable):
		h.notFound(w, err.Error())
		return
	case err != nil:
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) Actions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	if !h.knownUnit(id) {
		h.notFound(w, "unknown unitId")
		return
	}
	actions, ok := h.Loop.LastGood(id)
	if !ok {
		h.notFound(w, "no applied decision yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unitId": id, "actions": actions})
}

type comfortReport struct {
	UnitID       string               `json:"unitId"`
	TakenAt      time.Time            `json:"takenAt"`
	TemperatureC float64              `json:"temperatureC"`
	HumidityPct  float64              `json:"humidityPct"`
	DewPointC    float64              `json:"dewPointC"`
	HeatIndexC   float64              `json:"heatIndexC"`
	Perception   psychro.Perception   `json:"perception"`
	Season       domain.Season        `json:"season"`
	InZone       bool                 `json:"inZone"`
	Zone         *psychro.ComfortZone `json:"zone,omitempty"`

	// Trailing figures over the recent history window; absent until the
	// historian has at least one complete snapshot beyond the current one.
	TrailingTemperatureC float64               `json:"trailingTemperatureC,omitempty"`
	TrailingHumidityPct  float64               `json:"trailingHumidityPct,omitempty"`
	SeasonFit            []psychro.SeasonScore `json:"seasonFit,omitempty"`
	BestSeason           domain.Season         `json:"bestSeason,omitempty"`
}

func (h *Handlers) Comfort(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	if !h.knownUnit(id) {
		h.notFound(w, "unknown unitId")
		return
	}
	snap, err := h.Hist.GetSnapshot(r.Context(), id, time.Now())
	switch {
	case errors.Is(err, history.ErrPartialData):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case errors.Is(err, history.ErrUnavailable):
		h.notFound(w, err.Error())
		return
	case err != nil:
		h.internalError(w, err)
		return
	}

	dew := psychro.DewPoint(snap.AmbientTemperatureC, snap.AmbientHumidityPct)
	report := comfortReport{
		UnitID:       id,
		TakenAt:      snap.TakenAt,
		TemperatureC: snap.AmbientTemperatureC,
		HumidityPct:  snap.AmbientHumidityPct,
		DewPointC:    dew,
		HeatIndexC:   psychro.HeatIndex(snap.AmbientTemperatureC, snap.AmbientHumidityPct),
		Perception:   psychro.PerceptionFor(dew),
		Season:       snap.Season,
	}
	if zone, ok := psychro.ZoneFor(snap.Season); ok {
		report.Zone = &zone
		report.InZone = zone.InZone(snap.AmbientTemperatureC, snap.AmbientHumidityPct)
	}
	if window := h.Hist.History(id, comfortHistoryDepth); len(window) > 1 {
		temps := make([]float64, len(window))
		hums := make([]float64, len(window))
		weights := make([]float64, len(window))
		for i, past := range window {
			temps[i] = past.AmbientTemperatureC
			hums[i] = past.AmbientHumidityPct
			weights[i] = float64(i + 1) // recent samples weigh more
		}
		if avg, err := psychro.WeightedAverage(temps, weights); err == nil {
			report.TrailingTemperatureC = avg
		}
		if avg, err := psychro.WeightedAverage(hums, weights); err == nil {
			report.TrailingHumidityPct = avg
		}
		if scores := psychro.ScoreSeasons(dayRanges(window)); len(scores) > 0 {
			report.SeasonFit = scores
			report.BestSeason = scores[0].Season
		}
	}
	writeJSON(w, http.StatusOK, report)
}

// dayRanges folds the ascending history window into per-day temperature
// spans, most recent day first, which is the order the season scorer weighs.
func dayRanges(window []domain.Snapshot) []psychro.TempRange {
	byDay := map[time.Time]*psychro.TempRange{}
	var days []time.Time
	for _, snap := range window {
		day := snap.TakenAt.UTC().Truncate(24 * time.Hour)
		r, ok := byDay[day]
		if !ok {
			byDay[day] = &psychro.TempRange{MinC: snap.AmbientTemperatureC, MaxC: snap.AmbientTemperatureC}
			days = append(days, day)
			continue
		}
		if snap.AmbientTemperatureC < r.MinC {
			r.MinC = snap.AmbientTemperatureC
		}
		if snap.AmbientTemperatureC > r.MaxC {
			r.MaxC = snap.AmbientTemperatureC
		}
	}
	out := make([]psychro.TempRange, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		out = append(out, *byDay[days[i]])
	}
	return out
}

func (h *Handlers) JournalTail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	if !h.knownUnit(id) {
		h.notFound(w, "unknown unitId")
		return
	}
	limit := defaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}
	entries := h.Journal.Tail(id, limit)
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"unitId": id, "entries": entries})
}

func (h *Handlers) GetSetpoints(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	targets, ok := h.Targets.Get(id)
	if !ok {
		h.notFound(w, "unknown unitId")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unitId": id, "targets": targets})
}

func (h *Handlers) PutSetpoints(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	var t setpoints.Targets
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		h.badRequest(w, "invalid setpoints payload")
		return
	}
	stored, err := h.Targets.Set(id, t)
	switch {
	case errors.Is(err, setpoints.ErrUnknownUnit):
		h.notFound(w, err.Error())
		return
	case errors.Is(err, setpoints.ErrSetpointRange):
		h.badRequest(w, err.Error())
		return
	case err != nil:
		h.internalError(w, err)
		return
	}
	if h.Publisher != nil {
		if err := h.Publisher.Publish(r.Context(), id, stored); err != nil {
			h.Log.Error("setpoint push failed",
				slog.String("unit", id),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "setpoint push failed"})
			return
		}
	}
	h.Log.Info("setpoints updated",
		slog.String("unit", id),
		slog.Float64("temperatureC", stored.TemperatureC),
		slog.Float64("humidityPct", stored.HumidityPct))
	writeJSON(w, http.StatusOK, map[string]any{"unitId": id, "targets": stored})
}

func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unitId"]
	entry, err := h.Loop.Cycle(r.Context(), id)
	switch {
	case errors.Is(err, loop.ErrUnknownUnit):
		h.notFound(w, err.Error())
		return
	case errors.Is(err, loop.ErrCycleInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if entry == nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handlers) knownUnit(id string) bool {
	for _, u := range h.Loop.Units() {
		if u == id {
			return true
		}
	}
	return false
}

func (h *Handlers) badRequest(w http.ResponseWriter, msg string) {
	h.Log.Warn("bad request", slog.String("error", msg))
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func (h *Handlers) notFound(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": msg})
}

func (h *Handlers) internalError(w http.ResponseWriter, err error) {
	h.Log.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
