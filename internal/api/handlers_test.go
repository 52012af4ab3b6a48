// v1
// internal/api/handlers_test.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/history"
	"vmcpilot/engine/internal/journal"
	"vmcpilot/engine/internal/loop"
	"vmcpilot/engine/internal/metrics"
	"vmcpilot/engine/internal/psychro"
	"vmcpilot/engine/internal/setpoints"
)

type stubLoop struct {
	units    []string
	status   []loop.UnitStatus
	lastGood *domain.ActionSet
	entry    *journal.Entry
	cycleErr error
	cycles   int
}

func (s *stubLoop) Units() []string           { return s.units }
func (s *stubLoop) Status() []loop.UnitStatus { return s.status }

func (s *stubLoop) LastGood(string) (domain.ActionSet, bool) {
	if s.lastGood == nil {
		return domain.ActionSet{}, false
	}
	return *s.lastGood, true
}

func (s *stubLoop) Cycle(context.Context, string) (*journal.Entry, error) {
	s.cycles++
	return s.entry, s.cycleErr
}

type stubHist struct {
	snap   domain.Snapshot
	window []domain.Snapshot
	err    error
}

func (s *stubHist) GetSnapshot(context.Context, string, time.Time) (domain.Snapshot, error) {
	if s.err != nil {
		return domain.Snapshot{}, s.err
	}
	return s.snap, nil
}

func (s *stubHist) History(string, int) []domain.Snapshot { return s.window }

type stubJournal struct {
	entries []journal.Entry
}

func (s *stubJournal) Tail(_ string, n int) []journal.Entry {
	if n > 0 && len(s.entries) > n {
		return s.entries[len(s.entries)-n:]
	}
	return s.entries
}

func (s *stubJournal) Len() int { return len(s.entries) }

type stubPublisher struct {
	calls int
	err   error
}

func (s *stubPublisher) Publish(context.Context, string, setpoints.Targets) error {
	s.calls++
	return s.err
}

func unitSnapshot() domain.Snapshot {
	return domain.Snapshot{
		UnitID:               "unit-a",
		TakenAt:              time.Now().Add(-time.Second),
		DevicePower:          domain.On,
		Season:               domain.SeasonSummer,
		CompressorManagement: domain.CompressorCoolingOrDehumid,
		CoolingManagement:    domain.CoolingWaterElseCompressor,
		RecirculationVent:    domain.Off,
		DewPointManagement:   domain.DewPointFixed,
		SpareNumber:          1,
		TargetTemperatureC:   22,
		TargetHumidityPct:    50,
		TargetDewPointC:      18,
		AmbientTemperatureC:  25,
		AmbientHumidityPct:   60,
		WaterTemperatureC:    14,
		OutdoorTemperatureC:  18,
	}
}

func newTestHandlers(t *testing.T) (*Handlers, *stubLoop, *stubPublisher) {
	t.Helper()
	store, err := setpoints.NewStore([]string{"unit-a"}, map[string]setpoints.Targets{
		"unit-a": {TemperatureC: 22, HumidityPct: 50, DewPointC: 18, SpareNumber: 1},
	})
	if err != nil {
		t.Fatalf("setpoints store: %v", err)
	}
	lp := &stubLoop{units: []string{"unit-a"}, status: []loop.UnitStatus{{UnitID: "unit-a", Phase: "IDLE"}}}
	pub := &stubPublisher{}
	h := &Handlers{
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Loop:      lp,
		Hist:      &stubHist{snap: unitSnapshot()},
		Journal:   &stubJournal{},
		Targets:   store,
		Publisher: pub,
		StartedAt: time.Now(),
	}
	return h, lp, pub
}

func doRequest(h *Handlers, reg *prometheus.Registry, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	NewRouter(h, reg).ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		if rr := doRequest(h, nil, http.MethodGet, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s = %d", path, rr.Code)
		}
	}
	h.Ready = func() bool { return false }
	if rr := doRequest(h, nil, http.MethodGet, "/health/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("not ready = %d", rr.Code)
	}
}

func TestStatusReportsUnitsAndJournal(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	h.Journal = &stubJournal{entries: []journal.Entry{{UnitID: "unit-a"}, {UnitID: "unit-a"}}}
	h.Breakers = []*breaker.Guard{
		breaker.NewGuard("engine-telemetry-consumer", breaker.Settings{Enabled: true}, nil, nil),
		breaker.NewGuard("engine-command-writer", breaker.Settings{}, nil, nil),
	}

	rr := doRequest(h, nil, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Service != "vmc-engine" || len(got.Units) != 1 || got.JournalEntries != 2 {
		t.Fatalf("status = %+v", got)
	}
	if got.Setpoints["unit-a"].TemperatureC != 22 {
		t.Fatalf("setpoints = %+v", got.Setpoints)
	}
	// disabled guards carry no breaker and stay out of the report
	if len(got.Breakers) != 1 || got.Breakers[0].Name != "engine-telemetry-consumer" || got.Breakers[0].State != "CLOSED" {
		t.Fatalf("breakers = %+v", got.Breakers)
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/snapshot", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("snapshot = %d", rr.Code)
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.UnitID != "unit-a" || snap.AmbientTemperatureC != 25 {
		t.Fatalf("snapshot = %+v", snap)
	}

	if rr := doRequest(h, nil, http.MethodGet, "/units/unit-z/snapshot", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown unit = %d", rr.Code)
	}

	h.Hist = &stubHist{err: history.ErrPartialData}
	if rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/snapshot", nil); rr.Code != http.StatusConflict {
		t.Fatalf("partial = %d", rr.Code)
	}

	h.Hist = &stubHist{err: history.ErrUnavailable}
	if rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/snapshot", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unavailable = %d", rr.Code)
	}
}

func TestActionsServeLastGood(t *testing.T) {
	h, lp, _ := newTestHandlers(t)

	if rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/actions", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("no decision yet = %d", rr.Code)
	}

	lp.lastGood = &domain.ActionSet{
		DevicePower:             domain.On,
		Season:                  domain.SeasonSummer,
		CompressorManagement:    domain.CompressorCoolingOrDehumid,
		CoolingManagement:       domain.CoolingWaterElseCompressor,
		RecirculationVent:       domain.Off,
		DehumidificationRequest: domain.On,
	}
	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/actions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("actions = %d", rr.Code)
	}
	var got struct {
		UnitID  string           `json:"unitId"`
		Actions domain.ActionSet `json:"actions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Actions != *lp.lastGood {
		t.Fatalf("actions = %+v", got.Actions)
	}
}

func TestComfortReport(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/comfort", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("comfort = %d", rr.Code)
	}
	var got comfortReport
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Perception != psychro.OkButHumid {
		t.Fatalf("perception = %s", got.Perception)
	}
	if got.Zone == nil || got.InZone {
		t.Fatalf("zone = %+v inZone = %v, want out of zone at 60%% humidity", got.Zone, got.InZone)
	}
	if got.DewPointC < 16 || got.DewPointC > 17.5 {
		t.Fatalf("dew point = %.2f", got.DewPointC)
	}
	if got.SeasonFit != nil || got.BestSeason != "" {
		t.Fatalf("no history window must mean no season fit, got %+v", got.SeasonFit)
	}
}

func histSnap(at time.Time, tempC, humPct float64) domain.Snapshot {
	s := unitSnapshot()
	s.TakenAt = at
	s.AmbientTemperatureC = tempC
	s.AmbientHumidityPct = humPct
	return s
}

func TestComfortReportSeasonFit(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.Hist = &stubHist{snap: unitSnapshot(), window: []domain.Snapshot{
		histSnap(base, 17.5, 40),
		histSnap(base.Add(6*time.Hour), 19.5, 45),
		histSnap(base.Add(24*time.Hour), 18, 50),
		histSnap(base.Add(30*time.Hour), 20, 55),
	}}

	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/comfort", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("comfort = %d", rr.Code)
	}
	var got comfortReport
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BestSeason != domain.SeasonWinter {
		t.Fatalf("bestSeason = %s, want winter for a cold two-day run", got.BestSeason)
	}
	if len(got.SeasonFit) != 3 || got.SeasonFit[0].Season != domain.SeasonWinter {
		t.Fatalf("seasonFit = %+v", got.SeasonFit)
	}
	// Recency-weighted: the newer, warmer day pulls the figure above the mean.
	if got.TrailingTemperatureC < 19.0 || got.TrailingTemperatureC > 19.1 {
		t.Fatalf("trailingTemperatureC = %.3f, want ~19.05", got.TrailingTemperatureC)
	}
	if got.TrailingHumidityPct != 50 {
		t.Fatalf("trailingHumidityPct = %.3f, want 50", got.TrailingHumidityPct)
	}
}

func TestJournalTailEndpoint(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	h.Journal = &stubJournal{entries: []journal.Entry{
		{ID: 1, UnitID: "unit-a", Outcome: journal.OutcomeFailed},
		{ID: 2, UnitID: "unit-a", Outcome: journal.OutcomeApplied},
	}}

	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/journal?limit=1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("journal = %d", rr.Code)
	}
	var got struct {
		UnitID  string          `json:"unitId"`
		Entries []journal.Entry `json:"entries"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].ID != 2 {
		t.Fatalf("entries = %+v", got.Entries)
	}

	if rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/journal?limit=zero", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", rr.Code)
	}
}

func TestSetpointsRoundTrip(t *testing.T) {
	h, _, pub := newTestHandlers(t)

	rr := doRequest(h, nil, http.MethodGet, "/units/unit-a/setpoints", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get = %d", rr.Code)
	}

	body := `{"temperatureC":21,"humidityPct":45,"dewPointC":17,"spareNumber":2}`
	rr = doRequest(h, nil, http.MethodPut, "/units/unit-a/setpoints", strings.NewReader(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("put = %d body=%s", rr.Code, rr.Body)
	}
	if pub.calls != 1 {
		t.Fatalf("publisher calls = %d", pub.calls)
	}
	if got, _ := h.Targets.Get("unit-a"); got.TemperatureC != 21 || got.SpareNumber != 2 {
		t.Fatalf("stored = %+v", got)
	}

	rr = doRequest(h, nil, http.MethodPut, "/units/unit-a/setpoints", strings.NewReader(`{"temperatureC":80,"humidityPct":45,"dewPointC":17,"spareNumber":2}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("out of range = %d", rr.Code)
	}
	if pub.calls != 1 {
		t.Fatal("rejected setpoints must not be pushed")
	}

	rr = doRequest(h, nil, http.MethodPut, "/units/unit-z/setpoints", strings.NewReader(body))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown unit = %d", rr.Code)
	}
}

func TestSetpointsPushFailure(t *testing.T) {
	h, _, pub := newTestHandlers(t)
	pub.err = errors.New("brokers down")

	body := `{"temperatureC":21,"humidityPct":45,"dewPointC":17,"spareNumber":2}`
	rr := doRequest(h, nil, http.MethodPut, "/units/unit-a/setpoints", strings.NewReader(body))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("push failure = %d", rr.Code)
	}
}

func TestEvaluateTriggersCycle(t *testing.T) {
	h, lp, _ := newTestHandlers(t)
	lp.entry = &journal.Entry{ID: 7, UnitID: "unit-a", Outcome: journal.OutcomeApplied, Season: domain.SeasonSummer}

	rr := doRequest(h, nil, http.MethodPost, "/units/unit-a/evaluate", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("evaluate = %d", rr.Code)
	}
	var entry journal.Entry
	if err := json.NewDecoder(rr.Body).Decode(&entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.ID != 7 || lp.cycles != 1 {
		t.Fatalf("entry = %+v cycles = %d", entry, lp.cycles)
	}

	lp.entry = nil
	lp.cycleErr = loop.ErrCycleInFlight
	if rr := doRequest(h, nil, http.MethodPost, "/units/unit-a/evaluate", nil); rr.Code != http.StatusConflict {
		t.Fatalf("in flight = %d", rr.Code)
	}

	lp.cycleErr = loop.ErrUnknownUnit
	if rr := doRequest(h, nil, http.MethodPost, "/units/unit-z/evaluate", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown = %d", rr.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	met.CyclesTotal.WithLabelValues("unit-a", journal.OutcomeApplied).Inc()

	rr := doRequest(h, reg, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "vmc_cycles_total") {
		t.Fatalf("metrics body missing engine series:\n%s", rr.Body.String())
	}
}
