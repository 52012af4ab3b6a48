// v1
// internal/telemetry/telemetry_test.go
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/history"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	takenAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	snap := domain.Snapshot{
		UnitID:               "unit-a",
		TakenAt:              takenAt,
		DevicePower:          domain.On,
		Season:               domain.SeasonWinter,
		CompressorManagement: domain.CompressorCoolingOrDehumid,
		CoolingManagement:    domain.CoolingWaterElseCompressor,
		RecirculationVent:    domain.Off,
		DewPointManagement:   domain.DewPointFixed,
		SpareNumber:          2,
		TargetTemperatureC:   22,
		TargetHumidityPct:    50,
		TargetDewPointC:      18,
		Compressor:           domain.Off,
		FreeCooling:          domain.Off,
		PlantWaterRequest:    domain.Off,
		HeatingRequest:       domain.On,
		CoolingRequest:       domain.Off,
		Dehumidification:     domain.Off,
		DewPointAlarm:        domain.Off,
		WaterTemperatureC:    12,
		AmbientTemperatureC:  20.5,
		AmbientHumidityPct:   48,
		OutdoorTemperatureC:  7,
	}

	payload, err := json.Marshal(Encode(snap))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	decoded, missing, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing = %v, want none", missing)
	}
	if decoded != snap {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded, snap)
	}
}

func TestEnvelopeReportsMissingComponents(t *testing.T) {
	env := Encode(fullTestSnapshot())
	env.Reading.AmbientTemperatureC = nil
	env.Reading.DewPointAlarm = nil

	_, missing, err := env.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %v, want 2 entries", missing)
	}
	joined := strings.Join(missing, ",")
	if !strings.Contains(joined, domain.CompAmbientTemperature) || !strings.Contains(joined, domain.CompDewPointAlarm) {
		t.Fatalf("missing = %v", missing)
	}
}

func TestEnvelopeOmitsAbsentFieldsOnTheWire(t *testing.T) {
	env := Encode(fullTestSnapshot())
	env.Reading.WaterTemperatureC = nil
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "waterTemperatureC") {
		t.Fatalf("absent component must not appear on the wire: %s", payload)
	}
}

func TestEnvelopeRejectsBadHeader(t *testing.T) {
	env := Encode(fullTestSnapshot())
	env.SchemaVersion = "vmc.telemetry.v9"
	if _, _, err := env.Decode(); err == nil {
		t.Fatal("expected schema version error")
	}
	env = Encode(fullTestSnapshot())
	env.UnitID = ""
	if _, _, err := env.Decode(); err == nil {
		t.Fatal("expected unit error")
	}
}

func TestIngestAppendsCompleteReading(t *testing.T) {
	st := history.NewStore(10, time.Hour, discardLogger())
	c := &Consumer{store: st, log: discardLogger()}

	snap := fullTestSnapshot()
	payload, _ := json.Marshal(Encode(snap))
	if err := c.ingest(payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	got, err := st.GetSnapshot(context.Background(), "unit-a", snap.TakenAt)
	if err != nil {
		t.Fatalf("stored snapshot: %v", err)
	}
	if got.AmbientTemperatureC != snap.AmbientTemperatureC {
		t.Fatalf("stored temperature = %v", got.AmbientTemperatureC)
	}
}

func TestIngestFlagsPartialReading(t *testing.T) {
	st := history.NewStore(10, time.Hour, discardLogger())
	c := &Consumer{store: st, log: discardLogger()}

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	complete := fullTestSnapshot()
	complete.TakenAt = base
	payload, _ := json.Marshal(Encode(complete))
	if err := c.ingest(payload); err != nil {
		t.Fatalf("ingest complete: %v", err)
	}

	partial := Encode(fullTestSnapshot())
	partial.Timestamp = base.Add(time.Minute)
	partial.Reading.AmbientHumidityPct = nil
	partialPayload, _ := json.Marshal(partial)
	if err := c.ingest(partialPayload); err != nil {
		t.Fatalf("ingest partial: %v", err)
	}

	_, err := st.GetSnapshot(context.Background(), "unit-a", base.Add(2*time.Minute))
	if !errors.Is(err, history.ErrPartialData) {
		t.Fatalf("err = %v, want ErrPartialData", err)
	}
}

func TestIngestRejectsGarbage(t *testing.T) {
	st := history.NewStore(10, time.Hour, discardLogger())
	c := &Consumer{store: st, log: discardLogger()}
	if err := c.ingest([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func fullTestSnapshot() domain.Snapshot {
	return domain.Snapshot{
		UnitID:               "unit-a",
		TakenAt:              time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
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
		Compressor:           domain.Off,
		FreeCooling:          domain.Off,
		PlantWaterRequest:    domain.Off,
		HeatingRequest:       domain.Off,
		CoolingRequest:       domain.Off,
		Dehumidification:     domain.Off,
		DewPointAlarm:        domain.Off,
		WaterTemperatureC:    14,
		AmbientTemperatureC:  24,
		AmbientHumidityPct:   55,
		OutdoorTemperatureC:  18,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
