// v1
// internal/history/store_test.go
package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"vmcpilot/engine/internal/domain"
)

func snapAt(unit string, at time.Time, temp float64) domain.Snapshot {
	return domain.Snapshot{
		UnitID:               unit,
		TakenAt:              at,
		DevicePower:          domain.On,
		Season:               domain.SeasonWinter,
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
		AmbientTemperatureC:  temp,
		AmbientHumidityPct:   48,
		OutdoorTemperatureC:  10,
	}
}

func TestGetSnapshotReturnsNewestAtOrBefore(t *testing.T) {
	st := NewStore(100, 0, nil)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base, 20))
	st.Append(snapAt("unit-01", base.Add(time.Minute), 21))
	st.Append(snapAt("unit-01", base.Add(2*time.Minute), 22))

	got, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AmbientTemperatureC != 21 {
		t.Fatalf("expected the 10:01 snapshot, got temp %.1f", got.AmbientTemperatureC)
	}

	got, err = st.GetSnapshot(context.Background(), "unit-01", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AmbientTemperatureC != 22 {
		t.Fatalf("expected the newest snapshot, got temp %.1f", got.AmbientTemperatureC)
	}
}

func TestGetSnapshotUnavailable(t *testing.T) {
	st := NewStore(10, 0, nil)
	_, err := st.GetSnapshot(context.Background(), "unit-01", time.Now())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base, 20))
	if _, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(-time.Second)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("asOf before first sample must be unavailable, got %v", err)
	}
}

func TestPartialTelemetrySurfacesAsPartialData(t *testing.T) {
	st := NewStore(10, 0, nil)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base, 20))
	st.NotePartial("unit-01", base.Add(time.Minute))

	_, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(2*time.Minute))
	if !errors.Is(err, ErrPartialData) {
		t.Fatalf("fresher partial telemetry must surface, got %v", err)
	}

	// Reads strictly before the partial sample still serve the complete one.
	got, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(30*time.Second))
	if err != nil || got.AmbientTemperatureC != 20 {
		t.Fatalf("expected the complete snapshot, got %v %v", got.AmbientTemperatureC, err)
	}

	// A newer complete snapshot clears the marker.
	st.Append(snapAt("unit-01", base.Add(2*time.Minute), 21))
	got, err = st.GetSnapshot(context.Background(), "unit-01", base.Add(3*time.Minute))
	if err != nil || got.AmbientTemperatureC != 21 {
		t.Fatalf("complete snapshot must clear partial state, got %v %v", got.AmbientTemperatureC, err)
	}
}

func TestPartialMarkerHoldsAtEqualTimestamp(t *testing.T) {
	st := NewStore(10, 0, nil)
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base, 20))
	st.NotePartial("unit-01", base.Add(time.Minute))

	// A complete snapshot at exactly the partial instant does not clear it.
	st.Append(snapAt("unit-01", base.Add(time.Minute), 21))
	if _, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(2*time.Minute)); !errors.Is(err, ErrPartialData) {
		t.Fatalf("equal-timestamp snapshot must not clear the marker, got %v", err)
	}

	// The next strictly newer complete snapshot does.
	st.Append(snapAt("unit-01", base.Add(2*time.Minute), 22))
	got, err := st.GetSnapshot(context.Background(), "unit-01", base.Add(3*time.Minute))
	if err != nil || got.AmbientTemperatureC != 22 {
		t.Fatalf("newer snapshot must clear the marker, got %v %v", got.AmbientTemperatureC, err)
	}
}

func TestEvictionBySampleCount(t *testing.T) {
	st := NewStore(3, 0, nil)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		st.Append(snapAt("unit-01", base.Add(time.Duration(i)*time.Minute), float64(20+i)))
	}
	if st.Len("unit-01") != 3 {
		t.Fatalf("expected window of 3, got %d", st.Len("unit-01"))
	}
	h := st.History("unit-01", 0)
	if h[0].AmbientTemperatureC != 22 || h[2].AmbientTemperatureC != 24 {
		t.Fatalf("expected oldest evicted, got %+v", []float64{h[0].AmbientTemperatureC, h[2].AmbientTemperatureC})
	}
}

func TestEvictionByAge(t *testing.T) {
	st := NewStore(100, time.Hour, nil)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base, 20))
	st.Append(snapAt("unit-01", base.Add(30*time.Minute), 21))
	st.Append(snapAt("unit-01", base.Add(90*time.Minute), 22))
	if st.Len("unit-01") != 2 {
		t.Fatalf("sample older than an hour must be evicted, got %d", st.Len("unit-01"))
	}
}

func TestOutOfOrderSnapshotsDropped(t *testing.T) {
	st := NewStore(10, 0, nil)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	st.Append(snapAt("unit-01", base.Add(time.Minute), 21))
	st.Append(snapAt("unit-01", base, 20))
	if st.Len("unit-01") != 1 {
		t.Fatalf("stragglers must be dropped, got %d samples", st.Len("unit-01"))
	}
	st.Append(snapAt("", base, 20))
	if st.Len("") != 0 {
		t.Fatalf("snapshots without a unit must be dropped")
	}
}

func TestHistoryReturnsAscendingCopies(t *testing.T) {
	st := NewStore(10, 0, nil)
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		st.Append(snapAt("unit-01", base.Add(time.Duration(i)*time.Minute), float64(20+i)))
	}
	h := st.History("unit-01", 2)
	if len(h) != 2 || h[0].AmbientTemperatureC != 22 || h[1].AmbientTemperatureC != 23 {
		t.Fatalf("expected the two most recent ascending, got %+v", h)
	}
	h[0].AmbientTemperatureC = 99
	if st.History("unit-01", 2)[0].AmbientTemperatureC != 22 {
		t.Fatalf("History must hand out copies")
	}
}
