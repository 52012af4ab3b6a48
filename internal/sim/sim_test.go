// v1
// internal/sim/sim_test.go
package sim

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/setpoints"
	"vmcpilot/engine/internal/telemetry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var simBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func stepN(u *Unit, n int) {
	for i := 0; i < n; i++ {
		u.Step(simBase.Add(time.Duration(i) * time.Second))
	}
}

func runningActions(season domain.Season, cm domain.CompressorMode, coolM domain.CoolingMode, dehumid domain.Toggle) domain.ActionSet {
	return domain.ActionSet{
		DevicePower:             domain.On,
		Season:                  season,
		CompressorManagement:    cm,
		CoolingManagement:       coolM,
		RecirculationVent:       domain.Off,
		DehumidificationRequest: dehumid,
	}
}

func TestWinterHeatingRaisesIndoorTemperature(t *testing.T) {
	u := NewUnit("unit-t", 18, 40, 16, 0, discardLogger())
	if err := u.Apply(runningActions(domain.SeasonWinter, domain.CompressorCoolingOrDehumid, domain.CoolingWaterElseCompressor, domain.Off)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	before := u.Snapshot(simBase).AmbientTemperatureC
	stepN(u, 60)
	after := u.Snapshot(simBase.Add(time.Minute)).AmbientTemperatureC

	if after <= before {
		t.Fatalf("indoor temperature did not rise under heating: before %.2f after %.2f", before, after)
	}
	if got := u.Snapshot(simBase).HeatingRequest; got != domain.On {
		t.Fatalf("HeatingRequest = %s, want ON", got)
	}
}

func TestSummerCoolingPrefersPlantWater(t *testing.T) {
	u := NewUnit("unit-t", 27, 50, 30, 0, discardLogger())
	if err := u.Apply(runningActions(domain.SeasonSummer, domain.CompressorCoolingOrDehumid, domain.CoolingWaterElseCompressor, domain.Off)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	before := u.Snapshot(simBase).AmbientTemperatureC
	stepN(u, 60)
	snap := u.Snapshot(simBase.Add(time.Minute))

	if snap.AmbientTemperatureC >= before {
		t.Fatalf("indoor temperature did not fall under cooling: before %.2f after %.2f", before, snap.AmbientTemperatureC)
	}
	if snap.PlantWaterRequest != domain.On {
		t.Fatalf("PlantWaterRequest = %s, want ON while plant water is colder than the room", snap.PlantWaterRequest)
	}
	if snap.Compressor != domain.Off {
		t.Fatalf("Compressor = %s, want OFF while water covers the pull-down", snap.Compressor)
	}
	if snap.CoolingRequest != domain.On {
		t.Fatalf("CoolingRequest = %s, want ON", snap.CoolingRequest)
	}
}

func TestCompressorOnlyCoolingRunsTheCompressor(t *testing.T) {
	u := NewUnit("unit-t", 27, 50, 30, 0, discardLogger())
	if err := u.Apply(runningActions(domain.SeasonSummer, domain.CompressorCoolingOrDehumid, domain.CoolingCompressorOnly, domain.Off)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	stepN(u, 10)
	snap := u.Snapshot(simBase.Add(10 * time.Second))
	if snap.Compressor != domain.On {
		t.Fatalf("Compressor = %s, want ON under COMPRESSOR_ONLY cooling", snap.Compressor)
	}
	if snap.PlantWaterRequest != domain.Off {
		t.Fatalf("PlantWaterRequest = %s, want OFF under COMPRESSOR_ONLY cooling", snap.PlantWaterRequest)
	}
}

func TestDehumidificationDriesTheAir(t *testing.T) {
	u := NewUnit("unit-t", 24, 70, 24, 0, discardLogger())
	if err := u.Apply(runningActions(domain.SeasonSummer, domain.CompressorCoolingOrDehumid, domain.CoolingWaterElseCompressor, domain.On)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	before := u.Snapshot(simBase).AmbientHumidityPct
	stepN(u, 60)
	snap := u.Snapshot(simBase.Add(time.Minute))

	if snap.AmbientHumidityPct >= before {
		t.Fatalf("humidity did not fall while dehumidifying: before %.2f after %.2f", before, snap.AmbientHumidityPct)
	}
	if snap.Dehumidification != domain.On {
		t.Fatalf("Dehumidification = %s, want ON", snap.Dehumidification)
	}
	if snap.Compressor != domain.On {
		t.Fatalf("Compressor = %s, want ON while dehumidifying", snap.Compressor)
	}
}

func TestDehumidificationGatedByCompressorManagement(t *testing.T) {
	u := NewUnit("unit-t", 24, 70, 24, 0, discardLogger())
	if err := u.Apply(runningActions(domain.SeasonSummer, domain.CompressorCoolingOnly, domain.CoolingWaterElseCompressor, domain.On)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	before := u.Snapshot(simBase).AmbientHumidityPct
	stepN(u, 60)
	snap := u.Snapshot(simBase.Add(time.Minute))

	if snap.AmbientHumidityPct < before {
		t.Fatalf("humidity fell although COOLING_ONLY forbids dehumidification: before %.2f after %.2f", before, snap.AmbientHumidityPct)
	}
	if snap.Dehumidification != domain.Off {
		t.Fatalf("Dehumidification = %s, want OFF under COOLING_ONLY", snap.Dehumidification)
	}
}

func TestDewPointAlarmHysteresis(t *testing.T) {
	u := NewUnit("unit-h", 28, 80, 28, 0, discardLogger())

	// Dew point at 28 degC / 80% sits around 24.2, above the default 18.
	u.Step(simBase)
	if got := u.Snapshot(simBase).DewPointAlarm; got != domain.On {
		t.Fatalf("DewPointAlarm = %s, want ON above the threshold", got)
	}

	// Inside the hysteresis band the alarm holds.
	if err := u.SetTargets(setpoints.Targets{TemperatureC: 22, HumidityPct: 50, DewPointC: 24.5, SpareNumber: 1}); err != nil {
		t.Fatalf("SetTargets: %v", err)
	}
	u.Step(simBase.Add(time.Second))
	if got := u.Snapshot(simBase.Add(time.Second)).DewPointAlarm; got != domain.On {
		t.Fatalf("DewPointAlarm = %s, want ON inside the hysteresis band", got)
	}

	// Well below the threshold it clears.
	if err := u.SetTargets(setpoints.Targets{TemperatureC: 22, HumidityPct: 50, DewPointC: 30, SpareNumber: 1}); err != nil {
		t.Fatalf("SetTargets: %v", err)
	}
	u.Step(simBase.Add(2 * time.Second))
	if got := u.Snapshot(simBase.Add(2 * time.Second)).DewPointAlarm; got != domain.Off {
		t.Fatalf("DewPointAlarm = %s, want OFF well below the threshold", got)
	}
}

func TestApplyRejectsOutOfDomainCommand(t *testing.T) {
	u := NewUnit("unit-t", 22, 50, 15, 0, discardLogger())

	bad := runningActions("MONSOON", domain.CompressorCoolingOrDehumid, domain.CoolingWaterElseCompressor, domain.Off)
	err := u.Apply(bad)
	if err == nil {
		t.Fatal("Apply accepted an out-of-domain season")
	}
	var ie *domain.InvalidInputError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InvalidInputError", err)
	}
	if ie.Component != domain.CompSeason {
		t.Fatalf("Component = %s, want %s", ie.Component, domain.CompSeason)
	}
	if got := u.Snapshot(simBase).DevicePower; got != domain.Off {
		t.Fatalf("DevicePower = %s, rejected command must not touch state", got)
	}
}

func TestSetTargetsRejectsOutOfRange(t *testing.T) {
	u := NewUnit("unit-t", 22, 50, 15, 0, discardLogger())

	err := u.SetTargets(setpoints.Targets{TemperatureC: 80, HumidityPct: 50, DewPointC: 18, SpareNumber: 1})
	if !errors.Is(err, setpoints.ErrSetpointRange) {
		t.Fatalf("error = %v, want ErrSetpointRange", err)
	}
	if got := u.Snapshot(simBase).TargetTemperatureC; got != 22 {
		t.Fatalf("TargetTemperatureC = %.2f, rejected targets must not stick", got)
	}
}

func TestSetDewPointMode(t *testing.T) {
	u := NewUnit("unit-t", 22, 50, 15, 0, discardLogger())

	if err := u.SetDewPointMode(domain.DewPointVariable); err != nil {
		t.Fatalf("SetDewPointMode: %v", err)
	}
	if got := u.Snapshot(simBase).DewPointManagement; got != domain.DewPointVariable {
		t.Fatalf("DewPointManagement = %s, want VARIABLE", got)
	}
	if err := u.SetDewPointMode("WEEKLY"); err == nil {
		t.Fatal("SetDewPointMode accepted an invalid mode")
	}
}

func TestSnapshotEncodesComplete(t *testing.T) {
	u := NewUnit("unit-w", 21, 55, 12, 5, discardLogger())
	u.Step(simBase)

	snap := u.Snapshot(simBase)
	env := telemetry.Encode(snap)
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back telemetry.Envelope
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, missing, err := back.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing components in a full reading: %v", missing)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("decoded snapshot invalid: %v", err)
	}
	if got.UnitID != "unit-w" {
		t.Fatalf("UnitID = %q, want unit-w", got.UnitID)
	}
}
