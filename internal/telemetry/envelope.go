// v1
// internal/telemetry/envelope.go
package telemetry

import (
	"errors"
	"fmt"
	"time"

	"vmcpilot/engine/internal/domain"
)

const SchemaVersionV1 = "vmc.telemetry.v1"

// Envelope is the wire form of one unit reading. Every component travels as
// a pointer so a unit that drops a sensor produces an envelope with that
// field absent instead of a zero that looks like data.
type Envelope struct {
	SchemaVersion string    `json:"schemaVersion"`
	UnitID        string    `json:"unitId"`
	Timestamp     time.Time `json:"timestamp"`
	Reading       Reading   `json:"reading"`
}

type Reading struct {
	DevicePower          *string  `json:"devicePower,omitempty"`
	Season               *string  `json:"season,omitempty"`
	CompressorManagement *string  `json:"compressorManagement,omitempty"`
	CoolingManagement    *string  `json:"coolingManagement,omitempty"`
	RecirculationVent    *string  `json:"recirculationVent,omitempty"`
	DewPointManagement   *string  `json:"dewPointManagement,omitempty"`
	SpareNumber          *int     `json:"spareNumber,omitempty"`
	TargetTemperatureC   *float64 `json:"targetTemperatureC,omitempty"`
	TargetHumidityPct    *float64 `json:"targetHumidityPct,omitempty"`
	TargetDewPointC      *float64 `json:"targetDewPointC,omitempty"`
	Compressor           *string  `json:"compressor,omitempty"`
	FreeCooling          *string  `json:"freeCooling,omitempty"`
	PlantWaterRequest    *string  `json:"plantWaterRequest,omitempty"`
	HeatingRequest       *string  `json:"heatingRequest,omitempty"`
	CoolingRequest       *string  `json:"coolingRequest,omitempty"`
	Dehumidification     *string  `json:"dehumidification,omitempty"`
	DewPointAlarm        *string  `json:"dewPointAlarm,omitempty"`
	WaterTemperatureC    *float64 `json:"waterTemperatureC,omitempty"`
	AmbientTemperatureC  *float64 `json:"ambientTemperatureC,omitempty"`
	AmbientHumidityPct   *float64 `json:"ambientHumidityPct,omitempty"`
	OutdoorTemperatureC  *float64 `json:"outdoorTemperatureC,omitempty"`
}

// Encode wraps a snapshot for publication. All fields are present; only a
// unit that genuinely lost a component emits partial envelopes.
func Encode(snap domain.Snapshot) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersionV1,
		UnitID:        snap.UnitID,
		Timestamp:     snap.TakenAt.UTC(),
		Reading: Reading{
			DevicePower:          sp(string(snap.DevicePower)),
			Season:               sp(string(snap.Season)),
			CompressorManagement: sp(string(snap.CompressorManagement)),
			CoolingManagement:    sp(string(snap.CoolingManagement)),
			RecirculationVent:    sp(string(snap.RecirculationVent)),
			DewPointManagement:   sp(string(snap.DewPointManagement)),
			SpareNumber:          ip(snap.SpareNumber),
			TargetTemperatureC:   fp(snap.TargetTemperatureC),
			TargetHumidityPct:    fp(snap.TargetHumidityPct),
			TargetDewPointC:      fp(snap.TargetDewPointC),
			Compressor:           sp(string(snap.Compressor)),
			FreeCooling:          sp(string(snap.FreeCooling)),
			PlantWaterRequest:    sp(string(snap.PlantWaterRequest)),
			HeatingRequest:       sp(string(snap.HeatingRequest)),
			CoolingRequest:       sp(string(snap.CoolingRequest)),
			Dehumidification:     sp(string(snap.Dehumidification)),
			DewPointAlarm:        sp(string(snap.DewPointAlarm)),
			WaterTemperatureC:    fp(snap.WaterTemperatureC),
			AmbientTemperatureC:  fp(snap.AmbientTemperatureC),
			AmbientHumidityPct:   fp(snap.AmbientHumidityPct),
			OutdoorTemperatureC:  fp(snap.OutdoorTemperatureC),
		},
	}
}

// Decode turns an envelope back into a snapshot and reports which components
// were absent. Values are carried over verbatim; domain validation stays
// with the consumer of the snapshot.
func (e Envelope) Decode() (domain.Snapshot, []string, error) {
	if e.SchemaVersion != SchemaVersionV1 {
		return domain.Snapshot{}, nil, fmt.Errorf("unsupported schema version %q", e.SchemaVersion)
	}
	if e.UnitID == "" {
		return domain.Snapshot{}, nil, errors.New("unitId missing or empty")
	}
	snap := domain.Snapshot{UnitID: e.UnitID, TakenAt: e.Timestamp.UTC()}
	var missing []string

	r := e.Reading
	if r.DevicePower != nil {
		snap.DevicePower = domain.Toggle(*r.DevicePower)
	} else {
		missing = append(missing, domain.CompDevicePower)
	}
	if r.Season != nil {
		snap.Season = domain.Season(*r.Season)
	} else {
		missing = append(missing, domain.CompSeason)
	}
	if r.CompressorManagement != nil {
		snap.CompressorManagement = domain.CompressorMode(*r.CompressorManagement)
	} else {
		missing = append(missing, domain.CompCompressorMgmt)
	}
	if r.CoolingManagement != nil {
		snap.CoolingManagement = domain.CoolingMode(*r.CoolingManagement)
	} else {
		missing = append(missing, domain.CompCoolingMgmt)
	}
	if r.RecirculationVent != nil {
		snap.RecirculationVent = domain.Toggle(*r.RecirculationVent)
	} else {
		missing = append(missing, domain.CompRecirculationVent)
	}
	if r.DewPointManagement != nil {
		snap.DewPointManagement = domain.DewPointMode(*r.DewPointManagement)
	} else {
		missing = append(missing, domain.CompDewPointMgmt)
	}
	if r.SpareNumber != nil {
		snap.SpareNumber = *r.SpareNumber
	} else {
		missing = append(missing, domain.CompSpareNumber)
	}
	if r.TargetTemperatureC != nil {
		snap.TargetTemperatureC = *r.TargetTemperatureC
	} else {
		missing = append(missing, domain.CompTargetTemperature)
	}
	if r.TargetHumidityPct != nil {
		snap.TargetHumidityPct = *r.TargetHumidityPct
	} else {
		missing = append(missing, domain.CompTargetHumidity)
	}
	if r.TargetDewPointC != nil {
		snap.TargetDewPointC = *r.TargetDewPointC
	} else {
		missing = append(missing, domain.CompTargetDewPoint)
	}
	if r.Compressor != nil {
		snap.Compressor = domain.Toggle(*r.Compressor)
	} else {
		missing = append(missing, domain.CompCompressor)
	}
	if r.FreeCooling != nil {
		snap.FreeCooling = domain.Toggle(*r.FreeCooling)
	} else {
		missing = append(missing, domain.CompFreeCooling)
	}
	if r.PlantWaterRequest != nil {
		snap.PlantWaterRequest = domain.Toggle(*r.PlantWaterRequest)
	} else {
		missing = append(missing, domain.CompPlantWaterRequest)
	}
	if r.HeatingRequest != nil {
		snap.HeatingRequest = domain.Toggle(*r.HeatingRequest)
	} else {
		missing = append(missing, domain.CompHeatingRequest)
	}
	if r.CoolingRequest != nil {
		snap.CoolingRequest = domain.Toggle(*r.CoolingRequest)
	} else {
		missing = append(missing, domain.CompCoolingRequest)
	}
	if r.Dehumidification != nil {
		snap.Dehumidification = domain.Toggle(*r.Dehumidification)
	} else {
		missing = append(missing, domain.CompDehumidification)
	}
	if r.DewPointAlarm != nil {
		snap.DewPointAlarm = domain.Toggle(*r.DewPointAlarm)
	} else {
		missing = append(missing, domain.CompDewPointAlarm)
	}
	if r.WaterTemperatureC != nil {
		snap.WaterTemperatureC = *r.WaterTemperatureC
	} else {
		missing = append(missing, domain.CompWaterTemperature)
	}
	if r.AmbientTemperatureC != nil {
		snap.AmbientTemperatureC = *r.AmbientTemperatureC
	} else {
		missing = append(missing, domain.CompAmbientTemperature)
	}
	if r.AmbientHumidityPct != nil {
		snap.AmbientHumidityPct = *r.AmbientHumidityPct
	} else {
		missing = append(missing, domain.CompAmbientHumidity)
	}
	if r.OutdoorTemperatureC != nil {
		snap.OutdoorTemperatureC = *r.OutdoorTemperatureC
	} else {
		missing = append(missing, domain.CompOutdoorTemperature)
	}
	return snap, missing, nil
}

func sp(v string) *string   { return &v }
func ip(v int) *int         { return &v }
func fp(v float64) *float64 { return &v }
