// v1
// internal/domain/snapshot.go
package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Snapshot is the full component state of one unit at one instant, assembled
// on the historian side and consumed exactly once per control cycle. It is a
// value type; the evaluation that receives it owns it outright.
type Snapshot struct {
	UnitID  string    `json:"unitId"`
	TakenAt time.Time `json:"takenAt"`

	DevicePower          Toggle         `json:"devicePower"`
	Season               Season         `json:"season"`
	CompressorManagement CompressorMode `json:"compressorManagement"`
	CoolingManagement    CoolingMode    `json:"coolingManagement"`
	RecirculationVent    Toggle         `json:"recirculationVent"`
	DewPointManagement   DewPointMode   `json:"dewPointManagement"`

	SpareNumber        int     `json:"spareNumber"`
	TargetTemperatureC float64 `json:"targetTemperatureC"`
	TargetHumidityPct  float64 `json:"targetHumidityPct"`
	TargetDewPointC    float64 `json:"targetDewPointC"`

	Compressor        Toggle `json:"compressor"`
	FreeCooling       Toggle `json:"freeCooling"`
	PlantWaterRequest Toggle `json:"plantWaterRequest"`
	HeatingRequest    Toggle `json:"heatingRequest"`
	CoolingRequest    Toggle `json:"coolingRequest"`
	Dehumidification  Toggle `json:"dehumidification"`
	DewPointAlarm     Toggle `json:"dewPointAlarm"`

	WaterTemperatureC   float64 `json:"waterTemperatureC"`
	AmbientTemperatureC float64 `json:"ambientTemperatureC"`
	AmbientHumidityPct  float64 `json:"ambientHumidityPct"`
	OutdoorTemperatureC float64 `json:"outdoorTemperatureC"`
}

// Validate checks every component value against its declared domain, in
// registry order, and returns an InvalidInputError for the first violation.
func (s Snapshot) Validate() error {
	if !s.DevicePower.Valid() {
		return invalid(CompDevicePower, string(s.DevicePower))
	}
	if !s.Season.Valid() {
		return invalid(CompSeason, string(s.Season))
	}
	if !s.CompressorManagement.Valid() {
		return invalid(CompCompressorMgmt, string(s.CompressorManagement))
	}
	if !s.CoolingManagement.Valid() {
		return invalid(CompCoolingMgmt, string(s.CoolingManagement))
	}
	if !s.RecirculationVent.Valid() {
		return invalid(CompRecirculationVent, string(s.RecirculationVent))
	}
	if !s.DewPointManagement.Valid() {
		return invalid(CompDewPointMgmt, string(s.DewPointManagement))
	}
	if s.SpareNumber < SpareNumberMin || s.SpareNumber > SpareNumberMax {
		return invalid(CompSpareNumber, strconv.Itoa(s.SpareNumber))
	}
	if s.TargetTemperatureC < TargetTempMinC || s.TargetTemperatureC > TargetTempMaxC {
		return invalidF(CompTargetTemperature, s.TargetTemperatureC)
	}
	if s.TargetHumidityPct < HumidityMinPct || s.TargetHumidityPct > HumidityMaxPct {
		return invalidF(CompTargetHumidity, s.TargetHumidityPct)
	}
	if s.TargetDewPointC < TargetDewPointMinC || s.TargetDewPointC > TargetDewPointMaxC {
		return invalidF(CompTargetDewPoint, s.TargetDewPointC)
	}
	for _, f := range []struct {
		name string
		val  Toggle
	}{
		{CompCompressor, s.Compressor},
		{CompFreeCooling, s.FreeCooling},
		{CompPlantWaterRequest, s.PlantWaterRequest},
		{CompHeatingRequest, s.HeatingRequest},
		{CompCoolingRequest, s.CoolingRequest},
		{CompDehumidification, s.Dehumidification},
		{CompDewPointAlarm, s.DewPointAlarm},
	} {
		if !f.val.Valid() {
			return invalid(f.name, string(f.val))
		}
	}
	if s.WaterTemperatureC < SensorTempMinC || s.WaterTemperatureC > SensorTempMaxC {
		return invalidF(CompWaterTemperature, s.WaterTemperatureC)
	}
	if s.AmbientTemperatureC < SensorTempMinC || s.AmbientTemperatureC > SensorTempMaxC {
		return invalidF(CompAmbientTemperature, s.AmbientTemperatureC)
	}
	if s.AmbientHumidityPct < HumidityMinPct || s.AmbientHumidityPct > HumidityMaxPct {
		return invalidF(CompAmbientHumidity, s.AmbientHumidityPct)
	}
	if s.OutdoorTemperatureC < SensorTempMinC || s.OutdoorTemperatureC > SensorTempMaxC {
		return invalidF(CompOutdoorTemperature, s.OutdoorTemperatureC)
	}
	return nil
}

// Prediction is the forecast for the next control interval. Values are on the
// ambient sensor scales.
type Prediction struct {
	TemperatureC float64 `json:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct"`
}

// Validate rejects forecasts outside the ambient sensor domains so a broken
// model can never push the engine into undefined territory.
func (p Prediction) Validate() error {
	if p.TemperatureC < SensorTempMinC || p.TemperatureC > SensorTempMaxC {
		return invalidF("prediction.temperature", p.TemperatureC)
	}
	if p.HumidityPct < HumidityMinPct || p.HumidityPct > HumidityMaxPct {
		return invalidF("prediction.humidity", p.HumidityPct)
	}
	return nil
}

func invalid(component, value string) error {
	return &InvalidInputError{Component: component, Value: value}
}

func invalidF(component string, value float64) error {
	return &InvalidInputError{Component: component, Value: fmt.Sprintf("%.2f", value)}
}
