// v1
// internal/sim/unit.go
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/psychro"
	"vmcpilot/engine/internal/setpoints"
)

// Thermal and moisture coefficients, tuned so a unit converges within a few
// simulated minutes at the default sample rates.
const (
	leakAlpha    = 0.0020 // indoor drift toward outdoor, fraction per second
	ventBeta     = 0.0060 // extra drift with the recirculation vent open
	heatRateC    = 0.0250 // heating battery, degC per second
	compCoolC    = 0.0300 // compressor cooling, degC per second
	waterCoolC   = 0.0150 // plant water cooling, degC per second
	freeCoolC    = 0.0080 // free cooling with favorable outdoor air
	dehumidRate  = 0.0700 // moisture removal, percentage points per second
	moistureRise = 0.0090 // occupancy moisture load, percentage points per second
	waterReturnC = 12.0   // plant water loop setpoint
	alarmClearC  = 0.5    // dew point hysteresis below the threshold
)

// waterAdvantageC is how much colder than the room the plant water must be
// before WATER_ELSE_COMPRESSOR stays on water.
const waterAdvantageC = 2.0

// Unit models one ventilation unit: the writable switches the engine
// commands, the derived actuator flags, and a small thermal model that reacts
// to them. All methods are safe for concurrent use.
type Unit struct {
	id  string
	log *slog.Logger

	mu sync.Mutex

	devicePower       domain.Toggle
	season            domain.Season
	compressorMgmt    domain.CompressorMode
	coolingMgmt       domain.CoolingMode
	recirculationVent domain.Toggle
	dewPointMgmt      domain.DewPointMode
	dehumidifyRequest domain.Toggle
	targets           setpoints.Targets

	tIn    float64
	rhIn   float64
	tWater float64
	tOut   float64

	compressor  domain.Toggle
	freeCooling domain.Toggle
	plantWater  domain.Toggle
	heatingReq  domain.Toggle
	coolingReq  domain.Toggle
	dehumidify  domain.Toggle
	alarm       domain.Toggle

	outdoorBase  float64
	outdoorSwing float64
	lastStep     time.Time
}

// NewUnit builds a unit at rest in winter mode with everything off.
func NewUnit(id string, initialTempC, initialHumidityPct, outdoorBaseC, outdoorSwingC float64, logger *slog.Logger) *Unit {
	return &Unit{
		id:                id,
		log:               logger,
		devicePower:       domain.Off,
		season:            domain.SeasonWinter,
		compressorMgmt:    domain.CompressorCoolingOrDehumid,
		coolingMgmt:       domain.CoolingWaterElseCompressor,
		recirculationVent: domain.Off,
		dewPointMgmt:      domain.DewPointFixed,
		dehumidifyRequest: domain.Off,
		targets:           setpoints.Targets{TemperatureC: 22, HumidityPct: 50, DewPointC: 18, SpareNumber: 1},
		tIn:               initialTempC,
		rhIn:              initialHumidityPct,
		tWater:            waterReturnC,
		tOut:              outdoorBaseC,
		compressor:        domain.Off,
		freeCooling:       domain.Off,
		plantWater:        domain.Off,
		heatingReq:        domain.Off,
		coolingReq:        domain.Off,
		dehumidify:        domain.Off,
		alarm:             domain.Off,
		outdoorBase:       outdoorBaseC,
		outdoorSwing:      outdoorSwingC,
	}
}

// Step advances the model to now. Outdoor temperature follows a diurnal sine,
// coldest around midnight, and the conditioning equipment reacts to the
// commanded switches.
func (u *Unit) Step(now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	dt := now.Sub(u.lastStep).Seconds()
	if u.lastStep.IsZero() || dt <= 0 || dt > 60 {
		dt = 1
	}
	u.lastStep = now

	secOfDay := float64(now.Hour()*3600 + now.Minute()*60 + now.Second())
	u.tOut = u.outdoorBase + u.outdoorSwing*math.Sin(2*math.Pi*(secOfDay/86400.0-0.25))

	u.tIn += leakAlpha * (u.tOut - u.tIn) * dt
	if u.recirculationVent == domain.On {
		u.tIn += ventBeta * (u.tOut - u.tIn) * dt
	}
	u.rhIn += moistureRise * dt
	u.tWater += leakAlpha * (waterReturnC - u.tWater) * dt

	u.heatingReq = domain.Off
	u.coolingReq = domain.Off
	u.compressor = domain.Off
	u.plantWater = domain.Off
	u.freeCooling = domain.Off
	u.dehumidify = domain.Off

	if u.devicePower == domain.On {
		switch {
		case u.season == domain.SeasonWinter && u.tIn < u.targets.TemperatureC:
			u.heatingReq = domain.On
			u.tIn += heatRateC * dt
		case u.season == domain.SeasonSummer && u.tIn > u.targets.TemperatureC:
			u.coolingReq = domain.On
			u.cool(dt)
		}

		if u.dehumidifyRequest == domain.On && u.compressorMgmt.AllowsDehumidification() {
			u.dehumidify = domain.On
			u.compressor = domain.On
			u.rhIn -= dehumidRate * dt
		}
	}

	if u.rhIn > 100 {
		u.rhIn = 100
	}
	if u.rhIn < 0 {
		u.rhIn = 0
	}

	dew := psychro.DewPoint(u.tIn, u.rhIn)
	if u.dewPointMgmt == domain.DewPointFixed {
		switch {
		case dew > u.targets.DewPointC:
			if u.alarm == domain.Off {
				u.log.Warn("dew point alarm raised",
					slog.String("unit", u.id),
					slog.Float64("dewPointC", dew),
					slog.Float64("thresholdC", u.targets.DewPointC))
			}
			u.alarm = domain.On
		case dew < u.targets.DewPointC-alarmClearC:
			if u.alarm == domain.On {
				u.log.Info("dew point alarm cleared",
					slog.String("unit", u.id),
					slog.Float64("dewPointC", dew))
			}
			u.alarm = domain.Off
		}
	}
}

// cool applies the cold source selected by cooling management. Water serves
// only while it holds a real advantage over the room air.
func (u *Unit) cool(dt float64) {
	waterUseful := u.tWater < u.tIn-waterAdvantageC
	switch u.coolingMgmt {
	case domain.CoolingCompressorOnly:
		u.compressor = domain.On
		u.tIn -= compCoolC * dt
	case domain.CoolingWaterOnly:
		if waterUseful {
			u.plantWater = domain.On
			u.tIn -= waterCoolC * dt
		}
	case domain.CoolingWaterElseCompressor:
		if waterUseful {
			u.plantWater = domain.On
			u.tIn -= waterCoolC * dt
		} else {
			u.compressor = domain.On
			u.tIn -= compCoolC * dt
		}
	}
	if u.freeCoolingUseful() {
		u.freeCooling = domain.On
		u.tIn -= freeCoolC * dt
	}
}

func (u *Unit) freeCoolingUseful() bool {
	return u.tOut < u.tIn-1
}

// Apply takes a command set from the engine. The whole set is validated
// first; a single out-of-domain value rejects the command without touching
// any switch.
func (u *Unit) Apply(actions domain.ActionSet) error {
	if err := actions.Validate(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.devicePower = actions.DevicePower
	u.season = actions.Season
	u.compressorMgmt = actions.CompressorManagement
	u.coolingMgmt = actions.CoolingManagement
	u.recirculationVent = actions.RecirculationVent
	u.dehumidifyRequest = actions.DehumidificationRequest
	u.log.Info("command applied",
		slog.String("unit", u.id),
		slog.String("season", string(actions.Season)),
		slog.String("dehumidificationRequest", string(actions.DehumidificationRequest)))
	return nil
}

// SetTargets replaces the operator targets pushed over the setpoint stream.
func (u *Unit) SetTargets(t setpoints.Targets) error {
	if err := t.Validate(); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.targets = t
	u.log.Info("targets updated",
		slog.String("unit", u.id),
		slog.Float64("temperatureC", t.TemperatureC),
		slog.Float64("humidityPct", t.HumidityPct),
		slog.Float64("dewPointC", t.DewPointC))
	return nil
}

// SetDewPointMode flips the threshold mode, used to exercise the engine's
// rejection of VARIABLE units.
func (u *Unit) SetDewPointMode(m domain.DewPointMode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid dew point mode %q", m)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dewPointMgmt = m
	return nil
}

// Snapshot renders the unit's full component state. Sensor values carry a
// hair of noise so consecutive readings differ the way real probes do.
func (u *Unit) Snapshot(now time.Time) domain.Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	return domain.Snapshot{
		UnitID:               u.id,
		TakenAt:              now.UTC(),
		DevicePower:          u.devicePower,
		Season:               u.season,
		CompressorManagement: u.compressorMgmt,
		CoolingManagement:    u.coolingMgmt,
		RecirculationVent:    u.recirculationVent,
		DewPointManagement:   u.dewPointMgmt,
		SpareNumber:          u.targets.SpareNumber,
		TargetTemperatureC:   u.targets.TemperatureC,
		TargetHumidityPct:    u.targets.HumidityPct,
		TargetDewPointC:      u.targets.DewPointC,
		Compressor:           u.compressor,
		FreeCooling:          u.freeCooling,
		PlantWaterRequest:    u.plantWater,
		HeatingRequest:       u.heatingReq,
		CoolingRequest:       u.coolingReq,
		Dehumidification:     u.dehumidify,
		DewPointAlarm:        u.alarm,
		WaterTemperatureC:    clampSensor(u.tWater+jitter(), domain.SensorTempMinC, domain.SensorTempMaxC),
		AmbientTemperatureC:  clampSensor(u.tIn+jitter(), domain.SensorTempMinC, domain.SensorTempMaxC),
		AmbientHumidityPct:   clampSensor(u.rhIn+jitter(), domain.HumidityMinPct, domain.HumidityMaxPct),
		OutdoorTemperatureC:  clampSensor(u.tOut+jitter(), domain.SensorTempMinC, domain.SensorTempMaxC),
	}
}

func jitter() float64 {
	return (rand.Float64() - 0.5) * 0.1
}

func clampSensor(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return math.Round(v*100) / 100
}
