// v1
// internal/domain/component.go
package domain

// Kind classifies a component by the role it plays on the unit.
type Kind string

const (
	KindSwitch   Kind = "SWITCH"
	KindSetPoint Kind = "SET_POINT"
	KindFlag     Kind = "FLAG"
	KindSensor   Kind = "SENSOR"
)

// Access tells whether the engine may command the component or only read it.
type Access string

const (
	ReadWrite Access = "RW"
	ReadOnly  Access = "RO"
)

// Component names are the stable identifiers used on the wire, in the journal
// and in error reports. They never change once a unit firmware speaks them.
const (
	CompDevicePower        = "device_power"
	CompSeason             = "season"
	CompCompressorMgmt     = "compressor_management"
	CompCoolingMgmt        = "cooling_management"
	CompRecirculationVent  = "recirculation_vent"
	CompDewPointMgmt       = "dew_point_management"
	CompDehumidifyRequest  = "dehumidification_request"
	CompSpareNumber        = "spare_number"
	CompTargetTemperature  = "ambient_temperature_target"
	CompTargetHumidity     = "ambient_humidity_target"
	CompTargetDewPoint     = "dew_point_temperature_target"
	CompCompressor         = "compressor"
	CompFreeCooling        = "free_cooling"
	CompPlantWaterRequest  = "plant_water_request"
	CompHeatingRequest     = "heating_request"
	CompCoolingRequest     = "cooling_request"
	CompDehumidification   = "dehumidification"
	CompDewPointAlarm      = "dew_point_alarm"
	CompWaterTemperature   = "water_temperature"
	CompAmbientTemperature = "ambient_temperature"
	CompAmbientHumidity    = "ambient_humidity"
	CompOutdoorTemperature = "ambient_outdoor_temperature"
)

// Numeric domain bounds shared by validation, the setpoint store and the HTTP
// surface. Temperatures are degrees Celsius, humidity is percent.
const (
	SpareNumberMin = 1
	SpareNumberMax = 5

	TargetTempMinC = -10.0
	TargetTempMaxC = 40.0

	HumidityMinPct = 0.0
	HumidityMaxPct = 100.0

	TargetDewPointMinC = 10.0
	TargetDewPointMaxC = 30.0

	SensorTempMinC = 0.0
	SensorTempMaxC = 40.0
)

// Spec describes one component of the fixed unit model.
type Spec struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Access Access `json:"access"`
}

var registry = []Spec{
	{CompDevicePower, KindSwitch, ReadWrite},
	{CompSeason, KindSwitch, ReadWrite},
	{CompCompressorMgmt, KindSwitch, ReadWrite},
	{CompCoolingMgmt, KindSwitch, ReadWrite},
	{CompRecirculationVent, KindSwitch, ReadWrite},
	{CompDewPointMgmt, KindSwitch, ReadWrite},
	{CompDehumidifyRequest, KindSwitch, ReadWrite},
	{CompSpareNumber, KindSetPoint, ReadOnly},
	{CompTargetTemperature, KindSetPoint, ReadOnly},
	{CompTargetHumidity, KindSetPoint, ReadOnly},
	{CompTargetDewPoint, KindSetPoint, ReadOnly},
	{CompCompressor, KindFlag, ReadOnly},
	{CompFreeCooling, KindFlag, ReadOnly},
	{CompPlantWaterRequest, KindFlag, ReadOnly},
	{CompHeatingRequest, KindFlag, ReadOnly},
	{CompCoolingRequest, KindFlag, ReadOnly},
	{CompDehumidification, KindFlag, ReadOnly},
	{CompDewPointAlarm, KindFlag, ReadOnly},
	{CompWaterTemperature, KindSensor, ReadOnly},
	{CompAmbientTemperature, KindSensor, ReadOnly},
	{CompAmbientHumidity, KindSensor, ReadOnly},
	{CompOutdoorTemperature, KindSensor, ReadOnly},
}

// Components returns the full component model in declaration order. Callers
// receive a copy so the registry itself stays immutable.
func Components() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// SpecFor looks up a component by name. The boolean reports whether the name
// belongs to the model.
func SpecFor(name string) (Spec, bool) {
	for _, s := range registry {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}
