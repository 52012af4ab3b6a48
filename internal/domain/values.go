// v1
// internal/domain/values.go
package domain

import "fmt"

// Toggle is the two-state value carried by binary switches and flags.
type Toggle string

const (
	On  Toggle = "ON"
	Off Toggle = "OFF"
)

// Valid reports whether the toggle holds one of its two legal values.
func (t Toggle) Valid() bool { return t == On || t == Off }

// Season is the treatment mode commanded through the Season switch. The
// automatic engine only ever emits WINTER or SUMMER; MIDDLE_SEASON exists in
// the switch domain because the unit accepts it under manual operation.
type Season string

const (
	SeasonWinter Season = "WINTER"
	SeasonSummer Season = "SUMMER"
	SeasonMiddle Season = "MIDDLE_SEASON"
)

func (s Season) Valid() bool {
	return s == SeasonWinter || s == SeasonSummer || s == SeasonMiddle
}

// Automatic reports whether the season is one the engine may emit on its own.
func (s Season) Automatic() bool { return s == SeasonWinter || s == SeasonSummer }

// ParseSeason maps a configuration or wire string onto a Season value.
func ParseSeason(raw string) (Season, error) {
	s := Season(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid season %q", raw)
	}
	return s, nil
}

// CompressorMode selects which duties the compressor is allowed to serve.
type CompressorMode string

const (
	CompressorCoolingOnly      CompressorMode = "COOLING_ONLY"
	CompressorDehumidifyOnly   CompressorMode = "DEHUMIDIFICATION_ONLY"
	CompressorCoolingOrDehumid CompressorMode = "COOLING_OR_DEHUMIDIFICATION"
)

func (m CompressorMode) Valid() bool {
	return m == CompressorCoolingOnly || m == CompressorDehumidifyOnly || m == CompressorCoolingOrDehumid
}

// AllowsDehumidification reports whether the mode permits the compressor to
// serve a dehumidification request.
func (m CompressorMode) AllowsDehumidification() bool {
	return m == CompressorDehumidifyOnly || m == CompressorCoolingOrDehumid
}

func ParseCompressorMode(raw string) (CompressorMode, error) {
	m := CompressorMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("invalid compressor management %q", raw)
	}
	return m, nil
}

// CoolingMode selects the cold source used while cooling.
type CoolingMode string

const (
	CoolingCompressorOnly      CoolingMode = "COMPRESSOR_ONLY"
	CoolingWaterOnly           CoolingMode = "WATER_ONLY"
	CoolingWaterElseCompressor CoolingMode = "WATER_ELSE_COMPRESSOR"
)

func (m CoolingMode) Valid() bool {
	return m == CoolingCompressorOnly || m == CoolingWaterOnly || m == CoolingWaterElseCompressor
}

func ParseCoolingMode(raw string) (CoolingMode, error) {
	m := CoolingMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("invalid cooling management %q", raw)
	}
	return m, nil
}

// DewPointMode selects how the unit derives its dew point threshold. The
// automatic engine only supports FIXED; VARIABLE units must be reconfigured
// before automatic control is enabled.
type DewPointMode string

const (
	DewPointFixed    DewPointMode = "FIXED"
	DewPointVariable DewPointMode = "VARIABLE"
)

func (m DewPointMode) Valid() bool { return m == DewPointFixed || m == DewPointVariable }

func ParseDewPointMode(raw string) (DewPointMode, error) {
	m := DewPointMode(raw)
	if !m.Valid() {
		return "", fmt.Errorf("invalid dew point management %q", raw)
	}
	return m, nil
}
