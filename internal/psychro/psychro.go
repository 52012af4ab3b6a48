// v1
// internal/psychro/psychro.go
package psychro

import (
	"errors"
	"math"
	"sort"

	"vmcpilot/engine/internal/domain"
)

// Magnus coefficients for dew point over water, valid for the ambient range
// the units operate in.
const (
	magnusB = 17.62
	magnusC = 243.12
)

// DewPoint returns the dew point in Celsius for the given dry-bulb
// temperature and relative humidity. Humidity is clamped away from zero so
// the logarithm stays defined.
func DewPoint(tempC, humidityPct float64) float64 {
	rh := humidityPct / 100.0
	if rh < 0.001 {
		rh = 0.001
	}
	gamma := math.Log(rh) + magnusB*tempC/(magnusC+tempC)
	return magnusC * gamma / (magnusB - gamma)
}

// HeatIndex returns the Steadman apparent temperature in Celsius.
func HeatIndex(tempC, humidityPct float64) float64 {
	t := tempC*9/5 + 32
	hi := 0.5 * (t + 61.0 + ((t - 68.0) * 1.2) + (humidityPct * 0.094))
	return (hi - 32) * 5 / 9
}

// Perception is the human comfort band for a dew point value.
// Bands follow <https://en.wikipedia.org/wiki/Dew_point>.
type Perception string

const (
	Dry                    Perception = "DRY"
	VeryComfortable        Perception = "VERY_COMFORTABLE"
	Comfortable            Perception = "COMFORTABLE"
	OkButHumid             Perception = "OK_BUT_HUMID"
	SomewhatUncomfortable  Perception = "SOMEWHAT_UNCOMFORTABLE"
	QuiteUncomfortable     Perception = "QUITE_UNCOMFORTABLE"
	ExtremelyUncomfortable Perception = "EXTREMELY_UNCOMFORTABLE"
	SeverelyHigh           Perception = "SEVERELY_HIGH"
)

// PerceptionFor maps a dew point in Celsius onto its comfort band.
func PerceptionFor(dewPointC float64) Perception {
	switch {
	case dewPointC < 10:
		return Dry
	case dewPointC < 13:
		return VeryComfortable
	case dewPointC < 16:
		return Comfortable
	case dewPointC < 18:
		return OkButHumid
	case dewPointC < 21:
		return SomewhatUncomfortable
	case dewPointC < 24:
		return QuiteUncomfortable
	case dewPointC < 26:
		return ExtremelyUncomfortable
	default:
		return SeverelyHigh
	}
}

// ComfortZone bounds the ambient conditions considered comfortable for a
// treatment season. Deltas describe the tolerated excursion around the band
// before the condition counts as out of zone.
type ComfortZone struct {
	TempMinC     float64 `json:"tempMinC"`
	TempMaxC     float64 `json:"tempMaxC"`
	HumMinPct    float64 `json:"humMinPct"`
	HumMaxPct    float64 `json:"humMaxPct"`
	DeltaTempC   float64 `json:"deltaTempC"`
	DeltaHumPct  float64 `json:"deltaHumPct"`
	DewPointMaxC float64 `json:"dewPointMaxC"`
}

// The middle season band merges the transitional shoulder months into the
// single manual mode the unit exposes.
var comfortZones = map[domain.Season]ComfortZone{
	domain.SeasonWinter: {TempMinC: 17.5, TempMaxC: 21.5, HumMinPct: 40, HumMaxPct: 60, DeltaTempC: 0.5, DeltaHumPct: 1.0, DewPointMaxC: 18},
	domain.SeasonSummer: {TempMinC: 24.0, TempMaxC: 27.0, HumMinPct: 40, HumMaxPct: 55, DeltaTempC: 0.7, DeltaHumPct: 1.6, DewPointMaxC: 19},
	domain.SeasonMiddle: {TempMinC: 18.0, TempMaxC: 24.0, HumMinPct: 45, HumMaxPct: 65, DeltaTempC: 0.7, DeltaHumPct: 1.4, DewPointMaxC: 18},
}

// ZoneFor returns the comfort zone for a season. The boolean reports whether
// the season has a zone defined.
func ZoneFor(season domain.Season) (ComfortZone, bool) {
	z, ok := comfortZones[season]
	return z, ok
}

// InZone reports whether the ambient pair sits inside the zone once the
// tolerated deltas are applied.
func (z ComfortZone) InZone(tempC, humidityPct float64) bool {
	if tempC < z.TempMinC-z.DeltaTempC || tempC > z.TempMaxC+z.DeltaTempC {
		return false
	}
	if humidityPct < z.HumMinPct-z.DeltaHumPct || humidityPct > z.HumMaxPct+z.DeltaHumPct {
		return false
	}
	return true
}

// WeightedAverage combines sampled values with their weights, typically area
// square meters when merging per-room sensors into one ambient figure.
func WeightedAverage(values, weights []float64) (float64, error) {
	if len(values) != len(weights) {
		return 0, errors.New("values and weights length mismatch")
	}
	var products, total float64
	for i, v := range values {
		products += v * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return 0, errors.New("weights sum to zero")
	}
	return products / total, nil
}

// TempRange is one day's forecast or observed temperature span.
type TempRange struct {
	MinC float64 `json:"minC"`
	MaxC float64 `json:"maxC"`
}

// SeasonScore ranks how well a season's comfort band fits a run of days.
type SeasonScore struct {
	Season domain.Season `json:"season"`
	Score  float64       `json:"score"`
}

// ScoreSeasons weighs each day against every season band, giving nearer days
// more weight, and returns the seasons in descending fit order. The score for
// a day is inversely proportional to the deviation of the day's span from the
// band midpoint.
func ScoreSeasons(days []TempRange) []SeasonScore {
	totals := map[domain.Season]float64{}
	for i, day := range days {
		weight := 1.0 - float64(i)*0.1
		if weight <= 0 {
			break
		}
		for season, zone := range comfortZones {
			lo := zone.TempMinC - zone.DeltaTempC
			hi := zone.TempMaxC + zone.DeltaTempC
			mid := (lo + hi) / 2
			minDev := math.Abs(day.MinC - mid)
			maxDev := math.Abs(day.MaxC - mid)
			totals[season] += weight * (1 / (1 + minDev + maxDev))
		}
	}
	out := make([]SeasonScore, 0, len(totals))
	for season, score := range totals {
		out = append(out, SeasonScore{Season: season, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Season < out[j].Season
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// BestSeason returns the top-ranked season for the day run. The boolean is
// false when no days were supplied.
func BestSeason(days []TempRange) (domain.Season, bool) {
	scores := ScoreSeasons(days)
	if len(scores) == 0 {
		return "", false
	}
	return scores[0].Season, true
}
