// v2
// internal/rules/evaluator.go
package rules

import (
	"fmt"
	"strings"

	"vmcpilot/engine/internal/domain"
)

// Evaluate computes the command set for one control cycle from the unit
// snapshot, the forecast for the next interval and the previously emitted
// automatic season. It is pure and deterministic; repeated calls with the
// same inputs yield identical action sets.
//
// Rules, from highest priority down:
//
//  1. an active dew point alarm forces the dehumidification request on
//  2. device power is always commanded on under automatic control
//  3. forecast temperature under the target selects WINTER, over it SUMMER,
//     an exact tie holds the previous automatic season
//  4. forecast humidity over the target requests dehumidification, a tie
//     favors off
//  5. the recirculation vent passes through unchanged
//  6. compressor and cooling management pass through unchanged
//
// The alarm constraint on compressor management (never COOLING_ONLY while the
// alarm is on) is enforced downstream by the validator so the correction is
// reported instead of happening silently.
//
// Any input outside its declared domain aborts with InvalidInputError and no
// action set; the caller keeps the previous cycle's commands.
func Evaluate(snap domain.Snapshot, pred domain.Prediction, prev domain.Season) (domain.ActionSet, error) {
	if err := snap.Validate(); err != nil {
		return domain.ActionSet{}, err
	}
	if err := pred.Validate(); err != nil {
		return domain.ActionSet{}, err
	}
	if !prev.Automatic() {
		return domain.ActionSet{}, &domain.InvalidInputError{Component: "previous_season", Value: string(prev)}
	}

	actions := domain.ActionSet{
		DevicePower:          domain.On,
		RecirculationVent:    snap.RecirculationVent,
		CompressorManagement: snap.CompressorManagement,
		CoolingManagement:    snap.CoolingManagement,
	}

	switch {
	case pred.TemperatureC < snap.TargetTemperatureC:
		actions.Season = domain.SeasonWinter
	case pred.TemperatureC > snap.TargetTemperatureC:
		actions.Season = domain.SeasonSummer
	default:
		actions.Season = prev
	}

	if pred.HumidityPct > snap.TargetHumidityPct {
		actions.DehumidificationRequest = domain.On
	} else {
		actions.DehumidificationRequest = domain.Off
	}

	if snap.DewPointAlarm == domain.On {
		actions.DehumidificationRequest = domain.On
	}

	return actions, nil
}

// Reason renders a short human explanation of an evaluation for logs and the
// decision journal.
func Reason(snap domain.Snapshot, pred domain.Prediction, actions domain.ActionSet) string {
	parts := make([]string, 0, 3)
	switch {
	case pred.TemperatureC < snap.TargetTemperatureC:
		parts = append(parts, fmt.Sprintf("forecast %.1fC under target %.1fC", pred.TemperatureC, snap.TargetTemperatureC))
	case pred.TemperatureC > snap.TargetTemperatureC:
		parts = append(parts, fmt.Sprintf("forecast %.1fC over target %.1fC", pred.TemperatureC, snap.TargetTemperatureC))
	default:
		parts = append(parts, fmt.Sprintf("forecast at target %.1fC, season held", snap.TargetTemperatureC))
	}
	if snap.DewPointAlarm == domain.On {
		parts = append(parts, "dew point alarm active")
	} else if pred.HumidityPct > snap.TargetHumidityPct {
		parts = append(parts, fmt.Sprintf("forecast humidity %.0f%% over target %.0f%%", pred.HumidityPct, snap.TargetHumidityPct))
	}
	if actions.DehumidificationRequest == domain.Off {
		parts = append(parts, "dehumidification idle")
	}
	return strings.Join(parts, ", ")
}
