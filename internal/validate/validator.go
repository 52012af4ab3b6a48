// v1
// internal/validate/validator.go
package validate

import (
	"errors"
	"fmt"

	"vmcpilot/engine/internal/domain"
)

// Validate checks a proposed action set against the season and mode
// invariants before it may be applied. On success it returns the action set,
// possibly auto-corrected, together with the corrections that were applied.
// On a fatal verdict no command from the cycle may reach the unit.
//
// Checks run in a fixed order:
//
//  1. MIDDLE_SEASON must never be emitted under automatic control
//  2. an active dew point alarm forbids COOLING_ONLY compressor management;
//     the violation is corrected to COOLING_OR_DEHUMIDIFICATION and reported
//  3. a unit configured with a VARIABLE dew point threshold is unsupported
//  4. every commanded switch value must lie within its domain
func Validate(actions domain.ActionSet, snap domain.Snapshot) (domain.ActionSet, []domain.Correction, error) {
	if actions.Season == domain.SeasonMiddle {
		return domain.ActionSet{}, nil, &domain.ValidationError{
			Code:      domain.SeasonNotAutomatic,
			Component: domain.CompSeason,
			Detail:    "automatic control never emits MIDDLE_SEASON",
		}
	}

	var corrections []domain.Correction
	if snap.DewPointAlarm == domain.On && actions.CompressorManagement == domain.CompressorCoolingOnly {
		corrections = append(corrections, domain.Correction{
			Component: domain.CompCompressorMgmt,
			From:      string(domain.CompressorCoolingOnly),
			To:        string(domain.CompressorCoolingOrDehumid),
			Reason:    "dew point alarm requires a mode able to dehumidify",
		})
		actions.CompressorManagement = domain.CompressorCoolingOrDehumid
	}

	if snap.DewPointManagement == domain.DewPointVariable {
		return domain.ActionSet{}, nil, &domain.ValidationError{
			Code:      domain.UnsupportedDewPointMode,
			Component: domain.CompDewPointMgmt,
			Detail:    "unit reports VARIABLE dew point management",
		}
	}

	if err := actions.Validate(); err != nil {
		var inv *domain.InvalidInputError
		if errors.As(err, &inv) {
			return domain.ActionSet{}, nil, &domain.ValidationError{
				Code:      domain.OutOfDomain,
				Component: inv.Component,
				Detail:    fmt.Sprintf("commanded value %q", inv.Value),
			}
		}
		return domain.ActionSet{}, nil, err
	}

	return actions, corrections, nil
}
