// v1
// internal/domain/errors.go
package domain

import "fmt"

// InvalidInputError reports a snapshot or prediction value outside its
// declared domain. Evaluation aborts on the first such value and the caller
// keeps the previous cycle's commands.
type InvalidInputError struct {
	Component string
	Value     string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s=%s", e.Component, e.Value)
}

// ValidationCode identifies the class of an action set validation failure.
type ValidationCode string

const (
	// SeasonNotAutomatic marks an attempt to emit MIDDLE_SEASON from the
	// automatic engine.
	SeasonNotAutomatic ValidationCode = "SEASON_NOT_AUTOMATIC"
	// UnsupportedDewPointMode marks a unit configured with a variable dew
	// point threshold, which automatic control does not support.
	UnsupportedDewPointMode ValidationCode = "UNSUPPORTED_DEW_POINT_MODE"
	// OutOfDomain marks a commanded switch value outside its legal domain.
	OutOfDomain ValidationCode = "OUT_OF_DOMAIN"
)

// ValidationError is a fatal verdict on a proposed action set. No command
// from the offending cycle may reach the unit.
type ValidationError struct {
	Code      ValidationCode
	Component string
	Detail    string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s on %s", e.Code, e.Component)
	}
	return fmt.Sprintf("validation failed: %s on %s: %s", e.Code, e.Component, e.Detail)
}

// Correction records a non-fatal auto-correction applied by the validator.
// Corrections ride along with the validated action set so they end up in the
// journal and on the HTTP surface instead of disappearing silently.
type Correction struct {
	Component string `json:"component"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
}
