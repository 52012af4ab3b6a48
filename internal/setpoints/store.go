// v1
// internal/setpoints/store.go
package setpoints

import (
	"errors"
	"fmt"
	"sync"

	"vmcpilot/engine/internal/domain"
)

// ErrUnknownUnit is returned when a setpoint operation references a unit that is not tracked.
var ErrUnknownUnit = errors.New("unknown unitId")

// ErrSetpointRange indicates that a provided target falls outside the permitted range.
var ErrSetpointRange = errors.New("setpoint outside permitted range")

// Targets holds the operator-configured goals for one unit. These are pushed
// to the unit over the setpoint stream and come back in its telemetry, so the
// engine always evaluates against what the unit actually runs with.
type Targets struct {
	TemperatureC float64 `json:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct"`
	DewPointC    float64 `json:"dewPointC"`
	SpareNumber  int     `json:"spareNumber"`
}

// Validate checks every target against its declared domain. Errors wrap
// ErrSetpointRange so HTTP handlers can map them to a 400.
func (t Targets) Validate() error {
	if t.TemperatureC < domain.TargetTempMinC || t.TemperatureC > domain.TargetTempMaxC {
		return fmt.Errorf("%w: temperature %.2f", ErrSetpointRange, t.TemperatureC)
	}
	if t.HumidityPct < domain.HumidityMinPct || t.HumidityPct > domain.HumidityMaxPct {
		return fmt.Errorf("%w: humidity %.2f", ErrSetpointRange, t.HumidityPct)
	}
	if t.DewPointC < domain.TargetDewPointMinC || t.DewPointC > domain.TargetDewPointMaxC {
		return fmt.Errorf("%w: dew point %.2f", ErrSetpointRange, t.DewPointC)
	}
	if t.SpareNumber < domain.SpareNumberMin || t.SpareNumber > domain.SpareNumberMax {
		return fmt.Errorf("%w: spare number %d", ErrSetpointRange, t.SpareNumber)
	}
	return nil
}

// Store keeps per-unit targets behind a RWMutex so the control loop can read
// concurrently while HTTP handlers update values.
type Store struct {
	mu     sync.RWMutex
	units  map[string]struct{}
	values map[string]Targets
}

// NewStore builds the runtime target store from parsed configuration. Every
// unit must carry an initial in-range value so the loop never sees undefined
// targets.
func NewStore(units []string, defaults map[string]Targets) (*Store, error) {
	if len(units) == 0 {
		return nil, errors.New("setpoints: no units configured")
	}
	st := &Store{
		units:  make(map[string]struct{}, len(units)),
		values: make(map[string]Targets, len(units)),
	}
	for _, unit := range units {
		st.units[unit] = struct{}{}
		tg, ok := defaults[unit]
		if !ok {
			return nil, fmt.Errorf("setpoints: missing initial targets for unit %s", unit)
		}
		if err := tg.Validate(); err != nil {
			return nil, fmt.Errorf("setpoints: unit %s: %w", unit, err)
		}
		st.values[unit] = tg
	}
	return st, nil
}

// Get returns the current targets for the requested unit. The boolean reports
// whether the unit was known to the store.
func (s *Store) Get(unit string) (Targets, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.values[unit]
	return t, ok
}

// All returns a copy of the current targets keyed by unit, safe to marshal.
func (s *Store) All() map[string]Targets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Targets, len(s.values))
	for unit, t := range s.values {
		out[unit] = t
	}
	return out
}

// Set replaces the targets for one unit after range validation.
func (s *Store) Set(unit string, t Targets) (Targets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unit]; !ok {
		return Targets{}, fmt.Errorf("%w: %s", ErrUnknownUnit, unit)
	}
	if err := t.Validate(); err != nil {
		return Targets{}, err
	}
	s.values[unit] = t
	return t, nil
}
