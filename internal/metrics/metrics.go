// v1
// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"vmcpilot/engine/internal/domain"
)

// Metrics bundles the engine's Prometheus instruments. All of them carry the
// vmc namespace and are registered against the registry passed to New.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    *prometheus.HistogramVec
	DroppedTicks     *prometheus.CounterVec
	CorrectionsTotal *prometheus.CounterVec
	SeasonState      *prometheus.GaugeVec
	Dehumidification *prometheus.GaugeVec
	DewPointAlarm    *prometheus.GaugeVec
	DewPointC        *prometheus.GaugeVec
	HeatIndexC       *prometheus.GaugeVec
	TelemetryLag     *prometheus.GaugeVec
	BreakerState     *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmc",
			Name:      "cycles_total",
			Help:      "Decision cycles by unit and outcome",
		}, []string{"unit", "outcome"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vmc",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one decision cycle",
			Buckets:   prometheus.DefBuckets,
		}, []string{"unit"}),
		DroppedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmc",
			Name:      "dropped_ticks_total",
			Help:      "Ticks skipped because the previous cycle was still running",
		}, []string{"unit"}),
		CorrectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vmc",
			Name:      "corrections_total",
			Help:      "Validator auto-corrections by unit and component",
		}, []string{"unit", "component"}),
		SeasonState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "season_state",
			Help:      "Commanded season (0 winter, 1 summer, 2 middle season)",
		}, []string{"unit"}),
		Dehumidification: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "dehumidification_request",
			Help:      "Commanded dehumidification request (1 on, 0 off)",
		}, []string{"unit"}),
		DewPointAlarm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "dew_point_alarm",
			Help:      "Dew point alarm as last observed (1 active)",
		}, []string{"unit"}),
		DewPointC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "dew_point_celsius",
			Help:      "Dew point computed from the latest snapshot",
		}, []string{"unit"}),
		HeatIndexC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "heat_index_celsius",
			Help:      "Apparent temperature computed from the latest snapshot",
		}, []string{"unit"}),
		TelemetryLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "telemetry_lag_seconds",
			Help:      "Age of the snapshot used by the last cycle",
		}, []string{"unit"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vmc",
			Name:      "kafka_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
	}
	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.DroppedTicks,
		m.CorrectionsTotal,
		m.SeasonState,
		m.Dehumidification,
		m.DewPointAlarm,
		m.DewPointC,
		m.HeatIndexC,
		m.TelemetryLag,
		m.BreakerState,
	)
	return m
}

// SeasonValue maps a season onto the gauge encoding.
func SeasonValue(s domain.Season) float64 {
	switch s {
	case domain.SeasonWinter:
		return 0
	case domain.SeasonSummer:
		return 1
	default:
		return 2
	}
}

// ToggleValue maps a switch position onto 0/1.
func ToggleValue(t domain.Toggle) float64 {
	if t == domain.On {
		return 1
	}
	return 0
}
