// v1
// internal/predict/trend.go
package predict

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"vmcpilot/engine/internal/domain"
)

// Trend is the default forecaster: a least-squares line through the recent
// ambient readings, extrapolated one horizon ahead and clamped to the sensor
// domains. It never trains anything; it is the baseline a dedicated model
// service has to beat.
type Trend struct {
	minSamples int
	log        *slog.Logger
}

// NewTrend builds the trend forecaster. Fewer than two samples can never
// define a line, so minSamples is floored at two.
func NewTrend(minSamples int, logger *slog.Logger) *Trend {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if minSamples < 2 {
		minSamples = 2
	}
	return &Trend{minSamples: minSamples, log: logger}
}

func (t *Trend) Forecast(_ context.Context, history []domain.Snapshot, horizon time.Duration) (domain.Prediction, error) {
	if len(history) < t.minSamples {
		return domain.Prediction{}, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientHistory, len(history), t.minSamples)
	}
	origin := history[0].TakenAt
	xs := make([]float64, len(history))
	temps := make([]float64, len(history))
	hums := make([]float64, len(history))
	for i, snap := range history {
		xs[i] = snap.TakenAt.Sub(origin).Seconds()
		temps[i] = snap.AmbientTemperatureC
		hums[i] = snap.AmbientHumidityPct
	}
	at := xs[len(xs)-1] + horizon.Seconds()
	pred := domain.Prediction{
		TemperatureC: clamp(extrapolate(xs, temps, at), domain.SensorTempMinC, domain.SensorTempMaxC),
		HumidityPct:  clamp(extrapolate(xs, hums, at), domain.HumidityMinPct, domain.HumidityMaxPct),
	}
	t.log.Debug("trend forecast",
		slog.String("unit", history[0].UnitID),
		slog.Int("samples", len(history)),
		slog.Float64("temperature", pred.TemperatureC),
		slog.Float64("humidity", pred.HumidityPct))
	return pred, nil
}

// extrapolate fits y = a + b*x by ordinary least squares and evaluates it at
// the requested x. A degenerate x spread falls back to the mean.
func extrapolate(xs, ys []float64, at float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	den := n*sumXX - sumX*sumX
	if den == 0 {
		return sumY / n
	}
	slope := (n*sumXY - sumX*sumY) / den
	intercept := (sumY - slope*sumX) / n
	return intercept + slope*at
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
