// v1
// internal/predict/predictor.go
package predict

import (
	"context"
	"errors"
	"time"

	"vmcpilot/engine/internal/domain"
)

// ErrInsufficientHistory is returned when the history window is too short to
// forecast from.
var ErrInsufficientHistory = errors.New("insufficient history for forecast")

// ErrModel is returned when the forecasting backend fails or produces an
// unusable result.
var ErrModel = errors.New("forecast model failure")

// Predictor turns an ordered run of past snapshots into the expected ambient
// conditions one horizon ahead.
type Predictor interface {
	Forecast(ctx context.Context, history []domain.Snapshot, horizon time.Duration) (domain.Prediction, error)
}
