// v1
// internal/predict/remote.go
package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vmcpilot/engine/internal/domain"
)

// Remote forwards the history window to an external forecast service over
// HTTP. The service owns the model; the engine only cares that the answer is
// a pair of numbers inside the sensor domains.
type Remote struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewRemote builds a forecaster against the given service URL. The timeout
// bounds the whole request including body read.
func NewRemote(url string, timeout time.Duration, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logger,
	}
}

type forecastRequest struct {
	History        []domain.Snapshot `json:"history"`
	HorizonSeconds int64             `json:"horizonSeconds"`
}

type forecastResponse struct {
	TemperatureC float64 `json:"temperatureC"`
	HumidityPct  float64 `json:"humidityPct"`
}

func (r *Remote) Forecast(ctx context.Context, history []domain.Snapshot, horizon time.Duration) (domain.Prediction, error) {
	if len(history) == 0 {
		return domain.Prediction{}, fmt.Errorf("%w: empty window", ErrInsufficientHistory)
	}
	body, err := json.Marshal(forecastRequest{History: history, HorizonSeconds: int64(horizon.Seconds())})
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: encode request: %v", ErrModel, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: build request: %v", ErrModel, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %v", ErrModel, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return domain.Prediction{}, fmt.Errorf("%w: status %d from %s", ErrModel, resp.StatusCode, r.url)
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: decode response: %v", ErrModel, err)
	}
	pred := domain.Prediction{TemperatureC: out.TemperatureC, HumidityPct: out.HumidityPct}
	if err := pred.Validate(); err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %v", ErrModel, err)
	}
	r.log.Debug("remote forecast",
		slog.String("unit", history[0].UnitID),
		slog.Float64("temperature", pred.TemperatureC),
		slog.Float64("humidity", pred.HumidityPct))
	return pred, nil
}
