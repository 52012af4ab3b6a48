// v1
// internal/predict/predict_test.go
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vmcpilot/engine/internal/domain"
)

func windowAt(base time.Time, temps []float64, hums []float64, step time.Duration) []domain.Snapshot {
	out := make([]domain.Snapshot, len(temps))
	for i := range temps {
		out[i] = domain.Snapshot{
			UnitID:              "unit-a",
			TakenAt:             base.Add(time.Duration(i) * step),
			AmbientTemperatureC: temps[i],
			AmbientHumidityPct:  hums[i],
		}
	}
	return out
}

func TestTrendExtrapolatesRisingTemperature(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{20, 21, 22}, []float64{50, 50, 50}, time.Minute)

	pred, err := NewTrend(3, nil).Forecast(context.Background(), window, 5*time.Minute)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if math.Abs(pred.TemperatureC-27.0) > 1e-9 {
		t.Fatalf("temperature = %v, want 27.0", pred.TemperatureC)
	}
	if math.Abs(pred.HumidityPct-50.0) > 1e-9 {
		t.Fatalf("humidity = %v, want 50.0", pred.HumidityPct)
	}
}

func TestTrendFlatSeriesHolds(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{21.5, 21.5, 21.5, 21.5}, []float64{60, 60, 60, 60}, 30*time.Second)

	pred, err := NewTrend(2, nil).Forecast(context.Background(), window, 10*time.Minute)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if pred.TemperatureC != 21.5 || pred.HumidityPct != 60 {
		t.Fatalf("got %+v, want flat 21.5/60", pred)
	}
}

func TestTrendClampsToSensorDomain(t *testing.T) {
	base := time.Date(2026, 7, 1, 14, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{38, 39, 40}, []float64{96, 98, 100}, time.Minute)

	pred, err := NewTrend(2, nil).Forecast(context.Background(), window, 10*time.Minute)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if pred.TemperatureC != domain.SensorTempMaxC {
		t.Fatalf("temperature = %v, want clamped to %v", pred.TemperatureC, domain.SensorTempMaxC)
	}
	if pred.HumidityPct != domain.HumidityMaxPct {
		t.Fatalf("humidity = %v, want clamped to %v", pred.HumidityPct, domain.HumidityMaxPct)
	}
	if err := pred.Validate(); err != nil {
		t.Fatalf("clamped prediction should be valid: %v", err)
	}
}

func TestTrendRejectsShortWindow(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{20}, []float64{50}, time.Minute)

	_, err := NewTrend(4, nil).Forecast(context.Background(), window, time.Minute)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestRemoteForecastRoundTrip(t *testing.T) {
	var got forecastRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(forecastResponse{TemperatureC: 24.5, HumidityPct: 58})
	}))
	defer srv.Close()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{23, 24}, []float64{55, 56}, time.Minute)

	pred, err := NewRemote(srv.URL, time.Second, nil).Forecast(context.Background(), window, 5*time.Minute)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if pred.TemperatureC != 24.5 || pred.HumidityPct != 58 {
		t.Fatalf("got %+v, want 24.5/58", pred)
	}
	if len(got.History) != 2 {
		t.Fatalf("service saw %d samples, want 2", len(got.History))
	}
	if got.HorizonSeconds != 300 {
		t.Fatalf("service saw horizon %d, want 300", got.HorizonSeconds)
	}
}

func TestRemoteForecastFailures(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	window := windowAt(base, []float64{23, 24}, []float64{55, 56}, time.Minute)

	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model offline", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("{not json"))
		}},
		{"out of range answer", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(forecastResponse{TemperatureC: 72, HumidityPct: 40})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := NewRemote(srv.URL, time.Second, nil).Forecast(context.Background(), window, time.Minute)
			if !errors.Is(err, ErrModel) {
				t.Fatalf("err = %v, want ErrModel", err)
			}
		})
	}
}

func TestRemoteForecastEmptyWindow(t *testing.T) {
	_, err := NewRemote("http://unused.invalid", time.Second, nil).Forecast(context.Background(), nil, time.Minute)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}
