package travel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func weatherBackends(t *testing.T, days []string) (geocode, forecast *httptest.Server) {
	t.Helper()
	geocode = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got == "" {
			t.Error("geocode call without a name")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{{
				"latitude":  37.5503,
				"longitude": 126.9971,
				"timezone":  "Asia/Seoul",
			}},
		})
	}))
	t.Cleanup(geocode.Close)

	forecast = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("temperature_unit") != "fahrenheit" || q.Get("wind_speed_unit") != "mph" {
			t.Errorf("units not requested: %v", q)
		}
		daily := map[string]interface{}{
			"time":                          days,
			"temperature_2m_max":            repeatFloat(78.1, len(days)),
			"temperature_2m_min":            repeatFloat(61.3, len(days)),
			"wind_speed_10m_max":            repeatFloat(9.8, len(days)),
			"precipitation_probability_max": repeatFloat(20, len(days)),
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"daily": daily})
	}))
	t.Cleanup(forecast.Close)
	return geocode, forecast
}

func repeatFloat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestWeatherForecastFiltersToStayWindow(t *testing.T) {
	days := []string{"2026-05-30", "2026-05-31", "2026-06-01", "2026-06-02", "2026-06-03", "2026-06-04"}
	geocode, forecast := weatherBackends(t, days)

	client := NewWeatherClient(cannedClient(func(prompt string) (string, error) {
		if !strings.Contains(prompt, "typical weather in seoul") {
			t.Errorf("unexpected prompt: %q", prompt)
		}
		if !strings.Contains(prompt, "June 1") || !strings.Contains(prompt, "June 3") {
			t.Errorf("dates not humanized in prompt: %q", prompt)
		}
		return "Warm and humid early-summer weather.", nil
	})).WithGeocodeURL(geocode.URL).WithForecastURL(forecast.URL)

	report, err := client.Forecast(context.Background(), "seoul", "2026-06-01", "2026-06-03")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}

	if report.Description != "Warm and humid early-summer weather." {
		t.Errorf("description: %q", report.Description)
	}
	if len(report.Forecasts) != 3 {
		t.Fatalf("expected 3 days in the stay window, got %d", len(report.Forecasts))
	}
	if report.Forecasts[0].Date != "2026-06-01" || report.Forecasts[2].Date != "2026-06-03" {
		t.Errorf("window edges wrong: %s .. %s", report.Forecasts[0].Date, report.Forecasts[2].Date)
	}
	if report.Forecasts[0].MaxTemperature != 78.1 {
		t.Errorf("temperature not carried through: %v", report.Forecasts[0])
	}
	if report.Location == nil || report.Location.Timezone != "Asia/Seoul" {
		t.Errorf("location: %+v", report.Location)
	}
}

func TestWeatherForecastToleratesModelFailure(t *testing.T) {
	geocode, forecast := weatherBackends(t, []string{"2026-06-01"})

	client := NewWeatherClient(cannedClient(func(string) (string, error) {
		return "", errors.New("model down")
	})).WithGeocodeURL(geocode.URL).WithForecastURL(forecast.URL)

	report, err := client.Forecast(context.Background(), "seoul", "2026-06-01", "2026-06-01")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if report.Description != "" {
		t.Errorf("expected empty description, got %q", report.Description)
	}
	if len(report.Forecasts) != 1 {
		t.Errorf("numeric forecast should survive: %+v", report.Forecasts)
	}
}

func TestWeatherForecastToleratesForecastFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	client := NewWeatherClient(cannedClient(func(string) (string, error) {
		return "Mild and dry.", nil
	})).WithGeocodeURL(broken.URL).WithForecastURL(broken.URL)

	report, err := client.Forecast(context.Background(), "paris", "2026-06-01", "2026-06-02")
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	if report.Description != "Mild and dry." {
		t.Errorf("description should survive: %q", report.Description)
	}
	if report.Forecasts != nil || report.Location != nil {
		t.Errorf("numeric half should be empty: %+v", report)
	}
}

func TestWeatherForecastBothHalvesFailing(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	client := NewWeatherClient(cannedClient(func(string) (string, error) {
		return "", errors.New("model down")
	})).WithGeocodeURL(broken.URL).WithForecastURL(broken.URL)

	if _, err := client.Forecast(context.Background(), "paris", "2026-06-01", "2026-06-02"); err == nil {
		t.Fatal("expected error when nothing is available")
	}
}

func TestWeatherForecastRejectsBadDates(t *testing.T) {
	client := NewWeatherClient(cannedClient(func(string) (string, error) { return "", nil }))
	if _, err := client.Forecast(context.Background(), "paris", "not-a-date", "2026-06-02"); err == nil {
		t.Fatal("expected error for malformed start date")
	}
}
