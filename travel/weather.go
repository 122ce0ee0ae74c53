package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"magellan/llm"
)

const (
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	forecastDays       = 16
)

const typicalWeatherTemplate = `What is the typical weather in %s between %s and %s? Keep it under 3 or 4 sentences but talk about the weather patterns around that time of year in that location. Use fahrenheit for units and metric units for wind speed.`

// DailyForecast is one day of the stay window.
type DailyForecast struct {
	Date                     string  `json:"date"`
	MaxTemperature           float64 `json:"maxTemperature"`
	MinTemperature           float64 `json:"minTemperature"`
	WindSpeed                float64 `json:"windSpeed"`
	PrecipitationProbability float64 `json:"precipitationProbability"`
}

// Location identifies the forecast coordinates.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
}

// WeatherReport combines a model-written description of typical conditions
// with the numeric daily forecast for the stay window. Either half may be
// missing when its upstream call failed.
type WeatherReport struct {
	Description string          `json:"description"`
	Destination string          `json:"destination"`
	Forecasts   []DailyForecast `json:"forecasts"`
	Location    *Location       `json:"location"`
}

// WeatherClient fetches forecasts from Open-Meteo and typical-weather
// blurbs from the language model.
type WeatherClient struct {
	llm         *llm.Client
	forecastURL string
	geocodeURL  string
	httpClient  *http.Client
}

// NewWeatherClient creates a client over the given model client.
func NewWeatherClient(client *llm.Client) *WeatherClient {
	return &WeatherClient{
		llm:         client,
		forecastURL: defaultForecastURL,
		geocodeURL:  defaultGeocodeURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// WithForecastURL overrides the forecast endpoint, mainly for tests.
func (c *WeatherClient) WithForecastURL(u string) *WeatherClient {
	c.forecastURL = u
	return c
}

// WithGeocodeURL overrides the geocoding endpoint, mainly for tests.
func (c *WeatherClient) WithGeocodeURL(u string) *WeatherClient {
	c.geocodeURL = u
	return c
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *WeatherClient) WithHTTPClient(hc *http.Client) *WeatherClient {
	c.httpClient = hc
	return c
}

// Forecast builds a WeatherReport for a stay at destination between
// startDate and endDate (inclusive, ISO dates). The model description and
// the numeric forecast are fetched in parallel; failure of either leaves
// that half empty rather than failing the report.
func (c *WeatherClient) Forecast(ctx context.Context, destination, startDate, endDate string) (*WeatherReport, error) {
	startHuman, err := humanDate(startDate)
	if err != nil {
		return nil, err
	}
	endHuman, err := humanDate(endDate)
	if err != nil {
		return nil, err
	}

	report := &WeatherReport{Destination: destination}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prompt := fmt.Sprintf(typicalWeatherTemplate, destination, startHuman, endHuman)
		description, err := c.llm.Complete(gctx, prompt)
		if err != nil {
			return nil
		}
		report.Description = description
		return nil
	})
	g.Go(func() error {
		location, forecasts, err := c.fetchForecast(gctx, destination, startDate, endDate)
		if err != nil {
			return nil
		}
		report.Location = location
		report.Forecasts = forecasts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if report.Description == "" && report.Location == nil {
		return nil, fmt.Errorf("no weather information available for %s", destination)
	}
	return report, nil
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

type forecastResponse struct {
	Daily struct {
		Time                        []string  `json:"time"`
		Temperature2mMax            []float64 `json:"temperature_2m_max"`
		Temperature2mMin            []float64 `json:"temperature_2m_min"`
		WindSpeed10mMax             []float64 `json:"wind_speed_10m_max"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

func (c *WeatherClient) fetchForecast(ctx context.Context, destination, startDate, endDate string) (*Location, []DailyForecast, error) {
	location, err := c.geocode(ctx, destination)
	if err != nil {
		return nil, nil, err
	}

	params := url.Values{
		"latitude":  {fmt.Sprintf("%.4f", location.Latitude)},
		"longitude": {fmt.Sprintf("%.4f", location.Longitude)},
		"daily": {strings.Join([]string{
			"temperature_2m_max",
			"temperature_2m_min",
			"wind_speed_10m_max",
			"precipitation_probability_max",
		}, ",")},
		"forecast_days":    {fmt.Sprintf("%d", forecastDays)},
		"wind_speed_unit":  {"mph"},
		"temperature_unit": {"fahrenheit"},
	}

	var parsed forecastResponse
	if err := c.getJSON(ctx, c.forecastURL+"?"+params.Encode(), &parsed); err != nil {
		return nil, nil, err
	}

	daily := parsed.Daily
	var forecasts []DailyForecast
	for i, date := range daily.Time {
		if date < startDate || date > endDate {
			continue
		}
		forecast := DailyForecast{Date: date}
		if i < len(daily.Temperature2mMax) {
			forecast.MaxTemperature = daily.Temperature2mMax[i]
		}
		if i < len(daily.Temperature2mMin) {
			forecast.MinTemperature = daily.Temperature2mMin[i]
		}
		if i < len(daily.WindSpeed10mMax) {
			forecast.WindSpeed = daily.WindSpeed10mMax[i]
		}
		if i < len(daily.PrecipitationProbabilityMax) {
			forecast.PrecipitationProbability = daily.PrecipitationProbabilityMax[i]
		}
		forecasts = append(forecasts, forecast)
	}

	return location, forecasts, nil
}

func (c *WeatherClient) geocode(ctx context.Context, destination string) (*Location, error) {
	params := url.Values{
		"name":  {destination},
		"count": {"1"},
	}

	var parsed geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+params.Encode(), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, fmt.Errorf("no coordinates found for %q", destination)
	}

	hit := parsed.Results[0]
	return &Location{
		Latitude:  hit.Latitude,
		Longitude: hit.Longitude,
		Timezone:  hit.Timezone,
	}, nil
}

func (c *WeatherClient) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
