package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"

// Reading is a single normalized current-conditions reading. All fields are
// required: a payload missing any of them fails the whole fetch rather than
// returning partial data.
type Reading struct {
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	Pressure    float64
	Timestamp   time.Time
}

// WeatherClient fetches current conditions from Open-Meteo by coordinates.
type WeatherClient struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherClient(client *http.Client) *WeatherClient {
	return &WeatherClient{
		baseURL: openMeteoForecastURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: defaultBackoff()},
		circuit: newBreaker("openmeteo"),
	}
}

// NewWeatherClientWithBaseURL is for tests pointing at a local server.
func NewWeatherClientWithBaseURL(client *http.Client, baseURL string) *WeatherClient {
	c := NewWeatherClient(client)
	c.baseURL = baseURL
	return c
}

func (c *WeatherClient) Current(ctx context.Context, lat, lon float64) (*Reading, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", lat))
		values.Set("longitude", fmt.Sprintf("%f", lon))
		values.Set("current", "temperature_2m,relative_humidity_2m,pressure_msl,wind_speed_10m")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", c.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Current *struct {
			Time        string   `json:"time"`
			Temperature *float64 `json:"temperature_2m"`
			Humidity    *float64 `json:"relative_humidity_2m"`
			Pressure    *float64 `json:"pressure_msl"`
			WindSpeed   *float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	cur := payload.Current
	if cur == nil {
		return nil, fmt.Errorf("%w: response missing current weather block", ErrMalformed)
	}
	if cur.Temperature == nil || cur.Humidity == nil || cur.Pressure == nil || cur.WindSpeed == nil {
		return nil, fmt.Errorf("%w: response missing required fields", ErrMalformed)
	}

	ts := parseOpenMeteoTime(cur.Time)

	return &Reading{
		Temperature: *cur.Temperature,
		Humidity:    *cur.Humidity,
		WindSpeed:   *cur.WindSpeed,
		Pressure:    *cur.Pressure,
		Timestamp:   ts,
	}, nil
}

// parseOpenMeteoTime handles the minute-resolution ISO8601 timestamps
// Open-Meteo returns; an unparseable timestamp falls back to now.
func parseOpenMeteoTime(s string) time.Time {
	if ts, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}
