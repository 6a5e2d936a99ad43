package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"
)

const openMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// GeoResult is the best match for a free-text location name.
type GeoResult struct {
	Name    string
	Lat     float64
	Lon     float64
	Country string
	Region  string
}

// Geocoder resolves free-text names via the Open-Meteo geocoding API.
type Geocoder struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewGeocoder(client *http.Client) *Geocoder {
	return &Geocoder{
		baseURL: openMeteoGeocodingURL,
		httpCfg: HTTPClientConfig{Client: client, Backoff: defaultBackoff()},
		circuit: newBreaker("geocoding"),
	}
}

// NewGeocoderWithBaseURL is for tests pointing at a local server.
func NewGeocoderWithBaseURL(client *http.Client, baseURL string) *Geocoder {
	g := NewGeocoder(client)
	g.baseURL = baseURL
	return g
}

// Lookup returns the best match for name, or ErrNoMatch.
func (g *Geocoder) Lookup(ctx context.Context, name string) (*GeoResult, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", name)
		values.Set("count", "1")
		values.Set("language", "en")
		values.Set("format", "json")

		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", g.baseURL, values.Encode()), nil)
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name      string  `json:"name"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Country   string  `json:"country"`
			Admin1    string  `json:"admin1"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if len(payload.Results) == 0 {
		return nil, ErrNoMatch
	}

	best := payload.Results[0]
	return &GeoResult{
		Name:    best.Name,
		Lat:     best.Latitude,
		Lon:     best.Longitude,
		Country: best.Country,
		Region:  best.Admin1,
	}, nil
}
