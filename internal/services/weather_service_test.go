package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/upstream"
)

type weatherFixture struct {
	svc          *WeatherService
	cache        *cache.Manager
	observations *fakeObservationStore
	locations    *fakeLocationStore
	provider     *fakeProvider
	geocoder     *fakeGeocoder
	now          time.Time
}

func newWeatherFixture(t *testing.T) *weatherFixture {
	t.Helper()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	f := &weatherFixture{
		observations: newFakeObservationStore(),
		locations:    newFakeLocationStore(),
		provider: &fakeProvider{reading: &upstream.Reading{
			Temperature: 18.5,
			Humidity:    60,
			WindSpeed:   4.2,
			Pressure:    1013,
			Timestamp:   now,
		}},
		geocoder: &fakeGeocoder{result: &upstream.GeoResult{
			Name:    "London",
			Lat:     51.5,
			Lon:     -0.12,
			Country: "United Kingdom",
			Region:  "England",
		}},
		now: now,
	}

	f.cache = newTestCache()
	locationSvc := NewLocationService(f.locations, f.geocoder)
	f.svc = NewWeatherService(
		f.observations, locationSvc, f.cache, f.provider,
		10*time.Minute, // freshness threshold
		5*time.Minute,  // cache TTL
		time.Second,    // upstream timeout
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *weatherFixture) seedObservation(t *testing.T, city string, age time.Duration) {
	t.Helper()
	require.NoError(t, f.observations.Insert(context.Background(), &models.Observation{
		LocationID:  "loc-1",
		City:        city,
		Temperature: 10.0,
		Humidity:    80,
		WindSpeed:   2.0,
		Pressure:    1000,
		Timestamp:   f.now.Add(-age),
	}))
}

func (f *weatherFixture) seedLocation(city string) {
	norm := models.NormalizeCity(city)
	f.locations.locations[norm] = &models.TrackedLocation{
		LocationID: "loc-1",
		Name:       city,
		NameNorm:   norm,
		Lat:        51.5,
		Lon:        -0.12,
		IsActive:   true,
	}
}

func TestCurrentLiveFetch(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, "London", conditions.City)
	assert.Equal(t, 18.5, conditions.Temperature)
	assert.Equal(t, float64(60), conditions.Humidity)
	assert.Equal(t, 4.2, conditions.WindSpeed)
	assert.Equal(t, float64(1013), conditions.Pressure)
	assert.Empty(t, conditions.Warning)

	// The fetch was persisted as an observation.
	latest, err := f.observations.LatestByCity(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, 18.5, latest.Temperature)
	assert.Equal(t, "loc-1", latest.LocationID)
}

func TestCurrentCacheHitSkipsEverything(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")

	_, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	require.Equal(t, SourceLive, source)

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, 18.5, conditions.Temperature)
	assert.Equal(t, 1, f.provider.calls, "cached request must not reach the provider")
}

func TestCurrentCacheKeyNormalizesCity(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")

	_, _, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)

	_, source, err := f.svc.Current(context.Background(), "  LONDON ")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
}

func TestCurrentFreshSnapshotShortCircuits(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.seedObservation(t, "London", 5*time.Minute)

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, source)
	assert.Equal(t, 10.0, conditions.Temperature)
	assert.Equal(t, 0, f.provider.calls)

	// A snapshot hit refills the freshness cache.
	_, source, err = f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
}

func TestCurrentExpiredSnapshotTriggersFetch(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.seedObservation(t, "London", 15*time.Minute)

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, 18.5, conditions.Temperature)
	assert.Equal(t, 1, f.provider.calls)
}

func TestCurrentStaleFallback(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.seedObservation(t, "London", time.Hour)
	f.provider.err = upstream.ErrUnavailable

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceStale, source)
	assert.Equal(t, 10.0, conditions.Temperature)
	assert.Equal(t, "Using stale data - live fetch failed", conditions.Warning)
}

func TestCurrentUnavailableWithoutPrior(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.provider.err = upstream.ErrUnavailable

	_, _, err := f.svc.Current(context.Background(), "London")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCurrentMalformedNoFallback(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.seedObservation(t, "London", time.Hour)
	f.provider.err = upstream.ErrMalformed

	// A malformed payload is a provider contract problem, not an outage;
	// stale data must not paper over it.
	_, _, err := f.svc.Current(context.Background(), "London")
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestCurrentUnknownCity(t *testing.T) {
	f := newWeatherFixture(t)
	f.geocoder.err = upstream.ErrNoMatch

	_, _, err := f.svc.Current(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrLocationNotFound)
}

func TestCurrentGeocoderOutage(t *testing.T) {
	f := newWeatherFixture(t)
	f.geocoder.err = upstream.ErrUnavailable

	_, _, err := f.svc.Current(context.Background(), "London")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestCurrentFirstSightGeocodesAndRegisters(t *testing.T) {
	f := newWeatherFixture(t)

	_, source, err := f.svc.Current(context.Background(), "london")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, 1, f.geocoder.calls)

	// The registry hit on the second miss avoids re-geocoding. The cache
	// entry is dropped by hand since its TTL runs on the wall clock.
	f.now = f.now.Add(20 * time.Minute)
	require.NoError(t, f.cache.Delete("weather:current:london"))
	_, _, err = f.svc.Current(context.Background(), "london")
	require.NoError(t, err)
	assert.Equal(t, 1, f.geocoder.calls)
	assert.Equal(t, 2, f.provider.calls)
}

func TestCurrentCanonicalizedNameStaysIdempotent(t *testing.T) {
	f := newWeatherFixture(t)
	f.geocoder.result = &upstream.GeoResult{
		Name:    "New York",
		Lat:     40.71,
		Lon:     -74.0,
		Country: "United States",
	}

	_, source, err := f.svc.Current(context.Background(), "NYC")
	require.NoError(t, err)
	require.Equal(t, SourceLive, source)

	// A repeat of the same query inside the freshness window must be
	// served from the cache, even though the geocoder canonicalized the
	// name to something else.
	_, source, err = f.svc.Current(context.Background(), "NYC")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)

	// And with the cache entry gone (its TTL is shorter than the
	// freshness window) the snapshot is still found under the queried
	// name, so the provider is not called again either.
	require.NoError(t, f.cache.Delete("weather:current:nyc"))
	_, source, err = f.svc.Current(context.Background(), "NYC")
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshot, source)

	assert.Equal(t, 1, f.provider.calls)
	assert.Equal(t, 1, f.geocoder.calls)
}

func TestCurrentSnapshotReadFailureStillServes(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.observations.latestErr = errors.New("disk on fire")

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, 18.5, conditions.Temperature)
}

func TestCurrentObservationPersistFailureStillServes(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedLocation("London")
	f.observations.insertErr = errors.New("table locked")

	conditions, source, err := f.svc.Current(context.Background(), "London")
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, 18.5, conditions.Temperature)
}

func TestHistory(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedObservation(t, "London", 30*time.Minute)
	f.seedObservation(t, "London", 2*time.Hour)
	f.seedObservation(t, "London", 30*time.Hour) // outside a 24h window

	observations, err := f.svc.History(context.Background(), "London", 24)
	require.NoError(t, err)
	assert.Len(t, observations, 2)
}

func TestHistoryNoData(t *testing.T) {
	f := newWeatherFixture(t)

	_, err := f.svc.History(context.Background(), "London", 24)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestDailyAverage(t *testing.T) {
	f := newWeatherFixture(t)
	f.seedObservation(t, "London", time.Hour)
	f.seedObservation(t, "London", 2*time.Hour)

	avg, err := f.svc.DailyAverage(context.Background(), "London", f.now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), avg.Samples)
	assert.Equal(t, 10.0, avg.Temperature)
	assert.Equal(t, "2026-08-30", avg.Date)
}

func TestDailyAverageNoData(t *testing.T) {
	f := newWeatherFixture(t)

	_, err := f.svc.DailyAverage(context.Background(), "London", f.now)
	assert.ErrorIs(t, err, ErrNoData)
}
