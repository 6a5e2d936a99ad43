package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/store"
	"weather-gateway/internal/upstream"
)

var (
	// ErrUpstreamUnavailable: the provider (or geocoder) could not be
	// reached and no fallback data exists. Retryable by the caller.
	ErrUpstreamUnavailable = errors.New("weather service unavailable")
	// ErrFetchFailed: the provider answered with something unusable. Not
	// retried, no fallback.
	ErrFetchFailed = errors.New("weather fetch failed")
	// ErrNoData: no observations exist for the requested range.
	ErrNoData = errors.New("no weather data for location")
)

// Source labels where a response came from, surfaced as X-Cache.
type Source string

const (
	SourceCache    Source = "HIT"
	SourceSnapshot Source = "DB-HIT"
	SourceLive     Source = "LIVE-FETCH"
	SourceStale    Source = "STALE-FALLBACK"
)

const staleWarning = "Using stale data - live fetch failed"

// CurrentConditions is the observation payload returned to API callers.
type CurrentConditions struct {
	City        string    `json:"city"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Pressure    float64   `json:"pressure"`
	Timestamp   time.Time `json:"timestamp"`
	Warning     string    `json:"_warning,omitempty"`
}

// WeatherProvider is the outbound current-conditions collaborator.
type WeatherProvider interface {
	Current(ctx context.Context, lat, lon float64) (*upstream.Reading, error)
}

// WeatherService is the retrieval pipeline behind every weather query:
// freshness cache, then recent snapshot, then registry resolution and a
// live provider fetch, with stale fallback when the provider is down.
// Repeated queries inside the freshness window never reach the provider.
type WeatherService struct {
	observations store.ObservationStore
	locations    *LocationService
	cache        *cache.Manager
	provider     WeatherProvider

	freshFor        time.Duration
	cacheTTL        time.Duration
	upstreamTimeout time.Duration
	now             func() time.Time
}

func NewWeatherService(
	observations store.ObservationStore,
	locations *LocationService,
	cm *cache.Manager,
	provider WeatherProvider,
	freshFor, cacheTTL, upstreamTimeout time.Duration,
) *WeatherService {
	return &WeatherService{
		observations:    observations,
		locations:       locations,
		cache:           cm,
		provider:        provider,
		freshFor:        freshFor,
		cacheTTL:        cacheTTL,
		upstreamTimeout: upstreamTimeout,
		now:             time.Now,
	}
}

func weatherCacheKey(city string) string {
	return "weather:current:" + models.NormalizeCity(city)
}

// Current resolves the current conditions for a free-text city name.
//
// The cache is always consulted before the snapshot store, even though its
// TTL is shorter than the freshness threshold: a cache invalidation bug
// must surface as a snapshot read, not hide behind one.
func (s *WeatherService) Current(ctx context.Context, city string) (*CurrentConditions, Source, error) {
	cacheKey := weatherCacheKey(city)

	var cached CurrentConditions
	if found, err := s.cache.Get(cacheKey, &cached); found && err == nil {
		return &cached, SourceCache, nil
	}

	// Snapshot check: a recent persisted observation short-circuits the
	// fetch and refills the cache.
	prior, err := s.observations.LatestByCity(ctx, city)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// A broken snapshot read only costs us the short-circuit; the
		// live path below can still answer.
		log.Printf("weather: snapshot lookup failed for %q: %v", city, err)
		prior = nil
	}

	now := s.now().UTC()
	if prior != nil && now.Sub(prior.Timestamp) < s.freshFor {
		conditions := conditionsFromObservation(prior)
		s.writeCache(cacheKey, conditions)
		return conditions, SourceSnapshot, nil
	}

	// Registry resolution; geocodes only on first sight of the name.
	loc, err := s.locations.Resolve(ctx, city, "")
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return nil, "", err
		}
		if errors.Is(err, upstream.ErrUnavailable) {
			return nil, "", fmt.Errorf("%w: geocoding: %v", ErrUpstreamUnavailable, err)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	conditions, err := s.fetchAndPersist(ctx, city, loc)
	if err == nil {
		return conditions, SourceLive, nil
	}

	if errors.Is(err, upstream.ErrUnavailable) {
		// Stale fallback: an old observation beats an error, explicitly
		// marked so the caller can tell.
		if prior != nil {
			stale := conditionsFromObservation(prior)
			stale.Warning = staleWarning
			return stale, SourceStale, nil
		}
		return nil, "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	return nil, "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
}

// fetchAndPersist calls the provider under a bounded timeout and, on
// success, appends the observation, bumps the registry telemetry and warms
// the freshness cache. Telemetry and cache failures are logged, never
// surfaced: they must not block a good response.
//
// The observation and cache entry are filed under `city` — the name the
// caller queried with, not the registry's canonical one. The geocoder may
// canonicalize ("NYC" to "New York"); keying by the queried name keeps a
// repeat of the same query on the cache and snapshot paths for the whole
// freshness window.
func (s *WeatherService) fetchAndPersist(ctx context.Context, city string, loc *models.TrackedLocation) (*CurrentConditions, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.upstreamTimeout)
	defer cancel()

	reading, err := s.provider.Current(fetchCtx, loc.Lat, loc.Lon)
	if err != nil {
		return nil, err
	}

	obs := &models.Observation{
		LocationID:  loc.LocationID,
		City:        city,
		Lat:         loc.Lat,
		Lon:         loc.Lon,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		WindSpeed:   reading.WindSpeed,
		Pressure:    reading.Pressure,
		Timestamp:   reading.Timestamp,
	}

	if err := s.observations.Insert(ctx, obs); err != nil {
		// The caller still gets live data; the snapshot store just misses
		// one poll.
		log.Printf("weather: failed to persist observation for %q: %v", loc.Name, err)
	}

	if err := s.locations.RecordFetch(ctx, loc.LocationID, s.now().UTC()); err != nil {
		log.Printf("weather: failed to record fetch telemetry for %q: %v", loc.Name, err)
	}

	conditions := conditionsFromObservation(obs)
	s.writeCache(weatherCacheKey(city), conditions)
	return conditions, nil
}

// Ingest refreshes one tracked location from the provider. Used by the
// periodic ingest job rather than the request path.
func (s *WeatherService) Ingest(ctx context.Context, loc models.TrackedLocation) error {
	_, err := s.fetchAndPersist(ctx, loc.Name, &loc)
	return err
}

// History returns observations for the trailing `hours` hours.
func (s *WeatherService) History(ctx context.Context, city string, hours int) ([]models.Observation, error) {
	cacheKey := fmt.Sprintf("weather:history:%s:%d", models.NormalizeCity(city), hours)

	var cached []models.Observation
	if found, err := s.cache.Get(cacheKey, &cached); found && err == nil {
		return cached, nil
	}

	now := s.now().UTC()
	observations, err := s.observations.RangeByCity(ctx, city, now.Add(-time.Duration(hours)*time.Hour), now)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, ErrNoData
	}

	if err := s.cache.Set(cacheKey, observations, s.cacheTTL); err != nil {
		log.Printf("weather: failed to cache history: %v", err)
	}
	return observations, nil
}

// DailyAverage returns the averaged observation fields for one UTC day.
func (s *WeatherService) DailyAverage(ctx context.Context, city string, day time.Time) (*store.DailyAverage, error) {
	cacheKey := fmt.Sprintf("weather:daily:%s:%s", models.NormalizeCity(city), day.UTC().Format("2006-01-02"))

	var cached store.DailyAverage
	if found, err := s.cache.Get(cacheKey, &cached); found && err == nil {
		return &cached, nil
	}

	avg, err := s.observations.DailyAverage(ctx, city, day)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNoData
		}
		return nil, err
	}

	if err := s.cache.Set(cacheKey, avg, time.Hour); err != nil {
		log.Printf("weather: failed to cache daily average: %v", err)
	}
	return avg, nil
}

func (s *WeatherService) writeCache(key string, conditions *CurrentConditions) {
	if err := s.cache.Set(key, conditions, s.cacheTTL); err != nil {
		log.Printf("weather: failed to write freshness cache: %v", err)
	}
}

func conditionsFromObservation(obs *models.Observation) *CurrentConditions {
	return &CurrentConditions{
		City:        obs.City,
		Lat:         obs.Lat,
		Lon:         obs.Lon,
		Temperature: obs.Temperature,
		Humidity:    obs.Humidity,
		WindSpeed:   obs.WindSpeed,
		Pressure:    obs.Pressure,
		Timestamp:   obs.Timestamp,
	}
}
