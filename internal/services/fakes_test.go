package services

import (
	"context"
	"sync"
	"time"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/store"
	"weather-gateway/internal/upstream"
)

// newTestCache builds a local-only cache manager; the address points at a
// closed port so the redis tier never connects.
func newTestCache() *cache.Manager {
	return cache.NewManager("localhost:1", time.Minute)
}

type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account // by AccountID

	findByAPIKeyCalls int
	err               error // returned by every method when set
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]*models.Account)}
}

func (f *fakeAccountStore) Create(ctx context.Context, account *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	cp := *account
	f.accounts[account.AccountID] = &cp
	return nil
}

func (f *fakeAccountStore) FindByAPIKey(ctx context.Context, apiKey string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findByAPIKeyCalls++
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.accounts {
		if a.APIKey != nil && *a.APIKey == apiKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccountStore) FindByAccountID(ctx context.Context, accountID string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.accounts[accountID]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeAccountStore) SetAPIKey(ctx context.Context, accountID string, apiKey *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	a, ok := f.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.APIKey = apiKey
	return nil
}

type fakeUsageStore struct {
	mu     sync.Mutex
	counts map[string]int64 // apiKey|endpoint|date
	daily  []store.DayCount
	err    error
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{counts: make(map[string]int64)}
}

func (f *fakeUsageStore) IncrementDaily(ctx context.Context, accountID, apiKey, endpoint, date string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	key := apiKey + "|" + endpoint + "|" + date
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeUsageStore) DailyCounts(ctx context.Context, accountID, from, to string) ([]store.DayCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.daily, nil
}

type fakeLocationStore struct {
	mu        sync.Mutex
	locations map[string]*models.TrackedLocation // by normalized name
	err       error
}

func newFakeLocationStore() *fakeLocationStore {
	return &fakeLocationStore{locations: make(map[string]*models.TrackedLocation)}
}

func (f *fakeLocationStore) FindByName(ctx context.Context, name string) (*models.TrackedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if loc, ok := f.locations[models.NormalizeCity(name)]; ok {
		cp := *loc
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeLocationStore) FindByLocationID(ctx context.Context, locationID string) (*models.TrackedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range f.locations {
		if loc.LocationID == locationID {
			cp := *loc
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeLocationStore) List(ctx context.Context, activeOnly bool) ([]models.TrackedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TrackedLocation
	for _, loc := range f.locations {
		if activeOnly && !loc.IsActive {
			continue
		}
		out = append(out, *loc)
	}
	return out, nil
}

func (f *fakeLocationStore) Upsert(ctx context.Context, loc *models.TrackedLocation) (*models.TrackedLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	norm := models.NormalizeCity(loc.Name)
	if existing, ok := f.locations[norm]; ok {
		// Surrogate key of an existing row is preserved.
		loc.LocationID = existing.LocationID
	}
	cp := *loc
	cp.NameNorm = norm
	f.locations[norm] = &cp
	out := cp
	return &out, nil
}

func (f *fakeLocationStore) RecordFetch(ctx context.Context, locationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range f.locations {
		if loc.LocationID == locationID {
			loc.LastFetched = &at
			loc.FetchCount++
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeLocationStore) Deactivate(ctx context.Context, locationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, loc := range f.locations {
		if loc.LocationID == locationID {
			loc.IsActive = false
			return nil
		}
	}
	return store.ErrNotFound
}

type fakeObservationStore struct {
	mu           sync.Mutex
	observations []models.Observation
	insertErr    error
	latestErr    error
}

func newFakeObservationStore() *fakeObservationStore {
	return &fakeObservationStore{}
}

func (f *fakeObservationStore) Insert(ctx context.Context, obs *models.Observation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *obs
	cp.CityNorm = models.NormalizeCity(obs.City)
	f.observations = append(f.observations, cp)
	return nil
}

func (f *fakeObservationStore) LatestByCity(ctx context.Context, city string) (*models.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	norm := models.NormalizeCity(city)
	var latest *models.Observation
	for i := range f.observations {
		obs := &f.observations[i]
		if obs.CityNorm != norm {
			continue
		}
		if latest == nil || obs.Timestamp.After(latest.Timestamp) {
			latest = obs
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeObservationStore) RangeByCity(ctx context.Context, city string, from, to time.Time) ([]models.Observation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := models.NormalizeCity(city)
	var out []models.Observation
	for _, obs := range f.observations {
		if obs.CityNorm == norm && !obs.Timestamp.Before(from) && !obs.Timestamp.After(to) {
			out = append(out, obs)
		}
	}
	return out, nil
}

func (f *fakeObservationStore) DailyAverage(ctx context.Context, city string, day time.Time) (*store.DailyAverage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	norm := models.NormalizeCity(city)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	avg := &store.DailyAverage{City: city, Date: dayStart.Format("2006-01-02")}
	for _, obs := range f.observations {
		if obs.CityNorm != norm || obs.Timestamp.Before(dayStart) || !obs.Timestamp.Before(dayEnd) {
			continue
		}
		avg.Temperature += obs.Temperature
		avg.Humidity += obs.Humidity
		avg.WindSpeed += obs.WindSpeed
		avg.Pressure += obs.Pressure
		avg.Samples++
	}
	if avg.Samples == 0 {
		return nil, store.ErrNotFound
	}
	n := float64(avg.Samples)
	avg.Temperature /= n
	avg.Humidity /= n
	avg.WindSpeed /= n
	avg.Pressure /= n
	return avg, nil
}

type fakeProvider struct {
	mu      sync.Mutex
	reading *upstream.Reading
	err     error
	calls   int
}

func (f *fakeProvider) Current(ctx context.Context, lat, lon float64) (*upstream.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.reading
	return &cp, nil
}

type fakeGeocoder struct {
	mu     sync.Mutex
	result *upstream.GeoResult
	err    error
	calls  int
}

func (f *fakeGeocoder) Lookup(ctx context.Context, name string) (*upstream.GeoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.result
	return &cp, nil
}
