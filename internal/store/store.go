package store

import (
	"context"
	"errors"
	"time"

	"weather-gateway/internal/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// DayCount is one day's request total from the usage ledger.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"request_count"`
}

// DailyAverage aggregates one UTC day of observations for a city.
type DailyAverage struct {
	City        string  `json:"city"`
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	Pressure    float64 `json:"pressure"`
	Samples     int64   `json:"samples"`
}

// AccountStore resolves and mutates account records.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByAPIKey(ctx context.Context, apiKey string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByAccountID(ctx context.Context, accountID string) (*models.Account, error)
	// SetAPIKey issues (non-nil) or revokes (nil) the account's opaque key.
	SetAPIKey(ctx context.Context, accountID string, apiKey *string) error
}

// UsageStore is the durable request ledger.
type UsageStore interface {
	// IncrementDaily bumps the (apiKey, endpoint, date) counter in a single
	// atomic upsert and returns the resulting count. Concurrent callers must
	// never lose an increment or create duplicate rows.
	IncrementDaily(ctx context.Context, accountID, apiKey, endpoint, date string) (int64, error)
	// DailyCounts returns per-day totals for an account over [from, to].
	DailyCounts(ctx context.Context, accountID, from, to string) ([]DayCount, error)
}

// LocationStore is the registry of tracked locations.
type LocationStore interface {
	FindByName(ctx context.Context, name string) (*models.TrackedLocation, error)
	FindByLocationID(ctx context.Context, locationID string) (*models.TrackedLocation, error)
	List(ctx context.Context, activeOnly bool) ([]models.TrackedLocation, error)
	// Upsert inserts or refreshes a location by normalized name. The
	// surrogate LocationID of an existing row is never overwritten.
	Upsert(ctx context.Context, loc *models.TrackedLocation) (*models.TrackedLocation, error)
	RecordFetch(ctx context.Context, locationID string, at time.Time) error
	Deactivate(ctx context.Context, locationID string) error
}

// ObservationStore is the append-only snapshot time series.
type ObservationStore interface {
	Insert(ctx context.Context, obs *models.Observation) error
	LatestByCity(ctx context.Context, city string) (*models.Observation, error)
	RangeByCity(ctx context.Context, city string, from, to time.Time) ([]models.Observation, error)
	DailyAverage(ctx context.Context, city string, day time.Time) (*DailyAverage, error)
}
