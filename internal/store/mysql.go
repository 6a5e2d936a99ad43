package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"weather-gateway/internal/models"
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// AccountMySQL implements AccountStore on gorm.
type AccountMySQL struct {
	db *gorm.DB
}

func NewAccountMySQL(db *gorm.DB) *AccountMySQL {
	return &AccountMySQL{db: db}
}

func (s *AccountMySQL) Create(ctx context.Context, account *models.Account) error {
	return s.db.WithContext(ctx).Create(account).Error
}

func (s *AccountMySQL) FindByAPIKey(ctx context.Context, apiKey string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&account).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *AccountMySQL) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *AccountMySQL) FindByAccountID(ctx context.Context, accountID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).First(&account).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (s *AccountMySQL) SetAPIKey(ctx context.Context, accountID string, apiKey *string) error {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("account_id = ?", accountID).
		Update("api_key", apiKey)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UsageMySQL implements UsageStore on gorm.
type UsageMySQL struct {
	db *gorm.DB
}

func NewUsageMySQL(db *gorm.DB) *UsageMySQL {
	return &UsageMySQL{db: db}
}

// IncrementDaily performs the find-or-create and increment as one statement
// so concurrent requests cannot interleave a check with an update. The
// LAST_INSERT_ID(expr) trick smuggles the updated count out of the upsert;
// the transaction pins both statements to one connection, which the
// session-scoped LAST_INSERT_ID requires.
func (s *UsageMySQL) IncrementDaily(ctx context.Context, accountID, apiKey, endpoint, date string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(
			`INSERT INTO usage_records (account_id, api_key, endpoint, date, count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, NOW(), NOW())
			 ON DUPLICATE KEY UPDATE count = LAST_INSERT_ID(count + 1), updated_at = NOW()`,
			accountID, apiKey, endpoint, date,
		)
		if res.Error != nil {
			return res.Error
		}
		// MySQL reports 1 affected row for an insert, 2 for an update.
		if res.RowsAffected == 1 {
			count = 1
			return nil
		}
		return tx.Raw(`SELECT LAST_INSERT_ID()`).Scan(&count).Error
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *UsageMySQL) DailyCounts(ctx context.Context, accountID, from, to string) ([]DayCount, error) {
	var counts []DayCount
	err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("date, SUM(count) as count").
		Where("account_id = ? AND date >= ? AND date <= ?", accountID, from, to).
		Group("date").
		Order("date DESC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// LocationMySQL implements LocationStore on gorm.
type LocationMySQL struct {
	db *gorm.DB
}

func NewLocationMySQL(db *gorm.DB) *LocationMySQL {
	return &LocationMySQL{db: db}
}

func (s *LocationMySQL) FindByName(ctx context.Context, name string) (*models.TrackedLocation, error) {
	var loc models.TrackedLocation
	err := s.db.WithContext(ctx).
		Where("name_norm = ?", models.NormalizeCity(name)).
		First(&loc).Error
	if err != nil {
		return nil, translate(err)
	}
	return &loc, nil
}

func (s *LocationMySQL) FindByLocationID(ctx context.Context, locationID string) (*models.TrackedLocation, error) {
	var loc models.TrackedLocation
	if err := s.db.WithContext(ctx).Where("location_id = ?", locationID).First(&loc).Error; err != nil {
		return nil, translate(err)
	}
	return &loc, nil
}

func (s *LocationMySQL) List(ctx context.Context, activeOnly bool) ([]models.TrackedLocation, error) {
	var locs []models.TrackedLocation
	q := s.db.WithContext(ctx).Order("name ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

func (s *LocationMySQL) Upsert(ctx context.Context, loc *models.TrackedLocation) (*models.TrackedLocation, error) {
	loc.NameNorm = models.NormalizeCity(loc.Name)

	// location_id stays out of the update set: the surrogate key assigned
	// at first insert is immutable.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name_norm"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "lat", "lon", "country", "region", "is_active", "last_fetched", "updated_at",
		}),
	}).Create(loc).Error
	if err != nil {
		return nil, err
	}

	return s.FindByName(ctx, loc.Name)
}

func (s *LocationMySQL) RecordFetch(ctx context.Context, locationID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.TrackedLocation{}).
		Where("location_id = ?", locationID).
		UpdateColumns(map[string]interface{}{
			"fetch_count":  gorm.Expr("fetch_count + 1"),
			"last_fetched": at,
			"updated_at":   at,
		}).Error
}

func (s *LocationMySQL) Deactivate(ctx context.Context, locationID string) error {
	res := s.db.WithContext(ctx).Model(&models.TrackedLocation{}).
		Where("location_id = ?", locationID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ObservationMySQL implements ObservationStore on gorm.
type ObservationMySQL struct {
	db *gorm.DB
}

func NewObservationMySQL(db *gorm.DB) *ObservationMySQL {
	return &ObservationMySQL{db: db}
}

func (s *ObservationMySQL) Insert(ctx context.Context, obs *models.Observation) error {
	obs.CityNorm = models.NormalizeCity(obs.City)
	return s.db.WithContext(ctx).Create(obs).Error
}

func (s *ObservationMySQL) LatestByCity(ctx context.Context, city string) (*models.Observation, error) {
	var obs models.Observation
	err := s.db.WithContext(ctx).
		Where("city_norm = ?", models.NormalizeCity(city)).
		Order("timestamp DESC").
		First(&obs).Error
	if err != nil {
		return nil, translate(err)
	}
	return &obs, nil
}

func (s *ObservationMySQL) RangeByCity(ctx context.Context, city string, from, to time.Time) ([]models.Observation, error) {
	var observations []models.Observation
	err := s.db.WithContext(ctx).
		Where("city_norm = ? AND timestamp >= ? AND timestamp <= ?", models.NormalizeCity(city), from, to).
		Order("timestamp DESC").
		Find(&observations).Error
	if err != nil {
		return nil, err
	}
	return observations, nil
}

func (s *ObservationMySQL) DailyAverage(ctx context.Context, city string, day time.Time) (*DailyAverage, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var avg DailyAverage
	err := s.db.WithContext(ctx).Model(&models.Observation{}).
		Select(`AVG(temperature) as temperature, AVG(humidity) as humidity,
			AVG(wind_speed) as wind_speed, AVG(pressure) as pressure, COUNT(*) as samples`).
		Where("city_norm = ? AND timestamp >= ? AND timestamp < ?",
			models.NormalizeCity(city), dayStart, dayEnd).
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	if avg.Samples == 0 {
		return nil, ErrNotFound
	}
	avg.City = city
	avg.Date = dayStart.Format("2006-01-02")
	return &avg, nil
}
