package models

import (
	"strings"
	"time"
)

// Plan is the closed set of subscription tiers. Quota ceilings are looked up
// from configuration by tier; unknown values fall back to BASIC.
type Plan string

const (
	PlanBasic     Plan = "BASIC"
	PlanStandard  Plan = "STANDARD"
	PlanUnlimited Plan = "UNLIMITED"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanBasic, PlanStandard, PlanUnlimited:
		return true
	}
	return false
}

// Accounts
type Account struct {
	ID           uint    `gorm:"primaryKey;autoIncrement"`
	AccountID    string  `gorm:"type:varchar(100);uniqueIndex;not null"`
	Name         string  `gorm:"type:varchar(255);not null"`
	Email        string  `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string  `gorm:"type:varchar(255);not null"`
	Plan         Plan    `gorm:"type:varchar(20);not null;default:'BASIC'"`
	APIKey       *string `gorm:"type:varchar(255);uniqueIndex"` // nil until a key is issued
	DailyQuota   int64   `gorm:"not null;default:1000"`
	MonthlyQuota int64   `gorm:"not null;default:30000"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Account) TableName() string {
	return "accounts"
}

// Usage ledger. Exactly one row per (api_key, endpoint, date); rows are
// created lazily on the first request of the day and only ever counted
// forward. History is retained for usage reporting.
type UsageRecord struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	AccountID string `gorm:"type:varchar(100);index;not null"`
	APIKey    string `gorm:"type:varchar(255);uniqueIndex:idx_key_endpoint_date;not null"`
	Endpoint  string `gorm:"type:varchar(255);uniqueIndex:idx_key_endpoint_date;not null"`
	Date      string `gorm:"type:varchar(10);uniqueIndex:idx_key_endpoint_date;not null"` // YYYY-MM-DD, UTC
	Count     int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// Tracked locations. LocationID is an immutable surrogate key assigned at
// first insert; observations join on it so renames and deactivation never
// orphan history. Locations are deactivated, never hard-deleted.
type TrackedLocation struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"`
	LocationID  string  `gorm:"type:varchar(100);uniqueIndex;not null"`
	Name        string  `gorm:"type:varchar(255);not null"`
	NameNorm    string  `gorm:"type:varchar(255);uniqueIndex;not null"`
	Lat         float64 `gorm:"not null"`
	Lon         float64 `gorm:"not null"`
	Country     string  `gorm:"type:varchar(100)"`
	Region      string  `gorm:"type:varchar(100)"`
	AddedBy     string  `gorm:"type:varchar(255)"`
	IsActive    bool    `gorm:"index;not null;default:true"`
	LastFetched *time.Time
	FetchCount  int64 `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (TrackedLocation) TableName() string {
	return "tracked_locations"
}

// Observations are append-only; one row per provider poll.
type Observation struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	LocationID  string `gorm:"type:varchar(100);index;not null"`
	City        string `gorm:"type:varchar(255);not null"`
	CityNorm    string `gorm:"type:varchar(255);index:idx_city_time;not null"`
	Lat         float64
	Lon         float64
	Temperature float64
	Humidity    float64
	WindSpeed   float64
	Pressure    float64
	Timestamp   time.Time `gorm:"index:idx_city_time;not null"`
	CreatedAt   time.Time
}

func (Observation) TableName() string {
	return "observations"
}

// NormalizeCity canonicalizes a free-text city name for cache keys and
// name-based lookups: lowercased, with runs of whitespace collapsed.
func NormalizeCity(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
