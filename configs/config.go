package configs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"weather-gateway/internal/models"
)

// PlanLimits are per-plan request ceilings. Daily counts come from the
// durable ledger, hourly counts from fixed-window cache counters.
type PlanLimits struct {
	Daily  int64
	Hourly int64
}

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string

	JWTSecret string
	JWTTTL    time.Duration

	// CredentialTTL bounds how long a resolved API key stays cached, which
	// is also the eventual-consistency window after a key is revoked.
	CredentialTTL time.Duration

	// WeatherCacheTTL must stay below FreshnessThreshold so a cache
	// invalidation bug cannot be masked by snapshot freshness.
	WeatherCacheTTL    time.Duration
	FreshnessThreshold time.Duration

	UpstreamTimeout time.Duration
	IngestInterval  time.Duration

	EnableWebSocket bool
	EnableIngest    bool

	PlanLimits map[models.Plan]PlanLimits
}

// Load reads configuration from the environment with sensible defaults.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		DatabaseURL:        getEnv("DATABASE_URL", "root:password@tcp(localhost:3306)/weather_gateway?charset=utf8mb4&parseTime=True&loc=UTC"),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTTTL:             parseDuration(getEnv("JWT_TTL", "24h"), 24*time.Hour),
		CredentialTTL:      parseDuration(getEnv("CREDENTIAL_CACHE_TTL", "1h"), time.Hour),
		WeatherCacheTTL:    parseDuration(getEnv("WEATHER_CACHE_TTL", "5m"), 5*time.Minute),
		FreshnessThreshold: parseDuration(getEnv("FRESHNESS_THRESHOLD", "10m"), 10*time.Minute),
		UpstreamTimeout:    parseDuration(getEnv("UPSTREAM_TIMEOUT", "15s"), 15*time.Second),
		IngestInterval:     parseDuration(getEnv("INGEST_INTERVAL", "15m"), 15*time.Minute),
		EnableWebSocket:    parseBool(getEnv("ENABLE_WEBSOCKET", "true")),
		EnableIngest:       parseBool(getEnv("ENABLE_INGEST", "true")),
		PlanLimits:         loadPlanLimits(),
	}

	if cfg.WeatherCacheTTL >= cfg.FreshnessThreshold {
		return nil, fmt.Errorf("WEATHER_CACHE_TTL (%s) must be shorter than FRESHNESS_THRESHOLD (%s)",
			cfg.WeatherCacheTTL, cfg.FreshnessThreshold)
	}

	return cfg, nil
}

// loadPlanLimits builds the closed plan table. Ceilings are configuration,
// not code: each tier can be overridden via RATE_LIMIT_<PLAN>_{DAILY,HOURLY}.
func loadPlanLimits() map[models.Plan]PlanLimits {
	defaults := map[models.Plan]PlanLimits{
		models.PlanBasic:     {Daily: 1000, Hourly: 30},
		models.PlanStandard:  {Daily: 10000, Hourly: 120},
		models.PlanUnlimited: {Daily: 100000, Hourly: 1000},
	}

	limits := make(map[models.Plan]PlanLimits, len(defaults))
	for plan, def := range defaults {
		limits[plan] = PlanLimits{
			Daily:  parseInt64(getEnv("RATE_LIMIT_"+string(plan)+"_DAILY", ""), def.Daily),
			Hourly: parseInt64(getEnv("RATE_LIMIT_"+string(plan)+"_HOURLY", ""), def.Hourly),
		}
	}
	return limits
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt64(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
