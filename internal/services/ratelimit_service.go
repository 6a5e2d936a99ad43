package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"weather-gateway/configs"
	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/store"
)

// Scope names which ceiling a denial hit.
type Scope string

const (
	ScopeDaily  Scope = "daily"
	ScopeHourly Scope = "hourly"
)

// Decision is the outcome of an admission check. Limit and remaining
// counts are always populated for observability headers; RetryAfter is
// only meaningful when Allowed is false.
type Decision struct {
	Allowed         bool
	Scope           Scope
	RetryAfter      int // seconds
	LimitDaily      int64
	RemainingDaily  int64
	LimitHourly     int64
	RemainingHourly int64
}

// RateLimitService admits or denies requests against per-plan daily and
// hourly ceilings. Daily counts live in the durable ledger; hourly counts
// are true fixed-window cache counters keyed by the UTC hour. Any ledger
// or counter failure fails open: availability over strict enforcement.
type RateLimitService struct {
	usage    store.UsageStore
	counters *cache.Manager
	limits   map[models.Plan]configs.PlanLimits
	now      func() time.Time
}

func NewRateLimitService(usage store.UsageStore, counters *cache.Manager, limits map[models.Plan]configs.PlanLimits) *RateLimitService {
	return &RateLimitService{
		usage:    usage,
		counters: counters,
		limits:   limits,
		now:      time.Now,
	}
}

// limitsFor looks the plan up in the closed table. Unknown values get
// BASIC ceilings rather than an arbitrary dynamic lookup.
func (s *RateLimitService) limitsFor(plan models.Plan) configs.PlanLimits {
	if limits, ok := s.limits[plan]; ok {
		return limits
	}
	log.Printf("ratelimit: unknown plan %q, applying BASIC ceilings", plan)
	return s.limits[models.PlanBasic]
}

// Admit records the request in the ledger and checks it against the
// caller's ceilings. The ledger increment happens before the comparison in
// one atomic upsert, so two concurrent requests can never both observe
// "under limit" on the same count. Quota is consumed even if the request
// later fails upstream.
func (s *RateLimitService) Admit(ctx context.Context, cred *Credential, endpoint string) Decision {
	now := s.now().UTC()
	limits := s.limitsFor(cred.Plan)

	decision := Decision{
		Allowed:         true,
		LimitDaily:      limits.Daily,
		RemainingDaily:  limits.Daily,
		LimitHourly:     limits.Hourly,
		RemainingHourly: limits.Hourly,
	}

	today := now.Format("2006-01-02")
	dailyCount, err := s.usage.IncrementDaily(ctx, cred.AccountID, cred.APIKey, endpoint, today)
	if err != nil {
		log.Printf("ratelimit: ledger increment failed, failing open: %v", err)
		return decision
	}
	decision.RemainingDaily = clampRemaining(limits.Daily - dailyCount)

	if dailyCount > limits.Daily {
		decision.Allowed = false
		decision.Scope = ScopeDaily
		decision.RetryAfter = secondsUntilMidnight(now)
		return decision
	}

	hourKey := fmt.Sprintf("ratelimit:hourly:%s:%s:%s", cred.APIKey, endpoint, now.Format("2006-01-02-15"))
	hourlyCount, err := s.counters.IncrementWindow(hourKey, time.Hour)
	if err != nil {
		log.Printf("ratelimit: hourly counter failed, failing open: %v", err)
		return decision
	}
	decision.RemainingHourly = clampRemaining(limits.Hourly - hourlyCount)

	if hourlyCount > limits.Hourly {
		decision.Allowed = false
		decision.Scope = ScopeHourly
		decision.RetryAfter = secondsUntilNextHour(now)
		return decision
	}

	return decision
}

func clampRemaining(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

func secondsUntilMidnight(now time.Time) int {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return retryAfterSeconds(midnight.Sub(now))
}

func secondsUntilNextHour(now time.Time) int {
	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	return retryAfterSeconds(nextHour.Sub(now))
}

// retryAfterSeconds rounds up so a Retry-After of 0 is never emitted for a
// denial.
func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
