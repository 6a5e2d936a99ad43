package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/store"
)

// UsageSummary is the zero-filled per-day usage report for an account.
type UsageSummary struct {
	AccountID string           `json:"account_id"`
	StartDate string           `json:"start_date"`
	EndDate   string           `json:"end_date"`
	Usage     []store.DayCount `json:"usage"`
}

// UsageService reads daily totals back out of the ledger for reporting.
type UsageService struct {
	usage    store.UsageStore
	cache    *cache.Manager
	cacheTTL time.Duration
	now      func() time.Time
}

func NewUsageService(usage store.UsageStore, cm *cache.Manager, cacheTTL time.Duration) *UsageService {
	return &UsageService{
		usage:    usage,
		cache:    cm,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// Daily returns request counts for the trailing `days` days, including
// today, with missing days filled in as zero.
func (s *UsageService) Daily(ctx context.Context, accountID string, days int) (*UsageSummary, error) {
	cacheKey := fmt.Sprintf("usage:daily:%s", accountID)

	var cached UsageSummary
	if found, err := s.cache.Get(cacheKey, &cached); found && err == nil {
		return &cached, nil
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -(days - 1))
	startDate := start.Format("2006-01-02")
	endDate := end.Format("2006-01-02")

	counts, err := s.usage.DailyCounts(ctx, accountID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		AccountID: accountID,
		StartDate: startDate,
		EndDate:   endDate,
		Usage:     fillMissingDays(counts, start, end),
	}

	if err := s.cache.Set(cacheKey, summary, s.cacheTTL); err != nil {
		log.Printf("usage: failed to cache summary: %v", err)
	}

	return summary, nil
}

func fillMissingDays(counts []store.DayCount, start, end time.Time) []store.DayCount {
	byDate := make(map[string]int64, len(counts))
	for _, c := range counts {
		byDate[c.Date] = c.Count
	}

	filled := make([]store.DayCount, 0, len(counts))
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		filled = append(filled, store.DayCount{Date: date, Count: byDate[date]})
	}
	return filled
}
