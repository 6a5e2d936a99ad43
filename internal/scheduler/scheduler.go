package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"weather-gateway/internal/services"
)

// Scheduler periodically refreshes observations for every active
// tracked location, so popular cities stay warm without waiting for
// an API request to miss the cache.
type Scheduler struct {
	scheduler *gocron.Scheduler
	weather   *services.WeatherService
	locations *services.LocationService
	interval  time.Duration
}

// New creates a new Scheduler.
func New(weather *services.WeatherService, locations *services.LocationService, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		weather:   weather,
		locations: locations,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// runOnce re-reads the registry each cycle so locations tracked after
// startup are picked up without a restart.
func (s *Scheduler) runOnce() {
	log.Println("scheduler: running ingest job")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	locs, err := s.locations.List(ctx, true)
	if err != nil {
		log.Printf("scheduler: listing tracked locations failed: %v", err)
		return
	}
	if len(locs) == 0 {
		log.Println("scheduler: no active locations; nothing to ingest")
		return
	}

	var wg sync.WaitGroup
	for _, loc := range locs {
		loc := loc
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := s.weather.Ingest(ctx, loc); err != nil {
				log.Printf("scheduler: ingest failed for %s: %v", loc.Name, err)
			}
		}()
	}
	wg.Wait()
	log.Println("scheduler: completed ingest job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
