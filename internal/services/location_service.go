package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"weather-gateway/internal/models"
	"weather-gateway/internal/store"
	"weather-gateway/internal/upstream"
)

// ErrLocationNotFound means the name matched neither the registry nor the
// geocoder.
var ErrLocationNotFound = errors.New("location not found")

// GeocoderClient is the outbound geocoding collaborator.
type GeocoderClient interface {
	Lookup(ctx context.Context, name string) (*upstream.GeoResult, error)
}

// LocationService maintains the tracked-location registry and resolves
// free-text names through it, geocoding only on first sight.
type LocationService struct {
	locations store.LocationStore
	geocoder  GeocoderClient
}

func NewLocationService(locations store.LocationStore, geocoder GeocoderClient) *LocationService {
	return &LocationService{locations: locations, geocoder: geocoder}
}

// Resolve returns the tracked location for name. A registry hit uses the
// stored coordinates without re-geocoding. A miss consults the geocoder:
// no match yields ErrLocationNotFound, a match is upserted with fetch
// telemetry reset and marked active.
func (s *LocationService) Resolve(ctx context.Context, name, addedBy string) (*models.TrackedLocation, error) {
	loc, err := s.locations.FindByName(ctx, name)
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	result, err := s.geocoder.Lookup(ctx, name)
	if err != nil {
		if errors.Is(err, upstream.ErrNoMatch) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("geocoding %q: %w", name, err)
	}

	now := time.Now().UTC()
	return s.locations.Upsert(ctx, &models.TrackedLocation{
		LocationID:  uuid.New().String(),
		Name:        result.Name,
		Lat:         result.Lat,
		Lon:         result.Lon,
		Country:     result.Country,
		Region:      result.Region,
		AddedBy:     addedBy,
		IsActive:    true,
		LastFetched: &now,
		FetchCount:  0,
	})
}

// Track explicitly adds a location to the registry.
func (s *LocationService) Track(ctx context.Context, name, addedBy string) (*models.TrackedLocation, error) {
	return s.Resolve(ctx, name, addedBy)
}

// List returns registered locations, optionally only active ones.
func (s *LocationService) List(ctx context.Context, activeOnly bool) ([]models.TrackedLocation, error) {
	return s.locations.List(ctx, activeOnly)
}

// Deactivate soft-deletes a location. Its observations are kept; they
// reference the immutable LocationID.
func (s *LocationService) Deactivate(ctx context.Context, locationID string) error {
	err := s.locations.Deactivate(ctx, locationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrLocationNotFound
	}
	return err
}

// RecordFetch bumps a location's fetch telemetry.
func (s *LocationService) RecordFetch(ctx context.Context, locationID string, at time.Time) error {
	return s.locations.RecordFetch(ctx, locationID, at)
}
