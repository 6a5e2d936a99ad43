package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"weather-gateway/internal/middleware"
	"weather-gateway/internal/services"
	"weather-gateway/internal/upstream"
)

type LocationHandler struct {
	locations *services.LocationService
}

func NewLocationHandler(locations *services.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

// List returns tracked locations
// @Summary List tracked locations
// @Tags locations
// @Produce json
// @Param active query bool false "Only active locations"
// @Security BearerAuth
// @Success 200 {array} models.TrackedLocation
// @Router /api/locations [get]
func (h *LocationHandler) List(c *gin.Context) {
	activeOnly := false
	if raw := c.Query("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "active must be a boolean")
			return
		}
		activeOnly = parsed
	}

	locations, err := h.locations.List(c.Request.Context(), activeOnly)
	if err != nil {
		log.Printf("handlers: location list failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list locations")
		return
	}

	c.JSON(http.StatusOK, locations)
}

// Track adds a location to the registry
// @Summary Track a location
// @Tags locations
// @Accept json
// @Produce json
// @Param request body TrackLocationRequest true "Location to track"
// @Security BearerAuth
// @Success 201 {object} models.TrackedLocation
// @Failure 404 {object} ErrorEnvelope
// @Router /api/locations [post]
func (h *LocationHandler) Track(c *gin.Context) {
	var req TrackLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	addedBy := ""
	if claims := c.GetString(middleware.ContextAccountID); claims != "" {
		addedBy = claims
	}

	loc, err := h.locations.Track(c.Request.Context(), req.Name, addedBy)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLocationNotFound):
			respondError(c, http.StatusNotFound, "CITY_NOT_FOUND",
				"City not found. Please check the spelling and try again.")
		case errors.Is(err, upstream.ErrUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"Geocoding service is temporarily unavailable. Please try again later.")
		default:
			log.Printf("handlers: track location failed: %v", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to track location")
		}
		return
	}

	c.JSON(http.StatusCreated, loc)
}

// Deactivate soft-deletes a tracked location
// @Summary Deactivate a location
// @Tags locations
// @Produce json
// @Param id path string true "Location ID"
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorEnvelope
// @Router /api/locations/{id} [delete]
func (h *LocationHandler) Deactivate(c *gin.Context) {
	locationID := c.Param("id")

	if err := h.locations.Deactivate(c.Request.Context(), locationID); err != nil {
		if errors.Is(err, services.ErrLocationNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Location not found")
			return
		}
		log.Printf("handlers: deactivate location failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to deactivate location")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Location deactivated"})
}
