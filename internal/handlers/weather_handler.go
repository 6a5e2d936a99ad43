package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"weather-gateway/internal/services"
)

type WeatherHandler struct {
	weather *services.WeatherService
}

func NewWeatherHandler(weather *services.WeatherService) *WeatherHandler {
	return &WeatherHandler{weather: weather}
}

// GetCurrent serves current conditions for a city
// @Summary Get current weather
// @Description Current conditions for a city, served from cache, a recent snapshot, or a live provider fetch
// @Tags weather
// @Produce json
// @Param city query string true "City name"
// @Security ApiKeyAuth
// @Success 200 {object} services.CurrentConditions
// @Failure 400 {object} ErrorEnvelope
// @Failure 404 {object} ErrorEnvelope
// @Failure 503 {object} ErrorEnvelope
// @Router /api/weather/current [get]
func (h *WeatherHandler) GetCurrent(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "City parameter is required")
		return
	}

	conditions, source, err := h.weather.Current(c.Request.Context(), city)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLocationNotFound):
			respondError(c, http.StatusNotFound, "CITY_NOT_FOUND",
				"City not found. Please check the spelling and try again.")
		case errors.Is(err, services.ErrUpstreamUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
				"Weather service is temporarily unavailable. Please try again later.")
		case errors.Is(err, services.ErrFetchFailed):
			respondError(c, http.StatusInternalServerError, "FETCH_ERROR",
				"Failed to fetch weather data. Please try again.")
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch weather data")
		}
		return
	}

	c.Header("X-Cache", string(source))
	if source == services.SourceStale {
		c.Header("X-Warning", "Using stale data")
	}
	c.JSON(http.StatusOK, conditions)
}

// GetHistory serves recent observations for a city
// @Summary Get weather history
// @Description Observations for the trailing N hours (default 24, max 168)
// @Tags weather
// @Produce json
// @Param city query string true "City name"
// @Param hours query int false "Trailing window in hours"
// @Security ApiKeyAuth
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 404 {object} ErrorEnvelope
// @Router /api/weather/history [get]
func (h *WeatherHandler) GetHistory(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "City parameter is required")
		return
	}

	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 168 {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "hours must be between 1 and 168")
			return
		}
		hours = parsed
	}

	observations, err := h.weather.History(c.Request.Context(), city, hours)
	if err != nil {
		if errors.Is(err, services.ErrNoData) {
			respondError(c, http.StatusNotFound, "CITY_NOT_FOUND", "No weather history for this city")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch weather history")
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		City:         city,
		Hours:        hours,
		Observations: observations,
	})
}

// GetDailyAverage serves averaged observations for one UTC day
// @Summary Get daily averages
// @Description Averaged observation fields for a city on a UTC day (default today)
// @Tags weather
// @Produce json
// @Param city query string true "City name"
// @Param date query string false "UTC day, YYYY-MM-DD"
// @Security ApiKeyAuth
// @Success 200 {object} store.DailyAverage
// @Failure 400 {object} ErrorEnvelope
// @Failure 404 {object} ErrorEnvelope
// @Router /api/weather/daily-average [get]
func (h *WeatherHandler) GetDailyAverage(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "City parameter is required")
		return
	}

	day := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "BAD_REQUEST", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	avg, err := h.weather.DailyAverage(c.Request.Context(), city, day)
	if err != nil {
		if errors.Is(err, services.ErrNoData) {
			respondError(c, http.StatusNotFound, "CITY_NOT_FOUND", "No observations for this city on that day")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute daily average")
		return
	}

	c.JSON(http.StatusOK, avg)
}
