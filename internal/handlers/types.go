package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"weather-gateway/internal/models"
)

// ErrorEnvelope is the uniform error body: {"error": {"code", "message"}}.
// Internal detail (stack traces, raw provider errors) never goes in it.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorEnvelope{Error: ErrorDetail{Code: code, Message: message}})
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AccountResponse struct {
	AccountID string      `json:"account_id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Plan      models.Plan `json:"plan"`
	Token     string      `json:"token,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type APIKeyResponse struct {
	APIKey string `json:"api_key"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type TrackLocationRequest struct {
	Name string `json:"name" binding:"required"`
}

type HistoryResponse struct {
	City         string               `json:"city"`
	Hours        int                  `json:"hours"`
	Observations []models.Observation `json:"observations"`
}
