package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"weather-gateway/internal/middleware"
	"weather-gateway/internal/services"
)

type AccountHandler struct {
	auth  *services.AuthService
	usage *services.UsageService
}

func NewAccountHandler(auth *services.AuthService, usage *services.UsageService) *AccountHandler {
	return &AccountHandler{auth: auth, usage: usage}
}

// Register creates a new account
// @Summary Register an account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Account registration data"
// @Success 201 {object} AccountResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 409 {object} ErrorEnvelope
// @Router /api/register [post]
func (h *AccountHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	account, err := h.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			respondError(c, http.StatusConflict, "CONFLICT", "Email already registered")
			return
		}
		log.Printf("handlers: register failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register account")
		return
	}

	token, err := h.auth.GenerateToken(account)
	if err != nil {
		log.Printf("handlers: token generation failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, AccountResponse{
		AccountID: account.AccountID,
		Name:      account.Name,
		Email:     account.Email,
		Plan:      account.Plan,
		Token:     token,
		CreatedAt: account.CreatedAt,
	})
}

// Login authenticates an account
// @Summary Log in
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} AccountResponse
// @Failure 401 {object} ErrorEnvelope
// @Router /api/login [post]
func (h *AccountHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
		return
	}

	account, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
			return
		}
		log.Printf("handlers: login failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in")
		return
	}

	token, err := h.auth.GenerateToken(account)
	if err != nil {
		log.Printf("handlers: token generation failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, AccountResponse{
		AccountID: account.AccountID,
		Name:      account.Name,
		Email:     account.Email,
		Plan:      account.Plan,
		Token:     token,
		CreatedAt: account.CreatedAt,
	})
}

// IssueAPIKey issues or rotates the caller's API key
// @Summary Issue API key
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} APIKeyResponse
// @Failure 401 {object} ErrorEnvelope
// @Router /api/apikey [post]
func (h *AccountHandler) IssueAPIKey(c *gin.Context) {
	accountID := c.GetString(middleware.ContextAccountID)

	apiKey, err := h.auth.IssueAPIKey(c.Request.Context(), accountID)
	if err != nil {
		log.Printf("handlers: key issuance failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to issue API key")
		return
	}

	c.JSON(http.StatusOK, APIKeyResponse{APIKey: apiKey})
}

// RevokeAPIKey revokes the caller's API key
// @Summary Revoke API key
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorEnvelope
// @Router /api/apikey [delete]
func (h *AccountHandler) RevokeAPIKey(c *gin.Context) {
	accountID := c.GetString(middleware.ContextAccountID)

	if err := h.auth.RevokeAPIKey(c.Request.Context(), accountID); err != nil {
		if errors.Is(err, services.ErrNoAPIKey) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "No API key issued for this account")
			return
		}
		log.Printf("handlers: key revocation failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke API key")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "API key disabled"})
}

// GetUsage returns daily request counts for the last 7 days
// @Summary Get daily usage
// @Tags usage
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.UsageSummary
// @Failure 401 {object} ErrorEnvelope
// @Router /api/usage [get]
func (h *AccountHandler) GetUsage(c *gin.Context) {
	accountID := c.GetString(middleware.ContextAccountID)

	summary, err := h.usage.Daily(c.Request.Context(), accountID, 7)
	if err != nil {
		log.Printf("handlers: usage query failed: %v", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch usage data")
		return
	}

	c.JSON(http.StatusOK, summary)
}
