package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/services"
)

// ContextCredential is the gin context key holding the resolved credential.
const ContextCredential = "credential"

// ContextAccountID is the gin context key holding the JWT account id.
const ContextAccountID = "account_id"

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// APIKeyAuth authenticates the x-api-key header (or api_key query
// parameter) through the credential cache. The 401 message is uniform for
// any unknown key; a storage outage is a 503, never a silent pass.
func APIKeyAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("x-api-key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody("UNAUTHORIZED", "API key is required. Include it in the 'x-api-key' header."))
			return
		}

		cred, err := auth.ResolveAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			if errors.Is(err, services.ErrInvalidKey) {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					errorBody("UNAUTHORIZED", "Invalid API key. Please check your API key and try again."))
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				errorBody("SERVICE_UNAVAILABLE", "Authentication is temporarily unavailable. Please try again later."))
			return
		}

		c.Set(ContextCredential, cred)
		c.Next()
	}
}

// RateLimit runs the admission check for the authenticated caller and
// attaches the rate-limit headers to every response, allowed or denied.
func RateLimit(limiter *services.RateLimitService, cm *cache.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		val, exists := c.Get(ContextCredential)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody("UNAUTHORIZED", "Authentication required"))
			return
		}
		cred := val.(*services.Credential)

		endpoint := c.FullPath()
		decision := limiter.Admit(c.Request.Context(), cred, endpoint)

		c.Header("X-RateLimit-Limit-Daily", fmt.Sprintf("%d", decision.LimitDaily))
		c.Header("X-RateLimit-Remaining-Daily", fmt.Sprintf("%d", decision.RemainingDaily))
		c.Header("X-RateLimit-Limit-Hourly", fmt.Sprintf("%d", decision.LimitHourly))
		c.Header("X-RateLimit-Remaining-Hourly", fmt.Sprintf("%d", decision.RemainingHourly))

		if !decision.Allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))

			var message string
			if decision.Scope == services.ScopeDaily {
				message = fmt.Sprintf("Daily request limit exceeded (%d requests/day)", decision.LimitDaily)
			} else {
				message = fmt.Sprintf("Hourly request limit exceeded (%d requests/hour)", decision.LimitHourly)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				errorBody("RATE_LIMIT_EXCEEDED", message))
			return
		}

		cm.PublishUsage(cred.AccountID, endpoint)
		c.Next()
	}
}

// JWTAuth protects the account-management endpoints with a bearer token.
func JWTAuth(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody("UNAUTHORIZED", "Authentication required"))
			return
		}

		claims, err := auth.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				errorBody("UNAUTHORIZED", "Invalid token"))
			return
		}

		c.Set(ContextAccountID, claims.AccountID)
		c.Next()
	}
}

// Validation enforces a JSON content type on mutating requests.
func Validation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut {
			if c.Request.ContentLength > 0 && !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
				c.AbortWithStatusJSON(http.StatusBadRequest,
					errorBody("BAD_REQUEST", "Content-Type must be application/json"))
				return
			}
		}
		c.Next()
	}
}
