package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-gateway/configs"
	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/services"
	"weather-gateway/internal/store"
)

type stubAccountStore struct {
	account *models.Account
	err     error
}

func (s *stubAccountStore) Create(ctx context.Context, account *models.Account) error { return s.err }

func (s *stubAccountStore) FindByAPIKey(ctx context.Context, apiKey string) (*models.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.account != nil && s.account.APIKey != nil && *s.account.APIKey == apiKey {
		return s.account, nil
	}
	return nil, store.ErrNotFound
}

func (s *stubAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return nil, store.ErrNotFound
}

func (s *stubAccountStore) FindByAccountID(ctx context.Context, accountID string) (*models.Account, error) {
	return nil, store.ErrNotFound
}

func (s *stubAccountStore) SetAPIKey(ctx context.Context, accountID string, apiKey *string) error {
	return s.err
}

type stubUsageStore struct {
	counts map[string]int64
}

func (s *stubUsageStore) IncrementDaily(ctx context.Context, accountID, apiKey, endpoint, date string) (int64, error) {
	if s.counts == nil {
		s.counts = make(map[string]int64)
	}
	s.counts[apiKey+endpoint+date]++
	return s.counts[apiKey+endpoint+date], nil
}

func (s *stubUsageStore) DailyCounts(ctx context.Context, accountID, from, to string) ([]store.DayCount, error) {
	return nil, nil
}

func newTestRouter(accounts *stubAccountStore, limits map[models.Plan]configs.PlanLimits) *gin.Engine {
	gin.SetMode(gin.TestMode)

	cm := cache.NewManager("localhost:1", time.Minute)
	auth := services.NewAuthService(accounts, cm, "secret", time.Hour, time.Hour)
	limiter := services.NewRateLimitService(&stubUsageStore{}, cm, limits)

	router := gin.New()
	router.Use(Validation())

	weather := router.Group("/api/weather")
	weather.Use(APIKeyAuth(auth))
	weather.Use(RateLimit(limiter, cm))
	weather.GET("/current", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return router
}

func validAccount() *stubAccountStore {
	key := "wk_valid"
	return &stubAccountStore{account: &models.Account{
		AccountID: "acct-1",
		Email:     "a@example.com",
		Plan:      models.PlanBasic,
		APIKey:    &key,
	}}
}

func defaultLimits() map[models.Plan]configs.PlanLimits {
	return map[models.Plan]configs.PlanLimits{
		models.PlanBasic: {Daily: 1000, Hourly: 30},
	}
}

func doRequest(router *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/weather/current", nil)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAPIKeyAuthMissingKey(t *testing.T) {
	router := newTestRouter(validAccount(), defaultLimits())

	w := doRequest(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	assert.Contains(t, w.Body.String(), "x-api-key")
}

func TestAPIKeyAuthInvalidKey(t *testing.T) {
	router := newTestRouter(validAccount(), defaultLimits())

	w := doRequest(router, "wk_wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestAPIKeyAuthAcceptsQueryParameter(t *testing.T) {
	router := newTestRouter(validAccount(), defaultLimits())

	req := httptest.NewRequest(http.MethodGet, "/api/weather/current?api_key=wk_valid", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyAuthStorageOutageIs503(t *testing.T) {
	accounts := &stubAccountStore{err: errors.New("connection refused")}
	router := newTestRouter(accounts, defaultLimits())

	w := doRequest(router, "wk_valid")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "SERVICE_UNAVAILABLE")
}

func TestRateLimitHeadersOnSuccess(t *testing.T) {
	router := newTestRouter(validAccount(), defaultLimits())

	w := doRequest(router, "wk_valid")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit-Daily"))
	assert.Equal(t, "999", w.Header().Get("X-RateLimit-Remaining-Daily"))
	assert.Equal(t, "30", w.Header().Get("X-RateLimit-Limit-Hourly"))
	assert.Equal(t, "29", w.Header().Get("X-RateLimit-Remaining-Hourly"))
}

func TestRateLimitDeniesOverHourlyCeiling(t *testing.T) {
	limits := map[models.Plan]configs.PlanLimits{
		models.PlanBasic: {Daily: 1000, Hourly: 2},
	}
	router := newTestRouter(validAccount(), limits)

	require.Equal(t, http.StatusOK, doRequest(router, "wk_valid").Code)
	require.Equal(t, http.StatusOK, doRequest(router, "wk_valid").Code)

	w := doRequest(router, "wk_valid")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining-Hourly"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimitDeniesOverDailyCeiling(t *testing.T) {
	limits := map[models.Plan]configs.PlanLimits{
		models.PlanBasic: {Daily: 1, Hourly: 30},
	}
	router := newTestRouter(validAccount(), limits)

	require.Equal(t, http.StatusOK, doRequest(router, "wk_valid").Code)

	w := doRequest(router, "wk_valid")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "Daily request limit exceeded")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining-Daily"))
}

func TestValidationRejectsNonJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Validation())
	router.POST("/api/register", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/register", nil)
	req.Header.Set("Content-Type", "text/plain")
	req.ContentLength = 10
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "BAD_REQUEST")
}

func TestJWTAuthRequiresBearerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cm := cache.NewManager("localhost:1", time.Minute)
	auth := services.NewAuthService(&stubAccountStore{}, cm, "secret", time.Hour, time.Hour)

	router := gin.New()
	router.GET("/api/usage", JWTAuth(auth), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cm := cache.NewManager("localhost:1", time.Minute)
	auth := services.NewAuthService(&stubAccountStore{}, cm, "secret", time.Hour, time.Hour)

	token, err := auth.GenerateToken(&models.Account{AccountID: "acct-1", Email: "a@example.com"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/api/usage", JWTAuth(auth), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextAccountID))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acct-1", w.Body.String())
}
