package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"weather-gateway/internal/cache"
	"weather-gateway/internal/models"
	"weather-gateway/internal/store"
)

var (
	// ErrInvalidKey means the API key matched no account. Callers must not
	// learn anything more specific than that.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned on duplicate registration.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNoAPIKey is returned when revoking an account that has no key.
	ErrNoAPIKey = errors.New("no API key issued")
)

// Credential is the cached projection of an account used on the hot path.
type Credential struct {
	AccountID    string      `json:"account_id"`
	Email        string      `json:"email"`
	Plan         models.Plan `json:"plan"`
	APIKey       string      `json:"api_key"`
	DailyQuota   int64       `json:"daily_quota"`
	MonthlyQuota int64       `json:"monthly_quota"`
}

// AuthService resolves API keys through a short-TTL credential cache,
// manages key issuance/revocation, and signs dashboard JWTs.
type AuthService struct {
	accounts      store.AccountStore
	cache         *cache.Manager
	jwtSecret     []byte
	jwtTTL        time.Duration
	credentialTTL time.Duration
}

func NewAuthService(accounts store.AccountStore, cm *cache.Manager, jwtSecret string, jwtTTL, credentialTTL time.Duration) *AuthService {
	return &AuthService{
		accounts:      accounts,
		cache:         cm,
		jwtSecret:     []byte(jwtSecret),
		jwtTTL:        jwtTTL,
		credentialTTL: credentialTTL,
	}
}

func credentialCacheKey(apiKey string) string {
	return "apikey:" + apiKey
}

// ResolveAPIKey authenticates an opaque key. Cache hits skip durable
// storage entirely. Misses are looked up and cached; unknown keys are NOT
// negative-cached, so a just-issued key works immediately. A storage error
// is returned as-is and must never be treated as a valid key.
func (s *AuthService) ResolveAPIKey(ctx context.Context, apiKey string) (*Credential, error) {
	cacheKey := credentialCacheKey(apiKey)

	var cached Credential
	if found, err := s.cache.Get(cacheKey, &cached); found && err == nil {
		return &cached, nil
	}

	account, err := s.accounts.FindByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("resolving API key: %w", err)
	}

	cred := &Credential{
		AccountID:    account.AccountID,
		Email:        account.Email,
		Plan:         account.Plan,
		APIKey:       apiKey,
		DailyQuota:   account.DailyQuota,
		MonthlyQuota: account.MonthlyQuota,
	}

	if err := s.cache.Set(cacheKey, cred, s.credentialTTL); err != nil {
		log.Printf("auth: failed to cache credential: %v", err)
	}

	return cred, nil
}

// Register creates a new account on the BASIC plan.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*models.Account, error) {
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		AccountID:    uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Plan:         models.PlanBasic,
		DailyQuota:   1000,
		MonthlyQuota: 30000,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// Login verifies a password and returns the account.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

// IssueAPIKey creates (or rotates) the account's opaque key. Any cached
// credential for a previous key is dropped; entries that slip through
// simply expire within the credential TTL.
func (s *AuthService) IssueAPIKey(ctx context.Context, accountID string) (string, error) {
	account, err := s.accounts.FindByAccountID(ctx, accountID)
	if err != nil {
		return "", err
	}

	apiKey := "wk_" + uuid.New().String()
	if err := s.accounts.SetAPIKey(ctx, accountID, &apiKey); err != nil {
		return "", err
	}

	if account.APIKey != nil {
		if err := s.cache.Delete(credentialCacheKey(*account.APIKey)); err != nil {
			log.Printf("auth: failed to invalidate credential cache: %v", err)
		}
	}

	return apiKey, nil
}

// RevokeAPIKey clears the account's key and best-effort invalidates the
// cached credential. Revocation is soft within the credential TTL window.
func (s *AuthService) RevokeAPIKey(ctx context.Context, accountID string) error {
	account, err := s.accounts.FindByAccountID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.APIKey == nil {
		return ErrNoAPIKey
	}

	if err := s.accounts.SetAPIKey(ctx, accountID, nil); err != nil {
		return err
	}

	if err := s.cache.Delete(credentialCacheKey(*account.APIKey)); err != nil {
		log.Printf("auth: failed to invalidate credential cache: %v", err)
	}
	return nil
}

type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// GenerateToken signs a dashboard JWT for account-management endpoints.
func (s *AuthService) GenerateToken(account *models.Account) (string, error) {
	claims := &Claims{
		AccountID: account.AccountID,
		Email:     account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "weather-gateway",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses and verifies a dashboard JWT.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
