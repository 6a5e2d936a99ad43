package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weather-gateway/configs"
	"weather-gateway/internal/cache"
	"weather-gateway/internal/database"
	"weather-gateway/internal/handlers"
	"weather-gateway/internal/middleware"
	"weather-gateway/internal/scheduler"
	"weather-gateway/internal/services"
	"weather-gateway/internal/store"
	"weather-gateway/internal/upstream"

	"github.com/gin-gonic/gin"
)

// @title Weather Gateway API
// @version 1.0
// @description A metered public weather API with plan-aware rate limiting and freshness-based caching

// @contact.name API Support
// @contact.email support@weathergateway.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration (reads .env when present)
	cfg, err := configs.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}

	// Initialize cache (degrades to local-only when redis is down)
	cacheMgr := cache.NewManager(cfg.RedisURL, cfg.WeatherCacheTTL)
	defer cacheMgr.Close()

	// Stores
	accounts := store.NewAccountMySQL(db)
	usage := store.NewUsageMySQL(db)
	locations := store.NewLocationMySQL(db)
	observations := store.NewObservationMySQL(db)

	// Shared HTTP client for outbound provider calls
	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	weatherClient := upstream.NewWeatherClient(httpClient)
	geocoder := upstream.NewGeocoder(httpClient)

	// Services
	authService := services.NewAuthService(accounts, cacheMgr, cfg.JWTSecret, cfg.JWTTTL, cfg.CredentialTTL)
	rateLimiter := services.NewRateLimitService(usage, cacheMgr, cfg.PlanLimits)
	usageService := services.NewUsageService(usage, cacheMgr, cfg.WeatherCacheTTL)
	locationService := services.NewLocationService(locations, geocoder)
	weatherService := services.NewWeatherService(
		observations, locationService, cacheMgr, weatherClient,
		cfg.FreshnessThreshold, cfg.WeatherCacheTTL, cfg.UpstreamTimeout,
	)

	// Handlers
	accountHandler := handlers.NewAccountHandler(authService, usageService)
	weatherHandler := handlers.NewWeatherHandler(weatherService)
	locationHandler := handlers.NewLocationHandler(locationService)
	wsHandler := handlers.NewWebSocketHandler(cacheMgr.Events())

	// Setup Gin router
	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global middleware
	router.Use(middleware.Validation())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Public routes
	router.POST("/api/register", accountHandler.Register)
	router.POST("/api/login", accountHandler.Login)

	// Account management routes, guarded by JWT
	account := router.Group("/api")
	account.Use(middleware.JWTAuth(authService))

	account.POST("/apikey", accountHandler.IssueAPIKey)
	account.DELETE("/apikey", accountHandler.RevokeAPIKey)
	account.GET("/usage", accountHandler.GetUsage)
	account.GET("/locations", locationHandler.List)
	account.POST("/locations", locationHandler.Track)
	account.DELETE("/locations/:id", locationHandler.Deactivate)

	// Metered weather routes, guarded by API key and rate limits
	weather := router.Group("/api/weather")
	weather.Use(middleware.APIKeyAuth(authService))
	weather.Use(middleware.RateLimit(rateLimiter, cacheMgr))

	weather.GET("/current", weatherHandler.GetCurrent)
	weather.GET("/history", weatherHandler.GetHistory)
	weather.GET("/daily-average", weatherHandler.GetDailyAverage)

	// WebSocket route
	if cfg.EnableWebSocket {
		go wsHandler.RunHub()
		router.GET("/ws", wsHandler.HandleConnections)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		dbStatus := "connected"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			dbStatus = "unreachable"
		}

		redisStatus := "connected"
		if !cacheMgr.IsAvailable() {
			redisStatus = "local_cache_only"
		}

		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
			"services": map[string]string{
				"database": dbStatus,
				"redis":    redisStatus,
				"cache":    "active",
			},
		})
	})

	// Background ingest keeps tracked locations fresh
	if cfg.EnableIngest {
		sched := scheduler.New(weatherService, locationService, cfg.IngestInterval)
		if err := sched.Start(); err != nil {
			log.Fatal("Failed to start scheduler: ", err)
		}
		defer sched.Stop()
	}

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
}
