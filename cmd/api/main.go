package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/jokebox/jokebox-backend/internal/cache"
	"github.com/dafibh/jokebox/jokebox-backend/internal/config"
	"github.com/dafibh/jokebox/jokebox-backend/internal/handler"
	"github.com/dafibh/jokebox/jokebox-backend/internal/middleware"
	"github.com/dafibh/jokebox/jokebox-backend/internal/repository/postgres"
	"github.com/dafibh/jokebox/jokebox-backend/internal/service"
	"github.com/dafibh/jokebox/jokebox-backend/internal/websocket"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()

	// Apply migrations before serving
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Connect to database
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Connected to database")

	// Initialize repositories
	jokeRepo := postgres.NewJokeRepository(pool)
	versionRepo := postgres.NewJokeVersionRepository(pool)

	// WebSocket hub for the change feed
	hub := websocket.NewHub()

	// Initialize services
	jokeService := service.NewJokeService(jokeRepo, versionRepo)
	jokeService.SetEventPublisher(hub)
	jokeService.SetMaxPageSize(cfg.MaxPageSize)

	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		jokeService.SetPageCache(cache.NewJokePageCache(rdb, cfg.CacheTTL))
		log.Info().Dur("ttl", cfg.CacheTTL).Msg("Joke page cache enabled")
	}

	// Write guards: auth when configured, then per-caller rate limiting
	var guards []echo.MiddlewareFunc
	if cfg.AuthEnabled() {
		editorAuth, err := middleware.NewEditorAuth(cfg.Auth0Domain, cfg.Auth0Audience, cfg.Auth0Scope)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create auth middleware")
		}
		guards = append(guards, editorAuth.Require())
	} else {
		log.Warn().Msg("AUTH0_DOMAIN not set, joke changes are unauthenticated")
	}

	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer rateLimiter.Stop()
	guards = append(guards, middleware.RateLimitMiddleware(rateLimiter))

	// Initialize handlers
	jokeHandler := handler.NewJokeHandler(jokeService)
	wsHandler := handler.NewWebSocketHandler(hub, cfg.CORSOrigins)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderClientID},
		ExposeHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Client identity for rate limiting and logs
	e.Use(middleware.ClientID())

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"subscribers": hub.Total(),
		})
	})

	// Register API routes
	handler.RegisterRoutes(e, jokeHandler, wsHandler, guards...)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			log.Info().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("client_id", req.Header.Get(middleware.HeaderClientID)).
				Msg("request")

			return nil
		}
	}
}
