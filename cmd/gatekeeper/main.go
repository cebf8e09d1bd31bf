package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/internal/core/ports"
	"gatekeeper/internal/core/services"
	httphandlers "gatekeeper/internal/handlers/http"
	"gatekeeper/internal/infrastructure/cdn"
	"gatekeeper/internal/infrastructure/githost"
	"gatekeeper/internal/infrastructure/identity"
	"gatekeeper/internal/infrastructure/middleware"
	"gatekeeper/internal/infrastructure/monitoring"
	"gatekeeper/internal/infrastructure/repositories"
	"gatekeeper/pkg/config"
	"gatekeeper/pkg/logger"
	"gatekeeper/pkg/retry"
	"gatekeeper/pkg/tracing"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/gatekeeper/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Decrypt "enc:" prefixed secrets in place
	cfg.DecryptSecrets(log)

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "gatekeeper",
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize store (postgres when configured, memory otherwise)
	storeFactory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer storeFactory.Close()
	store := storeFactory.CreateStore()

	// Display name cache: redis when enabled, in-process otherwise
	var nameCache ports.DisplayNameCache
	var redisCache *identity.RedisNameCache
	if cfg.Redis.Enabled {
		redisCache, err = identity.NewRedisNameCache(
			cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize,
			cfg.Identity.CacheTTL, log,
		)
		if err != nil {
			log.Warnw("redis unavailable, falling back to memory name cache", "error", err)
		}
	}
	if redisCache != nil {
		nameCache = redisCache
		defer redisCache.Close()
	} else {
		memCache := identity.NewMemoryNameCache(cfg.Identity.CacheTTL)
		nameCache = memCache
		defer memCache.Stop()
	}

	// External collaborators
	identityClient := identity.NewClient(
		cfg.Identity.BaseURL, cfg.Identity.Token,
		cfg.Identity.RequestsPerSecond, cfg.Identity.Burst, log,
	)
	gitClient := githost.NewClient(cfg.GitHub.BaseURL, log)
	purger := cdn.NewClient(cfg.Cloudflare.BaseURL, log)

	// Monitoring
	collector := monitoring.NewPrometheusCollector()

	// Core services
	contentService := services.NewContentService(store, identityClient, nameCache, cfg.EncodingKeyFor, log)
	publisher := services.NewPublisher(contentService, store, gitClient, purger, cfg, collector, log)

	retryCfg := retry.Disabled()
	if cfg.Publish.Retry.Enabled {
		retryCfg = retry.Config{
			Enabled:      true,
			MaxAttempts:  cfg.Publish.Retry.MaxAttempts,
			InitialDelay: cfg.Publish.Retry.InitialDelay,
			MaxDelay:     cfg.Publish.Retry.MaxDelay,
			Multiplier:   2.0,
		}
	}
	coordinator := services.NewPublishCoordinator(publisher, store, cfg.Publish.DebounceDelay, retryCfg, collector, log)
	syncService := services.NewSyncService(store, log)

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddStoreCheck(store, 30*time.Second, 2*time.Second)
	if redisCache != nil {
		healthChecker.AddRedisCheck(redisCache.Client(), 30*time.Second, 2*time.Second)
	}

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.MetricsMiddleware(collector))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	api := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg.Auth.JWTSecret))

	whitelistHandler := httphandlers.NewWhitelistHandler(contentService, publisher, coordinator, syncService)
	whitelistHandler.SetupRoutes(api, protected)
	roleHandler := httphandlers.NewRoleHandler(store)
	roleHandler.SetupRoutes(protected)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness endpoint checks the store and redis connectivity
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.CheckAll(ctx)
		if status.Status != "healthy" {
			c.JSON(503, status)
			return
		}
		c.JSON(200, status)
	})

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting gatekeeper server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down gatekeeper server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Drain the pending publish batch so last-moment changes land
	if err := coordinator.Cleanup(shutdownCtx); err != nil {
		log.Errorw("Error flushing pending publish batch", "error", err)
	}

	// Flush traces
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("Shutdown complete")
}
