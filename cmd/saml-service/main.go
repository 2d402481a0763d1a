// saml-service hosts the SAML 2.0 identity provider: SSO dispatch, artifact
// resolution over the SOAP back-channel, IdP metadata and the SP registry.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/openidx/saml-idp/internal/common/config"
	"github.com/openidx/saml-idp/internal/common/database"
	"github.com/openidx/saml-idp/internal/common/errors"
	"github.com/openidx/saml-idp/internal/common/health"
	"github.com/openidx/saml-idp/internal/common/logger"
	"github.com/openidx/saml-idp/internal/common/middleware"
	"github.com/openidx/saml-idp/internal/common/tracing"
	"github.com/openidx/saml-idp/internal/metrics"
	"github.com/openidx/saml-idp/internal/saml"
)

const serviceName = "saml-service"

func main() {
	log := logger.New()
	defer log.Sync()
	log = logger.WithService(log, serviceName)

	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(serviceName, cfg.Environment), log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
	}

	var db *database.PostgresDB
	if cfg.DatabaseURL != "" {
		db, err = database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
	}

	var rds *database.RedisClient
	if cfg.RedisURL != "" {
		rds, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rds.Close()
	}

	samlService, err := saml.New(cfg, log, db, rds)
	if err != nil {
		log.Fatal("Failed to initialize SAML service", zap.Error(err))
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(errors.ErrorHandler())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))
	router.Use(metrics.Middleware(serviceName))

	if cfg.EnableRateLimit && rds != nil {
		router.Use(middleware.DistributedRateLimit(rds.Client, middleware.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Window:   time.Duration(cfg.RateLimitWindow) * time.Second,
		}, log))
	}

	router.GET("/metrics", metrics.Handler())

	healthService := health.NewHealthService(log)
	if db != nil {
		healthService.RegisterCheck(health.NewPostgresChecker(db))
	}
	if rds != nil {
		healthService.RegisterCheck(health.NewRedisChecker(rds))
	}
	healthService.RegisterStandardRoutes(router)

	samlService.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting SAML IdP service",
			zap.Int("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("artifact_store", cfg.ArtifactStore),
			zap.Bool("saml20_idp_enabled", cfg.EnableSAML20IdP),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}
	log.Info("Server stopped")
}
