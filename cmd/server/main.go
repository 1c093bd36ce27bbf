package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/config"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/prospect"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler"
	"github.com/makkenzo/prospect-enrichment-api/internal/metrics"
	"github.com/makkenzo/prospect-enrichment-api/internal/provider/lusha"
	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/memstorage"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/postgres"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/redis"
	"github.com/makkenzo/prospect-enrichment-api/internal/worker"
	"github.com/makkenzo/prospect-enrichment-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]handler.HealthCheck{}

	var (
		keyRepo      apikey.Repository
		prospectRepo prospect.Repository
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		sugarLogger.Warn("Using in-memory storage, data is lost on restart")
		prospects := memstorage.NewProspectRepository()
		prospectRepo = prospects
		keyRepo = memstorage.NewAPIKeyRepository(prospects)
	default:
		dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer dbPool.Close()

		keyRepo = postgres.NewAPIKeyRepository(dbPool, appLogger)
		prospectRepo = postgres.NewProspectRepository(dbPool, appLogger)
		healthChecks["database"] = dbPool.Ping
	}

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		if cfg.Database.Driver != config.DriverMemory {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		sugarLogger.Warnf("Redis unavailable, cache and background jobs disabled: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	lushaClient := lusha.NewClient(cfg.Provider.BaseURL, cfg.Provider.Timeout, appLogger,
		lusha.WithRateLimit(cfg.Provider.RatePerSecond, cfg.Provider.Burst),
	)

	enrichmentService := service.NewEnrichmentService(keyRepo, lushaClient, appMetrics, service.EnrichmentOptions{
		MaxAttempts:    cfg.Provider.MaxAttempts,
		AttemptTimeout: cfg.Provider.AttemptTimeout,
	}, appLogger)

	var enricher service.Enricher = enrichmentService
	if cfg.Cache.Enabled && redisClient != nil {
		enricher = redis.NewEnrichmentCache(enrichmentService, redisClient, cfg.Cache.TTL, cfg.Cache.NotFoundTTL, appMetrics, appLogger)
		sugarLogger.Infof("Enrichment cache enabled (ttl %s, not found ttl %s)", cfg.Cache.TTL, cfg.Cache.NotFoundTTL)
	}

	var queue service.TaskEnqueuer
	if redisClient != nil {
		asynqClient := asynq.NewClient(worker.RedisConnOpt(&cfg.Redis))
		defer asynqClient.Close()
		queue = asynqClient
	}

	apiKeyService := service.NewAPIKeyService(keyRepo, appLogger)
	prospectService := service.NewProspectService(prospectRepo, enricher, queue, appLogger)
	authService := service.NewAuthService(&cfg.Auth, appLogger)

	router := handler.NewRouter(handler.RouterDeps{
		Auth:           authService,
		Enricher:       enricher,
		APIKeys:        apiKeyService,
		Prospects:      prospectService,
		HealthChecks:   healthChecks,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AllowOrigins:   cfg.Server.AllowOrigins,
		Logger:         appLogger,
	})

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if redisClient != nil {
		g.Go(func() error {
			deps := worker.Deps{
				Prospects: prospectService,
				PoolStats: apiKeyService,
				Metrics:   appMetrics,
			}
			if err := worker.RunWorkers(groupCtx, cfg, deps, appLogger); err != nil {
				appLogger.Error("Asynq worker failed", zap.Error(err))
				return fmt.Errorf("asynq worker error: %w", err)
			}
			sugarLogger.Info("Asynq workers finished gracefully.")
			return nil
		})
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
	} else {
		sugarLogger.Info("Application shutdown successfully.")
	}
}
