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
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"stockcast/internal/api"
	"stockcast/internal/api/handlers"
	"stockcast/internal/config"
	"stockcast/internal/database"
	"stockcast/internal/forecast"
	"stockcast/internal/marketdata"
	"stockcast/internal/modelstore"
	"stockcast/internal/persistence"
	"stockcast/internal/realtime"
	"stockcast/internal/services"
	"stockcast/internal/symbols"
	"stockcast/internal/worker"
)

func main() {
	// Load .env if present; real deployments rely on actual env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.StandardLogger()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.Environment == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgresConnection(cfg.Database, logger)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(context.Background()); err != nil {
		logrus.Fatalf("Failed to apply database schema: %v", err)
	}

	// Redis is optional: without it the forecast cache falls back to the
	// in-process cache and the service keeps working single-instance.
	var redisClient *database.RedisClient
	if client, err := database.NewRedisConnection(cfg.Redis, logger); err != nil {
		logger.Warnf("Redis unavailable, using in-memory forecast cache: %v", err)
	} else {
		redisClient = client
		defer redisClient.Close()
	}

	provider := marketdata.NewClient(&cfg.Provider)
	normalizer := symbols.NewNormalizer(cfg.Provider.DefaultExchange)

	scheduler := cron.New()
	defer scheduler.Stop()

	var cache forecast.ResultCache
	if redisClient != nil {
		cache = forecast.NewRedisCache(redisClient.Client, logger)
	} else {
		memCache := forecast.NewMemoryCache()
		sweepEvery := config.Duration(cfg.Forecast.SweepInterval, time.Minute)
		if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", sweepEvery), func() {
			if removed := memCache.Sweep(); removed > 0 {
				logger.Debugf("Swept %d expired forecast cache entries", removed)
			}
		}); err != nil {
			logrus.Fatalf("Failed to schedule cache sweep: %v", err)
		}
		cache = memCache
	}

	runner := worker.NewProcessRunner(
		cfg.Training.WorkerCommand,
		cfg.Training.WorkerArgs,
		config.Duration(cfg.Training.Timeout, 10*time.Minute),
		logger,
	)
	store := modelstore.NewStore(db.Pool, runner, cfg.Training.ModelDir, logger)

	// Fallback order is fixed: in-process sequence model, then the trained
	// per-symbol model, then cloud inference, then plain regression. The
	// serverless profile drops the two worker-dependent tiers.
	var strategies []forecast.Strategy
	if !cfg.Serverless {
		strategies = append(strategies,
			forecast.NewNeuralSequenceStrategy(cfg.Forecast.LookbackWindow, cfg.Forecast.Epochs, cfg.Forecast.HiddenUnits),
			forecast.NewTrainedModelStrategy(store),
		)
	}
	strategies = append(strategies,
		forecast.NewCloudInferenceStrategy(&cfg.Inference),
		forecast.NewLinearRegressionStrategy(),
	)
	engine := forecast.NewEngine(logger, strategies...)

	gateway := persistence.NewGateway(db.Pool, logger)
	service := services.NewForecastService(
		normalizer,
		provider,
		engine,
		cache,
		config.Duration(cfg.Forecast.CacheTTL, 5*time.Minute),
		gateway,
		logger,
	)

	hub := realtime.NewHub(
		provider,
		normalizeAll(normalizer, cfg.Broadcast.DefaultSymbols),
		config.Duration(cfg.Broadcast.Interval, 30*time.Second),
		logger,
	)
	if err := hub.Start(); err != nil {
		logrus.Fatalf("Failed to start broadcast loop: %v", err)
	}
	defer hub.Stop()

	scheduler.Start()

	router := gin.Default()
	api.SetupRoutes(router,
		handlers.NewPredictionHandler(service, store, provider, cfg.Serverless, logger),
		handlers.NewHealthHandler(db, redisHealth(redisClient)),
		hub,
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

func normalizeAll(normalizer *symbols.Normalizer, raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		out = append(out, normalizer.Normalize(s, ""))
	}
	return out
}

// redisHealth avoids handing the health handler a typed nil.
func redisHealth(client *database.RedisClient) handlers.HealthChecker {
	if client == nil {
		return nil
	}
	return client
}
