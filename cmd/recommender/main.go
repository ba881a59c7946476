// cmd/recommender/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"recommendation-engine/internal/api"
	"recommendation-engine/internal/common/config"
	"recommendation-engine/internal/common/database"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/observability"
	"recommendation-engine/internal/recommender/cache"
	"recommendation-engine/internal/recommender/featurestore"
	"recommendation-engine/internal/recommender/scoring"
	"recommendation-engine/internal/recommender/service"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.Service(logger.New(cfg.Logging.Level, cfg.Logging.Format),
		cfg.App.Name, cfg.App.Version, cfg.App.Environment)
	defer func() { _ = zapLog.Sync() }()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting recommendation engine")

	obs := observability.New(cfg.Observability, log)
	defer obs.Shutdown()

	ctx := context.Background()

	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// The cache degrades to direct computation, so an unreachable Redis at
	// boot is not fatal. The client reconnects on its own once it comes back.
	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis client init failed", zap.Error(err))
	}
	defer rdb.Close()
	if err := retryWithBackoff(func() error {
		return rdb.Ping(ctx)
	}, 5, time.Second, zapLog, "Redis connection"); err != nil {
		zapLog.Warn("redis unreachable, serving uncached until it recovers", zap.Error(err))
	} else {
		zapLog.Info("Redis connected successfully")
	}

	store := featurestore.NewStore(pg.DB, pg.QueryTimeout(), log)
	if cfg.App.Environment == "development" {
		if err := store.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("schema bootstrap failed", zap.Error(err))
		}
	}

	recCache := cache.New(rdb.Client, cache.Options{
		BreakerFailures:    cfg.Cache.BreakerFailures,
		BreakerOpenTimeout: config.GetDuration(cfg.Cache.BreakerOpenTimeout),
		ScanCount:          cfg.Cache.InvalidateScanCount,
	}, log)

	svc := service.New(
		store,
		recCache,
		scoring.NewScorer(scoring.WeightsFromConfig(cfg.Scoring)),
		service.Config{
			DefaultResults:     cfg.Recommendation.DefaultResults,
			MaxResults:         cfg.Recommendation.MaxResults,
			CandidateLimit:     cfg.Recommendation.CandidateLimit,
			InteractionHistory: cfg.Recommendation.InteractionHistory,
			RankedTTL:          config.GetSeconds(cfg.Cache.RankedTTL),
			FeaturesTTL:        config.GetSeconds(cfg.Cache.FeaturesTTL),
			RetryBackoff:       config.GetDuration(cfg.Recommendation.StoreRetryBackoff),
		},
		log,
		service.WithTracer(obs.Tracer()),
	)

	writeTimeout := config.GetDuration(cfg.Server.WriteTimeout)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewHandler(svc, log, obs).Routes(writeTimeout),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: writeTimeout,
	}

	go func() {
		zapLog.Info("http server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	zapLog.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("recommendation engine stopped")
}
