package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tipsplit-backend/internal/cron"
	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/instance"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
	"github.com/angelmondragon/tipsplit-backend/pkg/migrate"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

func main() {
	runJob := flag.String("run", "", "run the named job once and exit instead of scheduling")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cache, err := splits.NewCache(redisClient, cfg.Cache.SplitTTL, cfg.Cache.OperationLimit)
	if err != nil {
		logg.Error(context.Background(), "failed to create split cache", err)
		os.Exit(1)
	}
	store, err := splits.NewStore(splits.StoreParams{
		Repo:        splits.NewRepository(dbClient.DB()),
		Cache:       cache,
		Logger:      logg,
		Metrics:     metrics.NewCacheMetrics(prometheus.DefaultRegisterer),
		BacklogSize: cfg.Cache.BacklogSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create split store", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	expiryJob, err := cron.NewSplitExpiryJob(cron.SplitExpiryJobParams{
		Logger:        logg,
		Store:         store,
		Retention:     cfg.Reaper.Retention,
		TipRetryLease: cfg.Reaper.TipRetryLease,
		BatchSize:     cfg.Reaper.BatchSize,
		Metrics:       cronMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create split expiry job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}
	lock.WithHolder(instance.GetID("cron-worker"))

	registry, err := cron.NewRegistry(expiryJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Reaper.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Reaper.Interval.String(),
		"retention":   cfg.Reaper.Retention.String(),
	})
	ctx = logg.WithInstance(ctx, instance.GetID("cron-worker"))

	if *runJob != "" {
		ctx = logg.WithField(ctx, "job", *runJob)
		if err := service.RunJob(ctx, *runJob); err != nil {
			logg.Error(ctx, "one-off cron job failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "one-off cron job complete")
		return
	}

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
