package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tipsplit-backend/api/controllers"
	"github.com/angelmondragon/tipsplit-backend/internal/forwarding"
	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/instance"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
	"github.com/angelmondragon/tipsplit-backend/pkg/migrate"
	"github.com/angelmondragon/tipsplit-backend/pkg/pubsub"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "forwarder"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "forwarder"

	logg = logger.New(logger.Options{
		ServiceName: "forwarder",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
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

	wallet, err := lightning.NewClient(cfg.Lightning.BaseURL, cfg.Lightning.AdminKey,
		lightning.WithInvoiceKey(cfg.Lightning.InvoiceKey),
		lightning.WithInvoiceExpiry(cfg.Lightning.InvoiceTTL),
		lightning.WithHTTPClient(&http.Client{Timeout: cfg.Lightning.HTTPTimeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create lightning client", err)
		os.Exit(1)
	}

	policy := forwarding.RetryPolicyFromConfig(cfg.Forwarding)
	forwarder, err := forwarding.NewService(forwarding.ServiceParams{
		Store:               store,
		Network:             wallet,
		MerchantDestination: cfg.Forwarding.MerchantDestination,
		Policy:              policy,
		Logger:              logg,
		Metrics:             metrics.NewForwardingMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create forwarding service", err)
		os.Exit(1)
	}

	// Base and tip legs run back to back; keep the lease for both plus a margin.
	settlementBudget := 2*policy.Budget() + time.Minute
	subscription := pubsubClient.SettlementSubscription(pubsub.ReceiveOptions{
		Goroutines:   cfg.Forwarding.ConsumerGoroutines,
		MaxExtension: settlementBudget,
	})
	consumer, err := forwarding.NewConsumer(forwarder, subscription, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"serviceKind":  cfg.Service.Kind,
		"subscription": cfg.PubSub.SettlementSubscription,
		"lease_budget": settlementBudget.String(),
	})
	ctx = logg.WithInstance(ctx, instance.GetID("forwarder"))

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           healthRouter(cfg, logg, dbClient, redisClient, pubsubClient),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "health server stopped unexpectedly", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting settlement forwarder")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "settlement forwarder stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "settlement forwarder shutting down gracefully")
}

// healthRouter serves liveness, readiness and metrics for the worker process.
func healthRouter(cfg *config.Config, logg *logger.Logger, database, cache, broker controllers.Pinger) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
		"db":     database,
		"redis":  cache,
		"pubsub": broker,
	}))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}
