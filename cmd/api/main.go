package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/tipsplit-backend/api/controllers"
	"github.com/angelmondragon/tipsplit-backend/api/routes"
	"github.com/angelmondragon/tipsplit-backend/internal/forwarding"
	"github.com/angelmondragon/tipsplit-backend/internal/invoices"
	"github.com/angelmondragon/tipsplit-backend/internal/reports"
	"github.com/angelmondragon/tipsplit-backend/internal/splits"
	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/instance"
	"github.com/angelmondragon/tipsplit-backend/pkg/lightning"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/metrics"
	"github.com/angelmondragon/tipsplit-backend/pkg/migrate"
	"github.com/angelmondragon/tipsplit-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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
	splitService, err := splits.NewService(store, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create split service", err)
		os.Exit(1)
	}
	reportService, err := reports.NewService(reports.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create reports service", err)
		os.Exit(1)
	}

	params := routes.Params{
		Config:   cfg,
		Logger:   logg,
		Gatherer: prometheus.DefaultGatherer,
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		Splits:  splitService,
		Reports: reportService,
	}

	if cfg.Lightning.BaseURL == "" {
		logg.Warn(context.Background(), "lightning wallet not configured; invoice issuance and tip retry disabled")
	} else {
		wallet, err := lightning.NewClient(cfg.Lightning.BaseURL, cfg.Lightning.AdminKey,
			lightning.WithInvoiceKey(cfg.Lightning.InvoiceKey),
			lightning.WithInvoiceExpiry(cfg.Lightning.InvoiceTTL),
			lightning.WithHTTPClient(&http.Client{Timeout: cfg.Lightning.HTTPTimeout}),
		)
		if err != nil {
			logg.Error(context.Background(), "failed to create lightning client", err)
			os.Exit(1)
		}
		invoiceService, err := invoices.NewService(wallet, splitService, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create invoice service", err)
			os.Exit(1)
		}
		params.Invoices = invoiceService

		forwarder, err := forwarding.NewService(forwarding.ServiceParams{
			Store:               store,
			Network:             wallet,
			MerchantDestination: cfg.Forwarding.MerchantDestination,
			Policy:              forwarding.RetryPolicyFromConfig(cfg.Forwarding),
			Logger:              logg,
			Metrics:             metrics.NewForwardingMetrics(prometheus.DefaultRegisterer),
		})
		if err != nil {
			logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "tip retry disabled")
		} else {
			params.Tips = forwarder
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	ctx = logg.WithInstance(ctx, instance.GetID("api"))
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(params),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
