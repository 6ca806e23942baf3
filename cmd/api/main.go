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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/quotehub-backend/api/routes"
	"github.com/angelmondragon/quotehub-backend/internal/consolidation"
	"github.com/angelmondragon/quotehub-backend/internal/profiles"
	"github.com/angelmondragon/quotehub-backend/internal/quotes"
	"github.com/angelmondragon/quotehub-backend/pkg/config"
	"github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
	"github.com/angelmondragon/quotehub-backend/pkg/metrics"
	"github.com/angelmondragon/quotehub-backend/pkg/migrate"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	"github.com/angelmondragon/quotehub-backend/pkg/redis"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	consolidationService, err := consolidation.NewService(consolidation.ServiceParams{
		Repo:                  consolidation.NewRepository(dbClient.DB()),
		Quotes:                quotes.NewRepository(dbClient.DB()),
		Profiles:              profiles.NewRepository(dbClient.DB()),
		Tx:                    dbClient,
		Outbox:                outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:                logg,
		Metrics:               metrics.NewConsolidationMetrics(registry),
		DefaultDeliveryMethod: enums.DeliveryMethod(cfg.Consolidation.DefaultDeliveryMethod),
		NotesMaxLength:        cfg.Consolidation.NotesMaxLength,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consolidation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:         addr,
		Handler:      routes.NewRouter(cfg, logg, dbClient, redisClient, registry, consolidationService),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
