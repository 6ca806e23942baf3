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

	"github.com/angelmondragon/quotehub-backend/internal/consolidation"
	"github.com/angelmondragon/quotehub-backend/internal/cron"
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

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
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

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
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
		"jobs":        len(registry.Jobs()),
	})

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	consolidationSvc, err := consolidation.NewService(consolidation.ServiceParams{
		Repo:                  consolidation.NewRepository(dbClient.DB()),
		Quotes:                quotes.NewRepository(dbClient.DB()),
		Profiles:              profiles.NewRepository(dbClient.DB()),
		Tx:                    dbClient,
		Outbox:                outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:                logg,
		Metrics:               metrics.NewConsolidationMetrics(prometheus.DefaultRegisterer),
		DefaultDeliveryMethod: enums.DeliveryMethod(cfg.Consolidation.DefaultDeliveryMethod),
		NotesMaxLength:        cfg.Consolidation.NotesMaxLength,
	})
	if err != nil {
		return nil, err
	}

	jobs := []cron.Job{}
	if ttl := cfg.Consolidation.StaleDraftTTL(); ttl > 0 {
		staleJob, err := cron.NewStaleDraftJob(cron.StaleDraftJobParams{
			Logger:    logg,
			Drafts:    consolidationSvc,
			TTL:       ttl,
			BatchSize: cfg.Consolidation.ExpiryBatchSize,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, staleJob)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Retention:     cfg.Outbox.RetentionDays,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, retentionJob), nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
