package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-orders/internal/bootstrap"
	"github.com/angelmondragon/marketplace-orders/internal/cron"
	"github.com/angelmondragon/marketplace-orders/internal/progression"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/instance"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(context.Background(), cfg.Redis, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	stack, err := bootstrap.Build(context.Background(), bootstrap.Params{
		Config:  cfg,
		Logger:  logg,
		Redis:   redisClient,
		Metrics: metrics.NewOrderMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire order services", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logg.Error(context.Background(), "error closing order storage", err)
		}
	}()

	jobs, err := buildJobs(cfg, logg, stack)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := buildLock(cfg, logg, redisClient)
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
		"env":      cfg.App.Env,
		"mode":     stack.Mode,
		"instance": instance.GetID(),
		"jobs":     len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildJobs registers the progression sweep when timers are enabled, plus a
// retention job per table that grows without bound.
func buildJobs(cfg *config.Config, logg *logger.Logger, stack *bootstrap.Stack) ([]cron.Job, error) {
	var jobs []cron.Job

	if cfg.Orders.ProgressionEnabled {
		// The scheduler never fires here; the sweep calls Step directly.
		simulator, err := progression.NewSimulator(stack.Engine, progression.NewTimerScheduler(), logg, progression.Config{
			ConfirmDelay: cfg.Orders.ConfirmDelay,
			ShipDelay:    cfg.Orders.ShipDelay,
		})
		if err != nil {
			return nil, err
		}
		job, err := cron.NewProgressionJob(cron.ProgressionJobParams{
			Logger:    logg,
			Orders:    stack.Engine,
			Simulator: simulator,
			Limit:     cfg.Cron.SweepLimit,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	notificationJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
		Name:          "notification-retention",
		Logger:        logg,
		Prune:         stack.NotifyRepo.DeleteReadBefore,
		RetentionDays: cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return nil, err
	}
	jobs = append(jobs, notificationJob)

	if stack.Outbox != nil {
		outboxJob, err := cron.NewRetentionJob(cron.RetentionJobParams{
			Name:          "outbox-retention",
			Logger:        logg,
			Prune:         stack.Outbox.DeletePublishedBefore,
			RetentionDays: cfg.Cron.OutboxRetentionDays,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, outboxJob)
	}
	return jobs, nil
}

// buildLock prefers a shared redis lease; without redis only one worker
// process may run.
func buildLock(cfg *config.Config, logg *logger.Logger, client *redis.Client) (cron.Lock, error) {
	if client == nil {
		logg.Warn(context.Background(), "redis not configured, cron lock is process-local")
		return cron.NewLocalLock(), nil
	}
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	return cron.NewRedisLock(client, client.LockKey("cron-worker:"+env), cfg.Cron.LockTTL)
}
