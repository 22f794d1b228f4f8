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

	"github.com/angelmondragon/marketplace-orders/api/controllers"
	"github.com/angelmondragon/marketplace-orders/api/routes"
	"github.com/angelmondragon/marketplace-orders/internal/bootstrap"
	"github.com/angelmondragon/marketplace-orders/internal/checkout"
	"github.com/angelmondragon/marketplace-orders/internal/progression"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/instance"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/redis"
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
	} else {
		logg.Warn(context.Background(), "redis not configured, idempotent replay and checkout throttling are off")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	stack, err := bootstrap.Build(context.Background(), bootstrap.Params{
		Config:  cfg,
		Logger:  logg,
		Redis:   redisClient,
		Metrics: orderMetrics,
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

	checkoutParams := checkout.Params{
		Cart:                 stack.Cart,
		Engine:               stack.Engine,
		Ledger:               stack.Ledger,
		Projections:          stack.Projections,
		Notifier:             stack.Dispatcher,
		Metrics:              orderMetrics,
		Logger:               logg,
		CODDeliveryDays:      cfg.Orders.CODDeliveryDays,
		StandardDeliveryDays: cfg.Orders.StandardDeliveryDays,
	}
	var scheduler *progression.TimerScheduler
	if cfg.Orders.ProgressionEnabled {
		scheduler = progression.NewTimerScheduler()
		simulator, err := progression.NewSimulator(stack.Engine, scheduler, logg, progression.Config{
			ConfirmDelay: cfg.Orders.ConfirmDelay,
			ShipDelay:    cfg.Orders.ShipDelay,
		})
		if err != nil {
			logg.Error(context.Background(), "failed to create progression simulator", err)
			os.Exit(1)
		}
		checkoutParams.Progression = simulator
	}
	checkoutService, err := checkout.NewService(checkoutParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	ready := map[string]controllers.Pinger{
		"database": stack.DB,
		"orders":   stack.Backend,
	}
	if redisClient != nil {
		ready["redis"] = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
		"mode":     stack.Mode,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			Registry:     registry,
			HTTP:         metrics.NewHTTPMetrics(registry),
			Redis:        redisClient,
			ReadyChecks:  ready,
			Engine:       stack.Engine,
			Cart:         stack.Cart,
			Checkout:     checkoutService,
			Returns:      stack.Returns,
			Reviews:      stack.Reviews,
			SellerOrders: stack.Projections,
			Notify:       stack.Notifications,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	logg.Info(ctx, "api server stopped")
}
