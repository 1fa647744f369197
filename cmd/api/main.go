package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"atstore-api/internal/cache"
	"atstore-api/internal/config"
	"atstore-api/internal/handler"
	"atstore-api/internal/logging"
	"atstore-api/internal/metrics"
	"atstore-api/internal/middleware"
	"atstore-api/internal/notify"
	"atstore-api/internal/router"
	"atstore-api/internal/service"
	"atstore-api/internal/vault"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "atstore-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.App.Name, cfg.App.Environment, cfg.App.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("starting",
		zap.String("version", cfg.App.Version),
		zap.String("store", cfg.Store.Type),
		zap.String("notifier", cfg.Notifier.Type))

	ctx := context.Background()

	// Store
	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	defer st.Close()

	// Redis is optional: without it caching and checkout locks stay in process.
	var (
		redisClient  *redis.Client
		listingCache cache.Cache
		locker       cache.Locker
	)
	if cfg.Cache.RedisEnabled {
		redisClient, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache and locks", zap.Error(err))
			redisClient = nil
		}
	}
	if redisClient != nil {
		defer redisClient.Close()
		listingCache = cache.NewRedisCache(redisClient, cfg.Cache.KeyPrefix)
		locker = cache.NewRedisLocker(redisClient, cfg.Cache.KeyPrefix)
		logger.Info("redis connected", zap.String("addr", cfg.Cache.RedisAddress()))
	} else {
		memCache := cache.NewMemoryCache()
		defer memCache.Close()
		listingCache = memCache
		locker = cache.NewMemoryLocker()
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	v, err := vault.New(cfg.Vault.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	// Notifier
	var notifier notify.Notifier
	switch cfg.Notifier.Type {
	case "kafka":
		kn := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Notifier.KafkaBrokers, cfg.Notifier.DeliveryTopic), v, logger)
		defer kn.Close()
		notifier = kn
	case "log", "":
		notifier = notify.NewLogNotifier(logger)
	default:
		return fmt.Errorf("unknown NOTIFIER_TYPE %q", cfg.Notifier.Type)
	}

	// Services
	inventory := service.NewInventoryService(st.listings, v, listingCache, cfg.Cache.TTL, m, logger)
	ledger := service.NewOrderService(st.orders, st.listings, service.OrderConfig{
		TTL:                cfg.Payment.OrderTTL,
		CheckoutCodePrefix: cfg.Payment.CheckoutCodePrefix,
		QRBaseURL:          cfg.Payment.QRBaseURL,
		AccountNo:          cfg.Payment.AccountNo,
		BankCode:           cfg.Payment.BankCode,
	}, m, logger)
	fulfillment := service.NewFulfillmentService(service.FulfillmentConfig{
		WebhookAPIKey:      cfg.Payment.WebhookAPIKey,
		ProtocolTag:        cfg.Payment.ProtocolTag,
		SubAccountTag:      cfg.Payment.SubAccountTag,
		CheckoutCodePrefix: cfg.Payment.CheckoutCodePrefix,
		DeliveryTimeout:    cfg.Payment.DeliveryTimeout,
		LockTTL:            cfg.Payment.LockTTL,
	}, ledger, inventory, locker, notifier, m, logger)

	sweeper := service.NewSweeper(st.orders, service.SweeperConfig{
		ExpireInterval: cfg.Sweeper.ExpireInterval,
		PurgeInterval:  cfg.Sweeper.PurgeInterval,
		Retention:      cfg.Sweeper.Retention,
		BatchSize:      cfg.Sweeper.BatchSize,
	}, m, logger)
	sweeper.Start()

	// Handlers
	deps := []handler.Dependency{{Name: "store", Ping: st.Ping}}
	if redisClient != nil {
		deps = append(deps, handler.Dependency{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, authenticated routes will reject every request")
	}

	r := router.New(router.Config{
		Handler:          handler.New(cfg.App.Name, cfg.App.Version, deps...),
		InventoryHandler: handler.NewInventoryHandler(inventory),
		OrderHandler:     handler.NewOrderHandler(ledger),
		WebhookHandler:   handler.NewWebhookHandler(fulfillment, logger),
		Auth:             middleware.NewAuthenticator(middleware.AuthConfig{Secret: cfg.Auth.JWTSecret, Logger: logger}),
		Logger:           logger,
		Metrics:          m,
		Gatherer:         reg,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		sweeper.Stop()
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	sweeper.Stop()

	logger.Info("server stopped", zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))
	return nil
}
