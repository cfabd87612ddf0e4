package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"masterhand/internal/api"
	"masterhand/internal/config"
	"masterhand/internal/database"
	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/metrics"
	"masterhand/internal/notify"
	"masterhand/internal/payment"
	"masterhand/internal/repository"
	"masterhand/internal/service"
	"masterhand/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	keyPrefix       = "masterhand"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			if err := run(cmd.Context(), cfg, logger); err != nil {
				logger.Error().Err(err).Msg("service stopped with error")
				return err
			}
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	logger.Info().
		Str("environment", cfg.App.Environment).
		Str("version", cfg.App.Version).
		Msg("starting masterhand")

	if !cfg.API.Auth.Required() {
		logger.Warn().Msg("API authentication is DISABLED: callers are trusted by their X-User-ID and X-User-Role headers; never run this outside local development")
	}
	if cfg.UnsignedWebhooks() {
		logger.Warn().Msg("payment callbacks are accepted WITHOUT signature verification; never run this outside local development")
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	keys, redisClient := initKeyStore(ctx, cfg.Redis, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	registry, signer := initPayments(cfg.Gateway, logger)

	bus := events.NewEventBus()
	if cfg.Events.AMQPURL != "" {
		sink, err := events.DialAMQPSink(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("event broker unavailable, domain events stay in process")
		} else {
			sink.Attach(bus)
			defer func() { _ = sink.Close() }()
		}
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	notifications := worker.NewNotificationWorker(initDeliverer(cfg.Telegram, logger), cfg.Notifications.QueueSize, worker.RetryPolicy{
		MaxRetries:    cfg.Notifications.MaxRetries,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
	}, logger)
	notifications.Start(workerCtx)
	defer func() {
		stopWorker()
		notifications.Wait()
	}()

	deps := service.Deps{
		Store:    db,
		Payments: registry,
		Keys:     keys,
		Events:   bus,
		Notifier: notifications,
		Logger:   logger,
	}
	bookings := service.NewBookingService(deps, cfg.Booking.PaymentWindow, cfg.Booking.DefaultLeadTime)
	svc := api.Services{
		Offers:        service.NewOfferService(deps),
		Bookings:      bookings,
		Cancellations: service.NewCancellationService(deps),
		Webhooks:      service.NewWebhookService(deps, bookings, signer, cfg.Gateway.AllowUnsignedWebhooks),
	}

	checks := []api.ReadinessCheck{{Name: "database", Check: db.PingContext}}
	if redisClient != nil {
		checks = append(checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return repository.Ping(ctx, redisClient)
		}})
	}
	server := api.NewServer(cfg.API, svc, keys, logger, checks...)

	metricsServer := startMetrics(cfg.Monitoring, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}

	logger.Info().Msg("masterhand stopped")
	return nil
}

// initKeyStore prefers Redis and falls back to process memory while Redis is
// down. Without a configured address the memory store is used alone.
func initKeyStore(ctx context.Context, cfg config.RedisConfig, logger *zerolog.Logger) (domain.KeyStore, *redis.Client) {
	memory := repository.NewMemoryKeyStore()
	if cfg.Address == "" {
		logger.Warn().Msg("redis address not set, idempotency keys and rate limits are per process")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Str("address", cfg.Address).Msg("redis unavailable, starting on the in-memory fallback")
	}
	return repository.NewFailoverKeyStore(repository.NewRedisKeyStore(client, keyPrefix), memory, logger), client
}

func initPayments(cfg config.GatewayConfig, logger *zerolog.Logger) (*payment.Registry, *payment.Signer) {
	gateway := payment.NewGateway(payment.GatewayOptions{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Currency: cfg.Currency,
		IframeID: cfg.IframeID,
		Timeout:  cfg.Timeout,
	}, logger)

	registry := payment.NewRegistry(
		payment.NewCardStrategy(gateway, cfg.CardIntegrationID),
		payment.NewWalletStrategy(gateway, cfg.WalletIntegrationID),
		payment.NewCashStrategy(),
	)
	logger.Info().Strs("methods", registry.Methods()).Msg("payment methods registered")
	return registry, payment.NewSigner(cfg.HMACSecret)
}

func initDeliverer(cfg config.TelegramConfig, logger *zerolog.Logger) worker.Deliverer {
	if cfg.BotToken == "" {
		logger.Info().Msg("telegram token not set, notifications are logged only")
		return notify.NewLogNotifier(logger)
	}
	bot, err := notify.NewTelegramBot(cfg.BotToken, cfg.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram unavailable, notifications are logged only")
		return notify.NewLogNotifier(logger)
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	return notify.NewTelegramNotifier(bot)
}

func startMetrics(cfg config.MonitoringConfig, logger *zerolog.Logger) *http.Server {
	if !cfg.PrometheusEnabled {
		return nil
	}
	metrics.Register()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.PrometheusPort).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}
