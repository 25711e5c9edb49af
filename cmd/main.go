/**
 * @description
 * This is the main entry point for the ledger service. It loads configuration,
 * opens the storage backend, wires the money workflows, the outbox dispatcher,
 * the background scheduler and the HTTP server, and handles graceful shutdown.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: realtime fan-out and rate limiting.
 * - internal/api, internal/app, internal/config, internal/store: service packages.
 * - pkg/rabbitmq, pkg/realtime: outbound event transports.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/moneypay/ledger-service/internal/api"
	"github.com/moneypay/ledger-service/internal/app"
	"github.com/moneypay/ledger-service/internal/config"
	"github.com/moneypay/ledger-service/internal/store"
	rmrabbit "github.com/moneypay/ledger-service/pkg/rabbitmq"
	"github.com/moneypay/ledger-service/pkg/realtime"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("starting ledger-service", "port", cfg.ServerPort, "storage", cfg.StorageDriver)

	if strings.TrimSpace(cfg.JWTJWKSURL) == "" && strings.TrimSpace(cfg.JWTSecret) == "" {
		logger.Error("no token verification configured", "env", "JWT_JWKS_URL or JWT_SECRET")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	redisClient := connectRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	schedules := app.NewScheduleCache(repository, cfg.CommissionCacheTTL())
	ledgerService := app.NewService(repository, schedules, app.Options{
		EventsExchange: cfg.EventsExchange,
		CurrencyLabel:  cfg.CurrencyLabel,
	}, logger)

	var emitter app.RealtimeDispatch = realtime.LogEmitter{Logger: logger}
	var limiter api.RateLimiter
	if redisClient != nil {
		emitter = realtime.NewRedisEmitter(redisClient, cfg.RedisKeyPrefix, logger)
		limiter = api.NewRedisRateLimiter(redisClient, cfg.RedisKeyPrefix)
	}

	dispatcher := app.NewOutboxDispatcher(repository, producerFactory(cfg, logger), emitter, app.DispatcherOptions{
		BatchSize:    cfg.OutboxBatchSize,
		PollInterval: cfg.OutboxPollInterval(),
	}, logger)
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Run(ctx)
	}()

	jobs := app.NewJobs(ledgerService, repository, logger, cfg)
	scheduler := app.NewScheduler(jobs, logger, cfg)
	scheduler.Start()

	handler := api.NewHandler(ledgerService, logger)
	router := api.Routes(handler, api.RouterOptions{
		Auth: api.AuthConfig{
			JWKSURL:  cfg.JWTJWKSURL,
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimiter:        limiter,
		MoneyRatePerMinute: cfg.MoneyMovementRateLimitPerMinute,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
	<-dispatcherDone

	logger.Info("shutdown complete")
}

func parseLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// openRepository returns the configured storage backend and its cleanup.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		logger.Warn("using in-memory storage; balances are lost on restart")
		return store.NewMemoryRepository(), func() {}, nil
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is required for postgres storage")
	}

	if cfg.RunMigrations {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrations failed: %w", err)
		}
		logger.Info("database migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("database url parse failed: %w", err)
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("database connected")
	return store.NewPostgresRepository(dbpool), dbpool.Close, nil
}

// connectRedis returns nil when Redis is unset or unreachable; realtime events
// are then logged and rate limiting is disabled.
func connectRedis(cfg config.Config, logger *slog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; realtime fan-out and rate limiting disabled", "env", "REDIS_URL")
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; realtime fan-out and rate limiting disabled", "error", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; realtime fan-out and rate limiting disabled", "error", err)
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

// producerFactory dials RabbitMQ on demand. Without RABBITMQ_URL events are
// logged and marked published.
func producerFactory(cfg config.Config, logger *slog.Logger) app.ProducerFactory {
	if cfg.RabbitMQURL == "" {
		logger.Warn("rabbitmq url missing; broker events will only be logged", "env", "RABBITMQ_URL")
		fallback := &rmrabbit.EventProducerFallback{Logger: logger}
		return func() (rmrabbit.Publisher, error) { return fallback, nil }
	}
	return func() (rmrabbit.Publisher, error) {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
}
