package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiobook/internal/api"
	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/domain"
	"studiobook/internal/events"
	"studiobook/internal/lock"
	"studiobook/internal/logging"
	"studiobook/internal/metrics"
	"studiobook/internal/service"
	"studiobook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	locker := initLocker(cfg, redisClient, &logger)
	eventBus := initEventBus(ctx, cfg, db, redisClient, &logger)

	coord := service.NewCoordinationService(db, locker, eventBus, service.Options{
		Location:       cfg.Location(),
		MaxRangeDays:   cfg.Scheduling.MaxRangeDays,
		MaxHolidayDays: cfg.Scheduling.MaxHolidayDays,
	}, logging.Component(&logger, "coordination"))
	dir := service.NewDirectoryService(db, eventBus, logging.Component(&logger, "directory"))

	httpServer := api.NewHTTPServer(cfg.API, cfg.Auth, coord, dir, func(ctx context.Context) error {
		return db.PingContext(ctx)
	}, logging.Component(&logger, "http"))

	backup := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(&logger, "backup"))
	go backup.Start(ctx)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seedPath := cfg.SeedPath
	if env := os.Getenv("SEED_PATH"); env != "" {
		seedPath = env
	}
	seed, err := loadSeed(seedPath, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySeed(ctx, db, seed, logger); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("apply seed")
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := lock.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initLocker prefers redis leases so several API processes can share one database, and
// falls back to in-process locks whenever redis is unreachable.
func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.Locker {
	timeout := cfg.Scheduling.LockTimeoutDuration()
	memory := lock.NewMemoryLocker(timeout)
	if redisClient == nil {
		logger.Info().Dur("timeout", timeout).Msg("using in-process locks")
		return memory
	}
	primary := lock.NewRedisLocker(redisClient, cfg.Redis.LockPrefix, cfg.Scheduling.LockTTLDuration(), timeout)
	return lock.NewFailoverLocker(primary, memory, logging.Component(logger, "lock"))
}

func initEventBus(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) *events.EventBus {
	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Error().Err(err).Str("event_type", event.Type).Int64("event_id", event.ID).Msg("event handler failed")
	})
	bus.SubscribeAll(func(event *events.Event) error {
		metrics.IncEvent(event.Type)
		logger.Debug().Str("event_type", event.Type).Int64("event_id", event.ID).Msg("event published")
		return nil
	})

	if !cfg.Notify.Enabled {
		return bus
	}
	if redisClient == nil {
		logger.Warn().Msg("notifications enabled but redis is unavailable, notifications disabled")
		return bus
	}

	sink := worker.NewRedisSink(redisClient, cfg.Notify.Channel, cfg.Notify.FeedKey)
	notifier := worker.NewNotifyWorker(
		db,
		sink,
		redisClient,
		worker.RetryPolicy{MaxRetries: cfg.Notify.MaxRetries},
		cfg.Notify.PollIntervalDuration(),
		logging.Component(logger, "notify"),
	)
	bus.SubscribeAll(notifier.Handle)
	go notifier.Start(ctx)

	logger.Info().Str("channel", cfg.Notify.Channel).Msg("notification worker started")
	return bus
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().
		Int("http_port", cfg.API.HTTP.Port).
		Str("timezone", cfg.App.Timezone).
		Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
