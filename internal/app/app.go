// Package app assembles the booking core shared by the API and bot binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"bookmylawn/internal/broker/kafka"
	"bookmylawn/internal/config"
	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/events"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/models"
	"bookmylawn/internal/repository"
	"bookmylawn/internal/service"
	"bookmylawn/internal/store"
	"bookmylawn/internal/view"
	"bookmylawn/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const janitorInterval = 10 * time.Minute

// Core is the wired booking backend.
type Core struct {
	Config   *config.Config
	DB       *database.DB
	Redis    *redis.Client
	Bus      *events.EventBus
	Store    *store.Store
	Views    *view.Registry
	Bookings *service.BookingService
	Auth     *service.AuthService
	State    *service.StateService

	outbox   *worker.OutboxWorker
	producer *kafka.Producer
	backup   *database.BackupService
	closers  []io.Closer
	logger   *zerolog.Logger
}

// LoadConfigAndLogger reads CONFIG_PATH (configs/config.yaml by default) and
// builds the root logger.
func LoadConfigAndLogger(component string) (*config.Config, zerolog.Logger, io.Closer, error) {
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
	logger := baseLogger.With().Str("component", component).Logger()

	return cfg, logger, closer, nil
}

// New opens the database, connects the change notifier and builds the
// services. Views are supervised under ctx.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Core, error) {
	c := &Core{Config: cfg, logger: logger}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, db)

	c.Redis = initRedis(ctx, cfg, logger)
	if c.Redis != nil {
		c.closers = append(c.closers, c.Redis)
	}

	var notifier store.Notifier
	c.Bus = events.NewEventBus()
	switch cfg.Store.Notifier {
	case models.NotifierRedis:
		if c.Redis == nil {
			c.Close()
			return nil, errors.New("redis notifier requires a redis connection")
		}
		notifier = store.NewRedisNotifier(c.Redis, cfg.Store.ChannelPrefix, logger)
	default:
		notifier = store.NewMemoryNotifier(c.Bus)
	}

	policy := worker.PolicyFromConfig(cfg.Retry)
	c.Store = store.New(db, notifier, logger)
	c.Views = view.NewRegistry(ctx, c.Store, policy, logger)

	c.Bookings = service.NewBookingService(c.Store, c.Views, c.Bus, policy, cfg.ReadyTimeout(), logger)
	if loc, err := cfg.Location(); err == nil {
		c.Bookings.SetLocation(loc)
	}

	c.Auth = service.NewAuthService(db, db, cfg.Auth.JWTSecret, cfg.SessionTTL(), logger)
	c.Auth.OnSignOut(c.Views.Release)

	c.State = service.NewStateService(c.stateRepository(), logger)

	if err := c.initOutbox(policy); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Backup.Enabled {
		c.backup = database.NewBackupService(db, cfg.Backup, logger)
	}

	return c, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}
	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}
	return client
}

// stateRepository keeps bot state in Redis when configured, in memory otherwise.
func (c *Core) stateRepository() *repository.FailoverStateRepository {
	ttl := time.Duration(c.Config.Bot.StateTTL) * time.Second
	fallback := repository.NewMemoryStateRepository(ttl)
	var primary domain.StateRepository = fallback
	if c.Redis != nil {
		primary = repository.NewRedisStateRepository(c.Redis, ttl)
	}
	return repository.NewFailoverStateRepository(primary, fallback, c.logger)
}

// initOutbox ships booking events to Kafka through the outbox when brokers
// are configured.
func (c *Core) initOutbox(policy worker.RetryPolicy) error {
	if !c.Config.Kafka.Enabled() {
		return nil
	}
	producer, err := kafka.NewProducer(c.Config.Kafka)
	if err != nil {
		return fmt.Errorf("init kafka producer: %w", err)
	}
	c.producer = producer
	c.closers = append(c.closers, producer)

	c.outbox = worker.NewOutboxWorker(c.DB, producer, c.Redis, policy, c.logger)
	c.outbox.Attach(c.Bus,
		events.EventBookingCreated,
		events.EventBookingUpdated,
		events.EventPaymentRecorded,
		events.EventBookingDeleted,
	)
	return nil
}

// Start launches the background jobs: outbox delivery, backups and the
// session janitor. They stop with ctx.
func (c *Core) Start(ctx context.Context) {
	if c.outbox != nil {
		go c.outbox.Start(ctx)
	}
	if c.backup != nil {
		go c.backup.Start(ctx)
	}
	go c.Auth.RunJanitor(ctx, janitorInterval)
}

// Close stops all subscriptions and releases connections.
func (c *Core) Close() {
	if c.Views != nil {
		c.Views.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			c.logger.Warn().Err(err).Msg("close error")
		}
	}
	c.closers = nil
}
