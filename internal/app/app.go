// Package app wires the ledger services from configuration. Both the HTTP
// server and the reconciler command build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"

	"scoutpay/internal/config"
	"scoutpay/internal/repositories"
	"scoutpay/internal/repositories/cache"
	"scoutpay/internal/services/cards"
	"scoutpay/internal/services/gateway"
	"scoutpay/internal/services/notification"
	"scoutpay/internal/services/referral"
	"scoutpay/internal/services/wallet"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds the long-lived dependencies of one process.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	// DB and Cache are nil when the process runs on in-memory stores or
	// without redis.
	DB    *gorm.DB
	Cache *cache.CacheService

	Registry      *prometheus.Registry
	Gateway       *gateway.Client
	Referrals     *referral.Service
	Cards         *cards.Service
	Notifications *notification.Service
	Wallet        wallet.Service
}

// Build connects the configured backends and assembles the services. Outside
// production an unreachable database falls back to in-memory stores.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pointValue, err := decimal.NewFromString(cfg.Wallet.PointValue)
	if err != nil {
		return nil, fmt.Errorf("invalid referral point value %q: %w", cfg.Wallet.PointValue, err)
	}
	maxTopUp, err := decimal.NewFromString(cfg.Wallet.MaxTopUpAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid top-up limit %q: %w", cfg.Wallet.MaxTopUpAmount, err)
	}

	var (
		store         repositories.LedgerStore
		referralRepo  repositories.ReferralRepository
		notifications repositories.NotificationRepository
	)
	db, err := repositories.InitDB(cfg.Database, logger)
	switch {
	case err == nil:
		c.DB = db
		store = repositories.NewLedgerStore(db)
		referralRepo = repositories.NewReferralRepository(db)
		notifications = repositories.NewNotificationRepository(db)
	case cfg.Env == "production":
		return nil, err
	default:
		logger.Warn("database unavailable, using in-memory stores", zap.Error(err))
		store = repositories.NewMemoryStore()
		referralRepo = repositories.NewMemoryReferralRepository()
		notifications = repositories.NewMemoryNotificationRepository()
	}

	publishers := notification.MultiPublisher{}
	var preferences cache.Preferences = cache.NewMemoryPreferences()
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Cache = cache.NewCacheService(client, wallet.CacheDuration)
		preferences = cache.NewRedisPreferences(c.Cache)
		publishers = append(publishers, notification.NewRedisPublisher(client))
		logger.Info("redis connected", zap.String("host", cfg.Redis.Host))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publishers = append(publishers, notification.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger))
		logger.Info("kafka publisher enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	c.Notifications = notification.NewService(notifications, publishers, logger)
	c.Gateway = gateway.NewClient(cfg.Gateway, logger, gateway.WithCurrency(cfg.Wallet.DefaultCurrency))
	c.Referrals = referral.NewService(referralRepo, referral.Config{PointsPerReferral: cfg.Wallet.ReferralPoints}, logger)
	c.Cards = cards.NewService(store, cards.NewStripeTokenizer(cfg.Gateway.StripeKey), logger)

	deps := wallet.Dependencies{
		Store:       store,
		Gateway:     c.Gateway,
		Referrals:   c.Referrals,
		Notifier:    c.Notifications,
		Preferences: preferences,
		Cards:       c.Cards,
		Metrics:     wallet.NewPrometheusCollector(c.Registry),
		Logger:      logger,
	}
	if c.Cache != nil {
		deps.Cache = c.Cache
	}
	c.Wallet = wallet.NewService(deps, wallet.Config{
		DefaultCurrency:   cfg.Wallet.DefaultCurrency,
		PointValue:        pointValue,
		MaxVerifyAttempts: cfg.Wallet.MaxVerifyAttempts,
		HistoryLimit:      cfg.Wallet.HistoryLimit,
		MaxTopUpAmount:    maxTopUp,
	})
	return c, nil
}

// Close releases every backend connection that Build opened.
func (c *Container) Close() error {
	var errs []error
	if c.Notifications != nil {
		if err := c.Notifications.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publishers: %w", err))
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := repositories.Close(c.DB); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
