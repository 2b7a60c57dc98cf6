package wallet

import (
	"context"

	"scoutpay/internal/models"
	"scoutpay/internal/services/notification"

	"go.uber.org/zap"
)

type noopCache struct{}

func (noopCache) GetWallet(context.Context, string) (*models.Wallet, error) {
	return nil, nil
}

func (noopCache) CacheWallet(context.Context, *models.Wallet) error {
	return nil
}

func (noopCache) InvalidateWallet(context.Context, string) error {
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *models.Notification, *notification.WalletEvent) error {
	return nil
}

// cachedWallet reads through the cache. Cache failures fall back to the store.
func (s *service) cachedWallet(ctx context.Context, userID string) (*models.Wallet, bool) {
	wallet, err := s.cache.GetWallet(ctx, userID)
	if err != nil {
		s.logger.Warn("wallet cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if wallet == nil {
		s.metrics.RecordCacheMiss("wallet")
		return nil, false
	}
	s.metrics.RecordCacheHit("wallet")
	return wallet, true
}

func (s *service) storeInCache(ctx context.Context, wallet *models.Wallet) {
	if err := s.cache.CacheWallet(ctx, wallet); err != nil {
		s.logger.Warn("failed to cache wallet", zap.String("user_id", wallet.UserID), zap.Error(err))
	}
}

func (s *service) invalidate(ctx context.Context, userID string) {
	if err := s.cache.InvalidateWallet(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate wallet cache", zap.String("user_id", userID), zap.Error(err))
	}
}
