// Package notification records in-app notices and broadcasts wallet events.
// Delivery is best effort: callers log failures and carry on.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scoutpay/internal/models"
	"scoutpay/internal/repositories"

	"go.uber.org/zap"
)

const DefaultListLimit = 50

type Service struct {
	repo      repositories.NotificationRepository
	publisher Publisher
	logger    *zap.Logger
}

func NewService(repo repositories.NotificationRepository, publisher Publisher, logger *zap.Logger) *Service {
	if repo == nil {
		panic("notification repository is required")
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("notification"),
	}
}

// Notify stores n and publishes event. Both are attempted even if the first
// fails; the joined error is returned for logging.
func (s *Service) Notify(ctx context.Context, n *models.Notification, event *WalletEvent) error {
	var errs []error
	if n != nil {
		if err := s.repo.Append(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("record notification: %w", err))
		}
	}
	if event != nil {
		if event.EventType == "" {
			event.EventType = EventWalletUpdated
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now()
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", event.EventType, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) List(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

func (s *Service) Close() error {
	return s.publisher.Close()
}
