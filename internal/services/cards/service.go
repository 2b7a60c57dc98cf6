// Package cards manages saved payment methods. Only tokens and display
// metadata are persisted.
package cards

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"
	"scoutpay/internal/repositories"
	"scoutpay/internal/services/gateway"

	"go.uber.org/zap"
)

type Service struct {
	store     repositories.LedgerStore
	tokenizer Tokenizer
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store repositories.LedgerStore, tokenizer Tokenizer, logger *zap.Logger) *Service {
	if store == nil {
		panic("ledger store is required")
	}
	if tokenizer == nil {
		panic("tokenizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		tokenizer: tokenizer,
		logger:    logger.Named("cards"),
		now:       time.Now,
	}
}

func (s *Service) validateExpiry(month, year int) error {
	if month < 1 || month > 12 {
		return apperrors.Validationf("invalid expiry month")
	}
	now := s.now()
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return apperrors.Validationf("card has expired")
	}
	return nil
}

// LinkCard tokenizes and saves a card. A user's first card becomes default.
func (s *Service) LinkCard(ctx context.Context, userID string, input models.CreateCardInput) (*models.PaymentCard, error) {
	if input.CardNumber == "" {
		return nil, apperrors.Validationf("card number is required")
	}
	if err := s.validateExpiry(input.ExpiryMonth, input.ExpiryYear); err != nil {
		return nil, err
	}

	tok, err := s.tokenizer.TokenizeCard(input)
	if err != nil {
		s.logger.Warn("card tokenization failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	card := &models.PaymentCard{
		UserID:         userID,
		Provider:       models.CardProviderStripe,
		CardBrand:      tok.CardType,
		LastFourDigits: tok.LastFour,
		ExpiryMonth:    input.ExpiryMonth,
		ExpiryYear:     input.ExpiryYear,
		Token:          tok.Token,
	}
	if err := s.save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

// SaveAuthorization stores a reusable gateway authorization as a card.
// Saving the same authorization twice returns the existing card.
func (s *Service) SaveAuthorization(ctx context.Context, userID string, auth gateway.Authorization) (*models.PaymentCard, error) {
	if !auth.Reusable || auth.AuthorizationCode == "" {
		return nil, apperrors.Validationf("authorization is not reusable")
	}

	existing, err := s.store.ListCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if existing[i].Token == auth.AuthorizationCode {
			return &existing[i], nil
		}
	}

	month, _ := strconv.Atoi(auth.ExpMonth)
	year, _ := strconv.Atoi(auth.ExpYear)
	card := &models.PaymentCard{
		UserID:         userID,
		Provider:       models.CardProviderGateway,
		CardBrand:      auth.CardType,
		LastFourDigits: auth.Last4,
		ExpiryMonth:    month,
		ExpiryYear:     year,
		Token:          auth.AuthorizationCode,
	}
	if err := s.save(ctx, card); err != nil {
		return nil, err
	}
	return card, nil
}

func (s *Service) save(ctx context.Context, card *models.PaymentCard) error {
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.LedgerStore) error {
		cards, err := tx.ListCards(ctx, card.UserID)
		if err != nil {
			return err
		}
		card.IsDefault = len(cards) == 0
		return tx.CreateCard(ctx, card)
	})
	if err != nil {
		return fmt.Errorf("failed to save card: %w", err)
	}
	s.logger.Info("card linked",
		zap.String("user_id", card.UserID),
		zap.String("card_id", card.ID),
		zap.String("provider", card.Provider),
	)
	return nil
}

func (s *Service) ListCards(ctx context.Context, userID string) ([]models.PaymentCard, error) {
	return s.store.ListCards(ctx, userID)
}

// GetCard returns the card only when it belongs to userID.
func (s *Service) GetCard(ctx context.Context, userID, cardID string) (*models.PaymentCard, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, mapCardErr(err)
	}
	if card.UserID != userID {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "card not found", nil)
	}
	return card, nil
}

func (s *Service) SetDefault(ctx context.Context, userID, cardID string) error {
	return mapCardErr(s.store.SetDefaultCard(ctx, userID, cardID))
}

// RemoveCard deletes a card. When the default card is removed the oldest
// remaining card becomes default.
func (s *Service) RemoveCard(ctx context.Context, userID, cardID string) error {
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.LedgerStore) error {
		card, err := tx.GetCard(ctx, cardID)
		if err != nil {
			return err
		}
		if card.UserID != userID {
			return repositories.ErrCardNotFound
		}
		if err := tx.DeleteCard(ctx, userID, cardID); err != nil {
			return err
		}
		if !card.IsDefault {
			return nil
		}
		rest, err := tx.ListCards(ctx, userID)
		if err != nil || len(rest) == 0 {
			return err
		}
		return tx.SetDefaultCard(ctx, userID, rest[0].ID)
	})
	return mapCardErr(err)
}

func mapCardErr(err error) error {
	if errors.Is(err, repositories.ErrCardNotFound) {
		return apperrors.Wrap(apperrors.ErrNotFound, "card not found", err)
	}
	return err
}
