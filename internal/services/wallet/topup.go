package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"
	"scoutpay/internal/repositories"
	"scoutpay/internal/services/gateway"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// StartTopUp opens a hosted checkout for amount. The wallet is credited only
// after the reference verifies server-side, whichever of the checkout
// callback, the webhook or an explicit ReconcileTopUp gets there first.
func (s *service) StartTopUp(ctx context.Context, identity models.Identity, amount decimal.Decimal) (*TopUpSession, error) {
	if err := s.validateTopUpAmount(amount); err != nil {
		return nil, err
	}
	wallet, err := s.GetOrCreateWallet(ctx, identity)
	if err != nil {
		return nil, err
	}

	reference := gateway.GenerateReference()
	minor := gateway.ToMinorUnits(amount)
	charge, err := s.prepareTopUpCharge(firstNonEmpty(identity.Email, wallet.Email), wallet, minor, reference)
	if err != nil {
		return nil, err
	}

	// The checkout outlives the request that started it.
	checkoutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CheckoutTTL)
	checkout, err := s.gateway.InitiateCheckout(checkoutCtx, charge, s.topUpCallbacks(wallet.ID))
	if err != nil {
		cancel()
		s.metrics.RecordError(opTopUp, errorKind(err))
		return nil, err
	}
	go func() {
		<-checkout.Done()
		cancel()
	}()

	s.logger.Info("top-up started",
		zap.String("wallet_id", wallet.ID),
		zap.String("reference", reference),
		zap.Int64("amount_minor", minor),
	)
	return &TopUpSession{
		WalletID:         wallet.ID,
		Reference:        reference,
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Amount:           gateway.FromMinorUnits(minor),
		AmountMinor:      minor,
	}, nil
}

func (s *service) validateTopUpAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return apperrors.Validationf("amount must be positive, got %s", amount.String())
	case !amount.Equal(amount.Round(2)):
		return apperrors.Validationf("amount %s has more than two decimal places", amount.String())
	case amount.GreaterThan(s.config.MaxTopUpAmount):
		return apperrors.Validationf("amount %s exceeds the top-up limit of %s", amount.StringFixed(2), s.config.MaxTopUpAmount.StringFixed(2))
	}
	return nil
}

// prepareTopUpCharge tags the charge with the wallet it credits. The tag
// comes back on verification and binds the reference to that wallet.
func (s *service) prepareTopUpCharge(email string, wallet *models.Wallet, minor int64, reference string) (gateway.ChargeRequest, error) {
	charge, err := gateway.PrepareCharge(email, minor, reference, map[string]interface{}{
		"wallet_id": wallet.ID,
		"user_id":   wallet.UserID,
		"purpose":   "wallet_topup",
	})
	if err != nil {
		return gateway.ChargeRequest{}, err
	}
	charge.Currency = wallet.Currency
	return charge, nil
}

func (s *service) topUpCallbacks(walletID string) gateway.Callbacks {
	return gateway.Callbacks{
		OnSuccess: func(ctx context.Context, outcome gateway.Outcome) {
			// The client report is only a hint; ReconcileTopUp verifies it.
			if _, err := s.ReconcileTopUp(ctx, walletID, outcome.Reference); err != nil {
				s.logger.Warn("top-up reconciliation failed",
					zap.String("wallet_id", walletID),
					zap.String("reference", outcome.Reference),
					zap.Error(err),
				)
			}
		},
		OnCancel: func(_ context.Context, outcome gateway.Outcome) {
			s.metrics.RecordOperationResult(opTopUp, "cancelled")
			s.logger.Info("top-up cancelled",
				zap.String("wallet_id", walletID),
				zap.String("reference", outcome.Reference),
			)
		},
		OnError: func(_ context.Context, reference string, err error) {
			s.metrics.RecordError(opTopUp, errorKind(err))
			s.logger.Warn("top-up checkout failed",
				zap.String("wallet_id", walletID),
				zap.String("reference", reference),
				zap.Error(err),
			)
		},
	}
}

// ReconcileTopUp verifies reference with the gateway and credits the wallet
// if it settled. The reference must have been opened for walletID and in the
// wallet's currency. Verification is retried with backoff while the gateway
// is unavailable; any other failure is final.
func (s *service) ReconcileTopUp(ctx context.Context, walletID, reference string) (*OperationResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.Validationf("payment reference is required")
	}
	if strings.TrimSpace(walletID) == "" {
		return nil, apperrors.Validationf("wallet id is required")
	}

	wallet, err := s.store.GetWalletByID(ctx, walletID)
	if err != nil {
		return nil, storeErr("get wallet", err)
	}
	existing, err := s.store.FindCompletedByReference(ctx, wallet.ID, reference)
	if err == nil {
		if existing.Type != models.TransactionTypeDeposit {
			return nil, apperrors.Wrap(apperrors.ErrDuplicateTransaction,
				fmt.Sprintf("reference %s already used by a %s", reference, existing.Type), nil)
		}
		return &OperationResult{Wallet: wallet, Transaction: existing, Duplicate: true}, nil
	}
	if !errors.Is(err, repositories.ErrTransactionNotFound) {
		return nil, storeErr("find transaction", err)
	}

	verified, err := s.verify(ctx, reference)
	if err != nil {
		return nil, err
	}
	if err := s.checkSettlement(wallet, reference, verified); err != nil {
		s.metrics.RecordError(opTopUp, errorKind(err))
		return nil, err
	}

	status := verified.Status
	if !verified.Success && strings.EqualFold(status, gateway.StatusSuccess) {
		status = gateway.StatusFailed
	}
	res, err := s.CompleteTopUp(ctx, wallet.ID, gateway.FromMinorUnits(verified.AmountMinor), reference, status)
	if err != nil {
		return nil, err
	}
	if !res.Duplicate {
		s.saveAuthorization(ctx, res.Wallet.UserID, verified.Authorization)
	}
	return res, nil
}

// checkSettlement rejects a verified payment that was opened for another
// wallet or settled in another currency.
func (s *service) checkSettlement(wallet *models.Wallet, reference string, verified *gateway.VerifyResult) error {
	if owner := verified.MetadataString("wallet_id"); owner != wallet.ID {
		s.logger.Warn("payment reference bound to another wallet",
			zap.String("wallet_id", wallet.ID),
			zap.String("owner_wallet_id", owner),
			zap.String("reference", reference),
		)
		return apperrors.Wrap(apperrors.ErrNotFound,
			fmt.Sprintf("payment %s was not made for this wallet", reference), nil)
	}
	if verified.Currency != "" && !strings.EqualFold(verified.Currency, wallet.Currency) {
		return apperrors.Validationf("payment %s settled in %s, wallet holds %s", reference, verified.Currency, wallet.Currency)
	}
	return nil
}

func (s *service) verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.VerifyInitialInterval
	policy.MaxInterval = s.config.VerifyMaxInterval
	policy.MaxElapsedTime = 0

	var result *gateway.VerifyResult
	operation := func() error {
		res, err := s.gateway.VerifyTransaction(ctx, reference)
		if err != nil {
			if errors.Is(err, apperrors.ErrGatewayUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}
	notify := func(err error, next time.Duration) {
		s.logger.Warn("verify failed, retrying",
			zap.String("reference", reference),
			zap.Duration("next", next),
			zap.Error(err),
		)
	}

	retries := uint64(s.config.MaxVerifyAttempts - 1)
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx), notify)
	if err != nil {
		s.metrics.RecordError(opTopUp, errorKind(err))
		return nil, err
	}
	return result, nil
}

func (s *service) saveAuthorization(ctx context.Context, userID string, auth gateway.Authorization) {
	if s.cards == nil || !auth.Reusable || auth.AuthorizationCode == "" {
		return
	}
	if _, err := s.cards.SaveAuthorization(ctx, userID, auth); err != nil {
		s.logger.Warn("failed to save card authorization", zap.String("user_id", userID), zap.Error(err))
	}
}

// TopUpWithCard charges a saved gateway authorization and credits the
// wallet with the settled amount. A charge the gateway reports as pending is
// returned unsettled; the webhook or ReconcileTopUp credits it later.
func (s *service) TopUpWithCard(ctx context.Context, identity models.Identity, cardID string, amount decimal.Decimal) (*OperationResult, error) {
	if s.cards == nil {
		return nil, apperrors.Validationf("saved card top-ups are not enabled")
	}
	if err := s.validateTopUpAmount(amount); err != nil {
		return nil, err
	}
	wallet, err := s.GetOrCreateWallet(ctx, identity)
	if err != nil {
		return nil, err
	}
	card, err := s.cards.GetCard(ctx, wallet.UserID, cardID)
	if err != nil {
		return nil, err
	}
	if card.Provider != models.CardProviderGateway {
		return nil, apperrors.Validationf("card %s cannot be charged for top-ups", cardID)
	}

	reference := gateway.GenerateReference()
	minor := gateway.ToMinorUnits(amount)
	charge, err := s.prepareTopUpCharge(firstNonEmpty(identity.Email, wallet.Email), wallet, minor, reference)
	if err != nil {
		return nil, err
	}
	charged, err := s.gateway.ChargeAuthorization(ctx, charge, card.Token)
	if err != nil {
		s.metrics.RecordError(opTopUp, errorKind(err))
		return nil, err
	}

	if strings.EqualFold(charged.Status, gateway.StatusPending) {
		s.metrics.RecordOperationResult(opTopUp, "pending")
		s.logger.Info("card top-up pending",
			zap.String("wallet_id", wallet.ID),
			zap.String("reference", reference),
		)
		return &OperationResult{Wallet: wallet, Pending: true, Reference: reference}, nil
	}
	if charged.Currency != "" && !strings.EqualFold(charged.Currency, wallet.Currency) {
		s.metrics.RecordError(opTopUp, apperrors.ErrValidation.Code)
		return nil, apperrors.Validationf("payment %s settled in %s, wallet holds %s", reference, charged.Currency, wallet.Currency)
	}
	if charged.AmountMinor > 0 {
		minor = charged.AmountMinor
	}
	status := charged.Status
	if !charged.Success {
		status = firstNonEmpty(status, gateway.StatusFailed)
		if strings.EqualFold(status, gateway.StatusSuccess) {
			status = gateway.StatusFailed
		}
	}
	return s.CompleteTopUp(ctx, wallet.ID, gateway.FromMinorUnits(minor), reference, status)
}

// HandleGatewayEvent applies a verified webhook. Only charge.success moves
// money, and only after the reference verifies as opened for the wallet the
// event names.
func (s *service) HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error {
	if event == nil {
		return apperrors.Validationf("event is required")
	}
	switch event.Event {
	case gateway.EventChargeSuccess:
		walletID, _ := event.Data.Metadata["wallet_id"].(string)
		if walletID == "" {
			return apperrors.Validationf("event for %s carries no wallet_id", event.Data.Reference)
		}
		_, err := s.ReconcileTopUp(ctx, walletID, event.Data.Reference)
		return err
	default:
		s.logger.Info("ignoring gateway event",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
		)
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
