package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"
	"scoutpay/internal/repositories"
	"scoutpay/internal/services/referral"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawReferralToWallet converts the user's referral points into wallet
// credit. The points are zeroed together with a pending-credit marker, the
// wallet is credited under REF-<marker>, and only then is the marker
// settled. A failed credit leaves the marker for Reconcile.
func (s *service) WithdrawReferralToWallet(ctx context.Context, identity models.Identity) (*ReferralCredit, error) {
	wallet, err := s.GetOrCreateWallet(ctx, identity)
	if err != nil {
		return nil, err
	}

	total := &ReferralCredit{Amount: decimal.Zero, Wallet: wallet}

	pending, err := s.referrals.Pending(ctx, wallet.UserID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		credit, err := s.creditReferral(ctx, wallet, *pending)
		if err != nil {
			return nil, err
		}
		total.add(credit)
	}

	w, err := s.referrals.Withdraw(ctx, wallet.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrWithdrawalPending) {
			return nil, apperrors.Wrap(apperrors.ErrAlreadyExists, "referral withdrawal already in progress", err)
		}
		return nil, err
	}
	if w.Points == 0 {
		return total, nil
	}

	credit, err := s.creditReferral(ctx, wallet, w)
	if err != nil {
		return nil, err
	}
	total.add(credit)
	return total, nil
}

func (c *ReferralCredit) add(other *ReferralCredit) {
	c.Points += other.Points
	c.Amount = c.Amount.Add(other.Amount)
	c.Wallet = other.Wallet
	c.Transaction = other.Transaction
}

// creditReferral credits one withdrawal and settles its marker. Replaying an
// already credited withdrawal only settles it.
func (s *service) creditReferral(ctx context.Context, wallet *models.Wallet, w referral.Withdrawal) (*ReferralCredit, error) {
	amount := decimal.NewFromInt(w.Points).Mul(s.config.PointValue)
	res, err := s.apply(ctx, mutation{
		op:          opReferralCredit,
		walletID:    wallet.ID,
		amount:      amount,
		txType:      models.TransactionTypeDeposit,
		reference:   ReferralReferencePrefix + w.Reference,
		description: fmt.Sprintf("Referral bonus withdrawal (%d points)", w.Points),
		metadata: map[string]interface{}{
			"source": "referral",
			"points": w.Points,
		},
		kind: models.NotificationReferral,
	})
	if err != nil {
		s.logger.Error("referral credit failed, withdrawal left pending",
			zap.String("user_id", w.UserID),
			zap.String("reference", w.Reference),
			zap.Int64("points", w.Points),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.referrals.Settle(ctx, w); err != nil {
		s.logger.Warn("failed to settle referral withdrawal",
			zap.String("user_id", w.UserID),
			zap.String("reference", w.Reference),
			zap.Error(err),
		)
	}
	return &ReferralCredit{
		Points:      w.Points,
		Amount:      amount,
		Wallet:      res.Wallet,
		Transaction: res.Transaction,
	}, nil
}

// Reconcile replays pending referral withdrawals. It stops early only when
// ctx is done or the pending list cannot be read.
func (s *service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(opReconcile, time.Since(start))
	}()

	pending, err := s.referrals.PendingWithdrawals(ctx, DefaultReconcileBatch)
	if err != nil {
		s.metrics.RecordError(opReconcile, errorKind(err))
		return ReconcileReport{}, err
	}

	report := ReconcileReport{Pending: len(pending)}
	for _, w := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		wallet, err := s.GetOrCreateWallet(ctx, models.Identity{UserID: w.UserID})
		if err != nil {
			report.Failed++
			s.logger.Warn("reconcile: wallet unavailable", zap.String("user_id", w.UserID), zap.Error(err))
			continue
		}
		if _, err := s.creditReferral(ctx, wallet, w); err != nil {
			report.Failed++
			continue
		}
		report.Credited++
	}

	if report.Pending > 0 {
		s.logger.Info("referral reconciliation finished",
			zap.Int("pending", report.Pending),
			zap.Int("credited", report.Credited),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}
