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
	"scoutpay/internal/repositories/cache"
	"scoutpay/internal/services/notification"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type service struct {
	store     repositories.LedgerStore
	gateway   Gateway
	referrals ReferralLedger
	notifier  Notifier
	prefs     cache.Preferences
	cache     WalletCache
	cards     CardStore
	metrics   MetricsCollector
	logger    *zap.Logger
	config    Config
	now       func() time.Time

	creating singleflight.Group
}

// NewService creates a new wallet service
func NewService(deps Dependencies, config Config) Service {
	if deps.Store == nil {
		panic("store is required")
	}
	if deps.Gateway == nil {
		panic("gateway is required")
	}
	if deps.Referrals == nil {
		panic("referral ledger is required")
	}

	if config.DefaultCurrency == "" {
		config.DefaultCurrency = DefaultCurrency
	}
	if !config.PointValue.IsPositive() {
		config.PointValue = decimal.NewFromInt(1)
	}
	if config.MaxVerifyAttempts <= 0 {
		config.MaxVerifyAttempts = DefaultMaxVerifyAttempts
	}
	if config.VerifyInitialInterval <= 0 {
		config.VerifyInitialInterval = DefaultVerifyInitialInterval
	}
	if config.VerifyMaxInterval <= 0 {
		config.VerifyMaxInterval = DefaultVerifyMaxInterval
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.CheckoutTTL <= 0 {
		config.CheckoutTTL = DefaultCheckoutTTL
	}
	if !config.MaxTopUpAmount.IsPositive() {
		config.MaxTopUpAmount = decimal.NewFromInt(DefaultMaxTopUpAmount)
	}

	s := &service{
		store:     deps.Store,
		gateway:   deps.Gateway,
		referrals: deps.Referrals,
		notifier:  deps.Notifier,
		prefs:     deps.Preferences,
		cache:     deps.Cache,
		cards:     deps.Cards,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		config:    config,
		now:       time.Now,
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	if s.prefs == nil {
		s.prefs = cache.NewMemoryPreferences()
	}
	if s.cache == nil {
		s.cache = noopCache{}
	}
	if s.metrics == nil {
		s.metrics = &NoopMetricsCollector{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("wallet")
	return s
}

func (s *service) GetOrCreateWallet(ctx context.Context, identity models.Identity) (*models.Wallet, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return nil, apperrors.Validationf("user id is required")
	}
	if wallet, ok := s.cachedWallet(ctx, userID); ok {
		return wallet, nil
	}

	wallet, err := s.store.GetWallet(ctx, userID)
	if err == nil {
		s.storeInCache(ctx, wallet)
		return wallet, nil
	}
	if !errors.Is(err, repositories.ErrWalletNotFound) {
		return nil, storeErr("get wallet", err)
	}

	// Concurrent first access for one user collapses into a single create.
	v, err, _ := s.creating.Do(userID, func() (interface{}, error) {
		if existing, err := s.store.GetWallet(ctx, userID); err == nil {
			return existing, nil
		}
		wallet := &models.Wallet{
			UserID:         userID,
			Email:          strings.TrimSpace(identity.Email),
			Name:           strings.TrimSpace(identity.DisplayName),
			Balance:        decimal.Zero,
			TotalDeposited: decimal.Zero,
			TotalSpent:     decimal.Zero,
			Currency:       s.config.DefaultCurrency,
		}
		err := s.store.CreateWallet(ctx, wallet)
		if errors.Is(err, repositories.ErrDuplicateWallet) {
			// Lost the race to another process; the stored wallet wins.
			return s.store.GetWallet(ctx, userID)
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("wallet created",
			zap.String("user_id", userID),
			zap.String("wallet_id", wallet.ID),
		)
		return wallet, nil
	})
	if err != nil {
		return nil, storeErr("create wallet", err)
	}
	created := *v.(*models.Wallet)
	s.storeInCache(ctx, &created)
	return &created, nil
}

func (s *service) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validationf("user id is required")
	}
	if wallet, ok := s.cachedWallet(ctx, userID); ok {
		return wallet, nil
	}

	wallet, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, storeErr("get wallet", err)
	}
	s.storeInCache(ctx, wallet)
	return wallet, nil
}

// CompleteTopUp credits a gateway payment. Only a success status is credited,
// and a reference that already completed is returned as a duplicate.
func (s *service) CompleteTopUp(ctx context.Context, walletID string, amount decimal.Decimal, reference, gatewayStatus string) (*OperationResult, error) {
	if !strings.EqualFold(strings.TrimSpace(gatewayStatus), "success") {
		s.metrics.RecordError(opTopUp, apperrors.ErrPaymentNotSuccessful.Code)
		return nil, apperrors.Wrap(apperrors.ErrPaymentNotSuccessful,
			fmt.Sprintf("payment %s reported status %q", reference, gatewayStatus), nil)
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperrors.Validationf("payment reference is required")
	}

	return s.apply(ctx, mutation{
		op:          opTopUp,
		walletID:    walletID,
		amount:      amount,
		txType:      models.TransactionTypeDeposit,
		reference:   reference,
		description: "Wallet top-up",
		metadata:    map[string]interface{}{"source": "gateway"},
		kind:        models.NotificationTopUp,
	})
}

func (s *service) DebitForOrder(ctx context.Context, walletID string, amount decimal.Decimal, orderReference, description string) (*OperationResult, error) {
	orderReference = strings.TrimSpace(orderReference)
	if orderReference == "" {
		return nil, apperrors.Validationf("order reference is required")
	}
	if strings.TrimSpace(description) == "" {
		description = "Order " + orderReference
	}

	return s.apply(ctx, mutation{
		op:          opDebit,
		walletID:    walletID,
		amount:      amount,
		txType:      models.TransactionTypePayment,
		reference:   orderReference,
		description: description,
		metadata:    map[string]interface{}{"order_reference": orderReference},
		kind:        models.NotificationPayment,
	})
}

// Refund returns money for a paid order. The refund may not exceed the
// order's completed payment.
func (s *service) Refund(ctx context.Context, walletID string, amount decimal.Decimal, orderReference, description string) (*OperationResult, error) {
	orderReference = strings.TrimSpace(orderReference)
	if orderReference == "" {
		return nil, apperrors.Validationf("order reference is required")
	}
	if strings.TrimSpace(description) == "" {
		description = "Refund for order " + orderReference
	}

	return s.apply(ctx, mutation{
		op:          opRefund,
		walletID:    walletID,
		amount:      amount,
		txType:      models.TransactionTypeRefund,
		reference:   RefundReferencePrefix + orderReference,
		description: description,
		metadata:    map[string]interface{}{"order_reference": orderReference},
		kind:        models.NotificationRefund,
		check: func(ctx context.Context, tx repositories.LedgerStore, wallet *models.Wallet) error {
			payment, err := tx.FindCompletedByReference(ctx, wallet.ID, orderReference)
			if errors.Is(err, repositories.ErrTransactionNotFound) || (err == nil && payment.Type != models.TransactionTypePayment) {
				return apperrors.Wrap(apperrors.ErrNotFound, "no completed payment for order "+orderReference, nil)
			}
			if err != nil {
				return err
			}
			if amount.GreaterThan(payment.Amount) {
				return apperrors.Validationf("refund %s exceeds payment %s", amount.StringFixed(2), payment.Amount.StringFixed(2))
			}
			return nil
		},
	})
}

// apply runs one balance mutation: lock the wallet, append the completed
// transaction, then write the balance derived from the locked read. The
// notification follows the commit and cannot fail the mutation.
func (s *service) apply(ctx context.Context, m mutation) (result *OperationResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(m.op, time.Since(start))
		switch {
		case err != nil:
			s.metrics.RecordError(m.op, errorKind(err))
			s.metrics.RecordOperationResult(m.op, "error")
		case result.Duplicate:
			s.metrics.RecordOperationResult(m.op, "duplicate")
		default:
			s.metrics.RecordOperationResult(m.op, "success")
		}
	}()

	if strings.TrimSpace(m.walletID) == "" {
		return nil, apperrors.Validationf("wallet id is required")
	}
	if !m.amount.IsPositive() {
		return nil, apperrors.Validationf("amount must be positive, got %s", m.amount.String())
	}
	if !m.amount.Equal(m.amount.Round(2)) {
		return nil, apperrors.Validationf("amount %s has more than two decimal places", m.amount.String())
	}

	var res OperationResult
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.LedgerStore) error {
		wallet, err := tx.GetWalletForUpdate(ctx, m.walletID)
		if err != nil {
			return err
		}

		if m.reference != "" {
			existing, err := tx.FindCompletedByReference(ctx, wallet.ID, m.reference)
			if err == nil {
				if err := sameEffect(existing, m.txType, m.amount); err != nil {
					return err
				}
				res = OperationResult{Wallet: wallet, Transaction: existing, Duplicate: true}
				return nil
			}
			if !errors.Is(err, repositories.ErrTransactionNotFound) {
				return err
			}
		}

		if m.check != nil {
			if err := m.check(ctx, tx, wallet); err != nil {
				return err
			}
		}

		credit := m.txType.IsCredit()
		if !credit && m.amount.GreaterThan(wallet.Balance) {
			return apperrors.Wrap(apperrors.ErrInsufficientBalance,
				fmt.Sprintf("balance %s is below %s", wallet.Balance.StringFixed(2), m.amount.StringFixed(2)), nil)
		}

		now := s.now()
		entry := &models.Transaction{
			WalletID:    wallet.ID,
			Amount:      m.amount,
			Type:        m.txType,
			Status:      models.TransactionStatusCompleted,
			Description: m.description,
			Reference:   m.reference,
			Metadata:    models.NewJSON(m.metadata),
			CreatedAt:   now,
		}
		if err := tx.AppendTransaction(ctx, entry); err != nil {
			return err
		}

		balances := wallet.Balances()
		if credit {
			balances.Balance = balances.Balance.Add(m.amount)
			balances.TotalDeposited = balances.TotalDeposited.Add(m.amount)
		} else {
			balances.Balance = balances.Balance.Sub(m.amount)
			balances.TotalSpent = balances.TotalSpent.Add(m.amount)
		}
		if err := tx.UpdateBalance(ctx, wallet.ID, balances); err != nil {
			return err
		}

		wallet.Balance = balances.Balance
		wallet.TotalDeposited = balances.TotalDeposited
		wallet.TotalSpent = balances.TotalSpent
		wallet.UpdatedAt = now
		res = OperationResult{Wallet: wallet, Transaction: entry}
		return nil
	})

	if errors.Is(err, repositories.ErrDuplicateTransaction) {
		// A concurrent writer completed the same reference first.
		return s.readBack(ctx, m)
	}
	if err != nil {
		s.logger.Warn("wallet mutation failed",
			zap.String("operation", m.op),
			zap.String("wallet_id", m.walletID),
			zap.String("reference", m.reference),
			zap.Error(err),
		)
		return nil, storeErr(m.op, err)
	}

	if res.Duplicate {
		s.logger.Info("duplicate reference, returning original transaction",
			zap.String("operation", m.op),
			zap.String("wallet_id", m.walletID),
			zap.String("reference", m.reference),
		)
		return &res, nil
	}

	s.invalidate(ctx, res.Wallet.UserID)
	s.metrics.RecordTransaction(string(m.txType), m.amount.InexactFloat64())
	s.notify(ctx, m, res.Wallet, res.Transaction)

	s.logger.Info("wallet mutation committed",
		zap.String("operation", m.op),
		zap.String("wallet_id", res.Wallet.ID),
		zap.String("transaction_id", res.Transaction.ID),
		zap.String("amount", m.amount.StringFixed(2)),
		zap.String("balance", res.Wallet.Balance.StringFixed(2)),
	)
	return &res, nil
}

func (s *service) readBack(ctx context.Context, m mutation) (*OperationResult, error) {
	existing, err := s.store.FindCompletedByReference(ctx, m.walletID, m.reference)
	if err != nil {
		return nil, storeErr("read back transaction", err)
	}
	if err := sameEffect(existing, m.txType, m.amount); err != nil {
		return nil, err
	}
	wallet, err := s.store.GetWalletByID(ctx, m.walletID)
	if err != nil {
		return nil, storeErr("read back wallet", err)
	}
	return &OperationResult{Wallet: wallet, Transaction: existing, Duplicate: true}, nil
}

// sameEffect accepts a replay only when the stored transaction under the
// reference is the one being requested again.
func sameEffect(existing *models.Transaction, txType models.TransactionType, amount decimal.Decimal) error {
	if existing.Type != txType || !existing.Amount.Equal(amount) {
		return apperrors.Wrap(apperrors.ErrDuplicateTransaction,
			fmt.Sprintf("reference %s already used by a %s of %s", existing.Reference, existing.Type, existing.Amount.StringFixed(2)), nil)
	}
	return nil
}

func (s *service) notify(ctx context.Context, m mutation, wallet *models.Wallet, entry *models.Transaction) {
	amount := fmt.Sprintf("%s %s", wallet.Currency, entry.Amount.StringFixed(2))

	n := &models.Notification{
		UserID: wallet.UserID,
		Kind:   m.kind,
		Metadata: models.JSON{
			"wallet_id":      wallet.ID,
			"transaction_id": entry.ID,
			"reference":      entry.Reference,
			"amount":         entry.Amount.StringFixed(2),
		},
	}
	switch m.kind {
	case models.NotificationTopUp:
		n.Title = "Wallet topped up"
		n.Body = fmt.Sprintf("Your wallet was credited with %s.", amount)
	case models.NotificationPayment:
		n.Title = "Payment successful"
		n.Body = fmt.Sprintf("%s was paid from your wallet for %s.", amount, entry.Description)
	case models.NotificationRefund:
		n.Title = "Refund received"
		n.Body = fmt.Sprintf("%s was refunded to your wallet.", amount)
	case models.NotificationReferral:
		n.Title = "Referral bonus credited"
		n.Body = fmt.Sprintf("%s. Your wallet was credited with %s.", entry.Description, amount)
	default:
		n.Title = "Wallet updated"
		n.Body = entry.Description
	}

	event := &notification.WalletEvent{
		EventType:       notification.EventWalletUpdated,
		UserID:          wallet.UserID,
		WalletID:        wallet.ID,
		TransactionID:   entry.ID,
		TransactionType: string(entry.Type),
		Reference:       entry.Reference,
		Amount:          entry.Signed().StringFixed(2),
		BalanceAfter:    wallet.Balance.StringFixed(2),
		Currency:        wallet.Currency,
		Timestamp:       entry.CreatedAt,
	}

	if err := s.notifier.Notify(ctx, n, event); err != nil {
		s.metrics.RecordError(m.op, "notification")
		s.logger.Warn("notification failed after commit",
			zap.String("wallet_id", wallet.ID),
			zap.String("transaction_id", entry.ID),
			zap.Error(err),
		)
	}
}

func (s *service) ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validationf("user id is required")
	}
	if limit <= 0 || limit > s.config.HistoryLimit {
		limit = s.config.HistoryLimit
	}

	wallet, err := s.store.GetWallet(ctx, userID)
	if errors.Is(err, repositories.ErrWalletNotFound) {
		return []models.Transaction{}, nil
	}
	if err != nil {
		return nil, storeErr("get wallet", err)
	}

	txs, err := s.store.ListTransactions(ctx, wallet.ID, limit)
	if err != nil {
		return nil, storeErr("list transactions", err)
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// ToggleBalanceVisibility flips the user's hide-balance preference and
// returns the new value. It never touches the ledger.
func (s *service) ToggleBalanceVisibility(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, apperrors.Validationf("user id is required")
	}
	hidden, err := s.prefs.BalanceHidden(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("read balance preference: %w", err)
	}
	if err := s.prefs.SetBalanceHidden(ctx, userID, !hidden); err != nil {
		return false, fmt.Errorf("write balance preference: %w", err)
	}
	return !hidden, nil
}

func (s *service) BalanceHidden(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, apperrors.Validationf("user id is required")
	}
	return s.prefs.BalanceHidden(ctx, userID)
}
