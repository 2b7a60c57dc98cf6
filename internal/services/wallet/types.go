package wallet

import (
	"context"
	"time"

	"scoutpay/internal/models"
	"scoutpay/internal/repositories"
	"scoutpay/internal/repositories/cache"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds configuration for wallet operations
type Config struct {
	DefaultCurrency string
	// PointValue is the wallet credit for one referral point.
	PointValue            decimal.Decimal
	MaxVerifyAttempts     int
	VerifyInitialInterval time.Duration
	VerifyMaxInterval     time.Duration
	HistoryLimit          int
	CheckoutTTL           time.Duration
	MaxTopUpAmount        decimal.Decimal
}

// Dependencies are the collaborators of the wallet service. Store, Gateway
// and Referrals are required.
type Dependencies struct {
	Store       repositories.LedgerStore
	Gateway     Gateway
	Referrals   ReferralLedger
	Notifier    Notifier
	Preferences cache.Preferences
	Cache       WalletCache
	Cards       CardStore
	Metrics     MetricsCollector
	Logger      *zap.Logger
}

// OperationResult is the committed effect of a balance mutation.
type OperationResult struct {
	Wallet      *models.Wallet      `json:"wallet"`
	Transaction *models.Transaction `json:"transaction"`
	// Duplicate is set when the reference had already completed and
	// nothing was written.
	Duplicate bool `json:"duplicate"`
	// Pending is set when the gateway has not settled Reference yet.
	// Transaction is nil and the wallet is unchanged.
	Pending   bool   `json:"pending,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// TopUpSession is a started hosted checkout.
type TopUpSession struct {
	WalletID         string          `json:"wallet_id"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorization_url"`
	AccessCode       string          `json:"access_code"`
	Amount           decimal.Decimal `json:"amount"`
	AmountMinor      int64           `json:"amount_minor"`
}

// ReferralCredit reports a referral withdrawal into the wallet.
type ReferralCredit struct {
	Points      int64               `json:"points"`
	Amount      decimal.Decimal     `json:"amount"`
	Wallet      *models.Wallet      `json:"wallet"`
	Transaction *models.Transaction `json:"transaction,omitempty"`
}

// ReconcileReport summarizes one replay pass.
type ReconcileReport struct {
	Pending  int `json:"pending"`
	Credited int `json:"credited"`
	Failed   int `json:"failed"`
}

type mutation struct {
	op          string
	walletID    string
	amount      decimal.Decimal
	txType      models.TransactionType
	reference   string
	description string
	metadata    map[string]interface{}
	kind        string
	// check runs against the locked wallet before anything is written.
	check func(ctx context.Context, tx repositories.LedgerStore, wallet *models.Wallet) error
}
