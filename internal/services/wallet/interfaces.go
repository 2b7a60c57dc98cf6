package wallet

import (
	"context"

	"scoutpay/internal/models"
	"scoutpay/internal/services/gateway"
	"scoutpay/internal/services/notification"
	"scoutpay/internal/services/referral"

	"github.com/shopspring/decimal"
)

// Service defines the main wallet service interface
type Service interface {
	// Wallet lifecycle
	GetOrCreateWallet(ctx context.Context, identity models.Identity) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)

	// Ledger mutations
	CompleteTopUp(ctx context.Context, walletID string, amount decimal.Decimal, reference, gatewayStatus string) (*OperationResult, error)
	DebitForOrder(ctx context.Context, walletID string, amount decimal.Decimal, orderReference, description string) (*OperationResult, error)
	Refund(ctx context.Context, walletID string, amount decimal.Decimal, orderReference, description string) (*OperationResult, error)
	WithdrawReferralToWallet(ctx context.Context, identity models.Identity) (*ReferralCredit, error)

	// Gateway flows
	StartTopUp(ctx context.Context, identity models.Identity, amount decimal.Decimal) (*TopUpSession, error)
	ReconcileTopUp(ctx context.Context, walletID, reference string) (*OperationResult, error)
	TopUpWithCard(ctx context.Context, identity models.Identity, cardID string, amount decimal.Decimal) (*OperationResult, error)
	HandleGatewayEvent(ctx context.Context, event *gateway.WebhookEvent) error

	// Queries and preferences
	ListTransactions(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
	ToggleBalanceVisibility(ctx context.Context, userID string) (bool, error)
	BalanceHidden(ctx context.Context, userID string) (bool, error)

	// Reconcile replays referral credits that were withdrawn but never landed.
	Reconcile(ctx context.Context) (ReconcileReport, error)
}

// Gateway is the payment processor as seen by the wallet.
type Gateway interface {
	InitiateCheckout(ctx context.Context, charge gateway.ChargeRequest, callbacks gateway.Callbacks) (*gateway.Checkout, error)
	VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyResult, error)
	ChargeAuthorization(ctx context.Context, charge gateway.ChargeRequest, authorizationCode string) (*gateway.VerifyResult, error)
}

// ReferralLedger is the referral point store.
type ReferralLedger interface {
	Withdraw(ctx context.Context, userID string) (referral.Withdrawal, error)
	Settle(ctx context.Context, w referral.Withdrawal) error
	Pending(ctx context.Context, userID string) (*referral.Withdrawal, error)
	PendingWithdrawals(ctx context.Context, limit int) ([]referral.Withdrawal, error)
}

// Notifier records a notification and publishes the wallet event.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification, event *notification.WalletEvent) error
}

// WalletCache defines the caching operations for wallet reads.
// GetWallet returns nil without error on a miss.
type WalletCache interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	CacheWallet(ctx context.Context, wallet *models.Wallet) error
	InvalidateWallet(ctx context.Context, userID string) error
}

// CardStore resolves saved cards for card top-ups.
type CardStore interface {
	GetCard(ctx context.Context, userID, cardID string) (*models.PaymentCard, error)
	SaveAuthorization(ctx context.Context, userID string, auth gateway.Authorization) (*models.PaymentCard, error)
}
