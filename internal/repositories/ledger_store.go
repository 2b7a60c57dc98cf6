package repositories

import (
	"context"
	"errors"
	"fmt"

	"scoutpay/internal/models"
)

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrDuplicateWallet      = errors.New("wallet already exists")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrDuplicateTransaction = errors.New("transaction reference already completed")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrCardNotFound         = errors.New("payment card not found")
)

// LedgerStore is the durable home of wallets, their transaction history and
// saved payment cards.
type LedgerStore interface {
	// Wallets
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	GetWalletByID(ctx context.Context, walletID string) (*models.Wallet, error)
	// GetWalletForUpdate reads a wallet and, inside ExecuteInTransaction,
	// holds it against concurrent writers until the transaction ends.
	GetWalletForUpdate(ctx context.Context, walletID string) (*models.Wallet, error)
	CreateWallet(ctx context.Context, wallet *models.Wallet) error
	// UpdateBalance writes the balances unconditionally. Callers compute
	// them from a locked read.
	UpdateBalance(ctx context.Context, walletID string, balances models.Balances) error

	// Ledger
	AppendTransaction(ctx context.Context, tx *models.Transaction) error
	FindCompletedByReference(ctx context.Context, walletID, reference string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error)

	// Payment cards
	CreateCard(ctx context.Context, card *models.PaymentCard) error
	GetCard(ctx context.Context, cardID string) (*models.PaymentCard, error)
	ListCards(ctx context.Context, userID string) ([]models.PaymentCard, error)
	DeleteCard(ctx context.Context, userID, cardID string) error
	// SetDefaultCard clears every other default for the user in the same
	// logical operation.
	SetDefaultCard(ctx context.Context, userID, cardID string) error

	ExecuteInTransaction(ctx context.Context, fn func(LedgerStore) error) error
}

// ValidateTransaction checks the shape of a ledger entry before it is written.
func ValidateTransaction(tx *models.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	if tx.WalletID == "" {
		return fmt.Errorf("%w: wallet id is required", ErrInvalidTransaction)
	}
	if tx.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidTransaction)
	}
	if !tx.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, tx.Type)
	}
	if !tx.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, tx.Status)
	}
	return nil
}
