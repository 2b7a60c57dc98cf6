package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scoutpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerStore struct {
	db *gorm.DB
}

// NewLedgerStore returns a LedgerStore backed by gorm. The db must be opened
// with TranslateError so unique violations surface as gorm.ErrDuplicatedKey.
func NewLedgerStore(db *gorm.DB) LedgerStore {
	return &ledgerStore{
		db: db,
	}
}

func (r *ledgerStore) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *ledgerStore) GetWalletByID(ctx context.Context, walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

func (r *ledgerStore) GetWalletForUpdate(ctx context.Context, walletID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "id = ?", walletID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

func (r *ledgerStore) CreateWallet(ctx context.Context, wallet *models.Wallet) error {
	result := r.db.WithContext(ctx).Create(wallet)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateWallet
		}
		return fmt.Errorf("failed to create wallet: %w", result.Error)
	}
	return nil
}

func (r *ledgerStore) UpdateBalance(ctx context.Context, walletID string, b models.Balances) error {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]interface{}{
			"balance":         b.Balance,
			"total_deposited": b.TotalDeposited,
			"total_spent":     b.TotalSpent,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *ledgerStore) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Create(tx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", result.Error)
	}
	return nil
}

func (r *ledgerStore) FindCompletedByReference(ctx context.Context, walletID, reference string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND reference = ? AND status = ?", walletID, reference, models.TransactionStatusCompleted).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

func (r *ledgerStore) ListTransactions(ctx context.Context, walletID string, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	return txs, nil
}

func (r *ledgerStore) CreateCard(ctx context.Context, card *models.PaymentCard) error {
	if err := r.db.WithContext(ctx).Create(card).Error; err != nil {
		return fmt.Errorf("failed to create card: %w", err)
	}
	return nil
}

func (r *ledgerStore) GetCard(ctx context.Context, cardID string) (*models.PaymentCard, error) {
	var card models.PaymentCard
	if err := r.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card: %w", err)
	}
	return &card, nil
}

func (r *ledgerStore) ListCards(ctx context.Context, userID string) ([]models.PaymentCard, error) {
	var cards []models.PaymentCard
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user cards: %w", err)
	}
	return cards, nil
}

func (r *ledgerStore) DeleteCard(ctx context.Context, userID, cardID string) error {
	result := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", cardID, userID).Delete(&models.PaymentCard{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete card: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (r *ledgerStore) SetDefaultCard(ctx context.Context, userID, cardID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.PaymentCard
		if err := tx.Where("id = ? AND user_id = ?", cardID, userID).First(&card).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return err
		}

		// Remove default flag from all user's cards
		if err := tx.Model(&models.PaymentCard{}).
			Where("user_id = ? AND id <> ?", userID, cardID).
			Update("is_default", false).Error; err != nil {
			return err
		}

		return tx.Model(&models.PaymentCard{}).
			Where("id = ?", cardID).
			Update("is_default", true).Error
	})
}

func (r *ledgerStore) ExecuteInTransaction(ctx context.Context, fn func(LedgerStore) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ledgerStore{db: tx})
	})
}
