package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

// Transaction types
const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeRefund     TransactionType = "refund"
)

// IsCredit reports whether the type increases the wallet balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeRefund
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypePayment, TransactionTypeRefund:
		return true
	}
	return false
}

type TransactionStatus string

// Transaction statuses
const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// Transaction is an immutable ledger entry. Amount is a magnitude; the
// direction comes from Type. At most one completed row may exist per
// (WalletID, Reference) when Reference is set.
type Transaction struct {
	ID          string            `gorm:"primarykey;type:uuid" json:"id"`
	WalletID    string            `gorm:"type:uuid;not null;index:idx_tx_wallet_created,priority:1;index:idx_tx_wallet_reference,unique,priority:1,where:status = 'completed' AND reference <> ''" json:"wallet_id"`
	Amount      decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Type        TransactionType   `gorm:"size:16;not null" json:"type"`
	Status      TransactionStatus `gorm:"size:16;not null;default:'pending'" json:"status"`
	Description string            `json:"description"`
	Reference   string            `gorm:"index:idx_tx_wallet_reference,unique,priority:2" json:"reference,omitempty"`
	Metadata    JSON              `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"index:idx_tx_wallet_created,priority:2,sort:desc" json:"created_at"`
}

func (t *Transaction) EnsureID() {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	t.EnsureID()
	return nil
}

// Signed returns the amount with the sign of its effect on the balance.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Type.IsCredit() {
		return t.Amount
	}
	return t.Amount.Neg()
}
