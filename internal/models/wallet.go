package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet is a user's stored-value account. Balance always equals
// TotalDeposited minus TotalSpent.
type Wallet struct {
	ID             string          `gorm:"primarykey;type:uuid" json:"id"`
	UserID         string          `gorm:"uniqueIndex;not null" json:"user_id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Balance        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	TotalDeposited decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_deposited"`
	TotalSpent     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"total_spent"`
	Currency       string          `gorm:"size:3;default:'NGN'" json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Balances is the mutable part of a wallet written by UpdateBalance.
type Balances struct {
	Balance        decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalSpent     decimal.Decimal
}

func (w *Wallet) Balances() Balances {
	return Balances{
		Balance:        w.Balance,
		TotalDeposited: w.TotalDeposited,
		TotalSpent:     w.TotalSpent,
	}
}

// EnsureID assigns a fresh id when none is set.
func (w *Wallet) EnsureID() {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	w.EnsureID()
	// Ensure balance starts at 0
	w.Balance = decimal.Zero
	w.TotalDeposited = decimal.Zero
	w.TotalSpent = decimal.Zero
	return nil
}
