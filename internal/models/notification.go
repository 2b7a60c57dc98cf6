package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification kinds
const (
	NotificationTopUp    = "wallet_topup"
	NotificationPayment  = "wallet_payment"
	NotificationRefund   = "wallet_refund"
	NotificationReferral = "referral_bonus"
)

// Notification is an append-only in-app notice for a user.
type Notification struct {
	ID        string    `gorm:"primarykey;type:uuid" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Metadata  JSON      `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *Notification) EnsureID() {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	n.EnsureID()
	return nil
}
