package models

import "time"

// ReferralAccount tracks a user's referral code and points. PendingCredit
// and PendingReference mark points that were withdrawn but not yet credited
// to the wallet.
type ReferralAccount struct {
	UserID           string    `gorm:"primarykey" json:"user_id"`
	ReferralCode     string    `gorm:"size:8;uniqueIndex;not null" json:"referral_code"`
	Points           int64     `gorm:"not null;default:0" json:"points"`
	ReferredUsers    StringSet `gorm:"type:jsonb;not null;default:'[]'" json:"referred_users"`
	PendingCredit    int64     `gorm:"not null;default:0;index" json:"pending_credit"`
	PendingReference string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (ReferralAccount) TableName() string {
	return "referrals"
}
