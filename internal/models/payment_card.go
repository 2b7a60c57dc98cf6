package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Card token providers
const (
	CardProviderStripe  = "stripe"
	CardProviderGateway = "gateway"
)

// PaymentCard is saved payment-method metadata. Token is the gateway
// authorization code or Stripe token; the card number itself is never stored.
type PaymentCard struct {
	ID             string    `gorm:"primarykey;type:uuid" json:"id"`
	UserID         string    `gorm:"not null;index" json:"user_id"`
	Provider       string    `gorm:"size:16;not null;default:'stripe'" json:"provider"`
	CardBrand      string    `gorm:"not null" json:"card_brand"`
	LastFourDigits string    `gorm:"size:4;not null" json:"last_four_digits"`
	ExpiryMonth    int       `gorm:"not null" json:"expiry_month"`
	ExpiryYear     int       `gorm:"not null" json:"expiry_year"`
	Token          string    `gorm:"not null" json:"-"`
	IsDefault      bool      `gorm:"default:false" json:"is_default"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (c *PaymentCard) EnsureID() {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
}

func (c *PaymentCard) BeforeCreate(tx *gorm.DB) error {
	c.EnsureID()
	return nil
}

// CreateCardInput represents the input for linking a new card
type CreateCardInput struct {
	CardNumber  string `json:"card_number" validate:"required,min=4"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" validate:"required,min=2000"`
	CVC         string `json:"cvc"`
}

// CardToken represents the card tokenization result
type CardToken struct {
	Token    string `json:"token"`
	CardType string `json:"card_type"`
	LastFour string `json:"last_four"`
}
