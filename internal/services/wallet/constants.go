package wallet

import "time"

// Default configuration values
const (
	DefaultCurrency              = "NGN"
	DefaultMaxVerifyAttempts     = 5
	DefaultVerifyInitialInterval = 500 * time.Millisecond
	DefaultVerifyMaxInterval     = 10 * time.Second
	DefaultHistoryLimit          = 50
	DefaultCheckoutTTL           = 30 * time.Minute
	DefaultReconcileBatch        = 100
	// DefaultMaxTopUpAmount caps one top-up in major units.
	DefaultMaxTopUpAmount = 10_000_000
)

// Cache durations
const (
	CacheDuration = 5 * time.Minute
)

// Reference prefixes
const (
	ReferralReferencePrefix = "REF-"
	RefundReferencePrefix   = "RFD-"
)

// Operation names used for metrics and logs
const (
	opTopUp          = "top_up"
	opDebit          = "debit"
	opRefund         = "refund"
	opReferralCredit = "referral_credit"
	opReconcile      = "reconcile"
)
