// Package gateway talks to a Paystack-style card payment API. Amounts on the
// wire are integer minor units.
package gateway

import (
	"context"
	"encoding/json"
)

const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
)

// ChargeRequest is a validated request to collect money from a customer.
type ChargeRequest struct {
	Email       string                 `json:"email"`
	AmountMinor int64                  `json:"amount"`
	Reference   string                 `json:"reference"`
	Currency    string                 `json:"currency,omitempty"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Authorization is the reusable card authorization returned by the gateway.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	CardType          string `json:"card_type"`
	Last4             string `json:"last4"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
	Reusable          bool   `json:"reusable"`
}

// VerifyResult is the gateway's view of a reference.
type VerifyResult struct {
	Reference     string        `json:"reference"`
	Success       bool          `json:"success"`
	Status        string        `json:"status"`
	AmountMinor   int64         `json:"amount"`
	Currency      string        `json:"currency"`
	Authorization Authorization `json:"authorization"`
	// Metadata is what the charge was opened with, such as wallet_id.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// MetadataString returns the string stored under key, or "".
func (r *VerifyResult) MetadataString(key string) string {
	v, _ := r.Metadata[key].(string)
	return v
}

// Outcome is what a finished checkout reports to its callbacks.
type Outcome struct {
	Reference string
	Status    string
}

// Callbacks receive the single terminal outcome of a checkout.
type Callbacks struct {
	OnSuccess func(ctx context.Context, outcome Outcome)
	OnCancel  func(ctx context.Context, outcome Outcome)
	OnError   func(ctx context.Context, reference string, err error)
}

type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

type initializeResponse struct {
	envelope
	Data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponse struct {
	envelope
	Data struct {
		Reference     string          `json:"reference"`
		Status        string          `json:"status"`
		Amount        int64           `json:"amount"`
		Currency      string          `json:"currency"`
		Authorization Authorization   `json:"authorization"`
		Metadata      json.RawMessage `json:"metadata"`
	} `json:"data"`
}

func (r *verifyResponse) result(reference string) *VerifyResult {
	return &VerifyResult{
		Reference:     firstNonEmpty(r.Data.Reference, reference),
		Success:       r.Status && r.Data.Status == StatusSuccess,
		Status:        r.Data.Status,
		AmountMinor:   r.Data.Amount,
		Currency:      r.Data.Currency,
		Authorization: r.Data.Authorization,
		Metadata:      decodeMetadata(r.Data.Metadata),
	}
}

// decodeMetadata accepts metadata as an object or as a JSON-encoded string.
// Anything else yields nil.
func decodeMetadata(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err == nil {
		return m
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil || encoded == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(encoded), &m); err != nil {
		return nil
	}
	return m
}

type chargeAuthorizationRequest struct {
	Email             string                 `json:"email"`
	AmountMinor       int64                  `json:"amount"`
	AuthorizationCode string                 `json:"authorization_code"`
	Reference         string                 `json:"reference"`
	Currency          string                 `json:"currency,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

// WebhookEvent is the subset of a gateway webhook the wallet consumes.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata map[string]interface{} `json:"metadata"`
	} `json:"data"`
}

const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)
