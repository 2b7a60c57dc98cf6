package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scoutpay/internal/config"
	apperrors "scoutpay/internal/errors"

	"go.uber.org/zap"
)

const SignatureHeader = "x-paystack-signature"

// Client is the HTTP adapter for the payment gateway.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	currency    string
	httpClient  *http.Client
	checkouts   *Registry
	logger      *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithCurrency(currency string) Option {
	return func(c *Client) { c.currency = currency }
}

func NewClient(cfg config.GatewayConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		callbackURL: cfg.CallbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		checkouts:   NewRegistry(),
		logger:      logger.Named("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Checkouts exposes the registry of in-flight checkouts.
func (c *Client) Checkouts() *Registry {
	return c.checkouts
}

// InitiateCheckout opens a hosted checkout for charge. The returned Checkout
// reports its outcome through callbacks exactly once; a cancelled ctx counts
// as the customer cancelling.
func (c *Client) InitiateCheckout(ctx context.Context, charge ChargeRequest, callbacks Callbacks) (*Checkout, error) {
	if charge.Currency == "" {
		charge.Currency = c.currency
	}
	if charge.CallbackURL == "" {
		charge.CallbackURL = c.callbackURL
	}

	var resp initializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", charge, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, apperrors.Wrap(apperrors.ErrPaymentNotSuccessful, "checkout rejected: "+resp.Message, nil)
	}

	checkout := NewCheckout(charge.Reference, resp.Data.AuthorizationURL, resp.Data.AccessCode, callbacks)
	c.checkouts.add(checkout)
	checkout.watch(ctx, c.checkouts)

	c.logger.Info("checkout initialized",
		zap.String("reference", charge.Reference),
		zap.Int64("amount_minor", charge.AmountMinor),
	)
	return checkout, nil
}

// VerifyTransaction asks the gateway for the final state of reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, apperrors.Validationf("reference is required")
	}

	var resp verifyResponse
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}

	return resp.result(reference), nil
}

// ChargeAuthorization debits a previously authorized card. The charge's
// metadata travels with it and comes back on verification.
func (c *Client) ChargeAuthorization(ctx context.Context, charge ChargeRequest, authorizationCode string) (*VerifyResult, error) {
	if authorizationCode == "" {
		return nil, apperrors.Validationf("authorization code is required")
	}
	prepared, err := PrepareCharge(charge.Email, charge.AmountMinor, charge.Reference, charge.Metadata)
	if err != nil {
		return nil, err
	}

	var resp verifyResponse
	err = c.do(ctx, http.MethodPost, "/transaction/charge_authorization", chargeAuthorizationRequest{
		Email:             prepared.Email,
		AmountMinor:       prepared.AmountMinor,
		AuthorizationCode: authorizationCode,
		Reference:         prepared.Reference,
		Currency:          firstNonEmpty(charge.Currency, c.currency),
		Metadata:          prepared.Metadata,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.result(prepared.Reference), nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 of body against signature.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	return VerifySignature(c.secretKey, body, signature)
}

func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Sign returns the signature the gateway would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook decodes a webhook body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "malformed webhook payload", err)
	}
	if event.Data.Reference == "" {
		return nil, apperrors.Validationf("webhook missing reference")
	}
	return &event, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.Warn("gateway request failed", zap.String("path", path), zap.Error(err))
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "failed to read gateway response", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		c.logger.Warn("gateway returned server error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Sprintf("gateway returned %d", resp.StatusCode), nil)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var env envelope
		_ = json.Unmarshal(raw, &env)
		if resp.StatusCode == http.StatusNotFound {
			return apperrors.Wrap(apperrors.ErrNotFound, "gateway: "+env.Message, nil)
		}
		return apperrors.Wrap(apperrors.ErrPaymentNotSuccessful, "gateway: "+env.Message, nil)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, "malformed gateway response", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
