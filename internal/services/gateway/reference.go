package gateway

import (
	"crypto/rand"
	"strings"
	"time"

	apperrors "scoutpay/internal/errors"

	"github.com/oklog/ulid/v2"
)

const ReferencePrefix = "SP_"

// GenerateReference returns a unique, time-sortable payment reference.
func GenerateReference() string {
	return ReferencePrefix + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// PrepareCharge validates the inputs of a checkout and builds the request.
func PrepareCharge(email string, amountMinor int64, reference string, metadata map[string]interface{}) (ChargeRequest, error) {
	email = strings.TrimSpace(email)
	switch {
	case email == "":
		return ChargeRequest{}, apperrors.Validationf("email is required")
	case amountMinor <= 0:
		return ChargeRequest{}, apperrors.Validationf("amount must be positive")
	case strings.TrimSpace(reference) == "":
		return ChargeRequest{}, apperrors.Validationf("reference is required")
	}
	return ChargeRequest{
		Email:       email,
		AmountMinor: amountMinor,
		Reference:   reference,
		Metadata:    metadata,
	}, nil
}
