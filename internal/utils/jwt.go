package utils

import (
	"errors"
	"time"

	"scoutpay/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken signs an HS256 access token for identity. The production
// issuer is the identity provider; this is used by tooling and tests that
// need a token the middleware accepts.
func GenerateToken(secret string, identity models.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := models.UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: identity.UserID,
		Email:  identity.Email,
		Name:   identity.DisplayName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
