package models

import "github.com/golang-jwt/jwt/v5"

// Identity is the already-authenticated subject supplied by the identity
// provider. The ledger treats it as opaque.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"name"`
}

type UserClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Identity returns the subject carried by the claims, falling back to the
// registered subject when user_id is absent.
func (c *UserClaims) Identity() Identity {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return Identity{UserID: id, Email: c.Email, DisplayName: c.Name}
}
