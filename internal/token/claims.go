package token

import (
	"github.com/golang-jwt/jwt/v5"
)

// PullClaims is the payload of a pull token.
type PullClaims struct {
	Subject   string           `json:"sub"`
	Env       string           `json:"env"`
	Audience  jwt.ClaimStrings `json:"aud,omitempty"`
	IssuedAt  *jwt.NumericDate `json:"iat,omitempty"`
	ExpiresAt *jwt.NumericDate `json:"exp,omitempty"`
	ID        string           `json:"jti,omitempty"`
	// Kid is only read, for tokens minted with the key id in the payload.
	Kid string `json:"kid,omitempty"`
}

var _ jwt.Claims = (*PullClaims)(nil)

func (c *PullClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c *PullClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return c.IssuedAt, nil }
func (c *PullClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c *PullClaims) GetIssuer() (string, error)                   { return "", nil }
func (c *PullClaims) GetSubject() (string, error)                  { return c.Subject, nil }

func (c *PullClaims) GetAudience() (jwt.ClaimStrings, error) { return c.Audience, nil }

// AdminClaims is the payload of an admin session token.
type AdminClaims struct {
	jwt.RegisteredClaims
}
