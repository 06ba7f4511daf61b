package token

import (
	"context"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"

	"github.com/rendis/fastconfig/internal/secrets"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// DefaultLeeway is the clock skew tolerated on exp and iat.
const DefaultLeeway = 60 * time.Second

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Leeway time.Duration
	Now    func() time.Time
}

// Verifier authenticates pull tokens for a (service, env) target.
type Verifier struct {
	store  store.Store
	vault  secrets.Vault
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a Verifier. A zero Leeway means DefaultLeeway.
func NewVerifier(s store.Store, v secrets.Vault, cfg VerifierConfig) *Verifier {
	if cfg.Leeway <= 0 {
		cfg.Leeway = DefaultLeeway
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{store: s, vault: v, leeway: cfg.Leeway, now: cfg.Now}
}

func unauthorized(msg string) *schema.Error {
	return schema.NewError(schema.ErrCodeUnauthorized, msg)
}

// Verify runs the checks in order and stops at the first failure:
// key id, signing credential, signature and claims, target binding, and
// finally the token record. Every rejection is UNAUTHORIZED.
func (v *Verifier) Verify(ctx context.Context, raw, serviceCode, env string) (*PullClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, &PullClaims{})
	if err != nil {
		return nil, unauthorized("malformed token")
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		if c, ok := unverified.Claims.(*PullClaims); ok {
			kid = c.Kid
		}
	}
	if kid == "" {
		return nil, unauthorized("kid missing")
	}

	cred, err := v.store.GetActiveCredential(ctx, serviceCode, kid)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		return nil, unauthorized("credential not found or inactive for service")
	}
	if err != nil {
		return nil, err
	}
	key, err := v.vault.Decrypt(cred.SecretCiphertext)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	claims := &PullClaims{}
	_, err = jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithAudience(schema.PullAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, unauthorized("invalid token: " + err.Error())
	}
	if claims.IssuedAt == nil {
		return nil, unauthorized("invalid token: token is missing required claim: iat claim is required")
	}
	if claims.Subject == "" {
		return nil, unauthorized("invalid token: token is missing required claim: sub claim is required")
	}

	if claims.Subject != serviceCode {
		return nil, unauthorized("sub mismatch")
	}
	if claims.Env != env {
		return nil, unauthorized("env mismatch")
	}

	ok, err := v.store.PullTokenExists(ctx, serviceCode, raw)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, unauthorized("token revoked or not found")
	}
	return claims, nil
}
