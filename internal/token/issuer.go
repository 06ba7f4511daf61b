package token

import (
	"context"
	"log/slog"
	"time"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rendis/fastconfig/internal/identity"
	"github.com/rendis/fastconfig/internal/logging"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

// DefaultPullTTL is the lifetime of an issued pull token.
const DefaultPullTTL = 30 * 24 * time.Hour

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	TTL time.Duration
	Now func() time.Time
}

// Issuer mints pull tokens signed with the service's newest active
// credential and records every token it hands out.
type Issuer struct {
	store  store.Store
	creds  *identity.Manager
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewIssuer creates an Issuer.
func NewIssuer(s store.Store, creds *identity.Manager, cfg IssuerConfig, logger *slog.Logger) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultPullTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Issuer{store: s, creds: creds, ttl: cfg.TTL, now: cfg.Now, logger: logger}
}

// Issue mints a pull token for (serviceCode, env).
func (i *Issuer) Issue(ctx context.Context, serviceCode, env string) (*schema.IssuedToken, error) {
	if err := schema.ValidateName("env", env); err != nil {
		return nil, err
	}
	svc, err := i.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	cred, err := i.creds.SelectActiveSigningCredential(ctx, svc.ID)
	if err != nil {
		return nil, err
	}
	key, err := i.creds.SecretKey(cred)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(key)

	id := uuid.New().String()
	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{
		ID:        id,
		Subject:   serviceCode,
		Env:       env,
		Audience:  jwt.ClaimStrings{schema.PullAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	tok.Header["kid"] = cred.AccessKey
	signed, err := tok.SignedString(key)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInternal, "sign token").WithCause(err)
	}

	row := &store.PullToken{
		ID:        id,
		ServiceID: svc.ID,
		Env:       env,
		Token:     signed,
		ExpiresAt: exp,
		CreatedAt: now,
	}
	if err := i.store.CreatePullToken(ctx, row); err != nil {
		return nil, err
	}

	logging.LogWith(logging.WithTarget(ctx, serviceCode, env), i.logger).Info("pull token issued",
		"token_id", row.ID, "kid", cred.AccessKey, "expires_at", exp)
	return &schema.IssuedToken{ID: row.ID, Token: signed, ExpiresAt: exp}, nil
}

// List returns the tokens recorded for a service, newest first.
func (i *Issuer) List(ctx context.Context, serviceCode string) ([]*store.PullToken, error) {
	svc, err := i.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return nil, err
	}
	return i.store.ListPullTokens(ctx, svc.ID)
}

// Revoke deletes a token record. Pulls presenting the token fail from then on.
func (i *Issuer) Revoke(ctx context.Context, serviceCode, tokenID string) error {
	svc, err := i.store.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		return err
	}
	if err := i.store.DeletePullToken(ctx, svc.ID, tokenID); err != nil {
		return err
	}
	logging.LogWith(logging.WithServiceCode(ctx, serviceCode), i.logger).Info("pull token revoked", "token_id", tokenID)
	return nil
}
