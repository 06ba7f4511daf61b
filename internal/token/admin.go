package token

import (
	"crypto/subtle"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rendis/fastconfig/pkg/schema"
)

// DefaultAdminTTL is the lifetime of an admin session token.
const DefaultAdminTTL = 7 * 24 * time.Hour

// AdminConfig configures admin login.
type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt
	Secret       []byte
	TTL          time.Duration
	Now          func() time.Time
}

// AdminAuth checks admin credentials and issues/validates session tokens.
type AdminAuth struct {
	username string
	hash     []byte
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

// NewAdminAuth creates an AdminAuth. The signing secret is required; an
// empty username or password hash disables login.
func NewAdminAuth(cfg AdminConfig) (*AdminAuth, error) {
	if len(cfg.Secret) < 16 {
		return nil, schema.NewError(schema.ErrCodeBadRequest, "admin jwt secret must be at least 16 bytes")
	}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, schema.NewError(schema.ErrCodeBadRequest, "admin password hash is not a bcrypt hash").WithCause(err)
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultAdminTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AdminAuth{
		username: cfg.Username,
		hash:     []byte(cfg.PasswordHash),
		secret:   cfg.Secret,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}, nil
}

// Enabled reports whether admin login is configured.
func (a *AdminAuth) Enabled() bool {
	return a.username != "" && len(a.hash) > 0
}

// Login verifies username and password and returns a session token.
func (a *AdminAuth) Login(username, password string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, unauthorized("admin login disabled")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(a.hash, []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, unauthorized("invalid username or password")
	}
	return a.Issue(username)
}

// Issue signs a session token for subject.
func (a *AdminAuth) Issue(subject string) (string, time.Time, error) {
	now := a.now().UTC().Truncate(time.Second)
	exp := now.Add(a.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &AdminClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   subject,
		Audience:  jwt.ClaimStrings{schema.AdminAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}})
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, schema.NewError(schema.ErrCodeInternal, "sign token").WithCause(err)
	}
	return signed, exp, nil
}

// Verify validates a session token and returns its claims.
func (a *AdminAuth) Verify(raw string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(schema.AdminAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, unauthorized("invalid admin token")
	}
	if claims.Subject == "" {
		return nil, unauthorized("invalid admin token")
	}
	return claims, nil
}
