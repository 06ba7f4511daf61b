package token

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fastconfig/internal/identity"
	"github.com/rendis/fastconfig/internal/secrets"
	"github.com/rendis/fastconfig/internal/store"
	"github.com/rendis/fastconfig/pkg/schema"
)

type fixture struct {
	store    *store.SQLStore
	vault    *secrets.AESVault
	creds    *identity.Manager
	issuer   *Issuer
	verifier *Verifier
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})

	v, err := secrets.NewAESVault(secrets.VaultConfig{MasterKey: make([]byte, 32)})
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	creds := identity.NewManager(s, v, nil)
	return &fixture{
		store:    s,
		vault:    v,
		creds:    creds,
		issuer:   NewIssuer(s, creds, IssuerConfig{Now: nowFn}, nil),
		verifier: NewVerifier(s, v, VerifierConfig{Now: nowFn}),
		clock:    clock,
	}
}

func (f *fixture) register(t *testing.T, code string) *schema.IssuedCredential {
	t.Helper()
	_, cred, err := f.creds.RegisterService(context.Background(), code, code, "")
	require.NoError(t, err)
	return cred
}

func assertUnauthorized(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnauthorized), "got %v", err)
	assert.Contains(t, err.Error(), msg)
}

// --- Issuer ---

func TestIssue_ClaimsAndHeader(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")

	issued, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Add(DefaultPullTTL), issued.ExpiresAt)

	claims := &PullClaims{}
	tok, err := jwt.ParseWithClaims(issued.Token, claims, func(*jwt.Token) (any, error) {
		return []byte(cred.SecretKey), nil
	}, jwt.WithTimeFunc(func() time.Time { return *f.clock }))
	require.NoError(t, err)
	assert.Equal(t, "HS256", tok.Method.Alg())
	assert.Equal(t, cred.AccessKey, tok.Header["kid"])
	assert.Equal(t, "svcA", claims.Subject)
	assert.Equal(t, "prod", claims.Env)
	assert.Equal(t, jwt.ClaimStrings{schema.PullAudience}, claims.Audience)
	assert.Equal(t, issued.ID, claims.ID)
	assert.Empty(t, claims.Kid)
}

func TestIssue_UnknownService(t *testing.T) {
	f := newFixture(t)
	_, err := f.issuer.Issue(context.Background(), "nope", "prod")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

func TestIssue_NoActiveCredential(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	require.NoError(t, f.creds.Disable(context.Background(), "svcA", cred.AccessKey))

	_, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	assert.True(t, schema.IsCode(err, schema.ErrCodeInvalidState))
}

func TestIssue_UsesNewestCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "svcA")
	second, err := f.creds.Issue(ctx, "svcA")
	require.NoError(t, err)

	issued, err := f.issuer.Issue(ctx, "svcA", "prod")
	require.NoError(t, err)
	tok, _, err := jwt.NewParser().ParseUnverified(issued.Token, &PullClaims{})
	require.NoError(t, err)
	assert.Equal(t, second.AccessKey, tok.Header["kid"])
}

func TestListAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(ctx, "svcA", "prod")
	require.NoError(t, err)

	list, err := f.issuer.List(ctx, "svcA")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, issued.ID, list[0].ID)

	require.NoError(t, f.issuer.Revoke(ctx, "svcA", issued.ID))
	err = f.issuer.Revoke(ctx, "svcA", issued.ID)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}

// --- Verifier ---

func TestVerify_Valid(t *testing.T) {
	f := newFixture(t)
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	require.NoError(t, err)

	claims, err := f.verifier.Verify(context.Background(), issued.Token, "svcA", "prod")
	require.NoError(t, err)
	assert.Equal(t, "svcA", claims.Subject)
	assert.Equal(t, "prod", claims.Env)
}

func TestVerify_WrongTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "svcA")
	f.register(t, "svcB")
	issued, err := f.issuer.Issue(ctx, "svcA", "prod")
	require.NoError(t, err)

	_, err = f.verifier.Verify(ctx, issued.Token, "svcA", "staging")
	assertUnauthorized(t, err, "env mismatch")

	// svcB has no credential with svcA's access key.
	_, err = f.verifier.Verify(ctx, issued.Token, "svcB", "prod")
	assertUnauthorized(t, err, "credential not found or inactive for service")
}

func TestVerify_RevokedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(ctx, "svcA", "prod")
	require.NoError(t, err)
	require.NoError(t, f.issuer.Revoke(ctx, "svcA", issued.ID))

	_, err = f.verifier.Verify(ctx, issued.Token, "svcA", "prod")
	assertUnauthorized(t, err, "token revoked or not found")
}

func TestVerify_DisabledCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cred := f.register(t, "svcA")
	issued, err := f.issuer.Issue(ctx, "svcA", "prod")
	require.NoError(t, err)
	require.NoError(t, f.creds.Disable(ctx, "svcA", cred.AccessKey))

	_, err = f.verifier.Verify(ctx, issued.Token, "svcA", "prod")
	assertUnauthorized(t, err, "credential not found or inactive for service")
}

func TestVerify_Malformed(t *testing.T) {
	f := newFixture(t)
	_, err := f.verifier.Verify(context.Background(), "not-a-jwt", "svcA", "prod")
	assertUnauthorized(t, err, "malformed token")
}

func TestVerify_KidMissing(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{Subject: "svcA", Env: "prod"}).
		SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw, "svcA", "prod")
	assertUnauthorized(t, err, "kid missing")
}

func TestVerify_KidFromPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cred := f.register(t, "svcA")
	now := *f.clock
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{
		Subject:   "svcA",
		Env:       "prod",
		Audience:  jwt.ClaimStrings{schema.PullAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		Kid:       cred.AccessKey,
	}).SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	// Signature and claims pass; only the missing record rejects it.
	_, err = f.verifier.Verify(ctx, raw, "svcA", "prod")
	assertUnauthorized(t, err, "token revoked or not found")

	svc, err := f.store.GetServiceByCode(ctx, "svcA")
	require.NoError(t, err)
	require.NoError(t, f.store.CreatePullToken(ctx, &store.PullToken{
		ID: "legacy", ServiceID: svc.ID, Env: "prod", Token: raw, ExpiresAt: now.Add(time.Hour),
	}))
	_, err = f.verifier.Verify(ctx, raw, "svcA", "prod")
	require.NoError(t, err)
}

func TestVerify_BadSignature(t *testing.T) {
	f := newFixture(t)
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	require.NoError(t, err)

	parts := strings.Split(issued.Token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = f.verifier.Verify(context.Background(), tampered, "svcA", "prod")
	assertUnauthorized(t, err, "invalid token:")
}

func TestVerify_Expired(t *testing.T) {
	f := newFixture(t)
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	require.NoError(t, err)

	*f.clock = f.clock.Add(DefaultPullTTL + DefaultLeeway + time.Second)
	_, err = f.verifier.Verify(context.Background(), issued.Token, "svcA", "prod")
	assertUnauthorized(t, err, "invalid token:")
}

func TestVerify_ExpiryWithinLeeway(t *testing.T) {
	f := newFixture(t)
	f.register(t, "svcA")
	issued, err := f.issuer.Issue(context.Background(), "svcA", "prod")
	require.NoError(t, err)

	*f.clock = f.clock.Add(DefaultPullTTL + 30*time.Second)
	_, err = f.verifier.Verify(context.Background(), issued.Token, "svcA", "prod")
	require.NoError(t, err)
}

func TestVerify_WrongAudience(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	now := *f.clock
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{
		Subject: "svcA", Env: "prod", Audience: jwt.ClaimStrings{"something-else"},
		IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tok.Header["kid"] = cred.AccessKey
	raw, err := tok.SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw, "svcA", "prod")
	assertUnauthorized(t, err, "invalid token:")
}

func TestVerify_ArrayAudience(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	now := *f.clock
	sign := func(aud ...string) string {
		payload := jwt.MapClaims{
			"sub": "svcA", "env": "prod", "aud": aud,
			"iat": now.Unix(), "exp": now.Add(time.Hour).Unix(),
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
		tok.Header["kid"] = cred.AccessKey
		raw, err := tok.SignedString([]byte(cred.SecretKey))
		require.NoError(t, err)
		return raw
	}

	// Audience accepted; only the missing token record rejects it.
	_, err := f.verifier.Verify(context.Background(), sign("dashboard", schema.PullAudience), "svcA", "prod")
	assertUnauthorized(t, err, "token revoked or not found")

	_, err = f.verifier.Verify(context.Background(), sign("dashboard", "reports"), "svcA", "prod")
	assertUnauthorized(t, err, "invalid token:")
}

func TestVerify_SubMismatch(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	now := *f.clock
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{
		Subject: "svcB", Env: "prod", Audience: jwt.ClaimStrings{schema.PullAudience},
		IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tok.Header["kid"] = cred.AccessKey
	raw, err := tok.SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw, "svcA", "prod")
	assertUnauthorized(t, err, "sub mismatch")
}

func TestVerify_MissingIssuedAt(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &PullClaims{
		Subject: "svcA", Env: "prod", Audience: jwt.ClaimStrings{schema.PullAudience},
		ExpiresAt: jwt.NewNumericDate(f.clock.Add(time.Hour)),
	})
	tok.Header["kid"] = cred.AccessKey
	raw, err := tok.SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw, "svcA", "prod")
	assertUnauthorized(t, err, "iat")
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	f := newFixture(t)
	cred := f.register(t, "svcA")
	now := *f.clock
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, &PullClaims{
		Subject: "svcA", Env: "prod", Audience: jwt.ClaimStrings{schema.PullAudience},
		IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	tok.Header["kid"] = cred.AccessKey
	raw, err := tok.SignedString([]byte(cred.SecretKey))
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), raw, "svcA", "prod")
	assertUnauthorized(t, err, "invalid token:")
}
