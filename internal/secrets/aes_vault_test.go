package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fastconfig/pkg/schema"
)

func testKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func testVault(t *testing.T) *AESVault {
	t.Helper()
	v, err := NewAESVault(VaultConfig{MasterKey: testKey()})
	require.NoError(t, err)
	return v
}

func TestAESVault_EncryptDecrypt(t *testing.T) {
	v := testVault(t)

	ct, err := v.Encrypt([]byte("sk-secret-123"))
	require.NoError(t, err)

	pt, err := v.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-secret-123"), pt)
}

func TestAESVault_KeyOnlyInEnclave(t *testing.T) {
	v := testVault(t)
	require.NotNil(t, v.key)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte{byte(i), 'v'}
			ct, err := v.Encrypt(msg)
			assert.NoError(t, err)
			pt, err := v.Decrypt(ct)
			assert.NoError(t, err)
			assert.Equal(t, msg, pt)
		}(i)
	}
	wg.Wait()
}

func TestAESVault_CiphertextIsNotPlaintext(t *testing.T) {
	v := testVault(t)

	ct, err := v.Encrypt([]byte("plaintext-value"))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(ct, []byte("plaintext-value")))
	assert.Greater(t, len(ct), len("plaintext-value"))
}

func TestAESVault_CallerKeyUntouched(t *testing.T) {
	key := testKey()
	_, err := NewAESVault(VaultConfig{MasterKey: key})
	require.NoError(t, err)
	assert.Equal(t, testKey(), key)
}

func TestAESVault_PassphraseDerivation(t *testing.T) {
	v, err := NewAESVault(VaultConfig{
		Passphrase: "my-secure-passphrase",
		Salt:       []byte("test-salt-16byte"),
		Iterations: 1000, // low for test speed
	})
	require.NoError(t, err)

	ct, err := v.Encrypt([]byte("value"))
	require.NoError(t, err)
	pt, err := v.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), pt)
}

func TestAESVault_WrongKeyCannotDecrypt(t *testing.T) {
	key2 := make([]byte, 32)
	key2[0] = 0xFF

	v1 := testVault(t)
	v2, err := NewAESVault(VaultConfig{MasterKey: key2})
	require.NoError(t, err)

	ct, err := v1.Encrypt([]byte("hidden"))
	require.NoError(t, err)

	_, err = v2.Decrypt(ct)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeVault))
}

func TestAESVault_UniqueNonces(t *testing.T) {
	v := testVault(t)

	ct1, err := v.Encrypt([]byte("same-value"))
	require.NoError(t, err)
	ct2, err := v.Encrypt([]byte("same-value"))
	require.NoError(t, err)

	// Same plaintext must produce different ciphertext (random nonce).
	assert.False(t, bytes.Equal(ct1, ct2))
}

func TestAESVault_ShortCiphertext(t *testing.T) {
	v := testVault(t)
	_, err := v.Decrypt([]byte("abc"))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeVault))
}

func TestAESVault_InvalidKeyLength(t *testing.T) {
	_, err := NewAESVault(VaultConfig{MasterKey: []byte("too-short")})
	require.Error(t, err)
	var fcErr *schema.Error
	require.True(t, errors.As(err, &fcErr))
	assert.Equal(t, schema.ErrCodeVault, fcErr.Code)
}

func TestAESVault_NoKeyOrPassphrase(t *testing.T) {
	_, err := NewAESVault(VaultConfig{})
	require.ErrorIs(t, err, ErrMasterKeyMissing)
}

func TestAESVault_PassphraseWithoutSalt(t *testing.T) {
	_, err := NewAESVault(VaultConfig{Passphrase: "pass"})
	require.Error(t, err)
}

func TestParseMasterKey(t *testing.T) {
	raw := testKey()
	for name, enc := range map[string]*base64.Encoding{
		"std":     base64.StdEncoding,
		"raw-std": base64.RawStdEncoding,
		"url":     base64.URLEncoding,
		"raw-url": base64.RawURLEncoding,
	} {
		t.Run(name, func(t *testing.T) {
			key, err := ParseMasterKey(enc.EncodeToString(raw))
			require.NoError(t, err)
			assert.Equal(t, raw, key)
		})
	}
}

func TestParseMasterKey_Errors(t *testing.T) {
	_, err := ParseMasterKey("  ")
	assert.ErrorIs(t, err, ErrMasterKeyMissing)

	_, err = ParseMasterKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.True(t, schema.IsCode(err, schema.ErrCodeVault))

	_, err = ParseMasterKey("%%%not-base64%%%")
	assert.True(t, schema.IsCode(err, schema.ErrCodeVault))
}

func TestGenerateKeyPair(t *testing.T) {
	ak, sk, err := GenerateKeyPair()
	require.NoError(t, err)

	akRaw, err := base64.RawURLEncoding.DecodeString(ak)
	require.NoError(t, err)
	skRaw, err := base64.RawURLEncoding.DecodeString(sk)
	require.NoError(t, err)

	assert.Len(t, akRaw, AccessKeyBytes)
	assert.Len(t, skRaw, SecretKeyBytes)
	assert.NotContains(t, ak, "=")
	assert.NotContains(t, sk, "=")

	ak2, sk2, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, ak, ak2)
	assert.NotEqual(t, sk, sk2)
}

func TestGenerateMasterKey_RoundTrip(t *testing.T) {
	s, err := GenerateMasterKey()
	require.NoError(t, err)
	key, err := ParseMasterKey(s)
	require.NoError(t, err)
	assert.Len(t, key, MasterKeyBytes)
}
