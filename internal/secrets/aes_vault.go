package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/rendis/fastconfig/pkg/schema"
)

// ErrMasterKeyMissing is returned when no master key or passphrase is configured.
var ErrMasterKeyMissing = schema.NewError(schema.ErrCodeVault, "master key missing")

// VaultConfig configures the AES vault key derivation.
// Provide either MasterKey (raw 32 bytes) or Passphrase + Salt.
type VaultConfig struct {
	MasterKey  []byte // raw 32-byte key (takes priority)
	Passphrase string // derive key via PBKDF2
	Salt       []byte // salt for PBKDF2 (required with Passphrase)
	Iterations int    // PBKDF2 iterations (default 100_000)
}

// AESVault encrypts secrets with AES-256-GCM. The key lives only in a
// memguard enclave and is unsealed for the duration of each operation.
type AESVault struct {
	key *memguard.Enclave
}

// NewAESVault creates a vault with AES-256-GCM encryption.
// The caller's key slice is left untouched.
func NewAESVault(cfg VaultConfig) (*AESVault, error) {
	key, err := deriveKey(cfg)
	if err != nil {
		return nil, err
	}
	return &AESVault{key: memguard.NewEnclave(key)}, nil // wipes key
}

// withAEAD unseals the key, builds a GCM cipher over it and destroys the
// plaintext key buffer once fn returns.
func (v *AESVault) withAEAD(fn func(aead cipher.AEAD) ([]byte, error)) ([]byte, error) {
	locked, err := v.key.Open()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeVault, "open key enclave").WithCause(err)
	}
	defer locked.Destroy()

	block, err := aes.NewCipher(locked.Bytes())
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return fn(aead)
}

func deriveKey(cfg VaultConfig) ([]byte, error) {
	if len(cfg.MasterKey) > 0 {
		if len(cfg.MasterKey) != 32 {
			return nil, schema.NewErrorf(schema.ErrCodeVault,
				"master key must be 32 bytes, got %d", len(cfg.MasterKey))
		}
		key := make([]byte, 32)
		copy(key, cfg.MasterKey)
		return key, nil
	}
	if cfg.Passphrase == "" {
		return nil, ErrMasterKeyMissing
	}
	if len(cfg.Salt) == 0 {
		return nil, schema.NewError(schema.ErrCodeVault, "salt is required with passphrase")
	}
	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 100_000
	}
	return pbkdf2.Key(sha256.New, cfg.Passphrase, cfg.Salt, iterations, 32)
}

// ParseMasterKey decodes a base64 master key. Standard and URL alphabets,
// padded or not, are accepted. An empty string yields ErrMasterKeyMissing.
func ParseMasterKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMasterKeyMissing
	}
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if key, err := enc.DecodeString(s); err == nil {
			if len(key) != 32 {
				return nil, schema.NewErrorf(schema.ErrCodeVault,
					"master key must decode to 32 bytes, got %d", len(key))
			}
			return key, nil
		}
	}
	return nil, schema.NewError(schema.ErrCodeVault, "master key is not valid base64")
}

// Encrypt seals plaintext with a fresh random nonce prepended to the output.
func (v *AESVault) Encrypt(plaintext []byte) ([]byte, error) {
	return v.withAEAD(func(aead cipher.AEAD) ([]byte, error) {
		nonce := make([]byte, aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generate nonce: %w", err)
		}
		return aead.Seal(nonce, nonce, plaintext, nil), nil
	})
}

// Decrypt opens a ciphertext produced by Encrypt.
func (v *AESVault) Decrypt(ciphertext []byte) ([]byte, error) {
	return v.withAEAD(func(aead cipher.AEAD) ([]byte, error) {
		nonceSize := aead.NonceSize()
		if len(ciphertext) < nonceSize {
			return nil, schema.NewError(schema.ErrCodeVault, "ciphertext too short")
		}
		nonce := ciphertext[:nonceSize]
		ct := ciphertext[nonceSize:]
		plaintext, err := aead.Open(nil, nonce, ct, nil)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault, "decrypt failed: %s", err.Error())
		}
		return plaintext, nil
	})
}

// GenerateKeyPair returns a fresh access key / secret key pair.
func (v *AESVault) GenerateKeyPair() (string, string, error) {
	return GenerateKeyPair()
}
