package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Random byte counts before encoding.
const (
	AccessKeyBytes = 18
	SecretKeyBytes = 32
	MasterKeyBytes = 32
)

// GenerateKeyPair draws an access key and a secret key from crypto/rand,
// both base64url-encoded without padding.
func GenerateKeyPair() (accessKey, secretKey string, err error) {
	accessKey, err = randomToken(AccessKeyBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate access key: %w", err)
	}
	secretKey, err = randomToken(SecretKeyBytes)
	if err != nil {
		return "", "", fmt.Errorf("generate secret key: %w", err)
	}
	return accessKey, secretKey, nil
}

// GenerateMasterKey returns a new base64 (standard, padded) master key.
func GenerateMasterKey() (string, error) {
	b := make([]byte, MasterKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
