package secrets

// Vault encrypts credential secret keys at rest and mints new key pairs.
// Plaintext secrets only exist in memory for the duration of a call.
type Vault interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	GenerateKeyPair() (accessKey, secretKey string, err error)
}
