package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"courierchat/internal/constants"
	"courierchat/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	if !isEncryptionEnabled() {
		return &encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

// EncryptIfEnabled encrypts the value when the cache encryption secret is
// configured; otherwise the plaintext passes through unchanged.
func (e *encryptor) EncryptIfEnabled(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	result := append(nonce, ciphertext...)
	return base64.StdEncoding.EncodeToString(result), nil
}

// DecryptIfEnabled reverses EncryptIfEnabled.
func (e *encryptor) DecryptIfEnabled(ciphertext string) (string, error) {
	if ciphertext == "" || e.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, payload := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv("COURIERCHAT_ENCRYPTION_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("COURIERCHAT_ENCRYPTION_SECRET environment variable is required when encryption is enabled")
	}

	if len(secret) < 32 {
		return nil, fmt.Errorf("encryption secret must be at least 32 characters long")
	}

	salt := []byte(constants.EncryptionSalt)
	key := pbkdf2.Key([]byte(secret), salt, models.Iterations, models.KeySize, sha256.New)
	return key, nil
}

func isEncryptionEnabled() bool {
	return os.Getenv("COURIERCHAT_ENABLE_ENCRYPTION") == "true"
}
